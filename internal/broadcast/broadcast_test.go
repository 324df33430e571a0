package broadcast

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"remindbot/internal/scheduler"
	"remindbot/pkg/logx"
)

type nopDeliverer struct {
	mu   sync.Mutex
	sent []string
}

func (n *nopDeliverer) Deliver(ctx context.Context, recipient, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, recipient+"|"+text)
	return nil
}

func writeDefs(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "broadcasts.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newRegistry(t *testing.T, path string) (*Registry, *scheduler.Service) {
	t.Helper()
	sched := scheduler.New(scheduler.Config{}, logx.Nop())
	reg := New(Config{Path: path, Contact: "999"}, sched, &nopDeliverer{}, logx.Nop(), nil)
	return reg, sched
}

func TestLoadAndRegister(t *testing.T) {
	t.Parallel()
	path := writeDefs(t, `
broadcasts:
  - time_utc: "08:00:00"
    message: "Good morning! Time for your medication."
    active: true
  - time_utc: "20:30:00"
    message: "Evening check-in."
    active: true
`)
	reg, sched := newRegistry(t, path)

	n, err := reg.LoadAndRegister(context.Background())
	if err != nil {
		t.Fatalf("LoadAndRegister: %v", err)
	}
	if n != 2 {
		t.Fatalf("registered = %d, want 2", n)
	}
	if got := len(sched.Snapshot()); got != 2 {
		t.Fatalf("scheduler holds %d jobs, want 2", got)
	}
}

func TestSkipsInactiveAndMalformed(t *testing.T) {
	t.Parallel()
	path := writeDefs(t, `
broadcasts:
  - time_utc: "08:00:00"
    message: "kept"
    active: true
  - time_utc: "08:00:00"
    message: "inactive"
    active: false
  - time_utc: "8:00"
    message: "malformed time"
    active: true
  - time_utc: "25:00:00"
    message: "hour out of range"
    active: true
  - time_utc: "22:00:00"
    message: "also kept"
    active: true
`)
	reg, _ := newRegistry(t, path)

	n, err := reg.LoadAndRegister(context.Background())
	if err != nil {
		t.Fatalf("LoadAndRegister: %v", err)
	}
	if n != 2 {
		t.Fatalf("registered = %d, want 2 (malformed and inactive skipped)", n)
	}
}

func TestMissingFile(t *testing.T) {
	t.Parallel()
	reg, _ := newRegistry(t, filepath.Join(t.TempDir(), "absent.yaml"))

	n, err := reg.LoadAndRegister(context.Background())
	if err != nil {
		t.Fatalf("a missing file must not be an error: %v", err)
	}
	if n != 0 {
		t.Fatalf("registered = %d, want 0", n)
	}
}

func TestUnparseableFile(t *testing.T) {
	t.Parallel()
	reg, _ := newRegistry(t, writeDefs(t, "broadcasts: [not: {valid"))

	if _, err := reg.LoadAndRegister(context.Background()); err == nil {
		t.Fatal("want parse error for garbage file")
	}
}

func TestReRegisterIsIdempotent(t *testing.T) {
	t.Parallel()
	path := writeDefs(t, `
broadcasts:
  - time_utc: "08:00:00"
    message: "morning"
    active: true
`)
	reg, sched := newRegistry(t, path)

	for i := 0; i < 3; i++ {
		if _, err := reg.LoadAndRegister(context.Background()); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}
	if got := len(sched.Snapshot()); got != 1 {
		t.Fatalf("scheduler holds %d jobs after re-register, want 1", got)
	}
}
