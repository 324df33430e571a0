package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func tempFileStore(t *testing.T) (Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reminders.json")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return st, path
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()
	st, _ := tempFileStore(t)
	ctx := context.Background()

	in := Snapshot{
		"whatsapp:+628111": {
			{FireAt: time.Date(2024, 1, 1, 2, 0, 0, 123456789, time.UTC), Message: "take medicine"},
			{FireAt: time.Date(2024, 1, 2, 2, 0, 0, 0, time.UTC), Message: "drink water"},
		},
		"whatsapp:+628222": {
			{FireAt: time.Date(2024, 5, 9, 23, 30, 0, 0, time.UTC), Message: "call family"},
		},
	}
	if err := st.SaveAll(ctx, in); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	out, err := st.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("recipients = %d, want %d", len(out), len(in))
	}
	for recipient, want := range in {
		got := out[recipient]
		if len(got) != len(want) {
			t.Fatalf("%s: entries = %d, want %d", recipient, len(got), len(want))
		}
		for i := range want {
			if !got[i].FireAt.Equal(want[i].FireAt) {
				t.Errorf("%s[%d]: fire_at = %s, want %s (precision must survive)",
					recipient, i, got[i].FireAt, want[i].FireAt)
			}
			if got[i].Message != want[i].Message {
				t.Errorf("%s[%d]: message = %q, want %q", recipient, i, got[i].Message, want[i].Message)
			}
		}
	}
}

func TestFileLoadMissing(t *testing.T) {
	t.Parallel()
	st, _ := tempFileStore(t)
	snap, err := st.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll on missing file: %v", err)
	}
	if snap == nil || len(snap) != 0 {
		t.Fatalf("want empty snapshot, got %v", snap)
	}
}

func TestFileLoadCorrupt(t *testing.T) {
	t.Parallel()
	st, path := tempFileStore(t)
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	snap, err := st.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("corrupt snapshot must degrade, not fail: %v", err)
	}
	if len(snap) != 0 {
		t.Fatalf("want empty snapshot, got %v", snap)
	}
}

func TestFileLoadIgnoresUnknownFields(t *testing.T) {
	t.Parallel()
	st, path := tempFileStore(t)
	doc := `{"r1": [{"fire_at": "2024-01-01T02:00:00Z", "message": "hi", "extra": 42}]}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	snap, err := st.LoadAll(context.Background())
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(snap["r1"]) != 1 || snap["r1"][0].Message != "hi" {
		t.Fatalf("unknown fields must be ignored, got %v", snap)
	}
}

func TestFileSaveEmptyThenLoad(t *testing.T) {
	t.Parallel()
	st, _ := tempFileStore(t)
	ctx := context.Background()
	if err := st.SaveAll(ctx, Snapshot{}); err != nil {
		t.Fatalf("SaveAll empty: %v", err)
	}
	snap, err := st.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(snap) != 0 {
		t.Fatalf("want empty snapshot, got %v", snap)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "cassandra"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestSnapshotClone(t *testing.T) {
	t.Parallel()
	orig := Snapshot{"r1": {{FireAt: time.Now().UTC(), Message: "a"}}}
	cp := orig.Clone()
	cp["r1"][0].Message = "mutated"
	if orig["r1"][0].Message != "a" {
		t.Fatal("Clone must not share entry slices")
	}
}
