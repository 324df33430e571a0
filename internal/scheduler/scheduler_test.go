package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		h, m, s int
		wantErr bool
	}{
		{raw: "08:00:00", h: 8},
		{raw: "23:59:59", h: 23, m: 59, s: 59},
		{raw: "00:00:00"},
		{raw: " 12:30:15 ", h: 12, m: 30, s: 15},
		{raw: "24:00:00", wantErr: true},
		{raw: "12:60:00", wantErr: true},
		{raw: "12:00:60", wantErr: true},
		{raw: "08:00", wantErr: true},
		{raw: "garbage", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		h, m, sec, err := ParseTimeOfDay(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTimeOfDay(%q): expected error", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q): %v", tt.raw, err)
			continue
		}
		if h != tt.h || m != tt.m || sec != tt.s {
			t.Errorf("ParseTimeOfDay(%q) = %d:%d:%d, want %d:%d:%d", tt.raw, h, m, sec, tt.h, tt.m, tt.s)
		}
	}
}

func TestAddDailyUpsert(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	job := func(ctx context.Context) error { return nil }

	if _, err := s.AddDaily("broadcast:0", "08:00:00", job); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	if _, err := s.AddDaily("broadcast:0", "09:30:00", job); err != nil {
		t.Fatalf("AddDaily (replace): %v", err)
	}

	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("schedules = %d, want 1 (same name must replace)", len(snap))
	}
	if snap[0].Spec != "0 30 9 * * *" {
		t.Fatalf("spec = %q, want the replacement definition", snap[0].Spec)
	}
}

func TestAddDailyMalformed(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	if _, err := s.AddDaily("bad", "25:00:00", func(ctx context.Context) error { return nil }); err == nil {
		t.Fatal("expected error for malformed time of day")
	}
	if len(s.Snapshot()) != 0 {
		t.Fatal("malformed definition must not be registered")
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	if _, err := s.AddInterval("sweep", time.Minute, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}
	if !s.Remove("sweep") {
		t.Fatal("Remove returned false for a registered name")
	}
	if s.Remove("sweep") {
		t.Fatal("Remove returned true for an already removed name")
	}
	if len(s.Snapshot()) != 0 {
		t.Fatal("schedule list not empty after Remove")
	}
}

func TestIntervalFires(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 1}, logx.Nop())

	fired := make(chan struct{}, 4)
	if _, err := s.AddInterval("tick", 50*time.Millisecond, func(ctx context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		s.Stop(stopCtx)
	}()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("interval job did not fire")
	}
}

func TestJobNeverOverlapsItself(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 2}, logx.Nop())

	var active, maxActive, overlapped atomic.Int32
	if _, err := s.AddInterval("slow", 50*time.Millisecond, func(ctx context.Context) error {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		if n > 1 {
			overlapped.Store(1)
		}
		time.Sleep(150 * time.Millisecond)
		active.Add(-1)
		return nil
	}); err != nil {
		t.Fatalf("AddInterval: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	time.Sleep(400 * time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	s.Stop(stopCtx)

	if overlapped.Load() != 0 {
		t.Fatalf("job overlapped itself (max concurrent = %d)", maxActive.Load())
	}
}

func TestUpsertWhileRunningLeavesOtherJobsIntact(t *testing.T) {
	t.Parallel()
	s := New(Config{Workers: 2}, logx.Nop())

	var aOld, aNew, b atomic.Int32
	if _, err := s.AddInterval("a", 50*time.Millisecond, func(ctx context.Context) error {
		aOld.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("AddInterval(a): %v", err)
	}
	if _, err := s.AddInterval("b", 50*time.Millisecond, func(ctx context.Context) error {
		b.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("AddInterval(b): %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
		defer stopCancel()
		s.Stop(stopCtx)
	}()

	time.Sleep(200 * time.Millisecond)
	bBefore := b.Load()
	aOldBefore := aOld.Load()

	// Replace "a" while the scheduler is running. "b" must keep firing on
	// its own entry and the old "a" body must stop.
	if _, err := s.AddInterval("a", 50*time.Millisecond, func(ctx context.Context) error {
		aNew.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("AddInterval(a, replace): %v", err)
	}

	time.Sleep(400 * time.Millisecond)

	if got := b.Load(); got <= bBefore {
		t.Fatalf("job b stopped firing after an unrelated upsert of a (before=%d after=%d)", bBefore, got)
	}
	if aNew.Load() == 0 {
		t.Fatal("replacement job a never fired")
	}
	// One fire may already have been dispatched when the old entry was
	// removed; anything beyond that means the old body kept running.
	if got := aOld.Load(); got > aOldBefore+1 {
		t.Fatalf("old job a still firing after replacement (before=%d after=%d)", aOldBefore, got)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx) // no-op

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	s.Stop(stopCtx)
	s.Stop(stopCtx) // no-op
}
