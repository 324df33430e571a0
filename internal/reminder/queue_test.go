package reminder

import (
	"testing"
	"time"
)

func TestRemoveDuePartition(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	q := NewQueue()
	q.Add(Reminder{Recipient: "r1", FireAt: now.Add(-time.Hour), Body: "past"})
	q.Add(Reminder{Recipient: "r1", FireAt: now.Add(time.Hour), Body: "future"})
	q.Add(Reminder{Recipient: "r2", FireAt: now, Body: "boundary"})

	due := q.RemoveDue(now)
	if len(due) != 2 {
		t.Fatalf("due = %d, want 2 (past + boundary)", len(due))
	}
	for _, r := range due {
		if r.FireAt.After(now) {
			t.Errorf("future reminder %q removed", r.Body)
		}
	}
	if q.Len() != 1 {
		t.Fatalf("remaining = %d, want 1", q.Len())
	}

	snap := q.Snapshot()
	if _, ok := snap["r2"]; ok {
		t.Fatal("emptied recipient should be dropped from the snapshot")
	}
	if len(snap["r1"]) != 1 || snap["r1"][0].Message != "future" {
		t.Fatalf("unexpected remaining entries: %v", snap["r1"])
	}
}

func TestRemoveDueEmpty(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	if due := q.RemoveDue(time.Now()); len(due) != 0 {
		t.Fatalf("due on empty queue = %d", len(due))
	}
}

func TestInsertionOrderPreserved(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		q.Add(Reminder{Recipient: "r1", FireAt: base.Add(time.Duration(i) * time.Hour), Body: string(rune('a' + i))})
	}
	snap := q.Snapshot()
	for i, e := range snap["r1"] {
		if e.Message != string(rune('a'+i)) {
			t.Fatalf("entry %d = %q, insertion order not preserved", i, e.Message)
		}
	}
}

func TestLoadRoundTrip(t *testing.T) {
	t.Parallel()
	q := NewQueue()
	q.Add(Reminder{Recipient: "r1", FireAt: time.Now().UTC().Add(time.Hour), Body: "x"})
	q.Add(Reminder{Recipient: "r2", FireAt: time.Now().UTC().Add(2 * time.Hour), Body: "y"})

	q2 := NewQueue()
	q2.Load(q.Snapshot())
	if q2.Len() != q.Len() {
		t.Fatalf("loaded len = %d, want %d", q2.Len(), q.Len())
	}
}
