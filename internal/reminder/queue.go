package reminder

import (
	"sync"
	"time"

	"remindbot/internal/store"
)

// Reminder is one pending one-shot notification. Immutable once created;
// the only mutation is removal when it fires.
type Reminder struct {
	Recipient string
	FireAt    time.Time // absolute UTC instant, normalized at creation
	Body      string
}

// Queue is the in-memory working set of pending reminders, keyed by
// recipient. Insertion order within a recipient is preserved; the sweep
// scans everything each cycle, so order is a debugging aid, not a
// correctness requirement.
//
// The Queue's own lock makes individual calls safe; compound
// mutate-then-persist sequences are serialized by Service.mu on top.
type Queue struct {
	mu          sync.Mutex
	byRecipient map[string][]Reminder
}

func NewQueue() *Queue {
	return &Queue{byRecipient: map[string][]Reminder{}}
}

func (q *Queue) Add(r Reminder) {
	q.mu.Lock()
	q.byRecipient[r.Recipient] = append(q.byRecipient[r.Recipient], r)
	q.mu.Unlock()
}

// RemoveDue atomically partitions every recipient's reminders and removes
// those with FireAt <= now. A concurrent Add can therefore never observe a
// half-partitioned collection.
func (q *Queue) RemoveDue(now time.Time) []Reminder {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []Reminder
	for recipient, reminders := range q.byRecipient {
		remaining := reminders[:0]
		for _, r := range reminders {
			if !r.FireAt.After(now) {
				due = append(due, r)
				continue
			}
			remaining = append(remaining, r)
		}
		if len(remaining) == 0 {
			delete(q.byRecipient, recipient)
		} else {
			q.byRecipient[recipient] = remaining
		}
	}
	return due
}

// Snapshot converts the queue to its persisted form.
func (q *Queue) Snapshot() store.Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := make(store.Snapshot, len(q.byRecipient))
	for recipient, reminders := range q.byRecipient {
		entries := make([]store.Entry, len(reminders))
		for i, r := range reminders {
			entries[i] = store.Entry{FireAt: r.FireAt, Message: r.Body}
		}
		snap[recipient] = entries
	}
	return snap
}

// Load replaces the queue contents with a persisted snapshot.
func (q *Queue) Load(snap store.Snapshot) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.byRecipient = make(map[string][]Reminder, len(snap))
	for recipient, entries := range snap {
		reminders := make([]Reminder, len(entries))
		for i, e := range entries {
			reminders[i] = Reminder{Recipient: recipient, FireAt: e.FireAt, Body: e.Message}
		}
		q.byRecipient[recipient] = reminders
	}
}

// Len returns the total number of pending reminders.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, reminders := range q.byRecipient {
		n += len(reminders)
	}
	return n
}
