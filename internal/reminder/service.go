// Package reminder implements the one-shot reminder engine: validated
// creation, the periodic due-sweep, and write-through persistence.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"remindbot/internal/clock"
	"remindbot/internal/eventbus"
	"remindbot/internal/scheduler"
	"remindbot/internal/store"
	logx "remindbot/pkg/logx"
)

// ErrInvalidTime rejects a creation request whose local time is not a
// strict "HH:MM" 24-hour string. The caller skips the reminder and carries
// on with its reply.
var ErrInvalidTime = errors.New("invalid reminder time, expected HH:MM")

var timePattern = regexp.MustCompile(`^\d{2}:\d{2}$`)

const sweepJobName = "reminder.sweep"

// Deliverer is the outbound capability the sweep depends on. Delivery is
// fire-and-forget: the error is logged by the implementation and ignored
// here (at-most-once semantics).
type Deliverer interface {
	Deliver(ctx context.Context, recipient, text string) error
}

type Config struct {
	// SweepInterval is the period of the due-reminder scan.
	SweepInterval time.Duration
}

// Service owns the reminder queue. All mutation funnels through it: the
// creation path and the sweep path share s.mu, which serializes each
// mutate-then-persist sequence, so SaveAll is never invoked concurrently
// with itself and a creation never interleaves a sweep's partition.
type Service struct {
	mu sync.Mutex

	cfg     Config
	queue   *Queue
	store   store.Store
	clock   *clock.Clock
	deliver Deliverer
	log     logx.Logger
	bus     eventbus.Bus
}

func New(cfg Config, st store.Store, clk *clock.Clock, deliver Deliverer, log logx.Logger, bus eventbus.Bus) *Service {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		queue:   NewQueue(),
		store:   st,
		clock:   clk,
		deliver: deliver,
		log:     log,
		bus:     bus,
	}
}

// Restore loads the persisted snapshot into the queue. Called exactly once
// at startup, before the sweep is registered.
func (s *Service) Restore(ctx context.Context) error {
	snap, err := s.store.LoadAll(ctx)
	if err != nil {
		// Drivers degrade internally; an error here means something unusual.
		s.log.Warn("restore failed; starting empty", logx.Err(err))
		snap = store.Snapshot{}
	}
	s.mu.Lock()
	s.queue.Load(snap)
	n := s.queue.Len()
	s.mu.Unlock()
	if n > 0 {
		s.log.Info("restored pending reminders", logx.Int("count", n))
	}
	return nil
}

// Register installs the periodic sweep as a standing interval job.
func (s *Service) Register(sched *scheduler.Service) error {
	_, err := sched.AddInterval(sweepJobName, s.cfg.SweepInterval, func(ctx context.Context) error {
		s.Sweep(ctx)
		return nil
	})
	return err
}

// Create validates and schedules a one-shot reminder for the recipient's
// local wall-clock time, then persists the queue synchronously before
// returning (write-through: a crash right after Create never loses it).
func (s *Service) Create(ctx context.Context, recipient, localTime, body string) (Reminder, error) {
	hour, minute, err := parseLocalTime(localTime)
	if err != nil {
		return Reminder{}, err
	}

	r := Reminder{
		Recipient: recipient,
		FireAt:    s.clock.NextOccurrenceUTC(hour, minute, s.clock.NowUTC()),
		Body:      body,
	}

	s.mu.Lock()
	s.queue.Add(r)
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.log.Info("reminder created",
		logx.String("recipient", recipient),
		logx.Time("fire_at", r.FireAt))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.EventReminderCreated, Data: r})
	}
	return r, nil
}

// Sweep runs one due-reminder cycle: capture now, atomically remove every
// reminder with FireAt <= now, persist the shrunken queue if anything was
// removed, then deliver. Removal does not depend on delivery outcome.
func (s *Service) Sweep(ctx context.Context) {
	now := s.clock.NowUTC()

	s.mu.Lock()
	due := s.queue.RemoveDue(now)
	if len(due) > 0 {
		s.persistLocked(ctx)
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}
	s.log.Debug("sweep found due reminders", logx.Int("count", len(due)), logx.Time("now", now))

	for _, r := range due {
		// Best-effort: the dispatcher logs failures; the reminder is
		// considered fired regardless.
		_ = s.deliver.Deliver(ctx, r.Recipient, r.Body)
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.EventReminderFired, Data: r})
		}
	}
}

// Pending returns the number of reminders currently queued.
func (s *Service) Pending() int {
	return s.queue.Len()
}

// persistLocked writes the full snapshot. Persistence failure is logged and
// swallowed: it must never break request handling or the sweep.
func (s *Service) persistLocked(ctx context.Context) {
	if err := s.store.SaveAll(ctx, s.queue.Snapshot()); err != nil {
		s.log.Error("snapshot save failed", logx.Err(err))
	}
}

func parseLocalTime(localTime string) (hour, minute int, err error) {
	if !timePattern.MatchString(localTime) {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, localTime)
	}
	hour, _ = strconv.Atoi(localTime[:2])
	minute, _ = strconv.Atoi(localTime[3:])
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidTime, localTime)
	}
	return hour, minute, nil
}
