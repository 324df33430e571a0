package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "remindbot/pkg/logx"
)

type Config struct {
	Workers   int
	QueueSize int
	// DefaultTimeout bounds each job run; 0 disables the bound.
	DefaultTimeout time.Duration
}

type scheduleDef struct {
	id      string
	name    string
	spec    string
	job     func(ctx context.Context) error
	entryID cron.EntryID
}

type task struct {
	id   string
	name string
	run  func(ctx context.Context) error
}

// ScheduleInfo describes one registered standing job.
type ScheduleInfo struct {
	ID   string
	Name string
	Spec string
	Next time.Time
	Prev time.Time
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	queue    chan task
	stopCh   chan struct{}
	workerWG sync.WaitGroup

	// inflight guards against a job overlapping itself when a run outlasts
	// its own firing interval. Keyed by job name.
	inflightMu sync.Mutex
	inflight   map[string]bool
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:      cfg,
		log:      log,
		inflight: map[string]bool{},
		// SecondOptional allows both 5-field and 6-field (with seconds) specs;
		// daily broadcasts carry seconds.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// AddDaily registers a standing job firing every calendar day at the given
// UTC time-of-day ("HH:MM:SS"). Registering an existing name replaces the
// prior definition.
func (s *Service) AddDaily(name, timeOfDayUTC string, job func(ctx context.Context) error) (string, error) {
	h, m, sec, err := ParseTimeOfDay(timeOfDayUTC)
	if err != nil {
		return "", err
	}
	spec := fmt.Sprintf("%d %d %d * * *", sec, m, h)
	return s.add(name, spec, job)
}

// AddInterval registers a standing job firing every `every`.
func (s *Service) AddInterval(name string, every time.Duration, job func(ctx context.Context) error) (string, error) {
	if every <= 0 {
		return "", errors.New("interval must be positive")
	}
	return s.add(name, fmt.Sprintf("@every %s", every.String()), job)
}

func (s *Service) add(name, spec string, job func(ctx context.Context) error) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("name required")
	}
	if job == nil {
		return "", errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return "", fmt.Errorf("schedule %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Upsert by name: drop any previous schedule with the same name so
	// repeated registration (e.g. a definitions reload) never duplicates.
	_ = s.removeLocked(name)

	id := fmt.Sprintf("job:%d", time.Now().UnixNano())
	d := scheduleDef{id: id, name: name, spec: spec, job: job}
	s.defs = append(s.defs, d)
	if s.c != nil {
		if err := s.registerLocked(&s.defs[len(s.defs)-1]); err != nil {
			s.log.Error("schedule register failed",
				logx.String("name", name), logx.String("spec", spec), logx.Err(err))
			return id, err
		}
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("id", id), logx.String("spec", spec))
	return id, nil
}

// Remove unregisters a named job. Returns false when the name is unknown.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	removed := false
	kept := s.defs[:0]
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	s.defs = kept
	return removed
}

func (s *Service) registerLocked(d *scheduleDef) error {
	// The callback must not dereference d: removeLocked compacts s.defs in
	// place, so an upsert while running would shift the element the closure
	// points at. Capture a value copy instead.
	t := task{id: d.id, name: d.name, run: d.job}
	id, err := s.c.AddFunc(d.spec, func() {
		s.enqueue(t)
	})
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := s.cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	// Fresh queue per run so a stop/start toggle never executes stale tasks.
	s.queue = make(chan task, queueSize)

	// Standing jobs are defined in UTC; the clock package owns all
	// local-time conversion.
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(time.UTC))
	for i := range s.defs {
		if err := s.registerLocked(&s.defs[i]); err != nil {
			s.log.Error("schedule register failed",
				logx.String("name", s.defs[i].name), logx.Err(err))
		}
	}

	stopCh := s.stopCh
	queue := s.queue
	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in scheduler worker",
						logx.Int("worker", idx), logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(ctx, stopCh, queue)
		}()
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("workers", workers), logx.Int("schedules", len(s.defs)))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	c := s.c
	s.stopCh = nil
	s.c = nil
	s.queue = nil
	s.mu.Unlock()

	close(stopCh)
	if c != nil {
		// Waits for in-flight cron dispatches (not our workers).
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; workers finishing in background")
	}
}

func (s *Service) enqueue(t task) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		s.log.Debug("scheduler not running; dropping task", logx.String("task", t.name))
		return
	}
	select {
	case q <- t:
	default:
		s.log.Warn("scheduler queue full; dropping task",
			logx.String("task", t.name), logx.Int("queue_cap", cap(q)))
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan task) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.execOne(ctx, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, t task) {
	s.inflightMu.Lock()
	if s.inflight[t.name] {
		s.inflightMu.Unlock()
		s.log.Debug("job still running; skipping this fire", logx.String("job", t.name))
		return
	}
	s.inflight[t.name] = true
	s.inflightMu.Unlock()
	defer func() {
		s.inflightMu.Lock()
		delete(s.inflight, t.name)
		s.inflightMu.Unlock()
	}()

	start := time.Now()

	runCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.DefaultTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.DefaultTimeout)
		defer cancel()
	}

	if err := t.run(runCtx); err != nil {
		s.log.Warn("job failed", logx.String("job", t.name),
			logx.Duration("took", time.Since(start)), logx.Err(err))
		return
	}
	s.log.Debug("job ok", logx.String("job", t.name), logx.Duration("took", time.Since(start)))
}

// Snapshot lists the registered standing jobs with their next/prev fire
// instants (zero when the scheduler isn't running).
func (s *Service) Snapshot() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{ID: d.id, Name: d.name, Spec: d.spec}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		items = append(items, it)
	}
	return items
}

// ParseTimeOfDay parses a strict "HH:MM:SS" 24-hour string.
func ParseTimeOfDay(s string) (hour, minute, second int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid time %q, expected HH:MM:SS", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	second, err = strconv.Atoi(parts[2])
	if err != nil || second < 0 || second > 59 {
		return 0, 0, 0, fmt.Errorf("invalid second in %q", s)
	}
	return hour, minute, second, nil
}
