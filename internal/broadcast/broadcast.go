// Package broadcast loads recurring daily announcements from a definitions
// file and registers them with the scheduler.
package broadcast

import (
	"context"
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"remindbot/internal/eventbus"
	"remindbot/internal/scheduler"
	"remindbot/pkg/logx"
)

// Definition is one entry in the broadcasts file. Times are UTC wall-clock,
// fired every day.
type Definition struct {
	TimeUTC string `yaml:"time_utc" json:"time_utc"`
	Message string `yaml:"message" json:"message"`
	Active  bool   `yaml:"active" json:"active"`
}

type defsFile struct {
	Broadcasts []Definition `yaml:"broadcasts" json:"broadcasts"`
}

// Deliverer sends a broadcast message to a recipient.
type Deliverer interface {
	Deliver(ctx context.Context, recipient, text string) error
}

type Config struct {
	// Path of the YAML definitions file. A missing file is not an error.
	Path string
	// Contact receives every broadcast.
	Contact string
}

// Registry registers daily broadcast jobs by stable index-derived names, so
// reloading the same file replaces rather than duplicates them.
type Registry struct {
	cfg     Config
	sched   *scheduler.Service
	deliver Deliverer
	log     logx.Logger
	bus     eventbus.Bus
}

func New(cfg Config, sched *scheduler.Service, deliver Deliverer, log logx.Logger, bus eventbus.Bus) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{cfg: cfg, sched: sched, deliver: deliver, log: log, bus: bus}
}

// LoadAndRegister reads the definitions file and registers one daily job per
// active entry. It returns how many jobs were registered. A missing file
// registers nothing; a malformed entry is skipped with a warning and never
// aborts the rest.
func (r *Registry) LoadAndRegister(ctx context.Context) (int, error) {
	defs, err := r.load()
	if err != nil {
		return 0, err
	}

	registered := 0
	for i, def := range defs {
		if !def.Active {
			continue
		}
		name := fmt.Sprintf("broadcast:%d", i)
		msg := def.Message
		_, err := r.sched.AddDaily(name, def.TimeUTC, func(ctx context.Context) error {
			return r.fire(ctx, name, msg)
		})
		if err != nil {
			r.log.Warn("skipping broadcast definition",
				logx.Int("index", i),
				logx.String("time_utc", def.TimeUTC),
				logx.Err(err))
			continue
		}
		registered++
	}
	if registered > 0 {
		r.log.Info("registered daily broadcasts", logx.Int("count", registered))
	}
	return registered, nil
}

func (r *Registry) load() ([]Definition, error) {
	raw, err := os.ReadFile(r.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) {
			r.log.Info("no broadcast definitions file", logx.String("path", r.cfg.Path))
			return nil, nil
		}
		return nil, fmt.Errorf("read broadcasts file: %w", err)
	}

	var f defsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse broadcasts file: %w", err)
	}
	return f.Broadcasts, nil
}

func (r *Registry) fire(ctx context.Context, name, msg string) error {
	err := r.deliver.Deliver(ctx, r.cfg.Contact, msg)
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.EventBroadcastFired, Data: name})
	}
	return err
}
