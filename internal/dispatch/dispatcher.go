// Package dispatch hands recipient+text pairs to the messaging transport.
//
// Delivery is best-effort and attempted exactly once: a failure is logged
// and reported to the caller, but callers treat the message as fired either
// way (at-most-once; a lost message on a transient transport failure is
// judged less harmful than duplicate delivery on retry).
package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"remindbot/internal/eventbus"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type Config struct {
	// SendTimeout bounds a single delivery call. The transport's own
	// network timeouts are not trusted to be finite.
	SendTimeout time.Duration
	// RatePerSec throttles outbound sends against provider flood limits.
	RatePerSec int
}

type Dispatcher struct {
	cfg     Config
	adapter kit.Adapter
	log     logx.Logger
	bus     eventbus.Bus
	limiter *rate.Limiter
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:     cfg,
		adapter: adapter,
		log:     log,
		bus:     bus,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Deliver sends text to the recipient. Recipients are decimal chat ids.
// The returned error is informational: no caller retries on it.
func (d *Dispatcher) Deliver(ctx context.Context, recipient, text string) error {
	chatID, err := parseRecipient(recipient)
	if err != nil {
		d.fail(recipient, err)
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	if err := d.limiter.Wait(sctx); err != nil {
		d.fail(recipient, err)
		return err
	}
	if _, err := d.adapter.SendText(sctx, kit.ChatTarget{ChatID: chatID}, text, nil); err != nil {
		d.fail(recipient, err)
		return err
	}
	d.log.Debug("delivered", logx.String("recipient", recipient))
	return nil
}

func (d *Dispatcher) fail(recipient string, err error) {
	d.log.Warn("delivery failed", logx.String("recipient", recipient), logx.Err(err))
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{
			Type: eventbus.EventDeliveryFailed,
			Data: map[string]string{"recipient": recipient, "err": err.Error()},
		})
	}
}

func parseRecipient(recipient string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(recipient), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("recipient %q is not a chat id: %w", recipient, err)
	}
	return id, nil
}
