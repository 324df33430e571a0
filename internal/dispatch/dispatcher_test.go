package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	sent  []string
	errOn bool
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errOn {
		return kit.MessageRef{}, errors.New("transport down")
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestDeliverOK(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	d := New(Config{RatePerSec: 100}, ad, logx.Nop(), nil)
	if err := d.Deliver(context.Background(), "12345", "hello"); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if ad.sentCount() != 1 {
		t.Fatalf("sent = %d, want 1", ad.sentCount())
	}
}

func TestDeliverTransportFailure(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{errOn: true}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	d := New(Config{RatePerSec: 100}, ad, logx.Nop(), bus)
	if err := d.Deliver(context.Background(), "12345", "hello"); err == nil {
		t.Fatal("expected error from failing transport")
	}

	select {
	case e := <-events:
		if e.Type != eventbus.EventDeliveryFailed {
			t.Fatalf("event type = %s, want %s", e.Type, eventbus.EventDeliveryFailed)
		}
	case <-time.After(time.Second):
		t.Fatal("no delivery.failed event published")
	}
}

func TestDeliverBadRecipient(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	d := New(Config{RatePerSec: 100}, ad, logx.Nop(), nil)
	if err := d.Deliver(context.Background(), "not-a-chat-id", "hello"); err == nil {
		t.Fatal("expected error for malformed recipient")
	}
	if ad.sentCount() != 0 {
		t.Fatal("nothing should be sent for a malformed recipient")
	}
}
