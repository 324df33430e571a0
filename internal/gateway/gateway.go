// Package gateway routes inbound chat messages: emergency detection first,
// then interpretation into replies and reminder intents.
package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"remindbot/internal/eventbus"
	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	"remindbot/pkg/logx"
)

// defaultKeywords trigger the emergency path. Substring match against the
// lowered message, English plus Indonesian variants.
var defaultKeywords = []string{
	"emergency", "help", "urgent", "pain", "chest pain", "can't breathe",
	"darurat", "tolong", "sakit dada",
}

const (
	fallbackReply  = "Sorry, I didn't quite understand. Could you try again? \U0001F60A"
	confusedReply  = "I got a bit confused. Could you say that again? \U0001F605"
	emergencyReply = "I've sent an urgent message to your emergency contact. Please stay calm. ❤️"
)

// Deliverer sends a text to a recipient chat id.
type Deliverer interface {
	Deliver(ctx context.Context, recipient, text string) error
}

// Reminders is the slice of the reminder service the gateway needs.
type Reminders interface {
	Create(ctx context.Context, recipient, localTime, body string) (reminder.Reminder, error)
}

type Config struct {
	// EmergencyContact is the operator chat id receiving alerts.
	EmergencyContact string
	// Keywords overrides the default emergency keyword list when non-empty.
	Keywords []string
}

// Gateway consumes transport updates and drives the reply flow.
type Gateway struct {
	cfg       Config
	keywords  []string
	interp    Interpreter
	reminders Reminders
	deliver   Deliverer
	localTime func() string
	label     string
	log       logx.Logger
	bus       eventbus.Bus
}

// LocalTimer renders the current local wall-clock context for the
// interpreter and the zone label for confirmations.
type LocalTimer interface {
	NowLocalString() string
	Label() string
}

func New(cfg Config, interp Interpreter, rem Reminders, deliver Deliverer, lt LocalTimer, log logx.Logger, bus eventbus.Bus) *Gateway {
	if log.IsZero() {
		log = logx.Nop()
	}
	kw := cfg.Keywords
	if len(kw) == 0 {
		kw = defaultKeywords
	}
	lowered := make([]string, len(kw))
	for i, k := range kw {
		lowered[i] = strings.ToLower(k)
	}
	return &Gateway{
		cfg:       cfg,
		keywords:  lowered,
		interp:    interp,
		reminders: rem,
		deliver:   deliver,
		localTime: lt.NowLocalString,
		label:     lt.Label(),
		log:       log,
		bus:       bus,
	}
}

// Run drains updates until the channel closes or the context ends.
func (g *Gateway) Run(ctx context.Context, updates <-chan kit.Update) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			g.Handle(ctx, u)
		}
	}
}

// Handle processes a single update. Non-text updates are ignored.
func (g *Gateway) Handle(ctx context.Context, u kit.Update) {
	msg := u.Message
	if msg == nil || strings.TrimSpace(msg.Text) == "" {
		return
	}
	chatID := strconv.FormatInt(msg.ChatID, 10)
	from := msg.FromUsername
	if from == "" {
		from = strconv.FormatInt(msg.FromID, 10)
	}

	if g.isEmergency(msg.Text) {
		g.alert(ctx, from, chatID, msg.Text)
		g.reply(ctx, chatID, emergencyReply)
		return
	}

	res, err := g.interp.Interpret(ctx, Input{
		Text:      msg.Text,
		FromName:  from,
		LocalTime: g.localTime(),
	})
	if err != nil {
		g.log.Warn("interpreter failed", logx.String("from", from), logx.Err(err))
		g.reply(ctx, chatID, confusedReply)
		return
	}

	text := res.Reply
	if text == "" {
		text = fallbackReply
	}

	if res.Reminder != nil {
		if _, err := g.reminders.Create(ctx, chatID, res.Reminder.Time, res.Reminder.Message); err != nil {
			// Bad time from the interpreter: skip the reminder, keep the reply.
			g.log.Warn("reminder intent rejected",
				logx.String("time", res.Reminder.Time), logx.Err(err))
		} else {
			text += fmt.Sprintf("\n\n(Reminder set for %s %s \U0001F60A)", res.Reminder.Time, g.label)
		}
	}

	g.reply(ctx, chatID, text)
}

func (g *Gateway) isEmergency(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range g.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (g *Gateway) alert(ctx context.Context, from, chatID, text string) {
	alert := fmt.Sprintf("!!! EMERGENCY ALERT !!!\nFrom: %s (%s)\nMessage: %s", from, chatID, text)
	_ = g.deliver.Deliver(ctx, g.cfg.EmergencyContact, alert)
	g.log.Warn("emergency alert forwarded", logx.String("from", from), logx.String("chat", chatID))
	if g.bus != nil {
		g.bus.Publish(eventbus.Event{Type: eventbus.EventEmergencyAlert, Data: chatID})
	}
}

func (g *Gateway) reply(ctx context.Context, chatID, text string) {
	_ = g.deliver.Deliver(ctx, chatID, text)
}
