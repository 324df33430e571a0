package gateway

import (
	"context"
	"regexp"
	"strings"
)

// Request is a reminder intent extracted from a message. Time is local
// wall-clock "HH:MM"; validation happens downstream in the reminder service.
type Request struct {
	Time    string
	Message string
}

// Result is what an interpreter makes of one inbound message.
type Result struct {
	Reply    string
	Reminder *Request
}

// Input carries the message plus the situational context an interpreter
// may want (who is asking, what time it is for them).
type Input struct {
	Text      string
	FromName  string
	LocalTime string
}

// Interpreter turns a free-form message into a reply and an optional
// reminder intent. Implementations may call out to external services; the
// built-in one is a deterministic command parser.
type Interpreter interface {
	Interpret(ctx context.Context, in Input) (Result, error)
}

var (
	slashRemindRe  = regexp.MustCompile(`^/remind\s+(\d{1,2}:\d{2})\s+(.+)$`)
	remindMeAtRe   = regexp.MustCompile(`(?i)^remind\s+me\s+at\s+(\d{1,2}:\d{2})\s+(?:to\s+)?(.+)$`)
	greetingTokens = []string{"hi", "hello", "hey", "halo", "good morning", "good evening"}
)

// CommandInterpreter parses explicit reminder commands:
//
//	/remind HH:MM take medicine
//	remind me at HH:MM to take medicine
//
// Everything else gets a generic reply with no reminder intent.
type CommandInterpreter struct{}

func (CommandInterpreter) Interpret(ctx context.Context, in Input) (Result, error) {
	text := strings.TrimSpace(in.Text)

	for _, re := range []*regexp.Regexp{slashRemindRe, remindMeAtRe} {
		if m := re.FindStringSubmatch(text); m != nil {
			return Result{
				Reply:    "Of course! I'll remind you. \U0001F60A",
				Reminder: &Request{Time: padHour(m[1]), Message: strings.TrimSpace(m[2])},
			}, nil
		}
	}

	lower := strings.ToLower(text)
	for _, g := range greetingTokens {
		if strings.HasPrefix(lower, g) {
			return Result{Reply: "Hello! I'm here to help. You can say \"remind me at 09:00 to take medicine\". \U0001F60A"}, nil
		}
	}

	return Result{}, nil
}

// padHour normalizes "9:00" to "09:00" so a single-digit hour from a command
// still passes the strict downstream format check.
func padHour(s string) string {
	if i := strings.IndexByte(s, ':'); i == 1 {
		return "0" + s
	}
	return s
}
