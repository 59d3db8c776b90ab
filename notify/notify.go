package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ErrDelivery wraps every transport failure returned by a Notifier.
var ErrDelivery = errors.New("notification delivery failed")

// Kind tags a message for templates and logs.
type Kind string

const (
	KindOTP               Kind = "otp"
	KindLoginConfirmation Kind = "login_confirmation"
	KindPasswordReset     Kind = "password_reset"
	KindNotice            Kind = "notice"
)

// Message is a single outbound email.
type Message struct {
	Kind    Kind   `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Validate checks the fields every transport needs.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errors.New("message recipient required")
	}
	if strings.ContainsAny(m.To, "\r\n") || strings.ContainsAny(m.Subject, "\r\n") {
		return errors.New("message headers must not contain line breaks")
	}
	return nil
}

// Notifier sends one message. Implementations must be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// LogNotifier writes messages to a logger instead of sending them. Intended
// for local development, where the logged body carries the link or code.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		"kind", string(msg.Kind),
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}

// Recorder keeps every message in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	// Err, when set, is returned from Send after the message is recorded.
	Err error
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	if r.Err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, r.Err)
	}
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Last returns the most recent message sent to recipient.
func (r *Recorder) Last(to string) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].To == to {
			return r.messages[i], true
		}
	}
	return Message{}, false
}

// LastOfKind returns the most recent message of kind sent to recipient.
func (r *Recorder) LastOfKind(to string, kind Kind) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		if r.messages[i].To == to && r.messages[i].Kind == kind {
			return r.messages[i], true
		}
	}
	return Message{}, false
}
