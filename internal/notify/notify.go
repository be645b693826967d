// Package notify delivers best-effort notifications about appointment and
// suggestion state changes. Delivery never fails the caller.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
)

type Type string

const (
	TypeAppointmentCancelled Type = "appointment_cancelled"
	TypeAppointmentConfirmed Type = "appointment_confirmed"
	TypeSuggestionCreated    Type = "suggestion_created"
	TypeSuggestionAccepted   Type = "suggestion_accepted"
	TypeSuggestionRejected   Type = "suggestion_rejected"
	TypeSuggestionCountered  Type = "suggestion_countered"
)

type Notification struct {
	UserID   string         `json:"user_id"`
	Type     Type           `json:"type"`
	Title    string         `json:"title"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
	Channels []Channel      `json:"channels,omitempty"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Directory resolves a user id to the name shown in notification messages.
type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

const defaultDispatchTimeout = 5 * time.Second

// Notifier runs dispatches in the background so state transitions never wait
// on, or fail because of, delivery.
type Notifier struct {
	dispatcher Dispatcher
	directory  Directory
	log        *slog.Logger
	timeout    time.Duration
	wg         sync.WaitGroup
}

type Option func(*Notifier)

func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

func WithDirectory(d Directory) Option {
	return func(n *Notifier) {
		n.directory = d
	}
}

func NewNotifier(dispatcher Dispatcher, log *slog.Logger, opts ...Option) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	n := &Notifier{
		dispatcher: dispatcher,
		log:        log.With(slog.String("component", "notify")),
		timeout:    defaultDispatchTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify hands n to the dispatcher on a separate goroutine. The dispatch keeps
// the caller's values (trace context) but not its cancellation.
func (n *Notifier) Notify(ctx context.Context, msg Notification) {
	if n == nil || n.dispatcher == nil || msg.UserID == "" {
		return
	}
	dctx := context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				n.log.Error("notification dispatch panicked", slog.Any("panic", r), slog.String("type", string(msg.Type)))
			}
		}()

		ctx, cancel := context.WithTimeout(dctx, n.timeout)
		defer cancel()

		if err := n.dispatcher.Dispatch(ctx, msg); err != nil {
			n.log.Warn(
				"notification dispatch failed",
				slog.Any("err", err),
				slog.String("type", string(msg.Type)),
				slog.String("user_id", msg.UserID),
			)
			return
		}
		n.log.Debug("notification dispatched", slog.String("type", string(msg.Type)), slog.String("user_id", msg.UserID))
	}()
}

// DisplayName returns the user's display name, falling back to the id when the
// directory is missing or the lookup fails.
func (n *Notifier) DisplayName(ctx context.Context, userID string) string {
	if n == nil || n.directory == nil {
		return userID
	}
	name, err := n.directory.DisplayName(ctx, userID)
	if err != nil || name == "" {
		if err != nil {
			n.log.Debug("display name lookup failed", slog.Any("err", err), slog.String("user_id", userID))
		}
		return userID
	}
	return name
}

// Close waits for in-flight dispatches.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

// LogDispatcher writes notifications to the log. It is used when no broker is
// configured.
type LogDispatcher struct {
	log *slog.Logger
}

func NewLogDispatcher(log *slog.Logger) *LogDispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &LogDispatcher{log: log.With(slog.String("component", "notify.log"))}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, n Notification) error {
	d.log.InfoContext(
		ctx,
		"notification",
		slog.String("type", string(n.Type)),
		slog.String("user_id", n.UserID),
		slog.String("title", n.Title),
		slog.String("message", n.Message),
	)
	return nil
}
