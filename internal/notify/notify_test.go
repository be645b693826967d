package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type fakeDispatcher struct {
	mu      sync.Mutex
	got     []Notification
	err     error
	ctxErr  error
	release chan struct{}
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, n)
	f.ctxErr = ctx.Err()
	return f.err
}

type fakeDirectory struct {
	names map[string]string
	err   error
}

func (f fakeDirectory) DisplayName(ctx context.Context, userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.names[userID], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_DispatchSurvivesCallerCancellation(t *testing.T) {
	d := &fakeDispatcher{release: make(chan struct{})}
	n := NewNotifier(d, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	n.Notify(ctx, Notification{UserID: "u1", Type: TypeAppointmentCancelled})
	cancel()
	close(d.release)
	n.Close()

	if len(d.got) != 1 {
		t.Fatalf("dispatched = %d, want 1", len(d.got))
	}
	if d.ctxErr != nil {
		t.Fatalf("dispatch context error = %v, want nil", d.ctxErr)
	}
}

func TestNotifier_SwallowsDispatchErrors(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("broker down")}
	n := NewNotifier(d, discardLogger())

	n.Notify(context.Background(), Notification{UserID: "u1", Type: TypeSuggestionCreated})
	n.Close()

	if len(d.got) != 1 {
		t.Fatalf("dispatched = %d, want 1", len(d.got))
	}
}

func TestNotifier_SkipsEmptyRecipientAndNilReceiver(t *testing.T) {
	d := &fakeDispatcher{}
	n := NewNotifier(d, discardLogger())
	n.Notify(context.Background(), Notification{Type: TypeSuggestionCreated})
	n.Close()
	if len(d.got) != 0 {
		t.Fatalf("dispatched = %d, want 0", len(d.got))
	}

	var nilNotifier *Notifier
	nilNotifier.Notify(context.Background(), Notification{UserID: "u1"})
	nilNotifier.Close()
	if got := nilNotifier.DisplayName(context.Background(), "u1"); got != "u1" {
		t.Fatalf("DisplayName = %q, want %q", got, "u1")
	}
}

func TestNotifier_DisplayNameFallsBackToID(t *testing.T) {
	n := NewNotifier(nil, discardLogger(), WithDirectory(fakeDirectory{names: map[string]string{"u1": "Ada Lovelace"}}))
	if got := n.DisplayName(context.Background(), "u1"); got != "Ada Lovelace" {
		t.Fatalf("DisplayName = %q, want %q", got, "Ada Lovelace")
	}
	if got := n.DisplayName(context.Background(), "u2"); got != "u2" {
		t.Fatalf("DisplayName = %q, want %q", got, "u2")
	}

	n = NewNotifier(nil, discardLogger(), WithDirectory(fakeDirectory{err: errors.New("db down")}))
	if got := n.DisplayName(context.Background(), "u1"); got != "u1" {
		t.Fatalf("DisplayName = %q, want %q", got, "u1")
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaDispatcher_WritesKeyedMessageWithHeaders(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	w := &fakeWriter{}
	d := &KafkaDispatcher{writer: w, topic: DefaultTopic}
	err := d.Dispatch(ctx, Notification{
		UserID:  "u1",
		Type:    TypeSuggestionAccepted,
		Title:   "Suggestion accepted",
		Message: "ok",
		Data:    map[string]any{"suggestion_id": "s1"},
	})
	if err != nil {
		t.Fatalf("Dispatch error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "u1" || msg.Topic != DefaultTopic {
		t.Fatalf("key/topic = %q/%q", msg.Key, msg.Topic)
	}

	carrier := &headerCarrier{headers: msg.Headers}
	if got := carrier.Get("event_type"); got != string(TypeSuggestionAccepted) {
		t.Fatalf("event_type = %q", got)
	}
	if carrier.Get("event_id") == "" {
		t.Fatalf("missing event_id header")
	}
	if got := carrier.Get("traceparent"); got != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" {
		t.Fatalf("traceparent = %q", got)
	}

	var decoded Notification
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload decode: %v", err)
	}
	if decoded.UserID != "u1" || decoded.Data["suggestion_id"] != "s1" {
		t.Fatalf("payload = %+v", decoded)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" a:9092, ,b:9092 ")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("SplitBrokers = %v", got)
	}
	if SplitBrokers("") != nil {
		t.Fatalf("SplitBrokers(\"\") should be nil")
	}
}
