package notifiers

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

type stubNotifier struct {
	id    string
	typ   string
	err   error
	calls int
}

func (s *stubNotifier) ID() string   { return s.id }
func (s *stubNotifier) Type() string { return s.typ }
func (s *stubNotifier) Notify(context.Context, Event) error {
	s.calls++
	return s.err
}

// closableNotifier is a stub with a shutdown hook.
type closableNotifier struct {
	stubNotifier
	closed   bool
	closeErr error
}

func (c *closableNotifier) Close() error {
	c.closed = true
	return c.closeErr
}

func TestFanoutNotifyAggregatesErrors(t *testing.T) {
	fanout := NewFanout([]Notifier{
		&stubNotifier{id: "ok", typ: "http"},
		&stubNotifier{id: "bad", typ: "http", err: errors.New("failed")},
	})

	count, err := fanout.Notify(context.Background(), Event{})
	if count != 1 {
		t.Fatalf("expected 1 success, got %d", count)
	}
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
}

func TestFanoutNotifyEmptyIsNoop(t *testing.T) {
	fanout := NewFanout(nil)
	count, err := fanout.Notify(context.Background(), Event{})
	if count != 0 || err != nil {
		t.Fatalf("expected noop, got count=%d err=%v", count, err)
	}
}

func TestFanoutCloseShutsDownClosableNotifiers(t *testing.T) {
	plain := &stubNotifier{id: "plain", typ: "http"}
	closable := &closableNotifier{stubNotifier: stubNotifier{id: "buffered", typ: "pubsub"}}
	failing := &closableNotifier{
		stubNotifier: stubNotifier{id: "broken", typ: "pubsub"},
		closeErr:     errors.New("connection reset"),
	}

	fanout := NewFanout([]Notifier{plain, closable, failing})
	err := fanout.Close()
	if err == nil {
		t.Fatalf("expected aggregated close error")
	}
	if !closable.closed || !failing.closed {
		t.Fatalf("all closable notifiers must be closed, got %v %v", closable.closed, failing.closed)
	}
}

func TestBuildAllWithDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	sinks, err := BuildAll(context.Background(), reg, []NotifierConfig{
		{ID: "hook", Type: TypeHTTP, HTTP: &HTTPNotifierConfig{URL: "https://example.com", Method: http.MethodPost, TimeoutSeconds: 2}},
	}, nil)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(sinks) != 1 {
		t.Fatalf("expected 1 notifier, got %d", len(sinks))
	}
}

func TestBuildAllFailsOnUnknownType(t *testing.T) {
	reg := DefaultRegistry()
	if _, err := BuildAll(context.Background(), reg, []NotifierConfig{{ID: "x", Type: "smoke-signal"}}, nil); err == nil {
		t.Fatalf("expected error for unregistered type")
	}
}
