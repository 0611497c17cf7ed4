package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/notifyhub/mailqueue/internal/domain"
	"github.com/notifyhub/mailqueue/internal/ratelimiter"
	"github.com/notifyhub/mailqueue/internal/transport"
)

type transportFunc func(ctx context.Context, msg transport.Message) error

func (f transportFunc) Send(ctx context.Context, msg transport.Message) error { return f(ctx, msg) }

type failingWaiter struct{}

func (failingWaiter) Wait(context.Context) error { return errors.New("limiter closed") }

func TestWebhook_Send(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"accepted", http.StatusAccepted, false},
		{"ok", http.StatusOK, false},
		{"no content", http.StatusNoContent, false},
		{"server error", http.StatusInternalServerError, true},
		{"bad request", http.StatusBadRequest, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got transport.Message
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST, got %s", r.Method)
				}
				if ct := r.Header.Get("Content-Type"); ct != "application/json" {
					t.Errorf("unexpected content type %q", ct)
				}
				if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
					t.Errorf("decode: %v", err)
				}
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			msg := transport.Message{To: "a@example.com", Cc: "b@example.com", From: "c@example.com", Subject: "Hi", Body: "<p>x</p>"}
			err := transport.NewWebhook(srv.URL).Send(context.Background(), msg)
			if (err != nil) != tc.wantErr {
				t.Fatalf("wantErr=%v, got %v", tc.wantErr, err)
			}
			if got.To != msg.To || got.Cc != msg.Cc || got.Subject != msg.Subject || got.Body != msg.Body {
				t.Fatalf("unexpected payload %+v", got)
			}
		})
	}
}

func TestGuarded_TimeoutIsTransportError(t *testing.T) {
	slow := transportFunc(func(ctx context.Context, _ transport.Message) error {
		<-ctx.Done()
		return ctx.Err()
	})
	g := transport.NewGuarded(slow, nil, 10*time.Millisecond)

	err := g.Send(context.Background(), transport.Message{})
	var te *domain.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !te.Timeout {
		t.Fatalf("expected timeout flag, got %v", te)
	}
}

func TestGuarded_WrapsFailures(t *testing.T) {
	boom := errors.New("relay refused")
	g := transport.NewGuarded(transportFunc(func(context.Context, transport.Message) error { return boom }), nil, time.Second)

	err := g.Send(context.Background(), transport.Message{})
	var te *domain.TransportError
	if !errors.As(err, &te) || te.Timeout {
		t.Fatalf("expected non-timeout TransportError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatal("expected the cause to be preserved")
	}
}

func TestGuarded_LimiterFailureSkipsSend(t *testing.T) {
	called := false
	g := transport.NewGuarded(transportFunc(func(context.Context, transport.Message) error {
		called = true
		return nil
	}), failingWaiter{}, time.Second)

	err := g.Send(context.Background(), transport.Message{})
	var te *domain.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if called {
		t.Fatal("transport must not be invoked when the limiter fails")
	}
}

func TestGuarded_CancelledBeforeDelivery(t *testing.T) {
	tests := []struct {
		name    string
		limiter transport.Waiter
	}{
		{"no limiter", nil},
		{"limiter", ratelimiter.New(1)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			g := transport.NewGuarded(transportFunc(func(context.Context, transport.Message) error {
				called = true
				return nil
			}), tc.limiter, time.Second)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			err := g.Send(ctx, transport.Message{})
			if !errors.Is(err, transport.ErrAborted) || !errors.Is(err, context.Canceled) {
				t.Fatalf("expected ErrAborted wrapping context.Canceled, got %v", err)
			}
			var te *domain.TransportError
			if errors.As(err, &te) {
				t.Fatal("an aborted send is not a transport failure")
			}
			if called {
				t.Fatal("transport must not be invoked after cancellation")
			}
		})
	}
}

func TestGuarded_Success(t *testing.T) {
	g := transport.NewGuarded(transportFunc(func(context.Context, transport.Message) error { return nil }), nil, time.Second)
	if err := g.Send(context.Background(), transport.Message{}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
