package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notifyhub/mailqueue/internal/domain"
)

// Message is the payload handed to a Transport for one queue record.
type Message struct {
	RecordID int64             `json:"recordId,omitempty"`
	Type     string            `json:"type,omitempty"`
	From     string            `json:"from"`
	To       string            `json:"to"`
	Cc       string            `json:"cc,omitempty"`
	Subject  string            `json:"subject"`
	Body     string            `json:"body"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// FromRecord builds the outbound message for r.
func FromRecord(r *domain.QueueRecord) Message {
	return Message{
		RecordID: r.ID,
		Type:     r.Type,
		From:     r.From,
		To:       r.To,
		Cc:       r.Cc,
		Subject:  r.Subject,
		Body:     r.Body,
		Meta:     r.Meta,
	}
}

// Transport delivers a message. Implementations must honour ctx cancellation;
// any returned error marks the attempt as failed.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// ErrAborted is returned by Guarded when the caller's context ended before the
// message was handed to the underlying transport. Nothing was sent.
var ErrAborted = errors.New("send aborted before delivery")

// Waiter is satisfied by ratelimiter.Limiter.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Guarded wraps a Transport with send pacing and a per-call timeout, and
// normalises every delivery failure into a *domain.TransportError. A send
// abandoned before delivery returns ErrAborted instead.
type Guarded struct {
	next    Transport
	limiter Waiter
	timeout time.Duration
}

// NewGuarded returns a Guarded transport. limiter may be nil and a timeout of
// zero disables the deadline.
func NewGuarded(next Transport, limiter Waiter, timeout time.Duration) *Guarded {
	return &Guarded{next: next, limiter: limiter, timeout: timeout}
}

func (g *Guarded) Send(ctx context.Context, msg Message) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
			}
			return &domain.TransportError{Err: fmt.Errorf("rate limiter: %w", err)}
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAborted, err)
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	err := g.next.Send(ctx, msg)
	if err == nil {
		return nil
	}
	var te *domain.TransportError
	if errors.As(err, &te) {
		return err
	}
	return &domain.TransportError{
		Err:     err,
		Timeout: errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded),
	}
}

var _ Transport = (*Guarded)(nil)
