package eventbus

import (
	"context"
	"errors"

	"github.com/wonny/swingdag/internal/swing"
)

// Sink receives each bar's event batch, in order, for one session.
type Sink interface {
	Publish(ctx context.Context, sessionID string, events []swing.Event) error
}

// Envelope is the wire form of one event on external transports.
type Envelope struct {
	Session string      `json:"session"`
	Event   swing.Event `json:"event"`
}

// Fanout publishes to every sink and joins their errors.
// A failing sink does not stop the others.
type Fanout []Sink

// Publish implements Sink.
func (f Fanout) Publish(ctx context.Context, sessionID string, events []swing.Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Publish(ctx, sessionID, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
