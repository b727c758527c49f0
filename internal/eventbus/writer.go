package eventbus

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/wonny/swingdag/internal/swing"
)

// WriterSink writes one JSON envelope per line, e.g. to stdout.
type WriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewWriterSink creates a JSON-lines sink over w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{enc: json.NewEncoder(w)}
}

// Publish implements Sink.
func (s *WriterSink) Publish(_ context.Context, sessionID string, events []swing.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		if err := s.enc.Encode(Envelope{Session: sessionID, Event: e}); err != nil {
			return err
		}
	}
	return nil
}
