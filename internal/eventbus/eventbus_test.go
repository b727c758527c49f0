package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/swingdag/internal/swing"
	"github.com/wonny/swingdag/pkg/config"
)

func events(from, to uint64) []swing.Event {
	var out []swing.Event
	for s := from; s <= to; s++ {
		out = append(out, swing.Event{Seq: s, BarIndex: int64(s), Type: swing.EventLegCreated, LegID: "bull-0-0"})
	}
	return out
}

func TestMemorySink_Since(t *testing.T) {
	m := NewMemorySink(5)
	ctx := context.Background()

	require.NoError(t, m.Publish(ctx, "s1", events(1, 3)))
	require.NoError(t, m.Publish(ctx, "s1", events(4, 7)))
	require.NoError(t, m.Publish(ctx, "s2", events(1, 1)))

	assert.Equal(t, 5, m.Len("s1"))
	assert.Equal(t, uint64(3), m.Oldest("s1"))

	got := m.Since("s1", 4, 0)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(5), got[0].Seq)

	got = m.Since("s1", 0, 2)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].Seq)

	assert.Empty(t, m.Since("unknown", 0, 0))
	assert.Len(t, m.Since("s2", 0, 0), 1)
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaSink_Publish(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink(w, "swing.leg-events", zerolog.Nop())

	require.NoError(t, sink.Publish(context.Background(), "ES:1m", events(1, 2)))
	require.NoError(t, sink.Publish(context.Background(), "ES:1m", nil))

	require.Len(t, w.msgs, 2)
	for i, msg := range w.msgs {
		assert.Equal(t, []byte("ES:1m"), msg.Key)
		var env Envelope
		require.NoError(t, json.Unmarshal(msg.Value, &env))
		assert.Equal(t, "ES:1m", env.Session)
		assert.Equal(t, uint64(i+1), env.Event.Seq)
		assert.Equal(t, "leg_created", string(msg.Headers[0].Value))
	}
}

func TestKafkaSink_Error(t *testing.T) {
	sink := newKafkaSink(&fakeWriter{err: errors.New("broker down")}, "t", zerolog.Nop())
	err := sink.Publish(context.Background(), "s", events(1, 1))
	assert.ErrorContains(t, err, "broker down")
}

func TestNewKafkaSink_Validation(t *testing.T) {
	_, err := NewKafkaSink(config.KafkaConfig{Topic: "t"}, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewKafkaSink(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, zerolog.Nop())
	assert.Error(t, err)
}

type failingSink struct{}

func (failingSink) Publish(context.Context, string, []swing.Event) error { return errors.New("nope") }

func TestFanout(t *testing.T) {
	m := NewMemorySink(10)
	err := Fanout{failingSink{}, m}.Publish(context.Background(), "s", events(1, 2))
	assert.Error(t, err)
	assert.Equal(t, 2, m.Len("s"), "later sinks still receive the batch")
}

type countingObserver struct {
	mu        sync.Mutex
	connected int
}

func (o *countingObserver) ClientConnected() {
	o.mu.Lock()
	o.connected++
	o.mu.Unlock()
}

func (o *countingObserver) ClientDisconnected() {
	o.mu.Lock()
	o.connected--
	o.mu.Unlock()
}

func TestHub_StreamsBatches(t *testing.T) {
	obs := &countingObserver{}
	hub := NewHub(zerolog.Nop(), obs)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "ES:1m")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers("ES:1m") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), "other", events(1, 1)))
	require.NoError(t, hub.Publish(context.Background(), "ES:1m", events(1, 3)))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var got []swing.Event
	require.NoError(t, json.Unmarshal(frame, &got))
	require.Len(t, got, 3)
	assert.Equal(t, uint64(3), got[2].Seq)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers("ES:1m") == 0 }, 2*time.Second, 10*time.Millisecond)
	obs.mu.Lock()
	assert.Equal(t, 0, obs.connected)
	obs.mu.Unlock()
}

func TestWriterSink(t *testing.T) {
	var buf strings.Builder
	sink := NewWriterSink(&buf)
	require.NoError(t, sink.Publish(context.Background(), "s", events(1, 2)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &env))
	assert.Equal(t, uint64(2), env.Event.Seq)
	assert.Equal(t, "s", env.Session)
}
