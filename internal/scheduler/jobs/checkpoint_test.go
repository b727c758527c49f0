package jobs

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/swingdag/internal/checkpoint"
	"github.com/wonny/swingdag/internal/contracts"
	"github.com/wonny/swingdag/internal/session"
	"github.com/wonny/swingdag/internal/swing"
	"github.com/wonny/swingdag/pkg/logger"
)

type recordingStore struct {
	mu     sync.Mutex
	saved  []checkpoint.Record
	pruned map[string]int
}

func (r *recordingStore) Save(_ context.Context, rec checkpoint.Record, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, rec)
	return nil
}

func (r *recordingStore) Latest(context.Context, string) (checkpoint.Record, []byte, error) {
	return checkpoint.Record{}, nil, checkpoint.ErrNotFound
}

func (r *recordingStore) Prune(_ context.Context, id string, keep int) (int64, error) {
	if r.pruned == nil {
		r.pruned = map[string]int{}
	}
	r.pruned[id] = keep
	return 1, nil
}

func liveSession(t *testing.T, id string) *session.Session {
	t.Helper()
	det, err := swing.New(swing.DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	s, err := session.New(session.Options{ID: id, Detector: det, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = s.ProcessBar(context.Background(), contracts.Bar{
		Index: 0, Timestamp: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		Open: 10, High: 11, Low: 9, Close: 10.5,
	})
	require.NoError(t, err)
	return s
}

func TestCheckpointJob_Run(t *testing.T) {
	sessions := session.NewManager()
	require.NoError(t, sessions.Add(liveSession(t, "a")))
	require.NoError(t, sessions.Add(liveSession(t, "b")))

	halted := liveSession(t, "c")
	_, err := halted.ProcessBar(context.Background(), contracts.Bar{Index: 1, Timestamp: time.Now(), Open: math.Inf(1)})
	require.Error(t, err)
	require.NoError(t, sessions.Add(halted))

	store := &recordingStore{}
	job := NewCheckpointJob(sessions, checkpoint.NewManager(store, nil, nil, zerolog.Nop()), "@every 1m", logger.Nop())

	assert.Equal(t, "checkpoint", job.Name())
	assert.Equal(t, "@every 1m", job.Schedule())
	require.NoError(t, job.Run(context.Background()))

	require.Len(t, store.saved, 2)
	assert.Equal(t, "a", store.saved[0].SessionID)
	assert.Equal(t, "b", store.saved[1].SessionID)
	assert.Equal(t, int64(0), store.saved[0].BarIndex)
}

func TestCheckpointPruneJob_Run(t *testing.T) {
	sessions := session.NewManager()
	require.NoError(t, sessions.Add(liveSession(t, "a")))

	store := &recordingStore{}
	job := NewCheckpointPruneJob(sessions, store, 0, logger.Nop())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, map[string]int{"a": 1}, store.pruned)
}
