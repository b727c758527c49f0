package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wonny/swingdag/internal/swing"
	"github.com/wonny/swingdag/pkg/metrics"
)

// Snapshotter is anything that can produce a detector snapshot between bars.
type Snapshotter interface {
	ID() string
	Snapshot() (*swing.Snapshot, error)
}

// Manager writes checkpoints to the store and the cache and resumes from them.
// Either backend may be nil.
type Manager struct {
	store   Store
	cache   Cache
	metrics *metrics.Recorder
	base    zerolog.Logger
	log     zerolog.Logger
	now     func() time.Time
}

// NewManager creates a checkpoint manager.
func NewManager(store Store, cache Cache, rec *metrics.Recorder, log zerolog.Logger) *Manager {
	return &Manager{
		store:   store,
		cache:   cache,
		metrics: rec,
		base:    log,
		log:     log.With().Str("component", "checkpoint").Logger(),
		now:     time.Now,
	}
}

// Checkpoint snapshots a session and persists it.
func (m *Manager) Checkpoint(ctx context.Context, s Snapshotter) (Record, error) {
	snap, err := s.Snapshot()
	if err != nil {
		m.record(err)
		return Record{}, fmt.Errorf("snapshot %s: %w", s.ID(), err)
	}
	rec, err := m.Save(ctx, s.ID(), snap)
	m.record(err)
	return rec, err
}

// Save persists an already captured snapshot.
func (m *Manager) Save(ctx context.Context, sessionID string, snap *swing.Snapshot) (Record, error) {
	payload, err := snap.Marshal()
	if err != nil {
		return Record{}, fmt.Errorf("marshal snapshot: %w", err)
	}

	rec := Record{
		ID:            uuid.New(),
		SessionID:     sessionID,
		BarIndex:      lastBarIndex(snap),
		SchemaVersion: snap.SchemaVersion,
		Algorithm:     snap.AlgorithmVersion,
		ConfigHash:    snap.ConfigHash,
		CreatedAt:     m.now().UTC(),
	}

	if m.store != nil {
		if err := m.store.Save(ctx, rec, payload); err != nil {
			return Record{}, err
		}
	}
	if m.cache != nil {
		// the store is authoritative; a cache miss only costs a slower resume
		if err := m.cache.Put(ctx, sessionID, payload); err != nil {
			m.log.Warn().Err(err).Str("session", sessionID).Msg("checkpoint cache write failed")
		}
	}

	m.log.Debug().
		Str("session", sessionID).
		Str("checkpoint", rec.ID.String()).
		Int64("bar", rec.BarIndex).
		Int("bytes", len(payload)).
		Msg("checkpoint saved")
	return rec, nil
}

// Load returns the newest snapshot for a session, cache first.
func (m *Manager) Load(ctx context.Context, sessionID string) (*swing.Snapshot, error) {
	if m.cache != nil {
		payload, found, err := m.cache.Get(ctx, sessionID)
		switch {
		case err != nil:
			m.log.Warn().Err(err).Str("session", sessionID).Msg("checkpoint cache read failed")
		case found:
			snap, err := swing.UnmarshalSnapshot(payload)
			if err == nil {
				return snap, nil
			}
			m.log.Warn().Err(err).Str("session", sessionID).Msg("cached checkpoint unreadable, falling back to store")
		}
	}

	if m.store == nil {
		return nil, ErrNotFound
	}
	_, payload, err := m.store.Latest(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return swing.UnmarshalSnapshot(payload)
}

// Resume restores a detector for the session under cfg.
//
// ErrNotFound means there is nothing to resume from. An error wrapping
// swing.ErrStaleSnapshot means the checkpoint was taken under another config
// or algorithm and the caller should rebuild from bar history.
func (m *Manager) Resume(ctx context.Context, sessionID string, cfg swing.Config) (*swing.Detector, error) {
	snap, err := m.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := snap.CheckCompatible(cfg); err != nil {
		m.log.Warn().Err(err).Str("session", sessionID).Msg("checkpoint is stale, rebuild required")
		return nil, err
	}

	det, err := swing.Restore(snap, m.base)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", sessionID, err)
	}
	m.log.Info().
		Str("session", sessionID).
		Int64("bars", det.BarsProcessed()).
		Uint64("last_event_seq", det.LastEventSeq()).
		Msg("session resumed from checkpoint")
	return det, nil
}

// IsRebuildRequired reports whether a Resume error means "replay from scratch".
func IsRebuildRequired(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, swing.ErrStaleSnapshot) ||
		errors.Is(err, swing.ErrUnsupportedSnapshot)
}

func (m *Manager) record(err error) {
	if m.metrics != nil {
		m.metrics.RecordCheckpoint(err)
	}
}

func lastBarIndex(snap *swing.Snapshot) int64 {
	if snap.PrevBar == nil {
		return -1
	}
	return snap.PrevBar.Index
}
