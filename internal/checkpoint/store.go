package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/swingdag/pkg/redis"
)

// ErrNotFound means no checkpoint exists for the session.
var ErrNotFound = errors.New("checkpoint not found")

// Record describes one stored checkpoint row.
type Record struct {
	ID            uuid.UUID `json:"id"`
	SessionID     string    `json:"session_id"`
	BarIndex      int64     `json:"bar_index"`
	SchemaVersion int       `json:"schema_version"`
	Algorithm     string    `json:"algorithm"`
	ConfigHash    string    `json:"config_hash"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store is the durable checkpoint backend.
type Store interface {
	Save(ctx context.Context, rec Record, payload []byte) error
	Latest(ctx context.Context, sessionID string) (Record, []byte, error)
}

// Cache holds the latest payload per session for fast resume.
type Cache interface {
	Put(ctx context.Context, sessionID string, payload []byte) error
	Get(ctx context.Context, sessionID string) ([]byte, bool, error)
}

// Repository stores checkpoints in swing.checkpoints.
// ⭐ SSOT: 체크포인트 저장소는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new checkpoint repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save inserts one checkpoint row.
func (r *Repository) Save(ctx context.Context, rec Record, payload []byte) error {
	query := `
		INSERT INTO swing.checkpoints
			(id, session_id, bar_index, schema_version, algorithm, config_hash, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.SessionID, rec.BarIndex, rec.SchemaVersion,
		rec.Algorithm, rec.ConfigHash, payload, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint for %s: %w", rec.SessionID, err)
	}
	return nil
}

// Latest returns the most advanced checkpoint of a session.
func (r *Repository) Latest(ctx context.Context, sessionID string) (Record, []byte, error) {
	query := `
		SELECT id, session_id, bar_index, schema_version, algorithm, config_hash, payload, created_at
		FROM swing.checkpoints
		WHERE session_id = $1
		ORDER BY bar_index DESC, created_at DESC
		LIMIT 1
	`

	var rec Record
	var payload []byte
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&rec.ID, &rec.SessionID, &rec.BarIndex, &rec.SchemaVersion,
		&rec.Algorithm, &rec.ConfigHash, &payload, &rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, nil, ErrNotFound
	}
	if err != nil {
		return Record{}, nil, fmt.Errorf("load checkpoint for %s: %w", sessionID, err)
	}
	return rec, payload, nil
}

// Prune deletes all but the newest keep checkpoints of a session.
func (r *Repository) Prune(ctx context.Context, sessionID string, keep int) (int64, error) {
	query := `
		DELETE FROM swing.checkpoints
		WHERE session_id = $1 AND id NOT IN (
			SELECT id FROM swing.checkpoints
			WHERE session_id = $1
			ORDER BY bar_index DESC, created_at DESC
			LIMIT $2
		)
	`
	tag, err := r.pool.Exec(ctx, query, sessionID, keep)
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints for %s: %w", sessionID, err)
	}
	return tag.RowsAffected(), nil
}

// RedisCache keeps the latest snapshot payload under snapshot:latest:<session>.
type RedisCache struct {
	cache *redis.Cache
	ttl   time.Duration
}

// NewRedisCache wraps a redis cache helper.
func NewRedisCache(cache *redis.Cache, ttl time.Duration) *RedisCache {
	return &RedisCache{cache: cache, ttl: ttl}
}

// Put implements Cache.
func (c *RedisCache) Put(ctx context.Context, sessionID string, payload []byte) error {
	return c.cache.SetBytes(ctx, redis.SnapshotKey(sessionID), payload, c.ttl)
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, sessionID string) ([]byte, bool, error) {
	return c.cache.GetBytes(ctx, redis.SnapshotKey(sessionID))
}
