package feed

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/swingdag/internal/contracts"
)

// BarRepository stores and streams bars in Postgres.
// ⭐ SSOT: 바 데이터 저장소는 여기서만
type BarRepository struct {
	pool *pgxpool.Pool
}

// NewBarRepository creates a new bar repository
func NewBarRepository(pool *pgxpool.Pool) *BarRepository {
	return &BarRepository{pool: pool}
}

// SaveBatch upserts bars for a stream in one transaction.
func (r *BarRepository) SaveBatch(ctx context.Context, stream contracts.Stream, bars []contracts.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	query := `
		INSERT INTO swing.bars (instrument, timeframe, bar_index, ts, open, high, low, close)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (instrument, timeframe, bar_index) DO UPDATE SET
			ts = EXCLUDED.ts,
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, stream.Instrument, stream.Timeframe, b.Index, b.Timestamp, b.Open, b.High, b.Low, b.Close)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert bars for %s: %w", stream.Key(), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Page returns up to limit bars with bar_index > after, ascending.
func (r *BarRepository) Page(ctx context.Context, stream contracts.Stream, after int64, limit int) ([]contracts.Bar, error) {
	query := `
		SELECT bar_index, ts, open, high, low, close
		FROM swing.bars
		WHERE instrument = $1 AND timeframe = $2 AND bar_index > $3
		ORDER BY bar_index ASC
		LIMIT $4
	`

	rows, err := r.pool.Query(ctx, query, stream.Instrument, stream.Timeframe, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bars := make([]contracts.Bar, 0, limit)
	for rows.Next() {
		var b contracts.Bar
		if err := rows.Scan(&b.Index, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, err
		}
		b.Timestamp = b.Timestamp.UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Source returns a BarSource that streams the stream's bars after the given index.
func (r *BarRepository) Source(stream contracts.Stream, after int64) *PostgresSource {
	return &PostgresSource{repo: r, stream: stream, after: after, pageSize: 5000}
}

// PostgresSource pages through swing.bars with keyset pagination.
type PostgresSource struct {
	repo     *BarRepository
	stream   contracts.Stream
	after    int64
	pageSize int

	buf  []contracts.Bar
	done bool
}

// Next implements contracts.BarSource.
func (s *PostgresSource) Next(ctx context.Context) (contracts.Bar, error) {
	if len(s.buf) == 0 {
		if s.done {
			return contracts.Bar{}, io.EOF
		}
		page, err := s.repo.Page(ctx, s.stream, s.after, s.pageSize)
		if err != nil {
			return contracts.Bar{}, fmt.Errorf("load bars after %d: %w", s.after, err)
		}
		if len(page) < s.pageSize {
			s.done = true
		}
		if len(page) == 0 {
			return contracts.Bar{}, io.EOF
		}
		s.buf = page
	}

	b := s.buf[0]
	s.buf = s.buf[1:]
	s.after = b.Index
	return b, nil
}
