// Package postgres is the durable events.Store driver.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veilbid/veilbid-client/internal/events"
)

var ErrInvalidConfig = errors.New("events/postgres: invalid config")

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrInvalidConfig)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	_, err := s.pool.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("events/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, rec events.Record) (bool, error) {
	if s == nil || s.pool == nil {
		return false, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if rec.TxHash == "" || rec.Kind == "" || rec.Subject == "" {
		return false, fmt.Errorf("%w: record key fields are required", events.ErrDecode)
	}
	if rec.BlockNumber > math.MaxInt64 || rec.CommitEnd > math.MaxInt64 || rec.RevealEnd > math.MaxInt64 {
		return false, fmt.Errorf("%w: value exceeds bigint", events.ErrDecode)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO auction_events (
			tx_hash,
			kind,
			subject,
			amount,
			commit_end,
			reveal_end,
			block_number
		) VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,0),NULLIF($6,0),$7)
		ON CONFLICT (tx_hash, kind, subject) DO NOTHING
	`, rec.TxHash, string(rec.Kind), rec.Subject, rec.Amount, int64(rec.CommitEnd), int64(rec.RevealEnd), int64(rec.BlockNumber))
	if err != nil {
		return false, fmt.Errorf("events/postgres: insert: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	existing, err := s.get(ctx, rec.TxHash, rec.Kind, rec.Subject)
	if err != nil {
		return false, err
	}
	if existing != rec {
		return false, events.ErrMismatch
	}
	return false, nil
}

func (s *Store) get(ctx context.Context, txHash string, kind events.Kind, subject string) (events.Record, error) {
	var (
		amount      *string
		commitEnd   *int64
		revealEnd   *int64
		blockNumber int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT amount, commit_end, reveal_end, block_number
		FROM auction_events
		WHERE tx_hash = $1 AND kind = $2 AND subject = $3
	`, txHash, string(kind), subject).Scan(&amount, &commitEnd, &revealEnd, &blockNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return events.Record{}, fmt.Errorf("events/postgres: record vanished after conflict")
		}
		return events.Record{}, fmt.Errorf("events/postgres: get: %w", err)
	}
	if blockNumber < 0 {
		return events.Record{}, fmt.Errorf("events/postgres: negative block number in db")
	}

	rec := events.Record{
		TxHash:      txHash,
		Kind:        kind,
		Subject:     subject,
		BlockNumber: uint64(blockNumber),
	}
	if amount != nil {
		rec.Amount = *amount
	}
	if commitEnd != nil && *commitEnd >= 0 {
		rec.CommitEnd = uint64(*commitEnd)
	}
	if revealEnd != nil && *revealEnd >= 0 {
		rec.RevealEnd = uint64(*revealEnd)
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, limit int) ([]events.Record, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT tx_hash, kind, subject, amount, commit_end, reveal_end, block_number
		FROM auction_events
		ORDER BY block_number ASC, kind ASC, subject ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("events/postgres: list: %w", err)
	}
	defer rows.Close()

	out := make([]events.Record, 0, limit)
	for rows.Next() {
		var (
			txHash      string
			kind        string
			subject     string
			amount      *string
			commitEnd   *int64
			revealEnd   *int64
			blockNumber int64
		)
		if err := rows.Scan(&txHash, &kind, &subject, &amount, &commitEnd, &revealEnd, &blockNumber); err != nil {
			return nil, fmt.Errorf("events/postgres: scan list row: %w", err)
		}
		rec := events.Record{
			TxHash:      txHash,
			Kind:        events.Kind(kind),
			Subject:     subject,
			BlockNumber: uint64(blockNumber),
		}
		if amount != nil {
			rec.Amount = *amount
		}
		if commitEnd != nil && *commitEnd >= 0 {
			rec.CommitEnd = uint64(*commitEnd)
		}
		if revealEnd != nil && *revealEnd >= 0 {
			rec.RevealEnd = uint64(*revealEnd)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events/postgres: list rows: %w", err)
	}
	return out, nil
}

func (s *Store) Cursor(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.pool == nil {
		return 0, false, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	var block int64
	err := s.pool.QueryRow(ctx, `SELECT block_number FROM indexer_cursor WHERE id = 1`).Scan(&block)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("events/postgres: cursor: %w", err)
	}
	if block < 0 {
		return 0, false, fmt.Errorf("events/postgres: negative cursor in db")
	}
	return uint64(block), true, nil
}

func (s *Store) SetCursor(ctx context.Context, block uint64) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if block > math.MaxInt64 {
		return fmt.Errorf("events/postgres: cursor exceeds bigint")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_cursor (id, block_number, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET block_number = EXCLUDED.block_number, updated_at = now()
	`, int64(block))
	if err != nil {
		return fmt.Errorf("events/postgres: set cursor: %w", err)
	}
	return nil
}

var _ events.Store = (*Store)(nil)
