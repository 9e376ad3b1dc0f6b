package deposit

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const migration = `
CREATE TABLE IF NOT EXISTS deposits (
    id                 UUID PRIMARY KEY,
    source_amount      BIGINT NOT NULL,
    dest_receiver      TEXT NOT NULL,
    source_sender      TEXT NOT NULL,
    swap_type          TEXT NOT NULL,
    min_output_amount  TEXT NOT NULL,
    pool_id            TEXT NOT NULL,
    dex_id             TEXT NOT NULL,
    secondary_receiver TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL,
    source_tx_id       TEXT,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS deposits_status_idx ON deposits (status);
`

// PostgresStore is the pgx-backed deposit record store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, migration); err != nil {
		return nil, fmt.Errorf("failed to run deposits migration: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, fields CreateFields) (string, error) {
	id := uuid.New().String()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO deposits (
			id, source_amount, dest_receiver, source_sender, swap_type,
			min_output_amount, pool_id, dex_id, secondary_receiver, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id,
		int64(fields.SourceAmountSats),
		fields.DestinationReceiver,
		fields.SourceSender,
		fields.SwapType,
		fields.MinOutputAmount,
		fields.PoolID,
		fields.DexID,
		fields.SecondaryReceiverAddress,
		StatusCreated,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert deposit: %w", err)
	}
	return id, nil
}

// UpdateStatus applies a created→terminal transition. Updating a record that
// already left created fails with ErrInvalidTransition.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status, txID *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE deposits
		SET status = $2, source_tx_id = COALESCE($3, source_tx_id), updated_at = now()
		WHERE id = $1 AND status = $4`,
		id, status, txID, StatusCreated,
	)
	if err != nil {
		return fmt.Errorf("failed to update deposit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, er := s.Get(ctx, id); er != nil {
			return er
		}
		return ErrInvalidTransition
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, error) {
	var rec Record
	err := s.pool.QueryRow(ctx, `
		SELECT id, source_amount, dest_receiver, source_sender, swap_type,
		       min_output_amount, pool_id, dex_id, secondary_receiver,
		       status, source_tx_id, created_at, updated_at
		FROM deposits WHERE id = $1`,
		id,
	).Scan(
		&rec.ID,
		&rec.SourceAmountSats,
		&rec.DestinationReceiver,
		&rec.SourceSender,
		&rec.SwapType,
		&rec.MinOutputAmount,
		&rec.PoolID,
		&rec.DexID,
		&rec.SecondaryReceiverAddress,
		&rec.Status,
		&rec.SourceTxID,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to query deposit: %w", err)
	}
	return rec, nil
}
