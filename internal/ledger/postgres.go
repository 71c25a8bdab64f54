package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresJournal mirrors committed wallet state into PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE wallets (
//	    id         TEXT PRIMARY KEY,
//	    name       TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE TABLE wallet_addresses (
//	    address   TEXT PRIMARY KEY,
//	    wallet_id TEXT NOT NULL REFERENCES wallets (id),
//	    asset     TEXT NOT NULL
//	);
//	CREATE TABLE wallet_transactions (
//	    id           UUID PRIMARY KEY,
//	    wallet_id    TEXT NOT NULL REFERENCES wallets (id),
//	    seq          BIGINT NOT NULL,
//	    kind         TEXT NOT NULL,
//	    asset        TEXT NOT NULL,
//	    amount       NUMERIC NOT NULL,
//	    counterparty TEXT NOT NULL,
//	    recorded_at  TIMESTAMPTZ NOT NULL,
//	    UNIQUE (wallet_id, seq)
//	);
type PostgresJournal struct {
	db *pgxpool.Pool
}

// NewPostgresJournal constructs a Postgres-backed journal.
func NewPostgresJournal(db *pgxpool.Pool) *PostgresJournal {
	return &PostgresJournal{db: db}
}

// RecordWallet upserts the wallet row and its address index entries in one
// transaction.
func (j *PostgresJournal) RecordWallet(ctx context.Context, view WalletView) error {
	tx, err := j.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `INSERT INTO wallets (id, name, created_at) VALUES ($1, $2, $3)
        ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, view.ID, view.Name, view.CreatedAt); err != nil {
		return fmt.Errorf("%w: upsert wallet: %v", ErrStorageUnavailable, err)
	}

	for sym, addr := range view.Addresses {
		if _, err := tx.Exec(ctx, `INSERT INTO wallet_addresses (address, wallet_id, asset) VALUES ($1, $2, $3)
            ON CONFLICT (address) DO NOTHING`, addr, view.ID, sym); err != nil {
			return fmt.Errorf("%w: insert address: %v", ErrStorageUnavailable, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// RecordTransaction appends one history record. The (wallet_id, seq) unique
// constraint makes replays after a retried flush harmless.
func (j *PostgresJournal) RecordTransaction(ctx context.Context, walletID string, rec TransactionRecord) error {
	_, err := j.db.Exec(ctx, `INSERT INTO wallet_transactions
        (id, wallet_id, seq, kind, asset, amount, counterparty, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (wallet_id, seq) DO NOTHING`,
		uuid.New(), walletID, rec.Seq, string(rec.Kind), rec.Asset, rec.Amount.String(), rec.Counterparty, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: insert transaction: %v", ErrStorageUnavailable, err)
	}
	return nil
}
