package ledger

import "context"

// Journal is the pluggable persistence hook behind the in-memory store. It
// mirrors committed wallets and transaction records to a durable backend.
// Writes happen outside the locked scopes and are best-effort: a journal
// failure is logged and surfaced operationally, it never rolls back
// committed in-memory state.
type Journal interface {
	RecordWallet(ctx context.Context, view WalletView) error
	RecordTransaction(ctx context.Context, walletID string, rec TransactionRecord) error
}

// NopJournal discards all writes. Used when no database is configured and
// in tests.
type NopJournal struct{}

func (NopJournal) RecordWallet(context.Context, WalletView) error { return nil }

func (NopJournal) RecordTransaction(context.Context, string, TransactionRecord) error { return nil }
