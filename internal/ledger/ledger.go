package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound occurs when an identifier resolves to no wallet.
	ErrNotFound = errors.New("wallet not found")

	// ErrInvalidAsset indicates the symbol is not in the supported asset set.
	ErrInvalidAsset = errors.New("unknown asset symbol")

	// ErrInvalidAmount indicates a non-positive or unparseable amount.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientFunds occurs when the sender lacks available balance
	// to cover a requested transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSameWallet indicates sender and recipient resolve to one wallet.
	ErrSameWallet = errors.New("sender and recipient are the same wallet")

	// ErrUnauthorized indicates a failed credential or admin-token check.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidPIN indicates a malformed wallet PIN (too short).
	ErrInvalidPIN = errors.New("PIN must be at least 4 characters")

	// ErrInvalidName indicates an empty or unusable wallet name.
	ErrInvalidName = errors.New("invalid wallet name")

	// ErrStorageUnavailable covers backing store and identifier generator
	// failures. Surfaced as a distinct fatal category, never masked as
	// ErrNotFound.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ErrorKind maps an engine error to its stable machine-readable kind.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidAsset):
		return "invalid_asset"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrSameWallet):
		return "same_wallet"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidPIN):
		return "invalid_pin"
	case errors.Is(err, ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}

// Kind classifies a transaction record.
type Kind string

const (
	// KindCredit is an administrative credit from outside the ledger.
	KindCredit Kind = "CREDIT"
	// KindSend is the debit side of a transfer.
	KindSend Kind = "SEND"
	// KindReceive is the credit side of a transfer.
	KindReceive Kind = "RECEIVE"
)

// SystemCounterparty marks records whose counterparty is the service itself
// rather than another wallet.
const SystemCounterparty = "SYSTEM"

// TransactionRecord is one immutable entry in a wallet's append-only history.
// Seq increases by one per record on its wallet; Timestamp never decreases
// within a wallet even under clock skew.
type TransactionRecord struct {
	Kind         Kind            `json:"type"`
	Asset        string          `json:"asset"`
	Amount       decimal.Decimal `json:"amount"`
	Counterparty string          `json:"counterparty"`
	Timestamp    time.Time       `json:"time"`
	Seq          uint64          `json:"seq"`
}

// Wallet is the canonical mutable state for one account. Instances are owned
// exclusively by the Store; all access outside this package goes through
// snapshots.
type Wallet struct {
	ID           string
	Name         string
	Addresses    map[string]string
	Balances     map[string]decimal.Decimal
	Transactions []TransactionRecord
	PINHash      []byte
	CreatedAt    time.Time

	seq    uint64
	lastTS time.Time
}

// append commits one record to the wallet's history, clamping the timestamp
// so per-wallet order is non-decreasing.
func (w *Wallet) append(kind Kind, assetSym string, amount decimal.Decimal, counterparty string, ts time.Time) TransactionRecord {
	if ts.Before(w.lastTS) {
		ts = w.lastTS
	}
	w.lastTS = ts
	w.seq++
	rec := TransactionRecord{
		Kind:         kind,
		Asset:        assetSym,
		Amount:       amount,
		Counterparty: counterparty,
		Timestamp:    ts,
		Seq:          w.seq,
	}
	w.Transactions = append(w.Transactions, rec)
	return rec
}

// WalletView is a read-only projection of a wallet, safe to hand to
// transport layers. Maps and slices are deep copies.
type WalletView struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Addresses    map[string]string          `json:"addresses"`
	Balances     map[string]decimal.Decimal `json:"balances"`
	Transactions []TransactionRecord        `json:"transactions"`
	CreatedAt    time.Time                  `json:"created_at"`
	HasPIN       bool                       `json:"has_pin"`
}

// BalanceSnapshot captures a wallet's balances at the moment an operation
// committed.
type BalanceSnapshot struct {
	ID       string                     `json:"id"`
	Balances map[string]decimal.Decimal `json:"balances"`
}

// WalletSummary is the abbreviated listing shape for administrative views.
type WalletSummary struct {
	ID        string                     `json:"id"`
	Name      string                     `json:"name"`
	Addresses map[string]string          `json:"addresses"`
	Balances  map[string]decimal.Decimal `json:"balances"`
}

func cloneAddresses(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneBalances(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (w *Wallet) view() WalletView {
	txs := make([]TransactionRecord, len(w.Transactions))
	copy(txs, w.Transactions)
	return WalletView{
		ID:           w.ID,
		Name:         w.Name,
		Addresses:    cloneAddresses(w.Addresses),
		Balances:     cloneBalances(w.Balances),
		Transactions: txs,
		CreatedAt:    w.CreatedAt,
		HasPIN:       len(w.PINHash) > 0,
	}
}

func (w *Wallet) balanceSnapshot() BalanceSnapshot {
	return BalanceSnapshot{ID: w.ID, Balances: cloneBalances(w.Balances)}
}

func (w *Wallet) summary() WalletSummary {
	return WalletSummary{
		ID:        w.ID,
		Name:      w.Name,
		Addresses: cloneAddresses(w.Addresses),
		Balances:  cloneBalances(w.Balances),
	}
}
