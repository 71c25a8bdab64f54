package ledger

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/custodia-wallet/custodia/internal/asset"
)

const (
	defaultWalletName = "Unnamed"
	minPINLength      = 4
)

// AuthContext carries the credentials presented with a request. It is a
// policy hook: which operations require which credential is decided here,
// not proven cryptographically.
type AuthContext struct {
	// AdminToken is the shared secret for privileged operations such as
	// administrative credits.
	AdminToken string
	// PIN is the wallet credential for sender-scoped operations.
	PIN string
}

// Engine validates and executes ledger operations on top of the Store.
// Every operation is atomic with respect to concurrent callers: validation
// happens before any mutation, and mutations run inside a single locked
// scope.
type Engine struct {
	store      *Store
	assets     asset.Registry
	journal    Journal
	logger     *slog.Logger
	adminToken []byte
	now        func() time.Time
}

// NewEngine builds an engine. An empty adminToken leaves administrative
// credits unguarded (the demo default); journal may be a NopJournal.
func NewEngine(store *Store, assets asset.Registry, journal Journal, logger *slog.Logger, adminToken string) *Engine {
	if journal == nil {
		journal = NopJournal{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      store,
		assets:     assets,
		journal:    journal,
		logger:     logger,
		adminToken: []byte(adminToken),
		now:        time.Now,
	}
}

// Register creates a wallet with one deposit address per supported asset and
// zero balances. The optional PIN is stored as a bcrypt hash, never in the
// clear.
func (e *Engine) Register(ctx context.Context, name, pin string) (WalletView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultWalletName
	}

	var pinHash []byte
	if pin != "" {
		var err error
		pinHash, err = hashPIN(pin)
		if err != nil {
			return WalletView{}, err
		}
	}

	view, err := e.store.CreateWallet(name, pinHash, e.now().UTC())
	if err != nil {
		return WalletView{}, err
	}

	e.journalWallet(ctx, view)
	e.logger.Info("wallet registered", "wallet_id", view.ID, "name", view.Name)
	return view, nil
}

// Credit atomically increments the target's balance and appends a CREDIT
// record with the SYSTEM counterparty. Privileged when an admin token is
// configured.
func (e *Engine) Credit(ctx context.Context, identifier, assetSym string, amount decimal.Decimal, auth AuthContext) (BalanceSnapshot, error) {
	if !e.assets.Contains(assetSym) {
		return BalanceSnapshot{}, fmt.Errorf("%w: %s", ErrInvalidAsset, assetSym)
	}
	if !amount.IsPositive() {
		return BalanceSnapshot{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if err := e.requireAdmin(auth); err != nil {
		return BalanceSnapshot{}, err
	}

	id, err := e.store.Resolve(identifier)
	if err != nil {
		return BalanceSnapshot{}, err
	}

	var (
		snap BalanceSnapshot
		rec  TransactionRecord
	)
	err = e.store.WithLockedWallet(id, func(w *Wallet) error {
		w.Balances[assetSym] = w.Balances[assetSym].Add(amount)
		rec = w.append(KindCredit, assetSym, amount, SystemCounterparty, e.now().UTC())
		snap = w.balanceSnapshot()
		return nil
	})
	if err != nil {
		return BalanceSnapshot{}, err
	}

	e.journalRecord(ctx, id, rec)
	e.logger.Info("wallet credited", "wallet_id", id, "asset", assetSym, "amount", amount.String())
	return snap, nil
}

// Transfer debits the sender, credits the recipient and appends the paired
// SEND/RECEIVE records inside one locked-pair scope, so no observer ever
// sees a half-applied transfer.
func (e *Engine) Transfer(ctx context.Context, from, to, assetSym string, amount decimal.Decimal, auth AuthContext) (BalanceSnapshot, BalanceSnapshot, error) {
	if !e.assets.Contains(assetSym) {
		return BalanceSnapshot{}, BalanceSnapshot{}, fmt.Errorf("%w: %s", ErrInvalidAsset, assetSym)
	}
	if !amount.IsPositive() {
		return BalanceSnapshot{}, BalanceSnapshot{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	fromID, err := e.store.Resolve(from)
	if err != nil {
		return BalanceSnapshot{}, BalanceSnapshot{}, fmt.Errorf("%w: sender %s", ErrNotFound, from)
	}
	toID, err := e.store.Resolve(to)
	if err != nil {
		return BalanceSnapshot{}, BalanceSnapshot{}, fmt.Errorf("%w: recipient %s", ErrNotFound, to)
	}
	if fromID == toID {
		return BalanceSnapshot{}, BalanceSnapshot{}, ErrSameWallet
	}

	// The bcrypt comparison is deliberately outside the locked scope so
	// lock hold time stays bounded to the balance check and mutation.
	hash, err := e.credential(fromID)
	if err != nil {
		return BalanceSnapshot{}, BalanceSnapshot{}, err
	}
	if err := checkPIN(hash, auth.PIN); err != nil {
		return BalanceSnapshot{}, BalanceSnapshot{}, err
	}

	var (
		fromSnap, toSnap BalanceSnapshot
		sendRec, recvRec TransactionRecord
	)
	err = e.store.WithLockedPair(fromID, toID, func(sender, recipient *Wallet) error {
		if sender.Balances[assetSym].LessThan(amount) {
			return fmt.Errorf("%w: %s %s", ErrInsufficientFunds, assetSym, amount)
		}

		// Both records carry an identical timestamp; clamp against both
		// wallets' histories up front so the per-wallet clamp in append
		// cannot diverge.
		ts := e.now().UTC()
		if ts.Before(sender.lastTS) {
			ts = sender.lastTS
		}
		if ts.Before(recipient.lastTS) {
			ts = recipient.lastTS
		}

		sender.Balances[assetSym] = sender.Balances[assetSym].Sub(amount)
		recipient.Balances[assetSym] = recipient.Balances[assetSym].Add(amount)
		sendRec = sender.append(KindSend, assetSym, amount, recipient.ID, ts)
		recvRec = recipient.append(KindReceive, assetSym, amount, sender.ID, ts)
		fromSnap = sender.balanceSnapshot()
		toSnap = recipient.balanceSnapshot()
		return nil
	})
	if err != nil {
		return BalanceSnapshot{}, BalanceSnapshot{}, err
	}

	e.journalRecord(ctx, fromID, sendRec)
	e.journalRecord(ctx, toID, recvRec)
	e.logger.Info("transfer completed",
		"from_wallet", fromID, "to_wallet", toID,
		"asset", assetSym, "amount", amount.String())
	return fromSnap, toSnap, nil
}

// GetWallet resolves the identifier and returns a read-only snapshot.
func (e *Engine) GetWallet(ctx context.Context, identifier string) (WalletView, error) {
	id, err := e.store.Resolve(identifier)
	if err != nil {
		return WalletView{}, err
	}
	return e.store.Get(id)
}

// Resolve maps a wallet id or deposit address to its wallet id.
func (e *Engine) Resolve(ctx context.Context, identifier string) (string, error) {
	return e.store.Resolve(identifier)
}

// Rename changes the wallet's display label. Requires the wallet PIN when
// one is set.
func (e *Engine) Rename(ctx context.Context, identifier, newName string, auth AuthContext) (WalletView, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return WalletView{}, ErrInvalidName
	}

	id, err := e.store.Resolve(identifier)
	if err != nil {
		return WalletView{}, err
	}
	hash, err := e.credential(id)
	if err != nil {
		return WalletView{}, err
	}
	if err := checkPIN(hash, auth.PIN); err != nil {
		return WalletView{}, err
	}

	var view WalletView
	err = e.store.WithLockedWallet(id, func(w *Wallet) error {
		w.Name = newName
		view = w.view()
		return nil
	})
	if err != nil {
		return WalletView{}, err
	}

	e.journalWallet(ctx, view)
	return view, nil
}

// SetPIN installs a wallet credential where none exists. Replacing an
// existing PIN goes through ResetPIN so the old PIN is always proven.
func (e *Engine) SetPIN(ctx context.Context, identifier, pin string) error {
	if len(pin) < minPINLength {
		return ErrInvalidPIN
	}
	id, err := e.store.Resolve(identifier)
	if err != nil {
		return err
	}
	existing, err := e.credential(id)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: PIN already set", ErrUnauthorized)
	}

	hash, err := hashPIN(pin)
	if err != nil {
		return err
	}
	return e.store.WithLockedWallet(id, func(w *Wallet) error {
		w.PINHash = hash
		return nil
	})
}

// VerifyPIN reports whether the presented PIN matches the wallet credential.
// A wallet without a credential never verifies.
func (e *Engine) VerifyPIN(ctx context.Context, identifier, pin string) (bool, error) {
	id, err := e.store.Resolve(identifier)
	if err != nil {
		return false, err
	}
	hash, err := e.credential(id)
	if err != nil {
		return false, err
	}
	if len(hash) == 0 {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(pin)) == nil, nil
}

// ResetPIN replaces the wallet credential after proving the old one.
func (e *Engine) ResetPIN(ctx context.Context, identifier, oldPIN, newPIN string) error {
	if len(newPIN) < minPINLength {
		return ErrInvalidPIN
	}
	id, err := e.store.Resolve(identifier)
	if err != nil {
		return err
	}
	hash, err := e.credential(id)
	if err != nil {
		return err
	}
	if len(hash) == 0 {
		return fmt.Errorf("%w: no PIN set", ErrUnauthorized)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(oldPIN)) != nil {
		return fmt.Errorf("%w: old PIN incorrect", ErrUnauthorized)
	}

	newHash, err := hashPIN(newPIN)
	if err != nil {
		return err
	}
	return e.store.WithLockedWallet(id, func(w *Wallet) error {
		w.PINHash = newHash
		return nil
	})
}

// ListWallets returns abbreviated snapshots of every wallet.
func (e *Engine) ListWallets(ctx context.Context) []WalletSummary {
	return e.store.List()
}

func (e *Engine) requireAdmin(auth AuthContext) error {
	if len(e.adminToken) == 0 {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(auth.AdminToken), e.adminToken) != 1 {
		return fmt.Errorf("%w: admin token required", ErrUnauthorized)
	}
	return nil
}

// credential copies the wallet's PIN hash out of a short locked scope.
func (e *Engine) credential(id string) ([]byte, error) {
	var hash []byte
	err := e.store.WithLockedWallet(id, func(w *Wallet) error {
		if len(w.PINHash) > 0 {
			hash = append([]byte(nil), w.PINHash...)
		}
		return nil
	})
	return hash, err
}

func (e *Engine) journalWallet(ctx context.Context, view WalletView) {
	if err := e.journal.RecordWallet(ctx, view); err != nil {
		e.logger.Warn("journal wallet write failed", "wallet_id", view.ID, "error", err)
	}
}

func (e *Engine) journalRecord(ctx context.Context, walletID string, rec TransactionRecord) {
	if err := e.journal.RecordTransaction(ctx, walletID, rec); err != nil {
		e.logger.Warn("journal transaction write failed", "wallet_id", walletID, "error", err)
	}
}

func hashPIN(pin string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash PIN: %w", err)
	}
	return hash, nil
}

func checkPIN(hash []byte, pin string) error {
	if len(hash) == 0 {
		return nil
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(pin)) != nil {
		return fmt.Errorf("%w: invalid PIN", ErrUnauthorized)
	}
	return nil
}
