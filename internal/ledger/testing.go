package ledger

import "github.com/shopspring/decimal"

// SeedBalance is a test helper that sets a wallet's balance for one asset
// directly, bypassing the engine's validation.
func SeedBalance(s *Store, walletID, assetSym string, amount decimal.Decimal) {
	_ = s.WithLockedWallet(walletID, func(w *Wallet) error {
		w.Balances[assetSym] = amount
		return nil
	})
}
