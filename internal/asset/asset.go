package asset

import "strings"

// DefaultSymbols is the asset set used when none is configured.
var DefaultSymbols = []string{"BTC", "ETH", "USDT", "SOL", "BNB", "DOGE", "LTC", "USDC"}

// Registry holds the fixed, process-wide set of supported asset symbols.
// Wallet creation allocates one deposit address per symbol and every
// credit/transfer validates against the same set.
type Registry struct {
	symbols []string
	index   map[string]struct{}
}

// NewRegistry builds a registry from the provided symbols, preserving order
// and dropping duplicates and empty entries. Symbols are upper-cased.
func NewRegistry(symbols []string) Registry {
	r := Registry{index: make(map[string]struct{}, len(symbols))}
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if _, dup := r.index[sym]; dup {
			continue
		}
		r.index[sym] = struct{}{}
		r.symbols = append(r.symbols, sym)
	}
	return r
}

// Default returns a registry over DefaultSymbols.
func Default() Registry {
	return NewRegistry(DefaultSymbols)
}

// Contains reports whether the symbol is a supported asset.
func (r Registry) Contains(symbol string) bool {
	_, ok := r.index[symbol]
	return ok
}

// Symbols returns the supported symbols in registration order.
func (r Registry) Symbols() []string {
	out := make([]string, len(r.symbols))
	copy(out, r.symbols)
	return out
}

// Len returns the number of supported assets.
func (r Registry) Len() int {
	return len(r.symbols)
}
