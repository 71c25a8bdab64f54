package ledger

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/custodia-wallet/custodia/internal/address"
	"github.com/custodia-wallet/custodia/internal/asset"
)

// Store is the sole owner of wallet state. It maintains the wallet-id map
// and the address index, and hands out scoped locked access so balances and
// histories only ever change through it.
type Store struct {
	gen    *address.Generator
	assets asset.Registry

	mu      sync.RWMutex
	wallets map[string]*walletRecord
	index   map[string]string // deposit address -> wallet id
}

type walletRecord struct {
	mu sync.Mutex
	w  *Wallet
}

// NewStore builds an empty store over the given generator and asset set.
func NewStore(gen *address.Generator, assets asset.Registry) *Store {
	return &Store{
		gen:     gen,
		assets:  assets,
		wallets: make(map[string]*walletRecord),
		index:   make(map[string]string),
	}
}

// CreateWallet allocates a wallet id plus one deposit address per supported
// asset, all checked for uniqueness against both identifier spaces, and
// registers everything atomically. No partially created wallet is ever
// visible to concurrent readers.
func (s *Store) CreateWallet(name string, pinHash []byte, now time.Time) (WalletView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make(map[string]struct{})
	taken := func(id string) bool {
		if _, ok := s.wallets[id]; ok {
			return true
		}
		if _, ok := s.index[id]; ok {
			return true
		}
		_, ok := fresh[id]
		return ok
	}

	walletID, err := s.gen.Generate(taken)
	if err != nil {
		return WalletView{}, fmt.Errorf("%w: allocate wallet id: %v", ErrStorageUnavailable, err)
	}
	fresh[walletID] = struct{}{}

	addresses := make(map[string]string, s.assets.Len())
	balances := make(map[string]decimal.Decimal, s.assets.Len())
	for _, sym := range s.assets.Symbols() {
		addr, err := s.gen.Generate(taken)
		if err != nil {
			return WalletView{}, fmt.Errorf("%w: allocate %s address: %v", ErrStorageUnavailable, sym, err)
		}
		fresh[addr] = struct{}{}
		addresses[sym] = addr
		balances[sym] = decimal.Zero
	}

	w := &Wallet{
		ID:        walletID,
		Name:      name,
		Addresses: addresses,
		Balances:  balances,
		PINHash:   pinHash,
		CreatedAt: now,
	}

	s.wallets[walletID] = &walletRecord{w: w}
	for _, addr := range addresses {
		s.index[addr] = walletID
	}

	return w.view(), nil
}

// Resolve maps a wallet id or any of its deposit addresses to the owning
// wallet id in O(1).
func (s *Store) Resolve(identifier string) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrNotFound)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.wallets[identifier]; ok {
		return identifier, nil
	}
	if id, ok := s.index[identifier]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, identifier)
}

// WithLockedWallet runs fn with exclusive access to one wallet. The lock is
// released on every exit path, including when fn fails.
func (s *Store) WithLockedWallet(id string, fn func(*Wallet) error) error {
	rec, err := s.record(id)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return fn(rec.w)
}

// WithLockedPair runs fn with exclusive access to two distinct wallets.
// Locks are always acquired in wallet-id order regardless of argument
// order, so opposing transfers over the same pair cannot deadlock.
func (s *Store) WithLockedPair(idA, idB string, fn func(a, b *Wallet) error) error {
	if idA == idB {
		return fmt.Errorf("%w: %s", ErrSameWallet, idA)
	}
	recA, err := s.record(idA)
	if err != nil {
		return err
	}
	recB, err := s.record(idB)
	if err != nil {
		return err
	}

	first, second := recA, recB
	if idB < idA {
		first, second = recB, recA
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	return fn(recA.w, recB.w)
}

// Get returns a deep-copied snapshot of the wallet. The copy cannot be used
// to bypass the locked mutation path.
func (s *Store) Get(id string) (WalletView, error) {
	rec, err := s.record(id)
	if err != nil {
		return WalletView{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.w.view(), nil
}

// List returns abbreviated snapshots of all wallets ordered by id.
func (s *Store) List() []WalletSummary {
	s.mu.RLock()
	recs := make([]*walletRecord, 0, len(s.wallets))
	for _, rec := range s.wallets {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	out := make([]WalletSummary, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.w.summary())
		rec.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered wallets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wallets)
}

// record looks up the wallet's lock record. Wallets are never deleted, so
// the record stays valid after the map lock is released.
func (s *Store) record(id string) (*walletRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.wallets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}
