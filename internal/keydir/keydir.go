// Package keydir resolves validator and sender addresses to the RSA public
// keys needed to verify their block/transaction signatures (core/chain's
// PublicKeyLookup contract), persisting learned keys through core/store so
// the directory survives a restart instead of only ever knowing the local
// node's own key.
package keydir

import (
	"crypto/rsa"
	"fmt"
	"sync"

	"github.com/sa2shinakamo2/bt2c-sub002/core/crypto"
	"github.com/sa2shinakamo2/bt2c-sub002/core/store"
	"github.com/sa2shinakamo2/bt2c-sub002/core/types"
)

// recordPrefix namespaces public-key directory entries within the
// validators collection, alongside stake/status records.
const recordPrefix = "pubkey:"

// Directory resolves addresses to RSA public keys. A nil backing store is
// valid and makes the directory memory-only, for tests.
type Directory struct {
	mu    sync.RWMutex
	store store.Store
	cache map[types.Address]*rsa.PublicKey
}

// New returns a Directory backed by s.
func New(s store.Store) *Directory {
	return &Directory{store: s, cache: make(map[types.Address]*rsa.PublicKey)}
}

// Register records addr's public key, in memory and in the backing store,
// so a later Lookup (including after a restart) resolves it.
func (d *Directory) Register(addr types.Address, pub *rsa.PublicKey) error {
	der, err := crypto.PublicKeyDER(pub)
	if err != nil {
		return fmt.Errorf("keydir: register %s: %w", addr, err)
	}

	d.mu.Lock()
	d.cache[addr] = pub
	d.mu.Unlock()

	if d.store == nil {
		return nil
	}
	if err := d.store.AtomicPut([]store.Put{
		{Collection: store.CollectionValidators, Key: recordPrefix + string(addr), Value: der},
	}); err != nil {
		return fmt.Errorf("keydir: persist %s: %w", addr, err)
	}
	return nil
}

// Lookup resolves addr to its public key, checking the in-memory cache
// before falling back to the backing store. Implements
// core/chain.PublicKeyLookup.
func (d *Directory) Lookup(addr types.Address) (*rsa.PublicKey, bool) {
	d.mu.RLock()
	pub, ok := d.cache[addr]
	d.mu.RUnlock()
	if ok {
		return pub, true
	}
	if d.store == nil {
		return nil, false
	}

	der, found, err := d.store.Get(store.CollectionValidators, recordPrefix+string(addr))
	if err != nil || !found {
		return nil, false
	}
	pub, err = crypto.PublicKeyFromDER(der)
	if err != nil {
		return nil, false
	}

	d.mu.Lock()
	d.cache[addr] = pub
	d.mu.Unlock()
	return pub, true
}
