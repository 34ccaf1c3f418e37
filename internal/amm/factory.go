// =============================
// File: internal/amm/factory.go
// =============================
package amm

import (
	"sync"

	"github.com/hlhdaiaaii/trophy-token/internal/chain"
)

// Factory creates and indexes pairs by token address.
type Factory struct {
	mu    sync.RWMutex
	env   *chain.Env
	pairs map[chain.Address]*Pair
}

// NewFactory creates an empty factory.
func NewFactory(env *chain.Env) *Factory {
	return &Factory{
		env:   env,
		pairs: make(map[chain.Address]*Pair),
	}
}

// CreatePair instantiates the token/native pool for a token. One pair per
// token; a second create fails.
func (f *Factory) CreatePair(tokenAddr chain.Address, token ERC20) (*Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pairs[tokenAddr]; ok {
		return nil, ErrPairExists
	}
	pairAddr := chain.Address("pair:" + string(tokenAddr))
	p := newPair(pairAddr, tokenAddr, token, f.env)
	f.pairs[tokenAddr] = p
	return p, nil
}

// GetPair returns the pair for a token, or nil if none exists.
func (f *Factory) GetPair(tokenAddr chain.Address) *Pair {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.pairs[tokenAddr]
}
