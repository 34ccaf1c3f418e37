// =============================
// File: internal/token/snapshot.go
// =============================
package token

import (
	"github.com/holiman/uint256"

	"github.com/hlhdaiaaii/trophy-token/internal/chain"
)

// Snapshot is a deep copy of the ledger's mutable state, used to make
// multi-step operations (finalize, the liquidity bridge) all-or-nothing.
type Snapshot struct {
	balances    map[chain.Address]*uint256.Int
	allowances  map[chain.Address]map[chain.Address]*uint256.Int
	totalSupply *uint256.Int
}

// Snapshot captures balances, allowances and supply.
func (l *Ledger) Snapshot() *Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := &Snapshot{
		balances:    make(map[chain.Address]*uint256.Int, len(l.balances)),
		allowances:  make(map[chain.Address]map[chain.Address]*uint256.Int, len(l.allowances)),
		totalSupply: new(uint256.Int).Set(l.totalSupply),
	}
	for addr, b := range l.balances {
		s.balances[addr] = new(uint256.Int).Set(b)
	}
	for owner, m := range l.allowances {
		cp := make(map[chain.Address]*uint256.Int, len(m))
		for spender, a := range m {
			cp[spender] = new(uint256.Int).Set(a)
		}
		s.allowances[owner] = cp
	}
	return s
}

// Restore rolls the ledger back to a snapshot.
func (l *Ledger) Restore(s *Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances = make(map[chain.Address]*uint256.Int, len(s.balances))
	for addr, b := range s.balances {
		l.balances[addr] = new(uint256.Int).Set(b)
	}
	l.allowances = make(map[chain.Address]map[chain.Address]*uint256.Int, len(s.allowances))
	for owner, m := range s.allowances {
		cp := make(map[chain.Address]*uint256.Int, len(m))
		for spender, a := range m {
			cp[spender] = new(uint256.Int).Set(a)
		}
		l.allowances[owner] = cp
	}
	l.totalSupply = new(uint256.Int).Set(s.totalSupply)
}
