// =============================
// File: internal/chain/chain.go
// =============================
package chain

import (
	"errors"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Address identifies an account inside the environment.
type Address string

// ZeroAddress is the null account. Transfers to it are rejected.
const ZeroAddress Address = ""

var (
	ErrInsufficientNative = errors.New("INSUFFICIENT_NATIVE_BALANCE")
	ErrZeroAddress        = errors.New("ZERO_ADDRESS")
)

// Env is the shared ledger execution environment. Every operation against
// it runs to completion under a single lock: there is no partial state
// visible to any observer. Rollback is done by snapshot/restore around
// multi-step operations that touch external collaborators.
type Env struct {
	mu       sync.RWMutex
	balances map[Address]*uint256.Int
	now      time.Time
	logger   *zap.Logger
}

// NewEnv creates an empty environment with its clock set to start.
func NewEnv(start time.Time, logger *zap.Logger) *Env {
	return &Env{
		balances: make(map[Address]*uint256.Int),
		now:      start,
		logger:   logger.Named("chain"),
	}
}

// Now returns the environment's logical time.
func (e *Env) Now() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.now
}

// SetTime moves the logical clock to t. The clock never goes backwards.
func (e *Env) SetTime(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.After(e.now) {
		e.now = t
	}
}

// AdvanceTime moves the logical clock forward by d.
func (e *Env) AdvanceTime(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

// BalanceOf returns a copy of the native balance of addr.
func (e *Env) BalanceOf(addr Address) *uint256.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if b, ok := e.balances[addr]; ok {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

// Credit creates native currency on addr. Used for genesis funding only;
// ordinary value movement goes through Transfer.
func (e *Env) Credit(addr Address, amount *uint256.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.credit(addr, amount)
}

func (e *Env) credit(addr Address, amount *uint256.Int) {
	b, ok := e.balances[addr]
	if !ok {
		b = uint256.NewInt(0)
		e.balances[addr] = b
	}
	b.Add(b, amount)
}

// Transfer moves native currency between accounts. It is the first-class
// value-transfer primitive: it either completes or leaves both balances
// untouched.
func (e *Env) Transfer(from, to Address, amount *uint256.Int) error {
	if to == ZeroAddress {
		return ErrZeroAddress
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.balances[from]
	if !ok || b.Lt(amount) {
		return ErrInsufficientNative
	}
	b.Sub(b, amount)
	e.credit(to, amount)
	return nil
}

// Snapshot captures the full native-balance state and clock.
type Snapshot struct {
	balances map[Address]*uint256.Int
	now      time.Time
}

// Snapshot deep-copies the environment state.
func (e *Env) Snapshot() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := &Snapshot{
		balances: make(map[Address]*uint256.Int, len(e.balances)),
		now:      e.now,
	}
	for addr, b := range e.balances {
		s.balances[addr] = new(uint256.Int).Set(b)
	}
	return s
}

// Restore rolls the environment back to a snapshot.
func (e *Env) Restore(s *Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances = make(map[Address]*uint256.Int, len(s.balances))
	for addr, b := range s.balances {
		e.balances[addr] = new(uint256.Int).Set(b)
	}
	e.now = s.now
	e.logger.Debug("Environment state restored from snapshot")
}
