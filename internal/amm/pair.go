// =============================
// File: internal/amm/pair.go
// =============================
package amm

import (
	"sync"

	"github.com/holiman/uint256"

	"github.com/hlhdaiaaii/trophy-token/internal/chain"
)

// Pair is a constant-product pool between one token and the native
// currency. Token balances live in the token ledger under the pair's
// address; the native side lives in the environment under the same
// address. Pool shares are tracked on the pair itself.
type Pair struct {
	mu        sync.RWMutex
	addr      chain.Address
	tokenAddr chain.Address
	token     ERC20
	env       *chain.Env

	reserveToken  *uint256.Int
	reserveNative *uint256.Int

	totalShares *uint256.Int
	shares      map[chain.Address]*uint256.Int
}

func newPair(addr, tokenAddr chain.Address, token ERC20, env *chain.Env) *Pair {
	return &Pair{
		addr:          addr,
		tokenAddr:     tokenAddr,
		token:         token,
		env:           env,
		reserveToken:  uint256.NewInt(0),
		reserveNative: uint256.NewInt(0),
		totalShares:   uint256.NewInt(0),
		shares:        make(map[chain.Address]*uint256.Int),
	}
}

// Address returns the pair's account address.
func (p *Pair) Address() chain.Address { return p.addr }

// GetReserves returns copies of the current token and native reserves.
func (p *Pair) GetReserves() (reserveToken, reserveNative *uint256.Int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(uint256.Int).Set(p.reserveToken), new(uint256.Int).Set(p.reserveNative)
}

// BalanceOf returns the pool-share balance of addr.
func (p *Pair) BalanceOf(addr chain.Address) *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.shares[addr]; ok {
		return new(uint256.Int).Set(s)
	}
	return uint256.NewInt(0)
}

// TotalShares returns the total pool-share supply.
func (p *Pair) TotalShares() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(uint256.Int).Set(p.totalShares)
}

// mint issues pool shares for whatever balances arrived since the last
// sync and credits them to `to`. First deposit mints sqrt(t*n) shares.
func (p *Pair) mint(to chain.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	balToken := p.token.BalanceOf(p.addr)
	balNative := p.env.BalanceOf(p.addr)

	amountToken := new(uint256.Int).Sub(balToken, p.reserveToken)
	amountNative := new(uint256.Int).Sub(balNative, p.reserveNative)
	if amountToken.IsZero() || amountNative.IsZero() {
		return nil, ErrInsufficientAmount
	}

	var liquidity *uint256.Int
	if p.totalShares.IsZero() {
		liquidity = new(uint256.Int).Mul(amountToken, amountNative)
		liquidity.Sqrt(liquidity)
	} else {
		byToken := new(uint256.Int).Mul(amountToken, p.totalShares)
		byToken.Div(byToken, p.reserveToken)
		byNative := new(uint256.Int).Mul(amountNative, p.totalShares)
		byNative.Div(byNative, p.reserveNative)
		liquidity = byToken
		if byNative.Lt(byToken) {
			liquidity = byNative
		}
	}
	if liquidity.IsZero() {
		return nil, ErrInsufficientLiquidity
	}

	s, ok := p.shares[to]
	if !ok {
		s = uint256.NewInt(0)
		p.shares[to] = s
	}
	s.Add(s, liquidity)
	p.totalShares.Add(p.totalShares, liquidity)

	p.reserveToken.Set(balToken)
	p.reserveNative.Set(balNative)
	return new(uint256.Int).Set(liquidity), nil
}

// sendToken pays tokens out of the pool and re-syncs reserves.
func (p *Pair) sendToken(to chain.Address, amount *uint256.Int) error {
	if err := p.token.Transfer(p.addr, to, amount); err != nil {
		return err
	}
	p.sync()
	return nil
}

// sendNative pays native currency out of the pool and re-syncs reserves.
func (p *Pair) sendNative(to chain.Address, amount *uint256.Int) error {
	if err := p.env.Transfer(p.addr, to, amount); err != nil {
		return err
	}
	p.sync()
	return nil
}

// Sync re-reads both balances into the reserves. Public, mirroring the
// pair's on-chain sync entry point: callers that roll balances back by
// snapshot must re-sync the pool afterwards.
func (p *Pair) Sync() { p.sync() }

// sync re-reads both balances into the reserves. Called after any funds
// movement so that fee-on-transfer deposits are observed exactly.
func (p *Pair) sync() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reserveToken.Set(p.token.BalanceOf(p.addr))
	p.reserveNative.Set(p.env.BalanceOf(p.addr))
}
