// =============================
// File: internal/token/transfer.go
// =============================
package token

import (
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/chain"
	"github.com/hlhdaiaaii/trophy-token/internal/events"
)

// Approve sets the caller's allowance for spender.
func (l *Ledger) Approve(caller, spender chain.Address, amount *uint256.Int) error {
	if caller == chain.ZeroAddress || spender == chain.ZeroAddress {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setAllowance(caller, spender, new(uint256.Int).Set(amount))
	return nil
}

// Allowance returns a copy of the owner→spender allowance.
func (l *Ledger) Allowance(owner, spender chain.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if m, ok := l.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return new(uint256.Int).Set(a)
		}
	}
	return uint256.NewInt(0)
}

func (l *Ledger) setAllowance(owner, spender chain.Address, amount *uint256.Int) {
	m, ok := l.allowances[owner]
	if !ok {
		m = make(map[chain.Address]*uint256.Int)
		l.allowances[owner] = m
	}
	m[spender] = amount
}

// Transfer moves amount from the caller to `to`, applying the fee policy.
func (l *Ledger) Transfer(caller, to chain.Address, amount *uint256.Int) error {
	return l.executeTransfer(caller, to, amount)
}

// TransferFrom spends the caller's allowance on `from`. The allowance is
// only reduced after the transfer succeeds.
func (l *Ledger) TransferFrom(caller, from, to chain.Address, amount *uint256.Int) error {
	l.mu.RLock()
	allowed := uint256.NewInt(0)
	if m, ok := l.allowances[from]; ok {
		if a, ok := m[caller]; ok {
			allowed = a
		}
	}
	unlimited := allowed.Eq(maxAllowance())
	if allowed.Lt(amount) {
		l.mu.RUnlock()
		return ErrInsufficientAllowance
	}
	l.mu.RUnlock()

	if err := l.executeTransfer(from, to, amount); err != nil {
		return err
	}

	if !unlimited {
		l.mu.Lock()
		l.allowances[from][caller].Sub(l.allowances[from][caller], amount)
		l.mu.Unlock()
	}
	return nil
}

// executeTransfer is the single transfer path. It arms the liquidity
// bridge before moving the amount, then applies either the direct
// (excluded) or the taxed move atomically under the ledger lock.
func (l *Ledger) executeTransfer(from, to chain.Address, amount *uint256.Int) error {
	if from == chain.ZeroAddress || to == chain.ZeroAddress {
		return ErrZeroAddress
	}

	l.mu.RLock()
	bal, ok := l.balances[from]
	if !ok || bal.Lt(amount) {
		l.mu.RUnlock()
		return ErrInsufficientBalance
	}
	l.mu.RUnlock()

	l.maybeBridge(from)

	l.mu.Lock()
	bal, ok = l.balances[from]
	if !ok || bal.Lt(amount) {
		l.mu.Unlock()
		return ErrInsufficientBalance
	}

	if l.excluded[from] || l.excluded[to] {
		bal.Sub(bal, amount)
		l.credit(to, amount)
		l.mu.Unlock()
		return nil
	}

	fee := chain.BpsShare(amount, l.feeRateBps)
	burnPart := chain.BpsShare(fee, l.burnShareBps)
	liqPart := chain.BpsShare(fee, l.liquidityShareBps)

	parts := make([]*uint256.Int, len(l.feeTo))
	distributed := new(uint256.Int).Add(burnPart, liqPart)
	for i, r := range l.feeTo {
		parts[i] = chain.BpsShare(fee, r.ShareBps)
		distributed.Add(distributed, parts[i])
	}
	// Truncation remainder goes to the last recipient so the split sums
	// exactly to the fee; with no recipients it joins the liquidity pot.
	remainder := new(uint256.Int).Sub(fee, distributed)
	if len(parts) > 0 {
		parts[len(parts)-1].Add(parts[len(parts)-1], remainder)
	} else {
		liqPart.Add(liqPart, remainder)
	}

	delivered := new(uint256.Int).Sub(amount, fee)

	bal.Sub(bal, amount)
	l.credit(to, delivered)
	l.credit(l.burnAddr, burnPart)
	l.credit(l.addr, liqPart)
	for i, r := range l.feeTo {
		l.credit(r.Addr, parts[i])
	}
	now := l.env.Now()
	l.mu.Unlock()

	l.logger.Debug("Taxed transfer",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("amount", amount.Dec()),
		zap.String("fee", fee.Dec()))

	l.publish(&events.FeeCollectedEvent{
		BaseEvent: events.At(events.FeeCollected, now),
		From:      from,
		To:        to,
		Amount:    new(uint256.Int).Set(amount),
		Fee:       fee,
		Burned:    burnPart,
		Liquidity: liqPart,
	})
	return nil
}

func (l *Ledger) credit(addr chain.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	b, ok := l.balances[addr]
	if !ok {
		b = uint256.NewInt(0)
		l.balances[addr] = b
	}
	b.Add(b, amount)
}

// Mint creates amount new tokens on `to`. Owner-only; minting is not a
// transfer and is never taxed.
func (l *Ledger) Mint(caller, to chain.Address, amount *uint256.Int) error {
	if err := l.requireOwner(caller); err != nil {
		return err
	}
	if to == chain.ZeroAddress {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(to, amount)
	l.totalSupply.Add(l.totalSupply, amount)
	return nil
}

// DustToken is any token whose stray balance the ledger account can hold.
type DustToken interface {
	Address() chain.Address
	BalanceOf(addr chain.Address) *uint256.Int
	Transfer(caller, to chain.Address, amount *uint256.Int) error
}

// CollectTokenDust sweeps the full balance of `tok` held by the ledger
// account to a recipient. Owner-only. Sweeping the ledger's own token
// moves the balance directly, bypassing fee and bridge.
func (l *Ledger) CollectTokenDust(caller chain.Address, tok DustToken, to chain.Address) error {
	if err := l.requireOwner(caller); err != nil {
		return err
	}
	if to == chain.ZeroAddress {
		return ErrZeroAddress
	}
	if tok.Address() == l.addr {
		l.mu.Lock()
		defer l.mu.Unlock()
		bal, ok := l.balances[l.addr]
		if !ok || bal.IsZero() {
			return nil
		}
		amount := new(uint256.Int).Set(bal)
		bal.Clear()
		l.credit(to, amount)
		l.logger.Info("Own-token dust collected",
			zap.String("to", string(to)),
			zap.String("amount", amount.Dec()))
		return nil
	}
	return tok.Transfer(l.addr, to, tok.BalanceOf(l.addr))
}
