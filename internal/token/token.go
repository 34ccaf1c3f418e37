// =============================
// File: internal/token/token.go
// =============================
package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/amm"
	"github.com/hlhdaiaaii/trophy-token/internal/chain"
	"github.com/hlhdaiaaii/trophy-token/internal/events"
)

var (
	ErrNotOwner              = errors.New("NOT_OWNER")
	ErrZeroAddress           = errors.New("ZERO_ADDRESS")
	ErrInsufficientBalance   = errors.New("INSUFFICIENT_BALANCE")
	ErrInsufficientAllowance = errors.New("INSUFFICIENT_ALLOWANCE")
	ErrRouterBound           = errors.New("ROUTER_ALREADY_BOUND")
	ErrFeeToExists           = errors.New("FEE_TO_EXISTS")
	ErrFeeToNotFound         = errors.New("FEE_TO_NOT_FOUND")
)

// FeeRecipient is one (recipient, share) entry of the taxed-fee split.
type FeeRecipient struct {
	Addr     chain.Address
	ShareBps uint64
}

// Config is the immutable deployment configuration of the ledger.
type Config struct {
	Name   string
	Symbol string
	Owner  chain.Address

	// Fee policy. Of every taxed transfer, FeeRateBps is taken; of that
	// fee, BurnShareBps goes to the burn sink, each recipient its
	// ShareBps, and the remainder accrues to the ledger itself for the
	// liquidity bridge.
	FeeRateBps    uint64
	BurnShareBps  uint64
	BurnAddress   chain.Address
	FeeRecipients []FeeRecipient

	// LiquidityTo receives the pool shares minted by the bridge.
	LiquidityTo chain.Address

	// BridgeThreshold is the accumulated fee-token balance that arms the
	// liquidity bridge.
	BridgeThreshold *uint256.Int
}

func (c *Config) validate() error {
	if c.Owner == chain.ZeroAddress {
		return fmt.Errorf("owner: %w", ErrZeroAddress)
	}
	if c.BurnAddress == chain.ZeroAddress {
		return fmt.Errorf("burn address: %w", ErrZeroAddress)
	}
	if c.LiquidityTo == chain.ZeroAddress {
		return fmt.Errorf("liquidity recipient: %w", ErrZeroAddress)
	}
	if c.FeeRateBps > chain.BpsDenom {
		return fmt.Errorf("fee rate %d exceeds %d bps", c.FeeRateBps, chain.BpsDenom)
	}
	total := c.BurnShareBps
	for _, r := range c.FeeRecipients {
		if r.Addr == chain.ZeroAddress {
			return fmt.Errorf("fee recipient: %w", ErrZeroAddress)
		}
		total += r.ShareBps
	}
	if total > chain.BpsDenom {
		return fmt.Errorf("fee shares sum to %d bps, above %d", total, chain.BpsDenom)
	}
	if c.BridgeThreshold == nil || c.BridgeThreshold.IsZero() {
		return fmt.Errorf("bridge threshold must be positive")
	}
	return nil
}

// Ledger is the fee-splitting fungible-token ledger. All mutating entry
// points take the acting caller explicitly; owner-only methods validate
// it against the stored owner.
type Ledger struct {
	mu sync.RWMutex

	name   string
	symbol string
	owner  chain.Address
	addr   chain.Address

	env *chain.Env
	bus *events.Bus

	balances    map[chain.Address]*uint256.Int
	allowances  map[chain.Address]map[chain.Address]*uint256.Int
	totalSupply *uint256.Int

	feeRateBps        uint64
	burnShareBps      uint64
	liquidityShareBps uint64
	burnAddr          chain.Address
	feeTo             []FeeRecipient
	excluded          map[chain.Address]bool

	liquidityTo     chain.Address
	bridgeThreshold *uint256.Int
	router          amm.Router
	pairAddr        chain.Address
	inSwap          bool

	logger *zap.Logger
}

// NewLedger deploys the ledger at addr. The owner, the liquidity
// recipient and the ledger itself start fee-excluded.
func NewLedger(addr chain.Address, cfg Config, env *chain.Env, bus *events.Bus, logger *zap.Logger) (*Ledger, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger config: %w", err)
	}

	recipientBps := uint64(0)
	for _, r := range cfg.FeeRecipients {
		recipientBps += r.ShareBps
	}

	l := &Ledger{
		name:              cfg.Name,
		symbol:            cfg.Symbol,
		owner:             cfg.Owner,
		addr:              addr,
		env:               env,
		bus:               bus,
		balances:          make(map[chain.Address]*uint256.Int),
		allowances:        make(map[chain.Address]map[chain.Address]*uint256.Int),
		totalSupply:       uint256.NewInt(0),
		feeRateBps:        cfg.FeeRateBps,
		burnShareBps:      cfg.BurnShareBps,
		liquidityShareBps: chain.BpsDenom - cfg.BurnShareBps - recipientBps,
		burnAddr:          cfg.BurnAddress,
		feeTo:             append([]FeeRecipient(nil), cfg.FeeRecipients...),
		excluded:          make(map[chain.Address]bool),
		liquidityTo:       cfg.LiquidityTo,
		bridgeThreshold:   new(uint256.Int).Set(cfg.BridgeThreshold),
		logger:            logger.Named("token"),
	}
	l.excluded[cfg.Owner] = true
	l.excluded[cfg.LiquidityTo] = true
	l.excluded[addr] = true
	return l, nil
}

// BindRouter wires the ledger to the AMM: creates the canonical pair and
// grants the router an unlimited allowance on the ledger's own balance so
// the bridge can feed it. Owner-only, once.
func (l *Ledger) BindRouter(caller chain.Address, router *amm.DexRouter) error {
	if err := l.requireOwner(caller); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.router != nil {
		return ErrRouterBound
	}
	pair, err := router.Factory().CreatePair(l.addr, l)
	if err != nil {
		return fmt.Errorf("create pair: %w", err)
	}
	l.router = router
	l.pairAddr = pair.Address()
	l.setAllowance(l.addr, amm.RouterAddress, maxAllowance())
	l.logger.Info("Router bound",
		zap.String("pair", string(l.pairAddr)))
	return nil
}

func maxAllowance() *uint256.Int {
	max := new(uint256.Int)
	return max.Not(max)
}

// Address returns the ledger's own account address.
func (l *Ledger) Address() chain.Address { return l.addr }

// Name returns the token name.
func (l *Ledger) Name() string { return l.name }

// Symbol returns the token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Owner returns the privileged admin address.
func (l *Ledger) Owner() chain.Address { return l.owner }

// Pair returns the canonical pair address, or zero before BindRouter.
func (l *Ledger) Pair() chain.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.pairAddr
}

// LiquidityTo returns the recipient of pool-share receipts.
func (l *Ledger) LiquidityTo() chain.Address { return l.liquidityTo }

// TotalSupply returns a copy of the current supply.
func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(uint256.Int).Set(l.totalSupply)
}

// BalanceOf returns a copy of addr's token balance.
func (l *Ledger) BalanceOf(addr chain.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.balances[addr]; ok {
		return new(uint256.Int).Set(b)
	}
	return uint256.NewInt(0)
}

// NativeBalance returns the native currency held by the ledger account.
func (l *Ledger) NativeBalance() *uint256.Int {
	return l.env.BalanceOf(l.addr)
}

// FeeToList returns a copy of the ordered fee-recipient list.
func (l *Ledger) FeeToList() []FeeRecipient {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]FeeRecipient(nil), l.feeTo...)
}

// IsExcludedFromFee reports whether addr moves value untaxed.
func (l *Ledger) IsExcludedFromFee(addr chain.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.excluded[addr]
}

func (l *Ledger) requireOwner(caller chain.Address) error {
	if caller != l.owner {
		return ErrNotOwner
	}
	return nil
}

// AddExcludedFromFee adds addr to the fee-exclusion set. Owner-only. The
// crowdsale controller must be excluded before its sale begins, otherwise
// sale transfers would be taxed and the allocation accounting would skew.
func (l *Ledger) AddExcludedFromFee(caller, addr chain.Address) error {
	if err := l.requireOwner(caller); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.excluded[addr] = true
	return nil
}

// RemoveExcludedFromFee removes addr from the fee-exclusion set.
// Owner-only. The ledger itself, the owner and the liquidity recipient
// stay excluded.
func (l *Ledger) RemoveExcludedFromFee(caller, addr chain.Address) error {
	if err := l.requireOwner(caller); err != nil {
		return err
	}
	if addr == l.addr || addr == l.owner || addr == l.liquidityTo {
		return fmt.Errorf("%s must stay fee-excluded", addr)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.excluded, addr)
	return nil
}

// AddFeeTo appends a recipient to the taxed-fee split. Owner-only.
func (l *Ledger) AddFeeTo(caller, addr chain.Address, shareBps uint64) error {
	if err := l.requireOwner(caller); err != nil {
		return err
	}
	if addr == chain.ZeroAddress {
		return ErrZeroAddress
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	total := l.burnShareBps + shareBps
	for _, r := range l.feeTo {
		if r.Addr == addr {
			return ErrFeeToExists
		}
		total += r.ShareBps
	}
	if total > chain.BpsDenom {
		return fmt.Errorf("fee shares would sum to %d bps", total)
	}
	l.feeTo = append(l.feeTo, FeeRecipient{Addr: addr, ShareBps: shareBps})
	l.liquidityShareBps = chain.BpsDenom - total
	return nil
}

// RemoveFeeTo drops a recipient from the taxed-fee split. Owner-only.
func (l *Ledger) RemoveFeeTo(caller, addr chain.Address) error {
	if err := l.requireOwner(caller); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, r := range l.feeTo {
		if r.Addr == addr {
			l.feeTo = append(l.feeTo[:i], l.feeTo[i+1:]...)
			l.liquidityShareBps += r.ShareBps
			return nil
		}
	}
	return ErrFeeToNotFound
}

func (l *Ledger) publish(e events.Event) {
	if l.bus != nil {
		_ = l.bus.Publish(e)
	}
}
