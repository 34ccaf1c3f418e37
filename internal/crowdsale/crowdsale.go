// =================================
// File: internal/crowdsale/crowdsale.go
// =================================
package crowdsale

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/amm"
	"github.com/hlhdaiaaii/trophy-token/internal/chain"
	"github.com/hlhdaiaaii/trophy-token/internal/events"
	"github.com/hlhdaiaaii/trophy-token/internal/token"
)

// Status is the sale lifecycle state. It is monotonic: once Finalized or
// Canceled it never reverts.
type Status uint8

const (
	StatusActive Status = iota
	StatusFinalized
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusFinalized:
		return "finalized"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// TerminalState is the purchaser record's one-shot terminal marker.
// Claimed and Refunded are mutually exclusive because Finalized and
// Canceled are; modeling them as one enum keeps that explicit.
type TerminalState uint8

const (
	Unclaimed TerminalState = iota
	Claimed
	Refunded
)

// Purchaser is the per-participant bookkeeping record, created on the
// first (and only) accepted contribution and never deleted.
type Purchaser struct {
	Addr         chain.Address
	Contribution *uint256.Int
	Terminal     TerminalState
	PurchasedAt  time.Time
}

var (
	ErrNotOccurring               = errors.New("NOT_OCCURRING")
	ErrAlreadyPurchased           = errors.New("ALREADY_PURCHASED")
	ErrMetHardCap                 = errors.New("MET_HARD_CAP")
	ErrPurchaseTooSmall           = errors.New("PURCHASE_TOO_SMALL")
	ErrPurchaseTooLarge           = errors.New("PURCHASE_TOO_LARGE")
	ErrAlreadyFinalizedOrCanceled = errors.New("ALREADY_FINALIZED_OR_CANCELED")
	ErrAlreadyCanceledOrFinalized = errors.New("ALREADY_CANCELED_OR_FINALIZED")
	ErrInvalidAction              = errors.New("INVALID_ACTION")
	ErrNotOwner                   = errors.New("NOT_OWNER")
	ErrInsufficientTokens         = errors.New("INSUFFICIENT_SALE_TOKENS")
)

// Config is the immutable deployment configuration of the controller.
type Config struct {
	Owner chain.Address

	// Price and ListingPrice are native-per-token, 18-dec fixed point.
	Price        *uint256.Int
	ListingPrice *uint256.Int

	MinPurchase *uint256.Int
	MaxPurchase *uint256.Int
	HardCap     *uint256.Int

	// Inclusive purchase window.
	StartTime time.Time
	EndTime   time.Time

	// LpPercentBps of raised funds goes to AMM liquidity at finalize;
	// the rest is the operator payout.
	LpPercentBps uint64
}

func (c *Config) validate() error {
	if c.Owner == chain.ZeroAddress {
		return errors.New("owner must be set")
	}
	if c.Price == nil || c.Price.IsZero() {
		return errors.New("price must be positive")
	}
	if c.ListingPrice == nil || c.ListingPrice.IsZero() {
		return errors.New("listing price must be positive")
	}
	if c.MinPurchase == nil || c.MaxPurchase == nil || c.MinPurchase.Gt(c.MaxPurchase) {
		return errors.New("min purchase must not exceed max purchase")
	}
	if c.HardCap == nil || c.HardCap.IsZero() {
		return errors.New("hard cap must be positive")
	}
	if c.EndTime.Before(c.StartTime) {
		return errors.New("end time before start time")
	}
	if c.LpPercentBps > chain.BpsDenom {
		return fmt.Errorf("lp percent %d exceeds %d bps", c.LpPercentBps, chain.BpsDenom)
	}
	return nil
}

// Controller owns the sale lifecycle, purchase accounting and
// settlement. It holds contributed native currency and minted sale
// tokens in custody under its own address.
type Controller struct {
	mu sync.RWMutex

	addr  chain.Address
	owner chain.Address

	env    *chain.Env
	tok    *token.Ledger
	router amm.Router
	bus    *events.Bus

	price        *uint256.Int
	listingPrice *uint256.Int
	minPurchase  *uint256.Int
	maxPurchase  *uint256.Int
	hardCap      *uint256.Int
	startTime    time.Time
	endTime      time.Time
	lpPercentBps uint64

	status     Status
	currentCap *uint256.Int
	purchasers map[chain.Address]*Purchaser
	order      []chain.Address

	logger *zap.Logger
}

// NewController deploys the controller at addr. The ledger's owner still
// has to fee-exclude the controller before the sale begins.
func NewController(addr chain.Address, cfg Config, env *chain.Env, tok *token.Ledger,
	router amm.Router, bus *events.Bus, logger *zap.Logger) (*Controller, error) {

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid sale config: %w", err)
	}
	return &Controller{
		addr:         addr,
		owner:        cfg.Owner,
		env:          env,
		tok:          tok,
		router:       router,
		bus:          bus,
		price:        new(uint256.Int).Set(cfg.Price),
		listingPrice: new(uint256.Int).Set(cfg.ListingPrice),
		minPurchase:  new(uint256.Int).Set(cfg.MinPurchase),
		maxPurchase:  new(uint256.Int).Set(cfg.MaxPurchase),
		hardCap:      new(uint256.Int).Set(cfg.HardCap),
		startTime:    cfg.StartTime,
		endTime:      cfg.EndTime,
		lpPercentBps: cfg.LpPercentBps,
		status:       StatusActive,
		currentCap:   uint256.NewInt(0),
		purchasers:   make(map[chain.Address]*Purchaser),
		logger:       logger.Named("crowdsale"),
	}, nil
}

// Address returns the controller's custody address.
func (c *Controller) Address() chain.Address { return c.addr }

// Owner returns the privileged admin address.
func (c *Controller) Owner() chain.Address { return c.owner }

// Status returns the sale lifecycle state.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// CurrentCap returns a copy of the accepted-contribution total.
func (c *Controller) CurrentCap() *uint256.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return new(uint256.Int).Set(c.currentCap)
}

// HardCap returns a copy of the sale's contribution ceiling.
func (c *Controller) HardCap() *uint256.Int {
	return new(uint256.Int).Set(c.hardCap)
}

// Window returns the inclusive purchase window.
func (c *Controller) Window() (start, end time.Time) {
	return c.startTime, c.endTime
}

// PurchaserOf returns a copy of the purchaser record for addr.
func (c *Controller) PurchaserOf(addr chain.Address) (Purchaser, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.purchasers[addr]
	if !ok {
		return Purchaser{}, false
	}
	cp := *p
	cp.Contribution = new(uint256.Int).Set(p.Contribution)
	return cp, true
}

// AllPurchasers returns the purchaser addresses in insertion order. Audit
// surface only: settlement math never iterates this list per call.
func (c *Controller) AllPurchasers() []chain.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]chain.Address(nil), c.order...)
}

func (c *Controller) requireOwner(caller chain.Address) error {
	if caller != c.owner {
		return ErrNotOwner
	}
	return nil
}

func (c *Controller) publish(e events.Event) {
	if c.bus != nil {
		_ = c.bus.Publish(e)
	}
}
