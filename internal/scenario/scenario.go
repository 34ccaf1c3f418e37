// =============================================
// File: internal/scenario/scenario.go
// =============================================
package scenario

import (
	"fmt"
	"time"

	"github.com/hlhdaiaaii/trophy-token/internal/chain"
)

// StepType defines the supported scenario operations.
type StepType string

const (
	StepPurchase           StepType = "purchase"
	StepTransfer           StepType = "transfer"
	StepSwapNativeForToken StepType = "swap_native_for_tokens"
	StepSwapTokenForNative StepType = "swap_tokens_for_native"
	StepMint               StepType = "mint"
	StepFundSettlement     StepType = "fund_settlement"
	StepFinalize           StepType = "finalize"
	StepCancel             StepType = "cancel"
	StepClaim              StepType = "claim"
	StepRefund             StepType = "refund"
	StepAdvanceTime        StepType = "advance_time"
)

// Account seeds one named account with native currency.
type Account struct {
	Name    string
	Balance string // decimal native units
}

// Step is one scripted operation. Which fields matter depends on Type.
type Step struct {
	Name     string
	Type     StepType
	Actor    string // acting account
	To       string // counterparty, payout or recipient
	Amount   string // decimal units
	Duration time.Duration
	// ExpectError names the rejection the step is scripted to hit; the
	// run fails if the step succeeds instead.
	ExpectError string
}

// Scenario is a full scripted run against a deployed sale.
type Scenario struct {
	Name        string
	HaltOnError bool
	Accounts    []Account
	Steps       []Step
}

// Address returns the account's ledger address.
func (a *Account) Address() chain.Address {
	return chain.Address("acc:" + a.Name)
}

// Validate checks the step's required fields for its type.
func (s *Step) Validate() error {
	if s.Type == "" {
		return fmt.Errorf("step %q: type cannot be empty", s.Name)
	}

	needsActor := map[StepType]bool{
		StepPurchase: true, StepTransfer: true,
		StepSwapNativeForToken: true, StepSwapTokenForNative: true,
		StepMint: true, StepFundSettlement: true, StepFinalize: true,
		StepCancel: true, StepClaim: true, StepRefund: true,
	}
	needsAmount := map[StepType]bool{
		StepPurchase: true, StepTransfer: true,
		StepSwapNativeForToken: true, StepSwapTokenForNative: true,
		StepMint: true,
	}
	needsTo := map[StepType]bool{
		StepTransfer: true, StepMint: true, StepFinalize: true,
	}

	switch s.Type {
	case StepPurchase, StepTransfer, StepSwapNativeForToken, StepSwapTokenForNative,
		StepMint, StepFundSettlement, StepFinalize, StepCancel, StepClaim, StepRefund:
	case StepAdvanceTime:
		if s.Duration <= 0 {
			return fmt.Errorf("step %q: advance_time needs a positive duration", s.Name)
		}
		return nil
	default:
		return fmt.Errorf("step %q: invalid type %q", s.Name, s.Type)
	}

	if needsActor[s.Type] && s.Actor == "" {
		return fmt.Errorf("step %q: actor cannot be empty", s.Name)
	}
	if needsTo[s.Type] && s.To == "" {
		return fmt.Errorf("step %q: recipient cannot be empty", s.Name)
	}
	if needsAmount[s.Type] {
		if s.Amount == "" {
			return fmt.Errorf("step %q: amount cannot be empty", s.Name)
		}
		if _, err := chain.ParseUnits(s.Amount); err != nil {
			return fmt.Errorf("step %q: %w", s.Name, err)
		}
	}
	return nil
}

// Validate checks the scenario as a whole.
func (sc *Scenario) Validate() error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("scenario %q has no steps", sc.Name)
	}
	names := make(map[string]bool, len(sc.Accounts))
	for _, a := range sc.Accounts {
		if a.Name == "" {
			return fmt.Errorf("scenario %q: account without a name", sc.Name)
		}
		if names[a.Name] {
			return fmt.Errorf("scenario %q: duplicate account %q", sc.Name, a.Name)
		}
		names[a.Name] = true
		if _, err := chain.ParseUnits(a.Balance); err != nil {
			return fmt.Errorf("account %q: %w", a.Name, err)
		}
	}
	for i := range sc.Steps {
		if err := sc.Steps[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
