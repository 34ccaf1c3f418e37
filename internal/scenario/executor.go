// =============================================
// File: internal/scenario/executor.go
// =============================================
package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/hlhdaiaaii/trophy-token/internal/amm"
	"github.com/hlhdaiaaii/trophy-token/internal/chain"
	"github.com/hlhdaiaaii/trophy-token/internal/crowdsale"
	"github.com/hlhdaiaaii/trophy-token/internal/token"
)

const swapDeadline = time.Minute

// StepResult captures the outcome of one executed step.
type StepResult struct {
	Step     Step
	Err      error
	Duration time.Duration
}

// Passed reports whether the step ended the way the script expects.
func (r *StepResult) Passed() bool {
	if r.Step.ExpectError == "" {
		return r.Err == nil
	}
	return r.Err != nil && strings.Contains(r.Err.Error(), r.Step.ExpectError)
}

// StepObserver receives execution outcomes, typically a metrics
// collector.
type StepObserver interface {
	MeasureOperation(operation string, f func() error) error
	RecordRejectedPurchase()
}

// Executor replays a scenario against a wired sale. Failed steps are
// rolled back so a rejected operation never leaves partial state behind.
type Executor struct {
	env      *chain.Env
	ledger   *token.Ledger
	router   *amm.DexRouter
	ctrl     *crowdsale.Controller
	observer StepObserver
	logger   *zap.Logger
}

func NewExecutor(env *chain.Env, ledger *token.Ledger, router *amm.DexRouter,
	ctrl *crowdsale.Controller, logger *zap.Logger) *Executor {

	return &Executor{
		env:    env,
		ledger: ledger,
		router: router,
		ctrl:   ctrl,
		logger: logger.Named("executor"),
	}
}

// WithObserver attaches an observer; step durations and rejected
// purchases are reported to it.
func (e *Executor) WithObserver(obs StepObserver) *Executor {
	e.observer = obs
	return e
}

// Run seeds the scenario's accounts and executes its steps in order.
// With HaltOnError set, the first unexpected outcome stops the run.
func (e *Executor) Run(ctx context.Context, sc *Scenario) ([]StepResult, error) {
	for _, a := range sc.Accounts {
		e.env.Credit(a.Address(), chain.MustParseUnits(a.Balance))
	}

	results := make([]StepResult, 0, len(sc.Steps))
	for _, step := range sc.Steps {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		res := e.runStep(step)
		results = append(results, res)

		if res.Passed() {
			e.logger.Info("Step completed",
				zap.String("step", step.Name),
				zap.String("type", string(step.Type)),
				zap.Duration("took", res.Duration))
			continue
		}

		if res.Err != nil {
			e.logger.Warn("Step failed",
				zap.String("step", step.Name),
				zap.String("type", string(step.Type)),
				zap.Error(res.Err))
		} else {
			e.logger.Warn("Step succeeded but was scripted to fail",
				zap.String("step", step.Name),
				zap.String("expected", step.ExpectError))
		}
		if sc.HaltOnError {
			return results, fmt.Errorf("scenario %q halted at step %q", sc.Name, step.Name)
		}
	}
	return results, nil
}

func (e *Executor) runStep(step Step) StepResult {
	start := time.Now()

	envSnap := e.env.Snapshot()
	tokSnap := e.ledger.Snapshot()

	var err error
	if e.observer != nil {
		err = e.observer.MeasureOperation(string(step.Type), func() error {
			return e.apply(step)
		})
	} else {
		err = e.apply(step)
	}
	if err != nil {
		e.env.Restore(envSnap)
		e.ledger.Restore(tokSnap)
		e.router.SyncPair(e.ledger.Address())
		if step.Type == StepPurchase && e.observer != nil {
			e.observer.RecordRejectedPurchase()
		}
	}

	return StepResult{Step: step, Err: err, Duration: time.Since(start)}
}

func (e *Executor) apply(step Step) error {
	actor := chain.Address("acc:" + step.Actor)

	switch step.Type {
	case StepPurchase:
		return e.ctrl.Purchase(actor, chain.MustParseUnits(step.Amount))

	case StepTransfer:
		to := chain.Address("acc:" + step.To)
		return e.ledger.Transfer(actor, to, chain.MustParseUnits(step.Amount))

	case StepMint:
		to := chain.Address("acc:" + step.To)
		return e.ledger.Mint(actor, to, chain.MustParseUnits(step.Amount))

	case StepSwapNativeForToken:
		path := []chain.Address{e.router.WNative(), e.ledger.Address()}
		_, err := e.router.SwapExactNativeForTokens(actor,
			chain.MustParseUnits(step.Amount), new(uint256.Int),
			path, actor, e.env.Now().Add(swapDeadline))
		return err

	case StepSwapTokenForNative:
		amount := chain.MustParseUnits(step.Amount)
		if err := e.ledger.Approve(actor, amm.RouterAddress, amount); err != nil {
			return err
		}
		path := []chain.Address{e.ledger.Address(), e.router.WNative()}
		_, err := e.router.SwapExactTokensForNativeSupportingFeeOnTransferTokens(actor,
			amount, new(uint256.Int),
			path, actor, e.env.Now().Add(swapDeadline))
		return err

	case StepFundSettlement:
		// The obligation depends on purchases recorded so far, so the
		// settlement mint has to happen after the purchase steps.
		required := e.ctrl.CalcTotalTokensRequired()
		held := e.ledger.BalanceOf(e.ctrl.Address())
		if held.Cmp(required) >= 0 {
			return nil
		}
		shortfall := new(uint256.Int).Sub(required, held)
		return e.ledger.Mint(actor, e.ctrl.Address(), shortfall)

	case StepFinalize:
		payout := chain.Address("acc:" + step.To)
		return e.ctrl.Finalize(actor, payout)

	case StepCancel:
		return e.ctrl.CancelSale(actor)

	case StepClaim:
		return e.ctrl.Claim(actor)

	case StepRefund:
		return e.ctrl.Refund(actor)

	case StepAdvanceTime:
		e.env.AdvanceTime(step.Duration)
		return nil

	default:
		return fmt.Errorf("unsupported step type %q", step.Type)
	}
}
