// Package runner fans one rebalance cycle out across every account.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rotatelab/rotator/internal/alloc"
	"github.com/rotatelab/rotator/internal/broker"
	"github.com/rotatelab/rotator/internal/execution"
	"github.com/rotatelab/rotator/internal/observ"
	"github.com/rotatelab/rotator/internal/portfolio"
	"github.com/rotatelab/rotator/internal/rebalance"
	"github.com/rotatelab/rotator/internal/strategy"
)

// Deps are the injected collaborators; all must be safe for concurrent
// use by account workers.
type Deps struct {
	Engine    *strategy.Engine
	Brokerage broker.Brokerage
	Store     portfolio.Store
	Pipeline  *execution.Pipeline
	Logger    *logrus.Logger

	// Workers bounds concurrent account processing to respect
	// brokerage rate limits. Defaults to 4.
	Workers int

	// StrictQuotes rejects non-realtime quotes instead of warning.
	StrictQuotes bool
}

type Runner struct {
	deps Deps
}

func New(deps Deps) *Runner {
	if deps.Workers <= 0 {
		deps.Workers = 4
	}
	return &Runner{deps: deps}
}

// Run executes one rebalance cycle: compute the target list once,
// then process every account concurrently. A failing account never
// blocks the others; its error is collected and the aggregate failure
// is reported only after every account has had its chance to finish.
func (r *Runner) Run(ctx context.Context) error {
	start := time.Now()
	log := r.deps.Logger

	// No account-specific target exists without the engine, so an
	// engine failure is fatal to the whole cycle.
	targets, err := r.deps.Engine.Targets(ctx)
	if err != nil {
		return fmt.Errorf("strategy decision failed: %w", err)
	}
	log.WithField("targets", targets).Info("Strategy targets selected")

	portfolios, err := r.deps.Store.All(ctx)
	if err != nil {
		return fmt.Errorf("loading portfolios: %w", err)
	}

	sem := make(chan struct{}, r.deps.Workers)
	accountErrs := make([]error, len(portfolios))
	var wg sync.WaitGroup

	for i, pf := range portfolios {
		wg.Add(1)
		go func(i int, pf *portfolio.Portfolio) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := r.processAccount(ctx, pf, targets); err != nil {
				accountErrs[i] = fmt.Errorf("account %s: %w", pf.AccountID, err)
				observ.IncCounter("account_failures_total", nil)
				log.WithError(err).WithField("account", pf.AccountID).Error("Account rebalance failed")
			}
		}(i, pf)
	}
	wg.Wait()

	observ.RecordDuration("rebalance_cycle", time.Since(start), nil)
	log.WithField("counters", observ.Counters()).Info("Rebalance cycle finished")

	if err := errors.Join(accountErrs...); err != nil {
		return fmt.Errorf("rebalance failures occurred: %w", err)
	}
	return nil
}

// processAccount runs the full pipeline for one account. The
// portfolio is owned by this worker: mutated in place as fills
// confirm and persisted exactly once at the end.
func (r *Runner) processAccount(ctx context.Context, pf *portfolio.Portfolio, targets []string) error {
	log := r.deps.Logger.WithField("account", pf.AccountID)
	log.WithFields(logrus.Fields{
		"cash":      pf.Cash.String(),
		"positions": len(pf.Positions),
	}).Info("Processing account")

	budget, err := r.liquidationValue(ctx, pf)
	if err != nil {
		return fmt.Errorf("valuing portfolio: %w", err)
	}
	log.WithField("value", budget.String()).Info("Portfolio value")

	if err := r.deps.Pipeline.CancelStale(ctx, pf.AccountID); err != nil {
		return err
	}

	desired, err := r.desiredPositions(ctx, targets, budget)
	if err != nil {
		return err
	}
	log.WithField("desired", desired.Quantities).Info("Desired positions")

	delta := rebalance.Plan(pf.Positions, desired.Quantities)
	log.WithFields(logrus.Fields{
		"sell": len(delta.Sell),
		"buy":  len(delta.Buy),
	}).Info("Planned position changes")

	confirmations, err := r.deps.Pipeline.Execute(ctx, pf.AccountID, delta)
	if err != nil {
		return err
	}

	for _, c := range confirmations {
		if c.Filled() {
			pf.ApplyFill(c.Symbol, c.Side, c.FilledQuantity, c.Notional)
		}
	}

	if err := r.deps.Store.Save(ctx, pf); err != nil {
		return fmt.Errorf("persisting portfolio: %w", err)
	}
	log.WithField("cash", pf.Cash.String()).Info("Portfolio persisted")
	return nil
}

// liquidationValue prices the account's holdings at ask using a fresh,
// cycle-scoped quote fetch.
func (r *Runner) liquidationValue(ctx context.Context, pf *portfolio.Portfolio) (decimal.Decimal, error) {
	held := pf.HeldSymbols()
	if len(held) == 0 {
		return pf.Cash, nil
	}

	quotes, err := r.deps.Brokerage.CurrentQuotes(ctx, held)
	if err != nil {
		return decimal.Zero, err
	}
	book := broker.NewBook(quotes, r.deps.StrictQuotes, r.deps.Logger)
	return pf.LiquidationValue(book)
}

// desiredPositions sizes the budget across the targets at ask.
func (r *Runner) desiredPositions(ctx context.Context, targets []string, budget decimal.Decimal) (alloc.Allocation, error) {
	quotes, err := r.deps.Brokerage.CurrentQuotes(ctx, targets)
	if err != nil {
		return alloc.Allocation{}, err
	}
	book := broker.NewBook(quotes, r.deps.StrictQuotes, r.deps.Logger)

	asks := make(map[string]decimal.Decimal, len(targets))
	for _, symbol := range targets {
		ask, err := book.Ask(symbol)
		if err != nil {
			return alloc.Allocation{}, err
		}
		asks[symbol] = ask
	}

	return alloc.Allocate(targets, asks, budget)
}
