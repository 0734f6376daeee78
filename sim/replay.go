package sim

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/broker"
	"github.com/rustyeddy/riskguard/config"
	"github.com/rustyeddy/riskguard/market"
)

// Step is one point of a replayed price path.
type Step struct {
	// Delay advances the clock before quoting. Zero means one bar.
	Delay  time.Duration
	Prices map[string]float64
	// Close lists tickets closed manually after quoting.
	Close []string
}

// Step advances the clock, quotes every price in symbol order, then closes
// the listed tickets.
func (e *Engine) Step(ctx context.Context, s Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := s.Delay
	if d <= 0 {
		d, _ = e.hist.tf.Duration()
	}
	e.Advance(d)

	syms := make([]string, 0, len(s.Prices))
	for sym := range s.Prices {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	for _, sym := range syms {
		if err := e.SetPrice(sym, s.Prices[sym]); err != nil {
			return err
		}
	}
	for _, ticket := range s.Close {
		if err := e.Close(ctx, ticket, ReasonManual); err != nil {
			return err
		}
	}
	return nil
}

// FromConfig builds an engine from the simulation section: seeded history,
// opening quotes and positions. It returns the price path still to replay.
func FromConfig(c *config.Config, logger *zap.Logger) (*Engine, []Step, error) {
	s := c.Simulation

	start, err := s.StartTime()
	if err != nil {
		return nil, nil, fmt.Errorf("simulation start: %w", err)
	}
	cat, err := c.Catalog()
	if err != nil {
		return nil, nil, err
	}
	tf := market.H1
	if c.Timeframe != "" {
		if tf, err = market.ParseTimeframe(c.Timeframe); err != nil {
			return nil, nil, err
		}
	}
	balance := s.Balance
	if balance <= 0 {
		balance = c.Account.InitialBalance
	}

	e := NewEngine(Options{
		Account: Account{
			ID:       c.Account.ID,
			Currency: c.Account.Currency,
			Balance:  balance,
		},
		Instruments: cat,
		Timeframe:   tf,
		SpreadPips:  s.Spread,
		Leverage:    s.Leverage,
		Start:       start,
		Logger:      logger,
	})

	syms := make([]string, 0, len(s.InitialPrices))
	for sym := range s.InitialPrices {
		syms = append(syms, sym)
	}
	sort.Strings(syms)
	for _, sym := range syms {
		px := s.InitialPrices[sym]
		if err := e.SeedHistory(sym, px, s.HistoryBars, s.Seed); err != nil {
			return nil, nil, err
		}
		if err := e.SetPrice(sym, px); err != nil {
			return nil, nil, err
		}
	}

	ctx := context.Background()
	for i, p := range s.Positions {
		dir, err := broker.ParseDirection(strings.ToLower(p.Direction))
		if err != nil {
			return nil, nil, fmt.Errorf("simulation position %d: %w", i, err)
		}
		if _, err := e.Open(ctx, OrderRequest{
			Ticket:     p.Ticket,
			Symbol:     p.Symbol,
			Direction:  dir,
			Units:      p.Units,
			OpenPrice:  p.OpenPrice,
			StopLoss:   p.StopLoss,
			TakeProfit: p.TakeProfit,
		}); err != nil {
			return nil, nil, fmt.Errorf("simulation position %d: %w", i, err)
		}
	}

	steps := make([]Step, 0, len(s.PriceSteps))
	for i, ps := range s.PriceSteps {
		d, err := ps.ParseDuration()
		if err != nil {
			return nil, nil, fmt.Errorf("price step %d: %w", i, err)
		}
		steps = append(steps, Step{Delay: d, Prices: ps.Prices, Close: ps.Close})
	}
	return e, steps, nil
}
