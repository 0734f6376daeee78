// Package sim is an in-memory broker. It implements every collaborator the
// protector and the stop engine read from, and replays a configured price
// path so the whole cycle can run without a trading platform.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/broker"
	"github.com/rustyeddy/riskguard/id"
	"github.com/rustyeddy/riskguard/market"
)

// Close reasons.
const (
	ReasonStopLoss    = "StopLoss"
	ReasonTakeProfit  = "TakeProfit"
	ReasonManual      = "ManualClose"
	ReasonLiquidation = "LIQUIDATION"
)

// ErrTradeNotFound is returned for unknown or already closed tickets.
var ErrTradeNotFound = errors.New("trade not found")

// Account is the simulated account, including the margin figures the
// platform would report.
type Account struct {
	ID          string
	Currency    string
	Balance     float64
	Equity      float64
	MarginUsed  float64
	FreeMargin  float64
	MarginLevel float64
}

type Options struct {
	Account     Account
	Instruments market.InstrumentSource
	// Timeframe is the bar size of the recorded history. Default H1.
	Timeframe market.Timeframe
	// SpreadPips is split evenly around every mid price.
	SpreadPips float64
	// Leverage overrides the instrument margin rate with 1/Leverage.
	Leverage float64
	Start    time.Time
	Logger   *zap.Logger
}

type Engine struct {
	mu       sync.Mutex
	acct     Account
	catalog  market.InstrumentSource
	prices   *market.TickStore
	hist     *history
	trades   map[string]*Trade
	closed   []broker.ClosedTrade
	now      time.Time
	spread   float64
	leverage float64
	log      *zap.Logger
}

var (
	_ broker.AccountProvider   = (*Engine)(nil)
	_ broker.PositionProvider  = (*Engine)(nil)
	_ broker.OrderMutator      = (*Engine)(nil)
	_ broker.ClosedTradeSource = (*Engine)(nil)
	_ market.CandleSource      = (*Engine)(nil)
	_ market.TickSource        = (*Engine)(nil)
)

func NewEngine(o Options) *Engine {
	if o.Instruments == nil {
		o.Instruments = market.DefaultCatalog()
	}
	if o.Timeframe == "" {
		o.Timeframe = market.H1
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Start.IsZero() {
		o.Start = time.Now().UTC().Truncate(time.Hour)
	}
	if o.Account.Currency == "" {
		o.Account.Currency = "USD"
	}
	o.Account.Equity = o.Account.Balance
	o.Account.FreeMargin = o.Account.Balance
	return &Engine{
		acct:     o.Account,
		catalog:  o.Instruments,
		prices:   market.NewTickStore(),
		hist:     newHistory(o.Timeframe),
		trades:   make(map[string]*Trade),
		now:      o.Start,
		spread:   o.SpreadPips,
		leverage: o.Leverage,
		log:      o.Logger,
	}
}

// Now is the simulated clock.
func (e *Engine) Now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Advance moves the simulated clock forward.
func (e *Engine) Advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

func (e *Engine) meta(symbol string) (market.InstrumentMeta, error) {
	m, ok := e.catalog.Instrument(symbol)
	if !ok {
		return market.InstrumentMeta{}, fmt.Errorf("unknown instrument: %s", symbol)
	}
	if e.leverage > 0 {
		m.MarginRate = 1 / e.leverage
	}
	return m, nil
}

// SeedHistory generates bars bars of history for symbol ending at the
// current bar with a close of last.
func (e *Engine) SeedHistory(symbol string, last float64, bars int, seed int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hist.seed(symbol, last, bars, seed, e.now)
}

// SetPrice quotes symbol at mid with the configured spread, stamped with the
// simulated clock.
func (e *Engine) SetPrice(symbol string, mid float64) error {
	meta, err := e.meta(symbol)
	if err != nil {
		return err
	}
	if mid <= 0 {
		return fmt.Errorf("%s: price must be positive", symbol)
	}
	half := e.spread * meta.Point() / 2
	return e.UpdatePrice(market.Tick{
		Instrument: meta.Name,
		Time:       e.Now(),
		Bid:        mid - half,
		Ask:        mid + half,
	})
}

// UpdatePrice records a tick, closes trades whose stop or target is crossed,
// then revalues the account and enforces margin.
func (e *Engine) UpdatePrice(p market.Tick) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.Time.IsZero() {
		p.Time = e.now
	}
	e.prices.Set(p)
	if err := e.hist.record(p.Instrument, p.Time, p.Mid()); err != nil {
		return err
	}

	for _, t := range e.sortedOpen() {
		if t.Instrument != p.Instrument {
			continue
		}
		mark := markPrice(t, p)

		reason := ""
		switch {
		case t.triggerStopLoss(mark):
			reason = ReasonStopLoss
		case t.triggerTakeProfit(mark):
			reason = ReasonTakeProfit
		}
		if reason != "" {
			if err := e.closeTradeLocked(t, mark, p.Time, reason); err != nil {
				return err
			}
		}
	}

	if err := e.revalueLocked(); err != nil {
		return err
	}
	if err := e.recomputeMarginLocked(); err != nil {
		return err
	}
	return e.enforceMarginLocked()
}

// markPrice is the side a position would close on: longs on the bid,
// shorts on the ask.
func markPrice(t *Trade, p market.Tick) float64 {
	if t.Units < 0 {
		return p.Ask
	}
	return p.Bid
}

// OrderRequest opens a simulated position. A zero OpenPrice fills at the
// current ask (long) or bid (short).
type OrderRequest struct {
	Ticket     string
	Symbol     string
	Direction  broker.Direction
	Units      float64
	OpenPrice  float64
	StopLoss   float64
	TakeProfit float64
}

// Open books a position and returns its ticket.
func (e *Engine) Open(_ context.Context, req OrderRequest) (string, error) {
	meta, err := e.meta(req.Symbol)
	if err != nil {
		return "", err
	}
	if req.Units <= 0 {
		return "", fmt.Errorf("open %s: units must be positive", req.Symbol)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.prices.Get(meta.Name)
	if err != nil && req.OpenPrice <= 0 {
		return "", fmt.Errorf("open %s: %w", meta.Name, err)
	}

	units := req.Units
	fill := p.Ask
	if req.Direction == broker.Short {
		units = -units
		fill = p.Bid
	}
	if req.OpenPrice > 0 {
		fill = req.OpenPrice
	}

	ticket := req.Ticket
	if ticket == "" {
		ticket = id.NewAt(e.now)
	}
	if _, dup := e.trades[ticket]; dup {
		return "", fmt.Errorf("open %s: ticket %q already used", meta.Name, ticket)
	}

	e.trades[ticket] = &Trade{
		ID:         ticket,
		Instrument: meta.Name,
		Units:      units,
		EntryPrice: fill,
		OpenTime:   e.now,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Open:       true,
	}
	e.log.Info("sim position opened",
		zap.String("ticket", ticket),
		zap.String("symbol", meta.Name),
		zap.Stringer("direction", req.Direction),
		zap.Float64("units", req.Units),
		zap.Float64("price", fill),
	)

	if err := e.revalueLocked(); err != nil {
		return ticket, err
	}
	return ticket, e.recomputeMarginLocked()
}

// Close closes an open trade at the current market price.
func (e *Engine) Close(_ context.Context, ticket string, reason string) error {
	if reason == "" {
		reason = ReasonManual
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.trades[ticket]
	if !ok || !t.Open {
		return fmt.Errorf("close %q: %w", ticket, ErrTradeNotFound)
	}
	p, err := e.prices.Get(t.Instrument)
	if err != nil {
		return fmt.Errorf("close %q: no price for %q: %w", ticket, t.Instrument, err)
	}
	if err := e.closeTradeLocked(t, markPrice(t, p), e.now, reason); err != nil {
		return err
	}
	if err := e.revalueLocked(); err != nil {
		return err
	}
	return e.recomputeMarginLocked()
}

// Account implements broker.AccountProvider.
func (e *Engine) Account(_ context.Context) (broker.AccountSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return broker.AccountSnapshot{Time: e.now, Balance: e.acct.Balance, Equity: e.acct.Equity}, nil
}

// Details returns the full simulated account.
func (e *Engine) Details() Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct
}

// Positions implements broker.PositionProvider, ordered by ticket.
func (e *Engine) Positions(_ context.Context) ([]broker.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []broker.Position
	for _, t := range e.sortedOpen() {
		var mark float64
		if p, err := e.prices.Get(t.Instrument); err == nil {
			mark = markPrice(t, p)
		}
		out = append(out, t.position(mark))
	}
	return out, nil
}

// ModifyStops implements broker.OrderMutator. Like a real platform it
// refuses a stop on the wrong side of the market.
func (e *Engine) ModifyStops(_ context.Context, req broker.StopUpdateRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.trades[req.Ticket]
	if !ok || !t.Open {
		return fmt.Errorf("modify %q: %w", req.Ticket, ErrTradeNotFound)
	}
	if req.StopLoss > 0 {
		if p, err := e.prices.Get(t.Instrument); err == nil {
			mark := markPrice(t, p)
			if (t.Units > 0 && req.StopLoss >= mark) || (t.Units < 0 && req.StopLoss <= mark) {
				return fmt.Errorf("modify %q: stop %.5f on wrong side of market %.5f", req.Ticket, req.StopLoss, mark)
			}
		}
		t.StopLoss = req.StopLoss
	}
	if req.TakeProfit > 0 {
		t.TakeProfit = req.TakeProfit
	}
	return nil
}

// Trade returns a copy of a ticket, open or closed.
func (e *Engine) Trade(ticket string) (Trade, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.trades[ticket]
	if !ok {
		return Trade{}, false
	}
	return *t, true
}

// ClosedTrades implements broker.ClosedTradeSource.
func (e *Engine) ClosedTrades(_ context.Context) ([]broker.ClosedTrade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.closed
	e.closed = nil
	return out, nil
}

// Candles implements market.CandleSource.
func (e *Engine) Candles(_ context.Context, symbol string, tf market.Timeframe, count int) (market.CandleSeries, error) {
	meta, err := e.meta(symbol)
	if err != nil {
		return market.CandleSeries{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hist.candles(meta.Name, tf, count)
}

// GetTick implements market.TickSource.
func (e *Engine) GetTick(ctx context.Context, instr string) (market.Tick, error) {
	return e.prices.GetTick(ctx, instr)
}

func (e *Engine) sortedOpen() []*Trade {
	out := make([]*Trade, 0, len(e.trades))
	for _, t := range e.trades {
		if t.Open {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (e *Engine) rate(symbol string) (market.InstrumentMeta, float64, error) {
	meta, err := e.meta(symbol)
	if err != nil {
		return meta, 0, err
	}
	rate, err := market.QuoteToAccountRate(context.Background(), meta, e.acct.Currency, e.prices)
	return meta, rate, err
}

func (e *Engine) closeTradeLocked(t *Trade, closePrice float64, closeTime time.Time, reason string) error {
	_, rate, err := e.rate(t.Instrument)
	if err != nil {
		return err
	}

	pl := UnrealizedPL(*t, closePrice, rate)

	t.ClosePrice = closePrice
	t.CloseTime = closeTime
	t.RealizedPL = pl
	t.Reason = reason
	t.Open = false

	e.acct.Balance += pl
	e.closed = append(e.closed, t.closed())

	e.log.Info("sim position closed",
		zap.String("ticket", t.ID),
		zap.String("symbol", t.Instrument),
		zap.String("reason", reason),
		zap.Float64("price", closePrice),
		zap.Float64("pl", pl),
	)
	return nil
}

func (e *Engine) revalueLocked() error {
	equity := e.acct.Balance

	for _, t := range e.trades {
		if !t.Open {
			continue
		}
		p, err := e.prices.Get(t.Instrument)
		if err != nil {
			// carried at entry until quoted
			continue
		}
		_, rate, err := e.rate(t.Instrument)
		if err != nil {
			return err
		}
		equity += UnrealizedPL(*t, markPrice(t, p), rate)
	}

	e.acct.Equity = equity
	return nil
}

func (e *Engine) recomputeMarginLocked() error {
	var used float64

	for _, t := range e.trades {
		if !t.Open {
			continue
		}
		p, err := e.prices.Get(t.Instrument)
		if err != nil {
			continue
		}
		meta, rate, err := e.rate(t.Instrument)
		if err != nil {
			return err
		}
		// margin uses mid
		used += TradeMargin(t.Units, p.Mid(), meta, rate)
	}

	e.acct.MarginUsed = used
	e.acct.FreeMargin = e.acct.Equity - used
	if used > 0 {
		e.acct.MarginLevel = e.acct.Equity / used
	} else {
		e.acct.MarginLevel = 0
	}
	return nil
}

// enforceMarginLocked closes the worst open trade until equity covers the
// margin in use.
func (e *Engine) enforceMarginLocked() error {
	for e.acct.MarginUsed > 0 && e.acct.Equity < e.acct.MarginUsed {
		var worst *Trade
		var worstPL float64
		var worstMark float64

		for _, t := range e.sortedOpen() {
			p, err := e.prices.Get(t.Instrument)
			if err != nil {
				continue
			}
			_, rate, err := e.rate(t.Instrument)
			if err != nil {
				return err
			}
			mark := markPrice(t, p)
			pl := UnrealizedPL(*t, mark, rate)
			if worst == nil || pl < worstPL {
				worst, worstPL, worstMark = t, pl, mark
			}
		}
		if worst == nil {
			return nil
		}

		if err := e.closeTradeLocked(worst, worstMark, e.now, ReasonLiquidation); err != nil {
			return err
		}
		if err := e.revalueLocked(); err != nil {
			return err
		}
		if err := e.recomputeMarginLocked(); err != nil {
			return err
		}
	}
	return nil
}
