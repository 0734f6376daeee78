package oanda

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rustyeddy/riskguard/broker"
	"github.com/rustyeddy/riskguard/market"
)

var (
	_ broker.AccountProvider   = (*Client)(nil)
	_ broker.PositionProvider  = (*Client)(nil)
	_ broker.OrderMutator      = (*Client)(nil)
	_ broker.ClosedTradeSource = (*Client)(nil)
	_ market.CandleSource      = (*Client)(nil)
)

type accountSummary struct {
	Account struct {
		Balance  string `json:"balance"`
		NAV      string `json:"NAV"`
		Currency string `json:"currency"`
	} `json:"account"`
}

// Account returns balance and net asset value as an account snapshot.
func (c *Client) Account(ctx context.Context) (broker.AccountSnapshot, error) {
	var resp accountSummary
	if err := c.do(ctx, http.MethodGet, c.accountPath("summary"), nil, nil, &resp); err != nil {
		return broker.AccountSnapshot{}, fmt.Errorf("account summary: %w", err)
	}
	bal, err := num(resp.Account.Balance)
	if err != nil {
		return broker.AccountSnapshot{}, fmt.Errorf("balance: %w", err)
	}
	nav, err := num(resp.Account.NAV)
	if err != nil {
		return broker.AccountSnapshot{}, fmt.Errorf("NAV: %w", err)
	}
	return broker.AccountSnapshot{Time: c.now(), Balance: bal, Equity: nav}, nil
}

type priceLevel struct {
	Price string `json:"price"`
}

type apiTrade struct {
	ID              string      `json:"id"`
	Instrument      string      `json:"instrument"`
	Price           string      `json:"price"`
	CurrentUnits    string      `json:"currentUnits"`
	InitialUnits    string      `json:"initialUnits"`
	State           string      `json:"state"`
	RealizedPL      string      `json:"realizedPL"`
	CloseTime       time.Time   `json:"closeTime"`
	StopLossOrder   *priceLevel `json:"stopLossOrder,omitempty"`
	TakeProfitOrder *priceLevel `json:"takeProfitOrder,omitempty"`
}

type tradesResponse struct {
	Trades []apiTrade `json:"trades"`
}

type apiPrice struct {
	Instrument  string `json:"instrument"`
	CloseoutBid string `json:"closeoutBid"`
	CloseoutAsk string `json:"closeoutAsk"`
}

type pricingResponse struct {
	Prices []apiPrice `json:"prices"`
}

// Positions returns the open trades, each marked at the price it would close
// at: longs on the bid, shorts on the ask.
func (c *Client) Positions(ctx context.Context) ([]broker.Position, error) {
	var resp tradesResponse
	if err := c.do(ctx, http.MethodGet, c.accountPath("openTrades"), nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("open trades: %w", err)
	}
	if len(resp.Trades) == 0 {
		return nil, nil
	}

	marks, err := c.quotes(ctx, resp.Trades)
	if err != nil {
		// positions without a quote fall back to their open price
		c.log.Warn("pricing unavailable", zap.Error(err))
	}

	out := make([]broker.Position, 0, len(resp.Trades))
	for _, t := range resp.Trades {
		p, err := toPosition(t)
		if err != nil {
			return nil, fmt.Errorf("trade %s: %w", t.ID, err)
		}
		if q, ok := marks[t.Instrument]; ok {
			if p.Direction == broker.Long {
				p.CurrentPrice = q[0]
			} else {
				p.CurrentPrice = q[1]
			}
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

func toPosition(t apiTrade) (broker.Position, error) {
	units, err := num(t.CurrentUnits)
	if err != nil {
		return broker.Position{}, err
	}
	open, err := num(t.Price)
	if err != nil {
		return broker.Position{}, err
	}
	p := broker.Position{
		Ticket:    t.ID,
		Symbol:    t.Instrument,
		Direction: broker.Long,
		Volume:    units,
		OpenPrice: open,
	}
	if units < 0 {
		p.Direction = broker.Short
		p.Volume = -units
	}
	if t.StopLossOrder != nil {
		if p.StopLoss, err = num(t.StopLossOrder.Price); err != nil {
			return broker.Position{}, err
		}
	}
	if t.TakeProfitOrder != nil {
		if p.TakeProfit, err = num(t.TakeProfitOrder.Price); err != nil {
			return broker.Position{}, err
		}
	}
	return p, nil
}

// quotes returns bid and ask per instrument of trades.
func (c *Client) quotes(ctx context.Context, trades []apiTrade) (map[string][2]float64, error) {
	set := map[string]bool{}
	var syms []string
	for _, t := range trades {
		if !set[t.Instrument] {
			set[t.Instrument] = true
			syms = append(syms, t.Instrument)
		}
	}
	sort.Strings(syms)

	q := url.Values{}
	q.Set("instruments", strings.Join(syms, ","))
	var resp pricingResponse
	if err := c.do(ctx, http.MethodGet, c.accountPath("pricing"), q, nil, &resp); err != nil {
		return nil, err
	}
	out := make(map[string][2]float64, len(resp.Prices))
	for _, p := range resp.Prices {
		bid, err := num(p.CloseoutBid)
		if err != nil {
			return out, err
		}
		ask, err := num(p.CloseoutAsk)
		if err != nil {
			return out, err
		}
		out[p.Instrument] = [2]float64{bid, ask}
	}
	return out, nil
}

type orderDetails struct {
	Price       string `json:"price"`
	TimeInForce string `json:"timeInForce"`
}

type tradeOrdersRequest struct {
	StopLoss   *orderDetails `json:"stopLoss,omitempty"`
	TakeProfit *orderDetails `json:"takeProfit,omitempty"`
}

// ModifyStops replaces the stop loss, and the take profit when one is given,
// of an open trade. Prices are sent at the instrument display precision.
func (c *Client) ModifyStops(ctx context.Context, req broker.StopUpdateRequest) error {
	prec, err := c.precision(ctx, req.Ticket)
	if err != nil {
		return err
	}
	body := tradeOrdersRequest{}
	if req.StopLoss > 0 {
		body.StopLoss = &orderDetails{Price: decimal.NewFromFloat(req.StopLoss).StringFixed(prec), TimeInForce: "GTC"}
	}
	if req.TakeProfit > 0 {
		body.TakeProfit = &orderDetails{Price: decimal.NewFromFloat(req.TakeProfit).StringFixed(prec), TimeInForce: "GTC"}
	}
	if body.StopLoss == nil && body.TakeProfit == nil {
		return fmt.Errorf("modify %s: nothing to change", req.Ticket)
	}
	path := c.accountPath("trades", url.PathEscape(req.Ticket), "orders")
	if err := c.do(ctx, http.MethodPut, path, nil, body, nil); err != nil {
		return fmt.Errorf("modify %s: %w", req.Ticket, err)
	}
	c.log.Info("stops modified", zap.String("ticket", req.Ticket), zap.Float64("sl", req.StopLoss))
	return nil
}

func (c *Client) precision(ctx context.Context, ticket string) (int32, error) {
	var resp struct {
		Trade apiTrade `json:"trade"`
	}
	if err := c.do(ctx, http.MethodGet, c.accountPath("trades", url.PathEscape(ticket)), nil, nil, &resp); err != nil {
		return 0, fmt.Errorf("modify %s: %w", ticket, err)
	}
	meta, ok := c.instruments.Instrument(resp.Trade.Instrument)
	if !ok {
		return 0, fmt.Errorf("modify %s: unknown instrument %q", ticket, resp.Trade.Instrument)
	}
	return meta.Precision(), nil
}

// ClosedTrades reports trades closed since the previous call, oldest first.
// The first call only records what is already closed.
func (c *Client) ClosedTrades(ctx context.Context) ([]broker.ClosedTrade, error) {
	q := url.Values{}
	q.Set("state", "CLOSED")
	q.Set("count", "100")
	var resp tradesResponse
	if err := c.do(ctx, http.MethodGet, c.accountPath("trades"), q, nil, &resp); err != nil {
		return nil, fmt.Errorf("closed trades: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	baseline := c.seenClosed == nil
	if baseline {
		c.seenClosed = map[string]bool{}
	}

	var out []broker.ClosedTrade
	for _, t := range resp.Trades {
		if c.seenClosed[t.ID] {
			continue
		}
		c.seenClosed[t.ID] = true
		if baseline {
			continue
		}
		pl, err := num(t.RealizedPL)
		if err != nil {
			return out, fmt.Errorf("trade %s: %w", t.ID, err)
		}
		out = append(out, broker.ClosedTrade{
			Ticket:     t.ID,
			Symbol:     t.Instrument,
			CloseTime:  t.CloseTime,
			RealizedPL: pl,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CloseTime.Before(out[j].CloseTime) })
	return out, nil
}
