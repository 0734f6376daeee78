package broker

import (
	"context"
	"fmt"
	"time"
)

// AccountSnapshot is one immutable account sample.
type AccountSnapshot struct {
	Time    time.Time
	Balance float64
	Equity  float64
}

// Direction is the side of an open position.
type Direction int

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection accepts long/buy and short/sell.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "long", "buy", "LONG", "BUY":
		return Long, nil
	case "short", "sell", "SHORT", "SELL":
		return Short, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Position is an open position as reported by the platform. A zero StopLoss
// or TakeProfit means the level is unset; a zero CurrentPrice means the
// platform has no quote for the symbol.
type Position struct {
	Ticket       string
	Symbol       string
	Direction    Direction
	Volume       float64
	OpenPrice    float64
	CurrentPrice float64
	StopLoss     float64
	TakeProfit   float64
}

func (p Position) HasStopLoss() bool { return p.StopLoss > 0 }

// ClosedTrade is the outcome of a trade once it leaves the book.
type ClosedTrade struct {
	Ticket     string
	Symbol     string
	CloseTime  time.Time
	RealizedPL float64
}

func (c ClosedTrade) IsLoss() bool { return c.RealizedPL < 0 }

// StopUpdateRequest asks the platform to move the protective levels of a
// position. A zero TakeProfit leaves the current take profit in place.
type StopUpdateRequest struct {
	Ticket     string
	StopLoss   float64
	TakeProfit float64
}

type AccountProvider interface {
	Account(ctx context.Context) (AccountSnapshot, error)
}

type PositionProvider interface {
	Positions(ctx context.Context) ([]Position, error)
}

type OrderMutator interface {
	ModifyStops(ctx context.Context, req StopUpdateRequest) error
}

// ClosedTradeSource reports trades that left the book since the previous
// call, oldest first.
type ClosedTradeSource interface {
	ClosedTrades(ctx context.Context) ([]ClosedTrade, error)
}
