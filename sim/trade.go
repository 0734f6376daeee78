package sim

import (
	"math"
	"time"

	"github.com/rustyeddy/riskguard/broker"
)

// Trade is a simulated ticket. Units are signed: positive long, negative
// short. A zero StopLoss or TakeProfit is unset.
type Trade struct {
	ID         string
	Instrument string
	Units      float64
	EntryPrice float64
	OpenTime   time.Time

	StopLoss   float64
	TakeProfit float64

	// Realized
	ClosePrice float64
	CloseTime  time.Time
	RealizedPL float64 // account currency
	Reason     string
	Open       bool
}

func (t *Trade) direction() broker.Direction {
	if t.Units < 0 {
		return broker.Short
	}
	return broker.Long
}

// triggerStopLoss reports whether mark crosses the stop. Longs are marked on
// the bid, shorts on the ask.
func (t *Trade) triggerStopLoss(mark float64) bool {
	if t.StopLoss <= 0 {
		return false
	}
	if t.Units > 0 {
		return mark <= t.StopLoss
	}
	return mark >= t.StopLoss
}

func (t *Trade) triggerTakeProfit(mark float64) bool {
	if t.TakeProfit <= 0 {
		return false
	}
	if t.Units > 0 {
		return mark >= t.TakeProfit
	}
	return mark <= t.TakeProfit
}

func (t *Trade) position(mark float64) broker.Position {
	return broker.Position{
		Ticket:       t.ID,
		Symbol:       t.Instrument,
		Direction:    t.direction(),
		Volume:       math.Abs(t.Units),
		OpenPrice:    t.EntryPrice,
		CurrentPrice: mark,
		StopLoss:     t.StopLoss,
		TakeProfit:   t.TakeProfit,
	}
}

func (t *Trade) closed() broker.ClosedTrade {
	return broker.ClosedTrade{
		Ticket:     t.ID,
		Symbol:     t.Instrument,
		CloseTime:  t.CloseTime,
		RealizedPL: t.RealizedPL,
	}
}
