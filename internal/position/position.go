// Package position tracks a single simulated position from entry to exit.
package position

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/strategy"
)

type ExitReason string

const (
	ExitStopLoss    ExitReason = "stop_loss"
	ExitTakeProfit  ExitReason = "take_profit"
	ExitForcedClose ExitReason = "forced_close"
)

// Position is an open trade. Size is the fraction of capital committed.
type Position struct {
	Strategy       string             `json:"strategy"`
	Symbol         string             `json:"symbol"`
	Direction      strategy.Direction `json:"direction"`
	EntryTime      time.Time          `json:"entry_time"`
	EntryPrice     float64            `json:"entry_price"`
	StopLoss       float64            `json:"stop_loss"`
	TakeProfit     float64            `json:"take_profit"`
	Size           float64            `json:"size"`
	Leverage       float64            `json:"leverage"`
	CapitalAtEntry float64            `json:"capital_at_entry"`
	Strength       int                `json:"strength"`
}

// ClosedTrade is an immutable record of a finished position.
type ClosedTrade struct {
	Position
	ExitTime   time.Time  `json:"exit_time"`
	ExitPrice  float64    `json:"exit_price"`
	ExitReason ExitReason `json:"exit_reason"`
	// ReturnPct is the raw price return signed by direction, as a fraction.
	ReturnPct float64 `json:"return_pct"`
	PnL       float64 `json:"pnl"`
	// PnLPct is PnL as a fraction of capital at entry.
	PnLPct     float64 `json:"pnl_pct"`
	Liquidated bool    `json:"liquidated"`
}

// Open creates a position from a signal filled at entryPrice.
func Open(sig *strategy.Signal, symbol string, entryTime time.Time, entryPrice, size, leverage, capital float64) (*Position, error) {
	if sig == nil {
		return nil, errors.New("nil signal")
	}
	if !(entryPrice > 0) || math.IsInf(entryPrice, 0) {
		return nil, fmt.Errorf("invalid entry price %v", entryPrice)
	}
	if !(size > 0) || size > 1 {
		return nil, fmt.Errorf("position size %v out of (0, 1]", size)
	}
	if !(leverage > 0) {
		return nil, fmt.Errorf("invalid leverage %v", leverage)
	}
	if !(capital > 0) {
		return nil, fmt.Errorf("no capital to open position (%v)", capital)
	}
	p := &Position{
		Strategy:       sig.Strategy,
		Symbol:         symbol,
		Direction:      sig.Direction,
		EntryTime:      entryTime,
		EntryPrice:     entryPrice,
		StopLoss:       sig.StopLoss,
		TakeProfit:     sig.TakeProfit,
		Size:           size,
		Leverage:       leverage,
		CapitalAtEntry: capital,
		Strength:       sig.Strength,
	}
	if !p.bracketed() {
		return nil, fmt.Errorf("stop %v and target %v do not bracket %s entry %v",
			p.StopLoss, p.TakeProfit, p.Direction, entryPrice)
	}
	return p, nil
}

func (p *Position) bracketed() bool {
	if p.Direction == strategy.Short {
		return p.TakeProfit < p.EntryPrice && p.EntryPrice < p.StopLoss
	}
	return p.StopLoss < p.EntryPrice && p.EntryPrice < p.TakeProfit
}

// CheckExit tests the bar's range against stop and target. The stop is
// checked first, so a bar touching both exits at the stop.
func (p *Position) CheckExit(bar candle.Candle) (price float64, reason ExitReason, hit bool) {
	if p.Direction == strategy.Short {
		if bar.High >= p.StopLoss {
			return p.StopLoss, ExitStopLoss, true
		}
		if bar.Low <= p.TakeProfit {
			return p.TakeProfit, ExitTakeProfit, true
		}
		return 0, "", false
	}
	if bar.Low <= p.StopLoss {
		return p.StopLoss, ExitStopLoss, true
	}
	if bar.High >= p.TakeProfit {
		return p.TakeProfit, ExitTakeProfit, true
	}
	return 0, "", false
}

// ReturnPct is the unleveraged price return at price, signed by direction.
func (p *Position) ReturnPct(price float64) float64 {
	r := (price - p.EntryPrice) / p.EntryPrice
	if p.Direction == strategy.Short {
		return -r
	}
	return r
}

// PnL is the leveraged profit at price. A leveraged return at or below -100%
// liquidates the committed slice: the loss is capped at CapitalAtEntry*Size.
func (p *Position) PnL(price float64) (pnl float64, liquidated bool) {
	r := p.ReturnPct(price)
	if r*p.Leverage <= -1 {
		return -p.CapitalAtEntry * p.Size, true
	}
	return p.CapitalAtEntry * r * p.Leverage * p.Size, false
}

// Settle closes the position at price and returns the trade record.
func (p *Position) Settle(exitTime time.Time, price float64, reason ExitReason) ClosedTrade {
	pnl, liquidated := p.PnL(price)
	return ClosedTrade{
		Position:   *p,
		ExitTime:   exitTime,
		ExitPrice:  price,
		ExitReason: reason,
		ReturnPct:  p.ReturnPct(price),
		PnL:        pnl,
		PnLPct:     pnl / p.CapitalAtEntry,
		Liquidated: liquidated,
	}
}

func (t ClosedTrade) Duration() time.Duration {
	return t.ExitTime.Sub(t.EntryTime)
}

func (t ClosedTrade) IsWin() bool {
	return t.PnL > 0
}
