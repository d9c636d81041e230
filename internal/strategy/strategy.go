// Package strategy turns indicator snapshots into directional trade signals.
//
// Every strategy is a pure function of its parameters and the snapshot it is
// given; a nil *Signal means no actionable setup.
package strategy

import (
	"math"
	"time"

	"github.com/amirphl/signal-trader/internal/indicator"
)

type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

type Category string

const (
	StrongBuy  Category = "strong_buy"
	Buy        Category = "buy"
	Neutral    Category = "neutral"
	Sell       Category = "sell"
	StrongSell Category = "strong_sell"
)

// Strategy is the interface for all scoring strategies.
type Strategy interface {
	Name() string
	Analyze(snap indicator.Snapshot, timeframe string) *Signal
}

type Signal struct {
	Strategy   string    `json:"strategy"`
	Direction  Direction `json:"direction"`
	Category   Category  `json:"category"`
	Strength   int       `json:"strength"`
	Score      float64   `json:"score"`
	Price      float64   `json:"price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	Reasons    []string  `json:"reasons"`
	Timeframe  string    `json:"timeframe"`
	Time       time.Time `json:"time"` // bar time of the snapshot
}

// RiskReward is the target distance over the stop distance.
func (s *Signal) RiskReward() float64 {
	risk := math.Abs(s.Price - s.StopLoss)
	if risk == 0 {
		return 0
	}
	return math.Abs(s.TakeProfit-s.Price) / risk
}

// Thresholds maps a signed score to a category. Scores whose magnitude is
// below Entry never produce a signal.
type Thresholds struct {
	Entry  float64 `yaml:"entry"`
	Buy    float64 `yaml:"buy"`
	Strong float64 `yaml:"strong"`
}

func (t Thresholds) Categorize(score float64) Category {
	switch {
	case score >= t.Strong:
		return StrongBuy
	case score >= t.Buy:
		return Buy
	case score <= -t.Strong:
		return StrongSell
	case score <= -t.Buy:
		return Sell
	}
	return Neutral
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// strength is |score| truncated and capped at 100.
func strength(score float64) int {
	return int(math.Min(100, math.Abs(math.Trunc(score))))
}
