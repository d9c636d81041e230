package backtest

import "fmt"

// Sizer decides the capital fraction committed to a new position.
type Sizer interface {
	Size(strength int, risk RiskState) float64
}

// TieredSizer scales Base by signal strength and halves it after a losing
// streak.
type TieredSizer struct {
	Base float64
}

func (s TieredSizer) Size(strength int, risk RiskState) float64 {
	size := 0.6
	switch {
	case strength >= 50:
		size = 1.0
	case strength >= 40:
		size = 0.8
	}
	if risk.ConsecutiveLosses >= 2 {
		size *= 0.5
	}
	return size * s.Base
}

// FixedSizer always commits the same fraction.
type FixedSizer struct {
	Fraction float64
}

func (s FixedSizer) Size(int, RiskState) float64 {
	return s.Fraction
}

const (
	SizingTiered = "tiered"
	SizingFixed  = "fixed"
)

// NewSizer builds the sizer named by policy around the base fraction.
func NewSizer(policy string, base float64) (Sizer, error) {
	switch policy {
	case "", SizingTiered:
		return TieredSizer{Base: base}, nil
	case SizingFixed:
		return FixedSizer{Fraction: base}, nil
	}
	return nil, fmt.Errorf("%w: unknown sizing policy %q", ErrInvalidConfig, policy)
}
