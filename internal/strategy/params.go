package strategy

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is wrapped by every parameter validation failure.
var ErrInvalidConfig = errors.New("invalid strategy config")

// ConfigurationError names the offending parameter.
type ConfigurationError struct {
	Strategy string
	Field    string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s.%s %s", ErrInvalidConfig, e.Strategy, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrInvalidConfig }

// LevelMode selects how stop and target are placed.
type LevelMode string

const (
	// LevelsATR places stop and target at fixed ATR multiples from price.
	LevelsATR LevelMode = "atr"
	// LevelsStructure snaps stop and target to nearby support/resistance and
	// Bollinger levels, subject to a minimum stop distance and risk/reward.
	LevelsStructure LevelMode = "structure"
)

// Common holds the parameters every variant shares.
type Common struct {
	MinATRPct  float64    `yaml:"min_atr_pct"`
	MaxATRPct  float64    `yaml:"max_atr_pct"`
	Thresholds Thresholds `yaml:"thresholds"`
	StopATR    float64    `yaml:"stop_atr"`
	TargetATR  float64    `yaml:"target_atr"`
	Levels     LevelMode  `yaml:"levels"`

	MinRiskReward      float64 `yaml:"min_risk_reward"`
	MinStopATR         float64 `yaml:"min_stop_atr"`
	StructureBufferATR float64 `yaml:"structure_buffer_atr"`
	// PricePrecision is the number of decimals stop and target are rounded
	// to. Negative disables rounding.
	PricePrecision int `yaml:"price_precision"`
}

func defaultCommon() Common {
	return Common{
		Levels:             LevelsATR,
		MinRiskReward:      1.0,
		MinStopATR:         0.5,
		StructureBufferATR: 0.25,
		PricePrecision:     2,
	}
}

func (c Common) validate(name string) error {
	bad := func(field, reason string) error {
		return &ConfigurationError{Strategy: name, Field: field, Reason: reason}
	}
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

	if !finite(c.MinATRPct) || c.MinATRPct < 0 {
		return bad("min_atr_pct", "must be >= 0")
	}
	if !finite(c.MaxATRPct) || c.MinATRPct >= c.MaxATRPct {
		return bad("max_atr_pct", "must be greater than min_atr_pct")
	}
	t := c.Thresholds
	if !(t.Entry > 0) || !(t.Buy > 0) {
		return bad("thresholds", "entry and buy must be > 0")
	}
	if t.Entry > t.Strong || t.Buy > t.Strong {
		return bad("thresholds", "entry and buy must not exceed strong")
	}
	if !(c.StopATR > 0) || !(c.TargetATR > 0) || !finite(c.StopATR) || !finite(c.TargetATR) {
		return bad("stop_atr", "stop and target multipliers must be > 0")
	}
	if !(c.MinRiskReward > 0) {
		return bad("min_risk_reward", "must be > 0")
	}
	if c.MinStopATR < 0 || c.StructureBufferATR < 0 {
		return bad("min_stop_atr", "must be >= 0")
	}
	switch c.Levels {
	case LevelsATR:
	case LevelsStructure:
		if c.StopATR < c.MinStopATR {
			return bad("stop_atr", "must be >= min_stop_atr in structure mode")
		}
	default:
		return bad("levels", fmt.Sprintf("unknown mode %q", c.Levels))
	}
	return nil
}

// CompositeParams configures the regime-weighted "score" strategy.
type CompositeParams struct {
	Common `yaml:",inline"`
	// TrendFilter suppresses signals against the MA50/MA200 trend.
	TrendFilter bool `yaml:"trend_filter"`
}

func DefaultCompositeParams() CompositeParams {
	c := defaultCommon()
	c.MinATRPct, c.MaxATRPct = 0.3, 5
	c.Thresholds = Thresholds{Entry: 28, Buy: 28, Strong: 45}
	c.StopATR, c.TargetATR = 2.8, 1.6
	return CompositeParams{Common: c, TrendFilter: true}
}

func (p CompositeParams) Validate() error { return p.validate(NameComposite) }

// TrendParams configures the pullback-in-trend strategy.
type TrendParams struct {
	Common      `yaml:",inline"`
	MinADX      float64 `yaml:"min_adx"`
	MinPullback float64 `yaml:"min_pullback"`
}

func DefaultTrendParams() TrendParams {
	c := defaultCommon()
	c.MinATRPct, c.MaxATRPct = 0.2, 4
	c.Thresholds = Thresholds{Entry: 50, Buy: 35, Strong: 60}
	c.StopATR, c.TargetATR = 0.8, 2.2
	return TrendParams{Common: c, MinADX: 28, MinPullback: 40}
}

func (p TrendParams) Validate() error {
	if err := p.validate(NameTrend); err != nil {
		return err
	}
	if p.MinADX < 0 || p.MinADX > 100 {
		return &ConfigurationError{Strategy: NameTrend, Field: "min_adx", Reason: "must be within [0, 100]"}
	}
	return nil
}

// BreakoutParams configures the band/range breakout strategy. The stop is
// placed StopATR below the broken level; Levels is not consulted.
type BreakoutParams struct {
	Common         `yaml:",inline"`
	MinVolumeRatio float64 `yaml:"min_volume_ratio"`
	ADXConfirm     float64 `yaml:"adx_confirm"`
}

func DefaultBreakoutParams() BreakoutParams {
	c := defaultCommon()
	c.MinATRPct, c.MaxATRPct = 0.3, 4
	c.Thresholds = Thresholds{Entry: 50, Buy: 50, Strong: 70}
	c.StopATR, c.TargetATR = 0.5, 3
	return BreakoutParams{Common: c, MinVolumeRatio: 1.5, ADXConfirm: 25}
}

func (p BreakoutParams) Validate() error {
	if err := p.validate(NameBreakout); err != nil {
		return err
	}
	if p.MinVolumeRatio < 0 {
		return &ConfigurationError{Strategy: NameBreakout, Field: "min_volume_ratio", Reason: "must be >= 0"}
	}
	return nil
}

// ComboParams configures the regime-switching strategy. Common.StopATR and
// Common.TargetATR apply in the trending regime.
type ComboParams struct {
	Common         `yaml:",inline"`
	TrendADX       float64 `yaml:"trend_adx"`
	RangeADX       float64 `yaml:"range_adx"`
	RangeStopATR   float64 `yaml:"range_stop_atr"`
	RangeTargetATR float64 `yaml:"range_target_atr"`
}

func DefaultComboParams() ComboParams {
	c := defaultCommon()
	c.MinATRPct, c.MaxATRPct = 0.2, 4
	c.Thresholds = Thresholds{Entry: 50, Buy: 50, Strong: 60}
	c.StopATR, c.TargetATR = 0.9, 2.0
	return ComboParams{Common: c, TrendADX: 28, RangeADX: 18, RangeStopATR: 0.8, RangeTargetATR: 1.0}
}

func (p ComboParams) Validate() error {
	if err := p.validate(NameCombo); err != nil {
		return err
	}
	if p.RangeADX >= p.TrendADX {
		return &ConfigurationError{Strategy: NameCombo, Field: "range_adx", Reason: "must be below trend_adx"}
	}
	if !(p.RangeStopATR > 0) || !(p.RangeTargetATR > 0) {
		return &ConfigurationError{Strategy: NameCombo, Field: "range_stop_atr", Reason: "range multipliers must be > 0"}
	}
	if p.Levels == LevelsStructure && p.RangeStopATR < p.MinStopATR {
		return &ConfigurationError{Strategy: NameCombo, Field: "range_stop_atr", Reason: "must be >= min_stop_atr in structure mode"}
	}
	return nil
}

// MeanRevParams configures the overnight mean-reversion strategy.
type MeanRevParams struct {
	Common `yaml:",inline"`
}

func DefaultMeanRevParams() MeanRevParams {
	c := defaultCommon()
	c.MinATRPct, c.MaxATRPct = 0.2, 3
	c.Thresholds = Thresholds{Entry: 50, Buy: 30, Strong: 50}
	c.StopATR, c.TargetATR = 0.8, 1.0
	c.Levels = LevelsStructure
	return MeanRevParams{Common: c}
}

func (p MeanRevParams) Validate() error { return p.validate(NameMeanRev) }

// Params bundles the per-variant parameters, as loaded from config.
type Params struct {
	Composite CompositeParams `yaml:"score"`
	Trend     TrendParams     `yaml:"trend"`
	Breakout  BreakoutParams  `yaml:"breakout"`
	Combo     ComboParams     `yaml:"combo"`
	MeanRev   MeanRevParams   `yaml:"meanrev"`
}

func DefaultParams() Params {
	return Params{
		Composite: DefaultCompositeParams(),
		Trend:     DefaultTrendParams(),
		Breakout:  DefaultBreakoutParams(),
		Combo:     DefaultComboParams(),
		MeanRev:   DefaultMeanRevParams(),
	}
}

func (p Params) Validate() error {
	return errors.Join(
		p.Composite.Validate(),
		p.Trend.Validate(),
		p.Breakout.Validate(),
		p.Combo.Validate(),
		p.MeanRev.Validate(),
	)
}
