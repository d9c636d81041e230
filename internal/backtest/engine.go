// Package backtest replays bar history through a strategy and aggregates the
// resulting trades.
package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/indicator"
	"github.com/amirphl/signal-trader/internal/position"
	"github.com/amirphl/signal-trader/internal/strategy"
	"github.com/amirphl/signal-trader/internal/tfutils"
	"github.com/amirphl/signal-trader/internal/utils"
)

// ErrInvalidConfig is returned for engine parameters that cannot be run.
var ErrInvalidConfig = errors.New("invalid backtest config")

// Config holds the capital, leverage, sizing and risk settings of a run.
type Config struct {
	InitialCapital float64 `yaml:"initial_capital"`
	Leverage       float64 `yaml:"leverage"`
	PositionSize   float64 `yaml:"position_size"`
	Sizing         string  `yaml:"sizing"`
	// CooldownAfterLosses consecutive losing closes block entries for
	// CooldownBars bars after the closing bar.
	CooldownAfterLosses int `yaml:"cooldown_after_losses"`
	CooldownBars        int `yaml:"cooldown_bars"`
	// PeriodsPerYear annualizes the Sharpe ratio. Zero derives it from the
	// timeframe, or from bar spacing when the timeframe is unknown.
	PeriodsPerYear float64          `yaml:"periods_per_year"`
	Indicators     indicator.Config `yaml:"indicators"`
	// EntryWindow restricts new positions to bars opening inside it. The
	// zero value allows every hour.
	EntryWindow EntryWindow `yaml:"entry_window"`

	Symbol    string `yaml:"-"`
	Timeframe string `yaml:"-"`
	// Sizer overrides Sizing when set.
	Sizer Sizer `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		InitialCapital:      10000,
		Leverage:            1,
		PositionSize:        1,
		Sizing:              SizingTiered,
		CooldownAfterLosses: 3,
		CooldownBars:        5,
		Indicators:          indicator.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	switch {
	case !(c.InitialCapital > 0) || math.IsInf(c.InitialCapital, 0):
		return fmt.Errorf("%w: initial capital must be positive, got %v", ErrInvalidConfig, c.InitialCapital)
	case !(c.Leverage > 0) || math.IsInf(c.Leverage, 0):
		return fmt.Errorf("%w: leverage must be positive, got %v", ErrInvalidConfig, c.Leverage)
	case !(c.PositionSize > 0) || c.PositionSize > 1:
		return fmt.Errorf("%w: position size must be in (0, 1], got %v", ErrInvalidConfig, c.PositionSize)
	case c.CooldownAfterLosses < 0 || c.CooldownBars < 0:
		return fmt.Errorf("%w: cooldown settings cannot be negative", ErrInvalidConfig)
	case c.PeriodsPerYear < 0:
		return fmt.Errorf("%w: periods per year cannot be negative", ErrInvalidConfig)
	case c.EntryWindow.StartHour < 0 || c.EntryWindow.StartHour > 23 ||
		c.EntryWindow.EndHour < 0 || c.EntryWindow.EndHour > 24:
		return fmt.Errorf("%w: entry window needs start in 0-23 and end in 0-24, got %d-%d",
			ErrInvalidConfig, c.EntryWindow.StartHour, c.EntryWindow.EndHour)
	}
	if c.Sizer == nil {
		if _, err := NewSizer(c.Sizing, c.PositionSize); err != nil {
			return err
		}
	}
	if err := c.Indicators.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// EntryWindow is a range of UTC hours [StartHour, EndHour). A start after
// the end wraps past midnight, so {22, 2} covers 22:00 to 01:59. Equal bounds
// cover the whole day.
type EntryWindow struct {
	StartHour int `yaml:"start_hour"`
	EndHour   int `yaml:"end_hour"`
}

// Contains reports whether t falls inside the window.
func (w EntryWindow) Contains(t time.Time) bool {
	start, end := w.StartHour, w.EndHour%24
	if start == end {
		return true
	}
	h := t.UTC().Hour()
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

// RiskState throttles entries after losing streaks.
type RiskState struct {
	ConsecutiveLosses int `json:"consecutive_losses"`
	CooldownRemaining int `json:"cooldown_remaining"`
}

// record applies a closed trade to the streak counters. It reports whether
// the cooldown was armed.
func (r *RiskState) record(trade position.ClosedTrade, after, bars int) bool {
	if trade.PnL >= 0 {
		r.ConsecutiveLosses = 0
		return false
	}
	r.ConsecutiveLosses++
	if after > 0 && r.ConsecutiveLosses >= after && bars > 0 {
		r.CooldownRemaining = bars
		return true
	}
	return false
}

// EquityPoint is the marked-to-market equity at the close of one bar.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
	Price  float64   `json:"price"`
}

// SimulationState is everything carried from one bar to the next.
type SimulationState struct {
	Capital  float64
	Position *position.Position
	Risk     RiskState
	Trades   []position.ClosedTrade
	Equity   []EquityPoint
	Bankrupt bool
}

// Result is the outcome of one Engine run.
type Result struct {
	// RunID is empty until SaveResult assigns one.
	RunID          string                 `json:"run_id"`
	Strategy       string                 `json:"strategy"`
	Symbol         string                 `json:"symbol"`
	Timeframe      string                 `json:"timeframe"`
	Start          time.Time              `json:"start"`
	End            time.Time              `json:"end"`
	Bars           int                    `json:"bars"`
	InitialCapital float64                `json:"initial_capital"`
	FinalCapital   float64                `json:"final_capital"`
	Leverage       float64                `json:"leverage"`
	Bankrupt       bool                   `json:"bankrupt"`
	Trades         []position.ClosedTrade `json:"trades"`
	Equity         []EquityPoint          `json:"equity"`
	// Stats is nil when the run closed no trades.
	Stats *Stats `json:"stats,omitempty"`
}

// Engine runs one strategy over one bar series. An Engine holds no state
// between runs.
type Engine struct {
	cfg      Config
	strategy strategy.Strategy
	sizer    Sizer
	producer *indicator.Producer
}

func NewEngine(cfg Config, strat strategy.Strategy) (*Engine, error) {
	if strat == nil {
		return nil, fmt.Errorf("%w: nil strategy", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sizer := cfg.Sizer
	if sizer == nil {
		sizer, _ = NewSizer(cfg.Sizing, cfg.PositionSize)
	}
	producer, err := indicator.NewProducer(cfg.Indicators)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &Engine{cfg: cfg, strategy: strat, sizer: sizer, producer: producer}, nil
}

// Run replays bars in order. Each bar goes through exit checks, the cooldown
// tick, entry checks and equity recording, in that order. Replay starts at
// the first bar with a ready indicator snapshot.
func (e *Engine) Run(bars []candle.Candle) (*Result, error) {
	if err := candle.ValidateSeries(bars); err != nil {
		return nil, err
	}
	snaps := e.producer.Compute(bars)
	start := -1
	for i, s := range snaps {
		if s.Ready {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, fmt.Errorf("%w: %d bars, need %d", indicator.ErrInsufficientData, len(bars), e.producer.MinBars())
	}

	logger := utils.GetLogger()
	logger.Debugf("Engine.Run | %s on %s %s: replaying %d bars from %s",
		e.strategy.Name(), e.cfg.Symbol, e.cfg.Timeframe, len(bars)-start, bars[start].Timestamp.Format(time.RFC3339))

	st := &SimulationState{Capital: e.cfg.InitialCapital}
	last := start
	for i := start; i < len(bars); i++ {
		last = i
		if e.step(st, bars[i], snaps[i]) {
			break
		}
	}

	if st.Position != nil {
		bar := bars[last]
		e.close(st, st.Position.Settle(bar.Timestamp, bar.Close, position.ExitForcedClose))
		st.Equity[len(st.Equity)-1].Equity = st.Capital
	}

	res := &Result{
		Strategy:       e.strategy.Name(),
		Symbol:         e.cfg.Symbol,
		Timeframe:      e.cfg.Timeframe,
		Start:          bars[start].Timestamp,
		End:            bars[last].Timestamp,
		Bars:           last - start + 1,
		InitialCapital: e.cfg.InitialCapital,
		FinalCapital:   st.Capital,
		Leverage:       e.cfg.Leverage,
		Bankrupt:       st.Bankrupt,
		Trades:         st.Trades,
		Equity:         st.Equity,
	}

	stats, err := Summarize(st.Trades, st.Equity, e.cfg.InitialCapital, e.periodsPerYear(bars))
	switch {
	case errors.Is(err, ErrNoTrades):
		logger.Infof("Engine.Run | %s closed no trades over %d bars", res.Strategy, res.Bars)
	case err != nil:
		return nil, err
	default:
		res.Stats = stats
		logger.Infof("Engine.Run | %s: %d trades, return %.2f%%, max drawdown %.2f%%",
			res.Strategy, stats.TradeCount, stats.TotalReturnPct, stats.MaxDrawdownPct)
	}
	return res, nil
}

// step advances the state by one bar and reports whether the run must stop.
func (e *Engine) step(st *SimulationState, bar candle.Candle, snap indicator.Snapshot) bool {
	armed := false
	if pos := st.Position; pos != nil {
		if price, reason, hit := pos.CheckExit(bar); hit {
			armed = e.close(st, pos.Settle(bar.Timestamp, price, reason))
		}
	}
	if st.Capital <= 0 {
		st.Bankrupt = true
		st.Equity = append(st.Equity, EquityPoint{Time: bar.Timestamp, Equity: st.Capital, Price: bar.Close})
		return true
	}

	// A cooldown armed on this bar starts ticking on the next one.
	cooling := st.Risk.CooldownRemaining > 0
	if cooling && !armed {
		st.Risk.CooldownRemaining--
	}

	if st.Position == nil && !cooling && snap.Ready && e.cfg.EntryWindow.Contains(bar.Timestamp) {
		if sig := e.strategy.Analyze(snap, e.cfg.Timeframe); sig != nil {
			size := e.sizer.Size(sig.Strength, st.Risk)
			pos, err := position.Open(sig, e.cfg.Symbol, bar.Timestamp, bar.Close, size, e.cfg.Leverage, st.Capital)
			if err == nil {
				st.Position = pos
			} else {
				utils.GetLogger().Debugf("Engine.step | skipping %s signal at %s: %v",
					sig.Strategy, bar.Timestamp.Format(time.RFC3339), err)
			}
		}
	}

	equity := st.Capital
	if st.Position != nil {
		pnl, _ := st.Position.PnL(bar.Close)
		equity += pnl
	}
	st.Equity = append(st.Equity, EquityPoint{Time: bar.Timestamp, Equity: equity, Price: bar.Close})
	return false
}

// close books a trade and reports whether it armed the cooldown.
func (e *Engine) close(st *SimulationState, trade position.ClosedTrade) bool {
	st.Capital += trade.PnL
	if st.Capital < 0 {
		st.Capital = 0
	}
	st.Trades = append(st.Trades, trade)
	st.Position = nil
	return st.Risk.record(trade, e.cfg.CooldownAfterLosses, e.cfg.CooldownBars)
}

func (e *Engine) periodsPerYear(bars []candle.Candle) float64 {
	if e.cfg.PeriodsPerYear > 0 {
		return e.cfg.PeriodsPerYear
	}
	if n := tfutils.PeriodsPerYear(tfutils.GetTimeframeDuration(e.cfg.Timeframe)); n > 0 {
		return n
	}
	if len(bars) > 1 {
		return tfutils.PeriodsPerYear(bars[1].Timestamp.Sub(bars[0].Timestamp))
	}
	return 0
}
