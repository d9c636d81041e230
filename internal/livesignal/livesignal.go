// Package livesignal polls recent bars on a timer, runs the enabled
// strategies and the anomaly scanner over them, and forwards new signals
// and alerts to a notifier.
package livesignal

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/exchange"
	"github.com/amirphl/signal-trader/internal/indicator"
	"github.com/amirphl/signal-trader/internal/journal"
	"github.com/amirphl/signal-trader/internal/notifier"
	"github.com/amirphl/signal-trader/internal/pattern"
	"github.com/amirphl/signal-trader/internal/strategy"
	"github.com/amirphl/signal-trader/internal/utils"
)

type Config struct {
	Symbol     string        `yaml:"-"`
	Timeframes []string      `yaml:"-"`
	Interval   time.Duration `yaml:"interval"`

	// History is the number of closed bars fetched per timeframe.
	History int `yaml:"history"`

	// MinSignalInterval suppresses repeats of a strategy on a timeframe.
	MinSignalInterval time.Duration `yaml:"min_signal_interval"`

	// AlertInterval suppresses repeats of an alert type and direction on a
	// timeframe.
	AlertInterval   time.Duration `yaml:"alert_interval"`
	AlertTimeframes []string      `yaml:"alert_timeframes"`

	// StartupQuiet records the first cycle's signals without sending them.
	StartupQuiet bool `yaml:"startup_quiet"`

	SendAttempts int           `yaml:"send_attempts"`
	SendDelay    time.Duration `yaml:"send_delay"`

	Indicators indicator.Config `yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Interval:          time.Minute,
		History:           300,
		MinSignalInterval: 30 * time.Minute,
		AlertInterval:     5 * time.Minute,
		AlertTimeframes:   []string{"15m", "1h"},
		StartupQuiet:      true,
		SendAttempts:      3,
		SendDelay:         2 * time.Second,
		Indicators:        indicator.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	switch {
	case c.Symbol == "":
		return errors.New("live: symbol is required")
	case len(c.Timeframes) == 0:
		return errors.New("live: at least one timeframe is required")
	case c.Interval <= 0:
		return fmt.Errorf("live: interval must be positive, got %v", c.Interval)
	case c.History < c.Indicators.MinBars:
		return fmt.Errorf("live: history (%d) must cover indicator min_bars (%d)", c.History, c.Indicators.MinBars)
	case c.MinSignalInterval < 0 || c.AlertInterval < 0:
		return errors.New("live: throttle intervals cannot be negative")
	}
	return c.Indicators.Validate()
}

// Report summarizes one cycle.
type Report struct {
	ID         string
	Time       time.Time
	Signals    []strategy.Signal
	Alerts     []pattern.Alert
	Suppressed int
	Quiet      bool
	// Failed lists timeframes whose bars could not be fetched.
	Failed []string
}

type Runner struct {
	cfg        Config
	source     exchange.Source
	strategies []strategy.Strategy
	scanner    *pattern.Scanner
	notifier   notifier.Notifier
	producer   *indicator.Producer

	// Now is the clock; tests replace it.
	Now func() time.Time
	// Journal, when set, records every emitted signal and alert.
	Journal journal.Journaler

	mu         sync.Mutex
	lastSignal map[string]time.Time
	lastAlert  map[string]time.Time
	cycles     int
}

func NewRunner(cfg Config, src exchange.Source, strats []strategy.Strategy, n notifier.Notifier) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(strats) == 0 {
		return nil, errors.New("live: no strategies enabled")
	}
	producer, err := indicator.NewProducer(cfg.Indicators)
	if err != nil {
		return nil, err
	}
	if n == nil {
		n = notifier.Log{}
	}
	return &Runner{
		cfg:        cfg,
		source:     src,
		strategies: strats,
		scanner:    pattern.NewScanner(),
		notifier:   n,
		producer:   producer,
		Now:        time.Now,
		lastSignal: make(map[string]time.Time),
		lastAlert:  make(map[string]time.Time),
	}, nil
}

// Run executes a cycle immediately and then every Interval until ctx is
// done.
func (r *Runner) Run(ctx context.Context) error {
	utils.GetLogger().Infof("Runner.Run | watching %s on %v every %v with %d strategies",
		r.cfg.Symbol, r.cfg.Timeframes, r.cfg.Interval, len(r.strategies))

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := r.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			utils.GetLogger().Errorf("Runner.Run | cycle failed: %v", err)
		}
		select {
		case <-ctx.Done():
			utils.GetLogger().Info("Runner.Run | stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Cycle fetches every timeframe, then analyzes them in configured order.
func (r *Runner) Cycle(ctx context.Context) (rep *Report, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep = &Report{ID: uuid.NewString(), Time: r.Now(), Quiet: r.cfg.StartupQuiet && r.cycles == 0}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("cycle %s panicked: %v", rep.ID, p)
		}
	}()

	series, failed, err := r.fetch(ctx, rep.Time)
	if err != nil {
		return rep, err
	}
	rep.Failed = failed
	if len(failed) == len(r.cfg.Timeframes) {
		err := fmt.Errorf("cycle %s: no timeframe could be fetched", rep.ID)
		r.record(journal.Event{Time: rep.Time, Type: journal.TypeError, Description: err.Error()})
		return rep, err
	}

	for i, tf := range r.cfg.Timeframes {
		if series[i] == nil {
			continue
		}
		if err := r.analyze(ctx, rep, tf, series[i]); err != nil {
			return rep, err
		}
	}
	r.cycles++

	utils.GetLogger().Infof("Runner.Cycle | %s: %d signals, %d alerts, %d suppressed, quiet=%t",
		rep.ID, len(rep.Signals), len(rep.Alerts), rep.Suppressed, rep.Quiet)
	return rep, nil
}

func (r *Runner) fetch(ctx context.Context, now time.Time) ([][]candle.Candle, []string, error) {
	series := make([][]candle.Candle, len(r.cfg.Timeframes))
	errs := make([]error, len(r.cfg.Timeframes))

	g, gctx := errgroup.WithContext(ctx)
	for i, tf := range r.cfg.Timeframes {
		g.Go(func() error {
			bars, err := exchange.Latest(gctx, r.source, r.cfg.Symbol, tf, r.cfg.History, now)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				errs[i] = err
				return nil
			}
			if err := candle.ValidateSeries(bars); err != nil {
				errs[i] = err
				return nil
			}
			series[i] = bars
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var failed []string
	for i, err := range errs {
		if err != nil {
			utils.GetLogger().Warnf("Runner.fetch | %s %s: %v", r.cfg.Symbol, r.cfg.Timeframes[i], err)
			failed = append(failed, r.cfg.Timeframes[i])
			series[i] = nil
		}
	}
	return series, failed, nil
}

func (r *Runner) analyze(ctx context.Context, rep *Report, tf string, bars []candle.Candle) error {
	snap, err := r.producer.Latest(bars)
	if errors.Is(err, indicator.ErrInsufficientData) {
		utils.GetLogger().Warnf("Runner.analyze | %s %s: %v", r.cfg.Symbol, tf, err)
		return nil
	}
	if err != nil {
		return err
	}

	if slices.Contains(r.cfg.AlertTimeframes, tf) {
		for _, a := range r.scanner.Scan(bars, tf) {
			if !r.due(r.lastAlert, a.Key(), r.cfg.AlertInterval, rep.Time) {
				rep.Suppressed++
				continue
			}
			r.lastAlert[a.Key()] = rep.Time
			rep.Alerts = append(rep.Alerts, a)
			r.record(journal.Event{
				Time:        rep.Time,
				Type:        journal.TypeAlert,
				Description: a.Message,
				Data: map[string]any{
					"cycle": rep.ID, "timeframe": tf, "alert": string(a.Type), "direction": string(a.Direction),
					"severity": string(a.Severity), "price": a.Price, "sent": !rep.Quiet,
				},
			})
			utils.GetLogger().Warnf("Runner.analyze | [%s] %s %s (%s)", tf, a.Message, a.Direction, a.Severity)
			if !rep.Quiet {
				r.deliver(ctx, notifier.FormatAlert(r.cfg.Symbol, a))
			}
		}
	}

	for _, s := range r.strategies {
		sig := s.Analyze(snap, tf)
		if sig == nil || sig.Category == strategy.Neutral {
			continue
		}
		key := s.Name() + "|" + tf
		if !r.due(r.lastSignal, key, r.cfg.MinSignalInterval, rep.Time) {
			rep.Suppressed++
			continue
		}
		r.lastSignal[key] = rep.Time
		rep.Signals = append(rep.Signals, *sig)
		r.record(journal.Event{
			Time:        rep.Time,
			Type:        journal.TypeSignal,
			Description: fmt.Sprintf("%s %s", sig.Strategy, sig.Direction),
			Data: map[string]any{
				"cycle": rep.ID, "timeframe": tf, "category": string(sig.Category), "strength": sig.Strength,
				"price": sig.Price, "stop_loss": sig.StopLoss, "take_profit": sig.TakeProfit, "sent": !rep.Quiet,
			},
		})
		utils.GetLogger().Infof("Runner.analyze | [%s] %s %s strength=%d price=%.2f sl=%.2f tp=%.2f",
			tf, sig.Strategy, sig.Category, sig.Strength, sig.Price, sig.StopLoss, sig.TakeProfit)
		if !rep.Quiet {
			r.deliver(ctx, notifier.FormatSignal(r.cfg.Symbol, *sig))
		}
	}
	return nil
}

// due reports whether key has not fired within interval before now.
func (r *Runner) due(last map[string]time.Time, key string, interval time.Duration, now time.Time) bool {
	t, ok := last[key]
	return !ok || now.Sub(t) >= interval
}

func (r *Runner) record(e journal.Event) {
	if r.Journal == nil {
		return
	}
	if err := r.Journal.LogEvent(e); err != nil {
		utils.GetLogger().Errorf("Runner.record | %s event: %v", e.Type, err)
	}
}

func (r *Runner) deliver(ctx context.Context, msg string) {
	if err := notifier.SendWithRetry(ctx, r.notifier, msg, r.cfg.SendAttempts, r.cfg.SendDelay); err != nil {
		utils.GetLogger().Errorf("Runner.deliver | %v", err)
	}
}
