package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/amirphl/signal-trader/internal/backtest"
	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/config"
	"github.com/amirphl/signal-trader/internal/exchange"
	"github.com/amirphl/signal-trader/internal/journal"
	"github.com/amirphl/signal-trader/internal/livesignal"
	"github.com/amirphl/signal-trader/internal/notifier"
	"github.com/amirphl/signal-trader/internal/strategy"
	"github.com/amirphl/signal-trader/internal/utils"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if err := utils.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer utils.Sync()
	logger := utils.GetLogger()

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("main | invalid configuration: %v", err)
	}
	logger.Infof("main | starting signal-trader in %s mode for %s %v", cfg.Mode, cfg.Symbol, cfg.Timeframes)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Mode {
	case config.ModeFetch:
		err = runFetch(ctx, cfg)
	case config.ModeBacktest:
		err = runBacktest(ctx, cfg)
	case config.ModeCompare:
		err = runCompare(ctx, cfg)
	case config.ModeLive:
		err = runLive(ctx, cfg)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("main | %s failed: %v", cfg.Mode, err)
		utils.Sync()
		os.Exit(1)
	}
	logger.Info("main | done")
}

func newSource(cfg *config.Config) (exchange.Source, error) {
	return exchange.New(cfg.Data.Options)
}

// loadBars reads the configured bar file, or downloads the range when no
// file is set.
func loadBars(ctx context.Context, cfg *config.Config, timeframe string) ([]candle.Candle, error) {
	logger := utils.GetLogger()
	if cfg.Data.File != "" {
		bars, err := candle.LoadFile(cfg.Data.File, cfg.Symbol, timeframe)
		if err != nil {
			return nil, err
		}
		var from, to time.Time
		if cfg.Data.From != "" || cfg.Data.To != "" {
			if from, to, err = cfg.Range(time.Now()); err != nil {
				return nil, err
			}
		}
		bars = candle.Process(bars, timeframe, from, to, cfg.Data.FillGaps)
		logger.Infof("loadBars | loaded %d bars from %s", len(bars), cfg.Data.File)
		return bars, nil
	}

	src, err := newSource(cfg)
	if err != nil {
		return nil, err
	}
	from, to, err := cfg.Range(time.Now())
	if err != nil {
		return nil, err
	}
	bars, err := exchange.Download(ctx, src, cfg.Symbol, timeframe, from, to, cfg.Data.Chunk, cfg.Data.Pause)
	if err != nil {
		return nil, err
	}
	if cfg.Data.FillGaps {
		bars = candle.Process(bars, timeframe, from, to, true)
	}
	logger.Infof("loadBars | downloaded %d %s bars from %s", len(bars), timeframe, src.Name())
	return bars, nil
}

func runFetch(ctx context.Context, cfg *config.Config) error {
	logger := utils.GetLogger()
	src, err := newSource(cfg)
	if err != nil {
		return err
	}

	if cfg.Data.Top > 0 {
		lister, ok := src.(interface {
			TopSymbols(ctx context.Context, n int) ([]string, error)
		})
		if !ok {
			return fmt.Errorf("source %s cannot list symbols", src.Name())
		}
		symbols, err := lister.TopSymbols(ctx, cfg.Data.Top)
		if err != nil {
			return err
		}
		for i, s := range symbols {
			fmt.Printf("%3d. %s\n", i+1, s)
		}
		return nil
	}

	from, to, err := cfg.Range(time.Now())
	if err != nil {
		return err
	}
	for _, tf := range cfg.Timeframes {
		bars, err := exchange.Download(ctx, src, cfg.Symbol, tf, from, to, cfg.Data.Chunk, cfg.Data.Pause)
		if err != nil {
			return fmt.Errorf("%s %s: %w", cfg.Symbol, tf, err)
		}
		bars = candle.Process(bars, tf, from, to, cfg.Data.FillGaps)

		path := cfg.Data.File
		if path == "" || len(cfg.Timeframes) > 1 {
			if err := os.MkdirAll(cfg.Output, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
			path = filepath.Join(cfg.Output, fmt.Sprintf("%s_%s.parquet", cfg.Symbol, tf))
		}
		if err := candle.SaveFile(path, bars); err != nil {
			return err
		}
		logger.Infof("runFetch | saved %d %s bars to %s", len(bars), tf, path)
	}
	return nil
}

func runBacktest(ctx context.Context, cfg *config.Config) error {
	logger := utils.GetLogger()
	name := cfg.Strategies.Enabled[0]
	if len(cfg.Strategies.Enabled) > 1 {
		logger.Warnf("runBacktest | %d strategies enabled, running %s; use compare mode to rank them all",
			len(cfg.Strategies.Enabled), name)
	}
	strat, err := strategy.New(name, cfg.Strategies.Params)
	if err != nil {
		return err
	}
	bars, err := loadBars(ctx, cfg, cfg.Backtest.Timeframe)
	if err != nil {
		return err
	}

	engine, err := backtest.NewEngine(cfg.Backtest, strat)
	if err != nil {
		return err
	}
	res, err := engine.Run(bars)
	if err != nil {
		return err
	}
	backtest.PrintResult(os.Stdout, res)

	paths, err := backtest.SaveResult(cfg.Output, res)
	if err != nil {
		return err
	}
	logger.Infof("runBacktest | run %s saved to %v", res.RunID, paths)
	return nil
}

func runCompare(ctx context.Context, cfg *config.Config) error {
	logger := utils.GetLogger()
	reg, err := strategy.Build(cfg.Strategies.Enabled, cfg.Strategies.Params)
	if err != nil {
		return err
	}
	bars, err := loadBars(ctx, cfg, cfg.Backtest.Timeframe)
	if err != nil {
		return err
	}

	strats := reg.All()
	bar := newProgressBar(len(strats))
	cmp := &backtest.Comparator{
		Config:      cfg.Backtest,
		Strategies:  strats,
		Weights:     cfg.Compare.Weights,
		Parallelism: cfg.Compare.Parallelism,
		Progress: func(done, total int) {
			_ = bar.Set(done)
		},
	}
	rankings, err := cmp.Run(ctx, bars)
	_ = bar.Finish()
	if err != nil {
		return err
	}
	fmt.Println()
	backtest.PrintRankings(os.Stdout, rankings)

	if err := os.MkdirAll(cfg.Output, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(cfg.Output, fmt.Sprintf("rankings_%s_%s.csv", cfg.Symbol, cfg.Backtest.Timeframe))
	if err := backtest.SaveRankings(path, rankings); err != nil {
		return err
	}
	for _, r := range rankings {
		if _, err := backtest.SaveResult(cfg.Output, r.Result); err != nil {
			return err
		}
	}
	logger.Infof("runCompare | rankings saved to %s", path)
	return nil
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("Comparing strategies..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}

// newNotifier fans messages out to the log and every configured channel.
func newNotifier(cfg config.Notifier) (notifier.Multi, error) {
	out := notifier.Multi{notifier.Log{}}
	if tg := cfg.Telegram; tg.Enabled() {
		n, err := notifier.NewTelegramNotifier(tg.Token, tg.ChatID, tg.BaseURL, tg.ProxyURL)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if sc := cfg.ServerChan; sc.Enabled() {
		n, err := notifier.NewServerChanNotifier(sc.SendKey, sc.BaseURL)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if em := cfg.Email; em.Enabled() {
		n, err := notifier.NewEmailNotifier(em.Host, em.Port, em.Username, em.Password, em.From, em.To)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func runLive(ctx context.Context, cfg *config.Config) error {
	logger := utils.GetLogger()
	reg, err := strategy.Build(cfg.Strategies.Enabled, cfg.Strategies.Params)
	if err != nil {
		return err
	}
	src, err := newSource(cfg)
	if err != nil {
		return err
	}

	n, err := newNotifier(cfg.Notifier)
	if err != nil {
		return err
	}
	if len(n) == 1 {
		logger.Warn("runLive | no chat channel is configured, messages go to the log only")
	}

	runner, err := livesignal.NewRunner(cfg.Live, src, reg.All(), n)
	if err != nil {
		return err
	}
	if cfg.Journal != "" {
		j, err := journal.OpenFile(cfg.Journal)
		if err != nil {
			return err
		}
		defer j.Close()
		runner.Journal = j
	}
	return runner.Run(ctx)
}
