// Package exchange loads historical candles from market data providers.
package exchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/tfutils"
	"github.com/amirphl/signal-trader/internal/utils"
)

// Source is a read-only provider of OHLCV bars.
type Source interface {
	Name() string
	// FetchCandles returns bars opening in [start, end).
	FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error)
}

type Options struct {
	Source    string      `yaml:"source"`
	ProxyURL  string      `yaml:"proxy_url"`
	BaseURL   string      `yaml:"base_url"`
	APIKey    string      `yaml:"api_key"`
	APISecret string      `yaml:"api_secret"`
	Feed      string      `yaml:"feed"`
	Retry     RetryConfig `yaml:"retry"`
}

// New builds the source named by opts.Source.
func New(opts Options) (Source, error) {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryConfig()
	}
	switch opts.Source {
	case "", "binance":
		return NewBinanceSource(opts.BaseURL, opts.ProxyURL, opts.Retry)
	case "wallex":
		return NewWallexSource(opts.APIKey, opts.Retry), nil
	case "alpaca":
		return NewAlpacaSource(opts.APIKey, opts.APISecret, opts.BaseURL, opts.Feed, opts.Retry), nil
	}
	return nil, fmt.Errorf("unknown data source %q", opts.Source)
}

// NormalizeSymbol converts e.g. btc-usdt to BTCUSDT.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "-", ""))
}

// Download fetches [from, to) in chunks of chunk length, waiting pause
// between requests, and returns the sorted, de-duplicated series.
func Download(ctx context.Context, src Source, symbol, timeframe string, from, to time.Time, chunk, pause time.Duration) ([]candle.Candle, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("empty range %s -> %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	if chunk <= 0 {
		chunk = to.Sub(from)
	}

	var all []candle.Candle
	for curr := from; curr.Before(to); {
		next := curr.Add(chunk)
		if next.After(to) {
			next = to
		}
		if curr != from && pause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(pause):
			}
		}

		page, err := src.FetchCandles(ctx, symbol, timeframe, curr, next)
		if err != nil {
			return nil, fmt.Errorf("error fetching candles from %s to %s: %w",
				curr.Format(time.RFC3339), next.Format(time.RFC3339), err)
		}
		utils.GetLogger().Infof("Download | Downloaded %d candles for %s from %s to %s",
			len(page), symbol, curr.Format("2006-01-02"), next.Format("2006-01-02"))
		all = append(all, page...)
		curr = next
	}

	processed := candle.Process(all, timeframe, from, to, false)
	if len(processed) == 0 {
		return nil, fmt.Errorf("no candles available for %s from %s to %s",
			symbol, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return processed, nil
}

// Latest fetches roughly the last count closed bars ending at now.
func Latest(ctx context.Context, src Source, symbol, timeframe string, count int, now time.Time) ([]candle.Candle, error) {
	d := tfutils.GetTimeframeDuration(timeframe)
	if d == 0 {
		return nil, fmt.Errorf("invalid timeframe: %s", timeframe)
	}
	end := now.Truncate(d)
	start := end.Add(-d * time.Duration(count))
	bars, err := src.FetchCandles(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	return candle.Process(bars, timeframe, start, end, false), nil
}
