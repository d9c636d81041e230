package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/amirphl/signal-trader/internal/candle"
)

// AlpacaSource reads US equity bars from the Alpaca market-data API.
type AlpacaSource struct {
	client *marketdata.Client
	feed   string
	retry  RetryConfig
}

func NewAlpacaSource(apiKey, apiSecret, dataURL, feed string, retry RetryConfig) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaSource{client: marketdata.NewClient(opts), feed: feed, retry: retry}
}

func (a *AlpacaSource) Name() string {
	return "alpaca"
}

func alpacaTimeFrame(timeframe string) (marketdata.TimeFrame, error) {
	switch timeframe {
	case "1m":
		return marketdata.NewTimeFrame(1, marketdata.Min), nil
	case "5m":
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case "15m":
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case "30m":
		return marketdata.NewTimeFrame(30, marketdata.Min), nil
	case "1h":
		return marketdata.NewTimeFrame(1, marketdata.Hour), nil
	case "4h":
		return marketdata.NewTimeFrame(4, marketdata.Hour), nil
	case "1d":
		return marketdata.OneDay, nil
	}
	return marketdata.TimeFrame{}, fmt.Errorf("unsupported timeframe: %s", timeframe)
}

func (a *AlpacaSource) FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	tf, err := alpacaTimeFrame(timeframe)
	if err != nil {
		return nil, err
	}

	var bars []marketdata.Bar
	err = withRetry(ctx, "AlpacaSource", a.retry, func(int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		bars, err = a.client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame: tf,
			Start:     start,
			End:       end.Add(-time.Nanosecond),
			Feed:      marketdata.Feed(a.feed),
		})
		if err != nil {
			return retryable(fmt.Errorf("GetBars: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca bars %s %s: %w", symbol, timeframe, err)
	}

	out := make([]candle.Candle, 0, len(bars))
	for _, b := range bars {
		out = append(out, candle.Candle{
			Timestamp: b.Timestamp.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
			Symbol:    symbol,
			Timeframe: timeframe,
			Source:    a.Name(),
		})
	}
	return out, nil
}
