package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	wallex "github.com/wallexchange/wallex-go"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/tfutils"
	"github.com/amirphl/signal-trader/internal/utils"
)

// wallexResolutions maps native Wallex resolutions. Other timeframes are
// aggregated from the base listed in wallexBase.
var (
	wallexResolutions = map[string]string{"1m": "1", "1h": "60", "1d": "1D"}
	wallexBase        = map[string]string{"5m": "1m", "15m": "1m", "30m": "1m", "4h": "1h"}
)

// WallexSource reads candles from the Wallex REST API.
type WallexSource struct {
	client *wallex.Client
	retry  RetryConfig
}

func NewWallexSource(apiKey string, retry RetryConfig) *WallexSource {
	return &WallexSource{
		client: wallex.New(wallex.ClientOptions{APIKey: apiKey}),
		retry:  retry,
	}
}

func (w *WallexSource) Name() string {
	return "wallex"
}

func (w *WallexSource) FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	if !tfutils.IsValidTimeframe(timeframe) {
		return nil, fmt.Errorf("unsupported timeframe: %s", timeframe)
	}
	if base, ok := wallexBase[timeframe]; ok {
		candles, err := w.FetchCandles(ctx, symbol, base, start, end)
		if err != nil {
			return nil, err
		}
		return candle.Aggregate(candles, timeframe, false)
	}
	resolution := wallexResolutions[timeframe]

	var raw []*wallex.Candle
	err := withRetry(ctx, "WallexSource", w.retry, func(int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		raw, err = w.client.Candles(NormalizeSymbol(symbol), resolution, start, end)
		if err != nil {
			return retryable(fmt.Errorf("fetching candles: %w", err))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("wallex candles %s %s: %w", symbol, timeframe, err)
	}

	candles := make([]candle.Candle, 0, len(raw))
	skipped := 0
	for _, wc := range raw {
		c := candle.Candle{
			Timestamp: wc.Timestamp.UTC().Truncate(time.Minute),
			Open:      parseWallexNumber(wc.Open),
			High:      parseWallexNumber(wc.High),
			Low:       parseWallexNumber(wc.Low),
			Close:     parseWallexNumber(wc.Close),
			Volume:    parseWallexNumber(wc.Volume),
			Symbol:    symbol,
			Timeframe: timeframe,
			Source:    w.Name(),
		}
		if c.Timestamp.Before(start) || !c.Timestamp.Before(end) {
			continue
		}
		if err := c.Validate(); err != nil {
			skipped++
			continue
		}
		candles = append(candles, c)
	}
	if skipped > 0 {
		utils.GetLogger().Warnf("WallexSource.FetchCandles | skipped %d invalid candles for %s", skipped, symbol)
	}
	return candles, nil
}

func parseWallexNumber(n wallex.Number) float64 {
	v, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return 0
	}
	return v
}
