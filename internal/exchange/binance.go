package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/signal-trader/internal/candle"
	"github.com/amirphl/signal-trader/internal/tfutils"
	"github.com/amirphl/signal-trader/internal/utils"
)

const (
	binanceBaseURL   = "https://api.binance.com"
	binanceKlineCap  = 1000
	binanceUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
)

// BinanceSource downloads public klines, no API key needed.
type BinanceSource struct {
	baseURL string
	client  *http.Client
	retry   RetryConfig
}

func NewBinanceSource(baseURL, proxyURL string, retry RetryConfig) (*BinanceSource, error) {
	if baseURL == "" {
		baseURL = binanceBaseURL
	}
	transport := &http.Transport{}
	if proxyURL != "" {
		proxyParsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyParsed)
		utils.GetLogger().Infof("NewBinanceSource | Using proxy: %s", proxyURL)
	}
	return &BinanceSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second, Transport: transport},
		retry:   retry,
	}, nil
}

func (b *BinanceSource) Name() string {
	return "binance"
}

// FetchCandles pages through /api/v3/klines from start (inclusive) to end
// (exclusive).
func (b *BinanceSource) FetchCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]candle.Candle, error) {
	duration := tfutils.GetTimeframeDuration(timeframe)
	if duration == 0 {
		return nil, fmt.Errorf("unsupported timeframe: %s", timeframe)
	}
	apiSymbol := NormalizeSymbol(symbol)

	var out []candle.Candle
	cursor := start
	for cursor.Before(end) {
		q := url.Values{}
		q.Set("symbol", apiSymbol)
		q.Set("interval", timeframe)
		q.Set("startTime", strconv.FormatInt(cursor.UnixMilli(), 10))
		q.Set("endTime", strconv.FormatInt(end.UnixMilli()-1, 10))
		q.Set("limit", strconv.Itoa(binanceKlineCap))

		var rows [][]any
		if err := b.getJSON(ctx, "/api/v3/klines?"+q.Encode(), &rows); err != nil {
			return nil, fmt.Errorf("klines %s %s: %w", apiSymbol, timeframe, err)
		}
		page, err := parseKlines(rows, symbol, timeframe)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		out = append(out, page...)
		next := page[len(page)-1].Timestamp.Add(duration)
		if !next.After(cursor) || len(page) < binanceKlineCap {
			break
		}
		cursor = next
	}

	utils.GetLogger().Infof("BinanceSource.FetchCandles | Downloaded %d candles for %s %s from %s to %s",
		len(out), symbol, timeframe, start.Format(time.RFC3339), end.Format(time.RFC3339))
	return out, nil
}

// TopSymbols returns the n most traded USDT pairs by 24h quote volume,
// skipping the majors and stablecoin pairs.
func (b *BinanceSource) TopSymbols(ctx context.Context, n int) ([]string, error) {
	var tickers []struct {
		Symbol      string `json:"symbol"`
		QuoteVolume string `json:"quoteVolume"`
	}
	if err := b.getJSON(ctx, "/api/v3/ticker/24hr", &tickers); err != nil {
		return nil, fmt.Errorf("ticker 24hr: %w", err)
	}

	type ranked struct {
		symbol string
		volume float64
	}
	excluded := []string{"BTC", "ETH", "FDUSD", "USDC"}
	var pairs []ranked
	for _, t := range tickers {
		if !strings.HasSuffix(t.Symbol, "USDT") || t.Symbol == "USDT" {
			continue
		}
		skip := false
		for _, prefix := range excluded {
			if strings.HasPrefix(t.Symbol, prefix) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		vol, err := strconv.ParseFloat(t.QuoteVolume, 64)
		if err != nil {
			continue
		}
		pairs = append(pairs, ranked{t.Symbol, vol})
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].volume > pairs[j].volume })

	out := make([]string, 0, min(n, len(pairs)))
	for _, p := range pairs[:min(n, len(pairs))] {
		out = append(out, p.symbol)
	}
	utils.GetLogger().Infof("BinanceSource.TopSymbols | fetched top %d USDT symbols", len(out))
	return out, nil
}

func (b *BinanceSource) getJSON(ctx context.Context, path string, dst any) error {
	return withRetry(ctx, "BinanceSource", b.retry, func(attempt int) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("error creating request: %w", err)
		}
		req.Header.Set("User-Agent", binanceUserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := b.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retryable(fmt.Errorf("network error on attempt %d: %w", attempt+1, err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return retryable(fmt.Errorf("error reading response body on attempt %d: %w", attempt+1, err))
		}
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("API error (status %d) on attempt %d: %s", resp.StatusCode, attempt+1, string(body))
			if isRetryableHTTPStatus(resp.StatusCode) {
				return retryable(err)
			}
			return err
		}
		if err := json.Unmarshal(body, dst); err != nil {
			return retryable(fmt.Errorf("JSON decode error on attempt %d: %w", attempt+1, err))
		}
		return nil
	})
}

// parseKlines converts Binance kline rows. Numbers may arrive as JSON
// numbers or strings.
func parseKlines(rows [][]any, symbol, timeframe string) ([]candle.Candle, error) {
	out := make([]candle.Candle, 0, len(rows))
	for i, raw := range rows {
		if len(raw) < 6 {
			return nil, fmt.Errorf("kline %d: want at least 6 fields, got %d", i, len(raw))
		}
		openTime, err := parseNumber(raw[0])
		if err != nil {
			return nil, fmt.Errorf("kline %d open time: %w", i, err)
		}
		var vals [5]float64
		for j := range vals {
			if vals[j], err = parseNumber(raw[j+1]); err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j+1, err)
			}
		}
		out = append(out, candle.Candle{
			Timestamp: time.UnixMilli(int64(openTime)).UTC(),
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
			Symbol:    symbol,
			Timeframe: timeframe,
			Source:    "binance",
		})
	}
	return out, nil
}

func parseNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("unexpected number type %T", v)
	}
}
