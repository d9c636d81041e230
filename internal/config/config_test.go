package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/signal-trader/internal/backtest"
)

const sampleYAML = `
mode: compare
symbol: eth-usdt
timeframes: ["4h", "1h"]
data:
  source: wallex
  file: bars.parquet
  from: "2024-01-01"
  to: "2024-03-01"
  retry:
    max_attempts: 2
    base_delay: 500ms
backtest:
  initial_capital: 5000
  leverage: 3
  sizing: fixed
  position_size: 0.5
  entry_window:
    start_hour: 16
    end_hour: 24
  indicators:
    min_bars: 60
strategies:
  enabled: [trend, breakout]
  trend:
    min_adx: 30
compare:
  parallelism: 2
live:
  interval: 30s
  alert_timeframes: ["4h"]
notifier:
  telegram:
    token: abc
    chat_id: "42"
  serverchan:
    send_key: SCT42
  email:
    host: smtp.example.com
    username: bot@example.com
    to: [me@example.com]
  attempts: 5
log:
  level: debug
output: out
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func clearEnv(t *testing.T) {
	for _, key := range []string{"EXCHANGE_API_KEY", "EXCHANGE_API_SECRET", "TELEGRAM_TOKEN", "TELEGRAM_CHAT_ID", "SERVERCHAN_SENDKEY", "SMTP_PASSWORD"} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ModeBacktest, cfg.Mode)
	assert.Equal(t, "BTCUSDT", cfg.Backtest.Symbol)
	assert.Equal(t, "1h", cfg.Backtest.Timeframe)
	assert.Equal(t, []string{"1h"}, cfg.Live.Timeframes)
	assert.Equal(t, backtest.DefaultConfig().InitialCapital, cfg.Backtest.InitialCapital)
	assert.Len(t, cfg.Strategies.Enabled, 5)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, ModeCompare, cfg.Mode)
	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, "wallex", cfg.Data.Source)
	assert.Equal(t, 2, cfg.Data.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Data.Retry.BaseDelay)
	assert.Equal(t, 7*24*time.Hour, cfg.Data.Chunk, "unset keys keep defaults")

	assert.Equal(t, 5000.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, 3.0, cfg.Backtest.Leverage)
	assert.Equal(t, "fixed", cfg.Backtest.Sizing)
	assert.Equal(t, 60, cfg.Backtest.Indicators.MinBars)
	assert.Equal(t, 14, cfg.Backtest.Indicators.RSIPeriod)
	assert.Equal(t, "4h", cfg.Backtest.Timeframe)
	assert.Equal(t, backtest.EntryWindow{StartHour: 16, EndHour: 24}, cfg.Backtest.EntryWindow)

	assert.Equal(t, []string{"trend", "breakout"}, cfg.Strategies.Enabled)
	assert.Equal(t, 30.0, cfg.Strategies.Trend.MinADX)
	assert.Equal(t, 2, cfg.Compare.Parallelism)
	assert.Equal(t, backtest.DefaultWeights(), cfg.Compare.Weights)

	assert.Equal(t, 30*time.Second, cfg.Live.Interval)
	assert.Equal(t, []string{"4h"}, cfg.Live.AlertTimeframes)
	assert.Equal(t, 60, cfg.Live.Indicators.MinBars)
	assert.Equal(t, 5, cfg.Live.SendAttempts)
	assert.True(t, cfg.Notifier.Telegram.Enabled())
	assert.True(t, cfg.Notifier.ServerChan.Enabled())
	assert.True(t, cfg.Notifier.Email.Enabled())
	assert.Equal(t, []string{"me@example.com"}, cfg.Notifier.Email.To)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "out", cfg.Output)

	require.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "mode: [unclosed"))
	assert.Error(t, err)
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", "from-env")
	t.Setenv("TELEGRAM_CHAT_ID", "7")
	t.Setenv("EXCHANGE_API_KEY", "key")
	t.Setenv("SERVERCHAN_SENDKEY", "SCT-env")
	t.Setenv("SMTP_PASSWORD", "hunter2")

	cfg, err := Load(writeConfig(t, "notifier:\n  telegram:\n    token: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Notifier.Telegram.Token, "file wins over env")
	assert.Equal(t, "7", cfg.Notifier.Telegram.ChatID)
	assert.Equal(t, "key", cfg.Data.APIKey)
	assert.Equal(t, "SCT-env", cfg.Notifier.ServerChan.SendKey)
	assert.Equal(t, "hunter2", cfg.Notifier.Email.Password)
	assert.False(t, cfg.Notifier.Email.Enabled(), "a password alone does not enable email")
}

func TestParse_Overrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, sampleYAML)
	cfg, err := Parse([]string{
		"-config", path,
		"-mode", "backtest",
		"-strategy", "score, meanrev",
		"-timeframe", "15m",
		"-from", "2024-02-01",
		"-top", "10",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeBacktest, cfg.Mode)
	assert.Equal(t, []string{"score", "meanrev"}, cfg.Strategies.Enabled)
	assert.Equal(t, []string{"15m"}, cfg.Timeframes)
	assert.Equal(t, "15m", cfg.Backtest.Timeframe)
	assert.Equal(t, []string{"15m"}, cfg.Live.Timeframes)
	assert.Equal(t, "2024-02-01", cfg.Data.From)
	assert.Equal(t, "2024-03-01", cfg.Data.To, "unset flags keep file values")
	assert.Equal(t, "ETHUSDT", cfg.Symbol)
	assert.Equal(t, 10, cfg.Data.Top)

	_, err = Parse([]string{"-no-such-flag"})
	assert.Error(t, err)
}

func TestRange(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	cfg := Default()

	from, to, err := cfg.Range(now)
	require.NoError(t, err)
	assert.Equal(t, now, to)
	assert.Equal(t, now.AddDate(0, 0, -90), from)

	cfg.Data.From = "2024-01-01"
	cfg.Data.To = "2024-02-01T12:00:00Z"
	from, to, err = cfg.Range(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC), to)

	cfg.Data.From = "2024-03-01"
	_, _, err = cfg.Range(now)
	assert.ErrorContains(t, err, "empty")

	cfg.Data.From = "last tuesday"
	_, _, err = cfg.Range(now)
	assert.ErrorContains(t, err, "data.from")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "paper" }, "unknown mode"},
		{"no symbol", func(c *Config) { c.Symbol = "" }, "symbol"},
		{"bad timeframe", func(c *Config) { c.Timeframes = []string{"7m"} }, "timeframe \"7m\""},
		{"timeframe hint", func(c *Config) { c.Timeframes = []string{"7m"} }, "want one of [1m"},
		{"unknown strategy", func(c *Config) { c.Strategies.Enabled = []string{"rsi"} }, "unknown strategy"},
		{"no strategies", func(c *Config) { c.Strategies.Enabled = nil }, "no strategies"},
		{"telegram without chat", func(c *Config) { c.Notifier.Telegram.Token = "t" }, "chat_id"},
		{"email without recipient", func(c *Config) {
			c.Notifier.Email = Email{Host: "smtp.example.com", From: "bot@example.com"}
		}, "notifier.email.to"},
		{"email without sender", func(c *Config) {
			c.Notifier.Email = Email{Host: "smtp.example.com", To: []string{"me@example.com"}}
		}, "notifier.email.from"},
		{"bad entry window", func(c *Config) { c.Backtest.EntryWindow.EndHour = 25 }, "entry window"},
		{"bad leverage", func(c *Config) { c.Backtest.Leverage = 0 }, "leverage"},
		{"bad live", func(c *Config) {
			c.Mode = ModeLive
			c.Live.Interval = 0
		}, "interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.share()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("backtest checks skipped in live mode", func(t *testing.T) {
		cfg := Default()
		cfg.share()
		cfg.Mode = ModeLive
		cfg.Backtest.Leverage = 0
		assert.NoError(t, cfg.Validate())
	})
}
