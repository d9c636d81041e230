// Package config loads the YAML configuration and applies command-line
// overrides.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amirphl/signal-trader/internal/backtest"
	"github.com/amirphl/signal-trader/internal/exchange"
	"github.com/amirphl/signal-trader/internal/livesignal"
	"github.com/amirphl/signal-trader/internal/strategy"
	"github.com/amirphl/signal-trader/internal/tfutils"
)

/*
YAML config example:
mode: backtest
symbol: BTCUSDT
timeframes: ["1h", "15m"]
data:
  source: binance
  file: data/btcusdt_1h.parquet
  from: "2024-01-01"
  to: "2024-06-01"
backtest:
  initial_capital: 10000
  leverage: 3
  sizing: tiered
  entry_window: { start_hour: 16, end_hour: 24 }
strategies:
  enabled: [score, trend, breakout]
  trend: { min_adx: 25 }
live:
  interval: 1m
  min_signal_interval: 30m
notifier:
  telegram: { token: "...", chat_id: "..." }
  serverchan: { send_key: "..." }
  email: { host: smtp.example.com, port: 587, username: bot@example.com, to: [me@example.com] }
log: { level: info }
output: results
*/

const (
	ModeFetch    = "fetch"
	ModeBacktest = "backtest"
	ModeCompare  = "compare"
	ModeLive     = "live"
)

var Modes = []string{ModeFetch, ModeBacktest, ModeCompare, ModeLive}

type Config struct {
	Mode       string   `yaml:"mode"`
	Symbol     string   `yaml:"symbol"`
	Timeframes []string `yaml:"timeframes"`

	Data       Data              `yaml:"data"`
	Backtest   backtest.Config   `yaml:"backtest"`
	Compare    Compare           `yaml:"compare"`
	Strategies Strategies        `yaml:"strategies"`
	Live       livesignal.Config `yaml:"live"`
	Notifier   Notifier          `yaml:"notifier"`
	Log        Log               `yaml:"log"`

	// Output is the directory for reports and fetched bar files.
	Output string `yaml:"output"`
	// Journal is a JSON-lines file recording live signals and alerts.
	Journal string `yaml:"journal"`
}

type Data struct {
	exchange.Options `yaml:",inline"`

	// File is a .csv or .parquet bar file. When set, backtest and compare
	// read it instead of downloading.
	File     string        `yaml:"file"`
	From     string        `yaml:"from"`
	To       string        `yaml:"to"`
	FillGaps bool          `yaml:"fill_gaps"`
	Chunk    time.Duration `yaml:"chunk"`
	Pause    time.Duration `yaml:"pause"`
	// Top lists the most traded symbols in fetch mode instead of downloading.
	Top int `yaml:"top"`
}

type Compare struct {
	Weights     backtest.Weights `yaml:"weights"`
	Parallelism int              `yaml:"parallelism"`
}

type Strategies struct {
	Enabled         []string `yaml:"enabled"`
	strategy.Params `yaml:",inline"`
}

type Notifier struct {
	Telegram   Telegram   `yaml:"telegram"`
	ServerChan ServerChan `yaml:"serverchan"`
	Email      Email      `yaml:"email"`
	Attempts   int        `yaml:"attempts"`
}

type Telegram struct {
	Token    string `yaml:"token"`
	ChatID   string `yaml:"chat_id"`
	BaseURL  string `yaml:"base_url"`
	ProxyURL string `yaml:"proxy_url"`
}

// Enabled reports whether Telegram delivery is configured.
func (t Telegram) Enabled() bool { return t.Token != "" }

// ServerChan relays messages to WeChat.
type ServerChan struct {
	SendKey string `yaml:"send_key"`
	BaseURL string `yaml:"base_url"`
}

func (s ServerChan) Enabled() bool { return s.SendKey != "" }

type Email struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

func (e Email) Enabled() bool { return e.Host != "" }

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func Default() Config {
	return Config{
		Mode:       ModeBacktest,
		Symbol:     "BTCUSDT",
		Timeframes: []string{"1h"},
		Data: Data{
			Options: exchange.Options{Source: "binance", Retry: exchange.DefaultRetryConfig()},
			Chunk:   7 * 24 * time.Hour,
			Pause:   200 * time.Millisecond,
		},
		Backtest:   backtest.DefaultConfig(),
		Compare:    Compare{Weights: backtest.DefaultWeights()},
		Strategies: Strategies{Enabled: strategy.Names(), Params: strategy.DefaultParams()},
		Live:       livesignal.DefaultConfig(),
		Notifier:   Notifier{Attempts: 3},
		Log:        Log{Level: "info"},
		Output:     "results",
	}
}

// Load reads path over the defaults, applies environment secrets and fills
// the fields shared between sections. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.share()
	return &cfg, nil
}

// Parse builds the configuration from command-line arguments. Flags that
// were set explicitly override the file given by -config.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("signal-trader", flag.ContinueOnError)
	configFile := fs.String("config", "", "Path to YAML config file")
	mode := fs.String("mode", ModeBacktest, "Mode: "+strings.Join(Modes, ", "))
	strategies := fs.String("strategy", "", "Comma-separated strategies: "+strings.Join(strategy.Names(), ", "))
	symbol := fs.String("symbol", "", "Trading symbol")
	timeframes := fs.String("timeframe", "", "Comma-separated candle timeframes; the first one is backtested")
	source := fs.String("source", "", "Data source: binance, wallex or alpaca")
	file := fs.String("file", "", "Bar file (.csv or .parquet)")
	from := fs.String("from", "", "Start date (YYYY-MM-DD or RFC3339)")
	to := fs.String("to", "", "End date (YYYY-MM-DD or RFC3339)")
	out := fs.String("out", "", "Output directory")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	top := fs.Int("top", 0, "Fetch mode: list the N most traded symbols instead of downloading")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := Load(*configFile)
	if err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = *mode
		case "strategy":
			cfg.Strategies.Enabled = splitList(*strategies)
		case "symbol":
			cfg.Symbol = *symbol
		case "timeframe":
			cfg.Timeframes = splitList(*timeframes)
		case "source":
			cfg.Data.Source = *source
		case "file":
			cfg.Data.File = *file
		case "from":
			cfg.Data.From = *from
		case "to":
			cfg.Data.To = *to
		case "out":
			cfg.Output = *out
		case "log-level":
			cfg.Log.Level = *logLevel
		case "top":
			cfg.Data.Top = *top
		}
	})
	cfg.share()
	return cfg, nil
}

func (c *Config) applyEnv() {
	envs := []struct {
		dst *string
		key string
	}{
		{&c.Data.APIKey, "EXCHANGE_API_KEY"},
		{&c.Data.APISecret, "EXCHANGE_API_SECRET"},
		{&c.Notifier.Telegram.Token, "TELEGRAM_TOKEN"},
		{&c.Notifier.Telegram.ChatID, "TELEGRAM_CHAT_ID"},
		{&c.Notifier.ServerChan.SendKey, "SERVERCHAN_SENDKEY"},
		{&c.Notifier.Email.Password, "SMTP_PASSWORD"},
	}
	for _, e := range envs {
		if *e.dst == "" {
			*e.dst = os.Getenv(e.key)
		}
	}
}

// share copies symbol, timeframes and indicator settings into the sections
// that need them.
func (c *Config) share() {
	c.Symbol = exchange.NormalizeSymbol(c.Symbol)
	c.Backtest.Symbol = c.Symbol
	if len(c.Timeframes) > 0 {
		c.Backtest.Timeframe = c.Timeframes[0]
	}
	c.Live.Symbol = c.Symbol
	c.Live.Timeframes = c.Timeframes
	c.Live.Indicators = c.Backtest.Indicators
	if c.Notifier.Attempts > 0 {
		c.Live.SendAttempts = c.Notifier.Attempts
	}
}

// Range returns the parsed data window. A missing end defaults to now and a
// missing start to 90 days before the end.
func (c *Config) Range(now time.Time) (from, to time.Time, err error) {
	to = now.UTC()
	if c.Data.To != "" {
		if to, err = parseDate(c.Data.To); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("data.to: %w", err)
		}
	}
	from = to.AddDate(0, 0, -90)
	if c.Data.From != "" {
		if from, err = parseDate(c.Data.From); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("data.from: %w", err)
		}
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("data range is empty: %s >= %s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return from, to, nil
}

func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(Modes, c.Mode) {
		errs = append(errs, fmt.Errorf("unknown mode %q", c.Mode))
	}
	if c.Symbol == "" {
		errs = append(errs, errors.New("symbol is required"))
	}
	if len(c.Timeframes) == 0 {
		errs = append(errs, errors.New("at least one timeframe is required"))
	}
	for _, tf := range c.Timeframes {
		if _, err := tfutils.ParseTimeframe(tf); err != nil {
			errs = append(errs, fmt.Errorf("timeframe %q: %w, want one of %v", tf, err, tfutils.GetSupportedTimeframes()))
		}
	}
	if len(c.Strategies.Enabled) == 0 {
		errs = append(errs, errors.New("no strategies enabled"))
	}
	for _, name := range c.Strategies.Enabled {
		if !slices.Contains(strategy.Names(), name) {
			errs = append(errs, fmt.Errorf("unknown strategy %q", name))
		}
	}
	if err := c.Strategies.Params.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Data.File == "" || c.Mode == ModeFetch {
		if _, _, err := c.Range(time.Now()); err != nil {
			errs = append(errs, err)
		}
	}
	if tg := c.Notifier.Telegram; tg.Enabled() && tg.ChatID == "" {
		errs = append(errs, errors.New("notifier.telegram.chat_id is required with a token"))
	}
	if em := c.Notifier.Email; em.Enabled() {
		if len(em.To) == 0 {
			errs = append(errs, errors.New("notifier.email.to needs at least one recipient"))
		}
		if em.From == "" && em.Username == "" {
			errs = append(errs, errors.New("notifier.email.from or username is required"))
		}
		if em.Port < 0 || em.Port > 65535 {
			errs = append(errs, fmt.Errorf("notifier.email.port %d is out of range", em.Port))
		}
	}

	switch c.Mode {
	case ModeBacktest, ModeCompare:
		if err := c.Backtest.Validate(); err != nil {
			errs = append(errs, err)
		}
	case ModeLive:
		if err := c.Live.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
