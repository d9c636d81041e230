// Package pattern flags abnormal market behaviour on the latest bar of a
// series: one-sided trends, waterfall moves and pin bars.
package pattern

import (
	"fmt"
	"time"

	"github.com/amirphl/signal-trader/internal/candle"
)

// MinBars is the shortest series the scanner looks at.
const MinBars = 20

type AlertType string

const (
	AlertTrend     AlertType = "trend"
	AlertWaterfall AlertType = "waterfall"
	AlertPinBar    AlertType = "pin_bar"
)

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Alert is one detected anomaly. Details holds display-ready values.
type Alert struct {
	Type      AlertType         `json:"type"`
	Direction Direction         `json:"direction"`
	Severity  Severity          `json:"severity"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details"`
	Timeframe string            `json:"timeframe"`
	Price     float64           `json:"price"`
	Time      time.Time         `json:"time"`
}

// Key groups alerts for throttling.
func (a Alert) Key() string {
	return fmt.Sprintf("%s_%s_%s", a.Type, a.Direction, a.Timeframe)
}

// Detector inspects the last bar of a series.
type Detector interface {
	Name() string
	Description() string
	Detect(candles []candle.Candle, timeframe string) *Alert
}

// Scanner runs a fixed set of detectors.
type Scanner struct {
	detectors []Detector
}

func NewScanner(detectors ...Detector) *Scanner {
	if len(detectors) == 0 {
		detectors = []Detector{NewTrendDetector(), NewWaterfallDetector(), NewPinBarDetector()}
	}
	return &Scanner{detectors: detectors}
}

// Scan returns the alerts raised on the last bar, in detector order. Series
// shorter than MinBars yield nothing.
func (s *Scanner) Scan(candles []candle.Candle, timeframe string) []Alert {
	if len(candles) < MinBars {
		return nil
	}
	var alerts []Alert
	for _, d := range s.detectors {
		if a := d.Detect(candles, timeframe); a != nil {
			alerts = append(alerts, *a)
		}
	}
	return alerts
}

func newAlert(t AlertType, dir Direction, sev Severity, msg string, last candle.Candle, timeframe string, details map[string]string) *Alert {
	details["timeframe"] = timeframe
	return &Alert{
		Type:      t,
		Direction: dir,
		Severity:  sev,
		Message:   msg,
		Details:   details,
		Timeframe: timeframe,
		Price:     last.Close,
		Time:      last.Timestamp,
	}
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

func ratio(v float64) string {
	return fmt.Sprintf("%.1fx", v)
}

func changePct(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

func meanClose(candles []candle.Candle) float64 {
	var sum float64
	for _, c := range candles {
		sum += c.Close
	}
	return sum / float64(len(candles))
}

// volumeRatio divides the last volume by the mean of the trailing window,
// the last bar included. It is 1 when the mean is zero.
func volumeRatio(candles []candle.Candle, window int) float64 {
	tail := candles[max(0, len(candles)-window):]
	var sum float64
	for _, c := range tail {
		sum += c.Volume
	}
	mean := sum / float64(len(tail))
	if mean <= 0 {
		return 1
	}
	return candles[len(candles)-1].Volume / mean
}
