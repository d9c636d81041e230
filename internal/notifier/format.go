package notifier

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/amirphl/signal-trader/internal/pattern"
	"github.com/amirphl/signal-trader/internal/strategy"
)

const maxReasons = 10

// FormatSignal renders a trade signal as a plain text message.
func FormatSignal(symbol string, sig strategy.Signal) string {
	marker := "🟢"
	if sig.Direction == strategy.Short {
		marker = "🔴"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s signal (%s) %s\n\n", marker, symbol, strings.ToUpper(string(sig.Direction)), sig.Strategy, marker)
	fmt.Fprintf(&b, "Category: %s\n", sig.Category)
	fmt.Fprintf(&b, "Strength: %d/100 (score %.1f)\n", sig.Strength, sig.Score)
	fmt.Fprintf(&b, "Timeframe: %s\n", sig.Timeframe)
	fmt.Fprintf(&b, "Bar: %s\n\n", sig.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Entry: %.2f\n", sig.Price)
	fmt.Fprintf(&b, "Stop loss: %.2f\n", sig.StopLoss)
	fmt.Fprintf(&b, "Take profit: %.2f\n", sig.TakeProfit)
	fmt.Fprintf(&b, "Risk/reward: %.2f\n", sig.RiskReward())

	if len(sig.Reasons) > 0 {
		b.WriteString("\nReasons:\n")
		for i, r := range sig.Reasons[:min(len(sig.Reasons), maxReasons)] {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, r)
		}
	}
	b.WriteString("\nAutomated analysis, not financial advice.")
	return b.String()
}

// FormatAlert renders a market anomaly. Details are listed by key.
func FormatAlert(symbol string, a pattern.Alert) string {
	marker := "📈"
	switch {
	case a.Direction == pattern.Up && a.Severity == pattern.SeverityDanger:
		marker = "🚀"
	case a.Direction == pattern.Down && a.Severity == pattern.SeverityDanger:
		marker = "🌊"
	case a.Direction == pattern.Down:
		marker = "📉"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s %s at %.2f\n", marker, strings.ToUpper(string(a.Severity)), symbol, a.Message, a.Price)
	fmt.Fprintf(&b, "Type: %s, direction: %s\n", a.Type, a.Direction)

	keys := make([]string, 0, len(a.Details))
	for k := range a.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %s\n", k, a.Details[k])
	}
	fmt.Fprintf(&b, "Bar: %s", a.Time.UTC().Format(time.RFC3339))
	return b.String()
}
