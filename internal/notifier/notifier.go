// Package notifier delivers signal and alert messages to chat channels.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/signal-trader/internal/utils"
)

// Notifier interface for sending notifications (e.g., Telegram, log).
type Notifier interface {
	Name() string
	Send(ctx context.Context, msg string) error
}

// SendWithRetry retries a failed send up to attempts times, doubling delay
// after each failure.
func SendWithRetry(ctx context.Context, n Notifier, msg string, attempts int, delay time.Duration) error {
	attempts = max(attempts, 1)
	var err error
	for i := 1; i <= attempts; i++ {
		if err = n.Send(ctx, msg); err == nil {
			return nil
		}
		utils.GetLogger().Warnf("SendWithRetry | %s attempt %d/%d failed: %v", n.Name(), i, attempts, err)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%s: all %d attempts failed: %w", n.Name(), attempts, err)
}

// Multi sends every message to all of its notifiers.
type Multi []Notifier

func (m Multi) Name() string { return "multi" }

// Send delivers to each notifier and joins their errors.
func (m Multi) Send(ctx context.Context, msg string) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Log writes messages to the process logger. It stands in when no chat
// channel is configured.
type Log struct{}

func (Log) Name() string { return "log" }

func (Log) Send(_ context.Context, msg string) error {
	utils.GetLogger().Infof("Notifier | %s", msg)
	return nil
}
