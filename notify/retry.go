package notify

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryConfig bounds redelivery of best-effort notices.
type RetryConfig struct {
	Base       time.Duration `yaml:"base"`
	Cap        time.Duration `yaml:"cap"`
	MaxRetries uint64        `yaml:"max_retries"`
}

// DefaultRetryConfig doubles from 100ms up to 2s, five retries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Base:       100 * time.Millisecond,
		Cap:        2 * time.Second,
		MaxRetries: 5,
	}
}

func (c RetryConfig) backoff() retry.Backoff {
	if c.Base <= 0 {
		c.Base = 100 * time.Millisecond
	}
	b := retry.NewExponential(c.Base)
	if c.Cap > 0 {
		b = retry.WithCappedDuration(c.Cap, b)
	}
	return retry.WithMaxRetries(c.MaxRetries, b)
}

// sendWithRetry returns the last delivery error once retries are exhausted.
func sendWithRetry(ctx context.Context, n Notifier, cfg RetryConfig, msg Message) (int, error) {
	attempts := 0
	err := retry.Do(ctx, cfg.backoff(), func(ctx context.Context) error {
		attempts++
		if err := n.Send(ctx, msg); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return attempts, err
}
