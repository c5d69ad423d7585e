package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/gaiatryst-synopsis/internal/coherence"
)

// BreakerConfig controls when repeated scrape failures stop launching a
// browser at all.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32
	// Timeout is how long the breaker stays open before a trial attempt.
	Timeout time.Duration
}

var (
	errCircuitOpen   = errors.New("circuit breaker open")
	errUnexpected    = errors.New("unexpected result type from circuit breaker")
	errInvalidConfig = errors.New("invalid breaker configuration")
)

func newBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 3
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	})
}

// scrapeWithBreaker runs a single scrape attempt through the circuit breaker.
// There is no retry: an open breaker fails the cycle immediately.
func scrapeWithBreaker(
	ctx context.Context,
	cb *gobreaker.CircuitBreaker,
	scrape func(ctx context.Context) ([]coherence.Series, error),
) ([]coherence.Series, error) {
	if cb == nil || scrape == nil {
		return nil, fmt.Errorf("%w: %v", coherence.ErrFetch, errInvalidConfig)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", coherence.ErrFetch, err)
	}

	result, err := cb.Execute(func() (interface{}, error) {
		return scrape(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v: %v", coherence.ErrFetch, errCircuitOpen, err)
		}
		return nil, err
	}

	series, ok := result.([]coherence.Series)
	if !ok {
		return nil, fmt.Errorf("%w: %v", coherence.ErrParse, errUnexpected)
	}
	return series, nil
}
