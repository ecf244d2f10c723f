package fanout

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/movinesta/swipe-ingest/internal/logger"
)

// BreakerConfig configures the circuit breaker in front of a TasteSink.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "taste-sink",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerTasteSink stops calling a failing TasteSink until it recovers, so
// a down taste backend costs one fast error per call instead of a timeout.
type BreakerTasteSink struct {
	next TasteSink
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerTasteSink(next TasteSink, cfg BreakerConfig, log *logger.Logger) *BreakerTasteSink {
	if log == nil {
		log = logger.Nop()
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerTasteSink{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

func (b *BreakerTasteSink) UpdateTaste(ctx context.Context, u TasteUpdate) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.UpdateTaste(ctx, u)
	})
	return err
}

func (b *BreakerTasteSink) RefreshCentroids(ctx context.Context, userID string, k, maxItems int) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.RefreshCentroids(ctx, userID, k, maxItems)
	})
	return err
}

func (b *BreakerTasteSink) State() gobreaker.State {
	return b.cb.State()
}
