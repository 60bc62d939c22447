package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var pacerWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "exporter_pacer_wait_seconds",
	Help:    "Time spent waiting for the request pacer by pacer name",
	Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 5},
}, []string{"pacer"})

// Pacer spaces out requests so a source is not hit back-to-back.
// A zero interval disables pacing.
type Pacer struct {
	name    string
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewPacer creates a pacer that allows one request per interval, with the
// given burst. The first burst requests pass without waiting.
func NewPacer(name string, interval time.Duration, burst int, logger zerolog.Logger) *Pacer {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{
		name:    name,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Wait blocks until the next request may be sent or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pacer %s: %w", p.name, err)
	}
	waited := time.Since(start)
	pacerWaitSeconds.WithLabelValues(p.name).Observe(waited.Seconds())
	if waited > 0 {
		p.logger.Debug().
			Str("pacer", p.name).
			Dur("waited", waited).
			Msg("Paced request")
	}
	return nil
}

// Interval returns the minimum spacing between requests, 0 if unpaced.
func (p *Pacer) Interval() time.Duration {
	if p == nil || p.limiter.Limit() == rate.Inf {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(p.limiter.Limit()))
}
