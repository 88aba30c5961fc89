// Package scheduler runs the background jobs that keep the channel pool healthy
package scheduler

import (
	"context"
	"sync"

	businessflow "github.com/amirphl/wa-pool/business_flow"
	"github.com/amirphl/wa-pool/config"
	"github.com/amirphl/wa-pool/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

const refillLockKey = "pool:refill:lock"

// result: completed, skipped, locked, lock_error, stats_error, error, dropped
var refillTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "channel_refill_tasks_total",
	Help: "Background pool refill tasks by outcome",
}, []string{"result"})

// PoolSizer is the part of the channel pool the dispatcher drives
type PoolSizer interface {
	EnsurePoolSize(ctx context.Context, target int) (*businessflow.ProvisionResult, error)
	GetPoolStats(ctx context.Context) (*models.PoolStats, error)
}

type refillRequest struct {
	reason string
	force  bool
}

// RefillDispatcher is a bounded queue drained by a single worker. Requests that
// pile up while a refill runs collapse into one.
type RefillDispatcher struct {
	pool      PoolSizer
	locker    RefillLocker
	target    int
	threshold int
	queue     chan refillRequest
	logger    zerolog.Logger
}

// NewRefillDispatcher creates a dispatcher; locker may be nil on single-replica deployments
func NewRefillDispatcher(pool PoolSizer, locker RefillLocker, cfg config.PoolConfig, logger zerolog.Logger) *RefillDispatcher {
	size := cfg.RefillQueueSize
	if size < 1 {
		size = 1
	}
	return &RefillDispatcher{
		pool:      pool,
		locker:    locker,
		target:    cfg.TargetSize,
		threshold: cfg.RefillThreshold,
		queue:     make(chan refillRequest, size),
		logger:    logger.With().Str("component", "refill_dispatcher").Logger(),
	}
}

// Trigger asks for a refill if availability is below the threshold. It never blocks.
func (d *RefillDispatcher) Trigger(reason string) bool {
	return d.enqueue(refillRequest{reason: reason})
}

// TriggerFull asks for a top-up to the target regardless of the threshold
func (d *RefillDispatcher) TriggerFull(reason string) bool {
	return d.enqueue(refillRequest{reason: reason, force: true})
}

func (d *RefillDispatcher) enqueue(req refillRequest) bool {
	select {
	case d.queue <- req:
		return true
	default:
		refillTasksTotal.WithLabelValues("dropped").Inc()
		return false
	}
}

// Start runs the worker until ctx is cancelled; the returned func stops it and waits
func (d *RefillDispatcher) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-d.queue:
				d.run(ctx, d.coalesce(req))
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

// coalesce folds every queued request into req
func (d *RefillDispatcher) coalesce(req refillRequest) refillRequest {
	for {
		select {
		case next := <-d.queue:
			req.force = req.force || next.force
		default:
			return req
		}
	}
}

func (d *RefillDispatcher) run(ctx context.Context, req refillRequest) {
	log := d.logger.With().Str("reason", req.reason).Bool("force", req.force).Logger()

	if !req.force {
		stats, err := d.pool.GetPoolStats(ctx)
		if err != nil {
			refillTasksTotal.WithLabelValues("stats_error").Inc()
			log.Warn().Err(err).Msg("refill skipped, pool stats unavailable")
			return
		}
		if stats.Available >= int64(d.threshold) {
			refillTasksTotal.WithLabelValues("skipped").Inc()
			log.Debug().Int64("available", stats.Available).Int("threshold", d.threshold).Msg("pool above threshold")
			return
		}
	}

	if d.locker != nil {
		release, ok, err := d.locker.Acquire(ctx)
		switch {
		case err != nil:
			// proceed unlocked; assignment stays guarded by the registry CAS
			refillTasksTotal.WithLabelValues("lock_error").Inc()
			log.Warn().Err(err).Msg("refill lock unavailable, refilling without it")
		case !ok:
			refillTasksTotal.WithLabelValues("locked").Inc()
			log.Debug().Msg("another replica is refilling")
			return
		default:
			defer release()
		}
	}

	result, err := d.pool.EnsurePoolSize(ctx, d.target)
	if err != nil {
		refillTasksTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("pool refill failed")
		return
	}
	refillTasksTotal.WithLabelValues("completed").Inc()
	log.Info().
		Int("target", result.Target).
		Int("created", result.Created).
		Int("failed", result.Failed).
		Msg("pool refill finished")
}
