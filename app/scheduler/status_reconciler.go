package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/amirphl/wa-pool/models"
	"github.com/rs/zerolog"
)

// ChannelRefresher is the part of the channel pool the reconciler drives
type ChannelRefresher interface {
	ListChannels(ctx context.Context, filter models.ChannelFilter, limit, offset int) ([]*models.Channel, int64, error)
	RefreshStatus(ctx context.Context, channelID uint) (*models.Channel, error)
}

// StatusReconciler periodically refreshes every assigned pool channel
type StatusReconciler struct {
	pool     ChannelRefresher
	interval time.Duration
	batch    int
	logger   zerolog.Logger
}

func NewStatusReconciler(pool ChannelRefresher, interval time.Duration, batch int, logger zerolog.Logger) *StatusReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch < 1 {
		batch = 100
	}
	return &StatusReconciler{
		pool:     pool,
		interval: interval,
		batch:    batch,
		logger:   logger.With().Str("component", "status_reconciler").Logger(),
	}
}

// Start launches the loop in a background goroutine and returns a stop function
func (s *StatusReconciler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

// RunOnce walks assigned pool channels in id order and refreshes each one.
// A failed refresh is logged and the pass moves on.
func (s *StatusReconciler) RunOnce(ctx context.Context) (checked, failed int) {
	filter := models.ChannelFilter{
		PoolOwned: boolPtr(true),
		Assigned:  boolPtr(true),
	}

	for offset := 0; ; offset += s.batch {
		if ctx.Err() != nil {
			break
		}
		channels, _, err := s.pool.ListChannels(ctx, filter, s.batch, offset)
		if err != nil {
			s.logger.Error().Err(err).Int("offset", offset).Msg("failed to list channels for reconciliation")
			break
		}
		for _, ch := range channels {
			if ctx.Err() != nil {
				break
			}
			checked++
			if _, err := s.pool.RefreshStatus(ctx, ch.ID); err != nil {
				failed++
				s.logger.Warn().Err(err).Str("channel", ch.Name).Msg("reconciliation failed")
			}
		}
		if len(channels) < s.batch {
			break
		}
	}

	s.logger.Debug().Int("checked", checked).Int("failed", failed).Msg("reconciliation pass finished")
	return checked, failed
}

func boolPtr(b bool) *bool {
	return &b
}
