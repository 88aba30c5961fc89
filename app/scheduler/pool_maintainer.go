package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// FullRefiller queues a top-up to the configured target
type FullRefiller interface {
	TriggerFull(reason string) bool
}

// PoolMaintainer tops the pool up at startup and on a cron schedule
type PoolMaintainer struct {
	refiller FullRefiller
	spec     string
	logger   zerolog.Logger
}

func NewPoolMaintainer(refiller FullRefiller, spec string, logger zerolog.Logger) *PoolMaintainer {
	return &PoolMaintainer{
		refiller: refiller,
		spec:     spec,
		logger:   logger.With().Str("component", "pool_maintainer").Logger(),
	}
}

// Start queues the startup top-up and schedules the periodic one
func (m *PoolMaintainer) Start(ctx context.Context) (func(), error) {
	c := cron.New(cron.WithLocation(time.UTC))
	if m.spec != "" {
		if _, err := c.AddFunc(m.spec, func() { m.tick("cron") }); err != nil {
			return nil, fmt.Errorf("invalid maintenance schedule %q: %w", m.spec, err)
		}
	}

	m.tick("startup")
	c.Start()

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			<-c.Stop().Done()
		case <-stopped:
		}
	}()

	return func() {
		close(stopped)
		<-c.Stop().Done()
	}, nil
}

func (m *PoolMaintainer) tick(reason string) {
	if !m.refiller.TriggerFull(reason) {
		m.logger.Debug().Str("reason", reason).Msg("pool top-up already queued")
	}
}
