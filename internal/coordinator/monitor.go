package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Monitor sweeps the coordinator for overdue jobs on a fixed interval.
// Expiry is also checked lazily inside mutating operations, so the sweep
// only has to catch jobs nobody is touching.
type Monitor struct {
	coord    *Coordinator
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewMonitor(coord *Coordinator, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		coord:    coord,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start launches the sweep loop. It runs until Stop is called or the
// context is canceled.
func (m *Monitor) Start(ctx context.Context) {
	m.logger.Info("Deadline monitor started",
		slog.Duration("sweep_interval", m.interval),
	)

	m.wg.Add(1)
	go m.run(ctx)
}

// Stop signals the sweep loop and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.stopChan)
	m.wg.Wait()
	m.logger.Info("Deadline monitor stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if expired := m.coord.ExpireOverdue(ctx); len(expired) > 0 {
				m.logger.Info("Expired overdue jobs",
					slog.Int("count", len(expired)),
					slog.Any("job_ids", expired),
				)
			}
		}
	}
}
