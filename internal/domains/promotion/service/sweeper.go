package service

import (
	"context"
	"sync"
	"time"

	"promo-engine/pkg/logger"
)

// sweeper runs a named task on a fixed interval. Ticks are single-flight: a
// slow sweep makes the next tick a no-op instead of overlapping it. Start and
// Stop are idempotent and safe from any goroutine; Stop cancels the in-flight
// tick and waits for it to drain.
type sweeper struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context)

	mu       sync.Mutex
	running  bool
	inFlight bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func newSweeper(name string, interval time.Duration, task func(ctx context.Context)) *sweeper {
	return &sweeper{
		name:     name,
		interval: interval,
		task:     task,
	}
}

func (s *sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, s.done)

	logger.Info("sweep started", map[string]interface{}{
		"sweep":    s.name,
		"interval": s.interval.String(),
	})
}

func (s *sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	logger.Info("sweep stopped", map[string]interface{}{"sweep": s.name})
}

func (s *sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce executes one tick unless the previous one is still in flight.
func (s *sweeper) runOnce(ctx context.Context) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		logger.Warn("sweep tick skipped: previous run still in flight", map[string]interface{}{
			"sweep": s.name,
		})
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	s.task(ctx)
}
