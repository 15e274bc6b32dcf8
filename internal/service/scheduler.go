package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// periodicTask runs fn on a fixed interval until stopped. Each background
// worker owns its own instance.
type periodicTask struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newPeriodicTask(name string, interval time.Duration, fn func(ctx context.Context) error, log zerolog.Logger) *periodicTask {
	return &periodicTask{name: name, interval: interval, fn: fn, log: log}
}

// start launches the loop. Calling start on a running task is a no-op.
func (t *periodicTask) start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.loop(ctx, t.done)
	t.log.Info().Str("task", t.name).Dur("interval", t.interval).Msg("background task started")
}

func (t *periodicTask) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.fn(ctx); err != nil && ctx.Err() == nil {
				t.log.Error().Err(err).Str("task", t.name).Msg("background task run failed")
			}
		}
	}
}

// stop cancels the loop and waits for an in-flight run to finish.
func (t *periodicTask) stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	t.log.Info().Str("task", t.name).Msg("background task stopped")
}
