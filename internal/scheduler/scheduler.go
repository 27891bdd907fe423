package scheduler

import (
	"context"
	"log/slog"
	"time"

	"digestbot/internal/pipeline"
)

// Runner executes one pipeline pass.
type Runner interface {
	Run(ctx context.Context) (pipeline.State, error)
}

// Scheduler runs the pipeline repeatedly. The gates inside the pipeline
// decide whether a pass does any daily work, so ticking often is cheap.
type Scheduler struct {
	runner Runner
	log    *slog.Logger
	tick   time.Duration
}

// New creates a Scheduler that ticks every 5 minutes.
func New(runner Runner, log *slog.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		log:    log,
		tick:   5 * time.Minute,
	}
}

// SetTickInterval overrides the default 5-minute interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run runs the pipeline immediately and then on every tick, blocking
// until ctx is cancelled. Passes never overlap: a tick that fires while
// a pass is running is dropped.
func (s *Scheduler) Run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.tick)
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

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	state, err := s.runner.Run(ctx)
	if err != nil {
		s.log.Error("pipeline failed", "run_id", state.RunID, "error", err)
		return
	}
	if state.Delivery != nil {
		s.log.Info("digest delivered", "run_id", state.RunID, "message_id", state.Delivery.MessageID)
	}
}
