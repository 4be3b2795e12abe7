package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tinfoilhat/hatscore/pkg/models"
)

// Runner drives passes in the background so HTTP handlers return right away
type Runner struct {
	controller *Controller

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner returns a runner for c. Close stops it.
func NewRunner(c *Controller) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{controller: c, ctx: ctx, cancel: cancel}
}

// Start begins a pass and runs it to completion in a goroutine. Errors from
// starting the pass are returned; a later error is logged and aborts the pass.
func (r *Runner) Start(ctx context.Context, pass models.PassType) (Snapshot, error) {
	if err := r.controller.StartPass(ctx, pass); err != nil {
		return r.controller.State(), err
	}
	snap := r.controller.State()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		start := time.Now()
		final, err := r.controller.RunToCompletion(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil {
				log.Info().Str("pass", string(pass)).Msg("Scan runner stopped")
				return
			}
			// nothing drives the pass any more; abort so a new one can start
			log.Error().Err(err).Str("pass", string(pass)).Msg("Scan pass stopped with error")
			if err := r.controller.Abort(); err != nil && !errors.Is(err, ErrNotScanning) {
				log.Error().Err(err).Str("pass", string(pass)).Msg("Failed to abort stalled pass")
			}
			return
		}
		log.Info().
			Str("pass", string(pass)).
			Str("state", string(final.State)).
			Int("done", final.Done).
			Dur("elapsed", time.Since(start)).
			Msg("Scan runner finished")
	}()

	return snap, nil
}

// Close cancels running passes and waits for them to stop
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}
