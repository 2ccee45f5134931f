package scheduler

import (
	"context"
	"errors"
	"runtime/debug"

	"github.com/codecraftsmanpawan/MindGameBackend/go/internal/apperr"
	"github.com/rs/zerolog/log"
)

// worker processes fired open and close jobs from the work channel
func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	log.Debug().
		Str("instance", s.instanceID).
		Int("worker_id", workerID).
		Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().
				Str("instance", s.instanceID).
				Int("worker_id", workerID).
				Msg("worker shutting down")
			return
		case j := <-s.workCh:
			s.run(ctx, workerID, j)
		}
	}
}

// run handles one job. A panic is logged and the job retried after RetryDelay; a close
// that got past RUNNING has already scheduled the next round and the retry is skipped.
func (s *Scheduler) run(ctx context.Context, workerID int, j job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("instance", s.instanceID).
				Int("worker_id", workerID).
				Str("job", j.kind.String()).
				Str("mode", j.mode).
				Str("round_id", j.roundID.String()).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Dur("retry_in", s.cfg.RetryDelay).
				Msg("job panicked, retrying")
			s.schedule(s.timerContext(ctx), j, s.cfg.RetryDelay)
		}
	}()

	switch j.kind {
	case jobOpen:
		s.handleOpen(ctx, j)
	case jobClose:
		s.handleClose(ctx, j)
	}
}

// handleOpen opens the next round. An already active round is resumed instead, and any
// other failure is retried so the cycle never stops.
func (s *Scheduler) handleOpen(ctx context.Context, j job) {
	mode, ok := s.modes[j.mode]
	if !ok {
		log.Error().Str("mode", j.mode).Msg("open job for unknown mode dropped")
		return
	}

	active, err := s.OpenRound(ctx, j.mode)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrAlreadyActive):
		log.Info().Str("mode", j.mode).Msg("round already active, resuming it")
		if active == nil {
			s.recoverMode(ctx, mode)
			return
		}
		if err := s.resume(ctx, mode, *active); err != nil {
			log.Error().Err(err).Str("mode", j.mode).Msg("failed to resume active round, retrying")
			s.schedule(ctx, j, s.cfg.RetryDelay)
		}
	default:
		log.Error().
			Err(err).
			Str("mode", j.mode).
			Dur("retry_in", s.cfg.RetryDelay).
			Msg("failed to open round, retrying")
		s.schedule(ctx, j, s.cfg.RetryDelay)
	}
}

// handleClose closes a round whose deadline passed. Failures before the round left
// RUNNING are retried; later failures already scheduled the next round.
func (s *Scheduler) handleClose(ctx context.Context, j job) {
	_, transitioned, err := s.closeRound(ctx, j.roundID, nil)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotRunning), errors.Is(err, apperr.ErrRoundNotFound):
		log.Info().
			Str("mode", j.mode).
			Str("round_id", j.roundID.String()).
			Msg("round no longer running, close skipped")
	case !transitioned:
		log.Error().
			Err(err).
			Str("mode", j.mode).
			Str("round_id", j.roundID.String()).
			Dur("retry_in", s.cfg.RetryDelay).
			Msg("failed to close round, retrying")
		s.schedule(ctx, j, s.cfg.RetryDelay)
	default:
		log.Error().
			Err(err).
			Str("mode", j.mode).
			Str("round_id", j.roundID.String()).
			Msg("round close finished with errors")
	}
}
