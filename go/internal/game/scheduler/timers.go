package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type jobKind int

const (
	jobOpen jobKind = iota
	jobClose
)

func (k jobKind) String() string {
	if k == jobClose {
		return "close"
	}
	return "open"
}

// job is both the unit of work for the pool and the key of the timer that produces it.
// Open jobs carry only the mode; close jobs also carry the round.
type job struct {
	kind    jobKind
	mode    string
	roundID uuid.UUID
}

// armedTimer pairs a timer with the token that cancels its waiting goroutine.
type armedTimer struct {
	timer  clockwork.Timer
	cancel chan struct{}
}

// timerContext picks the context timers live under: the scheduler's own once started.
func (s *Scheduler) timerContext(ctx context.Context) context.Context {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.runCtx != nil {
		return s.runCtx
	}
	return ctx
}

// schedule arms a one-shot timer that enqueues j when it fires, replacing any timer
// already armed for j.
func (s *Scheduler) schedule(ctx context.Context, j job, d time.Duration) {
	if ctx.Err() != nil {
		log.Debug().
			Str("job", j.kind.String()).
			Str("mode", j.mode).
			Msg("not scheduling, scheduler stopped")
		return
	}

	at := &armedTimer{
		timer:  s.clock.NewTimer(d),
		cancel: make(chan struct{}),
	}
	s.replaceTimer(j, at)

	go func() {
		select {
		case <-at.timer.Chan():
			if !s.removeTimer(j, at) {
				// Replaced or cancelled between firing and now.
				return
			}
			s.enqueue(ctx, j)
		case <-at.cancel:
			stopAndDrainTimer(at.timer)
		case <-ctx.Done():
			stopAndDrainTimer(at.timer)
			s.removeTimer(j, at)
		}
	}()

	log.Debug().
		Str("job", j.kind.String()).
		Str("mode", j.mode).
		Str("round_id", j.roundID.String()).
		Dur("duration", d).
		Msg("scheduled one-shot timer")
}

func (s *Scheduler) enqueue(ctx context.Context, j job) {
	select {
	case s.workCh <- j:
		log.Debug().
			Str("job", j.kind.String()).
			Str("mode", j.mode).
			Msg("timer fired - enqueued for processing")
	case <-ctx.Done():
	}
}

// replaceTimer atomically replaces the timer for j, cancelling any existing one.
func (s *Scheduler) replaceTimer(j job, at *armedTimer) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()

	if existing, ok := s.activeTimers[j]; ok {
		close(existing.cancel)
		log.Debug().Str("job", j.kind.String()).Str("mode", j.mode).Msg("replaced existing timer")
	}
	s.activeTimers[j] = at
}

// cancelTimer cancels and removes the timer armed for j, if any.
func (s *Scheduler) cancelTimer(j job) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()

	if at, ok := s.activeTimers[j]; ok {
		close(at.cancel)
		delete(s.activeTimers, j)
		log.Debug().Str("job", j.kind.String()).Str("mode", j.mode).Msg("cancelled existing timer")
	}
}

// removeTimer forgets at if it is still the timer for j. It reports whether it was.
func (s *Scheduler) removeTimer(j job, at *armedTimer) bool {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()

	if s.activeTimers[j] != at {
		return false
	}
	delete(s.activeTimers, j)
	return true
}

func (s *Scheduler) hasTimer(j job) bool {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	_, ok := s.activeTimers[j]
	return ok
}

func (s *Scheduler) cancelAllTimers() {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()

	for j, at := range s.activeTimers {
		close(at.cancel)
		log.Debug().Str("job", j.kind.String()).Str("mode", j.mode).Msg("cancelled timer on shutdown")
	}
	s.activeTimers = make(map[job]*armedTimer)
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
