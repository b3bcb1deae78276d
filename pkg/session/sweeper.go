package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultSweepInterval is how often the sweeper checks the token's expiry.
const DefaultSweepInterval = time.Minute

// Sweeper periodically expires a stale session so long-running clients log
// the user out even when no request or navigation happens.
type Sweeper struct {
	mgr      *Manager
	interval time.Duration
	cron     *cron.Cron

	mu      sync.Mutex
	started bool
	entry   cron.EntryID
}

// NewSweeper creates a sweeper for mgr running every interval
func NewSweeper(mgr *Manager, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		mgr:      mgr,
		interval: interval,
		cron:     cron.New(),
	}
}

// Start schedules the sweep job
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	spec := fmt.Sprintf("@every %s", s.interval)
	id, err := s.cron.AddFunc(spec, func() { s.Sweep(context.Background()) })
	if err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}
	s.entry = id
	s.cron.Start()
	s.started = true

	log.Info().Dur("interval", s.interval).Msg("Session expiry sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	<-s.cron.Stop().Done()
	s.cron.Remove(s.entry)
	s.started = false
	log.Info().Msg("Session expiry sweeper stopped")
}

// Sweep expires the session if it holds a stale token. It reports whether
// the session was cleared.
func (s *Sweeper) Sweep(ctx context.Context) bool {
	if s.mgr.Token() == "" || !s.mgr.IsExpired() {
		return false
	}
	return s.mgr.Expire(ctx, ReasonExpired)
}
