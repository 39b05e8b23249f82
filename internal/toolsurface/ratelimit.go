package toolsurface

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/browseragent/control-plane/internal/errs"
)

// sessionLimiters enforces a per-session tool-call rate so one runaway
// agent session cannot monopolize the browser.
type sessionLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

func newSessionLimiters(callsPerSecond float64, burst int) *sessionLimiters {
	if callsPerSecond <= 0 {
		callsPerSecond = 20
	}
	if burst <= 0 {
		burst = 40
	}
	return &sessionLimiters{limiters: make(map[string]*rate.Limiter), r: rate.Limit(callsPerSecond), burst: burst}
}

func (s *sessionLimiters) allow(sessionID string) error {
	if sessionID == "" {
		return nil // global tool calls (task ops without a session) are unmetered
	}
	s.mu.Lock()
	lim, ok := s.limiters[sessionID]
	if !ok {
		lim = rate.NewLimiter(s.r, s.burst)
		s.limiters[sessionID] = lim
	}
	s.mu.Unlock()
	if !lim.Allow() {
		return errs.New(errs.RunBackpressure, "tool-call rate limit exceeded for session "+sessionID)
	}
	return nil
}

func (s *sessionLimiters) forget(sessionID string) {
	s.mu.Lock()
	delete(s.limiters, sessionID)
	s.mu.Unlock()
}
