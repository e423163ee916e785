package session

import (
	"sync"
	"time"
)

// Countdown is a fixed-duration timer that runs its callback exactly once on
// expiry. It has no stop method: a recording always runs to its deadline.
type Countdown struct {
	deadline time.Time
	done     chan struct{}
}

// StartCountdown schedules fire to run after d.
func StartCountdown(d time.Duration, fire func()) *Countdown {
	c := &Countdown{
		deadline: time.Now().Add(d),
		done:     make(chan struct{}),
	}
	var once sync.Once
	time.AfterFunc(d, func() {
		once.Do(func() {
			defer close(c.done)
			if fire != nil {
				fire()
			}
		})
	})
	return c
}

// Deadline returns when the countdown expires.
func (c *Countdown) Deadline() time.Time {
	return c.deadline
}

// Done is closed after the callback has returned.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}

// ExpireRecording force-closes an open recording whose deadline has passed,
// moving the session to voting. It reports whether the session changed.
// Persisted sessions are expired lazily through this on every load.
func (e *Engine) ExpireRecording(s *GameSession) bool {
	if s.Phase != PhaseRecording {
		return false
	}
	now := e.now()
	if now.Unix() < s.RecordingDeadline {
		return false
	}
	s.Phase = PhaseVoting
	s.RecordingDeadline = 0
	s.UpdatedAt = now.Unix()
	return true
}
