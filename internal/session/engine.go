package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/config"
	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/id"
)

// Engine drives session progression against a catalog.
// It holds no session state of its own; every call mutates the session passed in.
type Engine struct {
	catalog        *capsule.Catalog
	vaultThreshold int
	recording      time.Duration
	now            func() time.Time
	newID          func() (string, error)
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(e *Engine) { e.newID = gen }
}

// NewEngine creates an engine over cat using thresholds from cfg.
func NewEngine(cat *capsule.Catalog, cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{
		catalog:        cat,
		vaultThreshold: cfg.VaultThreshold,
		recording:      time.Duration(cfg.RecordingSeconds) * time.Second,
		now:            time.Now,
		newID:          id.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the catalog the engine reads from.
func (e *Engine) Catalog() *capsule.Catalog {
	return e.catalog
}

// RecordingDuration returns the fixed recording countdown.
func (e *Engine) RecordingDuration() time.Duration {
	return e.recording
}

// CreateInput describes a new session.
type CreateInput struct {
	CapsuleID string
	Tier      capsule.Tier
	UserID    string // optional; rewards need it
	Venue     string // optional
	Campaign  string // optional
}

// Create starts a session at the first archetype with zero points.
// An unknown capsule is a configuration error (UNKNOWN_CAPSULE).
func (e *Engine) Create(input CreateInput) (*GameSession, error) {
	c, ok := e.catalog.Capsule(input.CapsuleID)
	if !ok {
		return nil, errors.NewUnknownCapsule(input.CapsuleID)
	}
	if !input.Tier.IsValid() {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid tier %q", input.Tier))
	}

	sessionID, err := e.newID()
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("generate session id: %w", err))
	}

	now := e.now().Unix()
	return &GameSession{
		ID:        sessionID,
		CapsuleID: c.ID,
		Tier:      input.Tier,
		UserID:    strings.TrimSpace(input.UserID),
		Completed: []string{},
		Phase:     PhaseIntro,
		Venue:     strings.TrimSpace(input.Venue),
		Campaign:  strings.TrimSpace(input.Campaign),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// capsuleFor resolves the session's capsule. A session whose capsule vanished
// from the catalog is unusable.
func (e *Engine) capsuleFor(s *GameSession) (*capsule.Capsule, error) {
	c, ok := e.catalog.Capsule(s.CapsuleID)
	if !ok {
		return nil, errors.NewUnknownCapsule(s.CapsuleID)
	}
	return c, nil
}

// Advance moves the session one archetype forward.
// At the last index it records FinalArchetype and leaves the index unchanged;
// further calls are no-ops on the index.
func (e *Engine) Advance(s *GameSession) error {
	c, err := e.capsuleFor(s)
	if err != nil {
		return err
	}

	last := c.Len() - 1
	if s.CurrentIndex >= last {
		s.CurrentIndex = last
		s.FinalArchetype = c.Sequence[last]
		s.UpdatedAt = e.now().Unix()
		return nil
	}

	current := c.Sequence[s.CurrentIndex]
	if !s.HasCompleted(current) {
		s.Completed = append(s.Completed, current)
	}
	s.CurrentIndex++
	s.UpdatedAt = e.now().Unix()
	return nil
}

// AddPoints adds delta to the session total and re-evaluates the vault latch.
// Negative deltas are ignored so the total never decreases.
func (e *Engine) AddPoints(s *GameSession, delta int) {
	if delta > 0 {
		s.Points += delta
	}
	s.VaultUnlocked = s.VaultUnlocked || s.Points >= e.vaultThreshold
	s.UpdatedAt = e.now().Unix()
}

// CurrentArchetype returns the archetype at the session's index.
func (e *Engine) CurrentArchetype(s *GameSession) (*capsule.Archetype, bool) {
	c, ok := e.catalog.Capsule(s.CapsuleID)
	if !ok {
		return nil, false
	}
	return c.ArchetypeAt(s.CurrentIndex)
}

// CurrentChallenge returns the challenge for the current archetype at the session tier.
func (e *Engine) CurrentChallenge(s *GameSession) (*capsule.Challenge, bool) {
	a, ok := e.CurrentArchetype(s)
	if !ok {
		return nil, false
	}
	return e.catalog.Challenge(a.ID, s.CapsuleID, s.Tier)
}

// ChallengeFor looks up a challenge for an archetype of the session's capsule.
// Asking for an archetype outside the capsule is a programmer error
// (ARCHETYPE_MISMATCH); a missing challenge is reported through the found flag.
func (e *Engine) ChallengeFor(s *GameSession, archetypeID string) (*capsule.Challenge, bool, error) {
	c, err := e.capsuleFor(s)
	if err != nil {
		return nil, false, err
	}
	if c.IndexOf(capsule.Normalize(archetypeID)) < 0 {
		return nil, false, errors.NewArchetypeMismatch(c.ID, archetypeID)
	}
	ch, ok := e.catalog.Challenge(archetypeID, c.ID, s.Tier)
	return ch, ok, nil
}

// FinalArchetype returns the recorded final archetype, else the most recently
// completed one, else reports none.
func FinalArchetype(s *GameSession) (string, bool) {
	if s.FinalArchetype != "" {
		return s.FinalArchetype, true
	}
	if n := len(s.Completed); n > 0 {
		return s.Completed[n-1], true
	}
	return "", false
}

// Complete applies a successful verification: it adds points, then advances.
// Exhausting the sequence moves the session to summary from whatever phase it
// was in. Otherwise a session waiting in voting moves on to results.
// It returns the archetype that was completed.
func (e *Engine) Complete(s *GameSession, points int) (string, error) {
	a, ok := e.CurrentArchetype(s)
	if !ok {
		return "", errors.NewUnknownCapsule(s.CapsuleID)
	}
	e.AddPoints(s, points)
	if err := e.Advance(s); err != nil {
		return "", err
	}
	switch {
	case s.Finished():
		s.Phase = PhaseSummary
		s.RecordingDeadline = 0
	case s.Phase == PhaseVoting:
		s.Phase = PhaseResults
	}
	return a.ID, nil
}
