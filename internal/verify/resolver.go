package verify

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/config"
	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/random"
)

// Context carries the session facts that adjust an outcome.
type Context struct {
	// Participants is the number of players at the table; 0 or 1 means solo.
	Participants int
	// Campaign is true when the session carries a campaign tag.
	Campaign bool
}

// Outcome is the result of resolving one attempt.
type Outcome struct {
	Success       bool `json:"success"`
	Points        int  `json:"points"`
	Intensity     int  `json:"intensity"`
	SocialTrigger bool `json:"social_trigger"`
}

// Resolver selects verification methods and rolls attempt outcomes.
// It is safe for concurrent use; the random source is guarded by a mutex.
type Resolver struct {
	policy config.VerificationPolicy
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithRand sets the random source. Tests use random.New with a fixed seed.
func WithRand(rng *rand.Rand) Option {
	return func(r *Resolver) { r.rng = rng }
}

// WithClock overrides the time source used for attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver for policy. Without WithRand the random
// source is seeded from crypto/rand.
func NewResolver(policy config.VerificationPolicy, opts ...Option) (*Resolver, error) {
	r := &Resolver{policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		rng, err := random.NewSeeded()
		if err != nil {
			return nil, err
		}
		r.rng = rng
	}
	return r, nil
}

// DetermineType picks the proof method for a challenge.
// Priority: the authored method, then chaotic -> group, intense duet -> photo,
// intense -> audio or photo at random (50/50), else self. The random branch
// means the same challenge can ask for different media on separate attempts.
func (r *Resolver) DetermineType(ch *capsule.Challenge) capsule.Verification {
	if ch.Verification.IsValid() {
		return ch.Verification
	}
	switch ch.Tier {
	case capsule.TierChaotic:
		return capsule.VerificationGroup
	case capsule.TierIntense:
		if ch.Duet {
			return capsule.VerificationPhoto
		}
		r.mu.Lock()
		coin := r.rng.IntN(2)
		r.mu.Unlock()
		if coin == 0 {
			return capsule.VerificationAudio
		}
		return capsule.VerificationPhoto
	default:
		return capsule.VerificationSelf
	}
}

// GroupThreshold returns the votes required for group verification:
// max(GroupMinVotes, ceil(GroupVoteRatio * participants)).
func (r *Resolver) GroupThreshold(participants int) int {
	need := int(math.Ceil(r.policy.GroupVoteRatio * float64(participants)))
	return max(r.policy.GroupMinVotes, need)
}

// NewAttempt creates an idle attempt for a card of a session.
func (r *Resolver) NewAttempt(attemptID, sessionID string, ch *capsule.Challenge, vt capsule.Verification) *Attempt {
	now := r.now().Unix()
	return &Attempt{
		ID:          attemptID,
		SessionID:   sessionID,
		CardID:      capsule.CardID(ch.CapsuleID, ch.ArchetypeID),
		CapsuleID:   ch.CapsuleID,
		ArchetypeID: ch.ArchetypeID,
		Type:        vt,
		Status:      StatusIdle,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Verify resolves an in_progress attempt. The attempt passes through verifying
// and ends completed or failed; failure is a normal outcome, not an error.
// Calling Verify on an attempt in any other state returns INVALID_TRANSITION.
func (r *Resolver) Verify(a *Attempt, vc Context, p Payload) (Outcome, error) {
	if a.Status != StatusInProgress {
		return Outcome{}, errors.NewInvalidTransition(string(a.Status), string(StatusVerifying))
	}
	if p.Votes < 0 {
		return Outcome{}, errors.NewInvalidRequest(fmt.Sprintf("votes must be >= 0, got %d", p.Votes))
	}

	a.Status = StatusVerifying
	a.Payload = &p

	out := r.Resolve(a.Type, vc, p)

	now := r.now().Unix()
	a.Points = out.Points
	a.Intensity = out.Intensity
	a.SocialTrigger = out.SocialTrigger
	a.UpdatedAt = now
	a.CompletedAt = now
	if out.Success {
		a.Status = StatusCompleted
	} else {
		a.Status = StatusFailed
	}
	return out, nil
}

// Resolve computes an outcome without touching attempt state.
func (r *Resolver) Resolve(vt capsule.Verification, vc Context, p Payload) Outcome {
	var base config.Outcome
	var success bool
	points, intensity := 0, 0

	switch vt {
	case capsule.VerificationGroup:
		base = r.policy.Group
		success = p.Votes >= r.GroupThreshold(vc.Participants)
		points = base.Points + p.Votes
		intensity = base.Intensity + min(p.Votes, r.policy.GroupVoteIntensityCap)
	case capsule.VerificationPhoto:
		base = r.policy.Photo
	case capsule.VerificationAudio:
		base = r.policy.Audio
	case capsule.VerificationAI:
		base = r.policy.AI
	default:
		base = r.policy.Self
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if vt != capsule.VerificationGroup {
		success = r.roll(base.SuccessRate)
		points = base.Points
		intensity = base.Intensity
	}
	if !success {
		return Outcome{}
	}

	if vc.Campaign {
		points += r.policy.CampaignBonusPoints
		intensity += r.policy.CampaignBonusIntensity
	}
	if vc.Participants > 1 {
		points += min(vc.Participants, r.policy.ParticipantPointsCap)
		intensity += min(vc.Participants*r.policy.ParticipantIntensityPerHead, r.policy.ParticipantIntensityCap)
	}

	return Outcome{
		Success:       true,
		Points:        points,
		Intensity:     intensity,
		SocialTrigger: r.roll(base.TriggerChance),
	}
}

// roll reports true with probability p. Certain and impossible outcomes do
// not consume randomness. Caller holds r.mu.
func (r *Resolver) roll(p float64) bool {
	switch {
	case p <= 0:
		return false
	case p >= 1:
		return true
	default:
		return r.rng.Float64() < p
	}
}
