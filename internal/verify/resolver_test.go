package verify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/config"
	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/random"
)

func newResolver(t *testing.T, seed uint64) *Resolver {
	t.Helper()
	r, err := NewResolver(config.DefaultVerificationPolicy(),
		WithRand(random.New(seed)),
		WithClock(func() time.Time { return time.Unix(1_700_000_000, 0) }),
	)
	require.NoError(t, err)
	return r
}

func TestNewResolver_DefaultRand(t *testing.T) {
	r, err := NewResolver(config.DefaultVerificationPolicy())
	require.NoError(t, err)
	assert.NotNil(t, r.rng)
}

func TestDetermineType(t *testing.T) {
	r := newResolver(t, 1)

	tests := []struct {
		name string
		ch   capsule.Challenge
		want capsule.Verification
	}{
		{"explicit wins over tier", capsule.Challenge{Tier: capsule.TierChaotic, Verification: capsule.VerificationAI}, capsule.VerificationAI},
		{"chaotic is group", capsule.Challenge{Tier: capsule.TierChaotic}, capsule.VerificationGroup},
		{"intense duet is photo", capsule.Challenge{Tier: capsule.TierIntense, Duet: true}, capsule.VerificationPhoto},
		{"mild is self", capsule.Challenge{Tier: capsule.TierMild}, capsule.VerificationSelf},
		{"invalid explicit is ignored", capsule.Challenge{Tier: capsule.TierMild, Verification: "sms"}, capsule.VerificationSelf},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.DetermineType(&tt.ch))
		})
	}
}

func TestDetermineType_IntenseIsAudioOrPhoto(t *testing.T) {
	r := newResolver(t, 7)
	ch := &capsule.Challenge{Tier: capsule.TierIntense}

	seen := map[capsule.Verification]int{}
	for i := 0; i < 200; i++ {
		seen[r.DetermineType(ch)]++
	}
	assert.Len(t, seen, 2)
	assert.Greater(t, seen[capsule.VerificationAudio], 50)
	assert.Greater(t, seen[capsule.VerificationPhoto], 50)
}

func TestGroupThreshold(t *testing.T) {
	r := newResolver(t, 1)

	assert.Equal(t, 3, r.GroupThreshold(0))
	assert.Equal(t, 3, r.GroupThreshold(4))
	assert.Equal(t, 3, r.GroupThreshold(5))
	assert.Equal(t, 4, r.GroupThreshold(7))
	assert.Equal(t, 4, r.GroupThreshold(8))
	assert.Equal(t, 10, r.GroupThreshold(20))
}

func TestResolve_Group(t *testing.T) {
	r := newResolver(t, 1)

	tests := []struct {
		participants int
		votes        int
		success      bool
	}{
		{4, 2, false},
		{4, 3, true},
		{8, 3, false},
		{8, 4, true},
	}
	for _, tt := range tests {
		out := r.Resolve(capsule.VerificationGroup, Context{Participants: tt.participants}, Payload{Votes: tt.votes})
		assert.Equal(t, tt.success, out.Success, "participants=%d votes=%d", tt.participants, tt.votes)
		if !tt.success {
			assert.Equal(t, Outcome{}, out)
		}
	}
}

func TestResolve_GroupPointsAndIntensity(t *testing.T) {
	r := newResolver(t, 1)

	// 4 participants, 3 votes: 10+3 points +4 for heads; 15+3 intensity +8 for heads
	out := r.Resolve(capsule.VerificationGroup, Context{Participants: 4}, Payload{Votes: 3})
	require.True(t, out.Success)
	assert.Equal(t, 17, out.Points)
	assert.Equal(t, 26, out.Intensity)

	// vote intensity bonus caps at 10, head bonuses cap at 10
	out = r.Resolve(capsule.VerificationGroup, Context{Participants: 24}, Payload{Votes: 14})
	require.True(t, out.Success)
	assert.Equal(t, 10+14+10, out.Points)
	assert.Equal(t, 15+10+10, out.Intensity)
}

func TestResolve_SelfAlwaysSucceeds(t *testing.T) {
	r := newResolver(t, 1)

	for i := 0; i < 20; i++ {
		out := r.Resolve(capsule.VerificationSelf, Context{}, Payload{})
		assert.Equal(t, Outcome{Success: true, Points: 5, Intensity: 10}, out)
	}
}

func TestResolve_CampaignBonus(t *testing.T) {
	r := newResolver(t, 1)

	out := r.Resolve(capsule.VerificationSelf, Context{Campaign: true, Participants: 1}, Payload{})
	assert.Equal(t, 10, out.Points)
	assert.Equal(t, 15, out.Intensity)
}

func TestResolve_RandomRates(t *testing.T) {
	const n = 10000

	tests := []struct {
		vt      capsule.Verification
		rate    float64
		points  int
		trigger float64
	}{
		{capsule.VerificationPhoto, 0.9, 8, 0.25},
		{capsule.VerificationAudio, 0.85, 8, 0.25},
		{capsule.VerificationAI, 0.8, 15, 0.3},
	}
	for _, tt := range tests {
		t.Run(string(tt.vt), func(t *testing.T) {
			r := newResolver(t, 2024)
			wins, triggers := 0, 0
			for i := 0; i < n; i++ {
				out := r.Resolve(tt.vt, Context{}, Payload{})
				if out.Success {
					wins++
					assert.Equal(t, tt.points, out.Points)
					if out.SocialTrigger {
						triggers++
					}
				} else {
					assert.False(t, out.SocialTrigger)
					assert.Zero(t, out.Points)
				}
			}
			assert.InDelta(t, tt.rate, float64(wins)/n, 0.02)
			assert.InDelta(t, tt.trigger, float64(triggers)/float64(wins), 0.03)
		})
	}
}

func TestResolve_SeedIsReproducible(t *testing.T) {
	a := newResolver(t, 99)
	b := newResolver(t, 99)

	for i := 0; i < 50; i++ {
		assert.Equal(t,
			a.Resolve(capsule.VerificationAI, Context{}, Payload{}),
			b.Resolve(capsule.VerificationAI, Context{}, Payload{}))
	}
}

func TestVerify_Lifecycle(t *testing.T) {
	r := newResolver(t, 1)
	ch := &capsule.Challenge{CapsuleID: "borrachos", ArchetypeID: "filosofo", Tier: capsule.TierMild}

	a := r.NewAttempt("a1", "s1", ch, capsule.VerificationSelf)
	assert.Equal(t, StatusIdle, a.Status)
	assert.Equal(t, "borrachos_filosofo", a.CardID)

	_, err := r.Verify(a, Context{}, Payload{})
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition), "idle attempts cannot be verified")

	require.NoError(t, a.Start(1))
	assert.Equal(t, StatusInProgress, a.Status)
	assert.Error(t, a.Start(2))

	out, err := r.Verify(a, Context{}, Payload{Text: "done"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, StatusCompleted, a.Status)
	assert.True(t, a.Status.IsTerminal())
	assert.Equal(t, 5, a.Points)
	assert.Equal(t, "done", a.Payload.Text)
	assert.NotZero(t, a.CompletedAt)

	_, err = r.Verify(a, Context{}, Payload{})
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition), "terminal attempts cannot be verified again")

	_, err = a.Retry("a2", 3)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition), "only failed attempts retry")
}

func TestVerify_FailedThenRetry(t *testing.T) {
	r := newResolver(t, 1)
	ch := &capsule.Challenge{CapsuleID: "borrachos", ArchetypeID: "leyenda", Tier: capsule.TierChaotic}

	a := r.NewAttempt("a1", "s1", ch, capsule.VerificationGroup)
	require.NoError(t, a.Start(1))

	out, err := r.Verify(a, Context{Participants: 4}, Payload{Votes: 2})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, StatusFailed, a.Status)
	assert.Zero(t, a.Points)
	assert.Zero(t, a.Intensity)
	assert.False(t, a.SocialTrigger)

	next, err := a.Retry("a2", 5)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, next.Status)
	assert.Equal(t, "a1", next.RetryOf)
	assert.Equal(t, a.CardID, next.CardID)
	assert.Equal(t, capsule.VerificationGroup, next.Type)

	out, err = r.Verify(next, Context{Participants: 4}, Payload{Votes: 3})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.True(t, next.Succeeded())
}

func TestVerify_NegativeVotes(t *testing.T) {
	r := newResolver(t, 1)
	a := r.NewAttempt("a1", "s1", &capsule.Challenge{}, capsule.VerificationGroup)
	require.NoError(t, a.Start(1))

	_, err := r.Verify(a, Context{}, Payload{Votes: -1})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
	assert.Equal(t, StatusInProgress, a.Status)
}
