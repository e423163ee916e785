package ops

import (
	"context"
	"fmt"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/errors"
)

// ListCapsulesOutput lists the catalog.
type ListCapsulesOutput struct {
	Capsules []capsule.CapsuleSummary `json:"capsules"`
}

// ListCapsules returns a summary of every capsule in catalog order.
func ListCapsules(ctx context.Context, env *Env) (*ListCapsulesOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("list capsules")
	}
	return &ListCapsulesOutput{Capsules: env.Catalog.Summaries()}, nil
}

// GetChallengeInput contains parameters for the GetChallenge operation.
type GetChallengeInput struct {
	CapsuleID   string // required
	ArchetypeID string // required
	Tier        string // default: mild
}

// GetChallengeOutput is one card of a capsule.
type GetChallengeOutput struct {
	Capsule   capsule.CapsuleSummary `json:"capsule"`
	Archetype *capsule.Archetype     `json:"archetype"`
	Challenge *capsule.Challenge     `json:"challenge"`
	CardID    string                 `json:"card_id"`
}

// GetChallenge looks up the challenge of an archetype at a tier, falling back
// to another tier when none is authored for the one asked.
func GetChallenge(ctx context.Context, env *Env, input GetChallengeInput) (*GetChallengeOutput, error) {
	capsuleID, err := requireID("capsule_id", input.CapsuleID)
	if err != nil {
		return nil, err
	}
	archetypeID, err := requireID("archetype_id", input.ArchetypeID)
	if err != nil {
		return nil, err
	}
	tier := capsule.TierMild
	if input.Tier != "" {
		if tier, err = capsule.ParseTier(input.Tier); err != nil {
			return nil, errors.NewInvalidRequest(err.Error())
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("get challenge")
	}

	c, ok := env.Catalog.Capsule(capsule.Normalize(capsuleID))
	if !ok {
		return nil, errors.NewNotFound("capsule", capsuleID)
	}
	a, ok := env.Catalog.Archetype(archetypeID, c.ID)
	if !ok {
		return nil, errors.NewArchetypeMismatch(c.ID, archetypeID)
	}
	ch, ok := env.Catalog.Challenge(a.ID, c.ID, tier)
	if !ok {
		return nil, errors.NewNotFound("challenge", fmt.Sprintf("%s/%s", capsule.CardID(c.ID, a.ID), tier))
	}

	summaries := env.Catalog.Summaries()
	out := &GetChallengeOutput{Archetype: a, Challenge: ch, CardID: capsule.CardID(c.ID, a.ID)}
	for _, s := range summaries {
		if s.ID == c.ID {
			out.Capsule = s
			break
		}
	}
	return out, nil
}
