package capsule

import "fmt"

// Tier is the emotional tier a session is played at.
type Tier string

const (
	TierMild    Tier = "mild"
	TierIntense Tier = "intense"
	TierChaotic Tier = "chaotic"
)

// Kind is the shape of a challenge.
type Kind string

const (
	KindConfession  Kind = "confession"
	KindPerformance Kind = "performance"
	KindKaraoke     Kind = "karaoke"
	KindVote        Kind = "vote"
	KindStory       Kind = "story"
	KindRoleplay    Kind = "roleplay"
)

// Format is how a player responds to a challenge.
type Format string

const (
	FormatVoice Format = "voice"
	FormatVideo Format = "video"
	FormatText  Format = "text"
	FormatGroup Format = "group"
)

// Verification is the proof method for a challenge attempt.
type Verification string

const (
	VerificationSelf  Verification = "self"
	VerificationGroup Verification = "group"
	VerificationPhoto Verification = "photo"
	VerificationAudio Verification = "audio"
	VerificationAI    Verification = "ai"
)

// Rarity is the collectible tier of a wallet item.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// IsValid reports whether the tier is supported.
func (t Tier) IsValid() bool {
	switch t {
	case TierMild, TierIntense, TierChaotic:
		return true
	default:
		return false
	}
}

// IsValid reports whether the kind is supported.
func (k Kind) IsValid() bool {
	switch k {
	case KindConfession, KindPerformance, KindKaraoke, KindVote, KindStory, KindRoleplay:
		return true
	default:
		return false
	}
}

// IsValid reports whether the format is supported.
func (f Format) IsValid() bool {
	switch f {
	case FormatVoice, FormatVideo, FormatText, FormatGroup:
		return true
	default:
		return false
	}
}

// IsValid reports whether the verification method is supported.
func (v Verification) IsValid() bool {
	switch v {
	case VerificationSelf, VerificationGroup, VerificationPhoto, VerificationAudio, VerificationAI:
		return true
	default:
		return false
	}
}

// IsValid reports whether the rarity is supported.
func (r Rarity) IsValid() bool {
	switch r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	default:
		return false
	}
}

// ParseTier normalizes and validates a tier name.
func ParseTier(s string) (Tier, error) {
	t := Tier(Normalize(s))
	if !t.IsValid() {
		return "", fmt.Errorf("unknown tier %q (want mild, intense or chaotic)", s)
	}
	return t, nil
}

// ParseVerification normalizes and validates a verification method name.
func ParseVerification(s string) (Verification, error) {
	v := Verification(Normalize(s))
	if !v.IsValid() {
		return "", fmt.Errorf("unknown verification %q", s)
	}
	return v, nil
}
