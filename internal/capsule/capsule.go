package capsule

// Capsule is a themed set of archetypes played in a fixed order.
// Capsules are immutable once the catalog is loaded.
type Capsule struct {
	// ID is the stable catalog identifier (e.g., "borrachos")
	ID string `json:"id" yaml:"id"`

	// Name is the display name
	Name string `json:"name" yaml:"name"`

	// Description is optional marketing copy (markdown)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Sequence is the ordered list of archetype ids a session walks through
	Sequence []string `json:"sequence" yaml:"sequence"`

	// Archetypes holds every archetype referenced by Sequence
	Archetypes []Archetype `json:"archetypes" yaml:"archetypes"`
}

// Archetype is a narrative stage within a capsule.
type Archetype struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`

	// Level is the emotional level (1-5); it never decreases along a sequence
	Level int `json:"level" yaml:"level"`
}

// RewardTemplate describes the reward granted when a challenge is completed
// with enough points. Rewards are always of wallet type "reward".
type RewardTemplate struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Rarity      Rarity `json:"rarity,omitempty" yaml:"rarity,omitempty"`
}

// Challenge is the prompt played for one archetype at one emotional tier.
type Challenge struct {
	ArchetypeID string `json:"archetype_id" yaml:"archetype"`
	CapsuleID   string `json:"capsule_id" yaml:"-"`

	Prompt string `json:"prompt" yaml:"prompt"`
	Kind   Kind   `json:"kind" yaml:"kind"`
	Format Format `json:"format" yaml:"format"`
	Tier   Tier   `json:"tier" yaml:"tier"`

	// PointsToUnlock is the threshold shown to players before the card unlocks
	PointsToUnlock int `json:"points_to_unlock" yaml:"points_to_unlock"`

	// SocialTrigger describes the bonus moment, if any
	SocialTrigger string `json:"social_trigger,omitempty" yaml:"social_trigger,omitempty"`

	// Verification is the authored proof method; empty means derive it
	Verification Verification `json:"verification,omitempty" yaml:"verification,omitempty"`

	// Duet marks two-person challenges (intense duets are proven by photo)
	Duet bool `json:"duet,omitempty" yaml:"duet,omitempty"`

	Reward *RewardTemplate `json:"reward,omitempty" yaml:"reward,omitempty"`
}

// Len returns the number of archetypes in the sequence.
func (c *Capsule) Len() int {
	return len(c.Sequence)
}

// IndexOf returns the position of archetypeID in the sequence, or -1.
func (c *Capsule) IndexOf(archetypeID string) int {
	for i, id := range c.Sequence {
		if id == archetypeID {
			return i
		}
	}
	return -1
}

// IsLast reports whether archetypeID is the final archetype of the sequence.
func (c *Capsule) IsLast(archetypeID string) bool {
	return len(c.Sequence) > 0 && c.Sequence[len(c.Sequence)-1] == archetypeID
}

// ArchetypeAt returns the archetype at sequence position i.
func (c *Capsule) ArchetypeAt(i int) (*Archetype, bool) {
	if i < 0 || i >= len(c.Sequence) {
		return nil, false
	}
	return c.archetype(c.Sequence[i])
}

func (c *Capsule) archetype(id string) (*Archetype, bool) {
	for i := range c.Archetypes {
		if c.Archetypes[i].ID == id {
			return &c.Archetypes[i], true
		}
	}
	return nil, false
}

// RarityForLevel maps an archetype's emotional level to its card rarity.
func RarityForLevel(level int) Rarity {
	switch {
	case level >= 5:
		return RarityLegendary
	case level == 4:
		return RarityEpic
	case level == 3:
		return RarityRare
	default:
		return RarityCommon
	}
}

// CardID is the stable id of the collectible card for an archetype.
// The same id names the table card and the wallet item, so repeated grants collapse.
func CardID(capsuleID, archetypeID string) string {
	return capsuleID + "_" + archetypeID
}
