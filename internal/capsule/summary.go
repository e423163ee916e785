package capsule

// CapsuleSummary is the listing view of a capsule, without challenge text.
type CapsuleSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Sequence    []string `json:"sequence"`

	// Tiers lists the tiers with at least one exactly-authored challenge
	Tiers []Tier `json:"tiers"`
}

// Summaries returns listing views for every capsule in authored order.
func (cat *Catalog) Summaries() []CapsuleSummary {
	out := make([]CapsuleSummary, 0, len(cat.order))
	for _, c := range cat.Capsules() {
		out = append(out, cat.summary(c))
	}
	return out
}

func (cat *Catalog) summary(c *Capsule) CapsuleSummary {
	have := make(map[Tier]bool)
	for _, id := range c.Sequence {
		for _, ch := range cat.challenges[challengeKey{capsuleID: c.ID, archetypeID: id}] {
			have[ch.Tier] = true
		}
	}

	tiers := make([]Tier, 0, 3)
	for _, t := range []Tier{TierMild, TierIntense, TierChaotic} {
		if have[t] {
			tiers = append(tiers, t)
		}
	}

	return CapsuleSummary{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Sequence:    append([]string(nil), c.Sequence...),
		Tiers:       tiers,
	}
}
