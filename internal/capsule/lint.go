package capsule

import "fmt"

// Lint checks catalog invariants and returns a human-readable problem per violation.
// An empty result means the catalog is usable.
func Lint(capsules []*Capsule, challenges []Challenge) []string {
	var problems []string
	byID := make(map[string]*Capsule, len(capsules))

	for _, c := range capsules {
		if c.ID == "" {
			problems = append(problems, "capsule with empty id")
			continue
		}
		if _, dup := byID[c.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate capsule %q", c.ID))
			continue
		}
		byID[c.ID] = c
		problems = append(problems, lintCapsule(c)...)
	}

	seen := make(map[string]bool)
	for _, ch := range challenges {
		where := fmt.Sprintf("%s/%s/%s", ch.CapsuleID, ch.ArchetypeID, ch.Tier)
		c, ok := byID[ch.CapsuleID]
		if !ok {
			continue
		}
		if c.IndexOf(ch.ArchetypeID) < 0 {
			problems = append(problems, fmt.Sprintf("challenge %s: archetype not in sequence", where))
		}
		if !ch.Tier.IsValid() {
			problems = append(problems, fmt.Sprintf("challenge %s: invalid tier", where))
		}
		if !ch.Kind.IsValid() {
			problems = append(problems, fmt.Sprintf("challenge %s: invalid kind %q", where, ch.Kind))
		}
		if !ch.Format.IsValid() {
			problems = append(problems, fmt.Sprintf("challenge %s: invalid format %q", where, ch.Format))
		}
		if ch.Verification != "" && !ch.Verification.IsValid() {
			problems = append(problems, fmt.Sprintf("challenge %s: invalid verification %q", where, ch.Verification))
		}
		if ch.PointsToUnlock < 0 {
			problems = append(problems, fmt.Sprintf("challenge %s: negative points_to_unlock", where))
		}
		if ch.Reward != nil && ch.Reward.Rarity != "" && !ch.Reward.Rarity.IsValid() {
			problems = append(problems, fmt.Sprintf("challenge %s: invalid reward rarity %q", where, ch.Reward.Rarity))
		}
		if seen[where] {
			problems = append(problems, fmt.Sprintf("challenge %s: duplicate", where))
		}
		seen[where] = true
	}

	return problems
}

func lintCapsule(c *Capsule) []string {
	var problems []string
	if len(c.Sequence) == 0 {
		problems = append(problems, fmt.Sprintf("capsule %q: empty sequence", c.ID))
	}

	inSeq := make(map[string]bool, len(c.Sequence))
	prevLevel := 0
	for _, id := range c.Sequence {
		if inSeq[id] {
			problems = append(problems, fmt.Sprintf("capsule %q: archetype %q repeated in sequence", c.ID, id))
			continue
		}
		inSeq[id] = true

		a, ok := c.archetype(id)
		if !ok {
			problems = append(problems, fmt.Sprintf("capsule %q: sequence references unknown archetype %q", c.ID, id))
			continue
		}
		if a.Level < 1 || a.Level > 5 {
			problems = append(problems, fmt.Sprintf("capsule %q: archetype %q level %d outside 1..5", c.ID, id, a.Level))
		}
		if a.Level < prevLevel {
			problems = append(problems, fmt.Sprintf("capsule %q: archetype %q level drops from %d to %d", c.ID, id, prevLevel, a.Level))
		}
		prevLevel = a.Level
	}
	return problems
}
