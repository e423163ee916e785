package capsule

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/mesa/internal/errors"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Catalog is the read-only registry of capsules, archetypes and challenges.
// All lookups are pure; a miss is reported through the found flag, never as an error.
type Catalog struct {
	capsules   map[string]*Capsule
	order      []string
	challenges map[challengeKey][]*Challenge
}

type challengeKey struct {
	capsuleID   string
	archetypeID string
}

// catalogFile is the on-disk YAML layout.
type catalogFile struct {
	Capsules []capsuleFile `yaml:"capsules"`
}

type capsuleFile struct {
	Capsule    `yaml:",inline"`
	Challenges []Challenge `yaml:"challenges"`
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalogYAML)
}

// Load reads a catalog from a YAML file. An empty path loads the embedded default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	cat := &Catalog{
		capsules:   make(map[string]*Capsule, len(file.Capsules)),
		challenges: make(map[challengeKey][]*Challenge),
	}

	var all []Challenge
	var capsules []*Capsule
	for i := range file.Capsules {
		cf := file.Capsules[i]
		c := normalizeCapsule(cf.Capsule)
		capsules = append(capsules, c)
		for _, ch := range cf.Challenges {
			ch.CapsuleID = c.ID
			ch.ArchetypeID = Normalize(ch.ArchetypeID)
			ch.Tier = Tier(Normalize(string(ch.Tier)))
			ch.Kind = Kind(Normalize(string(ch.Kind)))
			ch.Format = Format(Normalize(string(ch.Format)))
			ch.Verification = Verification(Normalize(string(ch.Verification)))
			all = append(all, ch)
		}
	}

	if problems := Lint(capsules, all); len(problems) > 0 {
		return nil, errors.NewCatalogInvalid(problems)
	}

	for _, c := range capsules {
		cat.capsules[c.ID] = c
		cat.order = append(cat.order, c.ID)
	}
	for i := range all {
		ch := all[i]
		key := challengeKey{capsuleID: ch.CapsuleID, archetypeID: ch.ArchetypeID}
		cat.challenges[key] = append(cat.challenges[key], &ch)
	}

	return cat, nil
}

// normalizeCapsule lowercases ids and defaults the sequence to authored archetype order.
func normalizeCapsule(in Capsule) *Capsule {
	c := in
	c.ID = Normalize(in.ID)
	c.Archetypes = make([]Archetype, len(in.Archetypes))
	for i, a := range in.Archetypes {
		a.ID = Normalize(a.ID)
		c.Archetypes[i] = a
	}
	if len(in.Sequence) == 0 {
		c.Sequence = make([]string, len(c.Archetypes))
		for i, a := range c.Archetypes {
			c.Sequence[i] = a.ID
		}
	} else {
		c.Sequence = make([]string, len(in.Sequence))
		for i, id := range in.Sequence {
			c.Sequence[i] = Normalize(id)
		}
	}
	return &c
}

// Capsules returns all capsules in authored order.
func (cat *Catalog) Capsules() []*Capsule {
	out := make([]*Capsule, 0, len(cat.order))
	for _, id := range cat.order {
		out = append(out, cat.capsules[id])
	}
	return out
}

// Capsule looks up a capsule by id.
func (cat *Catalog) Capsule(capsuleID string) (*Capsule, bool) {
	c, ok := cat.capsules[Normalize(capsuleID)]
	return c, ok
}

// Archetype looks up an archetype within a capsule.
func (cat *Catalog) Archetype(archetypeID, capsuleID string) (*Archetype, bool) {
	c, ok := cat.Capsule(capsuleID)
	if !ok {
		return nil, false
	}
	return c.archetype(Normalize(archetypeID))
}

// Challenge returns the challenge authored for (capsule, archetype, tier).
// When no challenge exists at the exact tier, the first challenge authored for
// the archetype is returned regardless of its tier.
func (cat *Catalog) Challenge(archetypeID, capsuleID string, tier Tier) (*Challenge, bool) {
	list := cat.challenges[challengeKey{capsuleID: Normalize(capsuleID), archetypeID: Normalize(archetypeID)}]
	for _, ch := range list {
		if ch.Tier == tier {
			return ch, true
		}
	}
	if len(list) > 0 {
		return list[0], true
	}
	return nil, false
}

// Challenges returns every challenge authored for an archetype, in authored order.
func (cat *Catalog) Challenges(archetypeID, capsuleID string) []*Challenge {
	list := cat.challenges[challengeKey{capsuleID: Normalize(capsuleID), archetypeID: Normalize(archetypeID)}]
	return append([]*Challenge(nil), list...)
}
