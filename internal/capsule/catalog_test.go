package capsule

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/mesa/internal/errors"
)

func loadDefault(t *testing.T) *Catalog {
	t.Helper()
	cat, err := Default()
	require.NoError(t, err)
	return cat
}

func TestDefault_Borrachos(t *testing.T) {
	cat := loadDefault(t)

	c, ok := cat.Capsule("borrachos")
	require.True(t, ok)
	assert.Equal(t, "Borrachos", c.Name)
	assert.Equal(t, []string{"filosofo", "romantico", "karaokero", "confesor", "leyenda"}, c.Sequence)
	assert.Equal(t, 5, c.Len())
	assert.True(t, c.IsLast("leyenda"))
	assert.False(t, c.IsLast("confesor"))
	assert.Equal(t, 2, c.IndexOf("karaokero"))
	assert.Equal(t, -1, c.IndexOf("rabia"))
}

func TestDefault_SequenceDefaultsToArchetypeOrder(t *testing.T) {
	cat := loadDefault(t)

	c, ok := cat.Capsule("despecho")
	require.True(t, ok)
	assert.Equal(t, []string{"negacion", "nostalgia", "rabia", "renacer"}, c.Sequence)
}

func TestCapsule_NotFound(t *testing.T) {
	cat := loadDefault(t)

	c, ok := cat.Capsule("missing")
	assert.False(t, ok)
	assert.Nil(t, c)
}

func TestCapsule_LookupIsNormalized(t *testing.T) {
	cat := loadDefault(t)

	_, ok := cat.Capsule("  BORRACHOS ")
	assert.True(t, ok)
}

func TestArchetype(t *testing.T) {
	cat := loadDefault(t)

	a, ok := cat.Archetype("confesor", "borrachos")
	require.True(t, ok)
	assert.Equal(t, 4, a.Level)

	_, ok = cat.Archetype("rabia", "borrachos")
	assert.False(t, ok, "archetype of another capsule must not resolve")

	_, ok = cat.Archetype("confesor", "missing")
	assert.False(t, ok)
}

func TestChallenge_ExactTier(t *testing.T) {
	cat := loadDefault(t)

	ch, ok := cat.Challenge("karaokero", "borrachos", TierIntense)
	require.True(t, ok)
	assert.Equal(t, TierIntense, ch.Tier)
	assert.True(t, ch.Duet)
	assert.Equal(t, "borrachos", ch.CapsuleID)
	require.NotNil(t, ch.Reward)
	assert.Equal(t, RarityEpic, ch.Reward.Rarity)
}

func TestChallenge_FallsBackToFirstAuthored(t *testing.T) {
	cat := loadDefault(t)

	// leyenda has chaotic (authored first) and mild, but no intense
	ch, ok := cat.Challenge("leyenda", "borrachos", TierIntense)
	require.True(t, ok)
	assert.Equal(t, TierChaotic, ch.Tier)

	// confesor has mild and intense; chaotic falls back to mild (first authored),
	// not to the nearest tier (intense)
	ch, ok = cat.Challenge("confesor", "borrachos", TierChaotic)
	require.True(t, ok)
	assert.Equal(t, TierMild, ch.Tier)
}

func TestChallenge_NotFound(t *testing.T) {
	cat := loadDefault(t)

	_, ok := cat.Challenge("nobody", "borrachos", TierMild)
	assert.False(t, ok)

	_, ok = cat.Challenge("filosofo", "missing", TierMild)
	assert.False(t, ok)
}

func TestChallenges_ReturnsCopy(t *testing.T) {
	cat := loadDefault(t)

	list := cat.Challenges("filosofo", "borrachos")
	require.Len(t, list, 3)
	list[0] = nil

	assert.NotNil(t, cat.Challenges("filosofo", "borrachos")[0])
}

func TestCapsules_AuthoredOrder(t *testing.T) {
	cat := loadDefault(t)

	all := cat.Capsules()
	require.Len(t, all, 2)
	assert.Equal(t, "borrachos", all[0].ID)
	assert.Equal(t, "despecho", all[1].ID)
}

func TestParse_InvalidCatalog(t *testing.T) {
	data := []byte(`
capsules:
  - id: broken
    name: Broken
    archetypes:
      - { id: a, name: A, level: 3 }
      - { id: b, name: B, level: 2 }
    sequence: [a, b, ghost]
    challenges:
      - { archetype: a, tier: mild, kind: story, format: text, prompt: x }
      - { archetype: a, tier: mild, kind: story, format: text, prompt: y }
      - { archetype: a, tier: spicy, kind: dance, format: text, prompt: z }
`)

	_, err := Parse(data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCatalogInvalid))

	mErr, ok := errors.As(err)
	require.True(t, ok)
	problems := mErr.Details["problems"].([]string)
	assert.Contains(t, problems, `capsule "broken": archetype "b" level drops from 3 to 2`)
	assert.Contains(t, problems, `capsule "broken": sequence references unknown archetype "ghost"`)
	assert.Contains(t, problems, "challenge broken/a/mild: duplicate")
	assert.Contains(t, problems, `challenge broken/a/spicy: invalid kind "dance"`)
}

func TestParse_BadYAML(t *testing.T) {
	_, err := Parse([]byte("capsules: [unterminated"))
	assert.Error(t, err)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := []byte(`
capsules:
  - id: Tiny
    name: Tiny
    archetypes:
      - { id: Only One, name: Only, level: 1 }
    challenges:
      - { archetype: only one, tier: MILD, kind: story, format: text, prompt: hi }
`)
	require.NoError(t, os.WriteFile(path, data, 0600))

	cat, err := Load(path)
	require.NoError(t, err)

	ch, ok := cat.Challenge("only_one", "tiny", TierMild)
	require.True(t, ok)
	assert.Equal(t, "hi", ch.Prompt)
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	cat, err := Load("")
	require.NoError(t, err)

	_, ok := cat.Capsule("borrachos")
	assert.True(t, ok)
}

func TestSummaries(t *testing.T) {
	cat := loadDefault(t)

	sums := cat.Summaries()
	require.Len(t, sums, 2)
	assert.Equal(t, []Tier{TierMild, TierIntense, TierChaotic}, sums[0].Tiers)
	assert.Equal(t, []Tier{TierIntense, TierChaotic}, sums[1].Tiers)
	assert.Len(t, sums[1].Sequence, 4)
}
