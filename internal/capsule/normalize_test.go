package capsule

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple lowercase",
			input: "Borrachos",
			want:  "borrachos",
		},
		{
			name:  "trim whitespace",
			input: "  intense  ",
			want:  "intense",
		},
		{
			name:  "collapse internal whitespace",
			input: "el    filosofo",
			want:  "el_filosofo",
		},
		{
			name:  "tabs and newlines",
			input: "el\t\n  filosofo",
			want:  "el_filosofo",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "only whitespace",
			input: "   \t\n   ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseTier(t *testing.T) {
	for _, in := range []string{"mild", " Intense ", "CHAOTIC"} {
		if _, err := ParseTier(in); err != nil {
			t.Errorf("ParseTier(%q) error = %v", in, err)
		}
	}
	if _, err := ParseTier("spicy"); err == nil {
		t.Error("ParseTier(spicy) expected error")
	}
}

func TestParseVerification(t *testing.T) {
	v, err := ParseVerification("AI")
	if err != nil || v != VerificationAI {
		t.Errorf("ParseVerification(AI) = %q, %v", v, err)
	}
	if _, err := ParseVerification("telepathy"); err == nil {
		t.Error("ParseVerification(telepathy) expected error")
	}
}

func TestRarityForLevel(t *testing.T) {
	tests := map[int]Rarity{
		1: RarityCommon,
		2: RarityCommon,
		3: RarityRare,
		4: RarityEpic,
		5: RarityLegendary,
	}
	for level, want := range tests {
		if got := RarityForLevel(level); got != want {
			t.Errorf("RarityForLevel(%d) = %q, want %q", level, got, want)
		}
	}
}
