package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Outcome holds the tunable constants for one verification method.
type Outcome struct {
	// SuccessRate is the probability in [0,1] that an attempt succeeds.
	// Group verification ignores it and uses the vote threshold instead.
	SuccessRate float64 `json:"success_rate,omitempty"`

	// Points awarded on success (group adds one point per vote on top).
	Points int `json:"points,omitempty"`

	// Intensity is the emotional-intensity delta on success.
	Intensity int `json:"intensity,omitempty"`

	// TriggerChance is the probability that a successful attempt fires a social trigger.
	TriggerChance float64 `json:"trigger_chance,omitempty"`

	set fieldSet
}

// UnmarshalJSON decodes an outcome and remembers which keys were present.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	type plain Outcome
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	set, err := presentKeys(data)
	if err != nil {
		return err
	}
	*o = Outcome(p)
	o.set = set
	return nil
}

// VerificationPolicy is the outcome table used by the verification resolver.
//
// When a config file is merged over the defaults, a zero value overrides the
// default only if the file spells the key out: `"trigger_chance": 0` disables
// social triggers, while leaving the key out keeps the default. Policies built
// in code treat zero as unset.
type VerificationPolicy struct {
	Self  Outcome `json:"self"`
	Group Outcome `json:"group"`
	Photo Outcome `json:"photo"`
	Audio Outcome `json:"audio"`
	AI    Outcome `json:"ai"`

	// GroupMinVotes is the floor of the group vote threshold.
	GroupMinVotes int `json:"group_min_votes,omitempty"`
	// GroupVoteRatio is the share of participants whose votes are required.
	GroupVoteRatio float64 `json:"group_vote_ratio,omitempty"`
	// GroupVoteIntensityCap caps the per-vote intensity bonus.
	GroupVoteIntensityCap int `json:"group_vote_intensity_cap,omitempty"`

	CampaignBonusPoints    int `json:"campaign_bonus_points,omitempty"`
	CampaignBonusIntensity int `json:"campaign_bonus_intensity,omitempty"`

	// ParticipantPointsCap caps the multi-participant point bonus (one per head).
	ParticipantPointsCap int `json:"participant_points_cap,omitempty"`
	// ParticipantIntensityPerHead is multiplied by participant count, then capped.
	ParticipantIntensityPerHead int `json:"participant_intensity_per_head,omitempty"`
	ParticipantIntensityCap     int `json:"participant_intensity_cap,omitempty"`

	set fieldSet
}

// UnmarshalJSON decodes a policy and remembers which keys were present.
func (v *VerificationPolicy) UnmarshalJSON(data []byte) error {
	type plain VerificationPolicy
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	set, err := presentKeys(data)
	if err != nil {
		return err
	}
	*v = VerificationPolicy(p)
	v.set = set
	return nil
}

// fieldSet holds the JSON keys a config file spelled out.
type fieldSet map[string]bool

func presentKeys(data []byte) (fieldSet, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	set := make(fieldSet, len(raw))
	for k := range raw {
		set[k] = true
	}
	return set, nil
}

// Config holds application configuration.
type Config struct {
	// VaultThreshold is the session point total that latches the vault open.
	VaultThreshold int `json:"vault_threshold,omitempty"`

	// StickerThreshold and RewardThreshold gate session reward grants.
	StickerThreshold int `json:"sticker_threshold,omitempty"`
	RewardThreshold  int `json:"reward_threshold,omitempty"`

	// RewardExpiryDays is how long a granted reward stays valid.
	RewardExpiryDays int `json:"reward_expiry_days,omitempty"`

	// RecordingSeconds is the fixed recording countdown.
	RecordingSeconds int `json:"recording_seconds,omitempty"`

	// MaxIntensity caps a participant's emotional-intensity accumulator.
	MaxIntensity int `json:"max_intensity,omitempty"`

	// RedemptionCodeLength is the length of the random suffix of redemption codes.
	RedemptionCodeLength int `json:"redemption_code_length,omitempty"`

	Verification VerificationPolicy `json:"verification"`

	// CatalogPath overrides the embedded capsule catalog with a YAML file.
	CatalogPath string `json:"catalog_path,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// AllowedPaths is an allowlist of directories for wallet import/export.
	// Paths outside ~/.mesa/exports require either being in this list or AllowUnsafePaths=true.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes excludes every MCP tool of the named types (e.g. "wallet").
	DisabledTypes []string `json:"disabled_types,omitempty"`
}

// DefaultVerificationPolicy returns the stock outcome table.
func DefaultVerificationPolicy() VerificationPolicy {
	return VerificationPolicy{
		Self:  Outcome{SuccessRate: 1, Points: 5, Intensity: 10},
		Group: Outcome{SuccessRate: 1, Points: 10, Intensity: 15, TriggerChance: 0.4},
		Photo: Outcome{SuccessRate: 0.9, Points: 8, Intensity: 12, TriggerChance: 0.25},
		Audio: Outcome{SuccessRate: 0.85, Points: 8, Intensity: 12, TriggerChance: 0.25},
		AI:    Outcome{SuccessRate: 0.8, Points: 15, Intensity: 20, TriggerChance: 0.3},

		GroupMinVotes:         3,
		GroupVoteRatio:        0.5,
		GroupVoteIntensityCap: 10,

		CampaignBonusPoints:    5,
		CampaignBonusIntensity: 5,

		ParticipantPointsCap:        10,
		ParticipantIntensityPerHead: 2,
		ParticipantIntensityCap:     10,
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		VaultThreshold:       25,
		StickerThreshold:     10,
		RewardThreshold:      20,
		RewardExpiryDays:     7,
		RecordingSeconds:     30,
		MaxIntensity:         100,
		RedemptionCodeLength: 8,
		Verification:         DefaultVerificationPolicy(),
		LogLevel:             "info",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.mesa.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.mesa) and repo (.mesa) directories.
// Repo config is found by walking upward from startDir to find the nearest .mesa/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .mesa/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".mesa", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		VaultThreshold:       pickInt(overlay.VaultThreshold, base.VaultThreshold),
		StickerThreshold:     pickInt(overlay.StickerThreshold, base.StickerThreshold),
		RewardThreshold:      pickInt(overlay.RewardThreshold, base.RewardThreshold),
		RewardExpiryDays:     pickInt(overlay.RewardExpiryDays, base.RewardExpiryDays),
		RecordingSeconds:     pickInt(overlay.RecordingSeconds, base.RecordingSeconds),
		MaxIntensity:         pickInt(overlay.MaxIntensity, base.MaxIntensity),
		RedemptionCodeLength: pickInt(overlay.RedemptionCodeLength, base.RedemptionCodeLength),
		CatalogPath:          pickString(overlay.CatalogPath, base.CatalogPath),
		LogLevel:             pickString(overlay.LogLevel, base.LogLevel),
		DBMaxOpenConns:       pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:       pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
	}

	result.Verification = mergePolicy(base.Verification, overlay.Verification)

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func mergePolicy(base, overlay VerificationPolicy) VerificationPolicy {
	set := overlay.set
	return VerificationPolicy{
		Self:  mergeOutcome(base.Self, overlay.Self),
		Group: mergeOutcome(base.Group, overlay.Group),
		Photo: mergeOutcome(base.Photo, overlay.Photo),
		Audio: mergeOutcome(base.Audio, overlay.Audio),
		AI:    mergeOutcome(base.AI, overlay.AI),

		GroupMinVotes:         pickSet(set, "group_min_votes", overlay.GroupMinVotes, base.GroupMinVotes),
		GroupVoteRatio:        pickSet(set, "group_vote_ratio", overlay.GroupVoteRatio, base.GroupVoteRatio),
		GroupVoteIntensityCap: pickSet(set, "group_vote_intensity_cap", overlay.GroupVoteIntensityCap, base.GroupVoteIntensityCap),

		CampaignBonusPoints:    pickSet(set, "campaign_bonus_points", overlay.CampaignBonusPoints, base.CampaignBonusPoints),
		CampaignBonusIntensity: pickSet(set, "campaign_bonus_intensity", overlay.CampaignBonusIntensity, base.CampaignBonusIntensity),

		ParticipantPointsCap:        pickSet(set, "participant_points_cap", overlay.ParticipantPointsCap, base.ParticipantPointsCap),
		ParticipantIntensityPerHead: pickSet(set, "participant_intensity_per_head", overlay.ParticipantIntensityPerHead, base.ParticipantIntensityPerHead),
		ParticipantIntensityCap:     pickSet(set, "participant_intensity_cap", overlay.ParticipantIntensityCap, base.ParticipantIntensityCap),
	}
}

func mergeOutcome(base, overlay Outcome) Outcome {
	set := overlay.set
	return Outcome{
		SuccessRate:   pickSet(set, "success_rate", overlay.SuccessRate, base.SuccessRate),
		Points:        pickSet(set, "points", overlay.Points, base.Points),
		Intensity:     pickSet(set, "intensity", overlay.Intensity, base.Intensity),
		TriggerChance: pickSet(set, "trigger_chance", overlay.TriggerChance, base.TriggerChance),
	}
}

// pickSet returns overlay if the file named key or overlay is non-zero, else base.
func pickSet[T int | float64](set fieldSet, key string, overlay, base T) T {
	if set[key] || overlay != 0 {
		return overlay
	}
	return base
}

// pickInt returns overlay if non-zero, else base.
func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
