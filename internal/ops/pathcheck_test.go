package ops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/mesa/internal/config"
	"github.com/hpungsan/mesa/internal/errors"
)

// pathFixture is the directory layout one ValidatePath case runs against.
type pathFixture struct {
	exports string // the env's exports dir
	allowed string // listed in AllowedPaths
	other   string // outside every allowed dir
}

func newPathFixture(t *testing.T) pathFixture {
	t.Helper()
	return pathFixture{exports: t.TempDir(), allowed: t.TempDir(), other: t.TempDir()}
}

func writeWalletFile(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"_mesa":{"user_id":"ana"}}`), 0o600))
	return path
}

func symlinkOrSkip(t *testing.T, target, link string) string {
	t.Helper()
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("cannot create symlink: %v", err)
	}
	return link
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name   string
		unsafe bool
		mode   PathCheckMode
		path   func(t *testing.T, f pathFixture) string
		code   errors.ErrorCode // empty: accepted
	}{
		{
			name: "write into exports dir",
			mode: PathCheckWrite,
			path: func(_ *testing.T, f pathFixture) string { return filepath.Join(f.exports, "ana.jsonl") },
		},
		{
			name: "read existing file in allowed path",
			mode: PathCheckRead,
			path: func(t *testing.T, f pathFixture) string {
				return writeWalletFile(t, filepath.Join(f.allowed, "ana.jsonl"))
			},
		},
		{
			name: "read missing file in exports dir",
			mode: PathCheckRead,
			path: func(_ *testing.T, f pathFixture) string { return filepath.Join(f.exports, "missing.jsonl") },
			code: errors.ErrFileNotFound,
		},
		{
			name:   "read missing file with unsafe paths",
			unsafe: true,
			mode:   PathCheckRead,
			path:   func(_ *testing.T, f pathFixture) string { return filepath.Join(f.other, "missing.jsonl") },
			code:   errors.ErrFileNotFound,
		},
		{
			name: "empty path",
			mode: PathCheckWrite,
			path: func(_ *testing.T, _ pathFixture) string { return "" },
			code: errors.ErrInvalidRequest,
		},
		{
			name: "parent traversal",
			mode: PathCheckWrite,
			path: func(_ *testing.T, _ pathFixture) string { return "../wallet.jsonl" },
			code: errors.ErrInvalidRequest,
		},
		{
			name: "traversal hidden mid-path",
			mode: PathCheckWrite,
			path: func(_ *testing.T, f pathFixture) string {
				return f.exports + "/../../etc/shadow.jsonl"
			},
			code: errors.ErrInvalidRequest,
		},
		{
			name:   "no extension",
			unsafe: true,
			mode:   PathCheckWrite,
			path:   func(_ *testing.T, f pathFixture) string { return filepath.Join(f.other, "wallet") },
			code:   errors.ErrInvalidRequest,
		},
		{
			name:   "json extension",
			unsafe: true,
			mode:   PathCheckWrite,
			path:   func(_ *testing.T, f pathFixture) string { return filepath.Join(f.other, "wallet.json") },
			code:   errors.ErrInvalidRequest,
		},
		{
			name: "outside allowed dirs",
			mode: PathCheckWrite,
			path: func(_ *testing.T, f pathFixture) string { return filepath.Join(f.other, "wallet.jsonl") },
			code: errors.ErrInvalidRequest,
		},
		{
			name: "read outside allowed dirs",
			mode: PathCheckRead,
			path: func(t *testing.T, f pathFixture) string {
				return writeWalletFile(t, filepath.Join(f.other, "wallet.jsonl"))
			},
			code: errors.ErrInvalidRequest,
		},
		{
			name:   "unsafe paths lift the directory restriction for writes",
			unsafe: true,
			mode:   PathCheckWrite,
			path:   func(_ *testing.T, f pathFixture) string { return filepath.Join(f.other, "wallet.jsonl") },
		},
		{
			name:   "unsafe paths lift the directory restriction for reads",
			unsafe: true,
			mode:   PathCheckRead,
			path: func(t *testing.T, f pathFixture) string {
				return writeWalletFile(t, filepath.Join(f.other, "wallet.jsonl"))
			},
		},
		{
			name: "nested read in allowed path",
			mode: PathCheckRead,
			path: func(t *testing.T, f pathFixture) string {
				return writeWalletFile(t, filepath.Join(f.allowed, "sub", "wallet.jsonl"))
			},
			code: errors.ErrInvalidRequest,
		},
		{
			name: "nested write in allowed path",
			mode: PathCheckWrite,
			path: func(t *testing.T, f pathFixture) string {
				require.NoError(t, os.MkdirAll(filepath.Join(f.allowed, "sub"), 0o755))
				return filepath.Join(f.allowed, "sub", "wallet.jsonl")
			},
			code: errors.ErrInvalidRequest,
		},
		{
			name: "symlink read pointing outside",
			mode: PathCheckRead,
			path: func(t *testing.T, f pathFixture) string {
				target := writeWalletFile(t, filepath.Join(f.other, "secret.jsonl"))
				return symlinkOrSkip(t, target, filepath.Join(f.allowed, "link.jsonl"))
			},
			code: errors.ErrInvalidRequest,
		},
		{
			name:   "symlink read with unsafe paths",
			unsafe: true,
			mode:   PathCheckRead,
			path: func(t *testing.T, f pathFixture) string {
				target := writeWalletFile(t, filepath.Join(f.other, "target.jsonl"))
				return symlinkOrSkip(t, target, filepath.Join(f.other, "link.jsonl"))
			},
			code: errors.ErrInvalidRequest,
		},
		{
			name: "symlink write target",
			mode: PathCheckWrite,
			path: func(t *testing.T, f pathFixture) string {
				target := writeWalletFile(t, filepath.Join(f.other, "secret.jsonl"))
				return symlinkOrSkip(t, target, filepath.Join(f.allowed, "out.jsonl"))
			},
			code: errors.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPathFixture(t)
			cfg := config.DefaultConfig()
			cfg.AllowedPaths = []string{f.allowed}
			cfg.AllowUnsafePaths = tt.unsafe

			err := ValidatePath(tt.path(t, f), tt.mode, f.exports, cfg)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.code), "want %s, got %v", tt.code, err)
		})
	}
}

func TestValidatePath_RelativeAllowedPathIgnored(t *testing.T) {
	exports := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.AllowedPaths = []string{"exports"}

	err := ValidatePath(filepath.Join(exports, "ana.jsonl"), PathCheckWrite, exports, cfg)
	assert.NoError(t, err)
}

func TestContainsTraversal(t *testing.T) {
	tests := map[string]bool{
		"/home/user/ana.jsonl":     false,
		"../ana.jsonl":             true,
		"/home/../etc/passwd":      true,
		"./ana.jsonl":              false,
		"/home/user/.hidden/x.txt": false,
		"ana..bea.jsonl":           false,
		"/tmp/a/b/../c.jsonl":      true,
	}

	for path, want := range tests {
		assert.Equal(t, want, containsTraversal(path), path)
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"ana", "ana"},
		{"ana maria", "ana maria"},
		{"venue/bar", "venue-bar"},
		{"venue\\bar", "venue-bar"},
		{"ana..bea", "ana-bea"},
		{"../../../etc/passwd", "etc-passwd"},
		{"/tmp/evil", "tmp-evil"},
		{"../ana/bea\\..\\cris", "ana-bea-cris"},
		{"ana\x00bea", "anabea"},
		{"ana\x01\x02bea", "anabea"},
		{"../../..", "unnamed"},
		{"///", "unnamed"},
		{"usuario-ñandú", "usuario-ñandú"},
		{"a---b", "a-b"},
		{"---ana", "ana"},
		{"ana---", "ana"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeForFilename(tt.input), "SanitizeForFilename(%q)", tt.input)
	}
}
