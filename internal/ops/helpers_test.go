package ops

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/mesa/internal/capsule"
	"github.com/hpungsan/mesa/internal/config"
	"github.com/hpungsan/mesa/internal/db"
	"github.com/hpungsan/mesa/internal/random"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	*Env
	clock   *testClock
	baseDir string
}

// newTestEnv builds an Env over a fresh database. mutate adjusts the config
// before the resolver and ledger read it.
func newTestEnv(t *testing.T, mutate func(*config.Config), opts ...Option) *testEnv {
	t.Helper()

	baseDir := t.TempDir()
	database, err := db.Init(baseDir)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	cat, err := capsule.Default()
	require.NoError(t, err)

	clock := &testClock{t: time.Unix(1_700_000_000, 0)}
	opts = append([]Option{WithClock(clock.Now), WithRand(random.New(7))}, opts...)
	env, err := NewEnv(database, cfg, cat, baseDir, opts...)
	require.NoError(t, err)

	return &testEnv{Env: env, clock: clock, baseDir: baseDir}
}

func startSession(t *testing.T, env *testEnv, input StartSessionInput) string {
	t.Helper()
	out, err := StartSession(context.Background(), env.Env, input)
	require.NoError(t, err)
	return out.Session.ID
}
