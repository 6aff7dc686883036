package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/auth"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/store"
)

// Env is an initialized engine over an in-memory store with the
// built-in schema, a deterministic clock and a static authorizer.
type Env struct {
	Engine *engine.Engine
	Store  *store.Memory
	Clock  *DeterministicClock
	Auth   *auth.Static
}

// NewEnv builds and initializes an Env in which principals are
// authorized.
func NewEnv(t *testing.T, principals ...ir.Principal) *Env {
	t.Helper()

	cfg, err := schema.Default()
	require.NoError(t, err)

	env := &Env{
		Store: store.NewMemory(),
		Clock: NewDeterministicClock(),
		Auth:  auth.NewStatic(principals...),
	}
	env.Engine, err = engine.New(env.Store, cfg,
		engine.WithClock(env.Clock),
		engine.WithAuthorizer(env.Auth),
		engine.WithLogger(DiscardLogger()),
		engine.WithCallIDs(FixedCallIDs("test-call")),
	)
	require.NoError(t, err)
	require.NoError(t, env.Engine.Init(context.Background()))
	return env
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedCallIDs returns the same call id every time.
type fixedCallIDs string

// FixedCallIDs returns a generator that always yields id.
// If id is empty, Generate returns "test-call-default".
func FixedCallIDs(id string) engine.CallIDGenerator {
	if id == "" {
		id = "test-call-default"
	}
	return fixedCallIDs(id)
}

func (g fixedCallIDs) Generate() string {
	return string(g)
}
