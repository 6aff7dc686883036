package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/ir"
)

func TestFixedCallIDs(t *testing.T) {
	gen := FixedCallIDs("call-123")
	assert.Equal(t, "call-123", gen.Generate())
	assert.Equal(t, "call-123", gen.Generate())

	assert.Equal(t, "test-call-default", FixedCallIDs("").Generate())
}

func TestNewEnv_Initialized(t *testing.T) {
	env := NewEnv(t, "alice")
	ctx := context.Background()

	for _, name := range env.Engine.Streams() {
		stats, err := env.Engine.Stats(ctx, name)
		require.NoError(t, err, name)
		assert.Equal(t, uint64(1), stats.NextID)
	}

	_, err := env.Engine.Append(ctx, "engagements", "bob", ir.Actors{Primary: "bob"}, nil)
	assert.True(t, engine.IsUnauthorized(err))

	id, err := env.Engine.Append(ctx, "engagements", "alice", ir.Actors{Primary: "alice"}, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, ir.Timestamp(1), env.Clock.Current())
}
