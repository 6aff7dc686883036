package rewards

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/testutil"
)

func TestRecord_AccumulatesPointsAndTier(t *testing.T) {
	env := testutil.NewEnv(t, "alice")
	svc := New(env.Engine)
	ctx := context.Background()

	total, err := svc.Record(ctx, "alice", "post", 50)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), total)

	total, err = svc.Record(ctx, "alice", "like", 60)
	require.NoError(t, err)
	assert.Equal(t, uint64(110), total)

	r, err := svc.Rewards(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, Rewards{User: "alice", TotalPoints: 110, Tier: 2}, r)

	amount, err := svc.Claim(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(20), amount)

	r, err = svc.Rewards(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, Rewards{User: "alice", TotalPoints: 90, Tier: 1}, r)
}

func TestRewards_DefaultForNewUser(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := New(env.Engine)

	r, err := svc.Rewards(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, Rewards{User: "nobody", TotalPoints: 0, Tier: 1}, r)
}

func TestClaim_NeverEngaged(t *testing.T) {
	env := testutil.NewEnv(t, "alice")
	svc := New(env.Engine)

	_, err := svc.Claim(context.Background(), "alice")
	assert.True(t, engine.IsNotFound(err))
}

func TestRecord_Rejections(t *testing.T) {
	env := testutil.NewEnv(t, "alice")
	svc := New(env.Engine)
	ctx := context.Background()

	_, err := svc.Record(ctx, "bob", "post", 10)
	assert.True(t, engine.IsUnauthorized(err))

	_, err = svc.Record(ctx, "alice", "", 10)
	assert.ErrorIs(t, err, engine.ErrInvalidArgument)

	history, err := svc.History(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Empty(t, history)

	r, err := svc.Rewards(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.TotalPoints)
}

func TestHistory_NewestFirstAndBounded(t *testing.T) {
	env := testutil.NewEnv(t, "alice", "bob")
	svc := New(env.Engine)
	ctx := context.Background()

	kinds := []string{"post", "like", "share", "comment"}
	for i, k := range kinds {
		_, err := svc.Record(ctx, "alice", k, uint32(i+1))
		require.NoError(t, err)
		_, err = svc.Record(ctx, "bob", k, 1)
		require.NoError(t, err)
	}

	history, err := svc.History(ctx, "alice", 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "comment", history[0].Kind)
	assert.Equal(t, uint32(4), history[0].Points)
	assert.Equal(t, "share", history[1].Kind)
	assert.Equal(t, "like", history[2].Kind)
	for _, e := range history {
		assert.Equal(t, "alice", string(e.User))
	}
}

func TestRecord_AddressCaseInsensitive(t *testing.T) {
	const checksum = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	env := testutil.NewEnv(t, checksum)
	svc := New(env.Engine)
	ctx := context.Background()

	_, err := svc.Record(ctx, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "post", 60)
	require.NoError(t, err)

	r, err := svc.Rewards(ctx, checksum)
	require.NoError(t, err)
	assert.Equal(t, uint64(60), r.TotalPoints)

	history, err := svc.History(ctx, checksum, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	amount, err := svc.Claim(ctx, "0X5AAEB6053F3E94C9B9A09F33669435E7EF1BEAED")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), amount)
}
