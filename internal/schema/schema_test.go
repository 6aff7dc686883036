package schema

import (
	"errors"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/engine"
)

func TestDefault(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	require.Len(t, cfg.Streams, 4)
	assert.Equal(t, engine.StreamSchema{Name: "credentials"}, cfg.Streams[0])
	assert.Equal(t, engine.StreamSchema{
		Name:     "messages",
		Mutable:  []string{"read"},
		MutateBy: engine.RoleSecondary,
	}, cfg.Streams[1])
	assert.Equal(t, "engagements", cfg.Streams[2].Name)
	assert.Equal(t, "trades", cfg.Streams[3].Name)

	require.Len(t, cfg.Ledgers, 2)
	assert.Equal(t, engine.LedgerSchema{Name: "points", TierStep: 100, RewardPerTier: 10}, cfg.Ledgers[0])
	assert.Equal(t, engine.LedgerSchema{Name: "volume", Global: true}, cfg.Ledgers[1])
}

func TestCompile_Basic(t *testing.T) {
	v := cuecontext.New().CompileString(`
		stream: notes: {}
		stream: tasks: {
			mutable: ["done"]
			mutate_by: "primary"
		}
	`)

	cfg, err := Compile(v)
	require.NoError(t, err)
	require.Len(t, cfg.Streams, 2)
	assert.Equal(t, "notes", cfg.Streams[0].Name)
	assert.Equal(t, []string{"done"}, cfg.Streams[1].Mutable)
	assert.Equal(t, engine.RolePrimary, cfg.Streams[1].MutateBy)
	assert.Empty(t, cfg.Ledgers)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown role", `stream: a: { mutable: ["x"], mutate_by: "owner" }`, ""},
		{"unknown field", `stream: a: { mutabel: ["x"] }`, ""},
		{"mutable without role", `stream: a: { mutable: ["x"] }`, "mutate_by is required"},
		{"empty flag", `stream: a: { mutable: [""], mutate_by: "primary" }`, "non-empty"},
		{"zero tier step", `stream: a: {}
			ledger: p: tier_step: 0`, ""},
		{"float tier step", `stream: a: {}
			ledger: p: tier_step: 1.5`, ""},
		{"no streams", `ledger: p: {}`, "at least one stream"},
		{"syntax", `stream: {`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := cuecontext.New().CompileString(tt.src)
			_, err := Compile(v)
			require.Error(t, err)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestCompile_ErrorCarriesPosition(t *testing.T) {
	v := cuecontext.New().CompileString(`stream: a: { mutable: ["x"] }`)

	_, err := Compile(v)
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "stream.a.mutate_by", ce.Field)
}

func TestLoad_Directory(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "custom"))
	require.NoError(t, err)

	require.Len(t, cfg.Streams, 2)
	assert.Equal(t, engine.StreamSchema{
		Name:     "tickets",
		Mutable:  []string{"closed", "escalated"},
		MutateBy: engine.RoleEither,
	}, cfg.Streams[0])
	assert.Equal(t, "audit", cfg.Streams[1].Name)

	require.Len(t, cfg.Ledgers, 1)
	assert.Equal(t, engine.LedgerSchema{Name: "karma", TierStep: 50, RewardPerTier: 5}, cfg.Ledgers[0])
}

func TestLoad_InvalidDirectory(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "bad"))
	assert.Error(t, err)

	_, err = Load(filepath.Join("testdata", "missing"))
	assert.Error(t, err)

	_, err = Load(filepath.Join("testdata", "custom", "schema.cue"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestDefault_BuildsEngine(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	_, err = cfg.Validate()
	assert.NoError(t, err)
}
