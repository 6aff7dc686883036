package harness

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tally/internal/ir"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestLoadScenario_AllTestdata(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)
			assert.NotEmpty(t, s.Name)
			assert.NotEmpty(t, s.Steps)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join("testdata", "scenarios", "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "name: x\ndescription: d\nstep:\n  - call: message.send\n",
			wantErr: "failed to parse YAML",
		},
		{
			name:    "missing name",
			yaml:    "description: d\nsteps:\n  - call: message.send\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: x\nsteps:\n  - call: message.send\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: x\ndescription: d\n",
			wantErr: "steps list is required",
		},
		{
			name:    "unknown call",
			yaml:    "name: x\ndescription: d\nsteps:\n  - call: message.delete\n",
			wantErr: `unknown call "message.delete"`,
		},
		{
			name:    "unknown assertion",
			yaml:    "name: x\ndescription: d\nsteps:\n  - call: trade.stats\nassertions:\n  - type: final_state\n",
			wantErr: `unknown type "final_state"`,
		},
		{
			name:    "query without actor",
			yaml:    "name: x\ndescription: d\nsteps:\n  - call: trade.stats\nassertions:\n  - type: query\n    stream: trades\n",
			wantErr: "query requires stream and actor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_TestdataScenariosPass(t *testing.T) {
	for _, name := range []string{"rewards_claim", "messaging_read", "trading_volume", "academy_issue", "query_limit_zero"} {
		t.Run(name, func(t *testing.T) {
			result, err := Run(loadTestScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Empty(t, result.Errors)
		})
	}
}

func TestRunWithGolden(t *testing.T) {
	for _, name := range []string{"rewards_claim", "messaging_read"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadTestScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s := loadTestScenario(t, "trading_volume")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := MarshalTrace(s.Name, first.Trace)
	require.NoError(t, err)
	b, err := MarshalTrace(s.Name, second.Trace)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_TraceRecordsOutcomes(t *testing.T) {
	result, err := Run(loadTestScenario(t, "rewards_claim"))
	require.NoError(t, err)
	require.Len(t, result.Trace, 6)

	assert.Equal(t, int64(1), result.Trace[0].Seq)
	assert.Equal(t, "reward.record", result.Trace[0].Call)
	assert.Equal(t, OutcomeOK, result.Trace[0].Outcome)

	claim := result.Trace[3]
	assert.Equal(t, "NOT_FOUND", claim.Outcome)
	assert.Nil(t, claim.Result, "failed calls carry no result")
}

func TestRun_ExpectationMismatchFails(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: mismatch
description: wrong expectations are reported
principals: [alice]
steps:
  - call: reward.record
    args: { user: alice, kind: post, points: 5 }
    expect:
      result: { total_points: 6 }
  - call: reward.claim
    args: { user: alice }
    expect:
      error: NOT_FOUND
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "result mismatch")
	assert.Contains(t, result.Errors[1], "expected outcome NOT_FOUND, got ok")
}

func TestRun_UnexpectedErrorWithoutExpect(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: unauthorized
description: steps without expect must succeed
principals: [alice]
steps:
  - call: message.send
    args: { sender: mallory, recipient: alice, content_hash: h }
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error UNAUTHORIZED")
}

func TestRun_AssertionFailures(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: assertions
description: failing assertions are reported
principals: [alice]
steps:
  - call: trade.execute
    args: { trader: alice, pair: ETH/USDC, amount: 10, price: 1 }
assertions:
  - type: stats
    stream: trades
    expect: { total_count: 2 }
  - type: aggregate
    ledger: volume
    expect: { total: 10 }
  - type: query
    stream: trades
    actor: alice
    ids: [2]
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "assertions[0] stats")
	assert.Contains(t, result.Errors[1], "ids [2]")
}

func TestRun_StreamStats(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: stream_stats
description: raw stream stats are available as a call
steps:
  - call: stream.stats
    args: { stream: credentials }
    expect:
      result: { stream: credentials, next_id: 1, total_count: 0 }
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestMatchValue(t *testing.T) {
	actual := ir.Object{
		"id":    ir.Int(1),
		"user":  ir.String("alice"),
		"items": ir.List{ir.Object{"a": ir.Int(1), "b": ir.Int(2)}},
	}

	tests := []struct {
		name     string
		expected ir.Value
		want     bool
	}{
		{"subset", ir.Object{"id": ir.Int(1)}, true},
		{"empty object", ir.Object{}, true},
		{"wrong value", ir.Object{"id": ir.Int(2)}, false},
		{"missing field", ir.Object{"tier": ir.Int(1)}, false},
		{"nested subset", ir.Object{"items": ir.List{ir.Object{"b": ir.Int(2)}}}, true},
		{"list length", ir.Object{"items": ir.List{}}, false},
		{"type mismatch", ir.String("alice"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchValue(tt.expected, actual))
		})
	}
}

func TestCalls(t *testing.T) {
	names := Calls()
	assert.Contains(t, names, "message.send")
	assert.Contains(t, names, "stream.stats")
	assert.IsIncreasing(t, names)
}

func TestMarshalTrace_OmitsEmptyArgsAndResult(t *testing.T) {
	data, err := MarshalTrace("s", []TraceEvent{
		{Seq: 1, Call: "trade.stats", Outcome: "FORBIDDEN"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"scenario_name":"s","trace":[{"call":"trade.stats","outcome":"FORBIDDEN","seq":1}]}`, string(data))
}

func TestLimit(t *testing.T) {
	tests := []struct {
		name string
		args ir.Object
		want uint32
	}{
		{"absent", ir.Object{}, math.MaxUint32},
		{"zero", ir.Object{"limit": ir.Int(0)}, 0},
		{"negative", ir.Object{"limit": ir.Int(-3)}, 0},
		{"bounded", ir.Object{"limit": ir.Int(2)}, 2},
		{"too large", ir.Object{"limit": ir.Int(math.MaxUint32 + 1)}, math.MaxUint32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, limit(tt.args))
		})
	}
}
