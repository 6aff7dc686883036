// Package harness runs YAML scenarios against a real tally engine.
//
// Each scenario executes in a fresh in-memory SQLite database with the
// built-in schema, a deterministic clock and a static authorizer holding
// the scenario's principals. Every step calls one service operation; the
// harness records what it called and what came back, checks the step's
// expectation, and finally evaluates the scenario's assertions against the
// engine state.
//
// # Scenario Format
//
//	name: rewards_claim
//	description: "Engagement accrues points and a claim spends them"
//	principals: [alice, bob]
//	steps:
//	  - call: reward.record
//	    args: { user: alice, kind: post, points: 50 }
//	    expect:
//	      result: { total_points: 50 }
//	  - call: reward.claim
//	    args: { user: bob }
//	    expect:
//	      error: NOT_FOUND
//	assertions:
//	  - type: aggregate
//	    ledger: points
//	    actor: alice
//	    expect: { total: 50, tier: 1 }
//
// Result expectations use subset semantics for objects: only the listed
// fields are compared. Lists must have the same length and match element
// by element; scalars must be equal.
//
// # Golden Files
//
// RunWithGolden serializes the trace as canonical JSON and compares it with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
