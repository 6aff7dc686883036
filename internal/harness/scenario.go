package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a sequence of service calls with expected outcomes.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Principals are the identities the authorizer vouches for.
	Principals []string `yaml:"principals"`

	// Issuers restricts who may issue credentials. Empty means anyone
	// authorized.
	Issuers []string `yaml:"issuers,omitempty"`

	// Steps run in order; a failing step does not stop the scenario.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated against engine state after all steps.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one service call.
type Step struct {
	// Call names the operation, e.g. "message.send". See Calls.
	Call string `yaml:"call"`

	// Args are passed to the operation by name.
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Expect, when set, is checked against the call's outcome.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the outcome a step should have.
type Expect struct {
	// Error is the expected error code, e.g. "NOT_FOUND". Empty means the
	// call must succeed.
	Error string `yaml:"error,omitempty"`

	// Result is compared with the call's result. Objects match as subsets.
	Result interface{} `yaml:"result,omitempty"`
}

// Assertion checks engine state after the steps ran.
type Assertion struct {
	// Type is one of "stats", "aggregate" or "query".
	Type string `yaml:"type"`

	// Stream is used by stats and query.
	Stream string `yaml:"stream,omitempty"`

	// Ledger and Actor are used by aggregate. Actor is also the query
	// filter.
	Ledger string `yaml:"ledger,omitempty"`
	Actor  string `yaml:"actor,omitempty"`

	// Limit caps a query. Absent means unlimited; zero yields no records.
	Limit *uint32 `yaml:"limit,omitempty"`

	// Expect holds the expected fields for stats and aggregate.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// IDs is the expected query result, newest first.
	IDs []uint64 `yaml:"ids,omitempty"`
}

// Assertion type constants.
const (
	AssertStats     = "stats"
	AssertAggregate = "aggregate"
	AssertQuery     = "query"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Call == "" {
			return fmt.Errorf("steps[%d]: call is required", i)
		}
		if _, ok := calls[step.Call]; !ok {
			return fmt.Errorf("steps[%d]: unknown call %q", i, step.Call)
		}
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertStats:
			if a.Stream == "" {
				return fmt.Errorf("assertions[%d]: stats requires stream", i)
			}
		case AssertAggregate:
			if a.Ledger == "" {
				return fmt.Errorf("assertions[%d]: aggregate requires ledger", i)
			}
		case AssertQuery:
			if a.Stream == "" || a.Actor == "" {
				return fmt.Errorf("assertions[%d]: query requires stream and actor", i)
			}
		case "":
			return fmt.Errorf("assertions[%d]: type is required", i)
		default:
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
	}
	return nil
}
