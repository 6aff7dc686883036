// Package schema compiles CUE stream and ledger declarations into an
// engine.Config.
package schema

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tally/internal/engine"
)

//go:embed defs.cue
var defsCUE []byte

//go:embed defaults.cue
var defaultsCUE []byte

// Default returns the built-in declarations.
func Default() (engine.Config, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(defaultsCUE, cue.Filename("defaults.cue"))
	return Compile(v)
}

// Load builds the CUE package in dir and compiles it.
func Load(dir string) (engine.Config, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return engine.Config{}, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return engine.Config{}, fmt.Errorf("not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return engine.Config{}, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return engine.Config{}, fmt.Errorf("loading CUE files: %w", formatCUEError(inst.Err))
	}

	value := ctx.BuildInstance(inst)
	return Compile(value)
}

// Compile validates v against the schema definitions and extracts the
// declared streams and ledgers in declaration order.
//
// Example:
//
//	v := cuecontext.New().CompileString(`stream: notes: {}`)
//	cfg, err := schema.Compile(v)
func Compile(v cue.Value) (engine.Config, error) {
	if err := v.Err(); err != nil {
		return engine.Config{}, formatCUEError(err)
	}
	defs := v.Context().CompileBytes(defsCUE, cue.Filename("defs.cue"))
	if err := defs.Err(); err != nil {
		return engine.Config{}, formatCUEError(err)
	}
	v = defs.Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return engine.Config{}, formatCUEError(err)
	}

	var cfg engine.Config
	var err error
	cfg.Streams, err = parseStreams(v)
	if err != nil {
		return engine.Config{}, err
	}
	cfg.Ledgers, err = parseLedgers(v)
	if err != nil {
		return engine.Config{}, err
	}
	if len(cfg.Streams) == 0 {
		return engine.Config{}, &CompileError{
			Field:   "stream",
			Message: "at least one stream is required",
			Pos:     v.Pos(),
		}
	}

	// Cross-field checks (duplicate names, roles) live in one place.
	if _, err := cfg.Validate(); err != nil {
		return engine.Config{}, &CompileError{Field: "stream", Message: err.Error(), Pos: v.Pos()}
	}
	return cfg, nil
}

func parseStreams(v cue.Value) ([]engine.StreamSchema, error) {
	var streams []engine.StreamSchema

	streamsVal := v.LookupPath(cue.ParsePath("stream"))
	if !streamsVal.Exists() {
		return streams, nil
	}
	iter, err := streamsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		s := engine.StreamSchema{Name: iter.Label()}
		sv := iter.Value()

		if mv := sv.LookupPath(cue.ParsePath("mutable")); mv.Exists() {
			list, err := mv.List()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for list.Next() {
				flag, err := list.Value().String()
				if err != nil {
					return nil, formatCUEError(err)
				}
				if flag == "" {
					return nil, &CompileError{
						Field:   fmt.Sprintf("stream.%s.mutable", s.Name),
						Message: "flag names must be non-empty",
						Pos:     list.Value().Pos(),
					}
				}
				s.Mutable = append(s.Mutable, flag)
			}
		}

		if rv := sv.LookupPath(cue.ParsePath("mutate_by")); rv.Exists() {
			role, err := rv.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			s.MutateBy = engine.Role(role)
		}
		if len(s.Mutable) > 0 && s.MutateBy == "" {
			return nil, &CompileError{
				Field:   fmt.Sprintf("stream.%s.mutate_by", s.Name),
				Message: "mutate_by is required when mutable flags are declared",
				Pos:     sv.Pos(),
			}
		}

		streams = append(streams, s)
	}
	return streams, nil
}

func parseLedgers(v cue.Value) ([]engine.LedgerSchema, error) {
	var ledgers []engine.LedgerSchema

	ledgersVal := v.LookupPath(cue.ParsePath("ledger"))
	if !ledgersVal.Exists() {
		return ledgers, nil
	}
	iter, err := ledgersVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		l := engine.LedgerSchema{Name: iter.Label()}
		lv := iter.Value()

		if gv := lv.LookupPath(cue.ParsePath("global")); gv.Exists() {
			if l.Global, err = gv.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if l.TierStep, err = optionalUint(lv, "tier_step"); err != nil {
			return nil, err
		}
		if l.RewardPerTier, err = optionalUint(lv, "reward_per_tier"); err != nil {
			return nil, err
		}

		ledgers = append(ledgers, l)
	}
	return ledgers, nil
}

func optionalUint(v cue.Value, field string) (uint64, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, nil
	}
	n, err := fv.Uint64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return n, nil
}

// CompileError represents a schema error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Report the first error that carries a position.
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
