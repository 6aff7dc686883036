package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/schema"
)

// ValidationError is one schema problem.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Streams []string          `json:"streams,omitempty"`
	Ledgers []string          `json:"ledgers,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schemas-dir>",
		Short: "Validate CUE stream and ledger declarations",
		Long: `Validate the CUE stream and ledger declarations in a directory
without opening a database. The same checks run when --schemas is given
to any other command.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("schema directory not found: %s", dir), nil)
		return &ExitError{Code: ExitCommandError, Message: "schema directory not found", Reported: true}
	}

	formatter.VerboseLog("Loading schema from %s", dir)
	cfg, err := schema.Load(dir)
	if err != nil {
		verr := ValidationError{Field: "schema", Message: err.Error(), Code: ErrCodeSchema}
		var cErr *schema.CompileError
		if errors.As(err, &cErr) {
			verr.Field = cErr.Field
			verr.Message = cErr.Message
			if cErr.Pos.IsValid() {
				verr.Line = cErr.Pos.Line()
			}
		}
		return outputValidationErrors(formatter, []ValidationError{verr})
	}

	result := ValidationResult{Valid: true}
	for _, s := range cfg.Streams {
		formatter.VerboseLog("Stream %s: mutable=%v mutate_by=%s", s.Name, s.Mutable, s.MutateBy)
		result.Streams = append(result.Streams, s.Name)
	}
	for _, l := range cfg.Ledgers {
		formatter.VerboseLog("Ledger %s: global=%v tier_step=%d reward_per_tier=%d",
			l.Name, l.Global, l.TierStep, l.RewardPerTier)
		result.Ledgers = append(result.Ledgers, l.Name)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Schema valid: %d stream(s), %d ledger(s)\n",
		len(result.Streams), len(result.Ledgers))
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	if formatter.Format == "json" {
		_ = formatter.Error(errs[0].Code, fmt.Sprintf("%d validation error(s)", len(errs)),
			ValidationResult{Valid: false, Errors: errs})
	} else {
		fmt.Fprintf(formatter.Writer, "✗ Validation failed with %d error(s):\n", len(errs))
		for _, e := range errs {
			if e.Line > 0 {
				fmt.Fprintf(formatter.Writer, "  [%s] line %d: %s: %s\n", e.Code, e.Line, e.Field, e.Message)
			} else {
				fmt.Fprintf(formatter.Writer, "  [%s] %s: %s\n", e.Code, e.Field, e.Message)
			}
		}
	}
	return &ExitError{Code: ExitFailure, Message: "schema validation failed", Reported: true}
}
