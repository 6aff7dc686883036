package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/engine"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	Database string // SQLite file or Badger directory
	Backend  string // "sqlite" | "badger"
	Schemas  string // CUE schema directory; empty uses the built-in schema
	Metrics  string // file to write Prometheus metrics to after the command, "-" for stderr

	// As is the principal the command acts for. With Signature it must be
	// proven; without, it is trusted.
	As        string
	Challenge string
	Signature string

	// Clock and CallIDs override the engine defaults (for testing).
	Clock   engine.Clock
	CallIDs engine.CallIDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ValidBackends defines the allowed storage backends.
var ValidBackends = []string{"sqlite", "badger"}

// NewRootCommand creates the root command for the tally CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tally",
		Short: "tally - deterministic record streams and ledgers",
		Long: `A deterministic storage engine for append-only record streams with
per-stream id counters, actor-filtered scans, gated flag mutation and
tiered aggregate ledgers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if !slices.Contains(ValidBackends, opts.Backend) {
				return fmt.Errorf("invalid backend %q: must be one of %v", opts.Backend, ValidBackends)
			}
			if opts.Signature != "" && opts.As == "" {
				return fmt.Errorf("--signature requires --as")
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.Database, "db", "tally.db", "database path (file for sqlite, directory for badger)")
	flags.StringVar(&opts.Backend, "backend", "sqlite", "storage backend (sqlite|badger)")
	flags.StringVar(&opts.Schemas, "schemas", "", "directory of CUE schema files (default: built-in schema)")
	flags.StringVar(&opts.Metrics, "metrics", "", "write Prometheus metrics to this file after the command (- for stderr)")
	flags.StringVar(&opts.As, "as", "", "principal to act as")
	flags.StringVar(&opts.Challenge, "challenge", "", "message signed to prove --as")
	flags.StringVar(&opts.Signature, "signature", "", "hex personal_sign signature of --challenge by --as")

	// Add subcommands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewDigestCommand(opts))
	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewCredentialCommand(opts))
	cmd.AddCommand(NewMessageCommand(opts))
	cmd.AddCommand(NewRewardCommand(opts))
	cmd.AddCommand(NewTradeCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}
