package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/auth"
	"github.com/roach88/tally/internal/ir"
)

// InitResult is the output of the init command.
type InitResult struct {
	Database string   `json:"database"`
	Streams  []string `json:"streams"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize every declared stream",
		Long: `Initialize the counter of every declared stream.

Streams must be initialized before records can be appended. Running init
again leaves existing streams untouched.

Example:
  tally init --db ./tally.db
  tally init --backend badger --db ./tally-data --schemas ./schemas`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				if err := s.eng.Init(s.ctx); err != nil {
					return s.fail(err)
				}
				result := InitResult{Database: rootOpts.Database, Streams: s.eng.Streams()}
				return s.out.Result(result, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Initialized %d stream(s) in %s: %s\n",
						len(result.Streams), result.Database, strings.Join(result.Streams, ", "))
				})
			})
		},
	}
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [stream]",
		Short: "Show stream counters",
		Long: `Show next_id and total_count for one stream, or for every declared
stream when none is given. Streams must be initialized first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				streams := s.eng.Streams()
				if len(args) == 1 {
					streams = args
				}
				stats := make([]ir.Stats, 0, len(streams))
				for _, name := range streams {
					st, err := s.eng.Stats(s.ctx, name)
					if err != nil {
						return s.fail(err)
					}
					stats = append(stats, st)
				}
				return s.out.Result(stats, func(w io.Writer) {
					for _, st := range stats {
						fmt.Fprintf(w, "%-12s next_id=%d total_count=%d\n", st.Stream, st.NextID, st.TotalCount)
					}
				})
			})
		},
	}
}

// NewDigestCommand creates the digest command.
func NewDigestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "Print the state digest",
		Long: `Print a SHA-256 digest over every stored stream, counter and aggregate.

Two databases that executed the same calls report the same digest,
whichever backend they use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				digest, err := s.eng.Digest(s.ctx)
				if err != nil {
					return s.fail(err)
				}
				return s.out.Result(map[string]string{"digest": digest}, func(w io.Writer) {
					fmt.Fprintln(w, digest)
				})
			})
		},
	}
}

// ScanEntry is one record in scan output with its content digest.
type ScanEntry struct {
	ir.Record
	Digest string `json:"digest"`
}

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Actor string
	Limit uint32
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan <stream>",
		Short: "List raw records of a stream",
		Long: `List the records of a stream, newest first.

With --actor only records naming that principal as primary or secondary
actor are shown. JSON output carries each record's content digest, which
ignores mutable flags.

Examples:
  tally scan messages
  tally scan messages --actor 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed --limit 10
  tally scan trades --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				opts.Limit = limitFlag(cmd, opts.Limit)
				return runScan(s, opts, args[0])
			})
		},
	}

	cmd.Flags().StringVar(&opts.Actor, "actor", "", "only records involving this principal")
	cmd.Flags().Uint32Var(&opts.Limit, "limit", 0, "maximum records to show (all when unset)")

	return cmd
}

func runScan(s *session, opts *ScanOptions, stream string) error {
	var pred func(ir.Record) bool
	if opts.Actor != "" {
		actor := auth.Normalize(ir.Principal(opts.Actor))
		pred = func(r ir.Record) bool { return r.Actors.Involves(actor) }
	}

	records, err := s.eng.Scan(s.ctx, stream, pred, opts.Limit)
	if err != nil {
		return s.fail(err)
	}

	entries := make([]ScanEntry, 0, len(records))
	for _, r := range records {
		digest, err := ir.RecordDigest(stream, r)
		if err != nil {
			return s.fail(err)
		}
		entries = append(entries, ScanEntry{Record: r, Digest: digest})
	}

	return s.out.Result(entries, func(w io.Writer) {
		if len(records) == 0 {
			fmt.Fprintln(w, "No records.")
			return
		}
		for _, r := range records {
			writeRecord(w, r)
		}
	})
}

// writeRecord prints one record on one line:
//
//	#3 @1700000000 alice -> bob {"content_hash":"h"} [read]
func writeRecord(w io.Writer, r ir.Record) {
	actors := string(r.Actors.Primary)
	if r.Actors.Secondary != "" {
		actors += " -> " + string(r.Actors.Secondary)
	}
	payload, err := ir.MarshalCanonical(r.Payload)
	if err != nil {
		payload = []byte("?")
	}

	var set []string
	for name, on := range r.Flags {
		if on {
			set = append(set, name)
		}
	}
	sort.Strings(set)

	fmt.Fprintf(w, "#%d @%d %s %s", r.ID, r.CreatedAt, actors, payload)
	if len(set) > 0 {
		fmt.Fprintf(w, " [%s]", strings.Join(set, ","))
	}
	fmt.Fprintln(w)
}
