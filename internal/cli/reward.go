package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/auth"
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/rewards"
)

// NewRewardCommand creates the reward command group.
func NewRewardCommand(rootOpts *RootOptions) *cobra.Command {
	var limit uint32

	cmd := &cobra.Command{
		Use:   "reward",
		Short: "Record engagement and claim tier rewards",
		Long: `Record engagement points and claim rewards.

Each engagement credits its points to the user's total. The tier is
total/100 + 1 under the built-in schema, and a claim pays tier * 10,
deducted from the total.`,
	}

	record := &cobra.Command{
		Use:     "record <kind> <points>",
		Short:   "Record an engagement for --as",
		Example: "  tally reward record post 50 --as alice",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				points, err := parseUint(s.out, "points", args[1], 32)
				if err != nil {
					return err
				}
				total, err := rewards.New(s.eng).Record(s.ctx, s.caller, args[0], uint32(points))
				if err != nil {
					return s.fail(err)
				}
				return s.out.Result(map[string]uint64{"total_points": total}, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Recorded %s (+%d), total %d\n", args[0], points, total)
				})
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <user>",
		Short: "Show a user's points and tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				r, err := rewards.New(s.eng).Rewards(s.ctx, auth.Normalize(ir.Principal(args[0])))
				if err != nil {
					return s.fail(err)
				}
				return s.out.Result(r, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %d points, tier %d\n", r.User, r.TotalPoints, r.Tier)
				})
			})
		},
	}

	history := &cobra.Command{
		Use:   "history <user>",
		Short: "List a user's engagements, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				n := limitFlag(cmd, limit)
				items, err := rewards.New(s.eng).History(s.ctx, auth.Normalize(ir.Principal(args[0])), n)
				if err != nil {
					return s.fail(err)
				}
				return s.out.Result(items, func(w io.Writer) {
					if len(items) == 0 {
						fmt.Fprintln(w, "No engagements.")
						return
					}
					for _, e := range items {
						fmt.Fprintf(w, "#%d %s +%d @%d\n", e.ID, e.Kind, e.Points, e.RecordedAt)
					}
				})
			})
		},
	}
	history.Flags().Uint32Var(&limit, "limit", 0, "maximum engagements to show (all when unset)")

	claim := &cobra.Command{
		Use:   "claim",
		Short: "Claim the tier reward for --as",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				amount, err := rewards.New(s.eng).Claim(s.ctx, s.caller)
				if err != nil {
					return s.fail(err)
				}
				return s.out.Result(map[string]uint64{"amount": amount}, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Claimed %d\n", amount)
				})
			})
		},
	}

	cmd.AddCommand(record, show, history, claim)
	return cmd
}
