package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/auth"
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/trading"
)

// NewTradeCommand creates the trade command group.
func NewTradeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		buy   bool
		limit uint32
	)

	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Record trades and report volume",
	}

	execute := &cobra.Command{
		Use:     "execute <pair> <amount> <price>",
		Short:   "Record a trade by --as",
		Example: "  tally trade execute ETH/USDC 500 3000 --buy --as alice",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				amount, err := parseInt(s.out, "amount", args[1])
				if err != nil {
					return err
				}
				price, err := parseInt(s.out, "price", args[2])
				if err != nil {
					return err
				}
				id, err := trading.New(s.eng).Execute(s.ctx, s.caller, args[0], amount, price, buy)
				if err != nil {
					return s.fail(err)
				}
				return s.out.Result(map[string]uint64{"id": id}, func(w io.Writer) {
					side := "sell"
					if buy {
						side = "buy"
					}
					fmt.Fprintf(w, "✓ Trade %d: %s %d %s @ %d\n", id, side, amount, args[0], price)
				})
			})
		},
	}
	execute.Flags().BoolVar(&buy, "buy", false, "buy side (default sell)")

	list := &cobra.Command{
		Use:   "list <trader>",
		Short: "List a trader's trades, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				n := limitFlag(cmd, limit)
				trades, err := trading.New(s.eng).ListByTrader(s.ctx, auth.Normalize(ir.Principal(args[0])), n)
				if err != nil {
					return s.fail(err)
				}
				return s.out.Result(trades, func(w io.Writer) {
					if len(trades) == 0 {
						fmt.Fprintln(w, "No trades.")
						return
					}
					for _, t := range trades {
						side := "sell"
						if t.IsBuy {
							side = "buy"
						}
						fmt.Fprintf(w, "#%d %s %d %s @ %d (%d)\n", t.ID, side, t.Amount, t.Pair, t.Price, t.ExecutedAt)
					}
				})
			})
		},
	}
	list.Flags().Uint32Var(&limit, "limit", 0, "maximum trades to show (all when unset)")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show trade count and total volume",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				st, err := trading.New(s.eng).Stats(s.ctx)
				if err != nil {
					return s.fail(err)
				}
				return s.out.Result(st, func(w io.Writer) {
					fmt.Fprintf(w, "total_trades=%d total_volume=%d last_trade_id=%d\n",
						st.TotalTrades, st.TotalVolume, st.LastTradeID)
				})
			})
		},
	}

	cmd.AddCommand(execute, list, stats)
	return cmd
}
