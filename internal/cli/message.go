package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/auth"
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/messaging"
)

// NewMessageCommand creates the message command group.
func NewMessageCommand(rootOpts *RootOptions) *cobra.Command {
	var limit uint32

	cmd := &cobra.Command{
		Use:   "message",
		Short: "Send and read messages",
		Long: `Send and read messages. Only the content hash is recorded; the
content itself lives elsewhere. Only the recipient may mark a message read.`,
	}

	send := &cobra.Command{
		Use:     "send <recipient> <content-hash>",
		Short:   "Send a message from --as to recipient",
		Example: "  tally message send bob bafy...hash --as alice",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				id, err := messaging.New(s.eng).Send(s.ctx, s.caller, auth.Normalize(ir.Principal(args[0])), args[1])
				if err != nil {
					return s.fail(err)
				}
				return s.out.Result(map[string]uint64{"id": id}, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Sent message %d to %s\n", id, args[0])
				})
			})
		},
	}

	read := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a message read as its recipient (--as)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				id, err := parseUint(s.out, "message id", args[0], 64)
				if err != nil {
					return err
				}
				if err := messaging.New(s.eng).MarkRead(s.ctx, s.caller, id); err != nil {
					return s.fail(err)
				}
				return s.out.Result(map[string]uint64{"id": id}, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Message %d marked read\n", id)
				})
			})
		},
	}

	list := &cobra.Command{
		Use:   "list <user>",
		Short: "List messages user sent or received, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				n := limitFlag(cmd, limit)
				msgs, err := messaging.New(s.eng).List(s.ctx, auth.Normalize(ir.Principal(args[0])), n)
				if err != nil {
					return s.fail(err)
				}
				return s.out.Result(msgs, func(w io.Writer) {
					if len(msgs) == 0 {
						fmt.Fprintln(w, "No messages.")
						return
					}
					for _, m := range msgs {
						state := "unread"
						if m.Read {
							state = "read"
						}
						fmt.Fprintf(w, "#%d %s -> %s @%d %s (%s)\n",
							m.ID, m.Sender, m.Recipient, m.SentAt, m.ContentHash, state)
					}
				})
			})
		},
	}
	list.Flags().Uint32Var(&limit, "limit", 0, "maximum messages to show (all when unset)")

	unread := &cobra.Command{
		Use:   "unread <user>",
		Short: "Count unread messages addressed to user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				n, err := messaging.New(s.eng).UnreadCount(s.ctx, auth.Normalize(ir.Principal(args[0])))
				if err != nil {
					return s.fail(err)
				}
				return s.out.Result(map[string]uint64{"count": n}, func(w io.Writer) {
					fmt.Fprintf(w, "%d unread\n", n)
				})
			})
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show message totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				st, err := messaging.New(s.eng).Stats(s.ctx)
				if err != nil {
					return s.fail(err)
				}
				return s.out.Result(st, func(w io.Writer) {
					fmt.Fprintf(w, "total_messages=%d next_message_id=%d\n", st.TotalMessages, st.NextMessageID)
				})
			})
		},
	}

	cmd.AddCommand(send, read, list, unread, stats)
	return cmd
}
