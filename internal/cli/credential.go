package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/academy"
	"github.com/roach88/tally/internal/auth"
	"github.com/roach88/tally/internal/ir"
)

// CredentialOptions holds flags shared by credential subcommands.
type CredentialOptions struct {
	*RootOptions
	Issuers     []string
	Level       uint32
	MetadataURI string
}

// NewCredentialCommand creates the credential command group.
func NewCredentialCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CredentialOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Issue and verify course credentials",
	}
	cmd.PersistentFlags().StringSliceVar(&opts.Issuers, "issuers", nil,
		"accredited issuers (default: any authorized principal)")

	issue := &cobra.Command{
		Use:   "issue <holder> <course-id>",
		Short: "Issue a credential to holder, signed off by --as",
		Example: `  tally credential issue 0x2c7536E3605D9C16a7a3D7b1898e529396a65c23 go-101 \
    --level 2 --metadata-uri ipfs://cred --as academy`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				svc := opts.service(s)
				id, err := svc.Issue(s.ctx, s.caller, auth.Normalize(ir.Principal(args[0])), args[1],
					opts.Level, opts.MetadataURI)
				if err != nil {
					return s.fail(err)
				}
				return s.out.Result(map[string]uint64{"id": id}, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Issued credential %d to %s\n", id, args[0])
				})
			})
		},
	}
	issue.Flags().Uint32Var(&opts.Level, "level", 1, "credential level")
	issue.Flags().StringVar(&opts.MetadataURI, "metadata-uri", "", "off-engine metadata location")

	list := &cobra.Command{
		Use:   "list <holder>",
		Short: "List credentials held by holder, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				creds, err := opts.service(s).ListByHolder(s.ctx, auth.Normalize(ir.Principal(args[0])))
				if err != nil {
					return s.fail(err)
				}
				return s.out.Result(creds, func(w io.Writer) {
					if len(creds) == 0 {
						fmt.Fprintln(w, "No credentials.")
						return
					}
					for _, c := range creds {
						fmt.Fprintf(w, "#%d %s level %d issued by %s @%d %s\n",
							c.ID, c.CourseID, c.Level, c.Issuer, c.IssuedAt, c.MetadataURI)
					}
				})
			})
		},
	}

	verify := &cobra.Command{
		Use:   "verify <id>",
		Short: "Report whether a credential exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				id, err := parseUint(s.out, "credential id", args[0], 64)
				if err != nil {
					return err
				}
				valid, err := opts.service(s).Verify(s.ctx, id)
				if err != nil {
					return s.fail(err)
				}
				return s.out.Result(map[string]bool{"valid": valid}, func(w io.Writer) {
					if valid {
						fmt.Fprintf(w, "✓ Credential %d is valid\n", id)
					} else {
						fmt.Fprintf(w, "✗ Credential %d not found\n", id)
					}
				})
			})
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show credential totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(s *session) error {
				st, err := opts.service(s).Stats(s.ctx)
				if err != nil {
					return s.fail(err)
				}
				return s.out.Result(st, func(w io.Writer) {
					fmt.Fprintf(w, "total_issued=%d next_id=%d\n", st.TotalIssued, st.NextID)
				})
			})
		},
	}

	cmd.AddCommand(issue, list, verify, stats)
	return cmd
}

func (o *CredentialOptions) service(s *session) *academy.Service {
	issuers := make([]ir.Principal, 0, len(o.Issuers))
	for _, p := range o.Issuers {
		issuers = append(issuers, auth.Normalize(ir.Principal(p)))
	}
	return academy.New(s.eng, issuers...)
}
