package cli

import (
	"context"
	"log/slog"
	"math"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/auth"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/store"
)

// session is one command's view of the engine: an open backend, the
// engine over it, and the principal the command acts for.
type session struct {
	ctx     context.Context
	eng     *engine.Engine
	backend store.Backend
	caller  ir.Principal
	out     *OutputFormatter
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// withSession opens a session, runs fn and closes the backend. Errors
// from opening are already reported when returned. With --metrics the
// engine's Prometheus metrics are written after fn, even when it fails.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(s *session) error) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.backend.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	err = fn(s)
	if opts.Metrics != "" {
		if mErr := writeMetrics(opts.Metrics, cmd.ErrOrStderr(), prometheus.DefaultGatherer); mErr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "metrics", mErr)
		}
	}
	return err
}

func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	out := newFormatter(opts, cmd)

	// Engine commits log at Info; keep them out of normal CLI output.
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	var (
		cfg engine.Config
		err error
	)
	if opts.Schemas == "" {
		cfg, err = schema.Default()
	} else {
		out.VerboseLog("Loading schema from %s", opts.Schemas)
		cfg, err = schema.Load(opts.Schemas)
	}
	if err != nil {
		return nil, out.Fail(ErrCodeSchema, err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		authorizer engine.Authorizer
		caller     ir.Principal
	)
	switch {
	case opts.Signature != "":
		caller = auth.Normalize(ir.Principal(opts.As))
		ctx, err = auth.ProveEthereum(ctx, caller, opts.Challenge, opts.Signature)
		if err != nil {
			return nil, out.Fail(ErrCodeAuth, err)
		}
		authorizer = auth.Context{}
	case opts.As != "":
		caller = auth.Normalize(ir.Principal(opts.As))
		authorizer = auth.NewStatic(caller)
	}

	out.VerboseLog("Opening %s database %s", opts.Backend, opts.Database)
	backend, err := openBackend(opts, logger)
	if err != nil {
		return nil, out.Fail(ErrCodeStore, err)
	}

	engOpts := []engine.Option{engine.WithLogger(logger)}
	if authorizer != nil {
		engOpts = append(engOpts, engine.WithAuthorizer(authorizer))
	}
	if opts.Clock != nil {
		engOpts = append(engOpts, engine.WithClock(opts.Clock))
	}
	if opts.CallIDs != nil {
		engOpts = append(engOpts, engine.WithCallIDs(opts.CallIDs))
	}
	eng, err := engine.New(backend, cfg, engOpts...)
	if err != nil {
		backend.Close()
		return nil, out.Fail(ErrCodeSchema, err)
	}

	return &session{ctx: ctx, eng: eng, backend: backend, caller: caller, out: out}, nil
}

func openBackend(opts *RootOptions, logger *slog.Logger) (store.Backend, error) {
	if opts.Backend == "badger" {
		cfg := store.DefaultBadgerConfig(opts.Database)
		if opts.Verbose {
			cfg.Logger = logger
		}
		return store.OpenBadger(cfg)
	}
	return store.Open(opts.Database)
}

// fail reports err through the session's formatter.
func (s *session) fail(err error) error {
	return s.out.Fail(ErrCodeGeneric, err)
}

// parseUint parses a positional argument, reporting a malformed value.
func parseUint(out *OutputFormatter, name, arg string, bits int) (uint64, error) {
	n, err := strconv.ParseUint(arg, 10, bits)
	if err != nil {
		return 0, out.Fail(ErrCodeInvalidArgs, &argError{name: name, value: arg})
	}
	return n, nil
}

// parseInt parses a signed positional argument.
func parseInt(out *OutputFormatter, name, arg string) (int64, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, out.Fail(ErrCodeInvalidArgs, &argError{name: name, value: arg})
	}
	return n, nil
}

type argError struct {
	name  string
	value string
}

func (e *argError) Error() string {
	return "invalid " + e.name + " " + strconv.Quote(e.value)
}

// limitFlag returns the --limit value, or no limit when the flag was not
// given. An explicit zero lists nothing.
func limitFlag(cmd *cobra.Command, n uint32) uint32 {
	if !cmd.Flags().Changed("limit") {
		return math.MaxUint32
	}
	return n
}
