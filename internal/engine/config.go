package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/tally/internal/ir"
)

// Role names which actor of a record may pass the mutation gate.
type Role string

const (
	RolePrimary   Role = "primary"
	RoleSecondary Role = "secondary"
	RoleEither    Role = "either"
)

// StreamSchema declares one record stream.
type StreamSchema struct {
	Name string

	// Mutable lists the flags the mutation gate may flip. A stream with no
	// mutable flags is append-only and every mutation is forbidden.
	Mutable []string

	// MutateBy is the actor role entitled to mutate a record.
	MutateBy Role
}

func (s StreamSchema) isMutable(flag string) bool {
	return slices.Contains(s.Mutable, flag)
}

// entitled reports whether caller may mutate r.
func (s StreamSchema) entitled(r ir.Record, caller ir.Principal) bool {
	switch s.MutateBy {
	case RolePrimary:
		return r.Actors.Primary == caller
	case RoleSecondary:
		return r.Actors.Secondary != "" && r.Actors.Secondary == caller
	case RoleEither:
		return r.Actors.Involves(caller)
	}
	return false
}

// Default tiering for ledgers that leave it unset.
const (
	DefaultTierStep      = 100
	DefaultRewardPerTier = 10
)

// LedgerSchema declares one aggregate ledger.
type LedgerSchema struct {
	Name string

	// Global ledgers keep a single aggregate regardless of actor.
	Global bool

	// Tier is Total/TierStep + 1; a claim spends Tier*RewardPerTier.
	TierStep      uint64
	RewardPerTier uint64
}

// Tier returns the tier for total.
func (l LedgerSchema) Tier(total uint64) uint32 {
	return ir.TierFor(total, l.TierStep)
}

// Config declares every stream and ledger the engine owns.
type Config struct {
	Streams []StreamSchema
	Ledgers []LedgerSchema
}

// Validate checks names are unique and non-empty and fills defaults.
// It returns the normalized copy.
func (c Config) Validate() (Config, error) {
	out := Config{
		Streams: make([]StreamSchema, 0, len(c.Streams)),
		Ledgers: make([]LedgerSchema, 0, len(c.Ledgers)),
	}
	seen := map[string]bool{}
	for _, s := range c.Streams {
		if s.Name == "" {
			return Config{}, fmt.Errorf("stream name is required")
		}
		if strings.Contains(s.Name, "/") {
			return Config{}, fmt.Errorf("stream %q: name must not contain '/'", s.Name)
		}
		if seen["stream/"+s.Name] {
			return Config{}, fmt.Errorf("stream %q declared twice", s.Name)
		}
		seen["stream/"+s.Name] = true
		if len(s.Mutable) > 0 && s.MutateBy == "" {
			return Config{}, fmt.Errorf("stream %q: mutable flags need mutate_by", s.Name)
		}
		switch s.MutateBy {
		case "", RolePrimary, RoleSecondary, RoleEither:
		default:
			return Config{}, fmt.Errorf("stream %q: unknown mutate_by %q", s.Name, s.MutateBy)
		}
		s.Mutable = slices.Clone(s.Mutable)
		slices.Sort(s.Mutable)
		out.Streams = append(out.Streams, s)
	}
	for _, l := range c.Ledgers {
		if l.Name == "" {
			return Config{}, fmt.Errorf("ledger name is required")
		}
		if strings.Contains(l.Name, "/") {
			return Config{}, fmt.Errorf("ledger %q: name must not contain '/'", l.Name)
		}
		if seen["ledger/"+l.Name] {
			return Config{}, fmt.Errorf("ledger %q declared twice", l.Name)
		}
		seen["ledger/"+l.Name] = true
		if l.TierStep == 0 {
			l.TierStep = DefaultTierStep
		}
		if l.RewardPerTier == 0 {
			l.RewardPerTier = DefaultRewardPerTier
		}
		out.Ledgers = append(out.Ledgers, l)
	}
	return out, nil
}

// Authorizer answers whether the current caller has proven control of p.
// It is consulted before every write bound to a claimed identity.
type Authorizer interface {
	Authorize(ctx context.Context, p ir.Principal) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, p ir.Principal) bool

// Authorize calls f.
func (f AuthorizerFunc) Authorize(ctx context.Context, p ir.Principal) bool {
	return f(ctx, p)
}

// denyAll is the default authorizer: nothing is proven until the host
// installs a real one.
var denyAll = AuthorizerFunc(func(context.Context, ir.Principal) bool { return false })

// OverflowPolicy decides what a contribution past MaxUint64 does.
type OverflowPolicy int

const (
	// OverflowSaturate clamps totals at MaxUint64.
	OverflowSaturate OverflowPolicy = iota
	// OverflowReject fails the execution with OVERFLOW.
	OverflowReject
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the timestamp source. Default: WallClock().
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithAuthorizer sets the authorization capability. Default: deny all.
func WithAuthorizer(a Authorizer) Option {
	return func(e *Engine) {
		e.auth = a
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithOverflow sets the contribution overflow policy.
// Default: OverflowSaturate.
func WithOverflow(p OverflowPolicy) Option {
	return func(e *Engine) {
		e.overflow = p
	}
}

// WithCallIDs sets the correlation id generator used in logs.
// Default: UUIDv7Generator.
func WithCallIDs(g CallIDGenerator) Option {
	return func(e *Engine) {
		e.callIDs = g
	}
}
