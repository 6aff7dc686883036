// Package auth provides the authorization capabilities the engine
// consults before writes: a static allow list, a per-call principal
// carried in the context, and Ethereum personal-message signatures that
// prove control of an address.
package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/ir"
)

// Normalize returns the checksummed form of a hex address and p
// unchanged otherwise, so the same wallet is one principal however it
// was typed.
func Normalize(p ir.Principal) ir.Principal {
	s := strings.TrimSpace(string(p))
	if common.IsHexAddress(s) {
		return ir.Principal(common.HexToAddress(s).Hex())
	}
	return ir.Principal(s)
}

// Static authorizes a fixed set of principals. Useful for tests and
// for trusted single-operator deployments.
//
// Thread-safety: Static is safe for concurrent use.
type Static struct {
	mu      sync.RWMutex
	allowed map[ir.Principal]bool
}

var _ engine.Authorizer = (*Static)(nil)

// NewStatic creates an authorizer for ps.
func NewStatic(ps ...ir.Principal) *Static {
	s := &Static{allowed: make(map[ir.Principal]bool, len(ps))}
	for _, p := range ps {
		s.allowed[Normalize(p)] = true
	}
	return s
}

// Grant adds p.
func (s *Static) Grant(p ir.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowed[Normalize(p)] = true
}

// Revoke removes p.
func (s *Static) Revoke(p ir.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.allowed, Normalize(p))
}

// Authorize reports whether p was granted.
func (s *Static) Authorize(_ context.Context, p ir.Principal) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allowed[Normalize(p)]
}

type principalKey struct{}

// WithPrincipal returns a context in which the caller has proven
// control of p.
func WithPrincipal(ctx context.Context, p ir.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, Normalize(p))
}

// FromContext returns the proven principal carried by ctx.
func FromContext(ctx context.Context) (ir.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(ir.Principal)
	return p, ok && p != ""
}

// Context authorizes exactly the principal attached with WithPrincipal.
type Context struct{}

var _ engine.Authorizer = Context{}

// Authorize reports whether ctx carries p.
func (Context) Authorize(ctx context.Context, p ir.Principal) bool {
	got, ok := FromContext(ctx)
	return ok && got == Normalize(p)
}
