package ir

import "math"

// Principal is an actor identity the authorizer can vouch for,
// e.g. a hex wallet address.
type Principal string

// Timestamp is a host-supplied, non-decreasing time value (seconds in
// production, logical ticks in tests). It only stamps records; ordering
// decisions never read it.
type Timestamp uint64

// Actors names the principals a record is filed under.
// Both are weak references used as scan filter keys.
type Actors struct {
	Primary   Principal `json:"primary"`
	Secondary Principal `json:"secondary,omitempty"`
}

// Involves reports whether p is either actor.
func (a Actors) Involves(p Principal) bool {
	return a.Primary == p || (a.Secondary != "" && a.Secondary == p)
}

// Record is one fact in a stream.
//
// ID and CreatedAt never change after append. Payload and Actors never
// change either; only entries of Flags named mutable by the stream's schema
// may be flipped through the mutation gate.
type Record struct {
	ID        uint64          `json:"id"`
	Actors    Actors          `json:"actors"`
	Payload   Object          `json:"payload"`
	CreatedAt Timestamp       `json:"created_at"`
	Flags     map[string]bool `json:"flags,omitempty"`
}

// Flag returns the named flag, false when unset.
func (r Record) Flag(name string) bool {
	return r.Flags[name]
}

// Clone returns a deep copy so updaters cannot alias stored state.
func (r Record) Clone() Record {
	out := r
	out.Payload = r.Payload.Clone()
	if r.Flags != nil {
		out.Flags = make(map[string]bool, len(r.Flags))
		for k, v := range r.Flags {
			out.Flags[k] = v
		}
	}
	return out
}

func (r Record) payloadOrEmpty() Object {
	if r.Payload == nil {
		return Object{}
	}
	return r.Payload
}

// Counter is the allocator state for one stream.
// Invariant: TotalCount == number of records in the stream.
type Counter struct {
	NextID     uint64 `json:"next_id"`
	TotalCount uint64 `json:"total_count"`
}

// LastID returns the most recently allocated id, 0 when none.
func (c Counter) LastID() uint64 {
	if c.NextID == 0 {
		return 0
	}
	return c.NextID - 1
}

// Aggregate is the derived per-actor state of a ledger.
// Tier is always recomputed from Total; it is serialized for readers but
// never trusted on load.
type Aggregate struct {
	Actor Principal `json:"actor"`
	Total uint64    `json:"total"`
	Tier  uint32    `json:"tier"`
}

// Stats summarizes one stream.
type Stats struct {
	Stream     string `json:"stream"`
	NextID     uint64 `json:"next_id"`
	TotalCount uint64 `json:"total_count"`
}

// LastID returns the id of the newest record, 0 for an empty stream.
func (s Stats) LastID() uint64 {
	if s.NextID == 0 {
		return 0
	}
	return s.NextID - 1
}

// TierFor is the reference step function: total/step + 1, clamped to uint32.
// A zero step is treated as 1.
func TierFor(total, step uint64) uint32 {
	if step == 0 {
		step = 1
	}
	t := total/step + 1
	if t > math.MaxUint32 || t == 0 {
		return math.MaxUint32
	}
	return uint32(t)
}
