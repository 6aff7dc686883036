package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/store"
)

// Key layout in the keyed store. Every value is a whole serialized
// composite, replaced as a unit.
func recordsKey(stream string) string { return "stream/" + stream + "/records" }
func counterKey(stream string) string { return "stream/" + stream + "/counter" }
func aggregateKey(ledger string, actor ir.Principal) string {
	return "ledger/" + ledger + "/" + string(actor)
}

// streamState is one stream loaded into an execution.
type streamState struct {
	schema      StreamSchema
	initialized bool
	counter     ir.Counter
	records     []ir.Record
	index       map[uint64]int // id -> position in records
}

func (s *streamState) lookup(id uint64) (int, bool) {
	pos, ok := s.index[id]
	return pos, ok
}

// Tx is the context of one execution. It reads composites from the
// store at most once, stages every change in memory, and hands the
// engine a single batch to commit when the execution succeeds. When the
// execution fails the staged changes are dropped.
//
// A Tx is only valid inside the Do or View callback that received it.
type Tx struct {
	ctx      context.Context
	e        *Engine
	readOnly bool

	streams    map[string]*streamState
	aggregates map[string]ir.Aggregate
	dirty      map[string]bool
}

func newTx(ctx context.Context, e *Engine, readOnly bool) *Tx {
	return &Tx{
		ctx:        ctx,
		e:          e,
		readOnly:   readOnly,
		streams:    make(map[string]*streamState),
		aggregates: make(map[string]ir.Aggregate),
		dirty:      make(map[string]bool),
	}
}

// Context returns the context of the execution.
func (tx *Tx) Context() context.Context {
	return tx.ctx
}

// Authorize fails with UNAUTHORIZED unless the caller has proven control of p.
func (tx *Tx) Authorize(p ir.Principal) error {
	if p == "" || !tx.e.auth.Authorize(tx.ctx, p) {
		return unauthorized(p)
	}
	return nil
}

func (tx *Tx) writable() error {
	if tx.readOnly {
		return errors.New("write attempted in a read-only execution")
	}
	return nil
}

func (tx *Tx) stream(name string) (*streamState, error) {
	if st, ok := tx.streams[name]; ok {
		return st, nil
	}
	schema, ok := tx.e.streams[name]
	if !ok {
		return nil, &Error{Code: CodeNotInitialized, Message: "stream is not declared", Stream: name}
	}
	st := &streamState{schema: schema, index: map[uint64]int{}}

	raw, ok, err := tx.e.backend.Get(tx.ctx, counterKey(name))
	if err != nil {
		return nil, fmt.Errorf("load counter %s: %w", name, err)
	}
	if ok {
		st.initialized = true
		if err := json.Unmarshal(raw, &st.counter); err != nil {
			return nil, fmt.Errorf("decode counter %s: %w", name, err)
		}
		raw, ok, err = tx.e.backend.Get(tx.ctx, recordsKey(name))
		if err != nil {
			return nil, fmt.Errorf("load records %s: %w", name, err)
		}
		if ok {
			if err := json.Unmarshal(raw, &st.records); err != nil {
				return nil, fmt.Errorf("decode records %s: %w", name, err)
			}
		}
		if uint64(len(st.records)) != st.counter.TotalCount {
			return nil, fmt.Errorf("stream %s is corrupt: counter says %d records, log has %d",
				name, st.counter.TotalCount, len(st.records))
		}
		for i := range st.records {
			st.records[i].Flags = withDeclaredFlags(st.records[i].Flags, schema.Mutable)
			st.index[st.records[i].ID] = i
		}
	}
	tx.streams[name] = st
	return st, nil
}

// withDeclaredFlags returns flags with every declared mutable flag
// present, defaulting to false. Records written before a flag was
// declared pick it up here.
func withDeclaredFlags(flags map[string]bool, declared []string) map[string]bool {
	for _, f := range declared {
		if _, ok := flags[f]; ok {
			continue
		}
		if flags == nil {
			flags = make(map[string]bool, len(declared))
		}
		flags[f] = false
	}
	return flags
}

// initStream creates the counter and empty log if they do not exist.
func (tx *Tx) initStream(name string) (bool, error) {
	if err := tx.writable(); err != nil {
		return false, err
	}
	st, err := tx.stream(name)
	if err != nil {
		return false, err
	}
	if st.initialized {
		return false, nil
	}
	st.initialized = true
	st.counter = ir.Counter{NextID: 1}
	st.records = []ir.Record{}
	tx.dirty[counterKey(name)] = true
	tx.dirty[recordsKey(name)] = true
	return true, nil
}

// allocate hands out the stream's next id. The caller must append the
// record in the same execution so TotalCount matches the log.
func (tx *Tx) allocate(st *streamState) (uint64, error) {
	if st.counter.NextID == math.MaxUint64 {
		return 0, &Error{Code: CodeOverflow, Message: "id space exhausted", Stream: st.schema.Name}
	}
	id := st.counter.NextID
	st.counter.NextID++
	st.counter.TotalCount++
	tx.dirty[counterKey(st.schema.Name)] = true
	return id, nil
}

// Append adds a record to the end of stream and returns it with its id
// and timestamp. The payload is stored in canonical form and every
// mutable flag starts false. Append does not authorize; callers bind it
// to an identity with Authorize first.
func (tx *Tx) Append(stream string, actors ir.Actors, payload ir.Object) (ir.Record, error) {
	if err := tx.writable(); err != nil {
		return ir.Record{}, err
	}
	st, err := tx.stream(stream)
	if err != nil {
		return ir.Record{}, err
	}
	if !st.initialized {
		return ir.Record{}, notInitialized(stream)
	}
	if actors.Primary == "" {
		return ir.Record{}, invalidArgument("record needs a primary actor")
	}
	canon, err := ir.Canonicalize(payload)
	if err != nil {
		return ir.Record{}, invalidArgument("payload: %v", err)
	}

	id, err := tx.allocate(st)
	if err != nil {
		return ir.Record{}, err
	}
	now := tx.e.clock.Now()
	if n := len(st.records); n > 0 && st.records[n-1].CreatedAt > now {
		now = st.records[n-1].CreatedAt
	}
	r := ir.Record{ID: id, Actors: actors, Payload: canon, CreatedAt: now}
	r.Flags = withDeclaredFlags(nil, st.schema.Mutable)
	st.index[id] = len(st.records)
	st.records = append(st.records, r)
	tx.dirty[recordsKey(stream)] = true
	return r.Clone(), nil
}

// Get returns the record with id.
func (tx *Tx) Get(stream string, id uint64) (ir.Record, error) {
	st, err := tx.stream(stream)
	if err != nil {
		return ir.Record{}, err
	}
	pos, ok := st.lookup(id)
	if !ok {
		return ir.Record{}, recordNotFound(stream, id)
	}
	return st.records[pos].Clone(), nil
}

// Scan walks stream from newest to oldest and returns up to limit
// records satisfying pred. A nil pred matches everything. pred sees a
// copy of each record. An uninitialized stream scans as empty.
func (tx *Tx) Scan(stream string, pred func(ir.Record) bool, limit uint32) ([]ir.Record, error) {
	st, err := tx.stream(stream)
	if err != nil {
		if IsNotInitialized(err) {
			return []ir.Record{}, nil
		}
		return nil, err
	}
	out := []ir.Record{}
	remaining := limit
	for i := len(st.records) - 1; i >= 0 && remaining > 0; i-- {
		r := st.records[i].Clone()
		if pred == nil || pred(r) {
			out = append(out, r)
			remaining--
		}
	}
	return out, nil
}

// Count returns how many records in stream satisfy pred.
// It always walks the whole stream.
func (tx *Tx) Count(stream string, pred func(ir.Record) bool) (uint64, error) {
	st, err := tx.stream(stream)
	if err != nil {
		if IsNotInitialized(err) {
			return 0, nil
		}
		return 0, err
	}
	var n uint64
	for _, r := range st.records {
		if pred == nil || pred(r.Clone()) {
			n++
		}
	}
	return n, nil
}

// Stats summarizes stream.
func (tx *Tx) Stats(stream string) (ir.Stats, error) {
	st, err := tx.stream(stream)
	if err != nil {
		return ir.Stats{}, err
	}
	if !st.initialized {
		return ir.Stats{}, notInitialized(stream)
	}
	return ir.Stats{Stream: stream, NextID: st.counter.NextID, TotalCount: st.counter.TotalCount}, nil
}

// Mutate passes one record through the mutation gate. Checks run in
// order: caller authorization (UNAUTHORIZED), record existence
// (NOT_FOUND), caller entitlement (FORBIDDEN). The updater receives a
// copy; its result may differ from the stored record only in the
// stream's mutable flags, otherwise Mutate fails with INVALID_ARGUMENT.
func (tx *Tx) Mutate(stream string, id uint64, caller ir.Principal, updater func(ir.Record) ir.Record) (ir.Record, error) {
	if err := tx.writable(); err != nil {
		return ir.Record{}, err
	}
	if err := tx.Authorize(caller); err != nil {
		return ir.Record{}, err
	}
	st, err := tx.stream(stream)
	if err != nil {
		return ir.Record{}, err
	}
	if !st.initialized {
		return ir.Record{}, notInitialized(stream)
	}
	pos, ok := st.lookup(id)
	if !ok {
		return ir.Record{}, recordNotFound(stream, id)
	}
	current := st.records[pos]
	if len(st.schema.Mutable) == 0 || !st.schema.entitled(current, caller) {
		return ir.Record{}, &Error{
			Code:     CodeForbidden,
			Message:  fmt.Sprintf("%q may not modify this record", caller),
			Stream:   stream,
			RecordID: id,
			Actor:    caller,
		}
	}

	next := updater(current.Clone())
	if err := checkMutation(st.schema, current, next); err != nil {
		return ir.Record{}, err
	}
	next = next.Clone()
	next.Payload = current.Payload
	st.records[pos] = next
	tx.dirty[recordsKey(stream)] = true
	return next.Clone(), nil
}

func checkMutation(schema StreamSchema, before, after ir.Record) error {
	if after.ID != before.ID {
		return invalidArgument("updater changed record id %d to %d", before.ID, after.ID)
	}
	if after.CreatedAt != before.CreatedAt {
		return invalidArgument("updater changed created_at of record %d", before.ID)
	}
	if after.Actors != before.Actors {
		return invalidArgument("updater changed actors of record %d", before.ID)
	}
	same, err := ir.EqualCanonical(before.Payload, after.Payload)
	if err != nil || !same {
		return invalidArgument("updater changed payload of record %d", before.ID)
	}
	for f, v := range after.Flags {
		if prev, ok := before.Flags[f]; ok && prev == v {
			continue
		}
		if !schema.isMutable(f) {
			return invalidArgument("flag %q is not mutable in stream %s", f, schema.Name)
		}
	}
	for _, f := range schema.Mutable {
		if _, ok := after.Flags[f]; !ok {
			return invalidArgument("updater dropped flag %q", f)
		}
	}
	return nil
}

func (tx *Tx) ledger(name string) (LedgerSchema, error) {
	l, ok := tx.e.ledgers[name]
	if !ok {
		return LedgerSchema{}, &Error{Code: CodeNotInitialized, Message: "ledger is not declared", Ledger: name}
	}
	return l, nil
}

// loadAggregate returns the actor's aggregate and whether it exists.
// Tier is recomputed from Total; the stored tier is ignored.
func (tx *Tx) loadAggregate(l LedgerSchema, actor ir.Principal) (ir.Aggregate, bool, error) {
	if l.Global {
		actor = ""
	}
	key := aggregateKey(l.Name, actor)
	if agg, ok := tx.aggregates[key]; ok {
		return agg, true, nil
	}
	raw, ok, err := tx.e.backend.Get(tx.ctx, key)
	if err != nil {
		return ir.Aggregate{}, false, fmt.Errorf("load aggregate %s: %w", key, err)
	}
	if !ok {
		return ir.Aggregate{Actor: actor, Tier: l.Tier(0)}, false, nil
	}
	var agg ir.Aggregate
	if err := json.Unmarshal(raw, &agg); err != nil {
		return ir.Aggregate{}, false, fmt.Errorf("decode aggregate %s: %w", key, err)
	}
	agg.Actor = actor
	agg.Tier = l.Tier(agg.Total)
	tx.aggregates[key] = agg
	return agg, true, nil
}

func (tx *Tx) storeAggregate(l LedgerSchema, agg ir.Aggregate) {
	agg.Tier = l.Tier(agg.Total)
	key := aggregateKey(l.Name, agg.Actor)
	tx.aggregates[key] = agg
	tx.dirty[key] = true
}

// Aggregate returns the actor's aggregate in ledger, or a zero total
// at the base tier when the actor never contributed.
func (tx *Tx) Aggregate(ledger string, actor ir.Principal) (ir.Aggregate, error) {
	l, err := tx.ledger(ledger)
	if err != nil {
		return ir.Aggregate{}, err
	}
	agg, _, err := tx.loadAggregate(l, actor)
	return agg, err
}

// Contribute adds delta to the actor's total and recomputes the tier.
// Past MaxUint64 the total saturates, or the call fails with OVERFLOW
// under OverflowReject.
func (tx *Tx) Contribute(ledger string, actor ir.Principal, delta uint64) (ir.Aggregate, error) {
	if err := tx.writable(); err != nil {
		return ir.Aggregate{}, err
	}
	l, err := tx.ledger(ledger)
	if err != nil {
		return ir.Aggregate{}, err
	}
	agg, _, err := tx.loadAggregate(l, actor)
	if err != nil {
		return ir.Aggregate{}, err
	}
	sum := agg.Total + delta
	if sum < agg.Total {
		if tx.e.overflow == OverflowReject {
			return ir.Aggregate{}, &Error{
				Code:    CodeOverflow,
				Message: fmt.Sprintf("total %d + %d exceeds range", agg.Total, delta),
				Ledger:  ledger,
				Actor:   agg.Actor,
			}
		}
		sum = math.MaxUint64
	}
	agg.Total = sum
	tx.storeAggregate(l, agg)
	return tx.Aggregate(ledger, actor)
}

// Spend deducts the actor's claimable amount, Tier*RewardPerTier
// computed before the deduction, and returns it with the new aggregate.
// The total never drops below zero. Spend fails with NOT_FOUND if the
// actor never contributed.
func (tx *Tx) Spend(ledger string, actor ir.Principal) (uint64, ir.Aggregate, error) {
	if err := tx.writable(); err != nil {
		return 0, ir.Aggregate{}, err
	}
	l, err := tx.ledger(ledger)
	if err != nil {
		return 0, ir.Aggregate{}, err
	}
	agg, ok, err := tx.loadAggregate(l, actor)
	if err != nil {
		return 0, ir.Aggregate{}, err
	}
	if !ok {
		return 0, ir.Aggregate{}, &Error{
			Code:    CodeNotFound,
			Message: "actor has no aggregate",
			Ledger:  ledger,
			Actor:   agg.Actor,
		}
	}
	amount := saturatingMul(uint64(agg.Tier), l.RewardPerTier)
	if amount >= agg.Total {
		agg.Total = 0
	} else {
		agg.Total -= amount
	}
	tx.storeAggregate(l, agg)
	agg, err = tx.Aggregate(ledger, actor)
	return amount, agg, err
}

func saturatingMul(a, b uint64) uint64 {
	if a != 0 && b > math.MaxUint64/a {
		return math.MaxUint64
	}
	return a * b
}

// batch encodes every dirty composite, sorted by key.
func (tx *Tx) batch() (store.Batch, error) {
	keys := make([]string, 0, len(tx.dirty))
	for k := range tx.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := make(store.Batch, 0, len(keys))
	for _, k := range keys {
		v, err := tx.encode(k)
		if err != nil {
			return nil, err
		}
		b = append(b, store.Write{Key: k, Value: v})
	}
	return b, nil
}

func (tx *Tx) encode(key string) ([]byte, error) {
	if agg, ok := tx.aggregates[key]; ok {
		return json.Marshal(agg)
	}
	for name, st := range tx.streams {
		switch key {
		case counterKey(name):
			return json.Marshal(st.counter)
		case recordsKey(name):
			return json.Marshal(st.records)
		}
	}
	return nil, fmt.Errorf("no staged value for key %q", key)
}
