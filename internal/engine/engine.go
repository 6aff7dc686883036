package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/store"
)

// Engine owns the declared streams and ledgers over one keyed store.
//
// Every operation runs as one execution: composites are read from the
// store, changed in memory, and written back in a single commit. An
// execution that fails commits nothing.
//
// Thread-safety model:
//   - Do: serialized by an exclusive lock (single writer)
//   - View: shares a read lock, so readers never see half a commit
type Engine struct {
	backend store.Backend
	mu      sync.RWMutex

	streams map[string]StreamSchema
	ledgers map[string]LedgerSchema
	order   []string // declared stream names, declaration order

	clock    Clock
	auth     Authorizer
	logger   *slog.Logger
	overflow OverflowPolicy
	callIDs  CallIDGenerator
}

// New creates an Engine over backend for the streams and ledgers in cfg.
// Options can be passed to configure the engine (e.g., WithClock).
func New(backend store.Backend, cfg Config, opts ...Option) (*Engine, error) {
	if backend == nil {
		return nil, errors.New("engine: backend is required")
	}
	cfg, err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	e := &Engine{
		backend:  backend,
		streams:  make(map[string]StreamSchema, len(cfg.Streams)),
		ledgers:  make(map[string]LedgerSchema, len(cfg.Ledgers)),
		clock:    WallClock(),
		auth:     denyAll,
		logger:   slog.Default(),
		overflow: OverflowSaturate,
		callIDs:  UUIDv7Generator{},
	}
	for _, s := range cfg.Streams {
		e.streams[s.Name] = s
		e.order = append(e.order, s.Name)
	}
	for _, l := range cfg.Ledgers {
		e.ledgers[l.Name] = l
	}

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Streams returns the declared stream names in declaration order.
func (e *Engine) Streams() []string {
	return append([]string(nil), e.order...)
}

// Stream returns the schema of a declared stream.
func (e *Engine) Stream(name string) (StreamSchema, bool) {
	s, ok := e.streams[name]
	return s, ok
}

// Ledger returns the schema of a declared ledger.
func (e *Engine) Ledger(name string) (LedgerSchema, bool) {
	l, ok := e.ledgers[name]
	return l, ok
}

// Do runs fn as one writing execution. If fn returns nil, everything it
// staged is committed in one batch; otherwise nothing is.
func (e *Engine) Do(ctx context.Context, op string, fn func(tx *Tx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	call := e.callIDs.Generate()
	tx := newTx(ctx, e, false)

	if err := fn(tx); err != nil {
		e.observe(op, start, err)
		e.logger.Warn("execution rejected",
			"op", op,
			"call", call,
			"code", CodeOf(err),
			"error", err,
		)
		return err
	}

	batch, err := tx.batch()
	if err != nil {
		e.observe(op, start, err)
		return fmt.Errorf("%s: encode: %w", op, err)
	}
	if err := e.backend.Commit(ctx, batch); err != nil {
		e.observe(op, start, err)
		e.logger.Error("commit failed",
			"op", op,
			"call", call,
			"error", err,
		)
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	for name, st := range tx.streams {
		if tx.dirty[recordsKey(name)] {
			recordsTotal.WithLabelValues(name).Set(float64(st.counter.TotalCount))
		}
	}
	e.observe(op, start, nil)
	e.logger.Info("execution committed",
		"op", op,
		"call", call,
		"writes", len(batch),
	)
	return nil
}

// View runs fn as a read-only execution. Writes through the Tx fail.
func (e *Engine) View(ctx context.Context, op string, fn func(tx *Tx) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	start := time.Now()
	err := fn(newTx(ctx, e, true))
	e.observe(op, start, err)
	e.logger.Debug("read executed", "op", op, "code", CodeOf(err))
	return err
}

// Init creates the counter and empty log of every declared stream that
// does not have them yet. Calling Init again changes nothing.
func (e *Engine) Init(ctx context.Context) error {
	return e.Do(ctx, "init", func(tx *Tx) error {
		for _, name := range e.order {
			created, err := tx.initStream(name)
			if err != nil {
				return err
			}
			if created {
				e.logger.Debug("stream initialized", "stream", name)
			}
		}
		return nil
	})
}

// Append authorizes caller and appends a record to stream.
// It returns the new record's id.
func (e *Engine) Append(ctx context.Context, stream string, caller ir.Principal, actors ir.Actors, payload ir.Object) (uint64, error) {
	var id uint64
	err := e.Do(ctx, "append", func(tx *Tx) error {
		if err := tx.Authorize(caller); err != nil {
			return err
		}
		r, err := tx.Append(stream, actors, payload)
		id = r.ID
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Get returns the record with id in stream.
func (e *Engine) Get(ctx context.Context, stream string, id uint64) (ir.Record, error) {
	var r ir.Record
	err := e.View(ctx, "get", func(tx *Tx) error {
		var err error
		r, err = tx.Get(stream, id)
		return err
	})
	return r, err
}

// Query returns up to limit records of stream that involve actor as
// either primary or secondary, newest first.
func (e *Engine) Query(ctx context.Context, stream string, actor ir.Principal, limit uint32) ([]ir.Record, error) {
	return e.Scan(ctx, stream, func(r ir.Record) bool { return r.Actors.Involves(actor) }, limit)
}

// Scan returns up to limit records of stream satisfying pred, newest first.
func (e *Engine) Scan(ctx context.Context, stream string, pred func(ir.Record) bool, limit uint32) ([]ir.Record, error) {
	var out []ir.Record
	err := e.View(ctx, "scan", func(tx *Tx) error {
		var err error
		out, err = tx.Scan(stream, pred, limit)
		return err
	})
	return out, err
}

// Mutate runs the mutation gate on one record. See Tx.Mutate.
func (e *Engine) Mutate(ctx context.Context, stream string, id uint64, caller ir.Principal, updater func(ir.Record) ir.Record) error {
	return e.Do(ctx, "mutate", func(tx *Tx) error {
		_, err := tx.Mutate(stream, id, caller, updater)
		return err
	})
}

// Stats summarizes stream.
func (e *Engine) Stats(ctx context.Context, stream string) (ir.Stats, error) {
	var s ir.Stats
	err := e.View(ctx, "stats", func(tx *Tx) error {
		var err error
		s, err = tx.Stats(stream)
		return err
	})
	return s, err
}

// Aggregate returns actor's aggregate in ledger.
func (e *Engine) Aggregate(ctx context.Context, ledger string, actor ir.Principal) (ir.Aggregate, error) {
	var agg ir.Aggregate
	err := e.View(ctx, "aggregate", func(tx *Tx) error {
		var err error
		agg, err = tx.Aggregate(ledger, actor)
		return err
	})
	return agg, err
}

// Contribute authorizes actor and credits delta to their aggregate.
func (e *Engine) Contribute(ctx context.Context, ledger string, actor ir.Principal, delta uint64) (ir.Aggregate, error) {
	var agg ir.Aggregate
	err := e.Do(ctx, "contribute", func(tx *Tx) error {
		if err := tx.Authorize(actor); err != nil {
			return err
		}
		var err error
		agg, err = tx.Contribute(ledger, actor, delta)
		return err
	})
	return agg, err
}

// Claim authorizes actor and spends their tier reward from ledger.
// It returns the amount spent.
func (e *Engine) Claim(ctx context.Context, ledger string, actor ir.Principal) (uint64, error) {
	var amount uint64
	err := e.Do(ctx, "claim", func(tx *Tx) error {
		if err := tx.Authorize(actor); err != nil {
			return err
		}
		var err error
		amount, _, err = tx.Spend(ledger, actor)
		return err
	})
	return amount, err
}

// Digest hashes every committed key and value in key order. Engines that
// executed the same calls from the same state report the same digest.
func (e *Engine) Digest(ctx context.Context) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	keys, err := e.backend.Keys(ctx, "")
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	entries := make([]ir.Entry, 0, len(keys))
	for _, k := range keys {
		v, ok, err := e.backend.Get(ctx, k)
		if err != nil {
			return "", fmt.Errorf("digest: %w", err)
		}
		if ok {
			entries = append(entries, ir.Entry{Key: k, Value: v})
		}
	}
	return ir.StateDigest(entries), nil
}
