package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/roach88/tally/internal/academy"
	"github.com/roach88/tally/internal/auth"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/ir"
	"github.com/roach88/tally/internal/messaging"
	"github.com/roach88/tally/internal/rewards"
	"github.com/roach88/tally/internal/schema"
	"github.com/roach88/tally/internal/store"
	"github.com/roach88/tally/internal/testutil"
	"github.com/roach88/tally/internal/trading"
)

// Harness holds the engine and services for one scenario run.
type Harness struct {
	store     *store.Store
	engine    *engine.Engine
	academy   *academy.Service
	messaging *messaging.Service
	rewards   *rewards.Service
	trading   *trading.Service
}

// callFunc runs one operation. A nil result is left out of the trace.
type callFunc func(ctx context.Context, h *Harness, args ir.Object) (any, error)

// calls maps step names to operations.
var calls = map[string]callFunc{
	"credential.issue": func(ctx context.Context, h *Harness, args ir.Object) (any, error) {
		id, err := h.academy.Issue(ctx, principal(args, "issuer"), principal(args, "holder"),
			args.String("course_id"), uint32(args.Int("level")), args.String("metadata_uri"))
		return idResult(id), err
	},
	"credential.list": func(ctx context.Context, h *Harness, args ir.Object) (any, error) {
		return h.academy.ListByHolder(ctx, principal(args, "holder"))
	},
	"credential.verify": func(ctx context.Context, h *Harness, args ir.Object) (any, error) {
		ok, err := h.academy.Verify(ctx, uint64(args.Int("id")))
		return map[string]bool{"valid": ok}, err
	},
	"credential.stats": func(ctx context.Context, h *Harness, _ ir.Object) (any, error) {
		return h.academy.Stats(ctx)
	},
	"message.send": func(ctx context.Context, h *Harness, args ir.Object) (any, error) {
		id, err := h.messaging.Send(ctx, principal(args, "sender"), principal(args, "recipient"),
			args.String("content_hash"))
		return idResult(id), err
	},
	"message.read": func(ctx context.Context, h *Harness, args ir.Object) (any, error) {
		return nil, h.messaging.MarkRead(ctx, principal(args, "user"), uint64(args.Int("id")))
	},
	"message.list": func(ctx context.Context, h *Harness, args ir.Object) (any, error) {
		return h.messaging.List(ctx, principal(args, "user"), limit(args))
	},
	"message.unread": func(ctx context.Context, h *Harness, args ir.Object) (any, error) {
		n, err := h.messaging.UnreadCount(ctx, principal(args, "user"))
		return map[string]uint64{"count": n}, err
	},
	"message.stats": func(ctx context.Context, h *Harness, _ ir.Object) (any, error) {
		return h.messaging.Stats(ctx)
	},
	"reward.record": func(ctx context.Context, h *Harness, args ir.Object) (any, error) {
		total, err := h.rewards.Record(ctx, principal(args, "user"), args.String("kind"),
			uint32(args.Int("points")))
		return map[string]uint64{"total_points": total}, err
	},
	"reward.show": func(ctx context.Context, h *Harness, args ir.Object) (any, error) {
		return h.rewards.Rewards(ctx, principal(args, "user"))
	},
	"reward.history": func(ctx context.Context, h *Harness, args ir.Object) (any, error) {
		return h.rewards.History(ctx, principal(args, "user"), limit(args))
	},
	"reward.claim": func(ctx context.Context, h *Harness, args ir.Object) (any, error) {
		amount, err := h.rewards.Claim(ctx, principal(args, "user"))
		return map[string]uint64{"amount": amount}, err
	},
	"trade.execute": func(ctx context.Context, h *Harness, args ir.Object) (any, error) {
		id, err := h.trading.Execute(ctx, principal(args, "trader"), args.String("pair"),
			args.Int("amount"), args.Int("price"), args.Bool("is_buy"))
		return idResult(id), err
	},
	"trade.list": func(ctx context.Context, h *Harness, args ir.Object) (any, error) {
		return h.trading.ListByTrader(ctx, principal(args, "trader"), limit(args))
	},
	"trade.stats": func(ctx context.Context, h *Harness, _ ir.Object) (any, error) {
		return h.trading.Stats(ctx)
	},
	"stream.stats": func(ctx context.Context, h *Harness, args ir.Object) (any, error) {
		return h.engine.Stats(ctx, args.String("stream"))
	},
}

// Calls returns the step names a scenario may use.
func Calls() []string {
	names := make([]string, 0, len(calls))
	for name := range calls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with the built-in
// schema. The returned error covers setup failures only; failed
// expectations and assertions are reported in Result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	h, err := newHarness(ctx, scenario)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	result := NewResult()
	for i, step := range scenario.Steps {
		event, err := h.runStep(ctx, int64(i+1), step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Call, err)
		}
		result.AddTrace(event)

		if step.Expect != nil {
			if msg := checkExpect(step.Expect, event); msg != "" {
				result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Call, msg))
			}
		} else if event.Outcome != OutcomeOK {
			result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error %s", i, step.Call, event.Outcome))
		}
	}

	for i, a := range scenario.Assertions {
		if err := h.evaluate(ctx, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d] %s: %v", i, a.Type, err))
		}
	}

	return result, nil
}

func newHarness(ctx context.Context, scenario *Scenario) (*Harness, error) {
	cfg, err := schema.Default()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	principals := make([]ir.Principal, 0, len(scenario.Principals))
	for _, p := range scenario.Principals {
		principals = append(principals, ir.Principal(p))
	}
	issuers := make([]ir.Principal, 0, len(scenario.Issuers))
	for _, p := range scenario.Issuers {
		issuers = append(issuers, ir.Principal(p))
	}

	eng, err := engine.New(st, cfg,
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithAuthorizer(auth.NewStatic(principals...)),
		engine.WithLogger(testutil.DiscardLogger()),
		engine.WithCallIDs(testutil.FixedCallIDs("harness-"+scenario.Name)),
	)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}
	if err := eng.Init(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("init engine: %w", err)
	}

	return &Harness{
		store:     st,
		engine:    eng,
		academy:   academy.New(eng, issuers...),
		messaging: messaging.New(eng),
		rewards:   rewards.New(eng),
		trading:   trading.New(eng),
	}, nil
}

// runStep calls the step's operation. Engine errors become the event's
// outcome; anything else is returned.
func (h *Harness) runStep(ctx context.Context, seq int64, step Step) (TraceEvent, error) {
	event := TraceEvent{Seq: seq, Call: step.Call}

	if len(step.Args) > 0 {
		args, err := toObject(step.Args)
		if err != nil {
			return event, fmt.Errorf("args: %w", err)
		}
		event.Args = args
	}

	out, err := calls[step.Call](ctx, h, event.Args)
	if err != nil {
		code := engine.CodeOf(err)
		if code == "" {
			return event, err
		}
		event.Outcome = string(code)
		return event, nil
	}

	event.Outcome = OutcomeOK
	if out != nil {
		v, err := toValue(out)
		if err != nil {
			return event, fmt.Errorf("result: %w", err)
		}
		event.Result = v
	}
	return event, nil
}

// checkExpect returns a description of the mismatch, or "" if the event
// meets the expectation.
func checkExpect(expect *Expect, event TraceEvent) string {
	want := expect.Error
	if want == "" {
		want = OutcomeOK
	}
	if event.Outcome != want {
		return fmt.Sprintf("expected outcome %s, got %s", want, event.Outcome)
	}
	if expect.Result == nil {
		return ""
	}

	expected, err := ir.FromGo(expect.Result)
	if err != nil {
		return fmt.Sprintf("invalid expected result: %v", err)
	}
	if event.Result == nil {
		return "expected a result, got none"
	}
	if !matchValue(expected, event.Result) {
		return fmt.Sprintf("result mismatch: expected %s, got %s", render(expected), render(event.Result))
	}
	return ""
}

func principal(args ir.Object, key string) ir.Principal {
	return ir.Principal(args.String(key))
}

// limit reads the "limit" argument. An absent limit is unlimited; zero
// or a negative value yields no records.
func limit(args ir.Object) uint32 {
	v, ok := args["limit"]
	if !ok {
		return math.MaxUint32
	}
	n, _ := v.(ir.Int)
	switch {
	case n <= 0:
		return 0
	case n > math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(n)
}

func idResult(id uint64) map[string]uint64 {
	return map[string]uint64{"id": id}
}

func toObject(m map[string]interface{}) (ir.Object, error) {
	v, err := ir.FromGo(m)
	if err != nil {
		return nil, err
	}
	return v.(ir.Object), nil
}

// toValue converts a service result into a Value through its JSON form.
func toValue(v any) (ir.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return ir.ParseValue(data)
}

func render(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}
