// Package trading records executed trades on the "trades" stream and
// keeps total traded volume in the global "volume" ledger.
package trading

import (
	"context"

	"github.com/roach88/tally/internal/auth"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/ir"
)

const (
	// Stream is the record stream trades are appended to.
	Stream = "trades"

	// Ledger is the global volume ledger.
	Ledger = "volume"
)

// Trade is one executed trade. Amount and Price are in the pair's
// smallest units.
type Trade struct {
	ID         uint64       `json:"id"`
	Trader     ir.Principal `json:"trader"`
	Pair       string       `json:"pair"`
	Amount     int64        `json:"amount"`
	Price      int64        `json:"price"`
	IsBuy      bool         `json:"is_buy"`
	ExecutedAt ir.Timestamp `json:"executed_at"`
}

// Stats summarizes trading activity.
type Stats struct {
	TotalTrades uint64 `json:"total_trades"`
	TotalVolume uint64 `json:"total_volume"`
	LastTradeID uint64 `json:"last_trade_id"`
}

// Service executes trades through an engine.
type Service struct {
	eng *engine.Engine
}

// New returns a Service.
func New(eng *engine.Engine) *Service {
	return &Service{eng: eng}
}

// Execute records a trade by trader and adds its amount to the global
// volume. It returns the trade id.
func (s *Service) Execute(ctx context.Context, trader ir.Principal, pair string, amount, price int64, isBuy bool) (uint64, error) {
	trader = auth.Normalize(trader)
	var id uint64
	err := s.eng.Do(ctx, "trade.execute", func(tx *engine.Tx) error {
		if err := tx.Authorize(trader); err != nil {
			return err
		}
		switch {
		case pair == "":
			return &engine.Error{Code: engine.CodeInvalidArgument, Message: "pair is required", Stream: Stream}
		case amount <= 0:
			return &engine.Error{Code: engine.CodeInvalidArgument, Message: "amount must be positive", Stream: Stream}
		case price < 0:
			return &engine.Error{Code: engine.CodeInvalidArgument, Message: "price must not be negative", Stream: Stream}
		}
		r, err := tx.Append(Stream, ir.Actors{Primary: trader}, ir.NewObject(
			ir.F("pair", ir.String(pair)),
			ir.F("amount", ir.Int(amount)),
			ir.F("price", ir.Int(price)),
			ir.F("is_buy", ir.Bool(isBuy)),
		))
		if err != nil {
			return err
		}
		id = r.ID
		_, err = tx.Contribute(Ledger, trader, uint64(amount))
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Stats returns trade count, volume and the newest trade id.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := s.eng.View(ctx, "trade.stats", func(tx *engine.Tx) error {
		st, err := tx.Stats(Stream)
		if err != nil {
			return err
		}
		vol, err := tx.Aggregate(Ledger, "")
		if err != nil {
			return err
		}
		out = Stats{TotalTrades: st.TotalCount, TotalVolume: vol.Total, LastTradeID: st.LastID()}
		return nil
	})
	return out, err
}

// ListByTrader returns up to limit of trader's trades, newest first.
func (s *Service) ListByTrader(ctx context.Context, trader ir.Principal, limit uint32) ([]Trade, error) {
	trader = auth.Normalize(trader)
	records, err := s.eng.Query(ctx, Stream, trader, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Trade, 0, len(records))
	for _, r := range records {
		out = append(out, Trade{
			ID:         r.ID,
			Trader:     r.Actors.Primary,
			Pair:       r.Payload.String("pair"),
			Amount:     r.Payload.Int("amount"),
			Price:      r.Payload.Int("price"),
			IsBuy:      r.Payload.Bool("is_buy"),
			ExecutedAt: r.CreatedAt,
		})
	}
	return out, nil
}
