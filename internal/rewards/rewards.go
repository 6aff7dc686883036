// Package rewards records social engagement on the "engagements" stream
// and keeps each user's points in the "points" ledger.
package rewards

import (
	"context"

	"github.com/roach88/tally/internal/auth"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/ir"
)

const (
	// Stream is the record stream engagements are appended to.
	Stream = "engagements"

	// Ledger holds per-user points.
	Ledger = "points"
)

// Engagement is one recorded activity.
type Engagement struct {
	ID         uint64       `json:"id"`
	User       ir.Principal `json:"user"`
	Kind       string       `json:"kind"`
	Points     uint32       `json:"points"`
	RecordedAt ir.Timestamp `json:"recorded_at"`
}

// Rewards is a user's standing in the points ledger.
type Rewards struct {
	User        ir.Principal `json:"user"`
	TotalPoints uint64       `json:"total_points"`
	Tier        uint32       `json:"tier"`
}

// Service records engagement and pays out tier rewards.
type Service struct {
	eng *engine.Engine
}

// New returns a Service.
func New(eng *engine.Engine) *Service {
	return &Service{eng: eng}
}

// Record appends an engagement for user and credits its points in the
// same execution. It returns the user's new total.
func (s *Service) Record(ctx context.Context, user ir.Principal, kind string, points uint32) (uint64, error) {
	user = auth.Normalize(user)
	var total uint64
	err := s.eng.Do(ctx, "reward.record", func(tx *engine.Tx) error {
		if err := tx.Authorize(user); err != nil {
			return err
		}
		if kind == "" {
			return &engine.Error{Code: engine.CodeInvalidArgument, Message: "engagement kind is required", Stream: Stream}
		}
		if _, err := tx.Append(Stream, ir.Actors{Primary: user}, ir.NewObject(
			ir.F("kind", ir.String(kind)),
			ir.F("points", ir.Int(points)),
		)); err != nil {
			return err
		}
		agg, err := tx.Contribute(Ledger, user, uint64(points))
		total = agg.Total
		return err
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Rewards returns user's points and tier. A user who never engaged has
// zero points at tier 1.
func (s *Service) Rewards(ctx context.Context, user ir.Principal) (Rewards, error) {
	user = auth.Normalize(user)
	agg, err := s.eng.Aggregate(ctx, Ledger, user)
	if err != nil {
		return Rewards{}, err
	}
	return Rewards{User: user, TotalPoints: agg.Total, Tier: agg.Tier}, nil
}

// History returns up to limit of user's engagements, newest first.
func (s *Service) History(ctx context.Context, user ir.Principal, limit uint32) ([]Engagement, error) {
	user = auth.Normalize(user)
	records, err := s.eng.Query(ctx, Stream, user, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Engagement, 0, len(records))
	for _, r := range records {
		out = append(out, Engagement{
			ID:         r.ID,
			User:       r.Actors.Primary,
			Kind:       r.Payload.String("kind"),
			Points:     uint32(r.Payload.Int("points")),
			RecordedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// Claim spends user's tier reward and returns the amount.
// It fails with NOT_FOUND if the user never engaged.
func (s *Service) Claim(ctx context.Context, user ir.Principal) (uint64, error) {
	user = auth.Normalize(user)
	return s.eng.Claim(ctx, Ledger, user)
}
