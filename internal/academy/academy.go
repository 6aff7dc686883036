// Package academy issues and verifies course credentials on the
// "credentials" stream.
package academy

import (
	"context"
	"math"
	"slices"

	"github.com/roach88/tally/internal/auth"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/ir"
)

// Stream is the record stream credentials are appended to.
const Stream = "credentials"

// Credential is one issued credential.
type Credential struct {
	ID          uint64       `json:"id"`
	Holder      ir.Principal `json:"holder"`
	Issuer      ir.Principal `json:"issuer"`
	CourseID    string       `json:"course_id"`
	Level       uint32       `json:"level"`
	MetadataURI string       `json:"metadata_uri"`
	IssuedAt    ir.Timestamp `json:"issued_at"`
}

// Stats summarizes the credentials stream.
type Stats struct {
	TotalIssued uint64 `json:"total_issued"`
	NextID      uint64 `json:"next_id"`
}

// Service issues credentials through an engine.
type Service struct {
	eng     *engine.Engine
	issuers []ir.Principal
}

// New returns a Service. When issuers is non-empty only those principals
// may issue; otherwise any authorized principal may.
func New(eng *engine.Engine, issuers ...ir.Principal) *Service {
	normalized := make([]ir.Principal, 0, len(issuers))
	for _, p := range issuers {
		normalized = append(normalized, auth.Normalize(p))
	}
	return &Service{eng: eng, issuers: normalized}
}

// Issue records a credential for holder, signed off by issuer.
// It returns the credential id.
func (s *Service) Issue(ctx context.Context, issuer, holder ir.Principal, courseID string, level uint32, metadataURI string) (uint64, error) {
	issuer, holder = auth.Normalize(issuer), auth.Normalize(holder)
	var id uint64
	err := s.eng.Do(ctx, "credential.issue", func(tx *engine.Tx) error {
		if err := tx.Authorize(issuer); err != nil {
			return err
		}
		if len(s.issuers) > 0 && !slices.Contains(s.issuers, issuer) {
			return &engine.Error{
				Code:    engine.CodeForbidden,
				Message: "not an accredited issuer",
				Stream:  Stream,
				Actor:   issuer,
			}
		}
		if courseID == "" {
			return &engine.Error{Code: engine.CodeInvalidArgument, Message: "course id is required", Stream: Stream}
		}
		r, err := tx.Append(Stream, ir.Actors{Primary: holder, Secondary: issuer}, ir.NewObject(
			ir.F("course_id", ir.String(courseID)),
			ir.F("level", ir.Int(level)),
			ir.F("metadata_uri", ir.String(metadataURI)),
		))
		id = r.ID
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListByHolder returns every credential held by holder, newest first.
func (s *Service) ListByHolder(ctx context.Context, holder ir.Principal) ([]Credential, error) {
	holder = auth.Normalize(holder)
	records, err := s.eng.Scan(ctx, Stream, func(r ir.Record) bool {
		return r.Actors.Primary == holder
	}, math.MaxUint32)
	if err != nil {
		return nil, err
	}
	out := make([]Credential, 0, len(records))
	for _, r := range records {
		out = append(out, fromRecord(r))
	}
	return out, nil
}

// Get returns the credential with id.
func (s *Service) Get(ctx context.Context, id uint64) (Credential, error) {
	r, err := s.eng.Get(ctx, Stream, id)
	if err != nil {
		return Credential{}, err
	}
	return fromRecord(r), nil
}

// Verify reports whether a credential with id was issued.
func (s *Service) Verify(ctx context.Context, id uint64) (bool, error) {
	_, err := s.eng.Get(ctx, Stream, id)
	if engine.IsNotFound(err) || engine.IsNotInitialized(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Stats returns issuance totals.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.eng.Stats(ctx, Stream)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalIssued: st.TotalCount, NextID: st.NextID}, nil
}

func fromRecord(r ir.Record) Credential {
	return Credential{
		ID:          r.ID,
		Holder:      r.Actors.Primary,
		Issuer:      r.Actors.Secondary,
		CourseID:    r.Payload.String("course_id"),
		Level:       uint32(r.Payload.Int("level")),
		MetadataURI: r.Payload.String("metadata_uri"),
		IssuedAt:    r.CreatedAt,
	}
}
