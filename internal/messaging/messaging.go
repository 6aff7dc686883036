// Package messaging stores direct messages between principals on the
// "messages" stream. Only a message's recipient may mark it read.
package messaging

import (
	"context"

	"github.com/roach88/tally/internal/auth"
	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/ir"
)

const (
	// Stream is the record stream messages are appended to.
	Stream = "messages"

	// FlagRead is the mutable flag set by MarkRead.
	FlagRead = "read"
)

// Message is one delivered message. Content lives off-engine; only its
// hash is recorded.
type Message struct {
	ID          uint64       `json:"id"`
	Sender      ir.Principal `json:"sender"`
	Recipient   ir.Principal `json:"recipient"`
	ContentHash string       `json:"content_hash"`
	SentAt      ir.Timestamp `json:"sent_at"`
	Read        bool         `json:"read"`
}

// Stats summarizes the messages stream.
type Stats struct {
	TotalMessages uint64 `json:"total_messages"`
	NextMessageID uint64 `json:"next_message_id"`
}

// Service sends and reads messages through an engine.
type Service struct {
	eng *engine.Engine
}

// New returns a Service.
func New(eng *engine.Engine) *Service {
	return &Service{eng: eng}
}

// Send records a message from sender to recipient and returns its id.
func (s *Service) Send(ctx context.Context, sender, recipient ir.Principal, contentHash string) (uint64, error) {
	sender, recipient = auth.Normalize(sender), auth.Normalize(recipient)
	var id uint64
	err := s.eng.Do(ctx, "message.send", func(tx *engine.Tx) error {
		if err := tx.Authorize(sender); err != nil {
			return err
		}
		if recipient == "" {
			return &engine.Error{Code: engine.CodeInvalidArgument, Message: "recipient is required", Stream: Stream}
		}
		r, err := tx.Append(Stream, ir.Actors{Primary: sender, Secondary: recipient},
			ir.NewObject(ir.F("content_hash", ir.String(contentHash))))
		id = r.ID
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// MarkRead marks message id read on behalf of user, who must be its
// recipient. Marking an already read message succeeds.
func (s *Service) MarkRead(ctx context.Context, user ir.Principal, id uint64) error {
	user = auth.Normalize(user)
	return s.eng.Mutate(ctx, Stream, id, user, func(r ir.Record) ir.Record {
		if r.Flags == nil {
			r.Flags = map[string]bool{}
		}
		r.Flags[FlagRead] = true
		return r
	})
}

// List returns up to limit messages user sent or received, newest first.
func (s *Service) List(ctx context.Context, user ir.Principal, limit uint32) ([]Message, error) {
	user = auth.Normalize(user)
	records, err := s.eng.Query(ctx, Stream, user, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(records))
	for _, r := range records {
		out = append(out, fromRecord(r))
	}
	return out, nil
}

// UnreadCount returns how many messages addressed to user are unread.
func (s *Service) UnreadCount(ctx context.Context, user ir.Principal) (uint64, error) {
	user = auth.Normalize(user)
	var n uint64
	err := s.eng.View(ctx, "message.unread", func(tx *engine.Tx) error {
		var err error
		n, err = tx.Count(Stream, func(r ir.Record) bool {
			return r.Actors.Secondary == user && !r.Flag(FlagRead)
		})
		return err
	})
	return n, err
}

// Stats returns message totals.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.eng.Stats(ctx, Stream)
	if err != nil {
		return Stats{}, err
	}
	return Stats{TotalMessages: st.TotalCount, NextMessageID: st.NextID}, nil
}

func fromRecord(r ir.Record) Message {
	return Message{
		ID:          r.ID,
		Sender:      r.Actors.Primary,
		Recipient:   r.Actors.Secondary,
		ContentHash: r.Payload.String("content_hash"),
		SentAt:      r.CreatedAt,
		Read:        r.Flag(FlagRead),
	}
}
