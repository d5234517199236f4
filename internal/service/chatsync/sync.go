package chatsync

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"salesbridge-service/internal/domain/message"
	"salesbridge-service/internal/gateway/messaging"
)

// MessageSource is the paginated remote view of a conversation.
type MessageSource interface {
	ListMessages(ctx context.Context, conversationID string, page, limit int) ([]messaging.Message, error)
	ListNotes(ctx context.Context, conversationID string, page, limit int) ([]messaging.Note, error)
}

// RecordStore persists mirrored records.
type RecordStore interface {
	ExistingRemoteIDs(ctx context.Context, conversationID string) (map[string]struct{}, error)
	InsertBatch(ctx context.Context, records []*message.Record) (int, error)
}

// Syncer mirrors a conversation's messages and notes into the local
// store. Re-running it against unchanged remote data inserts nothing.
type Syncer struct {
	source   MessageSource
	store    RecordStore
	pageSize int
	maxPages int
	logger   *zap.Logger
}

func NewSyncer(source MessageSource, store RecordStore, pageSize, maxPages int, logger *zap.Logger) *Syncer {
	if pageSize <= 0 {
		pageSize = 200
	}
	if maxPages <= 0 {
		maxPages = 100
	}
	return &Syncer{
		source:   source,
		store:    store,
		pageSize: pageSize,
		maxPages: maxPages,
		logger:   logger,
	}
}

// Sync fetches both remote streams and inserts whatever is not stored
// yet, in one batch. It returns the total number of remote items seen
// and how many were new. A failure in one stream degrades to an empty
// result for that stream only.
func (s *Syncer) Sync(ctx context.Context, conversationID string) (total, inserted int, err error) {
	msgs := s.fetchMessages(ctx, conversationID)
	notes := s.fetchNotes(ctx, conversationID)
	total = len(msgs) + len(notes)

	existing, err := s.store.ExistingRemoteIDs(ctx, conversationID)
	if err != nil {
		return 0, 0, err
	}

	var batch []*message.Record
	for i := range msgs {
		m := &msgs[i]
		if m.ID == "" {
			continue
		}
		if _, ok := existing[m.ID]; ok {
			continue
		}
		batch = append(batch, messageRecord(conversationID, m))
		existing[m.ID] = struct{}{}
	}
	for i := range notes {
		n := &notes[i]
		if n.ID == "" {
			continue
		}
		if _, ok := existing[n.ID]; ok {
			continue
		}
		batch = append(batch, noteRecord(conversationID, n))
		existing[n.ID] = struct{}{}
	}

	if len(batch) == 0 {
		return total, 0, nil
	}

	// Insert oldest first so assigned row ids agree with the timeline
	// and break remote timestamp ties on read-back.
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].Before(batch[j]) })

	inserted, err = s.store.InsertBatch(ctx, batch)
	if err != nil {
		return total, 0, err
	}

	s.logger.Info("conversation synced",
		zap.String("conversation_id", conversationID),
		zap.Int("remote_total", total),
		zap.Int("inserted", inserted),
	)
	return total, inserted, nil
}

func (s *Syncer) fetchMessages(ctx context.Context, conversationID string) []messaging.Message {
	var all []messaging.Message
	for page := 0; page < s.maxPages; page++ {
		batch, err := s.source.ListMessages(ctx, conversationID, page, s.pageSize)
		if err != nil {
			s.logger.Warn("message stream failed, continuing with what we have",
				zap.String("conversation_id", conversationID),
				zap.Int("page", page),
				zap.Error(err),
			)
			return all
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		if len(batch) < s.pageSize {
			break
		}
	}
	return all
}

func (s *Syncer) fetchNotes(ctx context.Context, conversationID string) []messaging.Note {
	var all []messaging.Note
	for page := 0; page < s.maxPages; page++ {
		batch, err := s.source.ListNotes(ctx, conversationID, page, s.pageSize)
		if err != nil {
			s.logger.Warn("note stream failed, continuing with what we have",
				zap.String("conversation_id", conversationID),
				zap.Int("page", page),
				zap.Error(err),
			)
			return all
		}
		if len(batch) == 0 {
			break
		}
		all = append(all, batch...)
		if len(batch) < s.pageSize {
			break
		}
	}
	return all
}

func messageRecord(conversationID string, m *messaging.Message) *message.Record {
	return &message.Record{
		ConversationID:  conversationID,
		Kind:            message.KindMessage,
		Content:         strPtr(m.Text()),
		Direction:       strPtr(m.Direction),
		Sender:          strPtr(m.Sender()),
		RemoteMessageID: &m.ID,
		RemoteTS:        ParseRemoteTime(m.CreatedAt),
	}
}

func noteRecord(conversationID string, n *messaging.Note) *message.Record {
	direction := n.Type
	if direction == "" {
		direction = message.DirectionInternal
	}
	return &message.Record{
		ConversationID:  conversationID,
		Kind:            message.KindNote,
		Content:         strPtr(n.Content),
		Direction:       &direction,
		Sender:          strPtr(n.AgentID),
		RemoteMessageID: &n.ID,
		RemoteTS:        ParseRemoteTime(n.CreatedAt),
	}
}

var remoteTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
}

// ParseRemoteTime parses the platform timestamp best effort. Records
// with an unparseable timestamp are still stored, just unordered.
func ParseRemoteTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range remoteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
