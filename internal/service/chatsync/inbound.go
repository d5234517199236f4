package chatsync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"salesbridge-service/internal/domain/conversation"
	"salesbridge-service/internal/domain/person"
	"salesbridge-service/internal/domain/salesrep"
	"salesbridge-service/internal/gateway/messaging"
	xerrors "salesbridge-service/internal/pkg/errors"
)

// PersonStore is the slice of the local store the inbound flow needs.
type PersonStore interface {
	FindByPhone(ctx context.Context, phone string) (*person.Person, error)
	FindByMessagingID(ctx context.Context, messagingID string) (*person.Person, error)
	Create(ctx context.Context, p *person.Person) error
}

// RepStore resolves sellers from the platform agent id.
type RepStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*salesrep.SalesRep, error)
}

// ConversationStore records conversation event rows.
type ConversationStore interface {
	Insert(ctx context.Context, c *conversation.Conversation) error
	LatestByRemoteID(ctx context.Context, remoteID string) (*conversation.Conversation, error)
	PreviousForPerson(ctx context.Context, personID, excludeID int64) (*conversation.Conversation, error)
	UpdateState(ctx context.Context, id int64, state string) error
	TouchSync(ctx context.Context, id int64, lastSync, nextSync time.Time) error
}

// Platform is the remote surface the inbound flow touches.
type Platform interface {
	GetConversation(ctx context.Context, conversationID string) (*messaging.Conversation, error)
	GetPerson(ctx context.Context, personID string) (*messaging.Person, error)
	CreatePerson(ctx context.Context, phone, personType string) (string, error)
}

// InboundEvent is a channel-side notification that a conversation saw
// activity: a webhook payload, not an operator request.
type InboundEvent struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	PhoneFrom      string `json:"phone_from"`
	PhoneTo        string `json:"phone_to"`
	PersonRemoteID string `json:"person_remote_id"`
	State          string `json:"state"`
}

// InboundResult reports what the inbound flow recorded.
type InboundResult struct {
	ConversationID string `json:"conversation_id"`
	Phone          string `json:"phone"`
	PersonID       int64  `json:"person_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	RemoteTotal    int    `json:"remote_total"`
	NewInserted    int    `json:"new_inserted"`
	ClosedPrevious bool   `json:"closed_previous"`
}

// Inbound handles platform-originated conversation activity: it keeps
// the local projection current when traffic starts on the channel side
// rather than from a sale event.
type Inbound struct {
	people        PersonStore
	reps          RepStore
	conversations ConversationStore
	platform      Platform
	syncer        *Syncer
	serviceNumber string
	logger        *zap.Logger
}

func NewInbound(people PersonStore, reps RepStore, conversations ConversationStore, platform Platform, syncer *Syncer, serviceNumber string, logger *zap.Logger) *Inbound {
	return &Inbound{
		people:        people,
		reps:          reps,
		conversations: conversations,
		platform:      platform,
		syncer:        syncer,
		serviceNumber: serviceNumber,
		logger:        logger,
	}
}

// Handle processes one inbound event: resolve the customer, record the
// conversation row, close the person's superseded conversation after a
// final sync pass, then mirror the new conversation's history.
func (s *Inbound) Handle(ctx context.Context, ev InboundEvent) (*InboundResult, error) {
	if ev.ConversationID == "" {
		return nil, xerrors.ErrInvalidInput
	}

	phone := s.customerPhone(ev)
	state := ev.State
	if state == "" {
		state = conversation.StateOpen
	}

	p, err := s.resolvePerson(ctx, ev.PersonRemoteID, phone)
	if err != nil {
		return nil, err
	}

	var agentID string
	var repID *int64
	if remote, err := s.platform.GetConversation(ctx, ev.ConversationID); err == nil {
		agentID = remote.AgentID
		if remote.Status != "" {
			state = remote.Status
		}
	} else {
		s.logger.Warn("could not fetch remote conversation",
			zap.String("conversation_id", ev.ConversationID), zap.Error(err))
	}
	if agentID != "" {
		if rep, err := s.reps.FindByExternalID(ctx, agentID); err == nil {
			repID = &rep.ID
		}
	}

	row := &conversation.Conversation{
		RemoteID: ev.ConversationID,
		RepID:    repID,
		State:    &state,
	}
	if p != nil {
		row.PersonID = &p.ID
		row.Phone = &p.Phone
	} else if phone != "" {
		row.Phone = &phone
	}
	next := time.Now().Add(24 * time.Hour)
	row.NextSyncAt = &next

	if err := s.conversations.Insert(ctx, row); err != nil {
		return nil, err
	}

	result := &InboundResult{
		ConversationID: ev.ConversationID,
		Phone:          phone,
		AgentID:        agentID,
	}
	if p != nil {
		result.PersonID = p.ID
		result.ClosedPrevious = s.closeSuperseded(ctx, p.ID, row.ID, ev.ConversationID)
	}

	total, inserted, err := s.syncer.Sync(ctx, ev.ConversationID)
	if err != nil {
		s.logger.Warn("inbound sync failed",
			zap.String("conversation_id", ev.ConversationID), zap.Error(err))
	} else {
		now := time.Now()
		if err := s.conversations.TouchSync(ctx, row.ID, now, now.Add(24*time.Hour)); err != nil {
			s.logger.Warn("sync timestamp update failed", zap.Int64("row_id", row.ID), zap.Error(err))
		}
	}
	result.RemoteTotal = total
	result.NewInserted = inserted

	return result, nil
}

// customerPhone picks the side of the exchange that is not our own
// service line.
func (s *Inbound) customerPhone(ev InboundEvent) string {
	if ev.PhoneFrom == s.serviceNumber {
		return ev.PhoneTo
	}
	if ev.PhoneTo == s.serviceNumber {
		return ev.PhoneFrom
	}
	return ev.PhoneFrom
}

// resolvePerson finds the customer by platform id, then by phone, and
// finally creates a minimal local record so the conversation row has
// an owner.
func (s *Inbound) resolvePerson(ctx context.Context, remoteID, phone string) (*person.Person, error) {
	if remoteID != "" {
		p, err := s.people.FindByMessagingID(ctx, remoteID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
		// The webhook may carry no phone; the remote profile does.
		if phone == "" {
			if remote, err := s.platform.GetPerson(ctx, remoteID); err == nil {
				phone = remote.PrimaryPhone()
			}
		}
	}

	if phone == "" {
		return nil, nil
	}

	p, err := s.people.FindByPhone(ctx, phone)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	messagingID := remoteID
	if messagingID == "" {
		if created, err := s.platform.CreatePerson(ctx, phone, "CUSTOMER"); err == nil {
			messagingID = created
		} else {
			s.logger.Warn("remote contact creation failed for inbound chat",
				zap.String("phone", phone), zap.Error(err))
		}
	}

	created := &person.Person{Phone: phone}
	if messagingID != "" {
		created.MessagingID = &messagingID
	}
	if err := s.people.Create(ctx, created); err != nil {
		return nil, err
	}
	return created, nil
}

// closeSuperseded marks the person's previous conversation CLOSED,
// syncing it one last time first so the hand-off loses no messages.
func (s *Inbound) closeSuperseded(ctx context.Context, personID, newRowID int64, newRemoteID string) bool {
	prev, err := s.conversations.PreviousForPerson(ctx, personID, newRowID)
	if err != nil {
		if !errors.Is(err, xerrors.ErrNotFound) {
			s.logger.Warn("previous conversation lookup failed", zap.Int64("person_id", personID), zap.Error(err))
		}
		return false
	}
	if prev.RemoteID == newRemoteID {
		return false
	}

	if _, _, err := s.syncer.Sync(ctx, prev.RemoteID); err != nil {
		s.logger.Warn("final sync before close failed",
			zap.String("conversation_id", prev.RemoteID), zap.Error(err))
	}
	if err := s.conversations.UpdateState(ctx, prev.ID, conversation.StateClosed); err != nil {
		s.logger.Warn("closing previous conversation failed",
			zap.Int64("row_id", prev.ID), zap.Error(err))
		return false
	}
	return true
}
