package assignment

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"salesbridge-service/internal/domain/conversation"
	"salesbridge-service/internal/domain/message"
	"salesbridge-service/internal/domain/salesrep"
	xerrors "salesbridge-service/internal/pkg/errors"
)

// Outcome status codes. All four paths of a reassignment request are
// visible results, never silent drops.
const (
	StatusOK            = "ok"
	StatusNotAuthorized = "not_authorized"
	StatusRepNotFound   = "rep_not_found"
	StatusMisconfigured = "rep_misconfigured"
	StatusGatewayError  = "gateway_error"
)

// authPattern recognizes authorization markers written by agents into
// conversation notes: "Vendedor" or "NuevoVendedor", optional name
// tokens, a colon, and the rep's numeric party number.
var authPattern = regexp.MustCompile(`(?:NuevoVendedor|Vendedor)\s*(?:-?\s*[^:]+)?\s*:\s*(\d+)`)

// NoteStore reads locally mirrored notes.
type NoteStore interface {
	ListNotes(ctx context.Context, conversationID string) ([]*message.Record, error)
}

// RepStore resolves sellers locally.
type RepStore interface {
	FindByPartyNumber(ctx context.Context, partyNumber int64) (*salesrep.SalesRep, error)
	FindByID(ctx context.Context, id int64) (*salesrep.SalesRep, error)
}

// RowStore locates and updates the owning local conversation row.
type RowStore interface {
	LatestByRemoteID(ctx context.Context, remoteID string) (*conversation.Conversation, error)
	UpdateRep(ctx context.Context, id int64, repID int64) error
}

// Platform performs the remote reassignment and progress note.
type Platform interface {
	AssignConversation(ctx context.Context, conversationID, agentExternalID string) error
	AddNote(ctx context.Context, conversationID, content string) error
}

// Syncer refreshes the local mirror before extraction.
type Syncer interface {
	Sync(ctx context.Context, conversationID string) (total, inserted int, err error)
}

// Result is the structured outcome of a reassignment request.
type Result struct {
	Status         string  `json:"status"`
	Message        string  `json:"message,omitempty"`
	AuthorizedReps []int64 `json:"authorized_reps"`
	AssignedRep    int64   `json:"assigned_rep,omitempty"`
	PreviousRep    *int64  `json:"previous_rep,omitempty"`
	SyncedTotal    int     `json:"synced_total"`
	SyncedNew      int     `json:"synced_new"`
}

type Service struct {
	notes    NoteStore
	reps     RepStore
	rows     RowStore
	platform Platform
	syncer   Syncer
	logger   *zap.Logger
}

func NewService(notes NoteStore, reps RepStore, rows RowStore, platform Platform, syncer Syncer, logger *zap.Logger) *Service {
	return &Service{
		notes:    notes,
		reps:     reps,
		rows:     rows,
		platform: platform,
		syncer:   syncer,
		logger:   logger,
	}
}

// ExtractAuthorizedReps syncs the conversation first, then scans every
// mirrored note for authorization markers. The result preserves
// first-seen order and contains no duplicates.
func (s *Service) ExtractAuthorizedReps(ctx context.Context, conversationID string) ([]int64, int, int, error) {
	total, inserted, err := s.syncer.Sync(ctx, conversationID)
	if err != nil {
		s.logger.Warn("pre-extraction sync failed, extracting from existing mirror",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}

	notes, err := s.notes.ListNotes(ctx, conversationID)
	if err != nil {
		return nil, total, inserted, err
	}

	return ExtractFromNotes(notes), total, inserted, nil
}

// ExtractFromNotes applies the marker pattern to note bodies.
func ExtractFromNotes(notes []*message.Record) []int64 {
	seen := make(map[int64]struct{})
	var ordered []int64
	for _, n := range notes {
		if n.Content == nil {
			continue
		}
		for _, match := range authPattern.FindAllStringSubmatch(*n.Content, -1) {
			id, err := strconv.ParseInt(match[1], 10, 64)
			if err != nil {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ordered = append(ordered, id)
		}
	}
	return ordered
}

// Assign hands the conversation to the requested rep if and only if
// that rep was authorized in the conversation's notes.
func (s *Service) Assign(ctx context.Context, conversationID string, requestedRep int64) (*Result, error) {
	authorized, total, inserted, err := s.ExtractAuthorizedReps(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	result := &Result{
		AuthorizedReps: authorized,
		SyncedTotal:    total,
		SyncedNew:      inserted,
	}

	if !contains(authorized, requestedRep) {
		result.Status = StatusNotAuthorized
		result.Message = fmt.Sprintf("rep %d is not authorized in this conversation", requestedRep)
		return result, nil
	}

	rep, err := s.reps.FindByPartyNumber(ctx, requestedRep)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			result.Status = StatusRepNotFound
			result.Message = fmt.Sprintf("no local rep with party number %d", requestedRep)
			return result, nil
		}
		return nil, err
	}
	if rep.ExternalID == nil || *rep.ExternalID == "" {
		result.Status = StatusMisconfigured
		result.Message = fmt.Sprintf("rep %d has no messaging platform id", requestedRep)
		return result, nil
	}

	if err := s.platform.AssignConversation(ctx, conversationID, *rep.ExternalID); err != nil {
		result.Status = StatusGatewayError
		result.Message = "remote reassignment failed: " + err.Error()
		return result, nil
	}

	result.Status = StatusOK
	result.AssignedRep = requestedRep

	prev := s.recordHandover(ctx, conversationID, rep)
	result.PreviousRep = prev
	return result, nil
}

// recordHandover posts the transition note and points the owning local
// row at the new rep. Both are best effort once the remote
// reassignment succeeded.
func (s *Service) recordHandover(ctx context.Context, conversationID string, newRep *salesrep.SalesRep) *int64 {
	var prev *salesrep.SalesRep
	var rowID int64
	if row, err := s.rows.LatestByRemoteID(ctx, conversationID); err == nil {
		rowID = row.ID
		if row.RepID != nil {
			if p, err := s.reps.FindByID(ctx, *row.RepID); err == nil {
				prev = p
			}
		}
	} else if !errors.Is(err, xerrors.ErrNotFound) {
		s.logger.Warn("owning conversation row lookup failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}

	if err := s.platform.AddNote(ctx, conversationID, handoverNote(prev, newRep)); err != nil {
		s.logger.Warn("handover note failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}

	if rowID != 0 {
		if err := s.rows.UpdateRep(ctx, rowID, newRep.ID); err != nil {
			s.logger.Warn("conversation rep update failed",
				zap.Int64("row_id", rowID), zap.Error(err))
		}
	}

	if prev != nil {
		pn := prev.PartyNumber
		return &pn
	}
	return nil
}

func handoverNote(prev, next *salesrep.SalesRep) string {
	nextLabel := describeRep(next)
	if prev == nil {
		return fmt.Sprintf("Conversación reasignada al vendedor %s por solicitud autorizada en la conversación.", nextLabel)
	}
	return fmt.Sprintf("Conversación reasignada del vendedor %s al vendedor %s por solicitud autorizada en la conversación.",
		describeRep(prev), nextLabel)
}

func describeRep(r *salesrep.SalesRep) string {
	if name := r.FullName(); name != "" {
		return fmt.Sprintf("%s (%d)", name, r.PartyNumber)
	}
	return strconv.FormatInt(r.PartyNumber, 10)
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
