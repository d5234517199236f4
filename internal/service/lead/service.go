package lead

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"salesbridge-service/internal/domain/conversation"
	"salesbridge-service/internal/domain/message"
	"salesbridge-service/internal/gateway/salescrm"
	xerrors "salesbridge-service/internal/pkg/errors"
)

// programPattern pulls program codes out of the descriptor notes the
// sale flow writes ("Codigo programa: X").
var programPattern = regexp.MustCompile(`(?i)Codigo\s+programa\s*:\s*([^\r\n]+)`)

// rankLabels maps CRM rank codes to the operator-facing wording used
// in the confirmation note.
var rankLabels = map[string]string{
	"COOL": "Poco Prometedora",
	"WARM": "Medianamente Prometedora",
	"HOT":  "Prometedora",
}

// CRM reads and patches leads.
type CRM interface {
	GetLead(ctx context.Context, leadNumber string) (*salescrm.Lead, error)
	UpdateLead(ctx context.Context, leadID string, fields map[string]any) error
}

// Platform posts progress notes back into the conversation.
type Platform interface {
	AddNote(ctx context.Context, conversationID, content string) error
}

// ConversationStore resolves which lead a conversation belongs to.
type ConversationStore interface {
	LatestByProgramAndRemote(ctx context.Context, programCode, remoteID string) (*conversation.Conversation, error)
	DistinctLeadIDs(ctx context.Context, remoteID string) ([]string, error)
}

// NoteStore reads mirrored notes for program-code extraction.
type NoteStore interface {
	ListNotes(ctx context.Context, conversationID string) ([]*message.Record, error)
}

// UpdateRequest classifies the lead behind a conversation.
type UpdateRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	Stage          string `json:"stage" binding:"required"`
	Comment        string `json:"comment"`
	ProgramCode    string `json:"program_code"`
}

// UpdateResult is the structured outcome. A converted lead or an
// ambiguous lead mapping are expected business results, not errors.
type UpdateResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	LeadID       string `json:"lead_id,omitempty"`
	Stage        string `json:"stage,omitempty"`
	CommentAdded string `json:"comment_added,omitempty"`
}

type Service struct {
	crm           CRM
	platform      Platform
	conversations ConversationStore
	notes         NoteStore
	logger        *zap.Logger
	now           func() time.Time
}

func NewService(crm CRM, platform Platform, conversations ConversationStore, notes NoteStore, logger *zap.Logger) *Service {
	return &Service{
		crm:           crm,
		platform:      platform,
		conversations: conversations,
		notes:         notes,
		logger:        logger,
		now:           time.Now,
	}
}

// Update resolves the lead for a conversation, appends the dated
// comment to its observations and moves it to the requested stage.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (*UpdateResult, error) {
	leadNumber, failure := s.resolveLeadNumber(ctx, req)
	if failure != nil {
		return failure, nil
	}

	lead, err := s.crm.GetLead(ctx, leadNumber)
	if err != nil {
		s.postNote(ctx, req.ConversationID, "Error al actualizar el lead\n Mensaje de error: "+err.Error())
		return &UpdateResult{
			Message: fmt.Sprintf("lead %s lookup failed: %v", leadNumber, err),
			LeadID:  leadNumber,
		}, nil
	}

	if lead.StatusCode == "CONVERTED" {
		s.postNote(ctx, req.ConversationID,
			"No se pudo actualizar el lead porque ya fue convertido previamente en el CRM.")
		return &UpdateResult{
			Message: fmt.Sprintf("lead %s is already converted", leadNumber),
			LeadID:  leadNumber,
		}, nil
	}

	newComment := ""
	if req.Comment != "" {
		newComment = s.now().Format("02.01.2006") + " - " + req.Comment
	}
	observations := concatObservations(lead.Observations, newComment)

	body := map[string]any{
		"StatusCode":              "QUALIFIED",
		"CTRActividades_c":        "Contacto vIa Mail",
		"CTRObservacionesActiv_c": observations,
	}
	if req.Stage == "QUALIFIED" {
		body["StatusCode"] = req.Stage
	} else {
		body["Rank"] = req.Stage
	}

	if err := s.crm.UpdateLead(ctx, lead.LeadID, body); err != nil {
		s.postNote(ctx, req.ConversationID, "Error al actualizar el lead\n Mensaje de error: "+err.Error())
		return &UpdateResult{
			Message: fmt.Sprintf("lead %s update failed: %v", leadNumber, err),
			LeadID:  leadNumber,
		}, nil
	}

	s.postNote(ctx, req.ConversationID, fmt.Sprintf(
		"Se clasificó correctamente en el CRM.\nNueva Clasificación: %s.\nObservación agregada: %s",
		stageLabel(req.Stage), newComment))

	return &UpdateResult{
		Success:      true,
		Message:      fmt.Sprintf("lead %s updated", leadNumber),
		LeadID:       leadNumber,
		Stage:        req.Stage,
		CommentAdded: newComment,
	}, nil
}

// resolveLeadNumber walks the resolution cascade: explicit program
// code, program code recovered from the conversation's notes, then the
// lead ids recorded on the conversation's own rows. More than one
// candidate is an ambiguity the caller must resolve, never a guess.
func (s *Service) resolveLeadNumber(ctx context.Context, req UpdateRequest) (string, *UpdateResult) {
	programCode := req.ProgramCode

	if programCode == "" {
		codes := s.programCodesFromNotes(ctx, req.ConversationID)
		if len(codes) > 1 {
			return "", &UpdateResult{
				Message: fmt.Sprintf("multiple program codes found in conversation notes: %s", strings.Join(codes, ", ")),
			}
		}
		if len(codes) == 1 {
			programCode = codes[0]
		}
	}

	if programCode != "" {
		row, err := s.conversations.LatestByProgramAndRemote(ctx, programCode, req.ConversationID)
		if err != nil {
			if errors.Is(err, xerrors.ErrNotFound) {
				// Explicit code with no matching row is a caller error;
				// a note-derived code falls through to the lead-id scan.
				if req.ProgramCode != "" {
					return "", &UpdateResult{
						Message: fmt.Sprintf("no conversation row for program %q and conversation %q", programCode, req.ConversationID),
					}
				}
			} else {
				s.logger.Warn("program row lookup failed", zap.Error(err))
			}
		} else {
			if row.LeadID == nil || *row.LeadID == "" {
				return "", &UpdateResult{Message: "the matching conversation row has no lead id"}
			}
			return *row.LeadID, nil
		}
	}

	leadIDs, err := s.conversations.DistinctLeadIDs(ctx, req.ConversationID)
	if err != nil {
		s.logger.Warn("lead id scan failed", zap.Error(err))
		return "", &UpdateResult{Message: "could not read conversation rows"}
	}
	switch len(leadIDs) {
	case 0:
		return "", &UpdateResult{Message: "no lead id associated with this conversation"}
	case 1:
		return leadIDs[0], nil
	default:
		return "", &UpdateResult{
			Message: fmt.Sprintf("multiple leads associated with this conversation: %s", strings.Join(leadIDs, ", ")),
		}
	}
}

func (s *Service) programCodesFromNotes(ctx context.Context, conversationID string) []string {
	notes, err := s.notes.ListNotes(ctx, conversationID)
	if err != nil {
		s.logger.Warn("note scan failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}

	var codes []string
	seen := make(map[string]struct{})
	for _, n := range notes {
		if n.Content == nil {
			continue
		}
		for _, match := range programPattern.FindAllStringSubmatch(*n.Content, -1) {
			code := strings.TrimSpace(match[1])
			if code == "" {
				continue
			}
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			codes = append(codes, code)
		}
	}
	return codes
}

func (s *Service) postNote(ctx context.Context, conversationID, content string) {
	if err := s.platform.AddNote(ctx, conversationID, content); err != nil {
		s.logger.Warn("lead progress note failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

func concatObservations(old, added string) string {
	switch {
	case old != "" && added != "":
		return fmt.Sprintf("|%s \n|%s", old, added)
	case added != "":
		return added
	default:
		return old
	}
}

func stageLabel(stage string) string {
	if label, ok := rankLabels[stage]; ok {
		return label
	}
	return stage
}
