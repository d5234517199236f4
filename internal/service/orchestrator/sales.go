package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"salesbridge-service/internal/domain/conversation"
	"salesbridge-service/internal/domain/sale"
	"salesbridge-service/internal/domain/salesrep"
	"salesbridge-service/internal/gateway/messaging"
	xerrors "salesbridge-service/internal/pkg/errors"
	"salesbridge-service/internal/service/identity"
)

const conversationTag = "CRM"

// IdentityResolver reconciles the sale event against local contacts.
type IdentityResolver interface {
	Resolve(ctx context.Context, partyID, partyNumber *int64, reportedPhone string) (*identity.Resolution, error)
}

// PersonStore is the slice of the person store the flow writes to.
type PersonStore interface {
	UpdatePhone(ctx context.Context, id int64, phone string) error
	UpdateMessagingID(ctx context.Context, id int64, messagingID string) error
}

// RepStore resolves the seller driving the sale event.
type RepStore interface {
	FindByParty(ctx context.Context, partyID, partyNumber *int64) (*salesrep.SalesRep, error)
}

// ConversationStore records and inspects local conversation rows.
type ConversationStore interface {
	Insert(ctx context.Context, c *conversation.Conversation) error
	LatestByPerson(ctx context.Context, personID int64) (*conversation.Conversation, error)
	PreviousForPerson(ctx context.Context, personID, excludeID int64) (*conversation.Conversation, error)
	LeadSeen(ctx context.Context, leadID string) (bool, error)
	UpdateState(ctx context.Context, id int64, state string) error
}

// Platform is the messaging side of the flow.
type Platform interface {
	CreatePerson(ctx context.Context, phone, personType string) (string, error)
	UpdatePersonContact(ctx context.Context, personID string, phone, email *string) error
	GetConversation(ctx context.Context, conversationID string) (*messaging.Conversation, error)
	CreateConversation(ctx context.Context, topic, agentExternalID string) (*messaging.Conversation, error)
	AssignConversation(ctx context.Context, conversationID, agentExternalID string) error
	AddNote(ctx context.Context, conversationID, content string) error
	AddTag(ctx context.Context, conversationID, tagName string) error
	SendTemplate(ctx context.Context, conversationID string, tmpl messaging.Template) error
}

// CRM supplies display data and seller directory lookups.
type CRM interface {
	GetProgramName(ctx context.Context, programCode string) (string, error)
	GetContactName(ctx context.Context, document string) (string, error)
	GetResourcePartyNumber(ctx context.Context, partyID int64) (int64, error)
}

// Notifier delivers out-of-band failure reports to sellers.
type Notifier interface {
	Notify(to, subject, body string) bool
}

// ConversationSyncer mirrors a conversation before it is closed.
type ConversationSyncer interface {
	Sync(ctx context.Context, conversationID string) (total, inserted int, err error)
}

// Config carries the flow's fixed channel settings.
type Config struct {
	ServiceNumber   string
	WelcomeTemplate string
	TemplateLang    string
}

// Sales drives the whole outbound sale flow: identity reconciliation,
// conversation create-or-reassign, annotations, welcome template and
// the category tag.
type Sales struct {
	resolver      IdentityResolver
	people        PersonStore
	reps          RepStore
	conversations ConversationStore
	platform      Platform
	crm           CRM
	notifier      Notifier
	syncer        ConversationSyncer
	cfg           Config
	logger        *zap.Logger
}

func NewSales(
	resolver IdentityResolver,
	people PersonStore,
	reps RepStore,
	conversations ConversationStore,
	platform Platform,
	crm CRM,
	notifier Notifier,
	syncer ConversationSyncer,
	cfg Config,
	logger *zap.Logger,
) *Sales {
	return &Sales{
		resolver:      resolver,
		people:        people,
		reps:          reps,
		conversations: conversations,
		platform:      platform,
		crm:           crm,
		notifier:      notifier,
		syncer:        syncer,
		cfg:           cfg,
		logger:        logger,
	}
}

// ProcessSale runs one sale event end to end. Remote calls are made
// once each; hard failures come back as a structured outcome with the
// failing step, never as a panic or a bare error, and the seller is
// notified when an address is on file.
func (s *Sales) ProcessSale(ctx context.Context, ev sale.Event) (*sale.Outcome, error) {
	// The seller's party number drives agent resolution; backfill it
	// from the CRM directory when only the party id was sent.
	if ev.RepPartyNumber == nil && ev.RepPartyID != nil {
		if pn, err := s.crm.GetResourcePartyNumber(ctx, *ev.RepPartyID); err == nil {
			ev.RepPartyNumber = &pn
		} else {
			s.logger.Warn("rep party number lookup failed",
				zap.Int64("rep_party_id", *ev.RepPartyID), zap.Error(err))
		}
	}

	res, err := s.resolver.Resolve(ctx, ev.PartyID, ev.PartyNumber, ev.Phone)
	if err != nil {
		if errors.Is(err, identity.ErrNoUsableIdentity) {
			sent := s.notifyRep(ctx, ev, "No se pudo crear conversación", s.noIdentityBody(ctx, ev))
			return &sale.Outcome{
				FailureCode:      sale.FailNoUsableIdentity,
				Message:          "no usable identity: phone invalid and no CRM or phone match",
				NotificationSent: sent,
			}, nil
		}
		return nil, err
	}

	p := res.Person
	outcome := &sale.Outcome{
		PersonID:   p.ID,
		Annotation: res.Annotation,
	}

	// Remote identity must exist before any conversation work.
	if p.MessagingID == nil {
		if remoteID, err := s.platform.CreatePerson(ctx, p.Phone, "CUSTOMER"); err == nil && remoteID != "" {
			if err := s.people.UpdateMessagingID(ctx, p.ID, remoteID); err != nil {
				return nil, err
			}
			p.MessagingID = &remoteID
		}
	}
	if p.MessagingID == nil {
		sent := s.notifyRep(ctx, ev, "People sin identidad de mensajería", s.unsyncedBody(ev, p.Phone))
		outcome.FailureCode = sale.FailIdentityUnsynced
		outcome.Message = "person has no messaging platform identity"
		outcome.NotificationSent = sent
		return outcome, nil
	}
	outcome.RemotePersonID = *p.MessagingID

	// Deferred phone update, applied exactly once and only now that
	// the remote identity is known good.
	finalPhone := p.Phone
	if newPhone, ok := res.PendingPhone.Take(); ok {
		if err := s.platform.UpdatePersonContact(ctx, *p.MessagingID, &newPhone, nil); err != nil {
			sent := s.notifyRep(ctx, ev, "Error al actualizar teléfono", s.phoneUpdateBody(ev, finalPhone, newPhone))
			outcome.FailureCode = sale.FailPhoneUpdate
			outcome.Message = "remote phone update failed"
			outcome.NotificationSent = sent
			return outcome, nil
		}
		if err := s.people.UpdatePhone(ctx, p.ID, newPhone); err != nil {
			return nil, err
		}
		finalPhone = newPhone
		outcome.PhoneUpdated = true
	}
	outcome.Phone = finalPhone

	rep := s.findRep(ctx, ev)
	var agentExternalID, sellerName string
	var repID *int64
	if rep != nil {
		repID = &rep.ID
		sellerName = rep.FullName()
		if rep.ExternalID != nil {
			agentExternalID = *rep.ExternalID
		}
	}

	active, err := s.activeConversation(ctx, ev, p.ID)
	if err != nil {
		outcome.FailureCode = sale.FailGateway
		outcome.Message = "conversation lookup failed: " + err.Error()
		return outcome, nil
	}

	var conversationID string
	if active == nil {
		conversationID, err = s.openConversation(ctx, ev, res.Annotation, finalPhone, agentExternalID, sellerName, repID, p.ID, outcome)
		if err != nil {
			sent := s.notifyRep(ctx, ev, "No se pudo crear conversación", s.createFailedBody(ev, finalPhone, err))
			outcome.FailureCode = sale.FailGateway
			outcome.Message = "remote conversation creation failed"
			outcome.NotificationSent = sent
			return outcome, nil
		}
	} else {
		conversationID = s.reuseConversation(ctx, ev, active, res.Annotation, finalPhone, agentExternalID, sellerName, repID, p.ID, outcome)
	}
	outcome.ConversationID = conversationID

	// Category tag goes on regardless of which branch ran and of any
	// partial annotation failures above.
	if err := s.platform.AddTag(ctx, conversationID, conversationTag); err != nil {
		s.logger.Warn("conversation tagging failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}

	outcome.Success = true
	return outcome, nil
}

// activeConversation applies the explicit-id short circuit, then falls
// back to the person's latest local row checked against live state.
func (s *Sales) activeConversation(ctx context.Context, ev sale.Event, personID int64) (*messaging.Conversation, error) {
	if ev.ConversationID != "" {
		return s.platform.GetConversation(ctx, ev.ConversationID)
	}

	latest, err := s.conversations.LatestByPerson(ctx, personID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	remote, err := s.platform.GetConversation(ctx, latest.RemoteID)
	if err != nil {
		s.logger.Warn("live conversation state fetch failed, treating as inactive",
			zap.String("conversation_id", latest.RemoteID), zap.Error(err))
		return nil, nil
	}
	if conversation.IsActiveState(remote.Status) {
		return remote, nil
	}
	return nil, nil
}

func (s *Sales) openConversation(
	ctx context.Context,
	ev sale.Event,
	annotation, phone, agentExternalID, sellerName string,
	repID *int64,
	personID int64,
	outcome *sale.Outcome,
) (string, error) {
	topic := fmt.Sprintf("Dni: %s Telefono: %s Nombre: (completar)", ev.Document, phone)
	conv, err := s.platform.CreateConversation(ctx, topic, agentExternalID)
	if err != nil {
		return "", err
	}
	outcome.ConversationNew = true

	if s.shouldSendWelcome(ctx, ev.LeadID) {
		outcome.WelcomeSent = s.sendWelcome(ctx, conv.ID, phone, agentExternalID, sellerName, ev.ProgramCode)
	}

	s.annotate(ctx, conv.ID, ev, annotation, sellerName)

	row := s.newRow(conv.ID, personID, repID, conv.Status, phone, ev)
	if err := s.conversations.Insert(ctx, row); err != nil {
		return "", err
	}

	s.closeSuperseded(ctx, personID, row.ID, conv.ID)
	return conv.ID, nil
}

func (s *Sales) reuseConversation(
	ctx context.Context,
	ev sale.Event,
	active *messaging.Conversation,
	annotation, phone, agentExternalID, sellerName string,
	repID *int64,
	personID int64,
	outcome *sale.Outcome,
) string {
	s.annotate(ctx, active.ID, ev, annotation, sellerName)

	if agentExternalID != "" {
		if err := s.platform.AssignConversation(ctx, active.ID, agentExternalID); err != nil {
			s.logger.Warn("conversation reassignment failed",
				zap.String("conversation_id", active.ID), zap.Error(err))
		}
	}

	sendWelcome := s.shouldSendWelcome(ctx, ev.LeadID)

	row := s.newRow(active.ID, personID, repID, active.Status, phone, ev)
	if err := s.conversations.Insert(ctx, row); err != nil {
		s.logger.Error("local conversation row insert failed",
			zap.String("conversation_id", active.ID), zap.Error(err))
	}

	if sendWelcome {
		outcome.WelcomeSent = s.sendWelcome(ctx, active.ID, phone, agentExternalID, sellerName, ev.ProgramCode)
	}
	return active.ID
}

// shouldSendWelcome is the lead-scoped idempotence guard: one welcome
// template per lead id, ever, across conversation ids.
func (s *Sales) shouldSendWelcome(ctx context.Context, leadID string) bool {
	if leadID == "" {
		return true
	}
	seen, err := s.conversations.LeadSeen(ctx, leadID)
	if err != nil {
		s.logger.Warn("lead lookup failed, sending welcome anyway", zap.String("lead_id", leadID), zap.Error(err))
		return true
	}
	return !seen
}

func (s *Sales) sendWelcome(ctx context.Context, conversationID, phone, agentExternalID, sellerName, programCode string) bool {
	programName := ""
	if programCode != "" {
		if name, err := s.crm.GetProgramName(ctx, programCode); err == nil {
			programName = name
		}
	}

	err := s.platform.SendTemplate(ctx, conversationID, messaging.Template{
		From:     s.cfg.ServiceNumber,
		To:       phone,
		Name:     s.cfg.WelcomeTemplate,
		Language: s.cfg.TemplateLang,
		Parameters: map[string]string{
			"{{1}}": sellerName,
			"{{2}}": programName,
		},
		AgentID: agentExternalID,
	})
	if err != nil {
		s.logger.Warn("welcome template send failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return false
	}
	return true
}

// annotate posts the three standard notes: the reconciliation comment,
// the program descriptor and the vendor identity. Each is best effort.
func (s *Sales) annotate(ctx context.Context, conversationID string, ev sale.Event, annotation, sellerName string) {
	if annotation != "" {
		s.addNote(ctx, conversationID, annotation)
	}

	if ev.ProgramCode != "" {
		programName, _ := s.crm.GetProgramName(ctx, ev.ProgramCode)
		contactName, _ := s.crm.GetContactName(ctx, ev.Document)
		note := fmt.Sprintf("Dni Cliente: %s\nNombre Cliente: %s\nCodigo programa: %s\nNombre Programa: %s",
			ev.Document, contactName, ev.ProgramCode, programName)
		s.addNote(ctx, conversationID, note)
	}

	if ev.RepPartyNumber != nil {
		if sellerName != "" {
			s.addNote(ctx, conversationID, fmt.Sprintf("Vendedor - %s: %d", sellerName, *ev.RepPartyNumber))
		} else {
			s.addNote(ctx, conversationID, fmt.Sprintf("Vendedor:%d", *ev.RepPartyNumber))
		}
	}
}

func (s *Sales) addNote(ctx context.Context, conversationID, content string) {
	if err := s.platform.AddNote(ctx, conversationID, content); err != nil {
		s.logger.Warn("note append failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

func (s *Sales) newRow(remoteID string, personID int64, repID *int64, state, phone string, ev sale.Event) *conversation.Conversation {
	row := &conversation.Conversation{
		RemoteID: remoteID,
		PersonID: &personID,
		RepID:    repID,
		Phone:    &phone,
	}
	if state != "" {
		row.State = &state
	}
	if ev.ProgramCode != "" {
		row.ProgramCode = &ev.ProgramCode
	}
	if ev.LeadID != "" {
		row.LeadID = &ev.LeadID
	}
	return row
}

// closeSuperseded closes the person's previous conversation under a
// different remote id, after one last sync pass.
func (s *Sales) closeSuperseded(ctx context.Context, personID, newRowID int64, newRemoteID string) {
	prev, err := s.conversations.PreviousForPerson(ctx, personID, newRowID)
	if err != nil {
		if !errors.Is(err, xerrors.ErrNotFound) {
			s.logger.Warn("previous conversation lookup failed",
				zap.Int64("person_id", personID), zap.Error(err))
		}
		return
	}
	if prev.RemoteID == newRemoteID {
		return
	}
	if prev.State != nil && *prev.State == conversation.StateClosed {
		return
	}

	if _, _, err := s.syncer.Sync(ctx, prev.RemoteID); err != nil {
		s.logger.Warn("final sync before close failed",
			zap.String("conversation_id", prev.RemoteID), zap.Error(err))
	}
	if err := s.conversations.UpdateState(ctx, prev.ID, conversation.StateClosed); err != nil {
		s.logger.Warn("closing superseded conversation failed",
			zap.Int64("row_id", prev.ID), zap.Error(err))
	}
}

func (s *Sales) findRep(ctx context.Context, ev sale.Event) *salesrep.SalesRep {
	if ev.RepPartyID == nil && ev.RepPartyNumber == nil {
		return nil
	}
	rep, err := s.reps.FindByParty(ctx, ev.RepPartyID, ev.RepPartyNumber)
	if err != nil {
		if !errors.Is(err, xerrors.ErrNotFound) {
			s.logger.Warn("rep lookup failed", zap.Error(err))
		}
		return nil
	}
	return rep
}

// notifyRep emails the seller behind the event when an address is on
// file. The return value only feeds the outcome; failures never stop
// the flow.
func (s *Sales) notifyRep(ctx context.Context, ev sale.Event, reason, body string) bool {
	rep := s.findRep(ctx, ev)
	if rep == nil || rep.Email == nil || *rep.Email == "" {
		return false
	}
	subject := fmt.Sprintf("Notificación CRM - Cliente DNI: %s - %s", ev.Document, reason)
	return s.notifier.Notify(*rep.Email, subject, body)
}

func (s *Sales) noIdentityBody(ctx context.Context, ev sale.Event) string {
	programName := ""
	if ev.ProgramCode != "" {
		programName, _ = s.crm.GetProgramName(ctx, ev.ProgramCode)
	}
	return fmt.Sprintf(
		"No fue posible crear la conversación para el cliente con DNI: %s\n\n"+
			"Teléfono enviado por el CRM: %s (INVÁLIDO)\n"+
			"Nombre del programa: %s\n"+
			"Codigo del programa: %s\n"+
			"Motivo: No se encontró ningún registro (ni por CRM ni por Teléfono enviado por el postulante)\n"+
			"Acción requerida: Por favor verificar y corregir el número de teléfono del cliente en CRM.\n"+
			"Debe generar la conversacion manualmente, no se generara automaticamente\n",
		ev.Document, identity.NormalizePhone(ev.Phone), programName, ev.ProgramCode)
}

func (s *Sales) unsyncedBody(ev sale.Event, phone string) string {
	return fmt.Sprintf(
		"ERROR: No se pudo crear la conversación\n\n"+
			"Motivo: El cliente no tiene identidad sincronizada en la plataforma de mensajería.\n\n"+
			"DNI: %s\nTeléfono: %s\nCódigo CRM: %s\nLead ID: %s\n\n"+
			"Acción requerida: Ejecutar la sincronización de contactos.",
		ev.Document, phone, ev.ProgramCode, ev.LeadID)
}

func (s *Sales) phoneUpdateBody(ev sale.Event, oldPhone, newPhone string) string {
	return fmt.Sprintf(
		"ERROR: No se pudo crear la conversación\n\n"+
			"Motivo: Falló la actualización del teléfono en la plataforma de mensajería.\n\n"+
			"DNI: %s\nTeléfono anterior: %s\nTeléfono nuevo (no se pudo actualizar): %s\n\n"+
			"Acción requerida: Actualizar manualmente el teléfono del cliente.",
		ev.Document, oldPhone, newPhone)
}

func (s *Sales) createFailedBody(ev sale.Event, phone string, err error) string {
	return fmt.Sprintf(
		"ERROR: No se pudo crear la conversación\n\n"+
			"DNI: %s\nTeléfono: %s\nCódigo CRM: %s\nLead ID: %s\nDetalle: %v\n",
		ev.Document, phone, ev.ProgramCode, ev.LeadID, err)
}
