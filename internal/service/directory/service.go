package directory

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"salesbridge-service/internal/domain/salesrep"
	"salesbridge-service/internal/gateway/messaging"
	xerrors "salesbridge-service/internal/pkg/errors"
)

const agentPageSize = 100

// Platform lists the AGENT directory and pushes profile changes back.
type Platform interface {
	ListPersons(ctx context.Context, page, limit int, filter map[string]string) ([]messaging.Person, error)
	UpdatePersonContact(ctx context.Context, personID string, phone, email *string) error
	UpdatePersonName(ctx context.Context, personID string, firstName, lastName *string) error
}

// CRM reads the authoritative mailbox for a rep.
type CRM interface {
	GetResourceEmail(ctx context.Context, partyNumber int64) (string, error)
}

// RepStore persists the local sales rep roster.
type RepStore interface {
	Create(ctx context.Context, rep *salesrep.SalesRep) error
	FindByPartyID(ctx context.Context, partyID int64) (*salesrep.SalesRep, error)
	FindByPartyNumber(ctx context.Context, partyNumber int64) (*salesrep.SalesRep, error)
	FindByExternalID(ctx context.Context, externalID string) (*salesrep.SalesRep, error)
	UpdateProfile(ctx context.Context, id int64, externalID, email, firstName, lastName *string) error
	UpdateEmail(ctx context.Context, id int64, email string) error
	List(ctx context.Context, limit, offset int) ([]*salesrep.SalesRep, error)
	ListMissingEmail(ctx context.Context) ([]*salesrep.SalesRep, error)
}

// Agent is one platform directory entry that carries CRM party keys.
type Agent struct {
	ExternalID  string
	PartyID     int64
	PartyNumber int64
	Email       string
	FirstName   string
	LastName    string
}

// SyncResult reports what a roster pass changed.
type SyncResult struct {
	TotalAgents int      `json:"total_agents"`
	Inserted    int      `json:"inserted"`
	Updated     int      `json:"updated"`
	Skipped     int      `json:"skipped"`
	Details     []string `json:"details,omitempty"`
}

// EmailSyncResult reports the CRM mailbox propagation pass.
type EmailSyncResult struct {
	TotalAgents     int      `json:"total_agents"`
	UpdatedRemote   int      `json:"updated_remote"`
	UpdatedLocal    int      `json:"updated_local"`
	Skipped         int      `json:"skipped"`
	Failed          int      `json:"failed"`
	Details         []string `json:"details,omitempty"`
	PushedNames     int      `json:"pushed_names"`
	PushNameDetails []string `json:"push_name_details,omitempty"`
}

// CombinedResult bundles the full roster refresh.
type CombinedResult struct {
	Emails *EmailSyncResult `json:"emails,omitempty"`
	Roster *SyncResult      `json:"roster,omitempty"`
	Errors []string         `json:"errors,omitempty"`
}

type Service struct {
	platform Platform
	crm      CRM
	reps     RepStore
	logger   *zap.Logger
}

func NewService(platform Platform, crm CRM, reps RepStore, logger *zap.Logger) *Service {
	return &Service{platform: platform, crm: crm, reps: reps, logger: logger}
}

// fetchAgents pages through the directory keeping only entries that
// carry a CRM party key. Anything without party_number cannot be
// matched to the CRM and is useless to the roster.
func (s *Service) fetchAgents(ctx context.Context) ([]Agent, error) {
	filter := map[string]string{"type": "AGENT"}
	var agents []Agent
	for page := 1; ; page++ {
		persons, err := s.platform.ListPersons(ctx, page, agentPageSize, filter)
		if err != nil {
			return nil, err
		}
		if len(persons) == 0 {
			break
		}
		for i := range persons {
			p := &persons[i]
			a := Agent{Email: p.PrimaryEmail()}
			if p.ExternalID != nil {
				a.ExternalID = *p.ExternalID
			}
			if p.FirstName != nil {
				a.FirstName = *p.FirstName
			}
			if p.LastName != nil {
				a.LastName = *p.LastName
			}
			if id := p.CustomInt64("party_id"); id != nil {
				a.PartyID = *id
			} else if id := p.CustomInt64("Party_id"); id != nil {
				a.PartyID = *id
			}
			if n := p.CustomInt64("party_number"); n != nil {
				a.PartyNumber = *n
			} else if n := p.CustomInt64("Party_number"); n != nil {
				a.PartyNumber = *n
			}
			if a.PartyID == 0 && a.PartyNumber == 0 {
				continue
			}
			agents = append(agents, a)
		}
		if len(persons) < agentPageSize {
			break
		}
	}
	return agents, nil
}

// SyncRoster pulls the AGENT directory and upserts the local roster.
// Existing reps get their external id, email and names backfilled;
// unknown agents with a usable external id are inserted.
func (s *Service) SyncRoster(ctx context.Context) (*SyncResult, error) {
	agents, err := s.fetchAgents(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "listing platform agents")
	}

	res := &SyncResult{TotalAgents: len(agents)}
	for _, a := range agents {
		if a.ExternalID == "" {
			res.Skipped++
			continue
		}

		existing := s.findExisting(ctx, a)
		if existing == nil {
			rep := &salesrep.SalesRep{
				PartyID:     a.PartyID,
				PartyNumber: a.PartyNumber,
				ExternalID:  strPtrOrNil(a.ExternalID),
				Email:       strPtrOrNil(a.Email),
				FirstName:   strPtrOrNil(a.FirstName),
				LastName:    strPtrOrNil(a.LastName),
			}
			if err := s.reps.Create(ctx, rep); err != nil {
				s.logger.Warn("rep insert failed", zap.Int64("party_number", a.PartyNumber), zap.Error(err))
				res.Skipped++
				continue
			}
			res.Inserted++
			res.Details = append(res.Details, "inserted "+describeAgent(a))
			continue
		}

		externalID, email, firstName, lastName := diffProfile(existing, a)
		if externalID == nil && email == nil && firstName == nil && lastName == nil {
			res.Skipped++
			continue
		}
		if err := s.reps.UpdateProfile(ctx, existing.ID, externalID, email, firstName, lastName); err != nil {
			s.logger.Warn("rep update failed", zap.Int64("rep_id", existing.ID), zap.Error(err))
			res.Skipped++
			continue
		}
		res.Updated++
		res.Details = append(res.Details, "updated "+describeAgent(a))
	}
	return res, nil
}

// SyncEmails propagates the CRM mailbox of every agent to the platform
// profile and the local roster, then pushes local name edits back to
// the platform. Individual agent failures are counted, not fatal.
func (s *Service) SyncEmails(ctx context.Context) (*EmailSyncResult, error) {
	agents, err := s.fetchAgents(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "listing platform agents")
	}

	res := &EmailSyncResult{TotalAgents: len(agents)}
	for _, a := range agents {
		if a.PartyNumber == 0 || a.ExternalID == "" {
			res.Skipped++
			continue
		}

		crmEmail, err := s.crm.GetResourceEmail(ctx, a.PartyNumber)
		if err != nil {
			s.logger.Warn("resource email lookup failed",
				zap.Int64("party_number", a.PartyNumber), zap.Error(err))
			res.Failed++
			continue
		}
		if crmEmail == "" {
			res.Skipped++
			continue
		}

		if !strings.EqualFold(strings.TrimSpace(a.Email), strings.TrimSpace(crmEmail)) {
			if err := s.platform.UpdatePersonContact(ctx, a.ExternalID, nil, &crmEmail); err != nil {
				s.logger.Warn("platform email update failed",
					zap.String("external_id", a.ExternalID), zap.Error(err))
				res.Failed++
				continue
			}
			res.UpdatedRemote++
		}

		if s.updateLocalEmail(ctx, a, crmEmail) {
			res.UpdatedLocal++
			res.Details = append(res.Details, describeAgent(a)+" -> "+crmEmail)
		}
	}

	res.UpdatedLocal += s.backfillMissingEmails(ctx, res)
	res.PushedNames, res.PushNameDetails = s.pushLocalNames(ctx, agents)
	return res, nil
}

// backfillMissingEmails covers reps already on the roster whose entry
// never came back from the agent pages, looking their mailbox up by
// party number.
func (s *Service) backfillMissingEmails(ctx context.Context, res *EmailSyncResult) int {
	reps, err := s.reps.ListMissingEmail(ctx)
	if err != nil {
		s.logger.Warn("missing-email roster scan failed", zap.Error(err))
		return 0
	}

	filled := 0
	for _, rep := range reps {
		if rep.PartyNumber == 0 {
			continue
		}
		email, err := s.crm.GetResourceEmail(ctx, rep.PartyNumber)
		if err != nil {
			s.logger.Warn("resource email lookup failed",
				zap.Int64("party_number", rep.PartyNumber), zap.Error(err))
			res.Failed++
			continue
		}
		if email == "" {
			continue
		}
		if err := s.reps.UpdateEmail(ctx, rep.ID, email); err != nil {
			s.logger.Warn("local email update failed", zap.Int64("rep_id", rep.ID), zap.Error(err))
			continue
		}
		filled++
	}
	return filled
}

// SyncAll runs the mailbox pass first so roster inserts already carry
// the CRM email, then refreshes the roster itself.
func (s *Service) SyncAll(ctx context.Context) *CombinedResult {
	out := &CombinedResult{}

	emails, err := s.SyncEmails(ctx)
	if err != nil {
		out.Errors = append(out.Errors, "email sync: "+err.Error())
	} else {
		out.Emails = emails
	}

	roster, err := s.SyncRoster(ctx)
	if err != nil {
		out.Errors = append(out.Errors, "roster sync: "+err.Error())
	} else {
		out.Roster = roster
	}
	return out
}

func (s *Service) findExisting(ctx context.Context, a Agent) *salesrep.SalesRep {
	if a.PartyID != 0 {
		if rep, err := s.reps.FindByPartyID(ctx, a.PartyID); err == nil {
			return rep
		} else if !errors.Is(err, xerrors.ErrNotFound) {
			s.logger.Warn("rep lookup failed", zap.Int64("party_id", a.PartyID), zap.Error(err))
		}
	}
	if a.PartyNumber != 0 {
		if rep, err := s.reps.FindByPartyNumber(ctx, a.PartyNumber); err == nil {
			return rep
		} else if !errors.Is(err, xerrors.ErrNotFound) {
			s.logger.Warn("rep lookup failed", zap.Int64("party_number", a.PartyNumber), zap.Error(err))
		}
	}
	if a.ExternalID != "" {
		if rep, err := s.reps.FindByExternalID(ctx, a.ExternalID); err == nil {
			return rep
		} else if !errors.Is(err, xerrors.ErrNotFound) {
			s.logger.Warn("rep lookup failed", zap.String("external_id", a.ExternalID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) updateLocalEmail(ctx context.Context, a Agent, email string) bool {
	rep := s.findExisting(ctx, a)
	if rep == nil {
		return false
	}
	if rep.Email != nil && *rep.Email == email {
		return false
	}
	if err := s.reps.UpdateEmail(ctx, rep.ID, email); err != nil {
		s.logger.Warn("local email update failed", zap.Int64("rep_id", rep.ID), zap.Error(err))
		return false
	}
	return true
}

// pushLocalNames sends locally edited first/last names back to the
// platform for reps whose directory entry differs.
func (s *Service) pushLocalNames(ctx context.Context, agents []Agent) (int, []string) {
	byExternal := make(map[string]Agent, len(agents))
	for _, a := range agents {
		if a.ExternalID != "" {
			byExternal[a.ExternalID] = a
		}
	}

	pushed := 0
	var details []string
	for offset := 0; ; offset += agentPageSize {
		reps, err := s.reps.List(ctx, agentPageSize, offset)
		if err != nil {
			s.logger.Warn("roster page failed", zap.Int("offset", offset), zap.Error(err))
			break
		}
		for _, rep := range reps {
			if rep.ExternalID == nil {
				continue
			}
			agent, ok := byExternal[*rep.ExternalID]
			if !ok {
				continue
			}
			if !nameDiffers(rep.FirstName, agent.FirstName) && !nameDiffers(rep.LastName, agent.LastName) {
				continue
			}
			if err := s.platform.UpdatePersonName(ctx, *rep.ExternalID, rep.FirstName, rep.LastName); err != nil {
				s.logger.Warn("name push failed", zap.String("external_id", *rep.ExternalID), zap.Error(err))
				continue
			}
			pushed++
			details = append(details, *rep.ExternalID)
		}
		if len(reps) < agentPageSize {
			break
		}
	}
	return pushed, details
}

func diffProfile(existing *salesrep.SalesRep, a Agent) (externalID, email, firstName, lastName *string) {
	if existing.ExternalID == nil && a.ExternalID != "" {
		externalID = &a.ExternalID
	}
	if a.Email != "" && (existing.Email == nil || *existing.Email != a.Email) {
		email = &a.Email
	}
	if a.FirstName != "" && (existing.FirstName == nil || *existing.FirstName != a.FirstName) {
		firstName = &a.FirstName
	}
	if a.LastName != "" && (existing.LastName == nil || *existing.LastName != a.LastName) {
		lastName = &a.LastName
	}
	return externalID, email, firstName, lastName
}

func nameDiffers(local *string, remote string) bool {
	return local != nil && *local != "" && *local != remote
}

func describeAgent(a Agent) string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		name = a.ExternalID
	}
	return name
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
