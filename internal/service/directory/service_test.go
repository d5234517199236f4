package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salesbridge-service/internal/domain/salesrep"
	"salesbridge-service/internal/gateway/messaging"
	xerrors "salesbridge-service/internal/pkg/errors"
)

type fakeAgentDirectory struct {
	persons      []messaging.Person
	listErr      error
	lastFilter   map[string]string
	contactEdits map[string]string
	nameEdits    map[string]string
}

func newFakeAgentDirectory(persons ...messaging.Person) *fakeAgentDirectory {
	return &fakeAgentDirectory{
		persons:      persons,
		contactEdits: map[string]string{},
		nameEdits:    map[string]string{},
	}
}

func (f *fakeAgentDirectory) ListPersons(ctx context.Context, page, limit int, filter map[string]string) ([]messaging.Person, error) {
	f.lastFilter = filter
	if f.listErr != nil {
		return nil, f.listErr
	}
	if page > 1 {
		return nil, nil
	}
	return f.persons, nil
}

func (f *fakeAgentDirectory) UpdatePersonContact(ctx context.Context, personID string, phone, email *string) error {
	if email != nil {
		f.contactEdits[personID] = *email
	}
	return nil
}

func (f *fakeAgentDirectory) UpdatePersonName(ctx context.Context, personID string, firstName, lastName *string) error {
	name := ""
	if firstName != nil {
		name = *firstName
	}
	if lastName != nil {
		name += " " + *lastName
	}
	f.nameEdits[personID] = name
	return nil
}

type fakeResourceCRM struct {
	emails map[int64]string
	err    error
}

func (f *fakeResourceCRM) GetResourceEmail(ctx context.Context, partyNumber int64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.emails[partyNumber], nil
}

type fakeRepStore struct {
	reps       []*salesrep.SalesRep
	created    []*salesrep.SalesRep
	profEdits  map[int64]bool
	emailEdits map[int64]string
}

func newFakeRepStore(reps ...*salesrep.SalesRep) *fakeRepStore {
	return &fakeRepStore{reps: reps, profEdits: map[int64]bool{}, emailEdits: map[int64]string{}}
}

func (f *fakeRepStore) Create(ctx context.Context, rep *salesrep.SalesRep) error {
	rep.ID = int64(len(f.reps) + len(f.created) + 1)
	f.created = append(f.created, rep)
	return nil
}

func (f *fakeRepStore) FindByPartyID(ctx context.Context, partyID int64) (*salesrep.SalesRep, error) {
	for _, r := range f.reps {
		if r.PartyID == partyID {
			return r, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeRepStore) FindByPartyNumber(ctx context.Context, partyNumber int64) (*salesrep.SalesRep, error) {
	for _, r := range f.reps {
		if r.PartyNumber == partyNumber {
			return r, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeRepStore) FindByExternalID(ctx context.Context, externalID string) (*salesrep.SalesRep, error) {
	for _, r := range f.reps {
		if r.ExternalID != nil && *r.ExternalID == externalID {
			return r, nil
		}
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeRepStore) UpdateProfile(ctx context.Context, id int64, externalID, email, firstName, lastName *string) error {
	f.profEdits[id] = true
	return nil
}

func (f *fakeRepStore) UpdateEmail(ctx context.Context, id int64, email string) error {
	f.emailEdits[id] = email
	for _, r := range f.reps {
		if r.ID == id {
			e := email
			r.Email = &e
		}
	}
	return nil
}

func (f *fakeRepStore) List(ctx context.Context, limit, offset int) ([]*salesrep.SalesRep, error) {
	if offset >= len(f.reps) {
		return nil, nil
	}
	return f.reps[offset:], nil
}

func (f *fakeRepStore) ListMissingEmail(ctx context.Context) ([]*salesrep.SalesRep, error) {
	var out []*salesrep.SalesRep
	for _, r := range f.reps {
		if r.Email == nil || *r.Email == "" {
			out = append(out, r)
		}
	}
	return out, nil
}

func ptr[T any](v T) *T { return &v }

func agentPerson(extID string, partyID, partyNumber int64, email, first, last string) messaging.Person {
	p := messaging.Person{
		ID:         extID,
		ExternalID: &extID,
		Type:       "AGENT",
		CustomAttributes: map[string]any{
			"party_id":     float64(partyID),
			"party_number": float64(partyNumber),
		},
	}
	if email != "" {
		p.ContactInfo.Email = []messaging.EmailEntry{{Address: email}}
	}
	if first != "" {
		p.FirstName = &first
	}
	if last != "" {
		p.LastName = &last
	}
	return p
}

func TestSyncRoster_InsertsAndUpdates(t *testing.T) {
	known := agentPerson("ext-1", 9001, 4521, "ana@example.com", "Ana", "Torres")
	unknown := agentPerson("ext-2", 9002, 4522, "luis@example.com", "Luis", "Rojas")
	noParty := messaging.Person{ID: "ext-3", ExternalID: ptr("ext-3"), Type: "AGENT"}

	store := newFakeRepStore(&salesrep.SalesRep{ID: 1, PartyID: 9001, PartyNumber: 4521})
	dir := newFakeAgentDirectory(known, unknown, noParty)

	svc := NewService(dir, &fakeResourceCRM{}, store, zap.NewNop())
	res, err := svc.SyncRoster(context.Background())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"type": "AGENT"}, dir.lastFilter)
	assert.Equal(t, 2, res.TotalAgents)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Updated)

	require.Len(t, store.created, 1)
	assert.Equal(t, int64(9002), store.created[0].PartyID)
	assert.Equal(t, "luis@example.com", *store.created[0].Email)
	assert.True(t, store.profEdits[1])
}

func TestSyncRoster_UnchangedIsSkipped(t *testing.T) {
	agent := agentPerson("ext-1", 9001, 4521, "ana@example.com", "Ana", "Torres")
	store := newFakeRepStore(&salesrep.SalesRep{
		ID:          1,
		PartyID:     9001,
		PartyNumber: 4521,
		ExternalID:  ptr("ext-1"),
		Email:       ptr("ana@example.com"),
		FirstName:   ptr("Ana"),
		LastName:    ptr("Torres"),
	})

	svc := NewService(newFakeAgentDirectory(agent), &fakeResourceCRM{}, store, zap.NewNop())
	res, err := svc.SyncRoster(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 1, res.Skipped)
}

func TestSyncEmails_PropagatesCRMMailbox(t *testing.T) {
	stale := agentPerson("ext-1", 9001, 4521, "old@example.com", "Ana", "Torres")
	current := agentPerson("ext-2", 9002, 4522, "luis@example.com", "Luis", "Rojas")

	store := newFakeRepStore(
		&salesrep.SalesRep{ID: 1, PartyID: 9001, PartyNumber: 4521, ExternalID: ptr("ext-1"), FirstName: ptr("Ana"), LastName: ptr("Torres")},
		&salesrep.SalesRep{ID: 2, PartyID: 9002, PartyNumber: 4522, ExternalID: ptr("ext-2"), Email: ptr("luis@example.com"), FirstName: ptr("Luis"), LastName: ptr("Rojas")},
	)
	crm := &fakeResourceCRM{emails: map[int64]string{
		4521: "ana.nueva@example.com",
		4522: "LUIS@example.com",
	}}
	dir := newFakeAgentDirectory(stale, current)

	svc := NewService(dir, crm, store, zap.NewNop())
	res, err := svc.SyncEmails(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.UpdatedRemote)
	assert.Equal(t, "ana.nueva@example.com", dir.contactEdits["ext-1"])
	assert.Equal(t, "ana.nueva@example.com", store.emailEdits[1])
	assert.Equal(t, 2, res.UpdatedLocal)
	assert.Equal(t, 0, res.Failed)
}

func TestSyncEmails_LookupFailureIsCounted(t *testing.T) {
	agent := agentPerson("ext-1", 9001, 4521, "ana@example.com", "Ana", "Torres")
	crm := &fakeResourceCRM{err: errors.New("oracle timeout")}

	svc := NewService(newFakeAgentDirectory(agent), crm, newFakeRepStore(), zap.NewNop())
	res, err := svc.SyncEmails(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.UpdatedRemote)
}

func TestSyncEmails_PushesLocalNameEdits(t *testing.T) {
	agent := agentPerson("ext-1", 9001, 4521, "ana@example.com", "Ana", "Torres")
	store := newFakeRepStore(&salesrep.SalesRep{
		ID:          1,
		PartyID:     9001,
		PartyNumber: 4521,
		ExternalID:  ptr("ext-1"),
		Email:       ptr("ana@example.com"),
		FirstName:   ptr("Ana Maria"),
		LastName:    ptr("Torres"),
	})
	crm := &fakeResourceCRM{emails: map[int64]string{4521: "ana@example.com"}}
	dir := newFakeAgentDirectory(agent)

	svc := NewService(dir, crm, store, zap.NewNop())
	res, err := svc.SyncEmails(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.PushedNames)
	assert.Equal(t, "Ana Maria Torres", dir.nameEdits["ext-1"])
}

func TestSyncEmails_BackfillsRosterWithoutAgentEntry(t *testing.T) {
	store := newFakeRepStore(&salesrep.SalesRep{
		ID:          7,
		PartyID:     9007,
		PartyNumber: 4527,
		ExternalID:  ptr("ext-7"),
	})
	crm := &fakeResourceCRM{emails: map[int64]string{4527: "jose@example.com"}}

	svc := NewService(newFakeAgentDirectory(), crm, store, zap.NewNop())
	res, err := svc.SyncEmails(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.UpdatedLocal)
	assert.Equal(t, "jose@example.com", store.emailEdits[7])
}

func TestSyncAll_CollectsErrors(t *testing.T) {
	dir := newFakeAgentDirectory()
	dir.listErr = errors.New("directory down")

	svc := NewService(dir, &fakeResourceCRM{}, newFakeRepStore(), zap.NewNop())
	out := svc.SyncAll(context.Background())

	assert.Nil(t, out.Emails)
	assert.Nil(t, out.Roster)
	assert.Len(t, out.Errors, 2)
}
