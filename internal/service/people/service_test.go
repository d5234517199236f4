package people

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salesbridge-service/internal/domain/person"
	"salesbridge-service/internal/gateway/messaging"
	xerrors "salesbridge-service/internal/pkg/errors"
)

type fakeDirectory struct {
	pages [][]messaging.Person
	err   error
	calls int
}

func (f *fakeDirectory) ListPersons(ctx context.Context, page, limit int, filter map[string]string) ([]messaging.Person, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if page > len(f.pages) {
		return nil, nil
	}
	return f.pages[page-1], nil
}

type fakePersonStore struct {
	local     []*person.Person
	inserted  []*person.Person
	updates   map[int64]directoryEntry
	insertErr error
	updateErr error
}

func newFakePersonStore(local ...*person.Person) *fakePersonStore {
	return &fakePersonStore{local: local, updates: map[int64]directoryEntry{}}
}

func (f *fakePersonStore) List(ctx context.Context, limit, offset int) ([]*person.Person, error) {
	if offset >= len(f.local) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.local) {
		end = len(f.local)
	}
	return f.local[offset:end], nil
}

func (f *fakePersonStore) InsertBatch(ctx context.Context, people []*person.Person) (int, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.inserted = append(f.inserted, people...)
	return len(people), nil
}

func (f *fakePersonStore) UpdateSyncedFields(ctx context.Context, id int64, partyID *int64, phone string, messagingID *string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	e := directoryEntry{PartyID: partyID, Phone: phone}
	if messagingID != nil {
		e.MessagingID = *messagingID
	}
	f.updates[id] = e
	return nil
}

func ptr[T any](v T) *T { return &v }

func remotePerson(msgID string, partyNumber int64, phone string) messaging.Person {
	p := messaging.Person{
		ID:               msgID,
		CustomAttributes: map[string]any{"party_number": float64(partyNumber)},
	}
	if phone != "" {
		p.ContactInfo.Phone = []messaging.PhoneEntry{{Number: phone}}
	}
	return p
}

func TestSync_UpdatesAndInserts(t *testing.T) {
	unchanged := remotePerson("M-1", 100, "51911111111")
	changed := remotePerson("M-2", 200, "51922222222")
	unknown := remotePerson("M-3", 300, "51933333333")
	noPhone := remotePerson("M-4", 400, "")

	store := newFakePersonStore(
		&person.Person{ID: 1, PartyNumber: ptr(int64(100)), Phone: "51911111111", MessagingID: ptr("M-1")},
		&person.Person{ID: 2, PartyNumber: ptr(int64(200)), Phone: "51900000000", MessagingID: ptr("M-2")},
		&person.Person{ID: 3, PartyNumber: ptr(int64(999)), Phone: "51955555555"},
	)
	dir := &fakeDirectory{pages: [][]messaging.Person{{unchanged, changed, unknown, noPhone}}}

	svc := NewService(dir, store, zap.NewNop())
	res, err := svc.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, res.TotalRemote)
	assert.Equal(t, 3, res.TotalLocal)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.SkippedNoPhone)
	assert.Equal(t, 1, res.MissingRemote)
	assert.Equal(t, 0, res.Failed)

	assert.Equal(t, "51922222222", store.updates[2].Phone)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, int64(300), *store.inserted[0].PartyNumber)
	assert.Equal(t, "51933333333", store.inserted[0].Phone)
}

func TestSync_ToleratesCapitalizedAttributes(t *testing.T) {
	p := messaging.Person{
		ID: "M-9",
		CustomAttributes: map[string]any{
			"Party_number": "500",
			"Party_id":     float64(7500),
		},
	}
	p.ContactInfo.Phone = []messaging.PhoneEntry{{Number: "51944444444"}}

	store := newFakePersonStore()
	dir := &fakeDirectory{pages: [][]messaging.Person{{p}}}

	svc := NewService(dir, store, zap.NewNop())
	res, err := svc.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Inserted)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, int64(500), *store.inserted[0].PartyNumber)
	assert.Equal(t, int64(7500), *store.inserted[0].PartyID)
}

func TestSync_DirectoryFailure(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("upstream down")}
	svc := NewService(dir, newFakePersonStore(), zap.NewNop())

	_, err := svc.Sync(context.Background())
	require.Error(t, err)
}

func TestImportCSV(t *testing.T) {
	csvBody := strings.Join([]string{
		"cliente.party_id,cliente.party_number,Telefono-Limpio",
		"7001,100,51911111111",
		"7002,200,51922222222",
		"7001,100,51911111111",
		"7003,300,",
		",400,51944444444",
	}, "\n")

	store := newFakePersonStore()
	svc := NewService(&fakeDirectory{}, store, zap.NewNop())

	res, err := svc.ImportCSV(context.Background(), strings.NewReader(csvBody))
	require.NoError(t, err)

	assert.Equal(t, 5, res.TotalRows)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 2, res.MissingFields)
	assert.Equal(t, 2, res.Inserted)
	require.Len(t, store.inserted, 2)
	assert.Equal(t, int64(7001), *store.inserted[0].PartyID)
	assert.Equal(t, "51922222222", store.inserted[1].Phone)
}

func TestImportCSV_PlainHeaderNames(t *testing.T) {
	csvBody := "party_id,party_number,phone\n7001,100,51911111111\n"

	store := newFakePersonStore()
	svc := NewService(&fakeDirectory{}, store, zap.NewNop())

	res, err := svc.ImportCSV(context.Background(), strings.NewReader(csvBody))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
}

func TestImportCSV_MissingColumns(t *testing.T) {
	svc := NewService(&fakeDirectory{}, newFakePersonStore(), zap.NewNop())

	_, err := svc.ImportCSV(context.Background(), strings.NewReader("a,b,c\n1,2,3\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}
