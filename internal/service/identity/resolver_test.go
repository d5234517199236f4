package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salesbridge-service/internal/domain/person"
	xerrors "salesbridge-service/internal/pkg/errors"
)

type fakePersonStore struct {
	byParty         *person.Person
	byPhone         *person.Person
	partyIDRows     map[int64]*person.Person
	partyNumberRows map[int64]*person.Person
	created         []*person.Person
}

// FindByParty mirrors the repository contract: party_id decides the
// lookup whenever it is present, party_number only otherwise.
func (f *fakePersonStore) FindByParty(ctx context.Context, partyID, partyNumber *int64) (*person.Person, error) {
	if f.partyIDRows != nil || f.partyNumberRows != nil {
		if partyID != nil {
			if p, ok := f.partyIDRows[*partyID]; ok {
				return p, nil
			}
			return nil, xerrors.ErrNotFound
		}
		if partyNumber != nil {
			if p, ok := f.partyNumberRows[*partyNumber]; ok {
				return p, nil
			}
		}
		return nil, xerrors.ErrNotFound
	}
	if f.byParty == nil {
		return nil, xerrors.ErrNotFound
	}
	return f.byParty, nil
}

func (f *fakePersonStore) FindByPhone(ctx context.Context, phone string) (*person.Person, error) {
	if f.byPhone == nil {
		return nil, xerrors.ErrNotFound
	}
	return f.byPhone, nil
}

func (f *fakePersonStore) Create(ctx context.Context, p *person.Person) error {
	p.ID = int64(len(f.created) + 1)
	f.created = append(f.created, p)
	return nil
}

type fakeValidator struct {
	valid bool
	err   error
}

func (f *fakeValidator) Validate(ctx context.Context, number string) (bool, error) {
	return f.valid, f.err
}

type fakeRegistry struct {
	remoteID string
	err      error
	calls    int
}

func (f *fakeRegistry) CreatePerson(ctx context.Context, phone, personType string) (string, error) {
	f.calls++
	return f.remoteID, f.err
}

func newTestResolver(store *fakePersonStore, validator *fakeValidator, registry *fakeRegistry) *Resolver {
	return NewResolver(store, validator, registry, zap.NewNop())
}

func int64Ptr(v int64) *int64 { return &v }

func personWithPhone(id int64, phone string) *person.Person {
	return &person.Person{ID: id, Phone: phone}
}

func TestResolve_BothMatchSamePhone(t *testing.T) {
	p := personWithPhone(7, "51999111222")
	store := &fakePersonStore{byParty: p, byPhone: p}
	r := newTestResolver(store, &fakeValidator{valid: true}, &fakeRegistry{})

	res, err := r.Resolve(context.Background(), int64Ptr(1), nil, "+51 999 111 222")
	require.NoError(t, err)
	assert.Same(t, p, res.Person)
	assert.Equal(t, "51999111222", res.Phone)
	assert.True(t, res.PhoneValid)
	assert.False(t, res.FlagForReview)
	assert.Nil(t, res.PendingPhone)
	assert.Contains(t, res.Annotation, "coincide con el registrado")
}

func TestResolve_BothPartyKeys_PartyIDWins(t *testing.T) {
	rowByID := personWithPhone(1, "51900000001")
	rowByNumber := personWithPhone(2, "51900000002")
	store := &fakePersonStore{
		partyIDRows:     map[int64]*person.Person{10: rowByID},
		partyNumberRows: map[int64]*person.Person{555: rowByNumber},
	}
	r := newTestResolver(store, &fakeValidator{valid: true}, &fakeRegistry{})

	res, err := r.Resolve(context.Background(), int64Ptr(10), int64Ptr(555), "51900000001")
	require.NoError(t, err)
	assert.Same(t, rowByID, res.Person)
	assert.Empty(t, store.created)
}

func TestResolve_PartyIDMiss_NoFallbackToPartyNumber(t *testing.T) {
	rowByNumber := personWithPhone(2, "51900000002")
	store := &fakePersonStore{
		partyIDRows:     map[int64]*person.Person{},
		partyNumberRows: map[int64]*person.Person{555: rowByNumber},
	}
	r := newTestResolver(store, &fakeValidator{valid: true}, &fakeRegistry{remoteID: "wa-9"})

	res, err := r.Resolve(context.Background(), int64Ptr(11), int64Ptr(555), "51900000002")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotSame(t, rowByNumber, res.Person)
	require.Len(t, store.created, 1)
}

func TestResolve_BothMatchDifferentPersons_InvalidPhone(t *testing.T) {
	byParty := personWithPhone(1, "51900000001")
	byPhone := personWithPhone(2, "51900000002")
	store := &fakePersonStore{byParty: byParty, byPhone: byPhone}
	r := newTestResolver(store, &fakeValidator{valid: false}, &fakeRegistry{})

	res, err := r.Resolve(context.Background(), int64Ptr(1), nil, "51900000002")
	require.NoError(t, err)
	assert.Same(t, byParty, res.Person)
	assert.Equal(t, byParty.Phone, res.Phone)
	assert.False(t, res.PhoneValid)
	assert.Contains(t, res.Annotation, "incorrecto")
}

func TestResolve_BothMatchDifferentPersons_ValidPhone(t *testing.T) {
	byParty := personWithPhone(1, "51900000001")
	byPhone := personWithPhone(2, "51900000002")
	store := &fakePersonStore{byParty: byParty, byPhone: byPhone}
	r := newTestResolver(store, &fakeValidator{valid: true}, &fakeRegistry{})

	res, err := r.Resolve(context.Background(), int64Ptr(1), nil, "51900000002")
	require.NoError(t, err)
	assert.Same(t, byPhone, res.Person)
	assert.True(t, res.FlagForReview)
	assert.Contains(t, res.Annotation, "inconsistencias")
}

func TestResolve_PartyOnly_ValidNewPhone_SchedulesUpdate(t *testing.T) {
	byParty := personWithPhone(1, "51900000001")
	store := &fakePersonStore{byParty: byParty}
	r := newTestResolver(store, &fakeValidator{valid: true}, &fakeRegistry{})

	res, err := r.Resolve(context.Background(), int64Ptr(1), nil, "51900000009")
	require.NoError(t, err)
	assert.Same(t, byParty, res.Person)
	assert.Equal(t, "51900000009", res.Phone)
	require.NotNil(t, res.PendingPhone)

	phone, ok := res.PendingPhone.Take()
	assert.True(t, ok)
	assert.Equal(t, "51900000009", phone)

	// A pending update is consumed exactly once.
	_, ok = res.PendingPhone.Take()
	assert.False(t, ok)
}

func TestResolve_PartyOnly_SamePhone_NoUpdate(t *testing.T) {
	byParty := personWithPhone(1, "51900000001")
	store := &fakePersonStore{byParty: byParty}
	r := newTestResolver(store, &fakeValidator{valid: true}, &fakeRegistry{})

	res, err := r.Resolve(context.Background(), int64Ptr(1), nil, "51900000001")
	require.NoError(t, err)
	assert.Nil(t, res.PendingPhone)
	assert.Equal(t, "51900000001", res.Phone)
}

func TestResolve_PartyOnly_InvalidPhone_KeepsStored(t *testing.T) {
	byParty := personWithPhone(1, "51900000001")
	store := &fakePersonStore{byParty: byParty}
	r := newTestResolver(store, &fakeValidator{valid: false}, &fakeRegistry{})

	res, err := r.Resolve(context.Background(), int64Ptr(1), nil, "51900000009")
	require.NoError(t, err)
	assert.Equal(t, "51900000001", res.Phone)
	assert.False(t, res.PhoneValid)
	assert.Nil(t, res.PendingPhone)
}

func TestResolve_PhoneOnly_FlagsForReview(t *testing.T) {
	byPhone := personWithPhone(3, "51900000003")
	store := &fakePersonStore{byPhone: byPhone}
	r := newTestResolver(store, &fakeValidator{valid: true}, &fakeRegistry{})

	res, err := r.Resolve(context.Background(), int64Ptr(99), nil, "51900000003")
	require.NoError(t, err)
	assert.Same(t, byPhone, res.Person)
	assert.True(t, res.FlagForReview)
	assert.Contains(t, res.Annotation, "otro contacto")
}

func TestResolve_NoMatch_ValidPhone_CreatesPerson(t *testing.T) {
	store := &fakePersonStore{}
	registry := &fakeRegistry{remoteID: "remote-42"}
	r := newTestResolver(store, &fakeValidator{valid: true}, registry)

	res, err := r.Resolve(context.Background(), int64Ptr(5), int64Ptr(6), "987654321")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 1, registry.calls)
	require.Len(t, store.created, 1)
	assert.Equal(t, "51987654321", store.created[0].Phone)
	require.NotNil(t, store.created[0].MessagingID)
	assert.Equal(t, "remote-42", *store.created[0].MessagingID)
}

func TestResolve_NoMatch_RemoteCreateFails_StillCreatesLocal(t *testing.T) {
	store := &fakePersonStore{}
	registry := &fakeRegistry{err: errors.New("gateway down")}
	r := newTestResolver(store, &fakeValidator{valid: true}, registry)

	res, err := r.Resolve(context.Background(), nil, int64Ptr(6), "987654321")
	require.NoError(t, err)
	assert.True(t, res.Created)
	require.Len(t, store.created, 1)
	assert.Nil(t, store.created[0].MessagingID)
}

func TestResolve_NoMatch_InvalidPhone_Fails(t *testing.T) {
	store := &fakePersonStore{}
	registry := &fakeRegistry{}
	r := newTestResolver(store, &fakeValidator{valid: false}, registry)

	_, err := r.Resolve(context.Background(), nil, nil, "51900000000")
	assert.ErrorIs(t, err, ErrNoUsableIdentity)
	assert.Empty(t, store.created)
	assert.Zero(t, registry.calls)
}

func TestResolve_ValidatorError_FailsClosed(t *testing.T) {
	store := &fakePersonStore{}
	r := newTestResolver(store, &fakeValidator{err: errors.New("timeout")}, &fakeRegistry{})

	_, err := r.Resolve(context.Background(), nil, nil, "51900000000")
	assert.ErrorIs(t, err, ErrNoUsableIdentity)
}
