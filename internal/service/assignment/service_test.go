package assignment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salesbridge-service/internal/domain/conversation"
	"salesbridge-service/internal/domain/message"
	"salesbridge-service/internal/domain/salesrep"
	xerrors "salesbridge-service/internal/pkg/errors"
)

type fakeNoteStore struct {
	notes []*message.Record
	err   error
}

func (f *fakeNoteStore) ListNotes(ctx context.Context, conversationID string) ([]*message.Record, error) {
	return f.notes, f.err
}

type fakeRepStore struct {
	byPartyNumber map[int64]*salesrep.SalesRep
	byID          map[int64]*salesrep.SalesRep
}

func (f *fakeRepStore) FindByPartyNumber(ctx context.Context, partyNumber int64) (*salesrep.SalesRep, error) {
	if rep, ok := f.byPartyNumber[partyNumber]; ok {
		return rep, nil
	}
	return nil, xerrors.ErrNotFound
}

func (f *fakeRepStore) FindByID(ctx context.Context, id int64) (*salesrep.SalesRep, error) {
	if rep, ok := f.byID[id]; ok {
		return rep, nil
	}
	return nil, xerrors.ErrNotFound
}

type fakeRowStore struct {
	row        *conversation.Conversation
	updatedRep *int64
}

func (f *fakeRowStore) LatestByRemoteID(ctx context.Context, remoteID string) (*conversation.Conversation, error) {
	if f.row == nil {
		return nil, xerrors.ErrNotFound
	}
	return f.row, nil
}

func (f *fakeRowStore) UpdateRep(ctx context.Context, id int64, repID int64) error {
	f.updatedRep = &repID
	return nil
}

type fakePlatform struct {
	assignErr error
	assigned  []string
	notes     []string
}

func (f *fakePlatform) AssignConversation(ctx context.Context, conversationID, agentExternalID string) error {
	if f.assignErr != nil {
		return f.assignErr
	}
	f.assigned = append(f.assigned, agentExternalID)
	return nil
}

func (f *fakePlatform) AddNote(ctx context.Context, conversationID, content string) error {
	f.notes = append(f.notes, content)
	return nil
}

type fakeSyncer struct {
	total, inserted int
	err             error
}

func (f *fakeSyncer) Sync(ctx context.Context, conversationID string) (int, int, error) {
	return f.total, f.inserted, f.err
}

func noteWith(content string) *message.Record {
	return &message.Record{Kind: message.KindNote, Content: &content}
}

func strPtr(s string) *string { return &s }

func newTestService(notes *fakeNoteStore, reps *fakeRepStore, rows *fakeRowStore, platform *fakePlatform, syncer *fakeSyncer) *Service {
	return NewService(notes, reps, rows, platform, syncer, zap.NewNop())
}

func TestExtractFromNotes(t *testing.T) {
	notes := []*message.Record{
		noteWith("Vendedor - Ana Ruiz: 4521"),
		noteWith("NuevoVendedor: 8800"),
		noteWith("Vendedor: 4521"),
		noteWith("sin marcador"),
	}
	got := ExtractFromNotes(notes)
	assert.Equal(t, []int64{4521, 8800}, got)
}

func TestExtractFromNotes_Empty(t *testing.T) {
	assert.Empty(t, ExtractFromNotes(nil))
	assert.Empty(t, ExtractFromNotes([]*message.Record{noteWith("hola")}))
}

func TestAssign_NotAuthorized(t *testing.T) {
	reps := &fakeRepStore{byPartyNumber: map[int64]*salesrep.SalesRep{
		9999: {ID: 1, PartyNumber: 9999, ExternalID: strPtr("ext-1")},
	}}
	svc := newTestService(
		&fakeNoteStore{notes: []*message.Record{noteWith("Vendedor: 4521")}},
		reps, &fakeRowStore{}, &fakePlatform{}, &fakeSyncer{},
	)

	// Rep exists locally but was never authorized in the notes.
	result, err := svc.Assign(context.Background(), "conv-1", 9999)
	require.NoError(t, err)
	assert.Equal(t, StatusNotAuthorized, result.Status)
	assert.Equal(t, []int64{4521}, result.AuthorizedReps)
}

func TestAssign_RepNotFound(t *testing.T) {
	svc := newTestService(
		&fakeNoteStore{notes: []*message.Record{noteWith("Vendedor: 4521")}},
		&fakeRepStore{}, &fakeRowStore{}, &fakePlatform{}, &fakeSyncer{},
	)

	result, err := svc.Assign(context.Background(), "conv-1", 4521)
	require.NoError(t, err)
	assert.Equal(t, StatusRepNotFound, result.Status)
}

func TestAssign_RepMisconfigured(t *testing.T) {
	reps := &fakeRepStore{byPartyNumber: map[int64]*salesrep.SalesRep{
		4521: {ID: 1, PartyNumber: 4521},
	}}
	svc := newTestService(
		&fakeNoteStore{notes: []*message.Record{noteWith("Vendedor: 4521")}},
		reps, &fakeRowStore{}, &fakePlatform{}, &fakeSyncer{},
	)

	result, err := svc.Assign(context.Background(), "conv-1", 4521)
	require.NoError(t, err)
	assert.Equal(t, StatusMisconfigured, result.Status)
}

func TestAssign_GatewayError(t *testing.T) {
	reps := &fakeRepStore{byPartyNumber: map[int64]*salesrep.SalesRep{
		4521: {ID: 1, PartyNumber: 4521, ExternalID: strPtr("ext-1")},
	}}
	svc := newTestService(
		&fakeNoteStore{notes: []*message.Record{noteWith("Vendedor: 4521")}},
		reps, &fakeRowStore{}, &fakePlatform{assignErr: errors.New("502")}, &fakeSyncer{},
	)

	result, err := svc.Assign(context.Background(), "conv-1", 4521)
	require.NoError(t, err)
	assert.Equal(t, StatusGatewayError, result.Status)
}

func TestAssign_Success_RecordsHandover(t *testing.T) {
	prevID := int64(7)
	reps := &fakeRepStore{
		byPartyNumber: map[int64]*salesrep.SalesRep{
			4521: {ID: 1, PartyNumber: 4521, ExternalID: strPtr("ext-new"), FirstName: strPtr("Ana"), LastName: strPtr("Ruiz")},
		},
		byID: map[int64]*salesrep.SalesRep{
			7: {ID: 7, PartyNumber: 3300, FirstName: strPtr("Luis")},
		},
	}
	rows := &fakeRowStore{row: &conversation.Conversation{ID: 55, RemoteID: "conv-1", RepID: &prevID}}
	platform := &fakePlatform{}
	svc := newTestService(
		&fakeNoteStore{notes: []*message.Record{noteWith("NuevoVendedor - Ana Ruiz: 4521")}},
		reps, rows, platform, &fakeSyncer{total: 10, inserted: 2},
	)

	result, err := svc.Assign(context.Background(), "conv-1", 4521)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, result.Status)
	assert.Equal(t, int64(4521), result.AssignedRep)
	require.NotNil(t, result.PreviousRep)
	assert.Equal(t, int64(3300), *result.PreviousRep)
	assert.Equal(t, 10, result.SyncedTotal)
	assert.Equal(t, 2, result.SyncedNew)

	assert.Equal(t, []string{"ext-new"}, platform.assigned)
	require.Len(t, platform.notes, 1)
	assert.Contains(t, platform.notes[0], "reasignada del vendedor")
	require.NotNil(t, rows.updatedRep)
	assert.Equal(t, int64(1), *rows.updatedRep)
}

func TestAssign_SyncFailureStillExtracts(t *testing.T) {
	reps := &fakeRepStore{byPartyNumber: map[int64]*salesrep.SalesRep{
		4521: {ID: 1, PartyNumber: 4521, ExternalID: strPtr("ext-1")},
	}}
	svc := newTestService(
		&fakeNoteStore{notes: []*message.Record{noteWith("Vendedor: 4521")}},
		reps, &fakeRowStore{}, &fakePlatform{}, &fakeSyncer{err: errors.New("gateway down")},
	)

	result, err := svc.Assign(context.Background(), "conv-1", 4521)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, result.Status)
}
