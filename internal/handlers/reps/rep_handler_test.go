package reps

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"salesbridge-service/internal/domain/salesrep"
	xerrors "salesbridge-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepStore struct {
	byPartyID     map[int64]*salesrep.SalesRep
	byPartyNumber map[int64]*salesrep.SalesRep
	byExternalID  map[string]*salesrep.SalesRep
}

func (f *fakeRepStore) List(ctx context.Context, limit, offset int) ([]*salesrep.SalesRep, error) {
	return nil, nil
}

func (f *fakeRepStore) FindByPartyID(ctx context.Context, partyID int64) (*salesrep.SalesRep, error) {
	return lookup(f.byPartyID[partyID])
}

func (f *fakeRepStore) FindByPartyNumber(ctx context.Context, partyNumber int64) (*salesrep.SalesRep, error) {
	return lookup(f.byPartyNumber[partyNumber])
}

func (f *fakeRepStore) FindByExternalID(ctx context.Context, externalID string) (*salesrep.SalesRep, error) {
	return lookup(f.byExternalID[externalID])
}

func lookup(rep *salesrep.SalesRep) (*salesrep.SalesRep, error) {
	if rep == nil {
		return nil, xerrors.ErrNotFound
	}
	return rep, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func searchRequest(t *testing.T, store *fakeRepStore, query string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	h := NewRepHandler(store, nil)
	router.GET("/reps/search", h.Search)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/reps/search"+query, nil)
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func TestSearch_ByPartyID(t *testing.T) {
	store := &fakeRepStore{byPartyID: map[int64]*salesrep.SalesRep{12: {ID: 1, PartyID: 12, PartyNumber: 700}}}

	w, env := searchRequest(t, store, "?party_id=12")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	var got salesrep.SalesRep
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, int64(12), got.PartyID)
}

func TestSearch_ByPartyNumber(t *testing.T) {
	store := &fakeRepStore{byPartyNumber: map[int64]*salesrep.SalesRep{700: {ID: 2, PartyID: 13, PartyNumber: 700}}}

	w, env := searchRequest(t, store, "?party_number=700")

	assert.Equal(t, http.StatusOK, w.Code)
	var got salesrep.SalesRep
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, int64(700), got.PartyNumber)
}

func TestSearch_ByExternalID(t *testing.T) {
	store := &fakeRepStore{byExternalID: map[string]*salesrep.SalesRep{"agent-9": {ID: 3, PartyID: 14, PartyNumber: 701}}}

	w, env := searchRequest(t, store, "?external_id=agent-9")

	assert.Equal(t, http.StatusOK, w.Code)
	var got salesrep.SalesRep
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, int64(3), got.ID)
}

func TestSearch_NotFound(t *testing.T) {
	store := &fakeRepStore{}

	w, env := searchRequest(t, store, "?party_id=12")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "rep not found", env.Message)
}

func TestSearch_MissingQuery(t *testing.T) {
	store := &fakeRepStore{}

	w, env := searchRequest(t, store, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "provide party_id, party_number or external_id", env.Message)
}
