package chatsync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salesbridge-service/internal/domain/message"
	"salesbridge-service/internal/gateway/messaging"
)

type fakeSource struct {
	messages    []messaging.Message
	notes       []messaging.Note
	messagesErr error
	notesErr    error
}

func (f *fakeSource) ListMessages(ctx context.Context, conversationID string, page, limit int) ([]messaging.Message, error) {
	if f.messagesErr != nil {
		return nil, f.messagesErr
	}
	return paginate(f.messages, page, limit), nil
}

func (f *fakeSource) ListNotes(ctx context.Context, conversationID string, page, limit int) ([]messaging.Note, error) {
	if f.notesErr != nil {
		return nil, f.notesErr
	}
	return paginate(f.notes, page, limit), nil
}

func paginate[T any](items []T, page, limit int) []T {
	start := page * limit
	if start >= len(items) {
		return nil
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

type fakeRecordStore struct {
	records   map[string]*message.Record
	order     []string
	batchErr  error
	batchRuns int
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: make(map[string]*message.Record)}
}

func (f *fakeRecordStore) ExistingRemoteIDs(ctx context.Context, conversationID string) (map[string]struct{}, error) {
	ids := make(map[string]struct{}, len(f.records))
	for id := range f.records {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (f *fakeRecordStore) InsertBatch(ctx context.Context, records []*message.Record) (int, error) {
	if f.batchErr != nil {
		return 0, f.batchErr
	}
	f.batchRuns++
	inserted := 0
	for _, r := range records {
		if _, ok := f.records[*r.RemoteMessageID]; !ok {
			f.records[*r.RemoteMessageID] = r
			f.order = append(f.order, *r.RemoteMessageID)
			inserted++
		}
	}
	return inserted, nil
}

func textContent(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}

func testMessage(id, text string) messaging.Message {
	return messaging.Message{
		ID:        id,
		Direction: "INBOUND",
		From:      "51999111222",
		Content:   textContent(text),
		CreatedAt: "2026-03-10T12:00:00.000+0000",
	}
}

func TestSync_InsertsMessagesAndNotes(t *testing.T) {
	source := &fakeSource{
		messages: []messaging.Message{testMessage("m1", "hola"), testMessage("m2", "que tal")},
		notes:    []messaging.Note{{ID: "n1", Content: "Vendedor - Ana: 4521", AgentID: "agent-1"}},
	}
	store := newFakeRecordStore()
	syncer := NewSyncer(source, store, 200, 100, zap.NewNop())

	total, inserted, err := syncer.Sync(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, 3, inserted)
	assert.Equal(t, 1, store.batchRuns)

	note := store.records["n1"]
	require.NotNil(t, note)
	assert.Equal(t, message.KindNote, note.Kind)
	require.NotNil(t, note.Direction)
	assert.Equal(t, message.DirectionInternal, *note.Direction)
}

func TestSync_SecondRunInsertsNothing(t *testing.T) {
	source := &fakeSource{
		messages: []messaging.Message{testMessage("m1", "hola")},
		notes:    []messaging.Note{{ID: "n1", Content: "nota"}},
	}
	store := newFakeRecordStore()
	syncer := NewSyncer(source, store, 200, 100, zap.NewNop())

	_, _, err := syncer.Sync(context.Background(), "conv-1")
	require.NoError(t, err)

	total, inserted, err := syncer.Sync(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 0, inserted)
}

func TestSync_MessageStreamFailureKeepsNotes(t *testing.T) {
	source := &fakeSource{
		messagesErr: errors.New("gateway timeout"),
		notes:       []messaging.Note{{ID: "n1", Content: "nota"}},
	}
	store := newFakeRecordStore()
	syncer := NewSyncer(source, store, 200, 100, zap.NewNop())

	total, inserted, err := syncer.Sync(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, inserted)
}

func TestSync_SkipsRecordsWithoutID(t *testing.T) {
	source := &fakeSource{
		messages: []messaging.Message{testMessage("", "sin id"), testMessage("m1", "hola")},
	}
	store := newFakeRecordStore()
	syncer := NewSyncer(source, store, 200, 100, zap.NewNop())

	total, inserted, err := syncer.Sync(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, inserted)
}

func stampedMessage(id, text, createdAt string) messaging.Message {
	m := testMessage(id, text)
	m.CreatedAt = createdAt
	return m
}

func TestSync_InsertsInTimelineOrder(t *testing.T) {
	source := &fakeSource{
		messages: []messaging.Message{
			stampedMessage("m-late", "tercero", "2026-03-10T12:30:00Z"),
			stampedMessage("m-early", "primero", "2026-03-10T11:00:00Z"),
			stampedMessage("m-unstamped", "sin fecha", "not a time"),
		},
		notes: []messaging.Note{
			{ID: "n-mid", Content: "nota", CreatedAt: "2026-03-10T12:00:00Z"},
		},
	}
	store := newFakeRecordStore()
	syncer := NewSyncer(source, store, 200, 100, zap.NewNop())

	_, inserted, err := syncer.Sync(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 4, inserted)
	assert.Equal(t, []string{"m-early", "n-mid", "m-late", "m-unstamped"}, store.order)
}

func TestSync_Pagination(t *testing.T) {
	var msgs []messaging.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, testMessage(string(rune('a'+i)), "msg"))
	}
	source := &fakeSource{messages: msgs}
	store := newFakeRecordStore()
	syncer := NewSyncer(source, store, 2, 100, zap.NewNop())

	total, inserted, err := syncer.Sync(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, 5, inserted)
}

func TestParseRemoteTime(t *testing.T) {
	assert.Nil(t, ParseRemoteTime(""))
	assert.Nil(t, ParseRemoteTime("not a time"))

	ts := ParseRemoteTime("2026-03-10T12:00:00.000+0000")
	require.NotNil(t, ts)
	assert.Equal(t, 2026, ts.Year())

	rfc := ParseRemoteTime("2026-03-10T12:00:00Z")
	require.NotNil(t, rfc)
	assert.Equal(t, 10, rfc.Day())
}

func TestMessageText(t *testing.T) {
	m := messaging.Message{Content: textContent("hola")}
	assert.Equal(t, "hola", m.Text())

	obj := messaging.Message{Content: json.RawMessage(`{"text":"desde objeto"}`)}
	assert.Equal(t, "desde objeto", obj.Text())
}
