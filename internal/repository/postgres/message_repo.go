package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"salesbridge-service/internal/domain/message"
	xerrors "salesbridge-service/internal/pkg/errors"
)

type MessageRepo struct {
	db *DB
}

func NewMessageRepo(db *DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, conversation_id, kind, content, direction, sender, remote_message_id, remote_ts, created_at, updated_at`

func scanMessage(row pgx.Row) (*message.Record, error) {
	var m message.Record
	err := row.Scan(
		&m.ID,
		&m.ConversationID,
		&m.Kind,
		&m.Content,
		&m.Direction,
		&m.Sender,
		&m.RemoteMessageID,
		&m.RemoteTS,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan message record: %w", err)
	}
	return &m, nil
}

// ExistingRemoteIDs returns the set of platform message ids already
// stored for a conversation. The sync engine consults it to skip
// duplicates across runs.
func (r *MessageRepo) ExistingRemoteIDs(ctx context.Context, conversationID string) (map[string]struct{}, error) {
	query := `
		SELECT remote_message_id
		FROM message_records
		WHERE conversation_id = $1 AND remote_message_id IS NOT NULL`

	rows, err := r.db.Pool().Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list remote message ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan remote message id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// InsertBatch stores new records in a single transaction so a failed
// sync pass leaves no partial state behind.
func (r *MessageRepo) InsertBatch(ctx context.Context, records []*message.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO message_records (conversation_id, kind, content, direction, sender, remote_message_id, remote_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	err := r.db.InTx(ctx, func(tx pgx.Tx) error {
		for _, m := range records {
			_, err := tx.Exec(ctx, query,
				m.ConversationID, m.Kind, m.Content, m.Direction, m.Sender, m.RemoteMessageID, m.RemoteTS,
			)
			if err != nil {
				return fmt.Errorf("insert message record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// ListByConversation returns records in chronological order by the
// platform timestamp. Records without one sort last, then by insert
// order.
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationID string) ([]*message.Record, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM message_records
		WHERE conversation_id = $1
		ORDER BY remote_ts ASC NULLS LAST, id ASC`

	rows, err := r.db.Pool().Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list message records: %w", err)
	}
	defer rows.Close()

	var records []*message.Record
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, m)
	}
	return records, rows.Err()
}

// ListNotes returns only agent notes for a conversation, oldest first.
func (r *MessageRepo) ListNotes(ctx context.Context, conversationID string) ([]*message.Record, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM message_records
		WHERE conversation_id = $1 AND kind = $2
		ORDER BY remote_ts ASC NULLS LAST, id ASC`

	rows, err := r.db.Pool().Query(ctx, query, conversationID, message.KindNote)
	if err != nil {
		return nil, fmt.Errorf("list note records: %w", err)
	}
	defer rows.Close()

	var records []*message.Record
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, m)
	}
	return records, rows.Err()
}

func (r *MessageRepo) CountByConversation(ctx context.Context, conversationID string) (int, error) {
	query := `SELECT COUNT(*) FROM message_records WHERE conversation_id = $1`
	var n int
	if err := r.db.Pool().QueryRow(ctx, query, conversationID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count message records: %w", err)
	}
	return n, nil
}
