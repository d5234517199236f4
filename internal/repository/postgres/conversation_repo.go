package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"salesbridge-service/internal/domain/conversation"
	xerrors "salesbridge-service/internal/pkg/errors"
)

type ConversationRepo struct {
	db *DB
}

func NewConversationRepo(db *DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

const conversationColumns = `id, remote_id, person_id, rep_id, state, phone, program_code, lead_id, next_sync_at, last_sync_at, created_at, updated_at`

func scanConversation(row pgx.Row) (*conversation.Conversation, error) {
	var c conversation.Conversation
	err := row.Scan(
		&c.ID,
		&c.RemoteID,
		&c.PersonID,
		&c.RepID,
		&c.State,
		&c.Phone,
		&c.ProgramCode,
		&c.LeadID,
		&c.NextSyncAt,
		&c.LastSyncAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return &c, nil
}

// Insert appends a new event row. Conversations are never updated in
// place except for state and sync bookkeeping.
func (r *ConversationRepo) Insert(ctx context.Context, c *conversation.Conversation) error {
	query := `
		INSERT INTO conversations (remote_id, person_id, rep_id, state, phone, program_code, lead_id, next_sync_at, last_sync_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err := r.db.Pool().QueryRow(ctx, query,
		c.RemoteID, c.PersonID, c.RepID, c.State, c.Phone, c.ProgramCode, c.LeadID, c.NextSyncAt, c.LastSyncAt,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepo) LatestByPerson(ctx context.Context, personID int64) (*conversation.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE person_id = $1
		ORDER BY id DESC
		LIMIT 1`
	return scanConversation(r.db.Pool().QueryRow(ctx, query, personID))
}

// PreviousForPerson returns the person's newest event row other than
// the one just inserted.
func (r *ConversationRepo) PreviousForPerson(ctx context.Context, personID, excludeID int64) (*conversation.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE person_id = $1 AND id <> $2
		ORDER BY id DESC
		LIMIT 1`
	return scanConversation(r.db.Pool().QueryRow(ctx, query, personID, excludeID))
}

func (r *ConversationRepo) LatestByRemoteID(ctx context.Context, remoteID string) (*conversation.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE remote_id = $1
		ORDER BY id DESC
		LIMIT 1`
	return scanConversation(r.db.Pool().QueryRow(ctx, query, remoteID))
}

func (r *ConversationRepo) ListByRemoteID(ctx context.Context, remoteID string) ([]*conversation.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE remote_id = $1
		ORDER BY id`
	return r.queryMany(ctx, query, remoteID)
}

func (r *ConversationRepo) ListByPerson(ctx context.Context, personID int64) ([]*conversation.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE person_id = $1
		ORDER BY id`
	return r.queryMany(ctx, query, personID)
}

func (r *ConversationRepo) ListByLeadID(ctx context.Context, leadID string) ([]*conversation.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE lead_id = $1
		ORDER BY id`
	return r.queryMany(ctx, query, leadID)
}

func (r *ConversationRepo) ListByProgramAndPerson(ctx context.Context, programCode string, personID int64) ([]*conversation.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE program_code = $1 AND person_id = $2
		ORDER BY id`
	return r.queryMany(ctx, query, programCode, personID)
}

func (r *ConversationRepo) List(ctx context.Context, limit, offset int) ([]*conversation.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		ORDER BY id DESC
		LIMIT $1 OFFSET $2`
	return r.queryMany(ctx, query, limit, offset)
}

// LeadSeen reports whether any event row already carries this lead id.
func (r *ConversationRepo) LeadSeen(ctx context.Context, leadID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM conversations WHERE lead_id = $1)`
	var seen bool
	if err := r.db.Pool().QueryRow(ctx, query, leadID).Scan(&seen); err != nil {
		return false, fmt.Errorf("check lead seen: %w", err)
	}
	return seen, nil
}

// DistinctLeadIDs lists every non-empty lead id recorded for a remote
// conversation, oldest first.
func (r *ConversationRepo) DistinctLeadIDs(ctx context.Context, remoteID string) ([]string, error) {
	query := `
		SELECT DISTINCT lead_id
		FROM conversations
		WHERE remote_id = $1 AND lead_id IS NOT NULL AND lead_id <> ''
		ORDER BY lead_id`

	rows, err := r.db.Pool().Query(ctx, query, remoteID)
	if err != nil {
		return nil, fmt.Errorf("list lead ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan lead id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LatestByProgramAndRemote finds the newest event row matching a
// program code on a remote conversation.
func (r *ConversationRepo) LatestByProgramAndRemote(ctx context.Context, programCode, remoteID string) (*conversation.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE program_code = $1 AND remote_id = $2
		ORDER BY id DESC
		LIMIT 1`
	return scanConversation(r.db.Pool().QueryRow(ctx, query, programCode, remoteID))
}

func (r *ConversationRepo) UpdateState(ctx context.Context, id int64, state string) error {
	query := `UPDATE conversations SET state = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Pool().Exec(ctx, query, id, state)
	if err != nil {
		return fmt.Errorf("update conversation state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *ConversationRepo) UpdateRep(ctx context.Context, id int64, repID int64) error {
	query := `UPDATE conversations SET rep_id = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Pool().Exec(ctx, query, id, repID)
	if err != nil {
		return fmt.Errorf("update conversation rep: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// TouchSync records when the row was synced and when the next pass is
// due.
func (r *ConversationRepo) TouchSync(ctx context.Context, id int64, lastSync, nextSync time.Time) error {
	query := `UPDATE conversations SET last_sync_at = $2, next_sync_at = $3, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Pool().Exec(ctx, query, id, lastSync, nextSync)
	if err != nil {
		return fmt.Errorf("touch conversation sync: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *ConversationRepo) queryMany(ctx context.Context, query string, args ...any) ([]*conversation.Conversation, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []*conversation.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}
