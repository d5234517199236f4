package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"salesbridge-service/internal/domain/person"
	xerrors "salesbridge-service/internal/pkg/errors"
)

type PersonRepo struct {
	db *DB
}

func NewPersonRepo(db *DB) *PersonRepo {
	return &PersonRepo{db: db}
}

const personColumns = `id, party_id, party_number, phone, messaging_id, created_at, updated_at`

func scanPerson(row pgx.Row) (*person.Person, error) {
	var p person.Person
	err := row.Scan(
		&p.ID,
		&p.PartyID,
		&p.PartyNumber,
		&p.Phone,
		&p.MessagingID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan person: %w", err)
	}
	return &p, nil
}

func (r *PersonRepo) Create(ctx context.Context, p *person.Person) error {
	query := `
		INSERT INTO people (party_id, party_number, phone, messaging_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.db.Pool().QueryRow(ctx, query,
		p.PartyID, p.PartyNumber, p.Phone, p.MessagingID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

func (r *PersonRepo) FindByID(ctx context.Context, id int64) (*person.Person, error) {
	query := `SELECT ` + personColumns + ` FROM people WHERE id = $1`
	return scanPerson(r.db.Pool().QueryRow(ctx, query, id))
}

// FindByParty looks a person up by CRM key. At least one key must be
// present; party_id takes precedence when both are given. The newest
// row wins when several match.
func (r *PersonRepo) FindByParty(ctx context.Context, partyID, partyNumber *int64) (*person.Person, error) {
	switch {
	case partyID != nil:
		return r.findByPartyColumn(ctx, "party_id", *partyID)
	case partyNumber != nil:
		return r.findByPartyColumn(ctx, "party_number", *partyNumber)
	default:
		return nil, xerrors.ErrInvalidInput
	}
}

func (r *PersonRepo) findByPartyColumn(ctx context.Context, column string, value int64) (*person.Person, error) {
	query := `
		SELECT ` + personColumns + `
		FROM people
		WHERE ` + column + ` = $1
		ORDER BY id DESC
		LIMIT 1`
	return scanPerson(r.db.Pool().QueryRow(ctx, query, value))
}

func (r *PersonRepo) FindByPhone(ctx context.Context, phone string) (*person.Person, error) {
	query := `
		SELECT ` + personColumns + `
		FROM people
		WHERE phone = $1
		ORDER BY id DESC
		LIMIT 1`
	return scanPerson(r.db.Pool().QueryRow(ctx, query, phone))
}

func (r *PersonRepo) FindByMessagingID(ctx context.Context, messagingID string) (*person.Person, error) {
	query := `
		SELECT ` + personColumns + `
		FROM people
		WHERE messaging_id = $1
		ORDER BY id DESC
		LIMIT 1`
	return scanPerson(r.db.Pool().QueryRow(ctx, query, messagingID))
}

func (r *PersonRepo) UpdatePhone(ctx context.Context, id int64, phone string) error {
	query := `UPDATE people SET phone = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Pool().Exec(ctx, query, id, phone)
	if err != nil {
		return fmt.Errorf("update person phone: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *PersonRepo) UpdateMessagingID(ctx context.Context, id int64, messagingID string) error {
	query := `UPDATE people SET messaging_id = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Pool().Exec(ctx, query, id, messagingID)
	if err != nil {
		return fmt.Errorf("update person messaging id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

// UpdateSyncedFields overwrites the platform-owned columns in one
// statement. The bulk sync treats the platform as source of truth, so
// nil values clear the column rather than preserve it.
func (r *PersonRepo) UpdateSyncedFields(ctx context.Context, id int64, partyID *int64, phone string, messagingID *string) error {
	query := `
		UPDATE people
		SET party_id = $2, phone = $3, messaging_id = $4, updated_at = NOW()
		WHERE id = $1`
	tag, err := r.db.Pool().Exec(ctx, query, id, partyID, phone, messagingID)
	if err != nil {
		return fmt.Errorf("update person synced fields: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *PersonRepo) List(ctx context.Context, limit, offset int) ([]*person.Person, error) {
	query := `
		SELECT ` + personColumns + `
		FROM people
		ORDER BY id
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Pool().Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	defer rows.Close()

	var people []*person.Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

// InsertBatch inserts many people in one transaction. Rows that would
// violate the (party_id, party_number) uniqueness are skipped.
func (r *PersonRepo) InsertBatch(ctx context.Context, people []*person.Person) (int, error) {
	if len(people) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO people (party_id, party_number, phone, messaging_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (party_id, party_number) DO NOTHING`

	inserted := 0
	err := r.db.InTx(ctx, func(tx pgx.Tx) error {
		for _, p := range people {
			tag, err := tx.Exec(ctx, query, p.PartyID, p.PartyNumber, p.Phone, p.MessagingID)
			if err != nil {
				return fmt.Errorf("insert person batch: %w", err)
			}
			inserted += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
