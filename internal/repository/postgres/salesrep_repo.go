package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"salesbridge-service/internal/domain/salesrep"
	xerrors "salesbridge-service/internal/pkg/errors"
)

type SalesRepRepo struct {
	db *DB
}

func NewSalesRepRepo(db *DB) *SalesRepRepo {
	return &SalesRepRepo{db: db}
}

const salesRepColumns = `id, party_id, party_number, external_id, email, first_name, last_name, created_at, updated_at`

func scanSalesRep(row pgx.Row) (*salesrep.SalesRep, error) {
	var r salesrep.SalesRep
	err := row.Scan(
		&r.ID,
		&r.PartyID,
		&r.PartyNumber,
		&r.ExternalID,
		&r.Email,
		&r.FirstName,
		&r.LastName,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan sales rep: %w", err)
	}
	return &r, nil
}

func (r *SalesRepRepo) Create(ctx context.Context, rep *salesrep.SalesRep) error {
	query := `
		INSERT INTO sales_reps (party_id, party_number, external_id, email, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.Pool().QueryRow(ctx, query,
		rep.PartyID, rep.PartyNumber, rep.ExternalID, rep.Email, rep.FirstName, rep.LastName,
	).Scan(&rep.ID, &rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert sales rep: %w", err)
	}
	return nil
}

func (r *SalesRepRepo) FindByID(ctx context.Context, id int64) (*salesrep.SalesRep, error) {
	query := `SELECT ` + salesRepColumns + ` FROM sales_reps WHERE id = $1`
	return scanSalesRep(r.db.Pool().QueryRow(ctx, query, id))
}

func (r *SalesRepRepo) FindByPartyID(ctx context.Context, partyID int64) (*salesrep.SalesRep, error) {
	query := `SELECT ` + salesRepColumns + ` FROM sales_reps WHERE party_id = $1`
	return scanSalesRep(r.db.Pool().QueryRow(ctx, query, partyID))
}

func (r *SalesRepRepo) FindByPartyNumber(ctx context.Context, partyNumber int64) (*salesrep.SalesRep, error) {
	query := `
		SELECT ` + salesRepColumns + `
		FROM sales_reps
		WHERE party_number = $1
		ORDER BY id
		LIMIT 1`
	return scanSalesRep(r.db.Pool().QueryRow(ctx, query, partyNumber))
}

// FindByParty resolves a rep from whichever CRM key the caller has,
// preferring the party number when both are given.
func (r *SalesRepRepo) FindByParty(ctx context.Context, partyID, partyNumber *int64) (*salesrep.SalesRep, error) {
	if partyNumber != nil {
		rep, err := r.FindByPartyNumber(ctx, *partyNumber)
		if err == nil {
			return rep, nil
		}
		if !errors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
	}
	if partyID != nil {
		return r.FindByPartyID(ctx, *partyID)
	}
	return nil, xerrors.ErrNotFound
}

func (r *SalesRepRepo) FindByExternalID(ctx context.Context, externalID string) (*salesrep.SalesRep, error) {
	query := `SELECT ` + salesRepColumns + ` FROM sales_reps WHERE external_id = $1 ORDER BY id LIMIT 1`
	return scanSalesRep(r.db.Pool().QueryRow(ctx, query, externalID))
}

// UpdateProfile backfills the mutable directory fields. Nil arguments
// leave the stored value untouched.
func (r *SalesRepRepo) UpdateProfile(ctx context.Context, id int64, externalID, email, firstName, lastName *string) error {
	query := `
		UPDATE sales_reps
		SET external_id = COALESCE($2, external_id),
		    email = COALESCE($3, email),
		    first_name = COALESCE($4, first_name),
		    last_name = COALESCE($5, last_name),
		    updated_at = NOW()
		WHERE id = $1`
	tag, err := r.db.Pool().Exec(ctx, query, id, externalID, email, firstName, lastName)
	if err != nil {
		return fmt.Errorf("update sales rep profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *SalesRepRepo) UpdateEmail(ctx context.Context, id int64, email string) error {
	query := `UPDATE sales_reps SET email = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Pool().Exec(ctx, query, id, email)
	if err != nil {
		return fmt.Errorf("update sales rep email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}

func (r *SalesRepRepo) List(ctx context.Context, limit, offset int) ([]*salesrep.SalesRep, error) {
	query := `
		SELECT ` + salesRepColumns + `
		FROM sales_reps
		ORDER BY id
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Pool().Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sales reps: %w", err)
	}
	defer rows.Close()

	var reps []*salesrep.SalesRep
	for rows.Next() {
		rep, err := scanSalesRep(rows)
		if err != nil {
			return nil, err
		}
		reps = append(reps, rep)
	}
	return reps, rows.Err()
}

// ListMissingEmail returns reps without a stored mailbox, used by the
// directory email backfill.
func (r *SalesRepRepo) ListMissingEmail(ctx context.Context) ([]*salesrep.SalesRep, error) {
	query := `
		SELECT ` + salesRepColumns + `
		FROM sales_reps
		WHERE email IS NULL OR email = ''
		ORDER BY id`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sales reps missing email: %w", err)
	}
	defer rows.Close()

	var reps []*salesrep.SalesRep
	for rows.Next() {
		rep, err := scanSalesRep(rows)
		if err != nil {
			return nil, err
		}
		reps = append(reps, rep)
	}
	return reps, rows.Err()
}
