package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/everkeep/everkeep/internal/db"
)

const contactColumns = `
	id, name, phones, emails,
	COALESCE(company, '') AS company,
	COALESCE(role, '') AS role,
	categories, favorite,
	COALESCE(notes, '') AS notes,
	profile, raw_source,
	message_count, interaction_count,
	created_at, updated_at`

// PostgresContactStore implements ContactStore on a pgx pool.
type PostgresContactStore struct {
	pool *pgxpool.Pool
}

var _ ContactStore = (*PostgresContactStore)(nil)

// NewPostgresContactStore creates a contact store backed by Postgres.
func NewPostgresContactStore(pool *pgxpool.Pool) *PostgresContactStore {
	return &PostgresContactStore{pool: pool}
}

func (s *PostgresContactStore) Create(ctx context.Context, contact Contact) (Contact, error) {
	query := `
		INSERT INTO contacts (name, phones, emails, company, role, categories, favorite, notes, profile, raw_source, message_count, interaction_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + contactColumns
	row := s.pool.QueryRow(ctx, query,
		contact.Name,
		textArray(contact.Phones),
		textArray(contact.Emails),
		db.NullableText(contact.Company),
		db.NullableText(contact.Role),
		textArray(contact.Categories),
		contact.Favorite,
		db.NullableText(contact.Notes),
		jsonb(contact.Profile),
		jsonb(contact.RawSource),
		contact.MessageCount,
		contact.InteractionCount,
	)
	created, err := scanContact(row)
	if err != nil {
		return Contact{}, fmt.Errorf("create contact: %w", err)
	}
	return created, nil
}

func (s *PostgresContactStore) Update(ctx context.Context, contact Contact) (Contact, error) {
	id, err := db.ParseUUID(contact.ID)
	if err != nil {
		return Contact{}, err
	}
	query := `
		UPDATE contacts
		SET name = $2, phones = $3, emails = $4, company = $5, role = $6,
		    categories = $7, favorite = $8, notes = $9, profile = $10,
		    raw_source = $11, message_count = $12, interaction_count = $13,
		    updated_at = now()
		WHERE id = $1
		RETURNING ` + contactColumns
	row := s.pool.QueryRow(ctx, query,
		id,
		contact.Name,
		textArray(contact.Phones),
		textArray(contact.Emails),
		db.NullableText(contact.Company),
		db.NullableText(contact.Role),
		textArray(contact.Categories),
		contact.Favorite,
		db.NullableText(contact.Notes),
		jsonb(contact.Profile),
		jsonb(contact.RawSource),
		contact.MessageCount,
		contact.InteractionCount,
	)
	updated, err := scanContact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrContactNotFound
		}
		return Contact{}, fmt.Errorf("update contact: %w", err)
	}
	return updated, nil
}

func (s *PostgresContactStore) Delete(ctx context.Context, id string) error {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM contacts WHERE id = $1`, pgID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrHasMessages
		}
		return fmt.Errorf("delete contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrContactNotFound
	}
	return nil
}

func (s *PostgresContactStore) GetByID(ctx context.Context, id string) (Contact, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return Contact{}, err
	}
	row := s.pool.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, pgID)
	contact, err := scanContact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, ErrContactNotFound
		}
		return Contact{}, fmt.Errorf("get contact: %w", err)
	}
	return contact, nil
}

func (s *PostgresContactStore) List(ctx context.Context, limit, offset int) ([]Contact, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+contactColumns+` FROM contacts ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()
	return collectContacts(rows)
}

func (s *PostgresContactStore) ListAll(ctx context.Context) ([]Contact, error) {
	const pageSize = 500
	all := []Contact{}
	for offset := 0; ; offset += pageSize {
		page, err := s.List(ctx, pageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

func (s *PostgresContactStore) Search(ctx context.Context, query string, limit, offset int) ([]Contact, error) {
	if query == "" {
		return s.List(ctx, limit, offset)
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	pattern := "%" + query + "%"
	rows, err := s.pool.Query(ctx, `
		SELECT `+contactColumns+`
		FROM contacts
		WHERE name ILIKE $1
		   OR company ILIKE $1
		   OR EXISTS (SELECT 1 FROM unnest(emails) e WHERE e ILIKE $1)
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	defer rows.Close()
	return collectContacts(rows)
}

func collectContacts(rows pgx.Rows) ([]Contact, error) {
	items := []Contact{}
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, contact)
	}
	return items, rows.Err()
}

func scanContact(row pgx.Row) (Contact, error) {
	var (
		contact              Contact
		id                   pgtype.UUID
		profile, rawSource   []byte
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&id,
		&contact.Name,
		&contact.Phones,
		&contact.Emails,
		&contact.Company,
		&contact.Role,
		&contact.Categories,
		&contact.Favorite,
		&contact.Notes,
		&profile,
		&rawSource,
		&contact.MessageCount,
		&contact.InteractionCount,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return Contact{}, err
	}
	contact.ID = db.UUIDString(id)
	contact.Profile = json.RawMessage(profile)
	contact.RawSource = json.RawMessage(rawSource)
	contact.CreatedAt = db.TimeFromPg(createdAt)
	contact.UpdatedAt = db.TimeFromPg(updatedAt)
	return contact, nil
}

func textArray(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func jsonb(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
