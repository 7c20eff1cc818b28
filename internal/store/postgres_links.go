package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/everkeep/everkeep/internal/db"
	"github.com/everkeep/everkeep/internal/normalize"
)

const linkColumns = `
	id, source_contact_id, target_contact_id, mentioned_name,
	context, status, created_at`

// PostgresLinkStore implements LinkStore on a pgx pool.
type PostgresLinkStore struct {
	pool *pgxpool.Pool
}

var _ LinkStore = (*PostgresLinkStore)(nil)

// NewPostgresLinkStore creates a link store backed by Postgres.
func NewPostgresLinkStore(pool *pgxpool.Pool) *PostgresLinkStore {
	return &PostgresLinkStore{pool: pool}
}

func (s *PostgresLinkStore) Insert(ctx context.Context, link ContactLink) (ContactLink, error) {
	sourceID, err := db.ParseUUID(link.SourceContactID)
	if err != nil {
		return ContactLink{}, err
	}
	targetID, err := db.ParseUUID(link.TargetContactID)
	if err != nil {
		return ContactLink{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO contact_links (source_contact_id, target_contact_id, mentioned_name, mentioned_key, context, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+linkColumns,
		sourceID,
		targetID,
		link.MentionedName,
		normalize.Name(link.MentionedName),
		db.NullableText(link.Context),
		link.Status,
	)
	created, err := scanLink(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ContactLink{}, ErrMentionExists
		}
		return ContactLink{}, fmt.Errorf("insert link: %w", err)
	}
	return created, nil
}

func (s *PostgresLinkStore) ListBySource(ctx context.Context, sourceContactID string) ([]ContactLink, error) {
	return s.list(ctx, `source_contact_id`, sourceContactID)
}

func (s *PostgresLinkStore) ListByTarget(ctx context.Context, targetContactID string) ([]ContactLink, error) {
	return s.list(ctx, `target_contact_id`, targetContactID)
}

func (s *PostgresLinkStore) list(ctx context.Context, column, contactID string) ([]ContactLink, error) {
	pgID, err := db.ParseUUID(contactID)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+linkColumns+` FROM contact_links WHERE `+column+` = $1 ORDER BY created_at, id`,
		pgID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	items := []ContactLink{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, link)
	}
	return items, rows.Err()
}

func (s *PostgresLinkStore) HasDecision(ctx context.Context, sourceContactID, mentionedName string) (bool, error) {
	pgID, err := db.ParseUUID(sourceContactID)
	if err != nil {
		return false, err
	}
	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM contact_links
			WHERE source_contact_id = $1 AND mentioned_key = $2
		)`,
		pgID, normalize.Name(mentionedName),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check link decision: %w", err)
	}
	return exists, nil
}

func scanLink(row pgx.Row) (ContactLink, error) {
	var (
		link               ContactLink
		id, source, target pgtype.UUID
		linkContext        pgtype.Text
		createdAt          pgtype.Timestamptz
	)
	err := row.Scan(
		&id,
		&source,
		&target,
		&link.MentionedName,
		&linkContext,
		&link.Status,
		&createdAt,
	)
	if err != nil {
		return ContactLink{}, err
	}
	link.Context = db.TextToString(linkContext)
	link.ID = db.UUIDString(id)
	link.SourceContactID = db.UUIDString(source)
	link.TargetContactID = db.UUIDString(target)
	link.CreatedAt = db.TimeFromPg(createdAt)
	return link, nil
}
