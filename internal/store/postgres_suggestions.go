package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/everkeep/everkeep/internal/db"
)

const suggestionColumns = `
	id, mentioned_name, source, target_contact_id,
	confidence, reason, status,
	created_at, updated_at`

// PostgresSuggestionStore implements SuggestionStore on a pgx pool.
type PostgresSuggestionStore struct {
	pool *pgxpool.Pool
}

var _ SuggestionStore = (*PostgresSuggestionStore)(nil)

// NewPostgresSuggestionStore creates a suggestion store backed by Postgres.
func NewPostgresSuggestionStore(pool *pgxpool.Pool) *PostgresSuggestionStore {
	return &PostgresSuggestionStore{pool: pool}
}

func (s *PostgresSuggestionStore) Insert(ctx context.Context, suggestion LinkSuggestion) (LinkSuggestion, error) {
	var target pgtype.UUID
	if suggestion.TargetContactID != "" {
		parsed, err := db.ParseUUID(suggestion.TargetContactID)
		if err != nil {
			return LinkSuggestion{}, err
		}
		target = parsed
	}
	status := suggestion.Status
	if status == "" {
		status = SuggestionPending
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO link_suggestions (mentioned_name, source, target_contact_id, confidence, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+suggestionColumns,
		suggestion.MentionedName,
		suggestion.Source,
		target,
		suggestion.Confidence,
		db.NullableText(suggestion.Reason),
		status,
	)
	created, err := scanSuggestion(row)
	if err != nil {
		return LinkSuggestion{}, fmt.Errorf("insert suggestion: %w", err)
	}
	return created, nil
}

func (s *PostgresSuggestionStore) GetByID(ctx context.Context, id string) (LinkSuggestion, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return LinkSuggestion{}, err
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+suggestionColumns+` FROM link_suggestions WHERE id = $1`, pgID)
	suggestion, err := scanSuggestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LinkSuggestion{}, ErrSuggestionNotFound
		}
		return LinkSuggestion{}, fmt.Errorf("get suggestion: %w", err)
	}
	return suggestion, nil
}

func (s *PostgresSuggestionStore) ListPending(ctx context.Context) ([]LinkSuggestion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+suggestionColumns+` FROM link_suggestions WHERE status = $1 ORDER BY created_at, id`,
		SuggestionPending)
	if err != nil {
		return nil, fmt.Errorf("list pending suggestions: %w", err)
	}
	defer rows.Close()

	items := []LinkSuggestion{}
	for rows.Next() {
		suggestion, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, suggestion)
	}
	return items, rows.Err()
}

func (s *PostgresSuggestionStore) UpdateStatus(ctx context.Context, id, status string) (LinkSuggestion, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return LinkSuggestion{}, err
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE link_suggestions SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+suggestionColumns,
		pgID, status)
	suggestion, err := scanSuggestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LinkSuggestion{}, ErrSuggestionNotFound
		}
		return LinkSuggestion{}, fmt.Errorf("update suggestion status: %w", err)
	}
	return suggestion, nil
}

func (s *PostgresSuggestionStore) SetCandidate(ctx context.Context, id, targetContactID, reason string, confidence float64) (LinkSuggestion, error) {
	pgID, err := db.ParseUUID(id)
	if err != nil {
		return LinkSuggestion{}, err
	}
	var target pgtype.UUID
	if targetContactID != "" {
		parsed, err := db.ParseUUID(targetContactID)
		if err != nil {
			return LinkSuggestion{}, err
		}
		target = parsed
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE link_suggestions
		SET target_contact_id = $2, reason = $3, confidence = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+suggestionColumns,
		pgID, target, db.NullableText(reason), confidence)
	suggestion, err := scanSuggestion(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LinkSuggestion{}, ErrSuggestionNotFound
		}
		return LinkSuggestion{}, fmt.Errorf("set suggestion candidate: %w", err)
	}
	return suggestion, nil
}

func scanSuggestion(row pgx.Row) (LinkSuggestion, error) {
	var (
		suggestion           LinkSuggestion
		id, target           pgtype.UUID
		reason               pgtype.Text
		createdAt, updatedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&id,
		&suggestion.MentionedName,
		&suggestion.Source,
		&target,
		&suggestion.Confidence,
		&reason,
		&suggestion.Status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return LinkSuggestion{}, err
	}
	suggestion.ID = db.UUIDString(id)
	suggestion.TargetContactID = db.UUIDString(target)
	suggestion.Reason = db.TextToString(reason)
	suggestion.CreatedAt = db.TimeFromPg(createdAt)
	suggestion.UpdatedAt = db.TimeFromPg(updatedAt)
	return suggestion, nil
}
