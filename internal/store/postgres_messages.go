package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/everkeep/everkeep/internal/db"
)

// PostgresMessageStore implements MessageStore on a pgx pool. Bulk inserts go
// through CopyFrom inside a transaction so a chunk commits fully or not at
// all.
type PostgresMessageStore struct {
	pool *pgxpool.Pool
}

var _ MessageStore = (*PostgresMessageStore)(nil)

// NewPostgresMessageStore creates a message store backed by Postgres.
func NewPostgresMessageStore(pool *pgxpool.Pool) *PostgresMessageStore {
	return &PostgresMessageStore{pool: pool}
}

func (s *PostgresMessageStore) BulkInsert(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(messages))
	for _, m := range messages {
		var contactID pgtype.UUID
		if m.ContactID != "" {
			parsed, err := db.ParseUUID(m.ContactID)
			if err != nil {
				return fmt.Errorf("message contact id: %w", err)
			}
			contactID = parsed
		}
		rows = append(rows, []any{
			contactID,
			m.ChatName,
			m.ChatKey,
			db.NullableText(m.Sender),
			db.NullableText(m.Content),
			m.Direction,
			m.SentAt,
		})
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin bulk insert: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"messages"},
		[]string{"contact_id", "chat_name", "chat_key", "sender", "content", "direction", "sent_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("bulk insert messages: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresMessageStore) HasChat(ctx context.Context, chatKey string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE chat_key = $1)`, chatKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check chat: %w", err)
	}
	return exists, nil
}

func (s *PostgresMessageStore) AssignByChatKey(ctx context.Context, chatKey, contactID string) (int, error) {
	pgContactID, err := db.ParseUUID(contactID)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET contact_id = $2 WHERE chat_key = $1 AND contact_id IS NULL`,
		chatKey, pgContactID)
	if err != nil {
		return 0, fmt.Errorf("assign messages: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresMessageStore) ReassignContact(ctx context.Context, fromContactID, toContactID string) (int, error) {
	fromID, err := db.ParseUUID(fromContactID)
	if err != nil {
		return 0, err
	}
	toID, err := db.ParseUUID(toContactID)
	if err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET contact_id = $2 WHERE contact_id = $1`, fromID, toID)
	if err != nil {
		return 0, fmt.Errorf("reassign messages: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresMessageStore) CountByContact(ctx context.Context, contactID, direction string) (int, error) {
	pgContactID, err := db.ParseUUID(contactID)
	if err != nil {
		return 0, err
	}
	var count int
	if direction == "" {
		err = s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM messages WHERE contact_id = $1`, pgContactID,
		).Scan(&count)
	} else {
		err = s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM messages WHERE contact_id = $1 AND direction = $2`,
			pgContactID, direction,
		).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

func (s *PostgresMessageStore) ListByContact(ctx context.Context, contactID string, limit, offset int) ([]Message, error) {
	pgContactID, err := db.ParseUUID(contactID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, contact_id, chat_name, chat_key,
		       COALESCE(sender, '') AS sender,
		       COALESCE(content, '') AS content,
		       direction, sent_at
		FROM messages
		WHERE contact_id = $1
		ORDER BY sent_at, id
		LIMIT $2 OFFSET $3`,
		pgContactID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := []Message{}
	for rows.Next() {
		var (
			m         Message
			id        pgtype.UUID
			contactID pgtype.UUID
			sentAt    pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &contactID, &m.ChatName, &m.ChatKey, &m.Sender, &m.Content, &m.Direction, &sentAt); err != nil {
			return nil, err
		}
		m.ID = db.UUIDString(id)
		m.ContactID = db.UUIDString(contactID)
		m.SentAt = db.TimeFromPg(sentAt)
		items = append(items, m)
	}
	return items, rows.Err()
}
