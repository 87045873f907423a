package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clementraoulgithub/gui-tcp-server/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, sender, receiver, content, reaction_nb, response_id, is_readed, created_at`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	query := `
		INSERT INTO messages (sender, receiver, content, reaction_nb, response_id, is_readed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`
	res, err := r.db.ExecContext(ctx, query,
		m.Sender,
		m.Receiver,
		m.Content,
		m.ReactionNb,
		m.ResponseID,
		m.IsRead,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	m.CreatedAt = time.Now().UTC().Truncate(time.Second)
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ListOlder returns at most count messages with an id below start, oldest
// first. Home room messages are always included; direct messages only when
// exchanged between user1 and user2. start <= 0 pages from the newest.
func (r *MessageRepo) ListOlder(ctx context.Context, start int64, count int, user1, user2 string) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM (
			SELECT ` + messageColumns + ` FROM messages
			WHERE (? <= 0 OR id < ?)
			  AND (receiver = ?
			       OR (sender = ? AND receiver = ?)
			       OR (sender = ? AND receiver = ?))
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query,
		start, start,
		domain.HomeRoom,
		user1, user2,
		user2, user1,
		count,
	)
	if err != nil {
		return nil, fmt.Errorf("list older messages: %w", err)
	}
	defer rows.Close()

	var res []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MessageRepo) LastID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM messages`).Scan(&id); err != nil {
		return 0, fmt.Errorf("last message id: %w", err)
	}
	return id, nil
}

func (r *MessageRepo) SetReactions(ctx context.Context, id int64, count int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET reaction_nb = ? WHERE id = ?`, count, id)
	if err != nil {
		return fmt.Errorf("set reactions: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) MarkRead(ctx context.Context, sender, receiver string, isRead bool) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_readed = ? WHERE sender = ? AND receiver = ?`,
		isRead, sender, receiver,
	); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (*domain.Message, error) {
	m := &domain.Message{}
	var responseID sql.NullInt64
	if err := s.Scan(
		&m.ID,
		&m.Sender,
		&m.Receiver,
		&m.Content,
		&m.ReactionNb,
		&responseID,
		&m.IsRead,
		&m.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	if responseID.Valid {
		id := responseID.Int64
		m.ResponseID = &id
	}
	return m, nil
}
