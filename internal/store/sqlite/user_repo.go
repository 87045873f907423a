package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/clementraoulgithub/gui-tcp-server/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

var _ domain.UserRepository = (*UserRepo)(nil)

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (username, hashed_password, description, is_active, is_online, created_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`
	res, err := r.db.ExecContext(ctx, query, u.Username, u.HashedPassword, u.Description, true, false)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("insert user %q: %w", u.Username, domain.ErrConflict)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	u.ID = id
	u.IsActive = true
	return nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, hashed_password, description, is_active, is_online, created_at
		FROM users WHERE username = ?
	`, username).Scan(
		&u.ID,
		&u.Username,
		&u.HashedPassword,
		&u.Description,
		&u.IsActive,
		&u.IsOnline,
		&u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (r *UserRepo) ListUsernames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT username FROM users WHERE is_active = 1 ORDER BY username ASC`)
	if err != nil {
		return nil, fmt.Errorf("list usernames: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *UserRepo) SetOnlineStatus(ctx context.Context, username string, isOnline bool) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET is_online = ? WHERE username = ?`, isOnline, username); err != nil {
		return fmt.Errorf("set online status: %w", err)
	}
	return nil
}

// GetIcon returns the stored picture, nil when the user has none.
func (r *UserRepo) GetIcon(ctx context.Context, username string) ([]byte, error) {
	var icon []byte
	err := r.db.QueryRowContext(ctx, `SELECT icon FROM users WHERE username = ?`, username).Scan(&icon)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get icon: %w", err)
	}
	return icon, nil
}

func (r *UserRepo) SetIcon(ctx context.Context, username string, icon []byte) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET icon = ? WHERE username = ?`, icon, username)
	if err != nil {
		return fmt.Errorf("set icon: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
