package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/clementraoulgithub/gui-tcp-server/internal/domain"
)

// MaxIconSize bounds uploaded pictures.
const MaxIconSize = 1 << 20

// UserService provides user-related operations.
type UserService struct {
	users domain.UserRepository
}

func NewUserService(users domain.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) Get(ctx context.Context, username string) (*domain.User, error) {
	return s.users.GetByUsername(ctx, username)
}

func (s *UserService) ListUsernames(ctx context.Context) ([]string, error) {
	return s.users.ListUsernames(ctx)
}

func (s *UserService) SetOnlineStatus(ctx context.Context, username string, isOnline bool) error {
	return s.users.SetOnlineStatus(ctx, username, isOnline)
}

func (s *UserService) Icon(ctx context.Context, username string) ([]byte, error) {
	return s.users.GetIcon(ctx, username)
}

// SetIcon stores an image for username. Only image payloads are accepted.
func (s *UserService) SetIcon(ctx context.Context, username string, icon []byte) error {
	if len(icon) == 0 || len(icon) > MaxIconSize {
		return fmt.Errorf("icon size %d out of range: %w", len(icon), domain.ErrInvalidInput)
	}
	if ct := http.DetectContentType(icon); len(ct) < 6 || ct[:6] != "image/" {
		return fmt.Errorf("icon is %s, not an image: %w", ct, domain.ErrInvalidInput)
	}
	return s.users.SetIcon(ctx, username, icon)
}
