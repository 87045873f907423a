package domain

import (
	"context"
)

// UserRepository defines persistence operations for relay accounts.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	ListUsernames(ctx context.Context) ([]string, error)
	SetOnlineStatus(ctx context.Context, username string, isOnline bool) error
	GetIcon(ctx context.Context, username string) ([]byte, error)
	SetIcon(ctx context.Context, username string, icon []byte) error
}

// MessageRepository defines persistence operations for relayed messages.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id int64) (*Message, error)
	ListOlder(ctx context.Context, start int64, count int, user1, user2 string) ([]*Message, error)
	LastID(ctx context.Context) (int64, error)
	SetReactions(ctx context.Context, id int64, count int) error
	MarkRead(ctx context.Context, sender, receiver string, isRead bool) error
}

// HistorySource pages through older messages. It is the client's view of
// the backend.
type HistorySource interface {
	GetOlderMessages(ctx context.Context, start int64, count int, user1, user2 string) ([]HistoryMessage, error)
}

// AvatarFetcher returns the picture of a user. An empty slice means the user
// has no picture.
type AvatarFetcher interface {
	GetUserIcon(ctx context.Context, username string) ([]byte, error)
}
