package service

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/clementraoulgithub/gui-tcp-server/internal/domain"
)

// MaxMessageLength bounds the body of a relayed message, in runes.
const MaxMessageLength = 5000

// MessageService stores relayed messages and serves history pages.
type MessageService struct {
	messages domain.MessageRepository
}

func NewMessageService(messages domain.MessageRepository) *MessageService {
	return &MessageService{messages: messages}
}

type MessageCreateInput struct {
	Sender     string
	Receiver   string
	Content    string
	ResponseID *int64
}

// Create persists a message and returns it with its server id.
func (s *MessageService) Create(ctx context.Context, in MessageCreateInput) (*domain.Message, error) {
	if in.Sender == "" || in.Receiver == "" {
		return nil, fmt.Errorf("sender and receiver are required: %w", domain.ErrInvalidInput)
	}
	if in.Content == "" {
		return nil, fmt.Errorf("empty message: %w", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(in.Content) > MaxMessageLength {
		return nil, fmt.Errorf("message content exceeds %d characters: %w", MaxMessageLength, domain.ErrInvalidInput)
	}

	m := &domain.Message{
		Sender:     in.Sender,
		Receiver:   in.Receiver,
		Content:    in.Content,
		ResponseID: in.ResponseID,
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

// Older returns a page of history in the backend wire format.
func (s *MessageService) Older(ctx context.Context, start int64, count int, user1, user2 string) ([]domain.HistoryMessage, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be positive: %w", domain.ErrInvalidInput)
	}
	msgs, err := s.messages.ListOlder(ctx, start, count, user1, user2)
	if err != nil {
		return nil, err
	}
	out := make([]domain.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ToHistory())
	}
	return out, nil
}

func (s *MessageService) LastID(ctx context.Context) (int64, error) {
	return s.messages.LastID(ctx)
}

// SetReactions stores the absolute reaction total of a message.
func (s *MessageService) SetReactions(ctx context.Context, id int64, count int) error {
	if count < 0 {
		return fmt.Errorf("negative reaction count: %w", domain.ErrInvalidInput)
	}
	return s.messages.SetReactions(ctx, id, count)
}

func (s *MessageService) MarkRead(ctx context.Context, sender, receiver string, isRead bool) error {
	if sender == "" || receiver == "" {
		return fmt.Errorf("sender and receiver are required: %w", domain.ErrInvalidInput)
	}
	return s.messages.MarkRead(ctx, sender, receiver, isRead)
}
