package domain

import "time"

// HomeRoom is the name of the shared room every connected user sees.
const HomeRoom = "home"

// ServerSender is the sender id used by the relay for system messages.
const ServerSender = "server"

// User represents an account known to the relay.
type User struct {
	ID             int64     `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	Description    string    `db:"description" json:"description"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	IsOnline       bool      `db:"is_online" json:"is_online"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Message is a chat message as persisted by the relay.
type Message struct {
	ID         int64     `db:"id"`
	Sender     string    `db:"sender"`
	Receiver   string    `db:"receiver"`
	Content    string    `db:"content"`
	ReactionNb int       `db:"reaction_nb"`
	ResponseID *int64    `db:"response_id"`
	IsRead     bool      `db:"is_readed"`
	CreatedAt  time.Time `db:"created_at"`
}

// HistoryMessage is one entry of a paged history response. Field names follow
// the backend wire format.
type HistoryMessage struct {
	MessageID  int64  `json:"message_id"`
	Sender     string `json:"sender"`
	Receiver   string `json:"receiver"`
	Message    string `json:"message"`
	ReactionNb int    `json:"reaction_nb"`
	CreatedAt  string `json:"created_at"`
	IsReaded   bool   `json:"is_readed"`
	ResponseID *int64 `json:"response_id"`
}

// ToHistory converts a stored message into its history representation.
func (m *Message) ToHistory() HistoryMessage {
	return HistoryMessage{
		MessageID:  m.ID,
		Sender:     m.Sender,
		Receiver:   m.Receiver,
		Message:    m.Content,
		ReactionNb: m.ReactionNb,
		CreatedAt:  m.CreatedAt.Format("2006-01-02 15:04:05"),
		IsReaded:   m.IsRead,
		ResponseID: m.ResponseID,
	}
}

// IsVisibleTo reports whether a message addressed to receiver and sent by
// sender should be shown to username: everything in the home room, plus
// direct messages the user takes part in.
func IsVisibleTo(sender, receiver, username string) bool {
	return receiver == HomeRoom || sender == username || receiver == username
}
