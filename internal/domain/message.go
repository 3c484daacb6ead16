package domain

import "time"

type MessageType string

const (
	TypeUser   MessageType = "USER"
	TypeSystem MessageType = "SYSTEM"
)

type MessageStatus string

const (
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Advances сообщает, продвигает ли next статус вперёд. Статусы не откатываются.
func (s MessageStatus) Advances(next MessageStatus) bool {
	return next.rank() > s.rank()
}

type Message struct {
	ID       int64         `json:"id"`
	RoomID   int64         `json:"chatRoomId"`
	SenderID int64         `json:"senderId"`
	Content  string        `json:"content"`
	SentAt   time.Time     `json:"sentAt"`
	Type     MessageType   `json:"type"`
	Status   MessageStatus `json:"status"`
	Edited   bool          `json:"edited,omitempty"`
}

type MessagePage struct {
	Messages      []Message
	CurrentPage   int
	HasMore       bool
	TotalMessages int
	RateLimit     *RateLimit
}

// MessageWindow это кеш активного чата: Messages от новых к старым.
type MessageWindow struct {
	RoomID        int64     `json:"roomId"`
	Kind          RoomKind  `json:"kind"`
	Messages      []Message `json:"messages"`
	CurrentPage   int       `json:"currentPage"`
	HasMore       bool      `json:"hasMore"`
	TotalMessages int       `json:"totalMessages"`
}

func (w MessageWindow) Clone() MessageWindow {
	out := w
	out.Messages = append([]Message(nil), w.Messages...)
	return out
}
