package domain

import "time"

type RoomKind string

const (
	KindShared RoomKind = "SHARED"
	KindDirect RoomKind = "DIRECT"
)

func (k RoomKind) Valid() bool { return k == KindShared || k == KindDirect }

type Participant struct {
	UserID   int64  `json:"userId"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoUrl,omitempty"`
}

// Conversation это элемент списка чатов. Для DIRECT задан ровно один Counterpart,
// для SHARED участие неявное и Counterpart пустой.
type Conversation struct {
	RoomID       int64        `json:"roomId"`
	Kind         RoomKind     `json:"kind"`
	Counterpart  *Participant `json:"counterpart,omitempty"`
	LastMessage  *Message     `json:"lastMessage,omitempty"`
	LastActivity time.Time    `json:"lastActivity"`
	UnreadCount  int          `json:"unreadCount"`
	ActiveUsers  int          `json:"activeUsers"`
}
