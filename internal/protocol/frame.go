package protocol

import (
	"encoding/json"
	"time"

	"github.com/cwrk-planet/chatsync/internal/domain"
)

type Action string

// Исходящие
const (
	ActionSendMessage Action = "SEND_MESSAGE"
	ActionTypingStart Action = "TYPING_START"
	ActionTypingStop  Action = "TYPING_STOP"
	ActionMarkRead    Action = "MARK_READ"
	ActionJoinRoom    Action = "JOIN_ROOM"
	ActionLeaveRoom   Action = "LEAVE_ROOM"
	ActionPing        Action = "PING"
)

// Входящие (TYPING_START/TYPING_STOP приходят в обе стороны)
const (
	ActionNewMessage    Action = "NEW_MESSAGE"
	ActionMessageStatus Action = "MESSAGE_STATUS"
	ActionUserOnline    Action = "USER_ONLINE"
	ActionUserOffline   Action = "USER_OFFLINE"
	ActionUserJoined    Action = "USER_JOINED"
	ActionUserLeft      Action = "USER_LEFT"
	ActionActiveCount   Action = "ACTIVE_COUNT"
	ActionPong          Action = "PONG"
)

// Frame это полезная нагрузка одного кадра реалтайм-протокола.
type Frame struct {
	Action        Action          `json:"action"`
	ChatRoomID    int64           `json:"chatRoomId,omitempty"`
	SenderID      int64           `json:"senderId,omitempty"`
	ReceiverID    int64           `json:"receiverId,omitempty"`
	Content       string          `json:"content,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	MessageID     int64           `json:"messageId,omitempty"`
	IsTyping      *bool           `json:"isTyping,omitempty"`
	UserID        int64           `json:"userId,omitempty"`
	MessageStatus string          `json:"messageStatus,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

type ActiveCountData struct {
	ActiveUsers int `json:"activeUsers"`
}

// Message собирает доменное сообщение из NEW_MESSAGE кадра.
func (f Frame) Message() domain.Message {
	return domain.Message{
		ID:       f.MessageID,
		RoomID:   f.ChatRoomID,
		SenderID: f.SenderID,
		Content:  f.Content,
		SentAt:   f.Timestamp,
		Type:     domain.TypeUser,
		Status:   domain.StatusSent,
	}
}

func Bool(v bool) *bool { return &v }
