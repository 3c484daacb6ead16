package api

import (
	"time"

	"github.com/cwrk-planet/chatsync/internal/domain"
)

type participantDTO struct {
	UserID   int64  `json:"userId"`
	Name     string `json:"name"`
	PhotoURL string `json:"photoUrl,omitempty"`
}

type messageDTO struct {
	ID         int64     `json:"id"`
	ChatRoomID int64     `json:"chatRoomId"`
	SenderID   int64     `json:"senderId"`
	Content    string    `json:"content"`
	SentAt     time.Time `json:"sentAt"`
	Type       string    `json:"type,omitempty"`
	Status     string    `json:"status,omitempty"`
	Edited     bool      `json:"edited,omitempty"`
}

type conversationDTO struct {
	RoomID       int64           `json:"roomId"`
	Kind         string          `json:"kind"`
	Counterpart  *participantDTO `json:"counterpart,omitempty"`
	LastMessage  *messageDTO     `json:"lastMessage,omitempty"`
	LastActivity time.Time       `json:"lastActivity"`
	UnreadCount  int             `json:"unreadCount"`
	ActiveUsers  int             `json:"activeUsers"`
}

type rateLimitDTO struct {
	CanSendMessage   bool   `json:"canSendMessage"`
	RemainingSeconds int    `json:"remainingSeconds"`
	IsPremium        bool   `json:"isPremium"`
	IsBanned         bool   `json:"isBanned"`
	Message          string `json:"message,omitempty"`
}

type pageDTO struct {
	Messages      []messageDTO  `json:"messages"`
	CurrentPage   int           `json:"currentPage"`
	HasMore       bool          `json:"hasMore"`
	TotalMessages int           `json:"totalMessages"`
	RateLimit     *rateLimitDTO `json:"rateLimit,omitempty"`
}

type sendRequest struct {
	Content    string `json:"content"`
	ReceiverID int64  `json:"receiverId,omitempty"`
}

type sendResponse struct {
	Message messageDTO `json:"message"`
}

func mapMessage(in messageDTO, room int64) domain.Message {
	m := domain.Message{
		ID:       in.ID,
		RoomID:   in.ChatRoomID,
		SenderID: in.SenderID,
		Content:  in.Content,
		SentAt:   in.SentAt,
		Type:     domain.MessageType(in.Type),
		Status:   domain.MessageStatus(in.Status),
		Edited:   in.Edited,
	}
	if m.RoomID == 0 {
		m.RoomID = room
	}
	if m.Type == "" {
		m.Type = domain.TypeUser
	}
	if m.Status == "" {
		m.Status = domain.StatusSent
	}
	return m
}

func mapConversation(in conversationDTO) domain.Conversation {
	c := domain.Conversation{
		RoomID:       in.RoomID,
		Kind:         domain.RoomKind(in.Kind),
		LastActivity: in.LastActivity,
		UnreadCount:  in.UnreadCount,
		ActiveUsers:  in.ActiveUsers,
	}
	if in.Counterpart != nil {
		c.Counterpart = &domain.Participant{
			UserID:   in.Counterpart.UserID,
			Name:     in.Counterpart.Name,
			PhotoURL: in.Counterpart.PhotoURL,
		}
	}
	if in.LastMessage != nil {
		m := mapMessage(*in.LastMessage, in.RoomID)
		c.LastMessage = &m
	}
	return c
}

func mapRateLimit(in rateLimitDTO) domain.RateLimit {
	return domain.RateLimit{
		CanSendMessage:   in.CanSendMessage,
		RemainingSeconds: in.RemainingSeconds,
		IsPremium:        in.IsPremium,
		IsBanned:         in.IsBanned,
		Message:          in.Message,
	}
}

func mapPage(in pageDTO, room int64) domain.MessagePage {
	out := domain.MessagePage{
		Messages:      make([]domain.Message, 0, len(in.Messages)),
		CurrentPage:   in.CurrentPage,
		HasMore:       in.HasMore,
		TotalMessages: in.TotalMessages,
	}
	for _, m := range in.Messages {
		out.Messages = append(out.Messages, mapMessage(m, room))
	}
	if in.RateLimit != nil {
		rl := mapRateLimit(*in.RateLimit)
		out.RateLimit = &rl
	}
	return out
}
