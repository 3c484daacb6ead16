package events

import "github.com/cwrk-planet/chatsync/internal/domain"

type Kind string

const (
	KindMessage    Kind = "message"
	KindReceipt    Kind = "receipt"
	KindTyping     Kind = "typing"
	KindPresence   Kind = "presence"
	KindMembership Kind = "membership"
	KindActive     Kind = "active_count"
	KindConnection Kind = "connection"
)

type Event interface {
	Kind() Kind
}

type MessageReceived struct {
	Message domain.Message
}

// ReceiptUpdated это квитанция о доставке или прочтении собственного сообщения.
type ReceiptUpdated struct {
	RoomID    int64
	MessageID int64
	Status    domain.MessageStatus
}

type TypingChanged struct {
	RoomID int64
	UserID int64
	Typing bool
}

type PresenceChanged struct {
	UserID int64
	Online bool
}

type RoomMembership struct {
	RoomID int64
	UserID int64
	Joined bool
}

type ActiveCountChanged struct {
	RoomID      int64
	ActiveUsers int
}

// ConnectionChanged приходит от транспорта, не с провода.
type ConnectionChanged struct {
	Status domain.ConnStatus
	Err    error
}

func (MessageReceived) Kind() Kind    { return KindMessage }
func (ReceiptUpdated) Kind() Kind     { return KindReceipt }
func (TypingChanged) Kind() Kind      { return KindTyping }
func (PresenceChanged) Kind() Kind    { return KindPresence }
func (RoomMembership) Kind() Kind     { return KindMembership }
func (ActiveCountChanged) Kind() Kind { return KindActive }
func (ConnectionChanged) Kind() Kind  { return KindConnection }
