package protocol

import "strconv"

// Исходящие логические каналы
const (
	ChannelSend   = "/app/chat.send"
	ChannelTyping = "/app/chat.typing"
	ChannelRead   = "/app/chat.read"
	ChannelJoin   = "/app/chat.join"
	ChannelLeave  = "/app/chat.leave"
	ChannelPing   = "/app/chat.ping"
)

// Входящие топики
const (
	TopicDirect       = "/user/queue/messages"
	TopicStatus       = "/user/queue/status"
	TopicPresence     = "/topic/presence"
	TopicShared       = "/topic/shared"
	TopicSharedActive = "/topic/shared.active"

	typingTopicPrefix = "/topic/typing."
)

func ChannelFor(a Action) (string, bool) {
	switch a {
	case ActionSendMessage:
		return ChannelSend, true
	case ActionTypingStart, ActionTypingStop:
		return ChannelTyping, true
	case ActionMarkRead:
		return ChannelRead, true
	case ActionJoinRoom:
		return ChannelJoin, true
	case ActionLeaveRoom:
		return ChannelLeave, true
	case ActionPing:
		return ChannelPing, true
	default:
		return "", false
	}
}

// TypingTopic подписывается динамически, когда комната становится активной.
func TypingTopic(roomID int64) string {
	return typingTopicPrefix + strconv.FormatInt(roomID, 10)
}

// DefaultTopics живут всю сессию.
func DefaultTopics() []string {
	return []string{TopicDirect, TopicStatus, TopicPresence, TopicShared, TopicSharedActive}
}
