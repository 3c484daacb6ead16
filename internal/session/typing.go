package session

import (
	"strconv"
	"time"

	"github.com/cwrk-planet/chatsync/internal/protocol"

	"golang.org/x/time/rate"
)

const typingKeyPrefix = "typing:"

func typingKey(roomID int64) string { return typingKeyPrefix + strconv.FormatInt(roomID, 10) }

// StartTyping вызывается на каждое нажатие. TYPING_START уходит не чаще TypingThrottle,
// TYPING_STOP уходит сам после TypingIdle без нажатий.
func (s *Session) StartTyping(roomID int64) {
	idle := s.cfg.TypingIdle
	if idle <= 0 {
		idle = 5 * time.Second
	}
	throttle := s.cfg.TypingThrottle
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	lim, ok := s.typing[roomID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(throttle), 1)
		s.typing[roomID] = lim
	}
	send := lim.AllowN(s.timers.Now(), 1)
	s.mu.Unlock()

	if send {
		_ = s.transport.Send(s.typingFrame(roomID, true))
	}
	s.timers.After(typingKey(roomID), idle, func() { s.stopTyping(roomID, false) })
}

// StopTyping гасит таймер и сразу отправляет TYPING_STOP, если печать была начата.
func (s *Session) StopTyping(roomID int64) {
	s.stopTyping(roomID, true)
}

func (s *Session) stopTyping(roomID int64, cancel bool) {
	if cancel {
		s.timers.Cancel(typingKey(roomID))
	}

	s.mu.Lock()
	_, active := s.typing[roomID]
	delete(s.typing, roomID)
	closed := s.closed
	s.mu.Unlock()

	if active && !closed {
		_ = s.transport.Send(s.typingFrame(roomID, false))
	}
}

func (s *Session) typingFrame(roomID int64, typing bool) protocol.Frame {
	action := protocol.ActionTypingStop
	if typing {
		action = protocol.ActionTypingStart
	}
	return protocol.Frame{
		Action:     action,
		ChatRoomID: roomID,
		SenderID:   s.creds.UserID,
		UserID:     s.creds.UserID,
		IsTyping:   protocol.Bool(typing),
		Timestamp:  s.timers.Now(),
	}
}
