package events

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/cwrk-planet/chatsync/internal/domain"
	"github.com/cwrk-planet/chatsync/internal/metrics"
	"github.com/cwrk-planet/chatsync/internal/protocol"
	"github.com/cwrk-planet/chatsync/pkg/logger"
)

// Router переводит входящие кадры в типизированные события и раздаёт их подписчикам.
// Неизвестные action молча пропускаются.
type Router struct {
	log *slog.Logger

	mu       sync.Mutex
	seq      uint64
	handlers map[Kind]map[uint64]func(Event)
}

func NewRouter(l *slog.Logger) *Router {
	return &Router{
		log:      logger.Component(l, "router"),
		handlers: make(map[Kind]map[uint64]func(Event)),
	}
}

// On регистрирует обработчик событий типа E. Возвращённая функция снимает регистрацию.
func On[E Event](r *Router, fn func(E)) (unregister func()) {
	var zero E
	return r.register(zero.Kind(), func(e Event) {
		if ev, ok := e.(E); ok {
			fn(ev)
		}
	})
}

func (r *Router) register(k Kind, fn func(Event)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	id := r.seq
	if r.handlers[k] == nil {
		r.handlers[k] = make(map[uint64]func(Event))
	}
	r.handlers[k][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.handlers[k], id)
			r.mu.Unlock()
		})
	}
}

// Reset снимает все регистрации.
func (r *Router) Reset() {
	r.mu.Lock()
	r.handlers = make(map[Kind]map[uint64]func(Event))
	r.mu.Unlock()
}

func (r *Router) Handlers(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[k])
}

// Emit вызывает обработчики в порядке регистрации, вне блокировки.
func (r *Router) Emit(e Event) {
	r.mu.Lock()
	set := r.handlers[e.Kind()]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, set[id])
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

// Decode возвращает событие для кадра. ok=false для неизвестных и бесполезных кадров.
func Decode(f protocol.Frame) (Event, bool) {
	switch f.Action {
	case protocol.ActionNewMessage:
		return MessageReceived{Message: f.Message()}, true
	case protocol.ActionMessageStatus:
		st := domain.MessageStatus(f.MessageStatus)
		if !domain.MessageStatus("").Advances(st) {
			return nil, false
		}
		return ReceiptUpdated{RoomID: f.ChatRoomID, MessageID: f.MessageID, Status: st}, true
	case protocol.ActionTypingStart, protocol.ActionTypingStop:
		typing := f.Action == protocol.ActionTypingStart
		if f.IsTyping != nil {
			typing = *f.IsTyping
		}
		return TypingChanged{RoomID: f.ChatRoomID, UserID: pick(f.UserID, f.SenderID), Typing: typing}, true
	case protocol.ActionUserOnline, protocol.ActionUserOffline:
		return PresenceChanged{UserID: pick(f.UserID, f.SenderID), Online: f.Action == protocol.ActionUserOnline}, true
	case protocol.ActionUserJoined, protocol.ActionUserLeft:
		return RoomMembership{RoomID: f.ChatRoomID, UserID: pick(f.UserID, f.SenderID), Joined: f.Action == protocol.ActionUserJoined}, true
	case protocol.ActionActiveCount:
		var d protocol.ActiveCountData
		if len(f.Data) == 0 || json.Unmarshal(f.Data, &d) != nil {
			return nil, false
		}
		return ActiveCountChanged{RoomID: f.ChatRoomID, ActiveUsers: d.ActiveUsers}, true
	default:
		return nil, false
	}
}

func pick(a, b int64) int64 {
	if a != 0 {
		return a
	}
	return b
}

// HandleFrame реализует ws.Handler.
func (r *Router) HandleFrame(f protocol.Frame) {
	ev, ok := Decode(f)
	if !ok {
		if f.Action != protocol.ActionPong {
			metrics.FramesDropped.WithLabelValues("unhandled").Inc()
			r.log.Debug("ignore frame", "action", f.Action)
		}
		return
	}
	r.Emit(ev)
}

func (r *Router) HandleStatus(st domain.ConnStatus, err error) {
	r.Emit(ConnectionChanged{Status: st, Err: err})
}
