package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cwrk-planet/chatsync/internal/domain"
	"github.com/cwrk-planet/chatsync/internal/events"
	"github.com/cwrk-planet/chatsync/internal/metrics"
	"github.com/cwrk-planet/chatsync/internal/protocol"
	"github.com/cwrk-planet/chatsync/internal/timers"
	"github.com/cwrk-planet/chatsync/pkg/errs"
	"github.com/cwrk-planet/chatsync/pkg/logger"
)

const (
	timerPoll   = "store:poll"
	timerResync = "store:resync"
)

var (
	ErrNoConversation = fmt.Errorf("%w: no active conversation", errs.ErrInvalidInput)
	ErrSuperseded     = errors.New("conversation changed while loading")
)

type API interface {
	Conversations(ctx context.Context) ([]domain.Conversation, error)
	Messages(ctx context.Context, roomID int64, page, size int) (domain.MessagePage, error)
	SendShared(ctx context.Context, content string) (domain.Message, error)
	SendDirect(ctx context.Context, receiverID int64, content string) (domain.Message, error)
}

type Transport interface {
	Send(f protocol.Frame) error
	JoinRoom(roomID int64) error
	LeaveRoom(roomID int64) error
	Subscribe(topic string)
	Unsubscribe(topic string)
}

type Limits interface {
	Apply(st domain.RateLimit)
	Refresh(ctx context.Context) (domain.RateLimit, error)
	Blocked() bool
	State() domain.RateLimit
}

type Options struct {
	API       API
	Transport Transport
	Limits    Limits
	Timers    *timers.Group
	Logger    *slog.Logger
	UserID    int64

	PageSize         int           // 20
	DupWindow        time.Duration // 1s
	PollInterval     time.Duration // 10s
	MaxContentLength int           // 1000
}

// Target адресует отправку. Пустой Kind означает активный чат,
// пустой ReceiverID для DIRECT берётся из собеседника активного чата.
type Target struct {
	Kind       domain.RoomKind
	ReceiverID int64
}

type Snapshot struct {
	Conversations []domain.Conversation `json:"conversations"`
	Active        *domain.MessageWindow `json:"active,omitempty"`
	Typing        []int64               `json:"typing"`
	Online        []int64               `json:"online"`
	RateLimit     domain.RateLimit      `json:"rateLimit"`
	Conn          domain.ConnStatus     `json:"connection"`
	Stale         bool                  `json:"stale"`
	Fetching      bool                  `json:"fetching"`
}

// Store единственный источник правды для UI: список чатов, окно активного чата
// и метаданные. Push, поллинг и REST сходятся в одной функции слияния под одной блокировкой.
type Store struct {
	opts Options
	log  *slog.Logger

	mu            sync.Mutex
	conversations []domain.Conversation
	active        *domain.MessageWindow
	gen           uint64
	fetching      bool
	loaded        bool // окно получило хотя бы одну страницу от сервера
	typing        map[int64]struct{}
	online        map[int64]struct{}
	conn          domain.ConnStatus
	stale         bool
}

func New(opts Options) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.DupWindow <= 0 {
		opts.DupWindow = time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.MaxContentLength <= 0 {
		opts.MaxContentLength = 1000
	}
	if opts.Timers == nil {
		opts.Timers = timers.NewGroup(nil)
	}

	return &Store{
		opts:   opts,
		log:    logger.Component(opts.Logger, "store"),
		typing: make(map[int64]struct{}),
		online: make(map[int64]struct{}),
		conn:   domain.ConnDisconnected,
	}
}

// Start запускает поллинг. Цикл сам пропускает такты без активного чата.
func (s *Store) Start() {
	s.opts.Timers.Every(timerPoll, s.opts.PollInterval, s.poll)
}

func (s *Store) Close() {
	s.opts.Timers.Cancel(timerPoll)
	s.opts.Timers.Cancel(timerResync)

	s.mu.Lock()
	s.active = nil
	s.gen++
	s.fetching = false
	s.typing = make(map[int64]struct{})
	s.mu.Unlock()
}

// Attach подписывает стор на события роутера. Возвращает функцию отписки.
func (s *Store) Attach(r *events.Router) (detach func()) {
	offs := []func(){
		events.On(r, func(e events.MessageReceived) { s.Ingest(e.Message) }),
		events.On(r, func(e events.ReceiptUpdated) { s.ApplyStatus(e.RoomID, e.MessageID, e.Status) }),
		events.On(r, func(e events.TypingChanged) { s.SetTyping(e.RoomID, e.UserID, e.Typing) }),
		events.On(r, func(e events.PresenceChanged) { s.SetOnline(e.UserID, e.Online) }),
		events.On(r, func(e events.RoomMembership) {
			if !e.Joined {
				s.SetTyping(e.RoomID, e.UserID, false)
			}
		}),
		events.On(r, func(e events.ActiveCountChanged) { s.SetActiveCount(e.RoomID, e.ActiveUsers) }),
		events.On(r, func(e events.ConnectionChanged) { s.SetConnStatus(e.Status) }),
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}

// RefreshConversations заменяет список чатов ответом сервера.
func (s *Store) RefreshConversations(ctx context.Context) error {
	list, err := s.opts.API.Conversations(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.setConversationsLocked(list)
	s.mu.Unlock()
	return nil
}

// OpenConversation делает чат активным и загружает страницу 0.
// Для общего чата заодно подтягивает состояние лимита.
func (s *Store) OpenConversation(ctx context.Context, roomID int64, kind domain.RoomKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: room kind %q", errs.ErrInvalidInput, kind)
	}

	s.mu.Lock()
	var prev int64
	if s.active != nil {
		prev = s.active.RoomID
	}
	s.gen++
	gen := s.gen
	s.active = &domain.MessageWindow{RoomID: roomID, Kind: kind}
	s.fetching = true
	s.loaded = false
	s.typing = make(map[int64]struct{})
	s.mu.Unlock()

	if prev != 0 && prev != roomID {
		_ = s.opts.Transport.LeaveRoom(prev)
		s.opts.Transport.Unsubscribe(protocol.TypingTopic(prev))
	}
	if prev != roomID {
		_ = s.opts.Transport.JoinRoom(roomID)
		s.opts.Transport.Subscribe(protocol.TypingTopic(roomID))
	}

	ctx = opCtx(ctx, "open", roomID)
	page, err := s.opts.API.Messages(ctx, roomID, 0, s.opts.PageSize)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.fetching = false
	if err != nil {
		s.mu.Unlock()
		return err
	}
	// то, что успело прийти по сокету во время загрузки, не теряем
	pushed := s.active.Messages
	msgs, _, dropped := mergeHead(newestFirst(page.Messages), pushed, s.opts.DupWindow)
	if dropped > 0 {
		metrics.DuplicatesDiscarded.WithLabelValues("open").Add(float64(dropped))
	}
	s.active.Messages = msgs
	s.active.CurrentPage = page.CurrentPage
	s.active.HasMore = page.HasMore
	s.active.TotalMessages = page.TotalMessages
	s.loaded = true
	s.mu.Unlock()

	if kind == domain.KindShared && s.opts.Limits != nil {
		if page.RateLimit != nil {
			s.opts.Limits.Apply(*page.RateLimit)
		} else if _, err := s.opts.Limits.Refresh(ctx); err != nil {
			s.log.Warn("rate limit fetch on open failed", "room_id", roomID, "err", err)
		}
	}

	s.MarkRead(roomID)
	return nil
}

// LoadMore дописывает следующую, более старую страницу. Ничего не делает,
// пока идёт другая загрузка или сервер сказал, что страниц больше нет.
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.active == nil || s.fetching || !s.active.HasMore {
		s.mu.Unlock()
		return nil
	}
	s.fetching = true
	gen := s.gen
	room := s.active.RoomID
	next := s.active.CurrentPage + 1
	s.mu.Unlock()

	page, err := s.opts.API.Messages(opCtx(ctx, "load_more", room), room, next, s.opts.PageSize)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return ErrSuperseded
	}
	s.fetching = false
	if err != nil {
		return err
	}

	msgs, dropped := appendTail(s.active.Messages, newestFirst(page.Messages))
	if dropped > 0 {
		metrics.DuplicatesDiscarded.WithLabelValues("page").Add(float64(dropped))
	}
	s.active.Messages = msgs
	if page.CurrentPage > next {
		next = page.CurrentPage
	}
	s.active.CurrentPage = next
	s.active.HasMore = page.HasMore
	if page.TotalMessages > 0 {
		s.active.TotalMessages = page.TotalMessages
	}
	return nil
}

// SendMessage отправляет через REST. Отправка в общий чат при активном кулдауне
// отклоняется локально, без запроса.
func (s *Store) SendMessage(ctx context.Context, content string, to Target) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, fmt.Errorf("%w: empty message", errs.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(content); n > s.opts.MaxContentLength {
		return domain.Message{}, fmt.Errorf("%w: message is %d characters, limit %d", errs.ErrInvalidInput, n, s.opts.MaxContentLength)
	}

	kind, receiver, err := s.resolveTarget(to)
	if err != nil {
		return domain.Message{}, err
	}

	var m domain.Message
	switch kind {
	case domain.KindShared:
		if s.opts.Limits != nil && s.opts.Limits.Blocked() {
			st := s.opts.Limits.State()
			return domain.Message{}, fmt.Errorf("%w: wait %ds", errs.ErrRateLimited, st.RemainingSeconds)
		}
		m, err = s.opts.API.SendShared(ctx, content)
		if s.opts.Limits != nil && (err == nil || errors.Is(err, errs.ErrRateLimited)) {
			if _, rerr := s.opts.Limits.Refresh(ctx); rerr != nil {
				s.log.Debug("rate limit refresh after send failed", "err", rerr)
			}
		}
	default:
		m, err = s.opts.API.SendDirect(ctx, receiver, content)
	}
	if err != nil {
		return domain.Message{}, err
	}

	s.mu.Lock()
	if m.RoomID == 0 && s.active != nil && s.active.Kind == kind {
		m.RoomID = s.active.RoomID
	}
	if m.SenderID == 0 {
		m.SenderID = s.opts.UserID
	}
	s.mergeLocked(m, "send")
	s.mu.Unlock()

	return m, nil
}

func (s *Store) resolveTarget(to Target) (domain.RoomKind, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := to.Kind
	if kind == "" {
		if s.active == nil {
			return "", 0, ErrNoConversation
		}
		kind = s.active.Kind
	}
	if kind == domain.KindShared {
		return kind, 0, nil
	}
	if !kind.Valid() {
		return "", 0, fmt.Errorf("%w: room kind %q", errs.ErrInvalidInput, kind)
	}

	receiver := to.ReceiverID
	if receiver == 0 && s.active != nil && s.active.Kind == domain.KindDirect {
		if c := s.findLocked(s.active.RoomID); c != nil && c.Counterpart != nil {
			receiver = c.Counterpart.UserID
		}
	}
	if receiver == 0 {
		return "", 0, fmt.Errorf("%w: direct message without receiver", errs.ErrInvalidInput)
	}
	return kind, receiver, nil
}

// Ingest принимает сообщение, пришедшее по сокету.
func (s *Store) Ingest(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mergeLocked(m, "push")
}

// mergeLocked: в окно только для активного чата и только если не дубль;
// превью и счётчик непрочитанных в списке обновляются всегда.
func (s *Store) mergeLocked(m domain.Message, source string) {
	isActive := s.active != nil && s.active.RoomID == m.RoomID
	if isActive {
		if IsDuplicate(s.active.Messages, m, s.opts.DupWindow) {
			metrics.DuplicatesDiscarded.WithLabelValues(source).Inc()
			return
		}
		s.active.Messages = insertNewest(s.active.Messages, m)
		s.active.TotalMessages++
		delete(s.typing, m.SenderID)
	}

	c := s.findLocked(m.RoomID)
	if c == nil {
		return
	}
	if c.LastMessage == nil || !m.SentAt.Before(c.LastMessage.SentAt) {
		mm := m
		c.LastMessage = &mm
	}
	if m.SentAt.After(c.LastActivity) {
		c.LastActivity = m.SentAt
	}
	if !isActive && m.SenderID != s.opts.UserID {
		c.UnreadCount++
	}
	s.sortConversationsLocked()
}

// ApplyStatus продвигает статус своего сообщения; назад статус не откатывается.
func (s *Store) ApplyStatus(roomID, messageID int64, st domain.MessageStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || (roomID != 0 && s.active.RoomID != roomID) {
		return
	}
	for i := range s.active.Messages {
		m := &s.active.Messages[i]
		if m.ID != messageID {
			continue
		}
		if m.Status.Advances(st) {
			m.Status = st
		}
		return
	}
}

// MarkRead сразу обнуляет счётчик, квитанция уходит серверу следом.
func (s *Store) MarkRead(roomID int64) {
	s.mu.Lock()
	if c := s.findLocked(roomID); c != nil {
		c.UnreadCount = 0
	}
	var last int64
	if s.active != nil && s.active.RoomID == roomID && len(s.active.Messages) > 0 {
		last = s.active.Messages[0].ID
	}
	s.mu.Unlock()

	_ = s.opts.Transport.Send(protocol.Frame{
		Action:     protocol.ActionMarkRead,
		ChatRoomID: roomID,
		UserID:     s.opts.UserID,
		MessageID:  last,
		Timestamp:  s.opts.Timers.Now(),
	})
}

func (s *Store) SetTyping(roomID, userID int64, typing bool) {
	if userID == 0 || userID == s.opts.UserID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil || s.active.RoomID != roomID {
		return
	}
	if typing {
		s.typing[userID] = struct{}{}
	} else {
		delete(s.typing, userID)
	}
}

func (s *Store) SetOnline(userID int64, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if online {
		s.online[userID] = struct{}{}
	} else {
		delete(s.online, userID)
	}
}

// SetActiveCount: roomID 0 означает общий чат.
func (s *Store) SetActiveCount(roomID int64, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.conversations {
		c := &s.conversations[i]
		if c.RoomID == roomID || (roomID == 0 && c.Kind == domain.KindShared) {
			c.ActiveUsers = n
		}
	}
}

// SetConnStatus помечает данные как возможно устаревшие, пока сокет не в CONNECTED.
// После восстановления соединения поллинг срабатывает сразу, не дожидаясь интервала.
func (s *Store) SetConnStatus(st domain.ConnStatus) {
	s.mu.Lock()
	wasStale := s.stale
	s.conn = st
	s.stale = st != domain.ConnConnected
	s.mu.Unlock()

	if st == domain.ConnConnected && wasStale {
		s.opts.Timers.After(timerResync, 0, s.poll)
	}
}

func (s *Store) poll() {
	s.mu.Lock()
	if s.active == nil || s.fetching {
		s.mu.Unlock()
		metrics.PollCycles.WithLabelValues("skipped").Inc()
		return
	}
	s.fetching = true
	gen := s.gen
	room := s.active.RoomID
	s.mu.Unlock()

	ctx := opCtx(context.Background(), "poll", room)
	page, perr := s.opts.API.Messages(ctx, room, 0, s.opts.PageSize)
	list, lerr := s.opts.API.Conversations(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen == s.gen {
		s.fetching = false
	}
	if perr != nil || lerr != nil {
		metrics.PollCycles.WithLabelValues("error").Inc()
		s.stale = true
		s.log.Debug("poll failed", "room_id", room, "messages_err", perr, "conversations_err", lerr)
	}
	if perr == nil && gen == s.gen {
		msgs, added, dropped := mergeHead(s.active.Messages, page.Messages, s.opts.DupWindow)
		if dropped > 0 {
			metrics.DuplicatesDiscarded.WithLabelValues("poll").Add(float64(dropped))
		}
		s.active.Messages = msgs
		if page.TotalMessages > s.active.TotalMessages {
			s.active.TotalMessages = page.TotalMessages
		}
		// открытие упало: метаданные пагинации берём из первой удачной страницы
		if !s.loaded {
			s.active.CurrentPage = page.CurrentPage
			s.active.HasMore = page.HasMore
			s.loaded = true
		}
		if added > 0 {
			s.log.Debug("poll recovered messages", "room_id", room, "added", added)
		}
	}
	if lerr == nil {
		s.setConversationsLocked(list)
	}
	if perr == nil && lerr == nil {
		metrics.PollCycles.WithLabelValues("ok").Inc()
		if s.conn == domain.ConnConnected {
			s.stale = false
		}
	}
}

// Poll выполняет один цикл поллинга синхронно.
func (s *Store) Poll() { s.poll() }

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{
		Conversations: make([]domain.Conversation, len(s.conversations)),
		Typing:        sortedIDs(s.typing),
		Online:        sortedIDs(s.online),
		Conn:          s.conn,
		Stale:         s.stale,
		Fetching:      s.fetching,
	}
	copy(out.Conversations, s.conversations)
	if s.active != nil {
		w := s.active.Clone()
		out.Active = &w
	}
	if s.opts.Limits != nil {
		out.RateLimit = s.opts.Limits.State()
	}
	return out
}

// Window возвращает копию окна активного чата.
func (s *Store) Window() (domain.MessageWindow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return domain.MessageWindow{}, false
	}
	return s.active.Clone(), true
}

func (s *Store) Conversation(roomID int64) (domain.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.findLocked(roomID); c != nil {
		return *c, true
	}
	return domain.Conversation{}, false
}

func (s *Store) setConversationsLocked(list []domain.Conversation) {
	s.conversations = append([]domain.Conversation(nil), list...)
	if s.active != nil {
		if c := s.findLocked(s.active.RoomID); c != nil {
			c.UnreadCount = 0
		}
	}
	s.sortConversationsLocked()
}

func (s *Store) sortConversationsLocked() {
	sort.SliceStable(s.conversations, func(i, j int) bool {
		return s.conversations[i].LastActivity.After(s.conversations[j].LastActivity)
	})
}

func (s *Store) findLocked(roomID int64) *domain.Conversation {
	for i := range s.conversations {
		if s.conversations[i].RoomID == roomID {
			return &s.conversations[i]
		}
	}
	return nil
}

func sortedIDs(set map[int64]struct{}) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// opCtx помечает REST-вызовы стора: в логах клиента будут op и room_id.
func opCtx(ctx context.Context, op string, roomID int64) context.Context {
	return logger.WithAttrs(ctx, slog.String("op", op), slog.Int64("room_id", roomID))
}
