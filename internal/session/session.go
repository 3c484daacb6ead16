package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cwrk-planet/chatsync/config"
	"github.com/cwrk-planet/chatsync/internal/api"
	"github.com/cwrk-planet/chatsync/internal/auth"
	"github.com/cwrk-planet/chatsync/internal/domain"
	"github.com/cwrk-planet/chatsync/internal/events"
	"github.com/cwrk-planet/chatsync/internal/protocol"
	"github.com/cwrk-planet/chatsync/internal/ratelimit"
	"github.com/cwrk-planet/chatsync/internal/store"
	"github.com/cwrk-planet/chatsync/internal/timers"
	"github.com/cwrk-planet/chatsync/internal/transport/ws"
	"github.com/cwrk-planet/chatsync/pkg/logger"

	"golang.org/x/time/rate"
)

var ErrClosed = errors.New("session closed")

type Options struct {
	Config    config.Config
	Dialer    ws.Dialer        // nil: gorilla
	Scheduler timers.Scheduler // nil: реальное время
	API       api.Client       // nil: REST-клиент из конфига с токеном сессии
	Logger    *slog.Logger
}

// Session связывает компоненты одного авторизованного пользователя.
// Все таймеры сессии живут в одной группе, Close гасит их разом.
type Session struct {
	creds  auth.Credentials
	cfg    config.Chat
	log    *slog.Logger
	timers *timers.Group

	router    *events.Router
	transport *ws.Client
	limits    *ratelimit.Tracker
	store     *store.Store
	detach    func()

	mu     sync.Mutex
	typing map[int64]*rate.Limiter
	closed bool
}

func New(opts Options, creds auth.Credentials) (*Session, error) {
	cfg := opts.Config
	l := logger.Session(opts.Logger, creds.UserID)

	client := opts.API
	if client == nil {
		var err error
		client, err = api.New(api.Options{
			BaseURL: cfg.Endpoint.BaseURL,
			Token:   creds.Token,
			Timeout: cfg.REST.Timeout,
			Logger:  l,
		})
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
	}

	g := timers.NewGroup(opts.Scheduler)
	router := events.NewRouter(l)
	tr := ws.New(ws.Options{
		URL:            cfg.Endpoint.WSURL,
		Dialer:         opts.Dialer,
		Timers:         g,
		Handler:        router,
		Logger:         l,
		ConnectTimeout: cfg.Transport.ConnectTimeout,
		WriteTimeout:   cfg.Transport.WriteTimeout,
		ReadTimeout:    cfg.Transport.ReadTimeout,
		Keepalive:      cfg.Transport.Keepalive,
		BaseDelay:      cfg.Transport.BackoffBase,
		MaxAttempts:    cfg.Transport.MaxAttempts,
	})
	limits := ratelimit.New(g, client, l)
	st := store.New(store.Options{
		API:              client,
		Transport:        tr,
		Limits:           limits,
		Timers:           g,
		Logger:           l,
		UserID:           creds.UserID,
		PageSize:         cfg.Chat.PageSize,
		DupWindow:        cfg.Chat.DupWindow,
		PollInterval:     cfg.Chat.PollInterval,
		MaxContentLength: cfg.Chat.MaxContentLength,
	})

	return &Session{
		creds:     creds,
		cfg:       cfg.Chat,
		log:       logger.Component(l, "session"),
		timers:    g,
		router:    router,
		transport: tr,
		limits:    limits,
		store:     st,
		detach:    st.Attach(router),
		typing:    make(map[int64]*rate.Limiter),
	}, nil
}

// Start проверяет токен, подгружает список чатов и открывает соединение.
func (s *Session) Start(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := s.creds.Check(s.timers.Now()); err != nil {
		return err
	}

	for _, topic := range protocol.DefaultTopics() {
		s.transport.Subscribe(topic)
	}
	s.store.Start()

	if err := s.store.RefreshConversations(ctx); err != nil {
		s.log.Warn("initial conversation list failed", "err", err)
	}
	if err := s.transport.Connect(ctx, s.creds); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	s.log.Info("session started")
	return nil
}

// Reconnect это явный connect: единственный выход из ERROR после исчерпания попыток.
func (s *Session) Reconnect(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := s.creds.Check(s.timers.Now()); err != nil {
		return err
	}
	return s.transport.Connect(ctx, s.creds)
}

func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.typing = make(map[int64]*rate.Limiter)
	s.mu.Unlock()

	_ = s.transport.Disconnect()
	s.store.Close()
	s.limits.Stop()
	s.timers.Stop()
	s.detach()
	s.router.Reset()

	s.log.Info("session closed")
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) OpenConversation(ctx context.Context, roomID int64, kind domain.RoomKind) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.store.OpenConversation(ctx, roomID, kind)
}

func (s *Session) LoadMore(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.store.LoadMore(ctx)
}

func (s *Session) SendMessage(ctx context.Context, content string, to store.Target) (domain.Message, error) {
	if s.isClosed() {
		return domain.Message{}, ErrClosed
	}
	m, err := s.store.SendMessage(ctx, content, to)
	if err == nil && m.RoomID != 0 {
		s.StopTyping(m.RoomID)
	}
	return m, err
}

func (s *Session) MarkRead(roomID int64) {
	if s.isClosed() {
		return
	}
	s.store.MarkRead(roomID)
}

func (s *Session) Snapshot() store.Snapshot { return s.store.Snapshot() }

func (s *Session) Status() domain.ConnStatus { return s.transport.Status() }

func (s *Session) UserID() int64 { return s.creds.UserID }

func (s *Session) Router() *events.Router { return s.router }

func (s *Session) Transport() *ws.Client { return s.transport }

func (s *Session) Limits() *ratelimit.Tracker { return s.limits }
