package session

import (
	"context"
	"errors"
	"sync"

	"github.com/cwrk-planet/chatsync/internal/auth"
	"github.com/cwrk-planet/chatsync/pkg/errs"
)

// Manager держит не больше одной живой сессии на процесс.
type Manager struct {
	opts Options

	mu  sync.Mutex
	cur *Session
}

func NewManager(opts Options) *Manager {
	return &Manager{opts: opts}
}

// Replace сначала полностью гасит текущую сессию и только потом строит новую,
// чтобы под одним устройством не было двух соединений.
// Если старт упал не из-за авторизации, сессия остаётся текущей и ждёт Reconnect.
func (m *Manager) Replace(ctx context.Context, creds auth.Credentials) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != nil {
		m.cur.Close()
		m.cur = nil
	}

	s, err := New(m.opts, creds)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			s.Close()
			return nil, err
		}
		m.cur = s
		return s, err
	}
	m.cur = s
	return s, nil
}

func (m *Manager) Current() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur, m.cur != nil
}

func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cur != nil {
		m.cur.Close()
		m.cur = nil
	}
}
