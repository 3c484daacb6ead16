package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/chatsync/internal/domain"
	"github.com/cwrk-planet/chatsync/internal/metrics"
	"github.com/cwrk-planet/chatsync/internal/timers"
	"github.com/cwrk-planet/chatsync/pkg/logger"
)

const timerCountdown = "ratelimit:countdown"

type Fetcher interface {
	RateLimit(ctx context.Context) (domain.RateLimit, error)
}

// Tracker ведёт локальный отсчёт кулдауна общего чата и сверяется с сервером,
// когда отсчёт дошёл до нуля.
type Tracker struct {
	timers   *timers.Group
	fetch    Fetcher
	log      *slog.Logger
	onChange func(domain.RateLimit)

	mu         sync.Mutex
	state      domain.RateLimit
	known      bool
	refreshing bool
}

func New(g *timers.Group, f Fetcher, l *slog.Logger) *Tracker {
	return &Tracker{
		timers: g,
		fetch:  f,
		log:    logger.Component(l, "ratelimit"),
	}
}

// OnChange задаёт наблюдателя; вызывается вне блокировки.
func (t *Tracker) OnChange(fn func(domain.RateLimit)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Apply принимает состояние от сервера и перезапускает отсчёт.
func (t *Tracker) Apply(st domain.RateLimit) {
	if st.IsPremium {
		st.CanSendMessage = true
		st.RemainingSeconds = 0
	}
	if st.RemainingSeconds < 0 {
		st.RemainingSeconds = 0
	}

	t.mu.Lock()
	t.state = st
	t.known = true
	t.timers.Cancel(timerCountdown)
	if !st.CanSendMessage && st.RemainingSeconds > 0 {
		t.timers.Every(timerCountdown, time.Second, t.tick)
	}
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(st)
	}
}

// Refresh запрашивает состояние у сервера. Ошибка оставляет прежнее состояние.
func (t *Tracker) Refresh(ctx context.Context) (domain.RateLimit, error) {
	metrics.RateLimitRefreshes.Inc()

	st, err := t.fetch.RateLimit(ctx)

	t.mu.Lock()
	t.refreshing = false
	t.mu.Unlock()

	if err != nil {
		t.log.Warn("rate limit refresh failed", "err", err)
		return t.State(), err
	}
	t.Apply(st)
	return t.State(), nil
}

func (t *Tracker) tick() {
	t.mu.Lock()
	if t.state.CanSendMessage || t.state.RemainingSeconds <= 0 {
		t.timers.Cancel(timerCountdown)
		t.mu.Unlock()
		return
	}
	t.state.RemainingSeconds--
	st := t.state

	refresh := false
	if st.RemainingSeconds == 0 {
		// до ответа сервера локально больше не считаем
		t.timers.Cancel(timerCountdown)
		if !t.refreshing {
			t.refreshing = true
			refresh = true
		}
	}
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(st)
	}
	if refresh {
		_, _ = t.Refresh(context.Background())
	}
}

func (t *Tracker) State() domain.RateLimit {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Blocked: отправка в общий чат заведомо будет отклонена, звать сервер незачем.
func (t *Tracker) Blocked() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.known || t.state.CanSendMessage {
		return false
	}
	return t.state.IsBanned || t.state.RemainingSeconds > 0
}

func (t *Tracker) Counting() bool {
	return t.timers.Active(timerCountdown)
}

func (t *Tracker) Stop() {
	t.timers.Cancel(timerCountdown)
}
