package timers

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type Timer interface {
	Stop() bool
}

type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

// Real планирует на time.AfterFunc.
type Real struct{}

func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
func (Real) Now() time.Time                            { return time.Now() }

// Group владеет всеми таймерами одной сессии: backoff, поллинг, отсчёт лимита, typing.
// Таймеры адресуются ключом, повторное планирование по ключу заменяет старый таймер.
// После Stop группа больше ничего не планирует.
type Group struct {
	mu     sync.Mutex
	s      Scheduler
	slots  map[string]*slot
	seq    uint64
	closed bool
}

type slot struct {
	id uint64
	t  Timer
}

func NewGroup(s Scheduler) *Group {
	if s == nil {
		s = Real{}
	}
	return &Group{s: s, slots: make(map[string]*slot)}
}

func (g *Group) Now() time.Time { return g.s.Now() }

// After планирует одноразовый вызов f. false, если группа остановлена.
func (g *Group) After(key string, d time.Duration, f func()) bool {
	return g.arm(key, d, 0, f)
}

// Every вызывает f каждые d, пока ключ не отменён.
func (g *Group) Every(key string, d time.Duration, f func()) bool {
	return g.arm(key, d, d, f)
}

func (g *Group) arm(key string, d, every time.Duration, f func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}
	if old := g.slots[key]; old != nil {
		old.t.Stop()
	}
	g.seq++
	id := g.seq
	sl := &slot{id: id}
	g.slots[key] = sl
	sl.t = g.s.AfterFunc(d, func() { g.fire(key, id, every, f) })
	return true
}

func (g *Group) fire(key string, id uint64, every time.Duration, f func()) {
	g.mu.Lock()
	sl := g.slots[key]
	if g.closed || sl == nil || sl.id != id {
		g.mu.Unlock()
		return
	}
	if every == 0 {
		delete(g.slots, key)
	}
	g.mu.Unlock()

	f()

	if every == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	// f мог отменить или перепланировать ключ
	if cur := g.slots[key]; !g.closed && cur != nil && cur.id == id {
		cur.t = g.s.AfterFunc(every, func() { g.fire(key, id, every, f) })
	}
}

func (g *Group) Cancel(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if sl := g.slots[key]; sl != nil {
		sl.t.Stop()
		delete(g.slots, key)
	}
}

func (g *Group) CancelPrefix(prefix string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for key, sl := range g.slots {
		if strings.HasPrefix(key, prefix) {
			sl.t.Stop()
			delete(g.slots, key)
		}
	}
}

func (g *Group) Active(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.slots[key]
	return ok
}

func (g *Group) Keys() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]string, 0, len(g.slots))
	for k := range g.slots {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Stop отменяет всё и закрывает группу.
func (g *Group) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
	for key, sl := range g.slots {
		sl.t.Stop()
		delete(g.slots, key)
	}
}

func (g *Group) Stopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}
