package timers

import (
	"sort"
	"sync"
	"time"
)

// Manual это Scheduler с ручным временем. Advance синхронно вызывает всё,
// что наступило, в порядке срабатывания. Используется в тестах.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   uint64
	queue []*manualTimer
}

type manualTimer struct {
	m    *Manual
	when time.Time
	seq  uint64
	f    func()
	done bool
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	t := &manualTimer{m: m, when: m.now.Add(d), seq: m.seq, f: f}
	m.queue = append(m.queue, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	if t.done {
		return false
	}
	t.done = true
	t.m.remove(t)
	return true
}

func (m *Manual) remove(t *manualTimer) {
	for i, q := range m.queue {
		if q == t {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return
		}
	}
}

// Advance двигает время на d. Таймеры, запланированные колбэками внутри окна, тоже срабатывают.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		next := m.nextLocked()
		if next == nil || next.when.After(target) {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.when
		next.done = true
		m.remove(next)
		m.mu.Unlock()

		next.f()
	}
}

func (m *Manual) nextLocked() *manualTimer {
	if len(m.queue) == 0 {
		return nil
	}
	sort.SliceStable(m.queue, func(i, j int) bool {
		if m.queue[i].when.Equal(m.queue[j].when) {
			return m.queue[i].seq < m.queue[j].seq
		}
		return m.queue[i].when.Before(m.queue[j].when)
	})
	return m.queue[0]
}

func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// NextIn возвращает задержку до ближайшего таймера.
func (m *Manual) NextIn() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.nextLocked()
	if next == nil {
		return 0, false
	}
	return next.when.Sub(m.now), true
}
