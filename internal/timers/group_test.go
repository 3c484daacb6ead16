package timers

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestGroup_AfterReplacesByKey(t *testing.T) {
	m := NewManual(epoch)
	g := NewGroup(m)

	var fired []string
	g.After("k", time.Second, func() { fired = append(fired, "first") })
	g.After("k", 2*time.Second, func() { fired = append(fired, "second") })

	m.Advance(time.Second)
	if len(fired) != 0 {
		t.Fatalf("replaced timer fired: %v", fired)
	}
	m.Advance(time.Second)
	if len(fired) != 1 || fired[0] != "second" {
		t.Fatalf("fired = %v, want [second]", fired)
	}
	if g.Active("k") {
		t.Fatalf("one-shot key must be released after firing")
	}
}

func TestGroup_EveryUntilCancelledFromCallback(t *testing.T) {
	m := NewManual(epoch)
	g := NewGroup(m)

	n := 0
	g.Every("tick", time.Second, func() {
		n++
		if n == 3 {
			g.Cancel("tick")
		}
	})

	m.Advance(10 * time.Second)
	if n != 3 {
		t.Fatalf("ticks = %d, want 3", n)
	}
	if m.Pending() != 0 {
		t.Fatalf("pending = %d, want 0", m.Pending())
	}
}

func TestGroup_StopCancelsEverythingAndRefusesNew(t *testing.T) {
	m := NewManual(epoch)
	g := NewGroup(m)

	fired := 0
	g.After("reconnect", time.Second, func() { fired++ })
	g.Every("poll", time.Second, func() { fired++ })
	g.After("typing:1", time.Second, func() { fired++ })

	g.Stop()
	m.Advance(time.Minute)

	if fired != 0 {
		t.Fatalf("fired after Stop: %d", fired)
	}
	if g.After("late", time.Second, func() {}) {
		t.Fatalf("After must refuse on a stopped group")
	}
	if len(g.Keys()) != 0 {
		t.Fatalf("keys left: %v", g.Keys())
	}
}

func TestGroup_CancelPrefix(t *testing.T) {
	m := NewManual(epoch)
	g := NewGroup(m)

	g.After("typing:1", time.Second, func() {})
	g.After("typing:2", time.Second, func() {})
	g.After("poll", time.Second, func() {})

	g.CancelPrefix("typing:")

	keys := g.Keys()
	if len(keys) != 1 || keys[0] != "poll" {
		t.Fatalf("keys = %v, want [poll]", keys)
	}
}

func TestManual_NextIn(t *testing.T) {
	m := NewManual(epoch)
	if _, ok := m.NextIn(); ok {
		t.Fatalf("empty scheduler reports a timer")
	}
	m.AfterFunc(4*time.Second, func() {})
	m.AfterFunc(2*time.Second, func() {})
	m.Advance(time.Second)

	if d, ok := m.NextIn(); !ok || d != time.Second {
		t.Fatalf("NextIn = %v,%v want 1s", d, ok)
	}
}
