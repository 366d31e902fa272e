// Package clock abstracts wall time and delayed callbacks so that settle
// delays, debounced writes and cooldowns can be driven by tests.
package clock

import "time"

// Timer is a pending callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock provides the current time and delayed callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Group tracks timers owned by one session so they can all be cancelled on
// teardown. Each scheduled callback receives a token; the owner claims the
// token under its own lock before acting, which filters out callbacks that
// raced with a Cancel or a newer Schedule. Group is not goroutine safe.
type Group struct {
	clock  Clock
	seq    uint64
	timers map[string]pending
	closed bool
}

type pending struct {
	timer Timer
	token uint64
}

// NewGroup creates a timer group on top of c.
func NewGroup(c Clock) *Group {
	return &Group{clock: c, timers: make(map[string]pending)}
}

// Schedule replaces any pending timer registered under name.
func (g *Group) Schedule(name string, d time.Duration, f func(token uint64)) {
	if g.closed {
		return
	}
	g.Cancel(name)
	g.seq++
	token := g.seq
	g.timers[name] = pending{token: token}
	t := g.clock.AfterFunc(d, func() { f(token) })
	if p, ok := g.timers[name]; ok && p.token == token {
		p.timer = t
		g.timers[name] = p
	}
}

// Claim consumes the named timer if token is still the current one.
func (g *Group) Claim(name string, token uint64) bool {
	p, ok := g.timers[name]
	if !ok || p.token != token {
		return false
	}
	delete(g.timers, name)
	return true
}

// Cancel stops the named timer if it is pending.
func (g *Group) Cancel(name string) {
	if p, ok := g.timers[name]; ok {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(g.timers, name)
	}
}

// Pending reports whether the named timer is scheduled.
func (g *Group) Pending(name string) bool {
	_, ok := g.timers[name]
	return ok
}

// Close cancels every pending timer and rejects new ones.
func (g *Group) Close() {
	for name := range g.timers {
		g.Cancel(name)
	}
	g.closed = true
}
