package core

import (
	"sort"
	"time"

	"github.com/benbjohnson/clock"
)

// presence tracks which remote participants are typing. Each entry expires
// after the display timeout unless refreshed. Owned by the conversation
// goroutine; expiry is reported through the expire callback.
type presence struct {
	clock   clock.Clock
	timeout time.Duration
	expire  func(key string, gen uint64)

	labels map[string]string
	timers map[string]*clock.Timer
	gens   map[string]uint64
	seq    uint64
}

func newPresence(clk clock.Clock, timeout time.Duration, expire func(key string, gen uint64)) *presence {
	return &presence{
		clock:   clk,
		timeout: timeout,
		expire:  expire,
		labels:  make(map[string]string),
		timers:  make(map[string]*clock.Timer),
		gens:    make(map[string]uint64),
	}
}

// apply records a typing signal and reports whether the set changed.
func (p *presence) apply(sig TypingSignal) bool {
	key := sig.key()
	if key == "" {
		return false
	}
	if !sig.IsTyping {
		return p.remove(key)
	}

	_, existed := p.labels[key]
	p.labels[key] = sig.label()
	p.stopTimer(key)
	p.seq++
	gen := p.seq
	p.gens[key] = gen
	if p.timeout > 0 && p.expire != nil {
		p.timers[key] = p.clock.AfterFunc(p.timeout, func() { p.expire(key, gen) })
	}
	return !existed
}

// expired drops key if gen still names its latest signal.
func (p *presence) expired(key string, gen uint64) bool {
	if p.gens[key] != gen {
		return false
	}
	return p.remove(key)
}

func (p *presence) remove(key string) bool {
	if _, ok := p.labels[key]; !ok {
		return false
	}
	p.stopTimer(key)
	delete(p.labels, key)
	delete(p.gens, key)
	return true
}

func (p *presence) list() []string {
	if len(p.labels) == 0 {
		return nil
	}
	out := make([]string, 0, len(p.labels))
	for _, l := range p.labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func (p *presence) clear() {
	for key := range p.timers {
		p.stopTimer(key)
	}
	p.labels = make(map[string]string)
	p.gens = make(map[string]uint64)
}

func (p *presence) stopTimer(key string) {
	if t, ok := p.timers[key]; ok {
		t.Stop()
		delete(p.timers, key)
	}
}
