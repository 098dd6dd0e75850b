// internal/game/collector.go
package game

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CollectorEndReason says why a collector stopped.
type CollectorEndReason string

const (
	EndStopped  CollectorEndReason = "stopped"
	EndTimedOut CollectorEndReason = "timed_out"
)

// CollectorResult is reported to the owner once, when the collector ends.
type CollectorResult struct {
	Reason CollectorEndReason
	Count  int
}

type CollectorConfig struct {
	Source    EventSource
	ChannelID string
	// Filter picks the events to collect. Nil accepts every non-bot event.
	Filter func(Event) bool
	// Window bounds the collector's lifetime. Zero runs until Stop.
	Window time.Duration

	OnEvent func(Event)
	OnEnd   func(CollectorResult)

	Logger logrus.FieldLogger
}

// Collector is a time-boxed, filtered subscription over one channel's events.
type Collector struct {
	cfg CollectorConfig

	mu          sync.Mutex
	started     bool
	ended       bool
	collected   []Event
	unsubscribe func()
	timer       *time.Timer
}

func NewCollector(cfg CollectorConfig) *Collector {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Filter == nil {
		cfg.Filter = func(ev Event) bool { return !ev.Bot }
	}
	return &Collector{cfg: cfg}
}

// Start subscribes and arms the window. Calling Start twice, or after the collector ended, does
// nothing.
func (c *Collector) Start() {
	c.mu.Lock()
	if c.started || c.ended {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	// Subscribe outside the lock; a source may deliver synchronously.
	unsub := c.cfg.Source.Subscribe(c.cfg.ChannelID, c.handle)

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		unsub()
		return
	}
	c.unsubscribe = unsub
	if c.cfg.Window > 0 {
		c.timer = time.AfterFunc(c.cfg.Window, func() { c.end(EndTimedOut) })
	}
	c.mu.Unlock()
}

// Stop ends the collector with EndStopped. It is a no-op once the collector has ended.
func (c *Collector) Stop() {
	c.end(EndStopped)
}

// Count is the number of events collected so far.
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.collected)
}

// Collected returns a copy of the collected events.
func (c *Collector) Collected() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.collected))
	copy(out, c.collected)
	return out
}

// Ended reports whether the collector has finished.
func (c *Collector) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

func (c *Collector) handle(ev Event) {
	if ev.ChannelID != c.cfg.ChannelID {
		return
	}

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if !c.safeFilter(ev) {
		return
	}

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.collected = append(c.collected, ev)
	c.mu.Unlock()

	if c.cfg.OnEvent != nil {
		c.guard("event", func() { c.cfg.OnEvent(ev) })
	}
}

// end runs at most once. OnEnd is delivered on its own goroutine so an owner may call Stop while
// holding the lock its OnEnd handler takes.
func (c *Collector) end(reason CollectorEndReason) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	unsub := c.unsubscribe
	c.unsubscribe = nil
	result := CollectorResult{Reason: reason, Count: len(c.collected)}
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if c.cfg.OnEnd != nil {
		go c.guard("end", func() { c.cfg.OnEnd(result) })
	}
}

func (c *Collector) safeFilter(ev Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.cfg.Logger.WithField("channel", c.cfg.ChannelID).Errorf("collector filter panicked: %v", r)
			ok = false
		}
	}()
	return c.cfg.Filter(ev)
}

func (c *Collector) guard(stage string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.cfg.Logger.WithFields(logrus.Fields{
				"channel": c.cfg.ChannelID,
				"stage":   stage,
			}).Errorf("collector callback panicked: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
}
