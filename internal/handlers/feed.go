// internal/handlers/feed.go
package handlers

import (
	"sync"
	"time"

	"github.com/beezo-bot/beezo/internal/game"
)

// FeedEvent is one channel announcement streamed to feed observers.
type FeedEvent struct {
	Type      string    `json:"type"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	At        time.Time `json:"at"`
}

// feedBuffer is how many events a slow observer may fall behind before events are dropped.
const feedBuffer = 32

// FeedHub fans channel notifications out to websocket observers. It is registered as a
// game.Observer; direct messages are never streamed.
type FeedHub struct {
	mu   sync.Mutex
	subs map[string]map[chan FeedEvent]struct{}
	now  func() time.Time
}

func NewFeedHub() *FeedHub {
	return &FeedHub{subs: make(map[string]map[chan FeedEvent]struct{}), now: time.Now}
}

func (h *FeedHub) Observe(n game.Notification) {
	if n.Kind != game.NotifyChannel {
		return
	}
	ev := FeedEvent{Type: "message", ChannelID: n.ChannelID, Content: n.Content, At: h.now()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[n.ChannelID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a stream of channelID's events and a function that ends it.
func (h *FeedHub) Subscribe(channelID string) (<-chan FeedEvent, func()) {
	ch := make(chan FeedEvent, feedBuffer)

	h.mu.Lock()
	if h.subs[channelID] == nil {
		h.subs[channelID] = make(map[chan FeedEvent]struct{})
	}
	h.subs[channelID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[channelID], ch)
			if len(h.subs[channelID]) == 0 {
				delete(h.subs, channelID)
			}
			close(ch)
		})
	}
}

// Subscribers reports how many observers watch channelID.
func (h *FeedHub) Subscribers(channelID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[channelID])
}
