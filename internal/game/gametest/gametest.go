// Package gametest provides in-memory chat capabilities for testing game kinds and handlers.
package gametest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/beezo-bot/beezo/internal/game"
)

// Recorder is a game.Messenger that keeps everything it was asked to send.
type Recorder struct {
	mu    sync.Mutex
	notes []game.Notification
}

func (r *Recorder) SendToChannel(_ context.Context, channelID, content string) error {
	r.add(game.ToChannel(channelID, content))
	return nil
}

func (r *Recorder) SendDirect(_ context.Context, userID, content string) error {
	r.add(game.ToUser(userID, content))
	return nil
}

func (r *Recorder) DeleteMessage(_ context.Context, channelID, messageID string) error {
	r.add(game.DeleteMessage(channelID, messageID))
	return nil
}

// Observe lets a Recorder double as a game.Observer.
func (r *Recorder) Observe(n game.Notification) {
	r.add(n)
}

func (r *Recorder) add(n game.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

// All returns a copy of the recorded notifications in send order.
func (r *Recorder) All() []game.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]game.Notification(nil), r.notes...)
}

// Count returns how many recorded notifications contain substr.
func (r *Recorder) Count(substr string) int {
	n := 0
	for _, note := range r.All() {
		if strings.Contains(note.Content, substr) {
			n++
		}
	}
	return n
}

// DirectTo returns the direct messages sent to userID.
func (r *Recorder) DirectTo(userID string) []string {
	var out []string
	for _, note := range r.All() {
		if note.Kind == game.NotifyDirect && note.UserID == userID {
			out = append(out, note.Content)
		}
	}
	return out
}

// Source is a game.EventSource fed by Emit.
type Source struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func(game.Event)
}

func NewSource() *Source {
	return &Source{subs: make(map[string]map[int]func(game.Event))}
}

func (s *Source) Subscribe(channelID string, fn func(game.Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.subs[channelID] == nil {
		s.subs[channelID] = make(map[int]func(game.Event))
	}
	s.subs[channelID][id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[channelID], id)
	}
}

// Emit delivers ev synchronously to the channel's subscribers.
func (s *Source) Emit(ev game.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.mu.Lock()
	fns := make([]func(game.Event), 0, len(s.subs[ev.ChannelID]))
	for _, fn := range s.subs[ev.ChannelID] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Say emits a plain message from userID in channelID.
func (s *Source) Say(channelID, userID, content string) {
	s.Emit(game.Event{ChannelID: channelID, UserID: userID, UserName: userID, MessageID: "m-" + content, Content: content})
}

// Subscribers returns the number of live subscriptions on channelID.
func (s *Source) Subscribers(channelID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[channelID])
}
