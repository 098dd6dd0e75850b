package game

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/beezo-bot/beezo/internal/models"
	"github.com/stretchr/testify/mock"
)

// --- Messenger ---

type recordingMessenger struct {
	mu    sync.Mutex
	notes []Notification
}

func (m *recordingMessenger) SendToChannel(_ context.Context, channelID, content string) error {
	m.record(ToChannel(channelID, content))
	return nil
}

func (m *recordingMessenger) SendDirect(_ context.Context, userID, content string) error {
	m.record(ToUser(userID, content))
	return nil
}

func (m *recordingMessenger) DeleteMessage(_ context.Context, channelID, messageID string) error {
	m.record(DeleteMessage(channelID, messageID))
	return nil
}

func (m *recordingMessenger) record(n Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, n)
}

func (m *recordingMessenger) all() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Notification, len(m.notes))
	copy(out, m.notes)
	return out
}

func (m *recordingMessenger) countContaining(substr string) int {
	n := 0
	for _, note := range m.all() {
		if strings.Contains(note.Content, substr) {
			n++
		}
	}
	return n
}

// --- ChannelManager ---

type MockChannelManager struct {
	mock.Mock
}

func (m *MockChannelManager) CreateChannel(ctx context.Context, spec ChannelSpec) (string, error) {
	args := m.Called(ctx, spec)
	return args.String(0), args.Error(1)
}

func (m *MockChannelManager) DeleteChannel(ctx context.Context, channelID string) error {
	args := m.Called(ctx, channelID)
	return args.Error(0)
}

func (m *MockChannelManager) SetPermissions(ctx context.Context, channelID string, rules []PermissionRule) error {
	args := m.Called(ctx, channelID, rules)
	return args.Error(0)
}

// --- EventSource ---

type fakeSource struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func(Event)
	unsubs int
}

func newFakeSource() *fakeSource {
	return &fakeSource{subs: make(map[string]map[int]func(Event))}
}

func (f *fakeSource) Subscribe(channelID string, fn func(Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	if f.subs[channelID] == nil {
		f.subs[channelID] = make(map[int]func(Event))
	}
	f.subs[channelID][id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[channelID][id]; ok {
			delete(f.subs[channelID], id)
			f.unsubs++
		}
	}
}

// Emit delivers ev to every subscriber of its channel, outside the source lock.
func (f *fakeSource) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	f.mu.Lock()
	fns := make([]func(Event), 0, len(f.subs[ev.ChannelID]))
	for _, fn := range f.subs[ev.ChannelID] {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *fakeSource) subscribers(channelID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[channelID])
}

// --- ActionLog ---

type fakeHistory struct {
	mu      sync.Mutex
	records []models.SessionActionRecord
}

func (h *fakeHistory) RecordAction(_ context.Context, rec models.SessionActionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *fakeHistory) count(actionType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range h.records {
		if r.ActionType == actionType {
			n++
		}
	}
	return n
}

// --- Rules ---

// stubRules is a minimal game: "good" is always valid, "bad" never is, "win" ends the game,
// "reverse" flips direction and "skip" jumps a player.
type stubRules struct {
	settings Settings
	dealErr  error
	timeouts int
	// timeoutEnds makes the first timeout finish the game.
	timeoutEnds bool
	finished []EndReason
}

func newStubRules(min, max int) *stubRules {
	return &stubRules{settings: Settings{
		MinPlayers:  min,
		MaxPlayers:  max,
		TurnOrder:   TurnStrict,
		TurnTimeout: time.Hour,
	}}
}

func (r *stubRules) Kind() Kind         { return "stub" }
func (r *stubRules) Settings() Settings { return r.settings }

func (r *stubRules) Deal(t *Table) ([]Notification, error) {
	if r.dealErr != nil {
		return nil, r.dealErr
	}
	return []Notification{ToChannel(t.ChannelID, "dealt")}, nil
}

func (r *stubRules) Validate(t *Table, p *Player, a Action) error {
	if a.Name == "bad" {
		return Invalid("that move is not allowed")
	}
	return nil
}

func (r *stubRules) Apply(t *Table, p *Player, a Action) Outcome {
	out := Outcome{Notes: []Notification{ToChannel(t.ChannelID, p.ID+" played "+a.Name)}}
	switch a.Name {
	case "win":
		out.Finished = true
		out.Winner = p.ID
	case "reverse":
		out.Reverse = true
	case "skip":
		out.Skip = 1
	case "score":
		p.Score++
	}
	return out
}

func (r *stubRules) OnTimeout(t *Table, p *Player) Outcome {
	r.timeouts++
	return Outcome{Finished: r.timeoutEnds}
}

func (r *stubRules) Finish(t *Table, reason EndReason) []Notification {
	r.finished = append(r.finished, reason)
	return nil
}

// chatRules reads moves from "!move" channel messages.
type chatRules struct {
	*stubRules
}

func (r chatRules) ParseMessage(t *Table, ev Event) (Action, []Notification, bool) {
	if !strings.HasPrefix(ev.Content, "!") {
		return Action{}, nil, false
	}
	return Action{Name: strings.TrimPrefix(ev.Content, "!")}, nil, true
}
