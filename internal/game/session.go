// internal/game/session.go
package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/beezo-bot/beezo/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Phase is a session's lifecycle state.
type Phase int

const (
	PhaseLobby Phase = iota
	PhaseActive
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	}
	return "unknown"
}

// SessionOptions carries a session's collaborators. Nil collaborators are skipped.
type SessionOptions struct {
	ID        uuid.UUID
	OwnerID   string
	OwnerName string

	Messenger Messenger
	Events    EventSource
	History   ActionLog
	Observers []Observer
	Logger    logrus.FieldLogger
	Clock     func() time.Time

	onEnded func(*Session)
}

// Session is one game bound to one channel. Every exported method serializes on the session
// lock; timer and collector callbacks enter through the same lock and re-check that they are
// still current before touching state.
type Session struct {
	ID        uuid.UUID
	ChannelID string
	Kind      Kind
	Owner     string
	CreatedAt time.Time

	mu        sync.Mutex
	phase     Phase
	reason    EndReason
	winner    string
	rules     Rules
	settings  Settings
	table     Table
	turns     *TurnScheduler
	deadline  *TurnScheduler
	collector *Collector
	limiter   *RateLimiter

	messenger   Messenger
	events      EventSource
	history     ActionLog
	observers   []Observer
	logger      logrus.FieldLogger
	clock       func() time.Time
	actionIndex int

	onEnded     func(*Session)
	cleanupOnce sync.Once
}

// NewSession creates a Lobby session with the owner seated first. A kind with a lobby timeout
// starts counting immediately.
func NewSession(channelID string, rules Rules, opts SessionOptions) *Session {
	if opts.ID == uuid.Nil {
		opts.ID = uuid.New()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	settings := rules.Settings()
	logger := opts.Logger.WithFields(logrus.Fields{
		"session": opts.ID.String(),
		"channel": channelID,
		"kind":    string(rules.Kind()),
	})

	now := opts.Clock()
	s := &Session{
		ID:        opts.ID,
		ChannelID: channelID,
		Kind:      rules.Kind(),
		Owner:     opts.OwnerID,
		CreatedAt: now,
		phase:     PhaseLobby,
		rules:     rules,
		settings:  settings,
		table: Table{
			SessionID: opts.ID,
			ChannelID: channelID,
			Owner:     opts.OwnerID,
			Direction: 1,
			Now:       now,
		},
		turns:     NewTurnScheduler(logger),
		deadline:  NewTurnScheduler(logger),
		limiter:   NewRateLimiter(settings.Cooldown, settings.Chances),
		messenger: opts.Messenger,
		events:    opts.Events,
		history:   opts.History,
		observers: opts.Observers,
		logger:    logger,
		clock:     opts.Clock,
		onEnded:   opts.onEnded,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if opts.OwnerID != "" {
		s.table.Roster = append(s.table.Roster, &Player{ID: opts.OwnerID, Name: opts.OwnerName, JoinedAt: now})
	}
	s.logAction(opts.OwnerID, models.ActionSessionCreate, nil)
	if settings.LobbyTimeout > 0 {
		s.deadline.Arm(settings.LobbyTimeout, s.onLobbyTimeout)
	}
	logger.Info("session created")
	return s
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// EndReason returns why the session ended, or "" while it is live.
func (s *Session) EndReason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Settings returns the kind's settings.
func (s *Session) Settings() Settings {
	return s.settings
}

// Rules returns the session's game rules. Callers must not invoke Rules methods directly.
func (s *Session) Rules() Rules {
	return s.rules
}

// Deliver sends notifications through the session's messenger and observers.
func (s *Session) Deliver(ctx context.Context, notes []Notification) {
	if len(notes) == 0 {
		return
	}
	Deliver(ctx, s.messenger, s.logger, notes, s.observers...)
}

// Join seats a player. Only open-join kinds admit players after the start.
func (s *Session) Join(userID, name string) ([]Notification, error) {
	s.mu.Lock()
	defer s.unlockAndCleanup()

	switch s.phase {
	case PhaseEnded:
		return nil, ErrSessionEnded
	case PhaseActive:
		if !s.settings.OpenJoin {
			return nil, ErrInProgress
		}
	}
	p, notes, err := s.admitLocked(userID, name)
	if err != nil {
		return nil, err
	}
	notes = append(notes, ToChannel(s.ChannelID, fmt.Sprintf("%s joined the game (%d player%s).",
		Mention(p.ID), len(s.table.Roster), plural(len(s.table.Roster)))))
	return notes, nil
}

func (s *Session) admitLocked(userID, name string) (*Player, []Notification, error) {
	if s.table.Player(userID) != nil {
		return nil, nil, ErrAlreadyJoined
	}
	if s.settings.MaxPlayers > 0 && len(s.table.Roster) >= s.settings.MaxPlayers {
		return nil, nil, ErrGameFull
	}
	s.table.Now = s.clock()
	p := &Player{ID: userID, Name: name, JoinedAt: s.table.Now}
	s.table.Roster = append(s.table.Roster, p)
	s.logAction(userID, models.ActionPlayerJoin, map[string]interface{}{"name": name})

	var notes []Notification
	if j, ok := s.rules.(Joiner); ok && s.phase == PhaseActive {
		notes = j.OnJoin(&s.table, p)
	}
	return p, notes, nil
}

// Leave removes a player. Leaving an active game forfeits it; the session is abandoned when the
// roster falls below the kind's minimum. The owner leaving a lobby cancels it.
func (s *Session) Leave(userID string) ([]Notification, error) {
	s.mu.Lock()
	defer s.unlockAndCleanup()

	if s.phase == PhaseEnded {
		return nil, ErrSessionEnded
	}
	idx := s.indexOf(userID)
	if idx < 0 {
		return nil, ErrNotPlaying
	}
	s.table.Now = s.clock()

	if s.phase == PhaseLobby {
		if userID == s.Owner {
			return s.endLocked(ReasonCancelled, ""), nil
		}
		s.table.Roster = append(s.table.Roster[:idx], s.table.Roster[idx+1:]...)
		s.logAction(userID, models.ActionPlayerLeave, nil)
		return []Notification{ToChannel(s.ChannelID, fmt.Sprintf("%s left the game.", Mention(userID)))}, nil
	}

	notes := []Notification{ToChannel(s.ChannelID, fmt.Sprintf("%s left the game.", Mention(userID)))}
	return append(notes, s.forfeitLocked(idx)...), nil
}

// Start moves the session from Lobby to Active: resources are dealt, the first player's turn
// timer is armed and, for message-driven kinds, the collector starts listening.
func (s *Session) Start(userID string) ([]Notification, error) {
	s.mu.Lock()
	defer s.unlockAndCleanup()

	switch s.phase {
	case PhaseEnded:
		return nil, ErrSessionEnded
	case PhaseActive:
		return nil, ErrInProgress
	}
	if s.Owner != "" && userID != s.Owner {
		return nil, ErrNotOwner
	}
	if len(s.table.Roster) < s.settings.MinPlayers {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrNotEnoughPlayers, s.settings.MinPlayers, len(s.table.Roster))
	}

	s.deadline.Cancel()
	s.phase = PhaseActive
	s.table.Turn = 0
	s.table.Direction = 1
	s.table.Now = s.clock()

	notes, err := s.rules.Deal(&s.table)
	if err != nil {
		s.logger.WithError(err).Error("initial deal failed")
		return append(notes, s.endLocked(ReasonFailed, "")...), err
	}
	s.logAction(userID, models.ActionSessionStart, map[string]interface{}{"players": s.rosterIDs()})

	if parser, ok := s.rules.(MessageParser); ok && s.events != nil {
		var c *Collector
		c = NewCollector(CollectorConfig{
			Source:    s.events,
			ChannelID: s.ChannelID,
			Window:    s.settings.SessionTimeout,
			OnEvent:   func(ev Event) { s.onCollectorEvent(c, parser, ev) },
			OnEnd:     func(res CollectorResult) { s.onCollectorEnd(c, res) },
			Logger:    s.logger,
		})
		s.collector = c
		c.Start()
	} else if s.settings.SessionTimeout > 0 {
		s.deadline.Arm(s.settings.SessionTimeout, s.onSessionDeadline)
	}

	s.armTurnLocked()
	s.logger.WithField("players", len(s.table.Roster)).Info("session started")
	return append(notes, s.turnNoticeLocked()...), nil
}

// Act submits a move for userID. The notifications returned alongside an error still need to be
// delivered (for example, telling a player they ran out of chances).
func (s *Session) Act(userID, userName string, a Action) ([]Notification, error) {
	s.mu.Lock()
	defer s.unlockAndCleanup()
	return s.actLocked(userID, userName, a)
}

func (s *Session) actLocked(userID, userName string, a Action) ([]Notification, error) {
	switch s.phase {
	case PhaseEnded:
		return nil, ErrSessionEnded
	case PhaseLobby:
		return nil, ErrNotStarted
	}

	var notes []Notification
	p := s.table.Player(userID)
	if p == nil {
		if !s.settings.OpenJoin {
			return nil, ErrNotPlaying
		}
		admitted, joinNotes, err := s.admitLocked(userID, userName)
		if err != nil {
			return nil, err
		}
		p = admitted
		notes = append(notes, joinNotes...)
	}
	if p.Excluded {
		return notes, ErrNoChancesLeft
	}
	if s.settings.TurnOrder == TurnStrict && s.table.Current() != p {
		return notes, ErrNotYourTurn
	}

	now := a.At
	if now.IsZero() {
		now = s.clock()
		a.At = now
	}
	if err := s.limiter.CheckAndConsume(userID, now); err != nil {
		return notes, err
	}

	s.table.Now = now
	if err := s.rules.Validate(&s.table, p, a); err != nil {
		s.logAction(userID, models.ActionPlayerInvalid, map[string]interface{}{"action": a.Name, "text": a.Text, "error": err.Error()})
		if s.settings.Chances > 0 {
			remaining := s.limiter.RecordFailure(userID)
			if remaining == 0 {
				p.Excluded = true
				notes = append(notes, ToChannel(s.ChannelID, fmt.Sprintf("%s is out of chances.", Mention(userID))))
			}
		}
		return notes, err
	}

	// The pending expiry must be dead before any state changes.
	s.turns.Cancel()

	s.limiter.RecordSuccess(userID)
	s.table.Moves++
	out := s.rules.Apply(&s.table, p, a)
	notes = append(notes, out.Notes...)
	s.logAction(userID, models.ActionPlayerAct, map[string]interface{}{"action": a.Name, "text": a.Text, "args": a.Args})

	if out.Finished {
		reason := out.Reason
		if reason == "" {
			reason = ReasonWon
		}
		return append(notes, s.endLocked(reason, out.Winner)...), nil
	}

	if out.Reverse {
		s.table.Direction = -s.table.Direction
	}
	s.advanceLocked(1 + out.Skip)
	s.armTurnLocked()
	return append(notes, s.turnNoticeLocked()...), nil
}

// Inspect returns the kind's private view for userID (a hand, a word, the current question).
func (s *Session) Inspect(userID string) ([]Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case PhaseEnded:
		return nil, ErrSessionEnded
	case PhaseLobby:
		return nil, ErrNotStarted
	}
	p := s.table.Player(userID)
	if p == nil {
		return nil, ErrNotPlaying
	}
	in, ok := s.rules.(Inspector)
	if !ok {
		return nil, nil
	}
	s.table.Now = s.clock()
	return in.Inspect(&s.table, p), nil
}

// EndBy ends the session on behalf of userID, who must be the owner.
func (s *Session) EndBy(userID string) ([]Notification, error) {
	s.mu.Lock()
	defer s.unlockAndCleanup()

	if s.phase == PhaseEnded {
		return nil, ErrSessionEnded
	}
	if s.Owner != "" && userID != s.Owner {
		return nil, ErrNotOwner
	}
	return s.endLocked(ReasonCancelled, ""), nil
}

// ForceEnd ends the session from any live phase.
func (s *Session) ForceEnd(reason EndReason) ([]Notification, error) {
	s.mu.Lock()
	defer s.unlockAndCleanup()

	if s.phase == PhaseEnded {
		return nil, ErrSessionEnded
	}
	return s.endLocked(reason, ""), nil
}

// Snapshot is a read-only copy of a session's state.
type Snapshot struct {
	ID        uuid.UUID `json:"id"`
	ChannelID string    `json:"channel_id"`
	Kind      Kind      `json:"kind"`
	Owner     string    `json:"owner"`
	Phase     string    `json:"phase"`
	Reason    EndReason `json:"reason,omitempty"`
	Winner    string    `json:"winner,omitempty"`
	Players   []Player  `json:"players"`
	Turn      int       `json:"turn"`
	Direction int       `json:"direction"`
	Moves     int       `json:"moves"`
	Current   string    `json:"current,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:        s.ID,
		ChannelID: s.ChannelID,
		Kind:      s.Kind,
		Owner:     s.Owner,
		Phase:     s.phase.String(),
		Reason:    s.reason,
		Winner:    s.winner,
		Players:   make([]Player, 0, len(s.table.Roster)),
		Turn:      s.table.Turn,
		Direction: s.table.Direction,
		Moves:     s.table.Moves,
		CreatedAt: s.CreatedAt,
	}
	for _, p := range s.table.Roster {
		snap.Players = append(snap.Players, *p)
	}
	if s.phase == PhaseActive {
		if cur := s.table.Current(); cur != nil {
			snap.Current = cur.ID
		}
	}
	return snap
}

// ---------- async entry points ----------

func (s *Session) onTurnTimeout(gen uint64) {
	s.mu.Lock()
	if s.phase != PhaseActive || !s.turns.Current(gen) {
		s.mu.Unlock()
		s.logger.WithField("generation", gen).Debug("stale turn timer ignored")
		return
	}
	notes := s.timeoutLocked()
	s.unlockAndCleanup()
	s.Deliver(context.Background(), notes)
}

func (s *Session) timeoutLocked() []Notification {
	s.table.Now = s.clock()
	p := s.table.Current()
	out := s.rules.OnTimeout(&s.table, p)
	notes := out.Notes
	s.logAction(p.ID, models.ActionTurnTimeout, map[string]interface{}{"turn": s.table.Turn})
	s.logger.WithField("player", p.ID).Info("turn timed out")

	if out.Finished {
		reason := out.Reason
		if reason == "" {
			reason = ReasonCompleted
		}
		return append(notes, s.endLocked(reason, out.Winner)...)
	}

	if s.settings.TimeoutPolicy == TimeoutForfeit {
		notes = append(notes, ToChannel(s.ChannelID, fmt.Sprintf("%s ran out of time and forfeits.", Mention(p.ID))))
		return append(notes, s.forfeitLocked(s.table.Turn)...)
	}

	if s.settings.TurnOrder == TurnStrict {
		notes = append(notes, ToChannel(s.ChannelID, fmt.Sprintf("%s's turn was skipped.", Mention(p.ID))))
	}
	s.advanceLocked(1)
	s.armTurnLocked()
	return append(notes, s.turnNoticeLocked()...)
}

func (s *Session) onSessionDeadline(gen uint64) {
	s.mu.Lock()
	if s.phase != PhaseActive || !s.deadline.Current(gen) {
		s.mu.Unlock()
		return
	}
	notes := s.endLocked(ReasonTimedOut, "")
	s.unlockAndCleanup()
	s.Deliver(context.Background(), notes)
}

func (s *Session) onLobbyTimeout(gen uint64) {
	s.mu.Lock()
	if s.phase != PhaseLobby || !s.deadline.Current(gen) {
		s.mu.Unlock()
		return
	}
	notes := []Notification{ToChannel(s.ChannelID, "Nobody started the game in time.")}
	notes = append(notes, s.endLocked(ReasonAbandoned, "")...)
	s.unlockAndCleanup()
	s.Deliver(context.Background(), notes)
}

func (s *Session) onCollectorEvent(c *Collector, parser MessageParser, ev Event) {
	s.mu.Lock()
	if s.phase != PhaseActive || s.collector != c {
		s.mu.Unlock()
		return
	}
	s.table.Now = s.clock()
	a, notes, ok := parser.ParseMessage(&s.table, ev)
	if ok {
		if a.At.IsZero() {
			a.At = ev.Timestamp
		}
		if a.MessageID == "" {
			a.MessageID = ev.MessageID
		}
		actNotes, err := s.actLocked(ev.UserID, ev.UserName, a)
		notes = append(notes, actNotes...)
		if msg := rejection(err); msg != "" {
			notes = append(notes, ToChannel(s.ChannelID, fmt.Sprintf("%s %s", Mention(ev.UserID), msg)))
		}
	}
	s.unlockAndCleanup()
	s.Deliver(context.Background(), notes)
}

func (s *Session) onCollectorEnd(c *Collector, res CollectorResult) {
	s.mu.Lock()
	if s.phase != PhaseActive || s.collector != c || res.Reason != EndTimedOut {
		s.mu.Unlock()
		return
	}
	s.logger.WithField("collected", res.Count).Info("collector window elapsed")
	notes := s.endLocked(ReasonTimedOut, "")
	s.unlockAndCleanup()
	s.Deliver(context.Background(), notes)
}

// rejection is the in-channel reply for a move read from a chat message. Errors that only make
// sense as command replies are dropped.
func rejection(err error) string {
	var invalid *InvalidActionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &invalid):
		return invalid.Reason
	case errors.Is(err, ErrCooldown):
		return "slow down, you're guessing too fast."
	case errors.Is(err, ErrNoChancesLeft):
		return "you have no chances left."
	}
	return ""
}

// ---------- helpers; all assume the lock is held ----------

func (s *Session) advanceLocked(steps int) {
	n := len(s.table.Roster)
	if n == 0 {
		return
	}
	s.table.Turn = wrap(s.table.Turn+steps*s.table.Direction, n)
}

func (s *Session) armTurnLocked() {
	if s.phase != PhaseActive || s.settings.TurnTimeout <= 0 || len(s.table.Roster) == 0 {
		return
	}
	s.turns.Arm(s.settings.TurnTimeout, s.onTurnTimeout)
}

func (s *Session) turnNoticeLocked() []Notification {
	if !s.settings.AnnounceTurns || s.phase != PhaseActive {
		return nil
	}
	cur := s.table.Current()
	if cur == nil {
		return nil
	}
	return []Notification{ToChannel(s.ChannelID, fmt.Sprintf("It's %s's turn.", Mention(cur.ID)))}
}

// forfeitLocked removes the player at idx from an active game and repairs the turn.
func (s *Session) forfeitLocked(idx int) []Notification {
	p := s.table.Roster[idx]
	wasCurrent := idx == s.table.Turn

	var notes []Notification
	if j, ok := s.rules.(Joiner); ok {
		notes = j.OnLeave(&s.table, p)
	}
	s.table.Roster = append(s.table.Roster[:idx], s.table.Roster[idx+1:]...)
	s.limiter.Forget(p.ID)
	s.logAction(p.ID, models.ActionPlayerLeave, map[string]interface{}{"forfeit": true})

	n := len(s.table.Roster)
	if n < s.settings.MinPlayers || n == 0 {
		return append(notes, s.endLocked(ReasonAbandoned, "")...)
	}

	switch {
	case idx < s.table.Turn:
		s.table.Turn--
	case wasCurrent:
		// The seat at idx now holds the next player clockwise.
		if s.table.Direction > 0 {
			s.table.Turn = wrap(idx, n)
		} else {
			s.table.Turn = wrap(idx-1, n)
		}
		s.armTurnLocked()
		notes = append(notes, s.turnNoticeLocked()...)
	}
	return notes
}

// endLocked moves the session to Ended exactly once, stops every timer and the collector, and
// returns the closing notifications.
func (s *Session) endLocked(reason EndReason, winner string) []Notification {
	if s.phase == PhaseEnded {
		return nil
	}
	s.phase = PhaseEnded
	s.reason = reason
	s.winner = winner
	s.turns.Cancel()
	s.deadline.Cancel()
	if s.collector != nil {
		s.collector.Stop()
	}
	s.table.Now = s.clock()

	var notes []Notification
	if f, ok := s.rules.(Finisher); ok {
		notes = f.Finish(&s.table, reason)
	}
	notes = append(notes, ToChannel(s.ChannelID, endMessage(reason, winner)))

	scores := make(map[string]int, len(s.table.Roster))
	for _, p := range s.table.Roster {
		scores[p.ID] = p.Score
	}
	s.logAction(winner, models.ActionSessionEnd, map[string]interface{}{
		"reason": string(reason),
		"winner": winner,
		"scores": scores,
		"moves":  s.table.Moves,
	})
	s.logger.WithFields(logrus.Fields{"reason": reason, "winner": winner}).Info("session ended")
	return notes
}

// unlockAndCleanup releases the lock and, once the session has ended, runs the end hook outside
// the lock so the registry can take its own.
func (s *Session) unlockAndCleanup() {
	ended := s.phase == PhaseEnded
	s.mu.Unlock()
	if ended {
		s.cleanupOnce.Do(func() {
			if s.onEnded != nil {
				s.onEnded(s)
			}
		})
	}
}

func (s *Session) indexOf(userID string) int {
	for i, p := range s.table.Roster {
		if p.ID == userID {
			return i
		}
	}
	return -1
}

func (s *Session) rosterIDs() []string {
	ids := make([]string, len(s.table.Roster))
	for i, p := range s.table.Roster {
		ids[i] = p.ID
	}
	return ids
}

func endMessage(reason EndReason, winner string) string {
	switch reason {
	case ReasonWon:
		if winner != "" {
			return fmt.Sprintf("%s wins! The game has ended.", Mention(winner))
		}
		return "The game has ended."
	case ReasonCompleted:
		return "All rounds played. The game has ended."
	case ReasonAbandoned:
		return "Not enough players left. The game was abandoned."
	case ReasonTimedOut:
		return "Time's up! The game has ended."
	case ReasonFailed:
		return "Something went wrong. The game has ended."
	case ReasonShutdown:
		return "The bot is restarting. The game has ended."
	}
	return "The game has ended."
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
