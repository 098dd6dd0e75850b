// internal/game/rules.go
package game

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind names a game type (uno, wordassoc, mathquiz).
type Kind string

// TurnOrder decides who may act while a session is active.
type TurnOrder int

const (
	// TurnStrict only lets the player at the turn index act.
	TurnStrict TurnOrder = iota
	// TurnOpen lets any eligible player act; the turn index still marks a role (describer,
	// question number) and rotates on every valid action or timeout.
	TurnOpen
)

// TimeoutPolicy decides what a turn timeout does to the player who let it run out.
type TimeoutPolicy int

const (
	TimeoutSkip TimeoutPolicy = iota
	TimeoutForfeit
)

// EndReason is why a session reached the Ended phase.
type EndReason string

const (
	ReasonWon       EndReason = "won"
	ReasonCompleted EndReason = "completed"
	ReasonAbandoned EndReason = "abandoned"
	ReasonCancelled EndReason = "cancelled"
	ReasonTimedOut  EndReason = "timed_out"
	ReasonFailed    EndReason = "failed"
	ReasonShutdown  EndReason = "shutdown"
)

// Settings are the per-kind knobs the engine enforces on behalf of a Rules implementation.
type Settings struct {
	MinPlayers int
	MaxPlayers int

	TurnOrder     TurnOrder
	TurnTimeout   time.Duration // 0 disables the turn timer
	TimeoutPolicy TimeoutPolicy

	SessionTimeout time.Duration // 0 means the session only ends through play
	LobbyTimeout   time.Duration // 0 keeps an unstarted lobby open forever

	Chances  int           // incorrect attempts allowed per player; 0 disables chance tracking
	Cooldown time.Duration // minimum spacing between attempts by one player

	// OpenJoin admits non-members on their first action while the session is active.
	OpenJoin bool
	// StartOnCreate moves the session straight to Active when it is created.
	StartOnCreate bool

	// EphemeralChannel asks the registry for a dedicated channel for the session's lifetime.
	EphemeralChannel bool
	// ReleaseDelay postpones deleting the ephemeral channel so the final message can be read.
	ReleaseDelay time.Duration

	// AnnounceTurns emits a "it's X's turn" notification whenever the turn changes.
	AnnounceTurns bool
}

// Player is one roster entry. Domain inventory lives in the Rules instance keyed by ID.
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
	Excluded bool      `json:"excluded"`
	Score    int       `json:"score"`
}

// Action is a player's move. Name selects the move; Text carries its free-form argument.
type Action struct {
	Name      string
	Text      string
	Args      map[string]string
	MessageID string
	At        time.Time
}

// Outcome is the domain effect of a valid action.
type Outcome struct {
	Notes []Notification

	// Reverse flips the turn direction before advancing.
	Reverse bool
	// Skip passes over this many extra players when advancing.
	Skip int

	// Finished ends the session after this action. Winner may be empty (e.g. a quiz tie).
	Finished bool
	Winner   string
	Reason   EndReason
}

// Table is the session state a Rules implementation reads. Rules may change player scores but
// must never change the roster, the turn index or the direction; the session owns those.
type Table struct {
	SessionID uuid.UUID
	ChannelID string
	Owner     string
	Roster    []*Player
	Turn      int
	Direction int
	Moves     int
	Now       time.Time
}

// Current returns the player at the turn index, or nil for an empty roster.
func (t *Table) Current() *Player {
	if len(t.Roster) == 0 {
		return nil
	}
	return t.Roster[t.Turn]
}

// Player returns the roster entry for userID.
func (t *Table) Player(userID string) *Player {
	for _, p := range t.Roster {
		if p.ID == userID {
			return p
		}
	}
	return nil
}

// Peek returns the player `steps` positions away from the current one in the current direction.
func (t *Table) Peek(steps int) *Player {
	n := len(t.Roster)
	if n == 0 {
		return nil
	}
	return t.Roster[wrap(t.Turn+steps*t.Direction, n)]
}

// Mention formats a user reference the chat platform renders as a ping.
func Mention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

// Rules is the capability set one game kind plugs into the session engine.
// All methods are called with the session lock held.
type Rules interface {
	Kind() Kind
	Settings() Settings

	// Deal hands out initial resources when the session becomes active.
	Deal(t *Table) ([]Notification, error)
	// Validate reports ErrInvalidAction (wrapped with detail) for a move that cannot be made.
	Validate(t *Table, p *Player, a Action) error
	// Apply performs a validated move and reports its effect, including the win check.
	Apply(t *Table, p *Player, a Action) Outcome
	// OnTimeout runs when the current turn expires, before the turn moves on. Only Notes,
	// Finished, Winner and Reason are honoured.
	OnTimeout(t *Table, p *Player) Outcome
}

// MessageParser is implemented by kinds that read moves from plain channel messages.
// Returning false ignores the message; an Action with an empty Name only emits Notes.
type MessageParser interface {
	ParseMessage(t *Table, ev Event) (Action, []Notification, bool)
}

// Finisher is implemented by kinds that want to say something when the session ends.
type Finisher interface {
	Finish(t *Table, reason EndReason) []Notification
}

// Joiner is implemented by kinds that react to roster changes (e.g. dealing a late joiner in).
type Joiner interface {
	OnJoin(t *Table, p *Player) []Notification
	OnLeave(t *Table, p *Player) []Notification
}

// Inspector is implemented by kinds with private per-player state worth showing on request.
type Inspector interface {
	Inspect(t *Table, p *Player) []Notification
}

// Scoreboard ranks players by score, ties by seat.
func Scoreboard(roster []*Player) string {
	ranked := append([]*Player(nil), roster...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	var b strings.Builder
	b.WriteString("Scores:")
	for i, p := range ranked {
		fmt.Fprintf(&b, "\n%d. %s: %d", i+1, Mention(p.ID), p.Score)
	}
	return b.String()
}

// Leader returns the single highest scorer, or "" when nobody scored or the top is shared.
func Leader(roster []*Player) string {
	best, leader, tied := 0, "", false
	for _, p := range roster {
		switch {
		case p.Score > best:
			best, leader, tied = p.Score, p.ID, false
		case p.Score == best && best > 0:
			tied = true
		}
	}
	if tied {
		return ""
	}
	return leader
}

func wrap(i, n int) int {
	return ((i % n) + n) % n
}
