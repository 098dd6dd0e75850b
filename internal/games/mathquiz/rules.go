// internal/games/mathquiz/rules.go
package mathquiz

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/beezo-bot/beezo/internal/deck"
	"github.com/beezo-bot/beezo/internal/game"
)

const (
	Kind game.Kind = "mathquiz"

	ActionAnswer = "answer"

	DefaultRounds          = 5
	DefaultQuestionTimeout = 30 * time.Second

	incorrect = "Incorrect. Try again!"
)

type Config struct {
	Rounds          int
	QuestionTimeout time.Duration
	Chances         int
	Cooldown        time.Duration
	// Problems overrides the generated question set.
	Problems []Problem
	Rand     *rand.Rand
}

func (c Config) withDefaults() Config {
	if c.Rounds <= 0 {
		c.Rounds = DefaultRounds
	}
	if c.QuestionTimeout <= 0 {
		c.QuestionTimeout = DefaultQuestionTimeout
	}
	switch {
	case c.Chances == game.NoChances:
		c.Chances = 0
	case c.Chances <= 0:
		c.Chances = game.DefaultChances
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if len(c.Problems) == 0 {
		c.Problems = Generate(c.Rounds*2, c.Rand)
	}
	return c
}

// Rules runs one quiz in one channel. Anyone there may answer; the first correct answer wins
// the question.
type Rules struct {
	cfg     Config
	pool    *deck.Pool[Problem]
	current Problem
	asked   int
	active  bool
}

func New(cfg Config) *Rules {
	cfg = cfg.withDefaults()
	return &Rules{
		cfg:  cfg,
		pool: deck.NewPool(cfg.Problems, cfg.Rand),
	}
}

func (r *Rules) Kind() game.Kind { return Kind }

func (r *Rules) Settings() game.Settings {
	return game.Settings{
		MinPlayers:    1,
		TurnOrder:     game.TurnOpen,
		TurnTimeout:   r.cfg.QuestionTimeout,
		TimeoutPolicy: game.TimeoutSkip,
		Chances:       r.cfg.Chances,
		Cooldown:      r.cfg.Cooldown,
		OpenJoin:      true,
		StartOnCreate: true,
	}
}

func (r *Rules) Deal(t *game.Table) ([]game.Notification, error) {
	r.pool.Shuffle()
	if err := r.next(); err != nil {
		return nil, err
	}
	return []game.Notification{
		game.ToChannel(t.ChannelID, fmt.Sprintf("Math quiz! %d questions, %s each. Type the answer in the channel.", r.cfg.Rounds, r.cfg.QuestionTimeout)),
		r.questionNote(t),
	}, nil
}

// ParseMessage treats any message that is just a whole number as an answer.
func (r *Rules) ParseMessage(t *game.Table, ev game.Event) (game.Action, []game.Notification, bool) {
	if ev.Bot {
		return game.Action{}, nil, false
	}
	text := strings.TrimSpace(ev.Content)
	if _, err := strconv.Atoi(text); err != nil {
		return game.Action{}, nil, false
	}
	return game.Action{Name: ActionAnswer, Text: text}, nil, true
}

func (r *Rules) Validate(t *game.Table, p *game.Player, a game.Action) error {
	if a.Name != ActionAnswer {
		return game.Invalid("unknown move %q", a.Name)
	}
	n, err := strconv.Atoi(strings.TrimSpace(a.Text))
	if err != nil {
		return game.Invalid("answers are whole numbers")
	}
	if n != r.current.Answer() {
		return game.Invalid(incorrect)
	}
	return nil
}

// Apply scores the answer and moves on, finishing after the last round.
func (r *Rules) Apply(t *game.Table, p *game.Player, a game.Action) game.Outcome {
	p.Score++
	notes := []game.Notification{game.ToChannel(t.ChannelID, fmt.Sprintf("%s got it! %s = **%d**.", game.Mention(p.ID), r.current, r.current.Answer()))}
	return r.advance(t, notes)
}

// OnTimeout reveals the answer nobody gave and moves on.
func (r *Rules) OnTimeout(t *game.Table, p *game.Player) game.Outcome {
	notes := []game.Notification{game.ToChannel(t.ChannelID, fmt.Sprintf("Time's up! %s = **%d**.", r.current, r.current.Answer()))}
	return r.advance(t, notes)
}

// Inspect repeats the open question.
func (r *Rules) Inspect(t *game.Table, p *game.Player) []game.Notification {
	if !r.active {
		return nil
	}
	return []game.Notification{game.ToUser(p.ID, fmt.Sprintf("Question %d/%d: what is %s?", r.asked+1, r.cfg.Rounds, r.current))}
}

// Finish reveals an unanswered question and posts the leaderboard.
func (r *Rules) Finish(t *game.Table, reason game.EndReason) []game.Notification {
	var notes []game.Notification
	if r.active {
		notes = append(notes, game.ToChannel(t.ChannelID, fmt.Sprintf("The answer was **%d**.", r.current.Answer())))
		r.active = false
	}
	if len(t.Roster) == 0 {
		return notes
	}
	return append(notes, game.ToChannel(t.ChannelID, game.Scoreboard(t.Roster)))
}

// Current returns the open question.
func (r *Rules) Current() Problem { return r.current }

func (r *Rules) advance(t *game.Table, notes []game.Notification) game.Outcome {
	r.asked++
	r.pool.Discard(r.current)
	r.active = false
	if r.asked >= r.cfg.Rounds {
		return game.Outcome{Notes: notes, Finished: true, Winner: game.Leader(t.Roster), Reason: game.ReasonCompleted}
	}
	if err := r.next(); err != nil {
		return game.Outcome{Notes: notes, Finished: true, Winner: game.Leader(t.Roster), Reason: game.ReasonCompleted}
	}
	return game.Outcome{Notes: append(notes, r.questionNote(t))}
}

func (r *Rules) next() error {
	p, err := r.pool.Draw()
	if err != nil {
		return err
	}
	r.current = p
	r.active = true
	return nil
}

func (r *Rules) questionNote(t *game.Table) game.Notification {
	return game.ToChannel(t.ChannelID, fmt.Sprintf("Question %d/%d: what is **%s**?", r.asked+1, r.cfg.Rounds, r.current))
}
