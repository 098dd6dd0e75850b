// internal/games/wordassoc/rules.go
package wordassoc

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/beezo-bot/beezo/internal/deck"
	"github.com/beezo-bot/beezo/internal/game"
)

const (
	Kind game.Kind = "wordassoc"

	ActionGuess = "guess"

	// GuessPrefix marks a channel message as a guess.
	GuessPrefix = "!"

	MinPlayers = 2
	MaxPlayers = 10

	DefaultDuration     = 60 * time.Second
	DefaultTurnTimeout  = 20 * time.Second
	DefaultCooldown     = 5 * time.Second
	DefaultReleaseDelay = 5 * time.Second

	notRelated = "The message is not related to the word."
)

type Config struct {
	Words        []Word
	Duration     time.Duration
	TurnTimeout  time.Duration
	LobbyTimeout time.Duration
	Chances      int
	Cooldown     time.Duration
	ReleaseDelay time.Duration
	Rand         *rand.Rand
}

func (c Config) withDefaults() Config {
	if len(c.Words) == 0 {
		c.Words = BuiltinWords
	}
	if c.Duration <= 0 {
		c.Duration = DefaultDuration
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = DefaultTurnTimeout
	}
	switch {
	case c.Chances == game.NoChances:
		c.Chances = 0
	case c.Chances <= 0:
		c.Chances = game.DefaultChances
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.ReleaseDelay <= 0 {
		c.ReleaseDelay = DefaultReleaseDelay
	}
	return c
}

// Rules runs one word association game. The player at the turn index describes; everyone else
// guesses in the game channel with "!word".
type Rules struct {
	cfg     Config
	pool    *deck.Pool[Word]
	current Word
	active  bool
}

func New(cfg Config) *Rules {
	cfg = cfg.withDefaults()
	return &Rules{
		cfg:  cfg,
		pool: deck.NewPool(cfg.Words, cfg.Rand),
	}
}

func (r *Rules) Kind() game.Kind { return Kind }

func (r *Rules) Settings() game.Settings {
	return game.Settings{
		MinPlayers:       MinPlayers,
		MaxPlayers:       MaxPlayers,
		TurnOrder:        game.TurnOpen,
		TurnTimeout:      r.cfg.TurnTimeout,
		TimeoutPolicy:    game.TimeoutSkip,
		SessionTimeout:   r.cfg.Duration,
		LobbyTimeout:     r.cfg.LobbyTimeout,
		Chances:          r.cfg.Chances,
		Cooldown:         r.cfg.Cooldown,
		EphemeralChannel: true,
		ReleaseDelay:     r.cfg.ReleaseDelay,
	}
}

var unsafeChannelChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// ChannelFor describes the private game channel for a host: hidden from everyone except the
// host, who can read and post.
func ChannelFor(guildID, parentID, hostID, hostName string) game.ChannelSpec {
	name := unsafeChannelChars.ReplaceAllString(strings.ToLower(hostName), "-")
	name = strings.Trim(name, "-")
	if name == "" {
		name = hostID
	}
	return game.ChannelSpec{
		GuildID:  guildID,
		ParentID: parentID,
		Name:     name + "-word-association",
		Topic:    "Word association. Guess with !word",
		Rules: []game.PermissionRule{
			{Target: game.TargetEveryone, ID: guildID, DenyView: true},
			PlayerAccess(hostID),
		},
	}
}

// PlayerAccess lets a player see and post in the game channel.
func PlayerAccess(userID string) game.PermissionRule {
	return game.PermissionRule{Target: game.TargetMember, ID: userID, AllowView: true, AllowSend: true}
}

func (r *Rules) Deal(t *game.Table) ([]game.Notification, error) {
	r.pool.Shuffle()
	describer := t.Current()
	word, err := r.next()
	if err != nil {
		return nil, err
	}
	return []game.Notification{
		game.ToChannel(t.ChannelID, fmt.Sprintf(
			"Word association has started! %s is describing. Everyone else, guess with `%sword`. You have %s.",
			game.Mention(describer.ID), GuessPrefix, r.cfg.Duration)),
		wordNote(describer.ID, word, "The word is"),
	}, nil
}

// ParseMessage turns "!word" posts from guessers into guesses. The describer's "!" posts are
// deleted so they can't leak the answer; their other messages are hints and left alone.
func (r *Rules) ParseMessage(t *game.Table, ev game.Event) (game.Action, []game.Notification, bool) {
	if ev.Bot || !strings.HasPrefix(ev.Content, GuessPrefix) {
		return game.Action{}, nil, false
	}
	if d := t.Current(); d != nil && d.ID == ev.UserID {
		return game.Action{}, []game.Notification{game.DeleteMessage(ev.ChannelID, ev.MessageID)}, false
	}
	guess := strings.TrimSpace(strings.TrimPrefix(ev.Content, GuessPrefix))
	if guess == "" {
		return game.Action{}, nil, false
	}
	return game.Action{Name: ActionGuess, Text: guess}, nil, true
}

func (r *Rules) Validate(t *game.Table, p *game.Player, a game.Action) error {
	if a.Name != ActionGuess {
		return game.Invalid("unknown move %q", a.Name)
	}
	if d := t.Current(); d != nil && d.ID == p.ID {
		return game.Invalid("you're describing this word")
	}
	if !strings.EqualFold(strings.TrimSpace(a.Text), r.current.Word) {
		return game.Invalid(notRelated)
	}
	return nil
}

// Apply scores a correct guess and passes the describer role on with a fresh word.
func (r *Rules) Apply(t *game.Table, p *game.Player, a game.Action) game.Outcome {
	p.Score++
	describer := t.Current()
	solved := r.current

	notes := []game.Notification{
		game.ToChannel(t.ChannelID, fmt.Sprintf("%s guessed it! The word was **%s**.", game.Mention(p.ID), solved.Word)),
		game.ToUser(describer.ID, fmt.Sprintf("Congratulations! %s guessed your word.", p.Name)),
	}
	return game.Outcome{Notes: append(notes, r.rotate(t, "The new word is")...)}
}

// OnTimeout reveals the word nobody got and moves the describer role on.
func (r *Rules) OnTimeout(t *game.Table, p *game.Player) game.Outcome {
	notes := []game.Notification{game.ToChannel(t.ChannelID, fmt.Sprintf("Nobody got it. The word was **%s**.", r.current.Word))}
	return game.Outcome{Notes: append(notes, r.rotate(t, "Your word is")...)}
}

// Inspect re-sends the word to the describer.
func (r *Rules) Inspect(t *game.Table, p *game.Player) []game.Notification {
	if d := t.Current(); d != nil && d.ID == p.ID && r.active {
		return []game.Notification{wordNote(p.ID, r.current, "The word is")}
	}
	return []game.Notification{game.ToUser(p.ID, fmt.Sprintf("You're guessing. Post `%sword` in the game channel.", GuessPrefix))}
}

// OnJoin is never reached; joining closes at the start.
func (r *Rules) OnJoin(t *game.Table, p *game.Player) []game.Notification { return nil }

// OnLeave hands a fresh word to the next describer when the current one walks out. Called
// before p leaves the roster; a game about to be abandoned keeps its word for Finish.
func (r *Rules) OnLeave(t *game.Table, p *game.Player) []game.Notification {
	d := t.Current()
	if !r.active || d == nil || d.ID != p.ID || len(t.Roster)-1 < MinPlayers {
		return nil
	}
	notes := []game.Notification{game.ToChannel(t.ChannelID, fmt.Sprintf("The word was **%s**.", r.current.Word))}
	return append(notes, r.rotate(t, "You're describing now. The word is")...)
}

// Finish reveals the open word and posts the scores.
func (r *Rules) Finish(t *game.Table, reason game.EndReason) []game.Notification {
	var notes []game.Notification
	if r.active {
		notes = append(notes, game.ToChannel(t.ChannelID, fmt.Sprintf("The last word was **%s**.", r.current.Word)))
		r.active = false
	}
	if len(t.Roster) == 0 {
		return notes
	}
	return append(notes, game.ToChannel(t.ChannelID, game.Scoreboard(t.Roster)))
}

// Current returns the word being described.
func (r *Rules) Current() Word { return r.current }

// rotate retires the current word and sends a new one to the next describer.
func (r *Rules) rotate(t *game.Table, lead string) []game.Notification {
	next := t.Peek(1)
	word, err := r.next()
	if err != nil {
		return []game.Notification{game.ToChannel(t.ChannelID, "Out of words!")}
	}
	return []game.Notification{
		game.ToChannel(t.ChannelID, fmt.Sprintf("%s is describing now.", game.Mention(next.ID))),
		wordNote(next.ID, word, lead),
	}
}

func (r *Rules) next() (Word, error) {
	if r.active {
		r.pool.Discard(r.current)
	}
	w, err := r.pool.Draw()
	if err != nil {
		r.active = false
		return Word{}, err
	}
	r.current = w
	r.active = true
	return w, nil
}

func wordNote(userID string, w Word, lead string) game.Notification {
	return game.ToUser(userID, fmt.Sprintf("%s %s.\nHint: %s", lead, w.Word, w.Hint))
}
