// internal/handlers/dispatcher.go
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/beezo-bot/beezo/internal/auth"
	"github.com/beezo-bot/beezo/internal/game"
	"github.com/beezo-bot/beezo/internal/games/mathquiz"
	"github.com/beezo-bot/beezo/internal/games/uno"
	"github.com/beezo-bot/beezo/internal/games/wordassoc"
	"github.com/sirupsen/logrus"
)

// Command is one slash command invocation, already stripped of platform types.
type Command struct {
	Game      game.Kind
	Sub       string
	GuildID   string
	ChannelID string
	// ParentID is the category of ChannelID; ephemeral game channels are created next to it.
	ParentID string
	UserID   string
	UserName string
	Args     map[string]string
}

// Reply is the direct response to the invoking user. Game notifications the command produced
// are held back in FollowUp so the platform can acknowledge the command first.
type Reply struct {
	Content   string
	Ephemeral bool
	FollowUp  func(ctx context.Context)
}

// Deliver runs the follow-up, if any. Call it after the reply has been shown.
func (r Reply) Deliver(ctx context.Context) {
	if r.FollowUp != nil {
		r.FollowUp(ctx)
	}
}

// then attaches delivery of notes to r.
func then(r Reply, s *game.Session, notes []game.Notification) Reply {
	if len(notes) == 0 {
		return r
	}
	r.FollowUp = func(ctx context.Context) { s.Deliver(ctx, notes) }
	return r
}

type CommandHandler interface {
	Handle(ctx context.Context, cmd Command) Reply
}

type CommandHandlerFunc func(ctx context.Context, cmd Command) Reply

func (f CommandHandlerFunc) Handle(ctx context.Context, cmd Command) Reply { return f(ctx, cmd) }

// Subcommands shared by every game kind.
const (
	SubStart  = "start"
	SubJoin   = "join"
	SubBegin  = "begin"
	SubLeave  = "leave"
	SubEnd    = "end"
	SubStatus = "status"
	SubFeed   = "feed"

	SubPlay   = "play"
	SubDraw   = "draw"
	SubHand   = "hand"
	SubGuess  = "guess"
	SubAnswer = "answer"
)

// GameConfig holds the per-kind settings new sessions are built from.
type GameConfig struct {
	Uno       uno.Config
	WordAssoc wordassoc.Config
	MathQuiz  mathquiz.Config
	// FeedURL is the externally reachable base of the ops server, e.g. "wss://bot.example.com".
	FeedURL string
}

// Dispatcher turns commands into registry and session calls and delivers what they produce.
type Dispatcher struct {
	registry *game.Registry
	channels game.ChannelManager
	games    GameConfig
	signer   *auth.Signer
	logger   logrus.FieldLogger
}

func NewDispatcher(registry *game.Registry, channels game.ChannelManager, games GameConfig, signer *auth.Signer, logger logrus.FieldLogger) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		registry: registry,
		channels: channels,
		games:    games,
		signer:   signer,
		logger:   logger,
	}
}

func (d *Dispatcher) Handle(ctx context.Context, cmd Command) Reply {
	switch cmd.Game {
	case uno.Kind, wordassoc.Kind, mathquiz.Kind:
	default:
		return private(fmt.Sprintf("Unknown game %q.", cmd.Game))
	}

	switch cmd.Sub {
	case SubStart:
		return d.start(ctx, cmd)
	case SubJoin:
		return d.join(ctx, cmd)
	case SubStatus:
		return d.status(cmd)
	case SubFeed:
		return d.feed(cmd)
	}

	s, err := d.resolve(cmd)
	if err != nil {
		return failure(err)
	}
	switch cmd.Sub {
	case SubBegin:
		notes, err := s.Start(cmd.UserID)
		return d.finish(s, notes, err, "Game started.")
	case SubLeave:
		notes, err := s.Leave(cmd.UserID)
		return d.finish(s, notes, err, "You left the game.")
	case SubEnd:
		notes, err := s.EndBy(cmd.UserID)
		return d.finish(s, notes, err, "Game ended.")
	case SubHand:
		notes, err := s.Inspect(cmd.UserID)
		return d.finish(s, notes, err, "Check your DMs.")
	}

	a, ok := actionFor(cmd)
	if !ok {
		return private(fmt.Sprintf("Unknown %s command %q.", cmd.Game, cmd.Sub))
	}
	notes, err := s.Act(cmd.UserID, cmd.UserName, a)
	return d.finish(s, notes, err, "Done.")
}

func actionFor(cmd Command) (game.Action, bool) {
	switch {
	case cmd.Game == uno.Kind && cmd.Sub == SubPlay:
		a := game.Action{Name: uno.ActionPlay, Text: cmd.Args["card"]}
		if c := cmd.Args["color"]; c != "" {
			a.Args = map[string]string{"color": c}
		}
		return a, true
	case cmd.Game == uno.Kind && cmd.Sub == SubDraw:
		return game.Action{Name: uno.ActionDraw}, true
	case cmd.Game == wordassoc.Kind && cmd.Sub == SubGuess:
		return game.Action{Name: wordassoc.ActionGuess, Text: cmd.Args["word"]}, true
	case cmd.Game == mathquiz.Kind && cmd.Sub == SubAnswer:
		return game.Action{Name: mathquiz.ActionAnswer, Text: cmd.Args["value"]}, true
	}
	return game.Action{}, false
}

func (d *Dispatcher) start(ctx context.Context, cmd Command) Reply {
	opts := game.SessionOptions{OwnerID: cmd.UserID, OwnerName: cmd.UserName}

	var (
		s   *game.Session
		err error
	)
	switch cmd.Game {
	case uno.Kind:
		cfg := d.games.Uno
		cfg.Rand = nil
		s, err = d.registry.Create(cmd.ChannelID, uno.New(cfg), opts)
	case mathquiz.Kind:
		cfg := d.games.MathQuiz
		cfg.Rand = nil
		s, err = d.registry.Create(cmd.ChannelID, mathquiz.New(cfg), opts)
	case wordassoc.Kind:
		if _, ferr := d.registry.FindByOwner(wordassoc.Kind, cmd.UserID); ferr == nil {
			return private("You're already hosting a word association game.")
		}
		cfg := d.games.WordAssoc
		cfg.Rand = nil
		s, err = d.registry.Open(ctx, game.OpenRequest{
			Channel: wordassoc.ChannelFor(cmd.GuildID, cmd.ParentID, cmd.UserID, cmd.UserName),
			Origin:  cmd.ChannelID,
			Rules:   wordassoc.New(cfg),
			Options: opts,
		})
	}
	if err != nil {
		d.logger.WithError(err).WithFields(logrus.Fields{"game": cmd.Game, "channel": cmd.ChannelID}).Debug("start rejected")
		return failure(err)
	}

	if s.Settings().StartOnCreate {
		notes, err := s.Start(cmd.UserID)
		return d.finish(s, notes, err, "Game started.")
	}

	announce := fmt.Sprintf("%s opened a %s game. Join with `/%s join`; the host starts it with `/%s begin`.",
		game.Mention(cmd.UserID), cmd.Game, cmd.Game, cmd.Game)
	notes := []game.Notification{game.ToChannel(s.ChannelID, announce)}
	reply := "Lobby created."
	if s.ChannelID != cmd.ChannelID {
		notes = append(notes, game.ToChannel(cmd.ChannelID, announce))
		reply = fmt.Sprintf("Your game channel is <#%s>.", s.ChannelID)
	}
	return then(private(reply), s, notes)
}

func (d *Dispatcher) join(ctx context.Context, cmd Command) Reply {
	s, err := d.resolve(cmd)
	if err != nil {
		return failure(err)
	}
	notes, err := s.Join(cmd.UserID, cmd.UserName)
	if err != nil {
		return failure(err)
	}

	if s.Settings().EphemeralChannel && d.channels != nil {
		perr := d.channels.SetPermissions(ctx, s.ChannelID, []game.PermissionRule{wordassoc.PlayerAccess(cmd.UserID)})
		if perr != nil {
			d.logger.WithError(perr).WithField("channel", s.ChannelID).Warn("failed to grant game channel access")
			leaveNotes, _ := s.Leave(cmd.UserID)
			return then(failure(fmt.Errorf("%w: %v", game.ErrChannelOpFailed, perr)), s, leaveNotes)
		}
	}
	if s.ChannelID != cmd.ChannelID {
		return then(private(fmt.Sprintf("You joined. Head over to <#%s>.", s.ChannelID)), s, notes)
	}
	return then(private("You joined the game."), s, notes)
}

func (d *Dispatcher) status(cmd Command) Reply {
	s, err := d.resolve(cmd)
	if err != nil {
		return failure(err)
	}
	snap := s.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "%s in <#%s>: %s, %d player%s.", snap.Kind, snap.ChannelID, snap.Phase, len(snap.Players), plural(len(snap.Players)))
	if snap.Current != "" && snap.Phase == game.PhaseActive.String() && s.Settings().TurnOrder == game.TurnStrict {
		fmt.Fprintf(&b, " It's %s's turn.", game.Mention(snap.Current))
	}
	for _, p := range snap.Players {
		fmt.Fprintf(&b, "\n%s", game.Mention(p.ID))
		if p.Score > 0 {
			fmt.Fprintf(&b, " (%d)", p.Score)
		}
	}
	return private(b.String())
}

func (d *Dispatcher) feed(cmd Command) Reply {
	if d.signer == nil || d.games.FeedURL == "" {
		return private("The live feed is disabled.")
	}
	s, err := d.resolve(cmd)
	if err != nil {
		return failure(err)
	}
	token, err := d.signer.CreateFeedToken(cmd.UserID, s.ChannelID)
	if err != nil {
		d.logger.WithError(err).Error("failed to create feed token")
		return failure(err)
	}
	link := fmt.Sprintf("%s/feed/ws/%s?token=%s", strings.TrimRight(d.games.FeedURL, "/"), url.PathEscape(s.ChannelID), url.QueryEscape(token))
	return private("Live feed: " + link)
}

// resolve finds the session a command refers to: the game in this channel, the game this
// channel spawned, or the game the user hosts.
func (d *Dispatcher) resolve(cmd Command) (*game.Session, error) {
	if s, err := d.registry.Get(cmd.ChannelID); err == nil {
		if s.Kind != cmd.Game {
			return nil, fmt.Errorf("%w: this channel is playing %s", game.ErrNotFound, s.Kind)
		}
		return s, nil
	}
	if s, err := d.registry.FindByOrigin(cmd.Game, cmd.ChannelID); err == nil {
		return s, nil
	}
	return d.registry.FindByOwner(cmd.Game, cmd.UserID)
}

func (d *Dispatcher) finish(s *game.Session, notes []game.Notification, err error, ok string) Reply {
	if err != nil {
		if !isUserError(err) {
			d.logger.WithError(err).WithField("channel", s.ChannelID).Error("command failed")
		}
		return then(failure(err), s, notes)
	}
	return then(private(ok), s, notes)
}

func private(content string) Reply {
	return Reply{Content: content, Ephemeral: true}
}

func failure(err error) Reply {
	return private(UserMessage(err))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func isUserError(err error) bool {
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
