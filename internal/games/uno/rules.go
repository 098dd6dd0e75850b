// internal/games/uno/rules.go
package uno

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/beezo-bot/beezo/internal/deck"
	"github.com/beezo-bot/beezo/internal/game"
)

const (
	Kind game.Kind = "uno"

	HandSize   = 7
	MinPlayers = 2
	MaxPlayers = 10

	ActionPlay = "play"
	ActionDraw = "draw"
)

type Config struct {
	TurnTimeout  time.Duration
	LobbyTimeout time.Duration
	// Rand seeds the deck; nil uses a time-seeded source.
	Rand *rand.Rand
}

// Rules is one UNO table's state. The session serializes every call.
type Rules struct {
	cfg   Config
	pool  *deck.Pool[Card]
	hands map[string][]Card
	top   Card
	color Color
}

func New(cfg Config) *Rules {
	pool := deck.NewPool(NewDeck(), cfg.Rand)
	pool.KeepTop = true
	return &Rules{
		cfg:   cfg,
		pool:  pool,
		hands: make(map[string][]Card),
	}
}

func (r *Rules) Kind() game.Kind { return Kind }

func (r *Rules) Settings() game.Settings {
	return game.Settings{
		MinPlayers:    MinPlayers,
		MaxPlayers:    MaxPlayers,
		TurnOrder:     game.TurnStrict,
		TurnTimeout:   r.cfg.TurnTimeout,
		TimeoutPolicy: game.TimeoutSkip,
		LobbyTimeout:  r.cfg.LobbyTimeout,
		AnnounceTurns: true,
	}
}

// Deal shuffles, hands out seven cards each and turns up a number card to start the pile.
func (r *Rules) Deal(t *game.Table) ([]game.Notification, error) {
	r.pool.Shuffle()
	for _, p := range t.Roster {
		hand, err := r.pool.DrawN(HandSize)
		if err != nil {
			return nil, err
		}
		r.hands[p.ID] = hand
	}

	for {
		c, err := r.pool.Draw()
		if err != nil {
			return nil, err
		}
		r.pool.Discard(c)
		if c.IsNumber() {
			r.top, r.color = c, c.Color
			break
		}
	}

	notes := []game.Notification{game.ToChannel(t.ChannelID, fmt.Sprintf("UNO has started with %d players! Top card: **%s**.", len(t.Roster), r.top))}
	for _, p := range t.Roster {
		notes = append(notes, r.handNote(p.ID))
	}
	return notes, nil
}

func (r *Rules) Validate(t *game.Table, p *game.Player, a game.Action) error {
	switch a.Name {
	case ActionDraw:
		return nil
	case ActionPlay:
		card, chosen, err := r.parse(a)
		if err != nil {
			return game.Invalid("%v. Try something like `red 5`, `blue skip` or `wild green`.", err)
		}
		if indexOf(r.hands[p.ID], card) < 0 {
			return game.Invalid("you don't have %s", card)
		}
		if card.IsWild() {
			if chosen == "" {
				return game.Invalid("pick a colour for your %s, e.g. `%s red`", card, strings.ToLower(card.String()))
			}
			return nil
		}
		if card.Color != r.color && card.Value != r.top.Value {
			return game.Invalid("%s doesn't match %s", card, r.describeTop())
		}
		return nil
	}
	return game.Invalid("unknown move %q", a.Name)
}

func (r *Rules) Apply(t *game.Table, p *game.Player, a game.Action) game.Outcome {
	if a.Name == ActionDraw {
		return r.applyDraw(t, p)
	}

	card, chosen, _ := r.parse(a)
	hand := r.hands[p.ID]
	i := indexOf(hand, card)
	r.hands[p.ID] = append(hand[:i], hand[i+1:]...)
	r.pool.Discard(card)
	r.top = card
	r.color = card.Color
	if card.IsWild() {
		r.color = chosen
	}

	played := fmt.Sprintf("%s played **%s**", game.Mention(p.ID), card)
	if card.IsWild() {
		played += fmt.Sprintf(" and chose **%s**", chosen)
	}
	out := game.Outcome{Notes: []game.Notification{game.ToChannel(t.ChannelID, played+".")}}

	left := len(r.hands[p.ID])
	if left == 0 {
		out.Finished = true
		out.Winner = p.ID
		out.Reason = game.ReasonWon
		return out
	}
	if left == 1 {
		out.Notes = append(out.Notes, game.ToChannel(t.ChannelID, fmt.Sprintf("%s has **UNO**!", game.Mention(p.ID))))
	}
	out.Notes = append(out.Notes, r.handNote(p.ID))

	twoPlayers := len(t.Roster) == 2
	switch card.Value {
	case Skip:
		out.Skip = 1
		out.Notes = append(out.Notes, game.ToChannel(t.ChannelID, fmt.Sprintf("%s is skipped.", game.Mention(t.Peek(1).ID))))
	case Reverse:
		out.Reverse = true
		if twoPlayers {
			out.Skip = 1
		}
		out.Notes = append(out.Notes, game.ToChannel(t.ChannelID, "Direction reversed."))
	case DrawTwo:
		out.Skip = 1
		out.Notes = append(out.Notes, r.penalize(t, t.Peek(1), 2)...)
	case WildDrawFour:
		out.Skip = 1
		out.Notes = append(out.Notes, r.penalize(t, t.Peek(1), 4)...)
	}
	return out
}

// OnTimeout makes the idle player draw a card before their turn is skipped.
func (r *Rules) OnTimeout(t *game.Table, p *game.Player) game.Outcome {
	drawn, err := r.pool.Draw()
	if err != nil {
		return game.Outcome{Notes: []game.Notification{game.ToChannel(t.ChannelID, "The deck is empty.")}}
	}
	r.hands[p.ID] = append(r.hands[p.ID], drawn)
	return game.Outcome{Notes: []game.Notification{
		game.ToChannel(t.ChannelID, fmt.Sprintf("%s took too long and draws a card.", game.Mention(p.ID))),
		game.ToUser(p.ID, fmt.Sprintf("You drew **%s**.\n%s", drawn, r.handText(p.ID))),
	}}
}

// Inspect DMs the player their hand.
func (r *Rules) Inspect(t *game.Table, p *game.Player) []game.Notification {
	return []game.Notification{r.handNote(p.ID)}
}

// OnJoin is never reached for UNO; joining closes at the start.
func (r *Rules) OnJoin(t *game.Table, p *game.Player) []game.Notification { return nil }

// OnLeave puts the leaver's hand back under the draw pile.
func (r *Rules) OnLeave(t *game.Table, p *game.Player) []game.Notification {
	r.pool.Return(r.hands[p.ID]...)
	delete(r.hands, p.ID)
	return nil
}

// Finish reports how many cards everyone was left holding.
func (r *Rules) Finish(t *game.Table, reason game.EndReason) []game.Notification {
	if len(r.hands) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString("Cards left:")
	for _, p := range t.Roster {
		fmt.Fprintf(&b, "\n%s: %d", game.Mention(p.ID), len(r.hands[p.ID]))
	}
	return []game.Notification{game.ToChannel(t.ChannelID, b.String())}
}

// Hand returns a copy of userID's hand.
func (r *Rules) Hand(userID string) []Card {
	return append([]Card(nil), r.hands[userID]...)
}

// Top returns the card on the discard pile and the colour in play.
func (r *Rules) Top() (Card, Color) { return r.top, r.color }

func (r *Rules) applyDraw(t *game.Table, p *game.Player) game.Outcome {
	drawn, err := r.pool.Draw()
	if err != nil {
		return game.Outcome{Notes: []game.Notification{game.ToChannel(t.ChannelID, fmt.Sprintf("The deck is empty; %s passes.", game.Mention(p.ID)))}}
	}
	r.hands[p.ID] = append(r.hands[p.ID], drawn)
	return game.Outcome{Notes: []game.Notification{
		game.ToChannel(t.ChannelID, fmt.Sprintf("%s drew a card.", game.Mention(p.ID))),
		game.ToUser(p.ID, fmt.Sprintf("You drew **%s**.\n%s", drawn, r.handText(p.ID))),
	}}
}

func (r *Rules) penalize(t *game.Table, victim *game.Player, n int) []game.Notification {
	drawn, _ := r.pool.DrawN(n)
	r.hands[victim.ID] = append(r.hands[victim.ID], drawn...)
	return []game.Notification{
		game.ToChannel(t.ChannelID, fmt.Sprintf("%s draws %d and is skipped.", game.Mention(victim.ID), len(drawn))),
		game.ToUser(victim.ID, fmt.Sprintf("You drew %s.\n%s", FormatHand(drawn), r.handText(victim.ID))),
	}
}

func (r *Rules) parse(a game.Action) (Card, Color, error) {
	card, chosen, err := ParseCard(a.Text)
	if err != nil {
		return Card{}, "", err
	}
	if c, ok := a.Args["color"]; ok && c != "" && card.IsWild() {
		parsed, ok := ParseColor(c)
		if !ok {
			return Card{}, "", fmt.Errorf("unknown colour %q", c)
		}
		chosen = parsed
	}
	return card, chosen, nil
}

func (r *Rules) describeTop() string {
	if r.top.IsWild() {
		return fmt.Sprintf("%s (%s)", r.top, r.color)
	}
	return r.top.String()
}

func (r *Rules) handText(userID string) string {
	return fmt.Sprintf("Your hand: %s\nTop card: %s", FormatHand(r.hands[userID]), r.describeTop())
}

func (r *Rules) handNote(userID string) game.Notification {
	return game.ToUser(userID, r.handText(userID))
}

func indexOf(hand []Card, c Card) int {
	for i, h := range hand {
		if h == c {
			return i
		}
	}
	return -1
}
