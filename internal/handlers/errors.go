// internal/handlers/errors.go
package handlers

import (
	"errors"
	"strings"

	"github.com/beezo-bot/beezo/internal/auth"
	"github.com/beezo-bot/beezo/internal/game"
)

var userErrors = []error{
	game.ErrAlreadyExists,
	game.ErrNotFound,
	game.ErrAlreadyJoined,
	game.ErrGameFull,
	game.ErrNotEnoughPlayers,
	game.ErrNotYourTurn,
	game.ErrInvalidAction,
	game.ErrSessionEnded,
	game.ErrCooldown,
	game.ErrNoChancesLeft,
	game.ErrNotStarted,
	game.ErrInProgress,
	game.ErrNotPlaying,
	game.ErrNotOwner,
}

// UserMessage renders an engine error as a sentence for the player who caused it.
func UserMessage(err error) string {
	var invalid *game.InvalidActionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &invalid):
		return sentence(invalid.Reason)
	case errors.Is(err, game.ErrAlreadyExists):
		return "A game is already running in this channel."
	case errors.Is(err, game.ErrNotFound):
		return "There's no game of that kind running here."
	case errors.Is(err, game.ErrAlreadyJoined):
		return "You're already in this game."
	case errors.Is(err, game.ErrGameFull):
		return "The game is full."
	case errors.Is(err, game.ErrNotEnoughPlayers):
		return "Not enough players to start yet."
	case errors.Is(err, game.ErrNotYourTurn):
		return "It's not your turn."
	case errors.Is(err, game.ErrSessionEnded):
		return "That game has already ended."
	case errors.Is(err, game.ErrCooldown):
		return "Slow down! Wait a moment before trying again."
	case errors.Is(err, game.ErrNoChancesLeft):
		return "You have no chances left."
	case errors.Is(err, game.ErrChannelOpFailed):
		return "I couldn't set up the game channel. Check that I can manage channels."
	case errors.Is(err, game.ErrNotStarted):
		return "The game hasn't started yet."
	case errors.Is(err, game.ErrInProgress):
		return "The game has already started."
	case errors.Is(err, game.ErrNotPlaying):
		return "You're not in this game."
	case errors.Is(err, game.ErrNotOwner):
		return "Only the host can do that."
	case errors.Is(err, game.ErrProviderExhausted):
		return "The game ran out of cards."
	case errors.Is(err, auth.ErrNoSecret):
		return "The live feed is disabled."
	}
	return "Something went wrong. Please try again."
}

func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "That move isn't allowed."
	}
	s = strings.ToUpper(s[:1]) + s[1:]
	if !strings.ContainsAny(s[len(s)-1:], ".!?") {
		s += "."
	}
	return s
}
