package game

import (
	"errors"
	"fmt"

	"github.com/beezo-bot/beezo/internal/deck"
)

// Outcomes returned to the command dispatcher. None of them are fatal to a session; the
// dispatcher renders them as a user-facing message.
var (
	ErrAlreadyExists    = errors.New("a game is already in progress in this channel")
	ErrNotFound         = errors.New("no game in progress in this channel")
	ErrAlreadyJoined    = errors.New("already joined")
	ErrGameFull         = errors.New("game is full")
	ErrNotEnoughPlayers = errors.New("not enough players")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrInvalidAction    = errors.New("invalid action")
	ErrSessionEnded     = errors.New("game has ended")
	ErrCooldown         = errors.New("slow down")
	ErrNoChancesLeft    = errors.New("no chances left")
	ErrChannelOpFailed  = errors.New("channel operation failed")

	ErrNotStarted = errors.New("game has not started")
	ErrInProgress = errors.New("game already started")
	ErrNotPlaying = errors.New("not a player in this game")
	ErrNotOwner   = errors.New("only the host can do that")
)

// InvalidActionError carries the reason a move was rejected. It matches ErrInvalidAction with
// errors.Is, and Reason is safe to show to players.
type InvalidActionError struct {
	Reason string
}

func (e *InvalidActionError) Error() string { return ErrInvalidAction.Error() + ": " + e.Reason }

func (e *InvalidActionError) Unwrap() error { return ErrInvalidAction }

// Invalid builds an InvalidActionError.
func Invalid(format string, args ...interface{}) error {
	return &InvalidActionError{Reason: fmt.Sprintf(format, args...)}
}

// ErrProviderExhausted is the deck package's exhaustion error, re-exported so callers of the
// engine only need one import for the error taxonomy.
var ErrProviderExhausted = deck.ErrProviderExhausted
