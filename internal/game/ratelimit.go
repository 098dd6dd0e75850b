// internal/game/ratelimit.go
package game

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultChances is the number of incorrect attempts a player gets when a kind does not say.
const DefaultChances = 3

// NoChances asks a game config to turn chance tracking off; a zero Chances means DefaultChances.
const NoChances = -1

type playerBudget struct {
	limiter      *rate.Limiter
	remaining    int
	lastActionAt time.Time
}

// RateLimiter tracks per-player attempt spacing and remaining chances for one session.
type RateLimiter struct {
	mu       sync.Mutex
	cooldown time.Duration
	chances  int
	players  map[string]*playerBudget
}

// NewRateLimiter builds a limiter. A cooldown of zero disables spacing; chances of zero disable
// chance tracking entirely.
func NewRateLimiter(cooldown time.Duration, chances int) *RateLimiter {
	return &RateLimiter{
		cooldown: cooldown,
		chances:  chances,
		players:  make(map[string]*playerBudget),
	}
}

func (r *RateLimiter) budget(userID string) *playerBudget {
	b, ok := r.players[userID]
	if !ok {
		b = &playerBudget{remaining: r.chances}
		if r.cooldown > 0 {
			b.limiter = rate.NewLimiter(rate.Every(r.cooldown), 1)
		}
		r.players[userID] = b
	}
	return b
}

// CheckAndConsume admits an attempt at now. A rejected attempt never consumes a chance or
// moves lastActionAt.
func (r *RateLimiter) CheckAndConsume(userID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.budget(userID)
	if b.limiter != nil && b.limiter.TokensAt(now) < 1 {
		return ErrCooldown
	}
	if r.chances > 0 && b.remaining <= 0 {
		return ErrNoChancesLeft
	}
	if b.limiter != nil {
		b.limiter.AllowN(now, 1)
	}
	b.lastActionAt = now
	return nil
}

// RecordFailure spends one chance and returns how many are left.
func (r *RateLimiter) RecordFailure(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.budget(userID)
	if r.chances == 0 {
		return 0
	}
	if b.remaining > 0 {
		b.remaining--
	}
	return b.remaining
}

// RecordSuccess restores the player's chances to the default.
func (r *RateLimiter) RecordSuccess(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.budget(userID).remaining = r.chances
}

// Remaining returns the chances left for userID.
func (r *RateLimiter) Remaining(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.budget(userID).remaining
}

// LastActionAt returns when userID's last admitted attempt happened.
func (r *RateLimiter) LastActionAt(userID string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.budget(userID).lastActionAt
}

// Forget drops all state for userID.
func (r *RateLimiter) Forget(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, userID)
}
