// internal/deck/pool.go
package deck

import (
	"errors"
	"math/rand"
	"time"
)

// ErrProviderExhausted is returned by Draw when both the draw pile and the discard pile are empty.
var ErrProviderExhausted = errors.New("content provider exhausted")

// Pool is a draw pile backed by a discard pile. When the draw pile runs dry the discard pile is
// moved back in and reshuffled, so a pool fed by an append-only discard pile never runs out.
//
// A Pool is owned by exactly one session and is not safe for concurrent use on its own; the
// owning session serializes access under its lock.
type Pool[T any] struct {
	draw    []T
	discard []T
	rng     *rand.Rand

	// Reshuffles counts how many times the discard pile was folded back into the draw pile.
	Reshuffles int

	// KeepTop leaves the most recent discard face up when the discard pile is folded back in.
	KeepTop bool
}

// NewPool builds a pool from the given items. The items are copied, not shuffled; call Shuffle
// before the first draw when order matters. A nil rng falls back to a time-seeded source.
func NewPool[T any](items []T, rng *rand.Rand) *Pool[T] {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	draw := make([]T, len(items))
	copy(draw, items)
	return &Pool[T]{
		draw: draw,
		rng:  rng,
	}
}

// Shuffle permutes the draw pile in place with a Fisher-Yates shuffle.
func (p *Pool[T]) Shuffle() {
	p.rng.Shuffle(len(p.draw), func(i, j int) {
		p.draw[i], p.draw[j] = p.draw[j], p.draw[i]
	})
}

// Draw removes and returns the top item, refilling from the discard pile when needed.
func (p *Pool[T]) Draw() (T, error) {
	var zero T
	if len(p.draw) == 0 {
		recycle := len(p.discard)
		if p.KeepTop && recycle > 0 {
			recycle--
		}
		if recycle == 0 {
			return zero, ErrProviderExhausted
		}
		p.draw = append(p.draw, p.discard[:recycle]...)
		p.discard = append(p.discard[:0], p.discard[recycle:]...)
		p.Shuffle()
		p.Reshuffles++
	}

	top := p.draw[len(p.draw)-1]
	p.draw = p.draw[:len(p.draw)-1]
	return top, nil
}

// DrawN draws n items. On exhaustion it returns what was drawn so far along with the error.
func (p *Pool[T]) DrawN(n int) ([]T, error) {
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		item, err := p.Draw()
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}

// Discard appends items to the discard pile. The last item discarded becomes TopDiscard.
func (p *Pool[T]) Discard(items ...T) {
	p.discard = append(p.discard, items...)
}

// Return puts items back at the bottom of the draw pile, behind everything still to be drawn.
func (p *Pool[T]) Return(items ...T) {
	p.draw = append(append(make([]T, 0, len(items)+len(p.draw)), items...), p.draw...)
}

// TopDiscard returns the most recently discarded item.
func (p *Pool[T]) TopDiscard() (T, bool) {
	var zero T
	if len(p.discard) == 0 {
		return zero, false
	}
	return p.discard[len(p.discard)-1], true
}

// Peek returns the next item Draw would return without removing it. It does not reshuffle.
func (p *Pool[T]) Peek() (T, bool) {
	var zero T
	if len(p.draw) == 0 {
		return zero, false
	}
	return p.draw[len(p.draw)-1], true
}

// Len is the number of items left in the draw pile.
func (p *Pool[T]) Len() int { return len(p.draw) }

// DiscardLen is the number of items in the discard pile.
func (p *Pool[T]) DiscardLen() int { return len(p.discard) }
