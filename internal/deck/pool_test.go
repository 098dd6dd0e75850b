package deck

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

func TestDrawFromFreshPool(t *testing.T) {
	p := NewPool([]int{1, 2, 3}, seeded())

	seen := map[int]bool{}
	for i := 0; i < 3; i++ {
		v, err := p.Draw()
		require.NoError(t, err)
		seen[v] = true
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, 0, p.Len())

	_, err := p.Draw()
	assert.ErrorIs(t, err, ErrProviderExhausted)
}

func TestDrawRefillsFromDiscard(t *testing.T) {
	p := NewPool([]string{"a", "b"}, seeded())

	// Every drawn item goes straight to the discard pile, so draws never fail.
	const draws = 50
	for i := 0; i < draws; i++ {
		v, err := p.Draw()
		require.NoError(t, err, "draw %d", i)
		p.Discard(v)
	}
	assert.Greater(t, p.Reshuffles, 0)
	assert.Equal(t, 2, p.Len()+p.DiscardLen())
}

func TestDrawNeverFailsWhileSupplyCoversDemand(t *testing.T) {
	initial := []int{1, 2, 3, 4, 5}
	p := NewPool(initial, seeded())

	// Discard only every other draw; total supply = 5 + discarded.
	discarded := 0
	for n := 1; n <= 9; n++ {
		v, err := p.Draw()
		require.NoError(t, err, "draw %d (supply %d)", n, len(initial)+discarded)
		if n%2 == 0 {
			p.Discard(v)
			discarded++
		}
	}
}

func TestKeepTopLeavesTheFaceUpDiscard(t *testing.T) {
	p := NewPool([]int{1, 2, 3}, seeded())
	p.KeepTop = true

	for i := 0; i < 3; i++ {
		v, err := p.Draw()
		require.NoError(t, err)
		p.Discard(v)
	}
	top, ok := p.TopDiscard()
	require.True(t, ok)

	for i := 0; i < 2; i++ {
		v, err := p.Draw()
		require.NoError(t, err)
		assert.NotEqual(t, top, v, "the face-up discard was drawn")
	}
	assert.Equal(t, 1, p.Reshuffles)
	assert.Equal(t, 1, p.DiscardLen())
	got, _ := p.TopDiscard()
	assert.Equal(t, top, got)

	_, err := p.Draw()
	assert.ErrorIs(t, err, ErrProviderExhausted)
	assert.Equal(t, 1, p.DiscardLen())
}

func TestDrawNReturnsPartialOnExhaustion(t *testing.T) {
	p := NewPool([]int{7, 8}, seeded())
	got, err := p.DrawN(3)
	assert.ErrorIs(t, err, ErrProviderExhausted)
	assert.Len(t, got, 2)
}

func TestTopDiscardAndPeek(t *testing.T) {
	p := NewPool([]int{1, 2, 3}, seeded())

	_, ok := p.TopDiscard()
	assert.False(t, ok)

	next, ok := p.Peek()
	require.True(t, ok)
	drawn, err := p.Draw()
	require.NoError(t, err)
	assert.Equal(t, next, drawn)

	p.Discard(10, 11)
	top, ok := p.TopDiscard()
	require.True(t, ok)
	assert.Equal(t, 11, top)
}

func TestShuffleIsUniform(t *testing.T) {
	// Each of the 3! orderings of a three item pool should show up roughly 1/6 of the time.
	rng := seeded()
	counts := map[[3]int]int{}
	const trials = 60000
	for i := 0; i < trials; i++ {
		p := NewPool([]int{0, 1, 2}, rng)
		p.Shuffle()
		var key [3]int
		copy(key[:], p.draw)
		counts[key]++
	}
	require.Len(t, counts, 6)
	expected := trials / 6
	for perm, c := range counts {
		assert.InDelta(t, expected, c, float64(expected)*0.05, "permutation %v", perm)
	}
}

func TestNewPoolCopiesInput(t *testing.T) {
	items := []int{1, 2, 3}
	p := NewPool(items, seeded())
	p.Shuffle()
	assert.Equal(t, []int{1, 2, 3}, items)
}

func TestReturnGoesToTheBottom(t *testing.T) {
	p := NewPool([]int{1, 2}, seeded())
	p.Return(9)
	assert.Equal(t, 3, p.Len())

	got, err := p.DrawN(3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 9}, got)
}
