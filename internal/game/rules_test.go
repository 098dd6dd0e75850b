package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func roster(scores ...int) []*Player {
	out := make([]*Player, len(scores))
	for i, s := range scores {
		out[i] = &Player{ID: string(rune('A' + i)), Score: s}
	}
	return out
}

func TestTablePeekFollowsDirection(t *testing.T) {
	tbl := &Table{Roster: roster(0, 0, 0), Turn: 0, Direction: 1}
	assert.Equal(t, "A", tbl.Current().ID)
	assert.Equal(t, "B", tbl.Peek(1).ID)

	tbl.Direction = -1
	assert.Equal(t, "C", tbl.Peek(1).ID)
	assert.Equal(t, "B", tbl.Peek(2).ID)
	assert.Nil(t, (&Table{}).Current())
}

func TestScoreboard(t *testing.T) {
	assert.Equal(t, "Scores:\n1. <@B>: 3\n2. <@A>: 1\n3. <@C>: 1", Scoreboard(roster(1, 3, 1)))
}

func TestLeader(t *testing.T) {
	assert.Equal(t, "B", Leader(roster(1, 3, 1)))
	assert.Equal(t, "", Leader(roster(2, 2, 1)), "shared top score")
	assert.Equal(t, "", Leader(roster(0, 0)), "nobody scored")
	assert.Equal(t, "", Leader(nil))
}
