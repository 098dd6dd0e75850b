// internal/games/mathquiz/problem.go
package mathquiz

import (
	"fmt"
	"math/rand"
)

type Op string

const (
	Add      Op = "+"
	Subtract Op = "-"
	Multiply Op = "*"
)

var ops = []Op{Add, Subtract, Multiply}

// Problem is one arithmetic question.
type Problem struct {
	A  int
	B  int
	Op Op
}

func (p Problem) Answer() int {
	switch p.Op {
	case Subtract:
		return p.A - p.B
	case Multiply:
		return p.A * p.B
	}
	return p.A + p.B
}

func (p Problem) String() string {
	return fmt.Sprintf("%d %s %d", p.A, p.Op, p.B)
}

// Generate returns n random problems. Sums and differences use operands up to 100, products
// up to 12; differences never go negative.
func Generate(n int, rng *rand.Rand) []Problem {
	out := make([]Problem, 0, n)
	for i := 0; i < n; i++ {
		op := ops[rng.Intn(len(ops))]
		limit := 100
		if op == Multiply {
			limit = 12
		}
		p := Problem{A: rng.Intn(limit) + 1, B: rng.Intn(limit) + 1, Op: op}
		if op == Subtract && p.B > p.A {
			p.A, p.B = p.B, p.A
		}
		out = append(out, p)
	}
	return out
}
