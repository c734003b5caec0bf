// internal/puzzle/backtrack.go
package puzzle

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

type grid [9][9]uint8

// BacktrackGenerator fills a random complete grid, then removes clues in a
// random order while the puzzle keeps a unique solution.
type BacktrackGenerator struct {
	// Budget caps clue carving; the puzzle keeps whatever clues remain.
	Budget time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewBacktrackGenerator seeds a generator. Calls are serialized on the
// shared random source.
func NewBacktrackGenerator(seed int64) *BacktrackGenerator {
	return &BacktrackGenerator{
		Budget: 900 * time.Millisecond,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func targetGivens(difficulty string) int {
	switch difficulty {
	case Easy:
		return 40
	case Medium:
		return 34
	case Hard:
		return 28
	default:
		return 24
	}
}

func (g *BacktrackGenerator) Generate(ctx context.Context, difficulty string) (Pair, error) {
	if !ValidDifficulty(difficulty) {
		return Pair{}, fmt.Errorf("unknown difficulty %q", difficulty)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	var full grid
	if !g.fill(ctx, &full) {
		if err := ctx.Err(); err != nil {
			return Pair{}, err
		}
		return Pair{}, fmt.Errorf("could not fill grid")
	}

	puz := full
	positions := g.rng.Perm(81)
	target := targetGivens(difficulty)
	deadline := time.Now().Add(g.Budget)
	givens := 81

	for _, pos := range positions {
		if givens <= target || time.Now().After(deadline) || ctx.Err() != nil {
			break
		}
		r, c := pos/9, pos%9
		old := puz[r][c]
		puz[r][c] = 0
		if countSolutions(ctx, puz, 2) != 1 {
			puz[r][c] = old
			continue
		}
		givens--
	}

	return Pair{Puzzle: encode(&puz, '-'), Solution: encode(&full, '-')}, nil
}

func (g *BacktrackGenerator) fill(ctx context.Context, b *grid) bool {
	var dfs func(int) bool
	dfs = func(i int) bool {
		if ctx.Err() != nil {
			return false
		}
		if i == 81 {
			return true
		}
		r, c := i/9, i%9
		for _, v := range g.rng.Perm(9) {
			n := uint8(v + 1)
			if allowed(b, r, c, n) {
				b[r][c] = n
				if dfs(i + 1) {
					return true
				}
				b[r][c] = 0
			}
		}
		return false
	}
	return dfs(0)
}

// countSolutions counts completions of b, stopping at limit.
func countSolutions(ctx context.Context, b grid, limit int) int {
	count := 0
	var dfs func() bool
	dfs = func() bool {
		if ctx.Err() != nil || count >= limit {
			return true
		}
		r, c, ok := findEmpty(&b)
		if !ok {
			count++
			return count >= limit
		}
		for v := uint8(1); v <= 9; v++ {
			if allowed(&b, r, c, v) {
				b[r][c] = v
				if dfs() {
					return true
				}
				b[r][c] = 0
			}
		}
		return false
	}
	dfs()
	return count
}

func allowed(b *grid, r, c int, v uint8) bool {
	for i := 0; i < 9; i++ {
		if b[r][i] == v || b[i][c] == v {
			return false
		}
	}
	br, bc := (r/3)*3, (c/3)*3
	for dr := 0; dr < 3; dr++ {
		for dc := 0; dc < 3; dc++ {
			if b[br+dr][bc+dc] == v {
				return false
			}
		}
	}
	return true
}

func findEmpty(b *grid) (int, int, bool) {
	for r := 0; r < 9; r++ {
		for c := 0; c < 9; c++ {
			if b[r][c] == 0 {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

// encode writes the grid row-major using blank for empty cells.
func encode(b *grid, blank byte) string {
	out := make([]byte, 81)
	for i := range out {
		v := b[i/9][i%9]
		if v == 0 {
			out[i] = blank
		} else {
			out[i] = '0' + v
		}
	}
	return string(out)
}
