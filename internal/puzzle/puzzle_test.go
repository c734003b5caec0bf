package puzzle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const solved = "534678912672195348198342567859761423426853791713924856961537284287419635345286179"

type stubGenerator struct {
	pair Pair
	err  error
}

func (s stubGenerator) Generate(context.Context, string) (Pair, error) { return s.pair, s.err }

func TestNormalizeConvertsDashes(t *testing.T) {
	raw := "53--7----" + solved[9:]
	p, err := Normalize(Pair{Puzzle: raw, Solution: solved})
	require.NoError(t, err)
	assert.Equal(t, "53..7....", p.Puzzle[:9])
	assert.Equal(t, solved, p.Solution)
}

func TestNormalizeConvertsZeros(t *testing.T) {
	raw := "530070000" + solved[9:]
	p, err := Normalize(Pair{Puzzle: raw, Solution: solved})
	require.NoError(t, err)
	assert.Equal(t, "53..7....", p.Puzzle[:9])
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	_, err := Normalize(Pair{Puzzle: "123", Solution: solved})
	assert.Error(t, err)

	_, err = Normalize(Pair{Puzzle: strings.Repeat(".", 81), Solution: strings.Repeat(".", 81)})
	assert.Error(t, err)

	bad := "6" + solved[1:] // disagrees with solution at cell 0
	_, err = Normalize(Pair{Puzzle: bad, Solution: solved})
	assert.Error(t, err)
}

func TestSourceFallsBackOnFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	src := NewSource(stubGenerator{err: errors.New("generator down")}, logger)

	p, degraded := src.Fetch(context.Background(), Easy)
	assert.True(t, degraded)
	assert.Equal(t, Blank(), p)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestSourcePassesThroughValidPair(t *testing.T) {
	raw := "-" + solved[1:]
	src := NewSource(stubGenerator{pair: Pair{Puzzle: raw, Solution: solved}}, nil)

	p, degraded := src.Fetch(context.Background(), Easy)
	assert.False(t, degraded)
	assert.Equal(t, byte('.'), p.Puzzle[0])
}

func TestBacktrackGeneratorProducesUniquePuzzle(t *testing.T) {
	g := NewBacktrackGenerator(12345)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, d := range []string{Easy, Expert} {
		raw, err := g.Generate(ctx, d)
		require.NoError(t, err, d)

		p, err := Normalize(raw)
		require.NoError(t, err, d)

		givens := 81 - strings.Count(p.Puzzle, ".")
		assert.GreaterOrEqual(t, givens, 17, d)
		assert.Less(t, givens, 81, d)

		var b grid
		for i := 0; i < 81; i++ {
			if c := p.Puzzle[i]; c != '.' {
				b[i/9][i%9] = c - '0'
			}
		}
		assert.Equal(t, 1, countSolutions(ctx, b, 2), d)
	}
}

func TestBacktrackGeneratorRejectsUnknownDifficulty(t *testing.T) {
	_, err := NewBacktrackGenerator(1).Generate(context.Background(), "nightmare")
	assert.Error(t, err)
}
