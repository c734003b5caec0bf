// Package puzzle adapts an external sudoku generator to the 81-cell string
// format the game uses, with a degraded blank-grid fallback.
package puzzle

import (
	"context"
	"fmt"
	"strings"

	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/sirupsen/logrus"
)

// Difficulty labels accepted by generators.
const (
	Easy   = "easy"
	Medium = "medium"
	Hard   = "hard"
	Expert = "expert"
)

var difficulties = map[string]bool{Easy: true, Medium: true, Hard: true, Expert: true}

// ValidDifficulty reports whether d is a known difficulty label.
func ValidDifficulty(d string) bool {
	return difficulties[d]
}

// Pair is a puzzle and its solution, both 81 characters.
type Pair struct {
	Puzzle   string
	Solution string
}

// Generator produces a puzzle/solution pair for a difficulty label. Blank
// cells may use any marker; Source normalizes them.
type Generator interface {
	Generate(ctx context.Context, difficulty string) (Pair, error)
}

// Blank returns the all-blank pair used when generation fails.
func Blank() Pair {
	b := strings.Repeat(string(models.Blank), models.BoardSize)
	return Pair{Puzzle: b, Solution: b}
}

// Normalize maps foreign blank markers to '.' and checks length and
// alphabet. Both '-' and zero-filled grids ('0') are accepted.
func Normalize(p Pair) (Pair, error) {
	puz := strings.Map(func(r rune) rune {
		if r == '-' || r == '0' {
			return models.Blank
		}
		return r
	}, p.Puzzle)

	if len(puz) != models.BoardSize {
		return Pair{}, fmt.Errorf("puzzle has %d cells, want %d", len(puz), models.BoardSize)
	}
	if len(p.Solution) != models.BoardSize {
		return Pair{}, fmt.Errorf("solution has %d cells, want %d", len(p.Solution), models.BoardSize)
	}
	for i := 0; i < models.BoardSize; i++ {
		c, s := puz[i], p.Solution[i]
		if s < '1' || s > '9' {
			return Pair{}, fmt.Errorf("solution cell %d is %q", i, s)
		}
		if c != models.Blank && c != s {
			return Pair{}, fmt.Errorf("puzzle cell %d (%q) disagrees with solution (%q)", i, c, s)
		}
	}
	return Pair{Puzzle: puz, Solution: p.Solution}, nil
}

// Source wraps a Generator with normalization and the blank fallback.
type Source struct {
	Gen    Generator
	Logger *logrus.Logger
}

// NewSource returns a Source over gen.
func NewSource(gen Generator, logger *logrus.Logger) *Source {
	return &Source{Gen: gen, Logger: logger}
}

// Fetch never fails: on any generator error or malformed output it logs a
// warning and returns Blank() with degraded set.
func (s *Source) Fetch(ctx context.Context, difficulty string) (Pair, bool) {
	p, err := s.Gen.Generate(ctx, difficulty)
	if err == nil {
		p, err = Normalize(p)
	}
	if err != nil {
		if s.Logger != nil {
			s.Logger.WithFields(logrus.Fields{
				"difficulty": difficulty,
				"error":      err,
			}).Warn("puzzle generation failed, falling back to blank board")
		}
		return Blank(), true
	}
	return p, false
}
