// internal/game/turn.go
package game

import (
	"sort"

	"github.com/google/uuid"
	"github.com/jason-s-yu/sudokuduel/internal/models"
)

// JoinOrder returns roster indices ordered by join time. Ties keep roster
// order.
func JoinOrder(players []models.PlayerState) []int {
	order := make([]int, len(players))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return players[order[a]].JoinedAt.Before(players[order[b]].JoinedAt)
	})
	return order
}

// NextPlayer returns the roster index of the player after uid in join order,
// wrapping to the first. It returns -1 if uid is not on the roster.
func NextPlayer(players []models.PlayerState, uid uuid.UUID) int {
	order := JoinOrder(players)
	for pos, i := range order {
		if players[i].UID == uid {
			return order[(pos+1)%len(order)]
		}
	}
	return -1
}

// leader returns the index of the player with the most lives, first in join
// order on ties.
func leader(players []models.PlayerState) int {
	best := -1
	for _, i := range JoinOrder(players) {
		if best < 0 || players[i].Lives > players[best].Lives {
			best = i
		}
	}
	return best
}

// CheckGameOver reports the winner's nickname once the game is over. A winner
// recorded by ApplyMove is authoritative; otherwise any player out of lives
// ends the game and the player with the most lives wins.
func CheckGameOver(room *models.Room) (string, bool) {
	if room == nil || len(room.Players) == 0 {
		return "", false
	}
	if room.Game.HasWinner() {
		return room.Game.WinnerNickname, true
	}
	over := false
	for _, p := range room.Players {
		if p.Lives <= 0 {
			over = true
			break
		}
	}
	if !over {
		return "", false
	}
	return room.Players[leader(room.Players)].Nickname, true
}

// DrawNumber picks the next numeral uniformly from 1-9, independent of
// earlier draws. With SkipExhaustedNumbers it only picks numerals that still
// have a blank target cell, falling back to 1-9 when none do.
func DrawNumber(rules models.Rules, src NumberSource, g *models.GameState) int {
	if rules.SkipExhaustedNumbers {
		if open := openNumbers(g); len(open) > 0 {
			return open[src.Intn(len(open))]
		}
	}
	return src.Intn(9) + 1
}

// openNumbers lists, ascending, the numerals whose solution cells are not all
// on the board yet.
func openNumbers(g *models.GameState) []int {
	var seen [10]bool
	for i := 0; i < len(g.Board) && i < len(g.Solution); i++ {
		if g.Board[i] == models.Blank {
			if s := g.Solution[i]; s >= '1' && s <= '9' {
				seen[s-'0'] = true
			}
		}
	}
	var out []int
	for n := 1; n <= 9; n++ {
		if seen[n] {
			out = append(out, n)
		}
	}
	return out
}

func digit(n int) byte {
	return byte('0' + n)
}

func setCell(board string, pos int, c byte) string {
	b := []byte(board)
	b[pos] = c
	return string(b)
}

func boardComplete(board string) bool {
	for i := 0; i < len(board); i++ {
		if board[i] == models.Blank {
			return false
		}
	}
	return true
}
