// Package game is the rules/scoring collaborator behind the session facade:
// per-player placement grids, a shared finite deck with two face-up piles,
// and the score threshold that triggers the final round. It covers the
// contract the session engine consumes; the full card catalog and objective
// arithmetic live outside this module.
package game

import (
	"sort"

	"cardtable/internal/session"
)

const (
	// EndThreshold is the score that triggers the final round once the
	// rotation completes.
	EndThreshold = 20

	handSize  = 3
	deckSize  = 66
	gridLimit = 40
)

type cell struct{ row, col int }

// book is one player's placement grid. The first card anchors the grid at
// the origin; every later card must land on a free cell diagonally adjacent
// to an already placed one.
type book struct {
	placed map[cell]bool
}

func newBook() *book {
	return &book{placed: map[cell]bool{}}
}

func (b *book) place(row, col int) (int, error) {
	if row < -gridLimit || row > gridLimit || col < -gridLimit || col > gridLimit {
		return 0, ErrOutOfBounds
	}
	c := cell{row, col}
	if b.placed[c] {
		return 0, ErrCellOccupied
	}
	if len(b.placed) == 0 {
		if row != 0 || col != 0 {
			return 0, ErrCellDetached
		}
		b.placed[c] = true
		return 0, nil
	}
	neighbors := 0
	for _, d := range [4]cell{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}} {
		if b.placed[cell{row + d.row, col + d.col}] {
			neighbors++
		}
	}
	if neighbors == 0 {
		return 0, ErrCellDetached
	}
	b.placed[c] = true
	return neighbors, nil
}

// Engine implements session.Rules. It is not safe for concurrent use on its
// own: the session facade always calls it inside the session critical
// section, which is the only caller.
type Engine struct {
	deck   int
	piles  [2]int
	books  map[string]*book
	hands  map[string]int
	scores map[string]int
}

func NewEngine() *Engine {
	return &Engine{
		deck:   deckSize,
		piles:  [2]int{2, 2},
		books:  map[string]*book{},
		hands:  map[string]int{},
		scores: map[string]int{},
	}
}

// New is the factory the session manager uses per session.
func New() session.Rules {
	return NewEngine()
}

// ApplyPlacement places one of the player's hand cards on their grid and
// returns the points it scored: one per diagonally adjacent card already
// placed, none for the anchoring first card.
func (e *Engine) ApplyPlacement(nickname string, card, row, col int) (int, error) {
	if card < 0 || card >= handSize {
		return 0, ErrInvalidCard
	}
	if e.hand(nickname) == 0 {
		return 0, ErrInvalidCard
	}
	points, err := e.book(nickname).place(row, col)
	if err != nil {
		return 0, err
	}
	e.hands[nickname]--
	e.scores[nickname] += points
	return points, nil
}

// ApplyDraw refills the player's hand from the deck or one of the face-up
// piles. Taking from a pile replaces it from the deck while cards remain.
func (e *Engine) ApplyDraw(nickname string, fromDeck bool, pile int) error {
	if e.hand(nickname) >= handSize {
		return ErrHandFull
	}
	if fromDeck {
		if e.deck == 0 {
			return ErrDeckEmpty
		}
		e.deck--
	} else {
		if pile < 0 || pile >= len(e.piles) {
			return ErrPileEmpty
		}
		if e.piles[pile] == 0 {
			return ErrPileEmpty
		}
		e.piles[pile]--
		if e.deck > 0 {
			e.deck--
			e.piles[pile]++
		}
	}
	e.hands[nickname]++
	return nil
}

func (e *Engine) ReachedEndThreshold() bool {
	for _, s := range e.scores {
		if s >= EndThreshold {
			return true
		}
	}
	return false
}

// FinalScores ranks players best first: track score plus an end-of-match
// bonus for grid size. Ties keep roster order.
func (e *Engine) FinalScores(nicknames []string) []session.Score {
	out := make([]session.Score, 0, len(nicknames))
	for _, nick := range nicknames {
		total := e.scores[nick]
		if b := e.books[nick]; b != nil {
			total += len(b.placed) / 3
		}
		out = append(out, session.Score{Nickname: nick, Points: total})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Points > out[j].Points })
	return out
}

// Score exposes a player's running track score.
func (e *Engine) Score(nickname string) int { return e.scores[nickname] }

// DeckRemaining reports cards left in the shared deck.
func (e *Engine) DeckRemaining() int { return e.deck }

func (e *Engine) book(nickname string) *book {
	b := e.books[nickname]
	if b == nil {
		b = newBook()
		e.books[nickname] = b
	}
	return b
}

func (e *Engine) hand(nickname string) int {
	if _, ok := e.hands[nickname]; !ok {
		e.hands[nickname] = handSize
	}
	return e.hands[nickname]
}
