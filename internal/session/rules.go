package session

// Rules is the board/scoring collaborator contract. The session facade calls
// it inside the session critical section and treats any returned error as
// "reject this action and ask the acting player to choose again", without
// advancing the turn.
type Rules interface {
	// ApplyPlacement places the player's chosen card and returns the points
	// it scored.
	ApplyPlacement(nickname string, card, row, col int) (int, error)
	// ApplyDraw gives the player a replacement card from the deck or from a
	// face-up pile.
	ApplyDraw(nickname string, fromDeck bool, pile int) error
	// ReachedEndThreshold reports whether any player crossed the score that
	// triggers the final round.
	ReachedEndThreshold() bool
	// FinalScores computes the final ranking, best first.
	FinalScores(nicknames []string) []Score
}

type Score struct {
	Nickname string `json:"nickname"`
	Points   int    `json:"points"`
}
