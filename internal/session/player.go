package session

// Player is one roster entry. The nickname is the sole identity key for the
// session's whole lifetime: a join with the nickname of a disconnected
// member is a reconnection, never a new player.
//
// departed marks a player who left for good while the match was running.
// The struct stays in the slice so seat indices in the fixed rotation keep
// their meaning; the seat just counts as permanently offline and the
// nickname can never be claimed again.
type Player struct {
	Nickname  string
	Connected bool
	Ready     bool
	Score     int
	departed  bool
}

func (p *Player) view() PlayerView {
	return PlayerView{
		Nickname:  p.Nickname,
		Connected: p.Connected,
		Ready:     p.Ready,
		Score:     p.Score,
	}
}
