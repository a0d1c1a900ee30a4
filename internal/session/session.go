package session

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	MinCapacity = 2
	MaxCapacity = 4
)

// Session is one forming or running match. Every mutating operation runs
// under the session's own lock, including the synchronous broadcast that
// follows it, so all listeners observe the identical event order. Sessions
// are independent of each other; there is no cross-session locking.
type Session struct {
	mu sync.Mutex

	id       int
	capacity int
	status   Status

	// players is append-only once the match starts: a player who leaves
	// mid-match is marked departed instead of being removed, so the indices
	// referenced by seatOrder stay valid.
	players []*Player

	// seatOrder is the fixed rotation chosen at start: a permutation of
	// player indices, never reshuffled. currentSeat indexes into it and is
	// -1 whenever the status is not Active/FinalRound.
	seatOrder   []int
	currentSeat int

	rules      Rules
	dispatcher *Dispatcher

	grace         time.Duration
	graceDeadline time.Time

	startedAt time.Time
	endedAt   time.Time
	ranking   []Score

	rng *rand.Rand
}

func New(id, capacity int, grace time.Duration, rules Rules) *Session {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	if capacity > MaxCapacity {
		capacity = MaxCapacity
	}
	return &Session{
		id:          id,
		capacity:    capacity,
		status:      StatusForming,
		currentSeat: -1,
		rules:       rules,
		dispatcher:  NewDispatcher(id),
		grace:       grace,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Session) ID() int { return s.id }

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Ended() bool {
	return s.Status() == StatusEnded
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// CurrentPlayer returns the nickname at the current seat, if turns are
// being taken.
func (s *Session) CurrentPlayer() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.currentPlayerLocked()
	if p == nil {
		return "", false
	}
	return p.Nickname, true
}

// HasPlayer reports whether nickname is a live roster member (departed
// players do not count).
func (s *Session) HasPlayer(nickname string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.playerLocked(nickname)
	return p != nil
}

func (s *Session) Ranking() []Score {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Score, len(s.ranking))
	copy(out, s.ranking)
	return out
}

// Join adds a new player or, when the nickname belongs to a disconnected
// roster member, routes to reconnection. Nickname is the sole identity key,
// so the ambiguity is resolved by connection-state inspection here rather
// than by a separate reconnect command on the wire.
func (s *Session) Join(nickname string, lis Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusEnded {
		return ErrSessionEnded
	}
	if p := s.playerLocked(nickname); p != nil {
		if p.Connected {
			return ErrNicknameTaken
		}
		return s.reconnectLocked(p, lis)
	}
	if s.anyPlayerLocked(nickname) != nil {
		// nickname was used by a player who left for good
		return ErrNicknameTaken
	}
	if s.status != StatusForming {
		return ErrWrongPhase
	}
	if len(s.players) >= s.capacity {
		return ErrSessionFull
	}
	p := &Player{Nickname: nickname, Connected: true}
	s.players = append(s.players, p)
	// broadcast before registering, so the joiner does not receive its own
	// player_joined
	s.broadcastLocked(EventPlayerJoined, map[string]any{"nickname": nickname})
	s.dispatcher.Register(nickname, lis)
	log.Info().Int("session_id", s.id).Str("player", nickname).Int("roster", len(s.players)).Msg("player joined")
	return nil
}

// SetReady marks a player ready and starts the match if everyone is. Start
// is a pure function of state: every ready event retries it, no counters.
func (s *Session) SetReady(nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusForming {
		if s.status == StatusEnded {
			return ErrSessionEnded
		}
		return ErrWrongPhase
	}
	p := s.playerLocked(nickname)
	if p == nil {
		return ErrUnknownPlayer
	}
	p.Ready = true
	s.broadcastLocked(EventPlayerReady, map[string]any{"nickname": nickname})
	s.tryStartLocked()
	return nil
}

// Reconnect re-enables a disconnected roster member. Deliberately no turn
// rewind: a turn skipped while the player was offline stays skipped, the
// seat only counts again for future rotations.
func (s *Session) Reconnect(nickname string, lis Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusEnded {
		return ErrSessionEnded
	}
	p := s.playerLocked(nickname)
	if p == nil {
		if s.anyPlayerLocked(nickname) != nil {
			return ErrNicknameTaken
		}
		return ErrUnknownPlayer
	}
	if p.Connected {
		return ErrAlreadyConnected
	}
	return s.reconnectLocked(p, lis)
}

// Leave is a voluntary exit. While forming it frees the seat; mid-match the
// seat stays in the rotation as permanently offline and the nickname cannot
// be claimed again.
func (s *Session) Leave(nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.playerLocked(nickname)
	if p == nil {
		return ErrUnknownPlayer
	}
	s.dispatcher.DeregisterOwner(nickname)
	wasCurrent := s.currentPlayerLocked() == p
	if s.status == StatusForming {
		for i, q := range s.players {
			if q == p {
				s.players = append(s.players[:i], s.players[i+1:]...)
				break
			}
		}
	} else {
		p.departed = true
		p.Connected = false
		p.Ready = false
	}
	s.broadcastLocked(EventPlayerLeft, map[string]any{"nickname": nickname})
	log.Info().Int("session_id", s.id).Str("player", nickname).Msg("player left")
	if s.status.inPlay() {
		if s.connectedCountLocked() < 2 {
			s.endLocked("insufficient_players", nil)
			return nil
		}
		if wasCurrent {
			s.advanceTurnLocked(s.status == StatusFinalRound)
		}
	} else if s.status == StatusForming && s.connectedCountLocked() == 0 {
		s.endLocked("session_abandoned", nil)
	}
	return nil
}

// DropListener detaches a single transport listener without touching the
// owning player's connection state. Used when a transport replaces a
// player's subscription with a fresh one.
func (s *Session) DropListener(listenerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatcher.Deregister(listenerID)
}

// MarkDisconnected flags a player as offline. Used by the liveness monitor
// on heartbeat timeout and by transports on abrupt connection loss; calling
// it for an already offline player is a no-op.
func (s *Session) MarkDisconnected(nickname string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.playerLocked(nickname)
	if p == nil {
		return ErrUnknownPlayer
	}
	if !p.Connected {
		return nil
	}
	s.disconnectLocked(p)
	return nil
}

// PlaceCard applies the acting player's placement through the rules
// collaborator. Rule rejections go back to the acting player alone as an
// invalid_move event; nothing else changes and the turn does not advance.
func (s *Session) PlaceCard(nickname string, card, row, col int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.turnGuardLocked(nickname); err != nil {
		return 0, err
	}
	points, err := s.rules.ApplyPlacement(nickname, card, row, col)
	if err != nil {
		s.deliverToLocked(nickname, EventInvalidMove, map[string]any{"reason": err.Error()})
		return 0, err
	}
	p := s.playerLocked(nickname)
	p.Score += points
	s.broadcastLocked(EventCardPlaced, map[string]any{"nickname": nickname, "card": card, "row": row, "col": col})
	if points != 0 {
		s.broadcastLocked(EventPointsAdded, map[string]any{"nickname": nickname, "points": points, "score": p.Score})
	}
	return points, nil
}

// DrawCard applies the draw that completes the acting player's turn, then
// advances the rotation. At the end of a rotation the rules collaborator is
// consulted for the final-round threshold; at the end of the final rotation
// the match finishes with a ranking.
func (s *Session) DrawCard(nickname string, fromDeck bool, pile int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.turnGuardLocked(nickname); err != nil {
		return err
	}
	if err := s.rules.ApplyDraw(nickname, fromDeck, pile); err != nil {
		s.deliverToLocked(nickname, EventInvalidMove, map[string]any{"reason": err.Error()})
		return err
	}
	s.broadcastLocked(EventCardDrawn, map[string]any{"nickname": nickname, "from_deck": fromDeck, "pile": pile})
	s.completeTurnLocked()
	return nil
}

// SweepGrace is the monitor hook for the advisory grace window: once the
// deadline set when the session dropped to one connected player passes and
// nobody came back, the session ends. Returns true when it ended the
// session.
func (s *Session) SweepGrace(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.inPlay() || s.graceDeadline.IsZero() || now.Before(s.graceDeadline) {
		return false
	}
	if s.connectedCountLocked() <= 1 {
		s.endLocked("grace_period_expired", nil)
		return true
	}
	s.graceDeadline = time.Time{}
	return false
}

// End force-terminates the session. Valid from any state and idempotent.
func (s *Session) End(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLocked(reason, nil)
}

func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

func (s *Session) turnGuardLocked(nickname string) error {
	if !s.status.inPlay() {
		if s.status == StatusEnded {
			return ErrSessionEnded
		}
		return ErrWrongPhase
	}
	p := s.playerLocked(nickname)
	if p == nil {
		return ErrUnknownPlayer
	}
	if s.currentPlayerLocked() != p {
		return ErrNotYourTurn
	}
	return nil
}

func (s *Session) tryStartLocked() bool {
	if s.status != StatusForming || len(s.players) != s.capacity {
		return false
	}
	for _, p := range s.players {
		if !p.Ready {
			return false
		}
	}
	n := len(s.players)
	first := s.rng.Intn(n)
	s.seatOrder = make([]int, n)
	for i := range s.seatOrder {
		s.seatOrder[i] = (first + i) % n
	}
	s.currentSeat = 0
	s.status = StatusActive
	s.startedAt = time.Now()
	firstNick := s.players[s.seatOrder[0]].Nickname
	log.Info().Int("session_id", s.id).Str("first_player", firstNick).Msg("session started")
	s.broadcastLocked(EventSessionStarted, map[string]any{"first_player": firstNick})
	return true
}

func (s *Session) reconnectLocked(p *Player, lis Listener) error {
	p.Connected = true
	s.dispatcher.Register(p.Nickname, lis)
	if s.connectedCountLocked() >= 2 {
		s.graceDeadline = time.Time{}
	}
	s.broadcastLocked(EventPlayerReconnected, map[string]any{"nickname": p.Nickname})
	log.Info().Int("session_id", s.id).Str("player", p.Nickname).Msg("player reconnected")
	return nil
}

func (s *Session) disconnectLocked(p *Player) {
	p.Connected = false
	p.Ready = false
	s.dispatcher.DeregisterOwner(p.Nickname)
	wasCurrent := s.currentPlayerLocked() == p
	s.broadcastLocked(EventPlayerDisconnected, map[string]any{"nickname": p.Nickname})
	log.Info().Int("session_id", s.id).Str("player", p.Nickname).Msg("player disconnected")
	if s.status.inPlay() && wasCurrent {
		s.advanceTurnLocked(s.status == StatusFinalRound)
	}
	switch conn := s.connectedCountLocked(); {
	case conn == 0:
		s.endLocked("all_players_disconnected", nil)
	case conn == 1 && s.status.inPlay():
		s.graceDeadline = time.Now().Add(s.grace)
		s.broadcastLocked(EventGracePeriod, map[string]any{
			"wait_ms":     s.grace.Milliseconds(),
			"deadline_ts": s.graceDeadline.UnixMilli(),
		})
	}
}

// completeTurnLocked runs after a successful draw. The finalRound flag
// passed to the advance is the status at the start of the turn: a rotation
// that just triggered the final round still wraps to the first seat instead
// of ending the match on the spot.
func (s *Session) completeTurnLocked() {
	wasFinal := s.status == StatusFinalRound
	if s.currentSeat == len(s.seatOrder)-1 && !wasFinal && s.rules.ReachedEndThreshold() {
		s.advanceToFinalRoundLocked()
	}
	s.advanceTurnLocked(wasFinal)
}

// advanceToFinalRoundLocked is idempotent and only valid from Active.
func (s *Session) advanceToFinalRoundLocked() {
	if s.status != StatusActive {
		return
	}
	s.status = StatusFinalRound
	log.Info().Int("session_id", s.id).Msg("final round")
	s.broadcastLocked(EventFinalRound, nil)
}

func (s *Session) advanceTurnLocked(finalRound bool) {
	next, over := s.nextSeatLocked(s.currentSeat, finalRound)
	if over {
		s.finishMatchLocked()
		return
	}
	s.currentSeat = next
	p := s.players[s.seatOrder[next]]
	s.broadcastLocked(EventTurnAdvanced, map[string]any{"nickname": p.Nickname, "seat": next})
}

// nextSeatLocked computes the seat after from. While more than one player
// is connected it skips offline seats; with one or none it moves exactly
// one step, so turns resume from a consistent position when players return
// instead of sticking to the sole online seat. over=true signals that the
// rotation crossed the last seat during the final round, which ends the
// match (decided by the caller, not here).
func (s *Session) nextSeatLocked(from int, finalRound bool) (int, bool) {
	n := len(s.seatOrder)
	if finalRound && from == n-1 {
		return -1, true
	}
	next := (from + 1) % n
	if s.connectedCountLocked() <= 1 {
		return next, false
	}
	seat := next
	for i := 0; i < n; i++ {
		if s.players[s.seatOrder[seat]].Connected {
			return seat, false
		}
		if finalRound && seat == n-1 {
			return -1, true
		}
		seat = (seat + 1) % n
		if seat == next {
			break
		}
	}
	// wrapped without finding a connected seat; callers end the session
	// before this matters
	return next, false
}

func (s *Session) finishMatchLocked() {
	var nicks []string
	for _, p := range s.players {
		if !p.departed {
			nicks = append(nicks, p.Nickname)
		}
	}
	s.endLocked("match_complete", s.rules.FinalScores(nicks))
}

func (s *Session) endLocked(reason string, ranking []Score) {
	if s.status == StatusEnded {
		return
	}
	s.status = StatusEnded
	s.currentSeat = -1
	s.endedAt = time.Now()
	s.graceDeadline = time.Time{}
	s.ranking = ranking
	data := map[string]any{"reason": reason}
	if ranking != nil {
		data["ranking"] = ranking
	}
	log.Info().Int("session_id", s.id).Str("reason", reason).Msg("session ended")
	s.broadcastLocked(EventSessionEnded, data)
}

func (s *Session) broadcastLocked(kind Kind, data map[string]any) {
	failed := s.dispatcher.Broadcast(kind, s.snapshotLocked(), data)
	s.dropFailedLocked(failed)
}

func (s *Session) deliverToLocked(nickname string, kind Kind, data map[string]any) {
	failed := s.dispatcher.DeliverTo(nickname, kind, s.snapshotLocked(), data)
	s.dropFailedLocked(failed)
}

// dropFailedLocked converts delivery failures into the regular disconnection
// path. This runs after the dispatch loop for the triggering event has
// finished, so the disconnection broadcast is a subsequent event in the
// sequence, never a reentrant one.
func (s *Session) dropFailedLocked(owners []string) {
	for _, nick := range owners {
		p := s.playerLocked(nick)
		if p == nil || !p.Connected {
			continue
		}
		s.disconnectLocked(p)
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID: s.id,
		Status:    s.status.String(),
		Capacity:  s.capacity,
	}
	for _, p := range s.players {
		if p.departed {
			continue
		}
		snap.Players = append(snap.Players, p.view())
	}
	if cur := s.currentPlayerLocked(); cur != nil {
		snap.Current = cur.Nickname
	}
	return snap
}

func (s *Session) currentPlayerLocked() *Player {
	if !s.status.inPlay() || s.currentSeat < 0 {
		return nil
	}
	return s.players[s.seatOrder[s.currentSeat]]
}

// playerLocked resolves a live (non-departed) roster member.
func (s *Session) playerLocked(nickname string) *Player {
	p := s.anyPlayerLocked(nickname)
	if p == nil || p.departed {
		return nil
	}
	return p
}

func (s *Session) anyPlayerLocked(nickname string) *Player {
	for _, p := range s.players {
		if p.Nickname == nickname {
			return p
		}
	}
	return nil
}

func (s *Session) connectedCountLocked() int {
	n := 0
	for _, p := range s.players {
		if p.Connected && !p.departed {
			n++
		}
	}
	return n
}
