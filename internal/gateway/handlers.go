// Package gateway is the HTTP transport adapter: REST endpoints for session
// actions and an SSE stream per player for event delivery. It is fully
// independent of the websocket transport; both observe the same per-session
// event order because ordering is owned by the session core.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"cardtable/internal/game"
	"cardtable/internal/session"
)

var ssePingInterval = 15 * time.Second

type Gateway struct {
	manager *session.Manager
	bufCap  int

	mu      sync.Mutex
	streams map[string]*stream
}

func New(manager *session.Manager, bufCap int) *Gateway {
	g := &Gateway{
		manager: manager,
		bufCap:  bufCap,
		streams: map[string]*stream{},
	}
	// streams live outside the session registry, so teardown of a reaped
	// session has to release them explicitly
	manager.OnSessionReaped(g.dropSessionStreams)
	return g
}

// Routes mounts under /api.
func (g *Gateway) Routes(r chi.Router) {
	r.Post("/sessions", g.handleCreate)
	r.Get("/sessions/{session_id}/state", g.handleState)
	r.Post("/sessions/{session_id}/players", g.handleJoin)
	r.Post("/sessions/{session_id}/players/{nickname}/ready", g.handleReady)
	r.Post("/sessions/{session_id}/players/{nickname}/actions", g.handleAction)
	r.Post("/sessions/{session_id}/players/{nickname}/heartbeat", g.handleHeartbeat)
	r.Delete("/sessions/{session_id}/players/{nickname}", g.handleLeave)
	r.Get("/sessions/{session_id}/players/{nickname}/events", g.handleEvents)
}

type createRequest struct {
	Nickname string `json:"nickname"`
	Capacity int    `json:"capacity"`
}

type joinRequest struct {
	Nickname string `json:"nickname"`
}

type sessionResponse struct {
	SessionID int              `json:"session_id"`
	StreamURL string           `json:"stream_url"`
	Snapshot  session.Snapshot `json:"snapshot"`
}

type actionRequest struct {
	Type     string `json:"type"`
	Card     int    `json:"card"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	FromDeck bool   `json:"from_deck"`
	Pile     int    `json:"pile"`
}

func (g *Gateway) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Nickname == "" {
		writeErr(w, http.StatusBadRequest, "invalid_request")
		return
	}
	st := newStream(g.bufCap)
	sess, err := g.manager.Create(req.Capacity, req.Nickname, st)
	if err != nil {
		writeSessionErr(w, err)
		return
	}
	g.putStream(sess.ID(), req.Nickname, st)
	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID: sess.ID(),
		StreamURL: eventsURL(sess.ID(), req.Nickname),
		Snapshot:  sess.Snapshot(),
	})
}

func (g *Gateway) handleJoin(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		writeErr(w, http.StatusNotFound, "session_not_found")
		return
	}
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Nickname == "" {
		writeErr(w, http.StatusBadRequest, "invalid_request")
		return
	}
	st := newStream(g.bufCap)
	sess, err := g.manager.Join(id, req.Nickname, st)
	if err != nil {
		writeSessionErr(w, err)
		return
	}
	// a rejoin replaces the subscription; the superseded listener is
	// detached right away instead of lingering until a delivery fails
	if old := g.putStream(id, req.Nickname, st); old != nil {
		sess.DropListener(old.ID())
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID: sess.ID(),
		StreamURL: eventsURL(id, req.Nickname),
		Snapshot:  sess.Snapshot(),
	})
}

func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	sess, nickname, ok := g.sessionPlayer(w, r)
	if !ok {
		return
	}
	if err := sess.SetReady(nickname); err != nil {
		writeSessionErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (g *Gateway) handleAction(w http.ResponseWriter, r *http.Request) {
	sess, nickname, ok := g.sessionPlayer(w, r)
	if !ok {
		return
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request")
		return
	}
	switch req.Type {
	case "place":
		points, err := sess.PlaceCard(nickname, req.Card, req.Row, req.Col)
		if err != nil {
			writeSessionErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "points": points})
	case "draw":
		if err := sess.DrawCard(nickname, req.FromDeck, req.Pile); err != nil {
			writeSessionErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeErr(w, http.StatusBadRequest, "invalid_action")
	}
}

func (g *Gateway) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		writeErr(w, http.StatusNotFound, "session_not_found")
		return
	}
	// beats for unknown players are deliberately ignored
	g.manager.Heartbeat(id, chi.URLParam(r, "nickname"))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (g *Gateway) handleLeave(w http.ResponseWriter, r *http.Request) {
	sess, nickname, ok := g.sessionPlayer(w, r)
	if !ok {
		return
	}
	g.manager.DropHeartbeat(sess.ID(), nickname)
	if err := sess.Leave(nickname); err != nil {
		writeSessionErr(w, err)
		return
	}
	g.dropStream(sess.ID(), nickname)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (g *Gateway) handleState(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		writeErr(w, http.StatusNotFound, "session_not_found")
		return
	}
	sess, err := g.manager.Get(id)
	if err != nil {
		writeSessionErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (g *Gateway) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(r)
	if !ok {
		writeErr(w, http.StatusNotFound, "session_not_found")
		return
	}
	nickname := chi.URLParam(r, "nickname")
	st := g.getStream(id, nickname)
	if st == nil {
		writeErr(w, http.StatusNotFound, "stream_not_found")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "stream_not_supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastSeq, _ := strconv.ParseInt(r.Header.Get("Last-Event-ID"), 10, 64)
	for _, ev := range st.buf.ReplayAfter(lastSeq) {
		if err := writeSSE(w, ev); err != nil {
			return
		}
	}
	flusher.Flush()

	ch := st.buf.Subscribe()
	defer st.buf.Unsubscribe(ch)
	ticker := time.NewTicker(ssePingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
			if ev.Kind == session.EventSessionEnded {
				return
			}
		case <-ticker.C:
			if err := writeSSEPing(w); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (g *Gateway) sessionPlayer(w http.ResponseWriter, r *http.Request) (*session.Session, string, bool) {
	id, ok := sessionID(r)
	if !ok {
		writeErr(w, http.StatusNotFound, "session_not_found")
		return nil, "", false
	}
	sess, err := g.manager.Get(id)
	if err != nil {
		writeSessionErr(w, err)
		return nil, "", false
	}
	nickname := chi.URLParam(r, "nickname")
	if nickname == "" {
		writeErr(w, http.StatusBadRequest, "invalid_request")
		return nil, "", false
	}
	return sess, nickname, true
}

// putStream installs a player's stream and returns the one it replaced, if
// any, already closed.
func (g *Gateway) putStream(id int, nickname string, st *stream) *stream {
	key := streamKey(id, nickname)
	g.mu.Lock()
	old := g.streams[key]
	g.streams[key] = st
	g.mu.Unlock()
	if old != nil {
		old.buf.Close()
	}
	return old
}

func (g *Gateway) getStream(id int, nickname string) *stream {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.streams[streamKey(id, nickname)]
}

func (g *Gateway) dropStream(id int, nickname string) {
	key := streamKey(id, nickname)
	g.mu.Lock()
	st := g.streams[key]
	delete(g.streams, key)
	g.mu.Unlock()
	if st != nil {
		st.buf.Close()
	}
}

// dropSessionStreams releases every stream of a torn-down session, however
// it ended: match completion, grace expiry, everyone gone. Leaving relies on
// dropStream, this catches the rest.
func (g *Gateway) dropSessionStreams(id int) {
	prefix := strconv.Itoa(id) + "/"
	g.mu.Lock()
	var dropped []*stream
	for key, st := range g.streams {
		if strings.HasPrefix(key, prefix) {
			dropped = append(dropped, st)
			delete(g.streams, key)
		}
	}
	g.mu.Unlock()
	for _, st := range dropped {
		st.buf.Close()
	}
}

func streamKey(id int, nickname string) string {
	return strconv.Itoa(id) + "/" + nickname
}

func eventsURL(id int, nickname string) string {
	return "/api/sessions/" + strconv.Itoa(id) + "/players/" + nickname + "/events"
}

func sessionID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "session_id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeSessionErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeErr(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrSessionFull),
		errors.Is(err, session.ErrNicknameTaken),
		errors.Is(err, session.ErrAlreadyConnected),
		errors.Is(err, session.ErrNotYourTurn),
		errors.Is(err, session.ErrWrongPhase),
		errors.Is(err, session.ErrSessionEnded):
		writeErr(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrInvalidCard),
		errors.Is(err, game.ErrCellOccupied),
		errors.Is(err, game.ErrCellDetached),
		errors.Is(err, game.ErrOutOfBounds),
		errors.Is(err, game.ErrDeckEmpty),
		errors.Is(err, game.ErrPileEmpty),
		errors.Is(err, game.ErrHandFull):
		writeErr(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeErr(w, http.StatusBadRequest, err.Error())
	}
}
