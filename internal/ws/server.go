// Package ws is the websocket transport adapter: it decodes client requests
// into calls on the session facade and pushes every session event back over
// the socket. It never interprets events; the session core owns ordering
// and failure semantics.
package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"cardtable/internal/session"
)

var (
	errClientClosed = errors.New("client_closed")
	errSendFull     = errors.New("send_buffer_full")
)

type Server struct {
	manager    *session.Manager
	upgrader   websocket.Upgrader
	sendBuffer int
}

func NewServer(manager *session.Manager, sendBuffer int) *Server {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &Server{
		manager:    manager,
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		sendBuffer: sendBuffer,
	}
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{
		id:   session.NewListenerID(),
		conn: conn,
		send: make(chan []byte, s.sendBuffer),
		srv:  s,
	}
	go c.writeLoop()
	c.readLoop()
}

// client is one websocket connection. It doubles as the session.Listener
// for the player it joined as: Deliver never blocks, a full or closed send
// buffer is a delivery failure and the session core treats it as a lost
// connection.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	srv  *Server

	mu     sync.Mutex
	closed bool

	sessionID int
	nickname  string
	joined    bool
}

func (c *client) ID() string { return c.id }

func (c *client) Deliver(ev session.Event) error {
	msg, err := json.Marshal(eventMessage{Type: "event", Event: ev})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClientClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return errSendFull
	}
}

func (c *client) enqueue(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *client) writeLoop() {
	for msg := range c.send {
		_ = c.conn.WriteMessage(websocket.TextMessage, msg)
	}
}

func (c *client) readLoop() {
	defer func() {
		c.unregister()
		c.close()
		_ = c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "create":
			c.handleCreate(msg)
		case "join":
			c.handleJoin(msg)
		case "ready":
			c.handleReady()
		case "place":
			c.handlePlace(msg)
		case "draw":
			c.handleDraw(msg)
		case "leave":
			c.handleLeave()
		case "ping":
			if c.joined {
				c.srv.manager.Heartbeat(c.sessionID, c.nickname)
			}
		}
	}
}

// unregister handles abrupt connection loss: the session learns about it
// the same way a heartbeat timeout would teach it.
func (c *client) unregister() {
	if !c.joined {
		return
	}
	sess, err := c.srv.manager.Get(c.sessionID)
	if err != nil {
		return
	}
	c.srv.manager.DropHeartbeat(c.sessionID, c.nickname)
	if err := sess.MarkDisconnected(c.nickname); err != nil && !errors.Is(err, session.ErrUnknownPlayer) {
		log.Warn().Err(err).Int("session_id", c.sessionID).Str("player", c.nickname).Msg("disconnect on socket close failed")
	}
}

func (c *client) handleCreate(msg clientMessage) {
	if c.joined || msg.Nickname == "" {
		c.sendResult("create", errors.New("invalid_request"), 0, nil)
		return
	}
	sess, err := c.srv.manager.Create(msg.Capacity, msg.Nickname, c)
	if err != nil {
		c.sendResult("create", err, 0, nil)
		return
	}
	c.sessionID = sess.ID()
	c.nickname = msg.Nickname
	c.joined = true
	snap := sess.Snapshot()
	c.sendResult("create", nil, sess.ID(), &snap)
}

func (c *client) handleJoin(msg clientMessage) {
	if c.joined || msg.Nickname == "" {
		c.sendResult("join", errors.New("invalid_request"), 0, nil)
		return
	}
	sess, err := c.srv.manager.Join(msg.SessionID, msg.Nickname, c)
	if err != nil {
		c.sendResult("join", err, 0, nil)
		return
	}
	c.sessionID = sess.ID()
	c.nickname = msg.Nickname
	c.joined = true
	snap := sess.Snapshot()
	c.sendResult("join", nil, sess.ID(), &snap)
}

func (c *client) handleReady() {
	sess, err := c.sessionOrErr("ready")
	if err != nil {
		return
	}
	c.sendResult("ready", sess.SetReady(c.nickname), c.sessionID, nil)
}

func (c *client) handlePlace(msg clientMessage) {
	sess, err := c.sessionOrErr("place")
	if err != nil {
		return
	}
	points, err := sess.PlaceCard(c.nickname, msg.Card, msg.Row, msg.Col)
	if err != nil {
		c.sendResult("place", err, c.sessionID, nil)
		return
	}
	out, _ := json.Marshal(resultMessage{Type: "result", Op: "place", Ok: true, SessionID: c.sessionID, Points: &points})
	c.enqueue(out)
}

func (c *client) handleDraw(msg clientMessage) {
	sess, err := c.sessionOrErr("draw")
	if err != nil {
		return
	}
	c.sendResult("draw", sess.DrawCard(c.nickname, msg.FromDeck, msg.Pile), c.sessionID, nil)
}

func (c *client) handleLeave() {
	sess, err := c.sessionOrErr("leave")
	if err != nil {
		return
	}
	c.srv.manager.DropHeartbeat(c.sessionID, c.nickname)
	err = sess.Leave(c.nickname)
	c.joined = false
	c.nickname = ""
	c.sessionID = 0
	c.sendResult("leave", err, 0, nil)
}

func (c *client) sessionOrErr(op string) (*session.Session, error) {
	if !c.joined {
		err := errors.New("not_joined")
		c.sendResult(op, err, 0, nil)
		return nil, err
	}
	sess, err := c.srv.manager.Get(c.sessionID)
	if err != nil {
		c.sendResult(op, err, 0, nil)
		return nil, err
	}
	return sess, nil
}

func (c *client) sendResult(op string, err error, sessionID int, snap *session.Snapshot) {
	res := resultMessage{Type: "result", Op: op, Ok: err == nil, SessionID: sessionID, Snapshot: snap}
	if err != nil {
		res.Error = err.Error()
	}
	msg, merr := json.Marshal(res)
	if merr != nil {
		return
	}
	c.enqueue(msg)
}
