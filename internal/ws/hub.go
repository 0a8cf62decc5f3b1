package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

var (
	ErrShuttingDown = errors.New("server is shutting down")
	ErrSlowClient   = errors.New("send buffer full")
)

var nextID atomic.Uint64

// Connection is one websocket client. Only StartWrite writes data frames to
// the socket; everything else queues through Enqueue.
type Connection struct {
	Conn *websocket.Conn
	ID   uint64

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewConnection(conn *websocket.Conn) *Connection {
	return &Connection{
		Conn: conn,
		ID:   nextID.Add(1),
		send: make(chan []byte, sendBuffer),
	}
}

// Enqueue marshals frame and queues it. A client whose buffer is full is
// too slow to keep: it is dropped and ErrSlowClient is returned.
func (c *Connection) Enqueue(frame interface{}) error {
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	select {
	case c.send <- b:
		return nil
	default:
		c.closeLocked()
		_ = c.Conn.Close()
		return ErrSlowClient
	}
}

// Close stops the write pump once queued frames are flushed.
func (c *Connection) Close() {
	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()
}

func (c *Connection) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// PrepareRead arms the read deadline that the pong handler keeps pushing
// forward.
func (c *Connection) PrepareRead(limit int64) {
	c.Conn.SetReadLimit(limit)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// StartWrite writes queued frames and keepalive pings until Close.
func (c *Connection) StartWrite(log logrus.FieldLogger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.WithError(err).WithField("conn", c.ID).Debug("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Registry tracks the open chat connections so shutdown can end them all.
// A connection counts as open from Register until its handler calls
// Unregister.
type Registry struct {
	mu     sync.Mutex
	conns  map[*Connection]struct{}
	closed bool
	active sync.WaitGroup
	log    logrus.FieldLogger
}

func NewRegistry(log logrus.FieldLogger) *Registry {
	return &Registry{conns: make(map[*Connection]struct{}), log: log}
}

func (r *Registry) Register(c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrShuttingDown
	}
	r.conns[c] = struct{}{}
	r.active.Add(1)
	r.log.WithFields(logrus.Fields{"conn": c.ID, "open": len(r.conns)}).Info("chat session opened")
	return nil
}

func (r *Registry) Unregister(c *Connection) {
	r.mu.Lock()
	if _, ok := r.conns[c]; ok {
		delete(r.conns, c)
		r.log.WithFields(logrus.Fields{"conn": c.ID, "open": len(r.conns)}).Info("chat session closed")
		r.active.Done()
	}
	r.mu.Unlock()
	c.Close()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Wait blocks until every registered connection has been unregistered or
// ctx is done. Call it after CloseAll.
func (r *Registry) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseAll refuses new connections and closes the open ones. Their read
// loops fail, and each handler unmounts its session on the way out.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.closed = true
	conns := make([]*Connection, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range conns {
		_ = c.Conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.Conn.Close()
	}
}
