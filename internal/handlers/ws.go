package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"securechat/internal/apperr"
	"securechat/internal/chat"
	"securechat/internal/models"
	"securechat/internal/ws"
)

const maxFrameSize = 64 * 1024

// WSMessage is the envelope for every frame a client sends.
type WSMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// SnapshotFrame replaces the client's whole message list. Scroll asks the
// page to bring the newest message into view.
type SnapshotFrame struct {
	Type     string               `json:"type"`
	Messages []models.MessageView `json:"messages"`
	Scroll   bool                 `json:"scroll"`
}

type noticeFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// WSHandler serves GET /ws: one mounted chat session per connection.
type WSHandler struct {
	Chat     *chat.Service
	Registry *ws.Registry
	Log      logrus.FieldLogger
	Upgrader websocket.Upgrader
}

func NewWSHandler(svc *chat.Service, registry *ws.Registry, allowedOrigins []string, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		Chat:     svc,
		Registry: registry,
		Log:      log,
		Upgrader: websocket.Upgrader{CheckOrigin: checkOrigin(allowedOrigins)},
	}
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	if lo.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || lo.Contains(allowed, origin)
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client
		h.Log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	c := ws.NewConnection(conn)
	if err := h.Registry.Register(c); err != nil {
		_ = conn.Close()
		return
	}
	defer h.Registry.Unregister(c)
	go c.StartWrite(h.Log)

	log := h.Log.WithField("conn", c.ID)
	sess := h.Chat.NewSession(func(views []models.MessageView) {
		if err := c.Enqueue(SnapshotFrame{Type: "snapshot", Messages: views, Scroll: true}); err != nil {
			log.WithError(err).Debug("snapshot not delivered")
		}
	})
	if err := sess.Mount(r.Context()); err != nil {
		log.WithError(err).Error("mounting chat session failed")
		sendError(c, "messages unavailable")
		return
	}
	defer sess.Unmount()

	c.PrepareRead(maxFrameSize)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break // disconnect
		}
		var wsmsg WSMessage
		if err := json.Unmarshal(msg, &wsmsg); err != nil {
			sendError(c, "invalid message format")
			continue
		}
		switch wsmsg.Type {
		case "send_message":
			sess.SetInput(wsmsg.Content)
			if !sess.CanSubmit() {
				continue
			}
			err := sess.Submit(r.Context())
			switch {
			case err == nil:
				sendAck(c, "sent")
			case errors.Is(err, chat.ErrMessageTooLong):
				sendError(c, apperr.MessageOf(err))
			}
			// store failures are logged by the service and not shown
		default:
			sendError(c, "unknown message type")
		}
	}
}

func sendError(c *ws.Connection, msg string) {
	_ = c.Enqueue(noticeFrame{Type: "error", Message: msg})
}

func sendAck(c *ws.Connection, msg string) {
	_ = c.Enqueue(noticeFrame{Type: "ack", Message: msg})
}
