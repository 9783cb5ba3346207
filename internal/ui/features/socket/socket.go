// Package socket streams rendered figures to the browser over a WebSocket.
//
// Client messages are JSON objects with a "type" field:
//
//	{"type":"supports_binary","value":true}
//	{"type":"refresh"}
//	{"type":"resize","width":800,"height":600}
//
// For every figure the server sends a JSON "figure" header followed by the
// PNG frame, as a binary message or, when the client cannot take binary
// frames, as a base64 data URI in a text message. A "close" message is
// sent when the viewer shuts down.
package socket

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/leapstack-labs/leapfit/internal/figure"
	"github.com/leapstack-labs/leapfit/internal/ui/notifier"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMessage = 4096
)

// Message types.
const (
	TypeSupportsBinary = "supports_binary"
	TypeRefresh        = "refresh"
	TypeResize         = "resize"
	TypeFigure         = "figure"
	TypeClose          = "close"
	TypeError          = "error"
)

// ClientMessage is a control message sent by the browser.
type ClientMessage struct {
	Type   string `json:"type"`
	Value  bool   `json:"value"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// FigureHeader precedes every frame.
type FigureHeader struct {
	Type string `json:"type"`
	figure.Info
}

type serverMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// Handler upgrades requests and serves one figure stream per connection.
type Handler struct {
	ctrl     *figure.Controller
	notifier *notifier.Notifier
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(ctrl *figure.Controller, notify *notifier.Notifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{
		ctrl:     ctrl,
		notifier: notify,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     sameHost,
		},
	}
}

// SetupRoutes registers the socket endpoint.
func SetupRoutes(router chi.Router, ctrl *figure.Controller, notify *notifier.Notifier, logger *slog.Logger) error {
	router.Handle("/ws", NewHandler(ctrl, notify, logger))
	return nil
}

// sameHost accepts requests without an Origin header and those whose
// origin names the host being served.
func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	updates := h.notifier.Subscribe()
	defer h.notifier.Unsubscribe(updates)
	h.logger.Debug("websocket client connected", "remote", r.RemoteAddr, "listeners", h.notifier.Len())

	// The reader owns every read; the loop below owns every write.
	commands := make(chan ClientMessage, 8)
	readDone := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go h.readLoop(conn, commands, readDone, stop)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	supportsBinary := true
	for {
		select {
		case <-readDone:
			return

		case <-h.notifier.Done():
			_ = h.writeJSON(conn, serverMessage{Type: TypeClose})
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "viewer closed"))
			return

		case <-updates:
			if err := h.sendFrame(conn, supportsBinary); err != nil {
				return
			}

		case msg := <-commands:
			switch msg.Type {
			case TypeSupportsBinary:
				supportsBinary = msg.Value
			case TypeRefresh:
				if err := h.sendFrame(conn, supportsBinary); err != nil {
					return
				}
			case TypeResize:
				// A successful resize reaches this client through updates.
				if _, err := h.ctrl.Resize(msg.Width, msg.Height); err != nil {
					if err := h.writeJSON(conn, serverMessage{Type: TypeError, Message: err.Error()}); err != nil {
						return
					}
				}
			default:
				h.logger.Debug("ignoring websocket message", "type", msg.Type)
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(conn *websocket.Conn, commands chan<- ClientMessage, done, stop chan struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := sonic.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("ignoring malformed websocket message", "error", err)
			continue
		}
		select {
		case commands <- msg:
		case <-stop:
			return
		}
	}
}

func (h *Handler) sendFrame(conn *websocket.Conn, binary bool) error {
	info := h.ctrl.Info()
	id, png := h.ctrl.Frame()
	info.ID = id

	if err := h.writeJSON(conn, FigureHeader{Type: TypeFigure, Info: info}); err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if binary {
		return conn.WriteMessage(websocket.BinaryMessage, png)
	}
	return conn.WriteMessage(websocket.TextMessage, []byte(DataURI(png)))
}

func (h *Handler) writeJSON(conn *websocket.Conn, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// DataURI encodes a PNG frame for clients without binary support.
func DataURI(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
