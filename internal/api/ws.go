package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/twlines/maslow-sub003/internal/hub"
)

// maxWSFrameBytes is the 5 MB per-frame cap named in the expanded spec;
// a client that exceeds it has its connection closed by gorilla's
// read-limit enforcement.
const maxWSFrameBytes = 5 << 20

const wsSendBufferSize = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient is one connected browser/front-end, bridging the broadcast
// hub's fan-out channel to a dedicated WebSocket read/write pump pair.
// Adapted from ODSapper-CLIAIMONITOR's Client/Hub pairing, generalized
// from a single hard-coded state-update broadcast to the typed
// hub.Event stream and a small set of client-originated message kinds.
type wsClient struct {
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	cancel func()
}

// wsOutbound is the envelope every server-originated frame takes:
// forwarded hub events keep their topic as Type. Hub events are the
// only frames the server sends; no presence/stream/audio/transcription
// frames are generated.
type wsOutbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// wsInbound is the envelope a client frame must match. Unknown types
// are ignored rather than closing the connection, since front-ends may
// be newer than the server.
type wsInbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	events, cancel := s.hub.Subscribe(nil)
	c := &wsClient{
		server: s,
		conn:   conn,
		send:   make(chan []byte, wsSendBufferSize),
		cancel: cancel,
	}

	go c.writePump()
	go c.forwardHubEvents(events)
	c.readPump()
}

// forwardHubEvents relays every broadcast-hub event onto the client's
// send channel until the connection (or the hub subscription) closes.
func (c *wsClient) forwardHubEvents(events <-chan hub.Event) {
	for ev := range events {
		frame, err := json.Marshal(wsOutbound{Type: ev.Topic, Data: ev.Payload})
		if err != nil {
			continue
		}
		select {
		case c.send <- frame:
		default:
			// client's own buffer is full; drop rather than block the hub forwarder
		}
	}
}

// readPump reads client-originated frames: chat, voice, and subscribe.
// It enforces the 5 MB frame cap; an oversized frame causes gorilla to
// return an error from ReadMessage, which closes the connection.
func (c *wsClient) readPump() {
	defer func() {
		c.cancel()
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxWSFrameBytes)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var in wsInbound
		if err := json.Unmarshal(raw, &in); err != nil {
			continue
		}
		c.handleInbound(in)
	}
}

func (c *wsClient) handleInbound(in wsInbound) {
	switch in.Type {
	case "chat":
		var payload struct {
			ProjectID string `json:"projectId"`
			Text      string `json:"text"`
		}
		if err := json.Unmarshal(in.Data, &payload); err != nil {
			return
		}
		c.server.hub.Publish("chat.received", payload)
	case "voice":
		// Voice ingestion is an external-collaborator concern (spec §6);
		// the core surface only acknowledges receipt.
		c.server.hub.Publish("voice.received", json.RawMessage(in.Data))
	case "subscribe":
		// Topic-scoped subscriptions are not yet differentiated: every
		// client currently receives every hub event (filter=nil above).
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
