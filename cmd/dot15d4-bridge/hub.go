package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/gowpan/dot15d4/frame"
)

// hub fans out decoded frame summaries to any connected live-viewer
// websocket clients. Clients that fall behind are dropped rather than
// allowed to block the capture path.
type hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

func newHub(log *slog.Logger) *hub {
	return &hub{
		log:      log.With("component", "bridge.hub"),
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096, CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]chan []byte),
	}
}

func (h *hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	out := make(chan []byte, 32)
	h.mu.Lock()
	h.clients[conn] = out
	h.mu.Unlock()

	h.log.Info("viewer connected", "remote", conn.RemoteAddr())

	go func() {
		defer h.disconnect(conn)
		for msg := range out {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	// Drain and discard anything the viewer sends; this is a
	// broadcast-only feed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.disconnect(conn)
			return
		}
	}
}

func (h *hub) disconnect(conn *websocket.Conn) {
	h.mu.Lock()
	if out, ok := h.clients[conn]; ok {
		close(out)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
	_ = conn.Close()
}

// broadcastFrame encodes a decoded frame as JSON and fans it out to every
// connected viewer, dropping any client whose send buffer is full.
func (h *hub) broadcastFrame(fr frame.Frame) {
	srcAddr, _ := fr.Addressing().SrcAddress()
	dstAddr, _ := fr.Addressing().DstAddress()
	seq, hasSeq := fr.SequenceNumber()

	msg := struct {
		FrameType string `json:"frame_type"`
		Sequence  *uint8 `json:"sequence,omitempty"`
		Src       string `json:"src"`
		Dst       string `json:"dst"`
		Payload   int    `json:"payload_len"`
	}{
		FrameType: frameTypeName(fr.FrameControl().FrameType()),
		Src:       srcAddr.String(),
		Dst:       dstAddr.String(),
		Payload:   len(fr.Payload()),
	}
	if hasSeq {
		msg.Sequence = &seq
	}

	body, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("marshal viewer message", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, out := range h.clients {
		select {
		case out <- body:
		default:
			h.log.Warn("viewer too slow, dropping", "remote", conn.RemoteAddr())
			close(out)
			delete(h.clients, conn)
		}
	}
}

func frameTypeName(t frame.FrameType) string {
	switch t {
	case frame.FrameTypeBeacon:
		return "beacon"
	case frame.FrameTypeData:
		return "data"
	case frame.FrameTypeAck:
		return "ack"
	case frame.FrameTypeMACCommand:
		return "mac_command"
	case frame.FrameTypeMultipurpose:
		return "multipurpose"
	default:
		return "unknown"
	}
}
