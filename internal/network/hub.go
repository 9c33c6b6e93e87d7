package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MRamiBalles/bedrock-chatlog/internal/platform/logger"
)

// Hub is the bridge side of the protocol: it accepts bot connections and
// broadcasts frames to them. cmd/bridge-sim serves it for local runs and the
// package tests use it as a fake bridge.
type Hub struct {
	peers      map[*peer]bool
	broadcast  chan []byte
	register   chan *peer
	unregister chan *peer
	commands   chan Frame
	done       chan struct{}
	mu         sync.Mutex
	logger     *logger.Logger
	upgrader   websocket.Upgrader

	// SpawnOnConnect sends a join frame as soon as a bot connects.
	SpawnOnConnect bool
}

// peer is one connected bot.
type peer struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	username string
}

// ErrHubClosed is returned by Broadcast once Run has returned.
var ErrHubClosed = errors.New("bridge hub closed")

// NewHub initializes a new bridge hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		broadcast:      make(chan []byte),
		register:       make(chan *peer),
		unregister:     make(chan *peer),
		commands:       make(chan Frame, 64),
		done:           make(chan struct{}),
		peers:          make(map[*peer]bool),
		logger:         log,
		SpawnOnConnect: true,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Run starts the Hub's main loop to handle connections and broadcasts.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Bridge hub shutting down.")
			close(h.done)
			h.mu.Lock()
			for p := range h.peers {
				delete(h.peers, p)
				close(p.send)
			}
			h.mu.Unlock()
			return
		case p := <-h.register:
			h.mu.Lock()
			h.peers[p] = true
			h.mu.Unlock()
			h.logger.Infof("Bot %q connected to bridge", p.username)
		case p := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.peers[p]; ok {
				delete(h.peers, p)
				close(p.send)
				h.logger.Infof("Bot %q left bridge", p.username)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for p := range h.peers {
				select {
				case p.send <- message:
				default:
					close(p.send)
					delete(h.peers, p)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends frame to every connected bot.
func (h *Hub) Broadcast(frame Frame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- payload:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// Peers reports how many bots are connected.
func (h *Hub) Peers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Commands delivers command and disconnect frames sent by bots.
func (h *Hub) Commands() <-chan Frame {
	return h.commands
}

// ServeHTTP upgrades a bot connection and starts its pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade bridge connection: " + err.Error())
		return
	}

	p := &peer{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		username: r.URL.Query().Get("username"),
	}
	if h.SpawnOnConnect {
		spawn, _ := json.Marshal(Frame{Event: FrameJoin})
		p.send <- spawn
	}
	select {
	case h.register <- p:
	case <-h.done:
		conn.Close()
		return
	}

	go p.writePump()
	go p.readPump()
}

// readPump forwards bot frames to the hub's command channel.
func (p *peer) readPump() {
	defer func() {
		select {
		case p.hub.unregister <- p:
		case <-p.hub.done:
		}
		p.conn.Close()
	}()
	p.conn.SetReadLimit(maxMessageSize)
	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			p.hub.logger.Warn("Malformed frame from bot: " + err.Error())
			continue
		}
		select {
		case p.hub.commands <- frame:
		default:
			p.hub.logger.Warn("Command queue full, dropping " + frame.Event)
		}
		if frame.Event == FrameDisconnect {
			return
		}
	}
}

// writePump pumps broadcast frames to the bot.
func (p *peer) writePump() {
	defer p.conn.Close()
	for message := range p.send {
		p.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	p.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bridge closed"))
}
