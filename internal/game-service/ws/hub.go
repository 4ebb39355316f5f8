package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/radieske/casino-games-platform-poc/internal/game-service/engine"
)

// client serializa as escritas numa conexão: o gorilla/websocket não
// suporta writers concorrentes, e o pong do read loop disputa a conexão
// com o Broadcast.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub gerencia as conexões WebSocket inscritas nos feeds de round.
// Cada cliente pode assinar um ou mais jogos; o crash emite um update por
// tick, os demais um por fase.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	// gameType -> set de clientes
	subs map[string]map[*client]struct{}
}

func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão: subscribe/unsubscribe
// por jogo e resposta a pings.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	cl := &client{conn: conn}

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			if _, err := engine.ParseGameType(msg.GameType); err != nil {
				_ = cl.writeJSON(map[string]string{"type": "error", "error": "unknown game type"})
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[msg.GameType]; !ok {
				h.subs[msg.GameType] = make(map[*client]struct{})
			}
			h.subs[msg.GameType][cl] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe":
			h.mu.Lock()
			if m, ok := h.subs[msg.GameType]; ok {
				delete(m, cl)
				if len(m) == 0 {
					delete(h.subs, msg.GameType)
				}
			}
			h.mu.Unlock()
		case "ping":
			_ = cl.writeJSON(map[string]string{"type": "pong"})
		}
	}
	// remove a conexão de todas as assinaturas ao desconectar
	h.mu.Lock()
	for _, set := range h.subs {
		delete(set, cl)
	}
	h.mu.Unlock()
}

// Broadcast envia o update pra todos os clientes inscritos no jogo.
// O set de inscritos é copiado sob o lock; as escritas acontecem fora
// dele pra não segurar subscribes atrás de um cliente lento.
func (h *Hub) Broadcast(u engine.RoundUpdate) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.subs[u.GameType]))
	for cl := range h.subs[u.GameType] {
		targets = append(targets, cl)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, _ := json.Marshal(u)
	for _, cl := range targets {
		_ = cl.writeMessage(websocket.TextMessage, b)
	}
}
