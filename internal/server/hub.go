// Package server exposes the rules engine to players over WebSocket and
// serves gRPC health checks.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/kingdomforge/kingdom-server-go/internal/config"
	"github.com/kingdomforge/kingdom-server-go/internal/game"
	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"go.uber.org/zap"
)

// ErrPlayerOffline is returned when a prompt targets a player without a
// connection. The broker keeps the prompt and resends it on join.
var ErrPlayerOffline = errors.New("player is offline")

// MatchEngine is the part of game.Engine the hub drives.
type MatchEngine interface {
	StartMatch(ctx context.Context, opts game.MatchOptions) (game.MatchView, error)
	AdvancePhase(ctx context.Context, matchID string) (game.MatchView, error)
	EndTurn(ctx context.Context, matchID string) (game.MatchView, error)
	PlayCard(ctx context.Context, matchID, player, key string) (game.MatchView, error)
	Buy(ctx context.Context, matchID, player, key string) (game.MatchView, error)
	SubmitDecision(ctx context.Context, matchID, promptID, player string, payload prompt.Payload) (game.MatchView, error)
	View(matchID, player string) (game.MatchView, error)
	Summary(matchID string) (game.MatchSummary, error)
	Disconnect(ctx context.Context, matchID, player string) error
	Reconnect(ctx context.Context, matchID, player string) (game.MatchView, error)
	Close(ctx context.Context, matchID string) error
	SetNotificationHandler(handler game.NotificationHandler)
}

// Hub tracks connected players and the matches they joined. It implements
// prompt.Transport.
type Hub struct {
	auth     *Authenticator
	cfg      config.WebSocketConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	engine  MatchEngine
	clients map[string]*Client
	members map[string]map[string]bool
}

// NewHub creates a hub. Attach must be called before serving.
func NewHub(auth *Authenticator, cfg config.WebSocketConfig, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		auth:    auth,
		cfg:     cfg,
		logger:  logger,
		clients: make(map[string]*Client),
		members: make(map[string]map[string]bool),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Attach connects the hub to an engine and subscribes to its notifications.
func (h *Hub) Attach(engine MatchEngine) {
	h.mu.Lock()
	h.engine = engine
	h.mu.Unlock()
	engine.SetNotificationHandler(h.HandleNotification)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(h.cfg.AllowedOrigins, r.Header.Get("Origin"))
}

// ServeWS authenticates and upgrades a connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	player, err := h.auth.Authenticate(r)
	if err != nil {
		h.logger.Debug("rejected websocket connection", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("player_id", player), zap.Error(err))
		return
	}

	c := newClient(h, conn, player)
	h.register(c)
	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	old := h.clients[c.player]
	h.clients[c.player] = c
	total := len(h.clients)
	h.mu.Unlock()

	if old != nil {
		old.close()
	}
	h.logger.Info("player connected",
		zap.String("player_id", c.player),
		zap.Int("total_clients", total),
		zap.Bool("replaced", old != nil),
	)
}

// unregister drops a client and starts the disconnect grace period in every
// match it joined. A client replaced by a newer connection is ignored.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	current := h.clients[c.player] == c
	if current {
		delete(h.clients, c.player)
	}
	var matches []string
	for id, players := range h.members {
		if players[c.player] {
			matches = append(matches, id)
		}
	}
	engine := h.engine
	h.mu.Unlock()
	c.close()

	if !current {
		return
	}
	for _, id := range matches {
		if err := engine.Disconnect(context.Background(), id, c.player); err != nil && !errors.Is(err, game.ErrMatchNotFound) {
			h.logger.Warn("disconnect failed",
				zap.String("match_id", id),
				zap.String("player_id", c.player),
				zap.Error(err),
			)
		}
	}
	h.logger.Info("player disconnected", zap.String("player_id", c.player))
}

func (h *Hub) join(matchID, player string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.members[matchID] == nil {
		h.members[matchID] = make(map[string]bool)
	}
	h.members[matchID][player] = true
}

func (h *Hub) leave(matchID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.members, matchID)
}

// Members lists the players joined to a match.
func (h *Hub) Members(matchID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	players := make([]string, 0, len(h.members[matchID]))
	for p := range h.members[matchID] {
		players = append(players, p)
	}
	slices.Sort(players)
	return players
}

func (h *Hub) client(player string) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[player]
}

// SendPrompt implements prompt.Transport.
func (h *Hub) SendPrompt(_ context.Context, player string, env prompt.Envelope) error {
	c := h.client(player)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrPlayerOffline, player)
	}
	return c.sendJSON(PromptMessage{
		Type:        MsgPrompt,
		MatchID:     env.MatchID,
		PromptID:    env.PromptID,
		Kind:        env.Kind,
		Constraints: env.Constraints,
		Deadline:    env.Deadline,
	})
}

// HandleNotification pushes fresh views to every joined player of the
// notified match. A finished match is closed once its summary is out.
func (h *Hub) HandleNotification(n game.Notification) {
	h.mu.RLock()
	engine := h.engine
	h.mu.RUnlock()
	players := h.Members(n.MatchID)

	if n.Type == game.NotifyGameOver {
		summary, err := engine.Summary(n.MatchID)
		if err != nil {
			h.logger.Warn("summary unavailable", zap.String("match_id", n.MatchID), zap.Error(err))
		} else {
			for _, p := range players {
				h.deliver(p, GameOverMessage{Type: MsgGameOver, MatchID: n.MatchID, Summary: summary})
			}
		}
		h.retire(engine, n.MatchID)
		return
	}

	for _, p := range players {
		view, err := engine.View(n.MatchID, p)
		if err != nil {
			h.logger.Debug("view unavailable", zap.String("match_id", n.MatchID), zap.Error(err))
			return
		}
		h.deliver(p, StateMessage{Type: MsgState, MatchID: n.MatchID, View: view})
	}
}

func (h *Hub) retire(engine MatchEngine, matchID string) {
	h.leave(matchID)
	if err := engine.Close(context.Background(), matchID); err != nil && !errors.Is(err, game.ErrMatchNotFound) {
		h.logger.Warn("failed to close finished match", zap.String("match_id", matchID), zap.Error(err))
	}
}

func (h *Hub) deliver(player string, msg any) {
	c := h.client(player)
	if c == nil {
		return
	}
	if err := c.sendJSON(msg); err != nil {
		h.logger.Debug("dropped message", zap.String("player_id", player), zap.Error(err))
	}
}

// Connected reports whether a player has a live connection.
func (h *Hub) Connected(player string) bool {
	return h.client(player) != nil
}

// CloseAll closes every connection.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}
