package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kingdomforge/kingdom-server-go/internal/game"
	"github.com/kingdomforge/kingdom-server-go/internal/game/prompt"
	"go.uber.org/zap"
)

const sendBuffer = 256

var errSendBufferFull = errors.New("send buffer full")

// Client is one authenticated player connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	player string
	send   chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(h *Hub, conn *websocket.Conn, player string) *Client {
	return &Client{
		hub:    h,
		conn:   conn,
		player: player,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// sendJSON queues a message without blocking.
func (c *Client) sendJSON(msg any) error {
	data, err := marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return fmt.Errorf("%w: %s", ErrPlayerOffline, c.player)
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *Client) pongWait() time.Duration {
	if c.hub.cfg.PongTimeout > 0 {
		return c.hub.cfg.PongTimeout
	}
	return 60 * time.Second
}

func (c *Client) writeWait() time.Duration {
	if c.hub.cfg.WriteTimeout > 0 {
		return c.hub.cfg.WriteTimeout
	}
	return 10 * time.Second
}

// readPump reads requests until the connection fails.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	if c.hub.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	}
	wait := c.pongWait()
	c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", zap.String("player_id", c.player), zap.Error(err))
			}
			return
		}
		c.handleMessage(data)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.pongWait() * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait()))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait()))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(data []byte) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(msg, CodeBadRequest, "invalid message format")
		return
	}

	c.hub.mu.RLock()
	engine := c.hub.engine
	c.hub.mu.RUnlock()
	ctx := context.Background()

	var (
		view game.MatchView
		err  error
	)
	switch msg.Type {
	case MsgStartMatch:
		view, err = c.startMatch(ctx, engine, msg)
	case MsgJoin:
		view, err = engine.Reconnect(ctx, msg.MatchID, c.player)
		if err == nil {
			c.hub.join(msg.MatchID, c.player)
		}
	case MsgAdvancePhase:
		if err = c.requireActive(engine, msg.MatchID); err == nil {
			view, err = engine.AdvancePhase(ctx, msg.MatchID)
		}
	case MsgEndTurn:
		if err = c.requireActive(engine, msg.MatchID); err == nil {
			view, err = engine.EndTurn(ctx, msg.MatchID)
		}
	case MsgPlayCard:
		view, err = engine.PlayCard(ctx, msg.MatchID, c.player, msg.Card)
	case MsgBuy:
		view, err = engine.Buy(ctx, msg.MatchID, c.player, msg.Card)
	case MsgDecision:
		var kind prompt.Kind
		if kind, err = c.promptKind(engine, msg); err != nil {
			break
		}
		var payload prompt.Payload
		if payload, err = prompt.DecodePayload(kind, msg.Payload); err != nil {
			c.sendError(msg, CodeBadRequest, err.Error())
			return
		}
		view, err = engine.SubmitDecision(ctx, msg.MatchID, msg.PromptID, c.player, payload)
	default:
		c.sendError(msg, CodeBadRequest, "unknown message type: "+msg.Type)
		return
	}

	if err != nil {
		c.hub.logger.Debug("request rejected",
			zap.String("player_id", c.player),
			zap.String("match_id", msg.MatchID),
			zap.String("type", msg.Type),
			zap.Error(err),
		)
		c.sendError(msg, errorCode(err), err.Error())
		return
	}
	if view, err = engine.View(view.MatchID, c.player); err != nil {
		return
	}
	if err := c.sendJSON(StateMessage{Type: MsgState, RequestID: msg.RequestID, MatchID: view.MatchID, View: view}); err != nil {
		c.hub.logger.Debug("dropped reply", zap.String("player_id", c.player), zap.Error(err))
	}
}

// promptKind is the kind of the outstanding prompt a decision answers. The
// client's kind is only used when the prompt is no longer outstanding; the
// engine then rejects the decision.
func (c *Client) promptKind(engine MatchEngine, msg InboundMessage) (prompt.Kind, error) {
	view, err := engine.View(msg.MatchID, c.player)
	if err != nil {
		return "", err
	}
	for _, p := range view.Prompts {
		if p.PromptID == msg.PromptID {
			return p.Kind, nil
		}
	}
	return msg.Kind, nil
}

func (c *Client) startMatch(ctx context.Context, engine MatchEngine, msg InboundMessage) (game.MatchView, error) {
	if !slices.Contains(msg.Players, c.player) {
		return game.MatchView{}, fmt.Errorf("%w: %s is not seated", game.ErrUnknownPlayer, c.player)
	}
	opts := game.MatchOptions{
		ID:         msg.MatchID,
		Players:    msg.Players,
		Kingdom:    msg.Kingdom,
		Expansions: msg.Expansions,
	}
	view, err := engine.StartMatch(ctx, opts)
	if err == nil {
		c.hub.join(view.MatchID, c.player)
	}
	return view, err
}

// requireActive rejects phase commands from anyone but the active player.
func (c *Client) requireActive(engine MatchEngine, matchID string) error {
	view, err := engine.View(matchID, "")
	if err != nil {
		return err
	}
	if view.ActivePlayer != c.player {
		return &game.NotActivePlayerError{Player: c.player, Active: view.ActivePlayer}
	}
	return nil
}

func (c *Client) sendError(msg InboundMessage, code, text string) {
	_ = c.sendJSON(ErrorMessage{
		Type:      MsgError,
		RequestID: msg.RequestID,
		MatchID:   msg.MatchID,
		Code:      code,
		Message:   text,
	})
}
