package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/cardroomhq/cardroom/internal/auth"
	"github.com/cardroomhq/cardroom/internal/game"
	"github.com/cardroomhq/cardroom/poker"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var ErrConnectionClosed = websocket.ErrCloseSent

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn       *websocket.Conn
	send       chan *Message
	playerID   string
	playerName string
	tableID    string
	spectator  bool
	logger     *log.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.RWMutex
	closeOnce  sync.Once
	service    *GameService
	validator  auth.Validator
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, logger *log.Logger, service *GameService, validator auth.Validator) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:      conn,
		send:      make(chan *Message, 256),
		logger:    logger.WithPrefix("conn"),
		ctx:       ctx,
		cancel:    cancel,
		service:   service,
		validator: validator,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for the client. A full buffer drops the
// connection rather than blocking the game loop.
func (c *Connection) SendMessage(msg *Message) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed during shutdown
			c.logger.Debug("send on closed connection", "recovered", r)
		}
	}()

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		c.logger.Warn("send buffer full, closing connection", "player", c.Player())
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// SetPlayer associates this connection with a player
func (c *Connection) SetPlayer(playerID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = playerID
	c.playerName = name
}

// Player returns the associated player ID
func (c *Connection) Player() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// PlayerName returns the display name set at auth time.
func (c *Connection) PlayerName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerName
}

// SetTable associates this connection with a table, as player or spectator.
func (c *Connection) SetTable(tableID string, spectator bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tableID = tableID
	c.spectator = spectator
}

// Table returns the associated table ID
func (c *Connection) Table() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tableID
}

// Spectating reports whether the connection watches without a seat.
func (c *Connection) Spectating() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.spectator
}

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket error", "error", err)
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// handleMessage dispatches one incoming message.
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("received message", "type", msg.Type, "player", c.Player())

	switch msg.Type {
	case MessageTypeAuth:
		var data AuthData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "failed to parse auth data")
			return
		}
		c.handleAuth(data)

	case MessageTypeJoinTable:
		var data JoinTableData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "failed to parse join table data")
			return
		}
		c.handleJoinTable(data)

	case MessageTypeLeaveTable:
		var data LeaveTableData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "failed to parse leave table data")
			return
		}
		c.handleLeaveTable(data)

	case MessageTypeListTables:
		c.handleListTables()

	case MessageTypeSpectate:
		var data SpectateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "failed to parse spectate data")
			return
		}
		c.handleSpectate(data)

	case MessageTypeStartHand:
		var data StartHandData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "failed to parse start hand data")
			return
		}
		c.handleStartHand(data)

	case MessageTypeAction:
		var data ActionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "failed to parse action data")
			return
		}
		c.handleAction(data)

	case MessageTypeShowCards:
		var data ShowCardsData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "failed to parse show cards data")
			return
		}
		c.handleShowCards(data)

	case MessageTypeHandHistory:
		var data HandHistoryData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError("invalid_message", "failed to parse hand history data")
			return
		}
		c.handleHandHistory(data)

	default:
		c.sendError("unknown_message_type", "unknown message type: "+msg.Type.String())
	}
}

// sendError sends an error message to the client
func (c *Connection) sendError(code, message string) {
	errorMsg, err := NewMessage(MessageTypeError, ErrorData{
		Code:    code,
		Message: message,
	})
	if err != nil {
		c.logger.Error("create error message", "error", err)
		return
	}
	_ = c.SendMessage(errorMsg)
}

// sendGameError maps a structured game error onto the wire.
func (c *Connection) sendGameError(err error) {
	if code := game.CodeOf(err); code != "" {
		if ge, ok := err.(*game.Error); ok {
			c.sendError(string(code), ge.Detail)
			return
		}
	}
	c.sendError("internal_error", err.Error())
}

// authed returns the player id, sending an error if not authenticated.
func (c *Connection) authed() (string, bool) {
	playerID := c.Player()
	if playerID == "" {
		c.sendError("not_authenticated", "must authenticate first")
		return "", false
	}
	return playerID, true
}

func (c *Connection) handleAuth(data AuthData) {
	c.logger.Info("auth request", "playerName", data.PlayerName)

	if c.validator != nil {
		identity, err := c.validator.Validate(c.ctx, data.Token)
		switch {
		case errors.Is(err, auth.ErrInvalidToken):
			c.sendError("invalid_auth", "token rejected")
			return
		case errors.Is(err, auth.ErrUnavailable):
			// Fail closed: seats and stacks are at stake.
			c.sendError("auth_unavailable", "authentication service unavailable")
			return
		case err != nil:
			c.sendError("invalid_auth", err.Error())
			return
		case identity != nil:
			name := identity.DisplayName
			if name == "" {
				name = identity.PlayerID
			}
			c.SetPlayer(identity.PlayerID, name)
			response, _ := NewMessage(MessageTypeAuthResponse, AuthResponseData{
				Success:  true,
				PlayerID: identity.PlayerID,
			})
			_ = c.SendMessage(response)
			return
		}
		// nil identity, nil error: auth disabled, fall back to the name.
	}

	if data.PlayerName == "" {
		c.sendError("invalid_auth", "player name required")
		return
	}

	c.SetPlayer(data.PlayerName, data.PlayerName)

	response, _ := NewMessage(MessageTypeAuthResponse, AuthResponseData{
		Success:  true,
		PlayerID: data.PlayerName,
	})
	_ = c.SendMessage(response)
}

func (c *Connection) handleJoinTable(data JoinTableData) {
	playerID, ok := c.authed()
	if !ok {
		return
	}
	c.logger.Info("join table request", "tableId", data.TableID, "player", playerID)

	if err := c.service.JoinTable(c.ctx, data.TableID, playerID, c.PlayerName(), data.BuyIn); err != nil {
		c.sendGameError(err)
		return
	}
	c.SetTable(data.TableID, false)

	doc, err := c.service.Table(c.ctx, data.TableID)
	if err != nil {
		c.sendGameError(err)
		return
	}
	seat := doc.SeatOf(playerID)
	response, _ := NewMessage(MessageTypeTableJoined, TableJoinedData{
		TableID: data.TableID,
		Seat:    seat,
		Stack:   doc.Seats[seat].Stack,
	})
	_ = c.SendMessage(response)
}

func (c *Connection) handleLeaveTable(data LeaveTableData) {
	playerID, ok := c.authed()
	if !ok {
		return
	}
	c.logger.Info("leave table request", "tableId", data.TableID, "player", playerID)

	if err := c.service.LeaveTable(c.ctx, data.TableID, playerID); err != nil {
		c.sendGameError(err)
		return
	}
	c.SetTable("", false)

	response, _ := NewMessage(MessageTypeTableLeft, TableLeftData{TableID: data.TableID})
	_ = c.SendMessage(response)
}

func (c *Connection) handleListTables() {
	tables := c.service.ListTables(c.ctx)
	response, _ := NewMessage(MessageTypeTableList, TableListData{Tables: tables})
	_ = c.SendMessage(response)
}

func (c *Connection) handleSpectate(data SpectateData) {
	playerID, ok := c.authed()
	if !ok {
		return
	}
	if err := c.service.AddSpectator(c.ctx, data.TableID, playerID); err != nil {
		c.sendGameError(err)
		return
	}
	c.SetTable(data.TableID, true)

	if doc, err := c.service.Table(c.ctx, data.TableID); err == nil && doc.Hand != nil {
		state, _ := NewMessage(MessageTypeHandState, HandStateData{
			TableID: data.TableID,
			Hand:    doc.Hand.View(playerID),
		})
		_ = c.SendMessage(state)
	}
}

func (c *Connection) handleStartHand(data StartHandData) {
	playerID, ok := c.authed()
	if !ok {
		return
	}
	c.logger.Info("start hand request", "tableId", data.TableID, "player", playerID)

	if _, err := c.service.StartHand(c.ctx, data.TableID); err != nil {
		c.sendGameError(err)
	}
	// State reaches everyone through the notifier.
}

func (c *Connection) handleAction(data ActionData) {
	playerID, ok := c.authed()
	if !ok {
		return
	}

	kind, err := game.ParseActionKind(data.Action)
	if err != nil {
		c.sendError(string(game.CodeInvalidAction), err.Error())
		return
	}

	if _, err := c.service.SubmitAction(c.ctx, data.TableID, playerID, kind, data.Amount); err != nil {
		c.sendGameError(err)
	}
}

func (c *Connection) handleShowCards(data ShowCardsData) {
	playerID, ok := c.authed()
	if !ok {
		return
	}
	if err := c.service.Reveal(c.ctx, data.TableID, playerID); err != nil {
		c.sendGameError(err)
	}
}

func (c *Connection) handleHandHistory(data HandHistoryData) {
	playerID, ok := c.authed()
	if !ok {
		return
	}

	category := poker.HoleCardCategory("")
	if data.Category != "" {
		parsed, ok := poker.ParseHoleCardCategory(data.Category)
		if !ok {
			c.sendError("invalid_category", "unknown hole card category: "+data.Category)
			return
		}
		category = parsed
	}

	hands, err := c.service.HandHistory(c.ctx, data.TableID, playerID, category, data.Limit)
	if err != nil {
		c.sendGameError(err)
		return
	}
	response, _ := NewMessage(MessageTypeHistory, HistoryData{
		TableID: data.TableID,
		Hands:   hands,
	})
	_ = c.SendMessage(response)
}
