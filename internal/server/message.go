package server

import (
	"encoding/json"
	"time"

	"github.com/cardroomhq/cardroom/internal/game"
)

// MessageType identifies a WebSocket message.
type MessageType string

const (
	// Client to server messages
	MessageTypeAuth        MessageType = "auth"
	MessageTypeJoinTable   MessageType = "join_table"
	MessageTypeLeaveTable  MessageType = "leave_table"
	MessageTypeListTables  MessageType = "list_tables"
	MessageTypeSpectate    MessageType = "spectate"
	MessageTypeStartHand   MessageType = "start_hand"
	MessageTypeAction      MessageType = "action"
	MessageTypeShowCards   MessageType = "show_cards"
	MessageTypeHandHistory MessageType = "hand_history"

	// Server to client messages
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeError        MessageType = "error"
	MessageTypeTableJoined  MessageType = "table_joined"
	MessageTypeTableLeft    MessageType = "table_left"
	MessageTypeTableList    MessageType = "table_list"
	MessageTypeHandState    MessageType = "hand_state"
	MessageTypeHistory      MessageType = "history"
)

func (mt MessageType) String() string {
	return string(mt)
}

// Message is the WebSocket envelope. Payloads stay raw until the type is
// known.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage wraps a payload in an envelope with the current timestamp.
func NewMessage(messageType MessageType, data interface{}) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server payloads

type AuthData struct {
	PlayerName string `json:"playerName"`
	Token      string `json:"token,omitempty"`
}

type JoinTableData struct {
	TableID string `json:"tableId"`
	BuyIn   int    `json:"buyIn"`
}

type LeaveTableData struct {
	TableID string `json:"tableId"`
}

type SpectateData struct {
	TableID string `json:"tableId"`
}

type StartHandData struct {
	TableID string `json:"tableId"`
}

type ActionData struct {
	TableID string `json:"tableId"`
	Action  string `json:"action"`
	Amount  int    `json:"amount,omitempty"`
}

type ShowCardsData struct {
	TableID string `json:"tableId"`
}

type HandHistoryData struct {
	TableID  string `json:"tableId"`
	Category string `json:"category,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// Server → Client payloads

type AuthResponseData struct {
	Success  bool   `json:"success"`
	PlayerID string `json:"playerId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ErrorData carries a stable machine-readable code; Message is for humans.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type TableInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	Stakes      string `json:"stakes"`
	HandActive  bool   `json:"handActive"`
}

type TableListData struct {
	Tables []TableInfo `json:"tables"`
}

type TableJoinedData struct {
	TableID string `json:"tableId"`
	Seat    int    `json:"seat"`
	Stack   int    `json:"stack"`
}

type TableLeftData struct {
	TableID string `json:"tableId"`
}

// HandStateData is the per-viewer projection of the live hand. Hole cards
// other than the viewer's own appear only once revealed.
type HandStateData struct {
	TableID string        `json:"tableId"`
	Hand    game.HandView `json:"hand"`
}

type HistoryData struct {
	TableID string        `json:"tableId"`
	Hands   []HandSummary `json:"hands"`
}
