package game

import (
	"time"

	"github.com/cardroomhq/cardroom/poker"
)

// EventKind identifies an event log entry type.
type EventKind string

const (
	EventAction        EventKind = "action"
	EventShownCards    EventKind = "shown_cards"
	EventSpectatorJoin EventKind = "spectator_join"
)

// Event is one append-only log entry. The log is partitioned by hand number;
// Seq orders entries within a hand, nothing orders them across hands.
type Event struct {
	HandNum   uint64    `json:"handNum"`
	Seq       uint64    `json:"seq"`
	Kind      EventKind `json:"kind"`
	Seat      int       `json:"seat"`
	PlayerID  string    `json:"playerId"`
	Timestamp time.Time `json:"timestamp"`

	// Action fields, set when Kind == EventAction.
	Action ActionKind `json:"action,omitempty"`
	Amount int        `json:"amount,omitempty"`
	Street Street     `json:"street,omitempty"`

	// Cards, set when Kind == EventShownCards.
	Cards poker.Hand `json:"cards,omitempty"`
}

// NewActionEvent records a validated player action.
func NewActionEvent(handNum, seq uint64, p *Participant, kind ActionKind, amount int, street Street, now time.Time) Event {
	return Event{
		HandNum:   handNum,
		Seq:       seq,
		Kind:      EventAction,
		Seat:      p.Seat,
		PlayerID:  p.PlayerID,
		Timestamp: now,
		Action:    kind,
		Amount:    amount,
		Street:    street,
	}
}

// NewShownCardsEvent records a voluntary or showdown reveal of hole cards.
func NewShownCardsEvent(handNum, seq uint64, p *Participant, now time.Time) Event {
	return Event{
		HandNum:   handNum,
		Seq:       seq,
		Kind:      EventShownCards,
		Seat:      p.Seat,
		PlayerID:  p.PlayerID,
		Timestamp: now,
		Cards:     p.HoleCards,
	}
}

// NewSpectatorJoinEvent records a presence event; it never affects gameplay.
func NewSpectatorJoinEvent(handNum uint64, playerID string, now time.Time) Event {
	return Event{
		HandNum:   handNum,
		Kind:      EventSpectatorJoin,
		Seat:      -1,
		PlayerID:  playerID,
		Timestamp: now,
	}
}
