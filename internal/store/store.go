// Package store provides the persistence interfaces the game core runs
// against: a per-table document store with compare-and-set updates and an
// append-only event log. No multi-table transactions are assumed.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cardroomhq/cardroom/internal/game"
)

var (
	// ErrNotFound is returned when a table document does not exist.
	ErrNotFound = errors.New("table not found")
	// ErrVersionConflict is returned when a compare-and-set update lost the
	// race. Callers re-read and retry; the hand's sequence number decides
	// whether the retried action is still valid.
	ErrVersionConflict = errors.New("version conflict")
)

// Seat is one chair at a table.
type Seat struct {
	PlayerID   string `json:"playerId"`
	Name       string `json:"name"`
	Stack      int    `json:"stack"`
	SittingOut bool   `json:"sittingOut"`
}

// TableDoc is the persistent aggregate for one table. Version is the
// compare-and-set fence: SaveTable succeeds only when the stored version
// still matches the one the caller read.
type TableDoc struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	MaxPlayers  int        `json:"maxPlayers"`
	Seats       []Seat     `json:"seats"`
	SmallBlind  int        `json:"smallBlind"`
	BigBlind    int        `json:"bigBlind"`
	HandCounter uint64     `json:"handCounter"`
	Hand        *game.Hand `json:"hand,omitempty"`
	Version     uint64     `json:"version"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// SeatOf returns the seat index for a player id, or -1.
func (d *TableDoc) SeatOf(playerID string) int {
	for i, s := range d.Seats {
		if s.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// TableStore holds table documents with optimistic concurrency.
type TableStore interface {
	// CreateTable stores a new document at version 1.
	CreateTable(ctx context.Context, doc *TableDoc) error
	// Table returns a private copy of the document.
	Table(ctx context.Context, id string) (*TableDoc, error)
	// Tables returns private copies of every document.
	Tables(ctx context.Context) ([]*TableDoc, error)
	// SaveTable writes doc if the stored version equals expectedVersion,
	// bumping the version. Returns ErrVersionConflict otherwise.
	SaveTable(ctx context.Context, doc *TableDoc, expectedVersion uint64) error
	// DeleteTable removes the document.
	DeleteTable(ctx context.Context, id string) error
}

// EventFilter narrows an event log query. Zero values match everything.
type EventFilter struct {
	HandNum  uint64 // 0 matches all hands
	PlayerID string
	Kind     game.EventKind
	// Limit caps the result to the N most recent matches; 0 means no cap.
	Limit int
}

// EventLog is the append-only per-table event record. Entries are never
// mutated or deleted by live logic. Order is only guaranteed within one hand
// via the sequence number.
type EventLog interface {
	Append(ctx context.Context, tableID string, ev game.Event) error
	// Query returns matching events, most recent first.
	Query(ctx context.Context, tableID string, f EventFilter) ([]game.Event, error)
}
