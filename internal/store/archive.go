package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cardroomhq/cardroom/internal/game"
	"github.com/cardroomhq/cardroom/poker"
)

// EventRecord is one archived event log row. Rows are append-only: live logic
// never updates or deletes them; only data-migration tooling may.
type EventRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	TableID   string    `gorm:"size:64;not null;index:idx_events_table_hand,priority:1"`
	HandNum   uint64    `gorm:"not null;index:idx_events_table_hand,priority:2"`
	Seq       uint64    `gorm:"not null"`
	Kind      string    `gorm:"size:32;not null"`
	Seat      int       `gorm:"not null"`
	PlayerID  string    `gorm:"size:64;index"`
	Action    string    `gorm:"size:16"`
	Amount    int       `gorm:"not null;default:0"`
	Street    string    `gorm:"size:16"`
	Cards     string    `gorm:"size:32"`
	Timestamp time.Time `gorm:"not null"`
}

// TableName binds the explicit table name.
func (EventRecord) TableName() string { return "hand_events" }

// HandRecord is the archived result of a completed hand.
type HandRecord struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	TableID     string    `gorm:"size:64;not null;uniqueIndex:idx_hands_table_num,priority:1"`
	HandNum     uint64    `gorm:"not null;uniqueIndex:idx_hands_table_num,priority:2"`
	Board       string    `gorm:"size:16"`
	Results     string    `gorm:"type:text"`
	CompletedAt time.Time `gorm:"not null"`
}

// TableName binds the explicit table name.
func (HandRecord) TableName() string { return "hand_results" }

// Archive is the gorm-backed event log and hand archive. It satisfies
// EventLog so historical queries can run against durable storage.
type Archive struct {
	db *gorm.DB
}

var _ EventLog = (*Archive)(nil)

// OpenArchive connects to postgres and migrates the archive schema.
func OpenArchive(dsn string) (*Archive, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.AutoMigrate(&EventRecord{}, &HandRecord{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Archive{db: db}, nil
}

// NewArchive wraps an existing gorm handle. For tests.
func NewArchive(db *gorm.DB) *Archive {
	return &Archive{db: db}
}

// Append stores one event row.
func (a *Archive) Append(ctx context.Context, tableID string, ev game.Event) error {
	rec := EventRecord{
		TableID:   tableID,
		HandNum:   ev.HandNum,
		Seq:       ev.Seq,
		Kind:      string(ev.Kind),
		Seat:      ev.Seat,
		PlayerID:  ev.PlayerID,
		Amount:    ev.Amount,
		Timestamp: ev.Timestamp,
	}
	if ev.Kind == game.EventAction {
		rec.Action = ev.Action.String()
		rec.Street = ev.Street.String()
	}
	if ev.Cards != 0 {
		rec.Cards = ev.Cards.String()
	}
	if err := a.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Query returns matching events, most recent first.
func (a *Archive) Query(ctx context.Context, tableID string, f EventFilter) ([]game.Event, error) {
	q := a.db.WithContext(ctx).Model(&EventRecord{}).Where("table_id = ?", tableID)
	if f.HandNum != 0 {
		q = q.Where("hand_num = ?", f.HandNum)
	}
	if f.PlayerID != "" {
		q = q.Where("player_id = ?", f.PlayerID)
	}
	if f.Kind != "" {
		q = q.Where("kind = ?", string(f.Kind))
	}
	q = q.Order("id DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []EventRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}

	events := make([]game.Event, 0, len(rows))
	for _, r := range rows {
		ev := game.Event{
			HandNum:   r.HandNum,
			Seq:       r.Seq,
			Kind:      game.EventKind(r.Kind),
			Seat:      r.Seat,
			PlayerID:  r.PlayerID,
			Amount:    r.Amount,
			Timestamp: r.Timestamp,
		}
		if ev.Kind == game.EventAction {
			if kind, err := game.ParseActionKind(r.Action); err == nil {
				ev.Action = kind
			}
			ev.Street = parseStreet(r.Street)
		}
		if r.Cards != "" {
			if cards, err := poker.ParseCards(r.Cards); err == nil {
				ev.Cards = cards
			}
		}
		events = append(events, ev)
	}
	return events, nil
}

// ArchiveHand stores the final result of a completed hand.
func (a *Archive) ArchiveHand(ctx context.Context, tableID string, h *game.Hand, resultsJSON string) error {
	rec := HandRecord{
		TableID:     tableID,
		HandNum:     h.HandNum,
		Board:       h.Board.String(),
		Results:     resultsJSON,
		CompletedAt: time.Now(),
	}
	if err := a.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("archive hand: %w", err)
	}
	return nil
}

func parseStreet(s string) game.Street {
	switch s {
	case "preflop":
		return game.Preflop
	case "flop":
		return game.Flop
	case "turn":
		return game.Turn
	case "river":
		return game.River
	default:
		return game.Showdown
	}
}
