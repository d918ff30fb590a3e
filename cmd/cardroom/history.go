package main

import (
	"context"
	"fmt"

	"github.com/cardroomhq/cardroom/internal/game"
	"github.com/cardroomhq/cardroom/internal/store"
)

// HistoryCmd reads back archived events for a table.
type HistoryCmd struct {
	DSN     string `kong:"required,help='Postgres DSN of the event archive'"`
	Table   string `kong:"required,help='Table ID to query'"`
	Player  string `kong:"help='Only events for this player'"`
	HandNum uint64 `kong:"help='Only events from this hand number'"`
	Kind    string `kong:"help='Only events of this kind (action, shown_cards, spectator_join)'"`
	Limit   int    `kong:"default='50',help='Maximum events to print'"`
}

func (c *HistoryCmd) Run() error {
	archive, err := store.OpenArchive(c.DSN)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	events, err := archive.Query(context.Background(), c.Table, store.EventFilter{
		HandNum:  c.HandNum,
		PlayerID: c.Player,
		Kind:     game.EventKind(c.Kind),
		Limit:    c.Limit,
	})
	if err != nil {
		return fmt.Errorf("query archive: %w", err)
	}

	for _, ev := range events {
		switch ev.Kind {
		case game.EventAction:
			fmt.Printf("%s hand=%d seq=%d seat=%d %s %s %d (%s)\n",
				ev.Timestamp.Format("2006-01-02 15:04:05"),
				ev.HandNum, ev.Seq, ev.Seat, ev.PlayerID, ev.Action, ev.Amount, ev.Street)
		case game.EventShownCards:
			fmt.Printf("%s hand=%d seq=%d seat=%d %s shows %s\n",
				ev.Timestamp.Format("2006-01-02 15:04:05"),
				ev.HandNum, ev.Seq, ev.Seat, ev.PlayerID, ev.Cards)
		default:
			fmt.Printf("%s hand=%d %s %s\n",
				ev.Timestamp.Format("2006-01-02 15:04:05"),
				ev.HandNum, ev.Kind, ev.PlayerID)
		}
	}
	return nil
}
