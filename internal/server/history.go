package server

import (
	"context"

	"github.com/cardroomhq/cardroom/internal/game"
	"github.com/cardroomhq/cardroom/internal/store"
	"github.com/cardroomhq/cardroom/poker"
)

// HandSummary is one hand in a player's history: the hole cards they showed
// and every action they took that hand.
type HandSummary struct {
	HandNum   uint64                 `json:"handNum"`
	HoleCards string                 `json:"holeCards"`
	Category  poker.HoleCardCategory `json:"category"`
	Actions   []game.Event           `json:"actions"`
}

// HandHistory returns a player's most recent shown-down hands, newest first,
// optionally narrowed to one hole-card category. Hands where the player
// never showed cards have no known category and are not listed.
func (s *GameService) HandHistory(ctx context.Context, tableID, playerID string, category poker.HoleCardCategory, limit int) ([]HandSummary, error) {
	shown, err := s.events.Query(ctx, tableID, store.EventFilter{
		PlayerID: playerID,
		Kind:     game.EventShownCards,
	})
	if err != nil {
		return nil, err
	}

	var out []HandSummary
	seen := make(map[uint64]bool)
	for _, ev := range shown {
		if seen[ev.HandNum] {
			continue
		}
		seen[ev.HandNum] = true

		cards := ev.Cards.Cards()
		if len(cards) != 2 {
			continue
		}
		got := poker.CategorizeHoleCards(cards[0], cards[1])
		if category != "" && category != poker.CategoryUnknown && got != category {
			continue
		}

		actions, err := s.events.Query(ctx, tableID, store.EventFilter{
			HandNum:  ev.HandNum,
			PlayerID: playerID,
			Kind:     game.EventAction,
		})
		if err != nil {
			return nil, err
		}
		// Query returns newest first; replay order reads better here.
		for i, j := 0, len(actions)-1; i < j; i, j = i+1, j-1 {
			actions[i], actions[j] = actions[j], actions[i]
		}

		out = append(out, HandSummary{
			HandNum:   ev.HandNum,
			HoleCards: ev.Cards.String(),
			Category:  got,
			Actions:   actions,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
