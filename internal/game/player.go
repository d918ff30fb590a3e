package game

import "github.com/cardroomhq/cardroom/poker"

// Status is a participant's state within the current hand.
type Status string

const (
	StatusActive     Status = "active"
	StatusFolded     Status = "folded"
	StatusAllIn      Status = "all-in"
	StatusSittingOut Status = "sitting-out"
)

// Participant is one player dealt into a hand.
type Participant struct {
	Seat          int        `json:"seat"`
	PlayerID      string     `json:"playerId"`
	Name          string     `json:"name"`
	StartingStack int        `json:"startingStack"`
	Stack         int        `json:"stack"`
	HoleCards     poker.Hand `json:"holeCards"`
	// Revealed is set once hole cards have been shown, voluntarily or at
	// showdown. Until then views must keep them opaque.
	Revealed bool   `json:"revealed"`
	Status   Status `json:"status"`
	// Bet is the wager in the current betting round.
	Bet int `json:"bet"`
	// Contributed is the cumulative wager across the whole hand, including
	// bets already collected into the pot.
	Contributed int `json:"contributed"`
}

// CanAct reports whether the participant can still make betting decisions.
func (p *Participant) CanAct() bool {
	return p.Status == StatusActive
}

// InHand reports whether the participant still contends for pots.
func (p *Participant) InHand() bool {
	return p.Status == StatusActive || p.Status == StatusAllIn
}

// commit moves up to amount chips from stack into the current bet, flipping to
// all-in when the stack empties. Returns the chips actually committed.
func (p *Participant) commit(amount int) int {
	if amount > p.Stack {
		amount = p.Stack
	}
	p.Stack -= amount
	p.Bet += amount
	p.Contributed += amount
	if p.Stack == 0 && p.Status == StatusActive {
		p.Status = StatusAllIn
	}
	return amount
}
