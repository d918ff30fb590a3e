package game

import "fmt"

// Street represents the betting round.
type Street int

const (
	Preflop Street = iota
	Flop
	Turn
	River
	Showdown
)

func (s Street) String() string {
	if s < Preflop || s > Showdown {
		return "unknown"
	}
	return [...]string{"preflop", "flop", "turn", "river", "showdown"}[s]
}

// ActionKind is a closed set of player actions. Per-kind validation lives in
// Hand.ApplyAction; adding a kind requires a case there.
type ActionKind int

const (
	Fold ActionKind = iota
	Check
	Call
	Raise
	AllIn
)

func (a ActionKind) String() string {
	if a < Fold || a > AllIn {
		return "unknown"
	}
	return [...]string{"fold", "check", "call", "raise", "allin"}[a]
}

// ParseActionKind parses a wire action name.
func ParseActionKind(s string) (ActionKind, error) {
	switch s {
	case "fold":
		return Fold, nil
	case "check":
		return Check, nil
	case "call":
		return Call, nil
	case "raise":
		return Raise, nil
	case "allin", "all-in":
		return AllIn, nil
	default:
		return 0, fmt.Errorf("invalid action: %q", s)
	}
}

// BettingRound holds the state of one betting round.
type BettingRound struct {
	CurrentBet int `json:"currentBet"`
	MinRaise   int `json:"minRaise"`
	// LastAggressor is the seat of the last bet or raise this round, -1 when
	// nobody has raised. Used with Acted to detect a full circuit.
	LastAggressor int `json:"lastAggressor"`
	// Acted marks seats that have acted since the last raise.
	Acted []bool `json:"acted"`
	// BBOption tracks whether the big blind has used their preflop option.
	BBOption bool `json:"bbOption"`
	BigBlind int  `json:"bigBlind"`
}

// NewBettingRound creates betting state for a fresh round.
func NewBettingRound(numSeats, bigBlind int) *BettingRound {
	return &BettingRound{
		MinRaise:      bigBlind,
		LastAggressor: -1,
		Acted:         make([]bool, numSeats),
		BigBlind:      bigBlind,
	}
}

// Reset prepares the betting state for the next street.
func (br *BettingRound) Reset() {
	br.CurrentBet = 0
	br.MinRaise = br.BigBlind
	br.LastAggressor = -1
	for i := range br.Acted {
		br.Acted[i] = false
	}
	// BBOption persists: it only matters preflop.
}

// MarkActed records that a seat has acted since the last raise.
func (br *BettingRound) MarkActed(seat int) {
	if seat >= 0 && seat < len(br.Acted) {
		br.Acted[seat] = true
	}
}

// RegisterRaise records a raise to newBet by seat and restarts the circuit.
func (br *BettingRound) RegisterRaise(seat, newBet int) {
	br.MinRaise = newBet - br.CurrentBet
	br.CurrentBet = newBet
	br.LastAggressor = seat
	for i := range br.Acted {
		br.Acted[i] = false
	}
	br.Acted[seat] = true
}

// Complete reports whether the betting round is finished: every non-folded,
// non-all-in participant has matched the current bet and acted since the last
// raise, or at most one such participant remains with their bet matched.
func (br *BettingRound) Complete(participants []*Participant, street Street, bbSeat int) bool {
	actors := 0
	for _, p := range participants {
		if p.CanAct() {
			actors++
		}
	}

	if actors == 0 {
		return true
	}

	for i, p := range participants {
		if !p.CanAct() {
			continue
		}
		if p.Bet != br.CurrentBet {
			return false
		}
		if actors > 1 && !br.Acted[i] {
			return false
		}
	}

	if actors == 1 {
		return true
	}

	// Preflop the big blind keeps the option to raise even when all bets
	// match the blind.
	if street == Preflop && br.LastAggressor == -1 && bbSeat >= 0 && bbSeat < len(participants) {
		bb := participants[bbSeat]
		if bb.CanAct() && !br.BBOption {
			return false
		}
	}

	return true
}
