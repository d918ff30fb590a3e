package game

// ParticipantView is the client-visible slice of a participant. Hole cards
// stay opaque unless revealed or owned by the viewer.
type ParticipantView struct {
	Seat        int    `json:"seat"`
	PlayerID    string `json:"playerId"`
	Name        string `json:"name"`
	Stack       int    `json:"stack"`
	Bet         int    `json:"bet"`
	Contributed int    `json:"contributed"`
	Status      Status `json:"status"`
	HoleCards   string `json:"holeCards,omitempty"`
}

// HandView is the public projection of a hand returned from the action
// submission entry point.
type HandView struct {
	HandNum      uint64            `json:"handNum"`
	Street       string            `json:"street"`
	Board        string            `json:"board"`
	Pots         []Pot             `json:"pots"`
	TurnSeat     int               `json:"turnSeat"`
	TurnSeq      uint64            `json:"turnSeq"`
	CurrentBet   int               `json:"currentBet"`
	MinRaise     int               `json:"minRaise"`
	AmountToCall int               `json:"amountToCall"`
	Complete     bool              `json:"complete"`
	Frozen       bool              `json:"frozen"`
	Results      []Award           `json:"results,omitempty"`
	Participants []ParticipantView `json:"participants"`
}

// View builds the public view for one viewer. The viewer sees their own hole
// cards; everyone else's only once revealed.
func (h *Hand) View(viewerID string) HandView {
	view := HandView{
		HandNum:    h.HandNum,
		Street:     h.Street.String(),
		Board:      h.Board.String(),
		Pots:       h.Pots(),
		TurnSeat:   h.TurnSeat,
		TurnSeq:    h.TurnSeq,
		CurrentBet: h.Betting.CurrentBet,
		MinRaise:   h.Betting.MinRaise,
		Complete:   h.Complete,
		Frozen:     h.Frozen,
		Results:    h.Results,
	}
	if h.TurnSeat >= 0 {
		view.AmountToCall = h.AmountToCall(h.TurnSeat)
	}

	for _, p := range h.Participants {
		pv := ParticipantView{
			Seat:        p.Seat,
			PlayerID:    p.PlayerID,
			Name:        p.Name,
			Stack:       p.Stack,
			Bet:         p.Bet,
			Contributed: p.Contributed,
			Status:      p.Status,
		}
		if p.Revealed || p.PlayerID == viewerID {
			pv.HoleCards = p.HoleCards.String()
		}
		view.Participants = append(view.Participants, pv)
	}
	return view
}
