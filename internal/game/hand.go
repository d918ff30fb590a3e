package game

import (
	"math/rand"
	"time"

	"github.com/cardroomhq/cardroom/poker"
)

// Hand is the authoritative state of one dealt hand. It is mutated only
// through ApplyAction; every mutation bumps TurnSeq so that stale submissions
// and late timer callbacks can be fenced off.
type Hand struct {
	HandNum    uint64 `json:"handNum"`
	Button     int    `json:"button"`
	SmallBlind int    `json:"smallBlind"`
	BigBlind   int    `json:"bigBlind"`

	Participants []*Participant `json:"participants"`
	Board        poker.Hand     `json:"board"`
	Street       Street         `json:"street"`
	Betting      *BettingRound  `json:"betting"`

	// TurnSeat is the seat expected to act, -1 when no action is pending.
	TurnSeat int `json:"turnSeat"`
	// TurnSeq is the expected sequence number for the next action. An action
	// or timer callback carrying any other value is stale.
	TurnSeq uint64 `json:"turnSeq"`

	// Undealt is the remainder of the shuffled deck. Opaque to clients.
	Undealt []poker.Card `json:"undealt"`

	Complete bool `json:"complete"`
	// Frozen marks a fatal invariant violation; the hand is locked for
	// manual inspection and accepts no further actions.
	Frozen  bool    `json:"frozen"`
	Results []Award `json:"results,omitempty"`
}

// Award records chips paid from one pot to one seat.
type Award struct {
	Seat   int    `json:"seat"`
	Amount int    `json:"amount"`
	PotIdx int    `json:"potIdx"`
	Reason string `json:"reason"` // "showdown" or "fold"
}

// Seat identity used to deal a participant into a hand.
type SeatInfo struct {
	PlayerID string
	Name     string
	Stack    int
}

// ActionResult reports what a successfully applied action changed.
type ActionResult struct {
	Events       []Event
	TurnChanged  bool
	HandComplete bool
}

// NewHand deals a new hand: shuffles, deals hole cards, posts blinds and sets
// the first player to act. Requires at least two seats with positive stacks.
// When the blinds alone put every player all-in the board runs out and the
// hand settles immediately; the returned result carries the showdown events.
func NewHand(rng *rand.Rand, handNum uint64, button, smallBlind, bigBlind int, seats []SeatInfo) (*Hand, *ActionResult, error) {
	if len(seats) < 2 {
		return nil, nil, Errorf(CodeNotEnoughPlayers, "need at least 2 players, have %d", len(seats))
	}
	for _, s := range seats {
		if s.Stack <= 0 {
			return nil, nil, Errorf(CodeNotEnoughPlayers, "player %s has no chips", s.PlayerID)
		}
	}

	h := &Hand{
		HandNum:    handNum,
		Button:     button % len(seats),
		SmallBlind: smallBlind,
		BigBlind:   bigBlind,
		Street:     Preflop,
		TurnSeq:    1,
		Betting:    NewBettingRound(len(seats), bigBlind),
	}

	for seat, s := range seats {
		h.Participants = append(h.Participants, &Participant{
			Seat:          seat,
			PlayerID:      s.PlayerID,
			Name:          s.Name,
			StartingStack: s.Stack,
			Stack:         s.Stack,
			Status:        StatusActive,
		})
	}

	deck := poker.NewDeck(rng)
	for _, p := range h.Participants {
		p.HoleCards = poker.NewHand(deck.Deal(2)...)
	}
	h.Undealt = append(h.Undealt, deck.Deal(deck.CardsRemaining())...)

	h.postBlinds()
	h.TurnSeat = h.nextActor(h.firstToActPreflop())

	result := &ActionResult{}
	if h.TurnSeat == -1 {
		// Short stacks went all-in posting the blinds, so no betting round
		// can start. Run the remaining streets and settle, exactly as a
		// mid-hand all-in would.
		h.advanceStreet(result, time.Now())
		if err := h.CheckConservation(); err != nil {
			h.Frozen = true
			return nil, nil, err
		}
		result.HandComplete = h.Complete
	}
	return h, result, nil
}

func (h *Hand) postBlinds() {
	sb, bb := h.sbSeat(), h.bbSeat()
	h.Participants[sb].commit(h.SmallBlind)
	h.Participants[bb].commit(h.BigBlind)
	h.Betting.CurrentBet = h.BigBlind
}

// sbSeat returns the small blind seat. Heads-up the button posts it.
func (h *Hand) sbSeat() int {
	if len(h.Participants) == 2 {
		return h.Button
	}
	return (h.Button + 1) % len(h.Participants)
}

// bbSeat returns the big blind seat.
func (h *Hand) bbSeat() int {
	if len(h.Participants) == 2 {
		return (h.Button + 1) % len(h.Participants)
	}
	return (h.Button + 2) % len(h.Participants)
}

func (h *Hand) firstToActPreflop() int {
	return (h.bbSeat() + 1) % len(h.Participants)
}

// nextActor returns the first seat at or after from that can act, or -1.
func (h *Hand) nextActor(from int) int {
	n := len(h.Participants)
	for i := 0; i < n; i++ {
		seat := (from + i) % n
		if h.Participants[seat].CanAct() {
			return seat
		}
	}
	return -1
}

// InProgress reports whether the hand still accepts actions.
func (h *Hand) InProgress() bool {
	return !h.Complete && !h.Frozen
}

// Pots returns the current pot partitioning, empty once settled.
func (h *Hand) Pots() []Pot {
	if h.Complete {
		return nil
	}
	return ComputePots(h.Participants)
}

// AmountToCall returns what the given seat owes to match the current bet.
func (h *Hand) AmountToCall(seat int) int {
	if seat < 0 || seat >= len(h.Participants) {
		return 0
	}
	owed := h.Betting.CurrentBet - h.Participants[seat].Bet
	if owed < 0 {
		return 0
	}
	return owed
}

// ApplyAction validates and applies one player action. All validation happens
// before any mutation: a rejected action leaves the hand untouched. On
// success the turn sequence number advances and the returned result carries
// the event log entries to append.
func (h *Hand) ApplyAction(seat int, seq uint64, kind ActionKind, amount int, now time.Time) (*ActionResult, error) {
	if h.Frozen {
		return nil, Errorf(CodeHandFrozen, "hand %d is frozen pending inspection", h.HandNum)
	}
	if h.Complete || h.Street == Showdown {
		return nil, Errorf(CodeGameNotActive, "hand %d is not accepting actions", h.HandNum)
	}
	// Sequence fencing comes first: a stale retry or late timer callback is
	// rejected as stale regardless of whose turn it claims to be.
	if seq != h.TurnSeq {
		return nil, Errorf(CodeStaleAction, "sequence %d does not match current %d", seq, h.TurnSeq)
	}
	if seat < 0 || seat >= len(h.Participants) {
		return nil, Errorf(CodePlayerNotFound, "no seat %d in hand", seat)
	}

	p := h.Participants[seat]
	switch p.Status {
	case StatusFolded:
		return nil, Errorf(CodeAlreadyFolded, "seat %d already folded", seat)
	case StatusAllIn:
		return nil, Errorf(CodeAlreadyAllIn, "seat %d is all-in", seat)
	case StatusSittingOut:
		return nil, Errorf(CodeInvalidAction, "seat %d is sitting out", seat)
	}
	if seat != h.TurnSeat {
		return nil, Errorf(CodeNotYourTurn, "seat %d acted but seat %d is up", seat, h.TurnSeat)
	}

	owed := h.Betting.CurrentBet - p.Bet

	// Per-kind validation. No state is touched until this switch passes.
	switch kind {
	case Fold:
		// Always legal for an active player.
	case Check:
		if owed != 0 {
			return nil, Errorf(CodeInvalidAction, "cannot check, %d to call", owed)
		}
	case Call:
		if owed == 0 {
			return nil, Errorf(CodeInvalidAction, "nothing to call")
		}
		if p.Stack < owed {
			return nil, Errorf(CodeNotEnoughChips, "need %d to call, have %d: declare all-in", owed, p.Stack)
		}
	case Raise:
		total := p.Stack + p.Bet
		if amount > total {
			return nil, Errorf(CodeNotEnoughChips, "raise to %d exceeds stack of %d", amount, total)
		}
		if amount <= h.Betting.CurrentBet {
			return nil, Errorf(CodeInvalidAction, "raise to %d does not exceed current bet %d", amount, h.Betting.CurrentBet)
		}
		// A raise below the minimum is only allowed as an all-in.
		if amount < h.Betting.CurrentBet+h.Betting.MinRaise && amount < total {
			return nil, Errorf(CodeRaiseTooSmall, "minimum raise is to %d", h.Betting.CurrentBet+h.Betting.MinRaise)
		}
	case AllIn:
		// Always legal for an active player with chips; commit caps at stack.
	default:
		return nil, Errorf(CodeInvalidAction, "unknown action kind %d", kind)
	}

	h.Betting.MarkActed(seat)
	if h.Street == Preflop && seat == h.bbSeat() {
		h.Betting.BBOption = true
	}

	recorded := amount
	switch kind {
	case Fold:
		p.Status = StatusFolded
		recorded = 0
	case Check:
		recorded = 0
	case Call:
		recorded = p.commit(owed)
	case Raise:
		p.commit(amount - p.Bet)
		if p.Bet > h.Betting.CurrentBet {
			h.Betting.RegisterRaise(seat, p.Bet)
		}
		recorded = p.Bet
	case AllIn:
		recorded = p.commit(p.Stack)
		if p.Bet > h.Betting.CurrentBet {
			h.Betting.RegisterRaise(seat, p.Bet)
		}
		recorded = p.Bet
	}

	seq = h.TurnSeq
	h.TurnSeq++

	result := &ActionResult{
		Events: []Event{NewActionEvent(h.HandNum, seq, p, kind, recorded, h.Street, now)},
	}

	h.advance(result, now)

	if err := h.CheckConservation(); err != nil {
		h.Frozen = true
		return nil, err
	}

	result.HandComplete = h.Complete
	return result, nil
}

// advance moves the hand forward after an applied action: next actor, next
// street, auto-runout or settlement.
func (h *Hand) advance(result *ActionResult, now time.Time) {
	// A lone contender wins everything immediately, cards stay hidden and
	// the evaluator never runs.
	if h.contenders() == 1 {
		h.settleFoldWin()
		result.TurnChanged = true
		return
	}

	if !h.Betting.Complete(h.Participants, h.Street, h.bbSeat()) {
		h.TurnSeat = h.nextActor(h.TurnSeat + 1)
		result.TurnChanged = true
		return
	}

	h.advanceStreet(result, now)
	result.TurnChanged = true
}

// advanceStreet finishes the betting round and reveals streets until either a
// new betting round can start or the hand reaches showdown.
func (h *Hand) advanceStreet(result *ActionResult, now time.Time) {
	for {
		for _, p := range h.Participants {
			p.Bet = 0
		}
		h.Betting.Reset()

		switch h.Street {
		case Preflop:
			h.Street = Flop
			h.dealBoard(3)
		case Flop:
			h.Street = Turn
			h.dealBoard(1)
		case Turn:
			h.Street = River
			h.dealBoard(1)
		case River:
			h.Street = Showdown
			h.settleShowdown(result, now)
			return
		}

		// Two or more players still able to act: a fresh betting round
		// starts with the first eligible seat after the button.
		if h.actors() >= 2 {
			h.TurnSeat = h.nextActor((h.Button + 1) % len(h.Participants))
			return
		}
		// Otherwise run the board out without further betting.
	}
}

func (h *Hand) dealBoard(n int) {
	for i := 0; i < n && len(h.Undealt) > 0; i++ {
		h.Board.AddCard(h.Undealt[0])
		h.Undealt = h.Undealt[1:]
	}
}

// contenders counts participants still in the hand.
func (h *Hand) contenders() int {
	n := 0
	for _, p := range h.Participants {
		if p.InHand() {
			n++
		}
	}
	return n
}

// actors counts participants able to make further betting decisions.
func (h *Hand) actors() int {
	n := 0
	for _, p := range h.Participants {
		if p.CanAct() {
			n++
		}
	}
	return n
}

// settleFoldWin awards all pots to the last contender without any reveal.
func (h *Hand) settleFoldWin() {
	var winner *Participant
	for _, p := range h.Participants {
		if p.InHand() {
			winner = p
			break
		}
	}
	if winner == nil {
		return
	}

	for idx, pot := range ComputePots(h.Participants) {
		winner.Stack += pot.Amount
		h.Results = append(h.Results, Award{
			Seat:   winner.Seat,
			Amount: pot.Amount,
			PotIdx: idx,
			Reason: "fold",
		})
	}
	h.TurnSeat = -1
	h.Complete = true
}

// settleShowdown reveals contenders' cards, ranks each pot's eligible hands
// and pays winners, splitting ties with odd chips going to the first eligible
// seat clockwise from the button.
func (h *Hand) settleShowdown(result *ActionResult, now time.Time) {
	ranks := make(map[int]poker.HandRank)
	for _, p := range h.Participants {
		if !p.InHand() {
			continue
		}
		if !p.Revealed {
			p.Revealed = true
			result.Events = append(result.Events, NewShownCardsEvent(h.HandNum, h.TurnSeq, p, now))
			h.TurnSeq++
		}
		ranks[p.Seat] = poker.Evaluate(p.HoleCards | h.Board)
	}

	for idx, pot := range ComputePots(h.Participants) {
		winners := bestSeats(pot.Eligible, ranks)
		for seat, share := range splitShares(pot.Amount, winners, h.Button, len(h.Participants)) {
			p := h.Participants[seat]
			p.Stack += share
			h.Results = append(h.Results, Award{
				Seat:   seat,
				Amount: share,
				PotIdx: idx,
				Reason: "showdown",
			})
		}
	}

	h.TurnSeat = -1
	h.Complete = true
}

// bestSeats returns the seats holding the best rank among eligible.
func bestSeats(eligible []int, ranks map[int]poker.HandRank) []int {
	var best poker.HandRank
	var winners []int
	for _, seat := range eligible {
		rank, ok := ranks[seat]
		if !ok {
			continue
		}
		switch poker.CompareHands(rank, best) {
		case 1:
			best = rank
			winners = []int{seat}
		case 0:
			winners = append(winners, seat)
		}
	}
	return winners
}

// CheckConservation verifies the chip conservation invariant: outstanding
// pots plus every stack (winnings included) must equal the starting stacks.
func (h *Hand) CheckConservation() error {
	start, stacks := 0, 0
	for _, p := range h.Participants {
		start += p.StartingStack
		stacks += p.Stack
	}
	if got := PotTotal(h.Pots()) + stacks; got != start {
		return Errorf(CodeHandFrozen,
			"chip conservation violated in hand %d: have %d, started with %d", h.HandNum, got, start)
	}
	return nil
}

// Reveal marks a participant's hole cards as shown voluntarily and returns
// the matching event log entry.
func (h *Hand) Reveal(seat int, now time.Time) (Event, error) {
	if seat < 0 || seat >= len(h.Participants) {
		return Event{}, Errorf(CodePlayerNotFound, "no seat %d in hand", seat)
	}
	p := h.Participants[seat]
	p.Revealed = true
	ev := NewShownCardsEvent(h.HandNum, h.TurnSeq, p, now)
	h.TurnSeq++
	return ev, nil
}
