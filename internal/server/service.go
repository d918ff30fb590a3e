package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/cardroomhq/cardroom/internal/game"
	"github.com/cardroomhq/cardroom/internal/store"
)

// maxSaveAttempts caps the optimistic-concurrency retry loop. Conflicts are
// resolved by the hand's sequence number, so anything past a couple of
// retries means the table is churning faster than we can read it.
const maxSaveAttempts = 5

// TurnWatcher is notified when the acting turn moves so that a timeout can
// be scheduled for the new turn and the previous one cancelled.
type TurnWatcher interface {
	TurnChanged(tableID string, handNum, turnSeq uint64)
	TurnEnded(tableID string)
}

// Notifier pushes committed state changes to connected clients. The
// websocket hub implements it; tests leave it nil.
type Notifier interface {
	HandUpdated(tableID string, hand *game.Hand)
	LobbyUpdated(tableID string)
}

// GameService owns all table mutations. Every write goes through a
// read-modify-save cycle against the document store; a lost compare-and-set
// race is retried with the originally captured sequence number, so whichever
// submission lost the race surfaces as a stale action instead of being
// applied twice.
type GameService struct {
	store   store.TableStore
	events  store.EventLog
	archive *store.Archive
	metrics *Metrics
	logger  *log.Logger

	watcher  TurnWatcher
	notifier Notifier

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewGameService creates the service. archive may be nil to disable durable
// archiving; the event log is still written.
func NewGameService(tables store.TableStore, events store.EventLog, archive *store.Archive, metrics *Metrics, logger *log.Logger, rng *rand.Rand) *GameService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &GameService{
		store:   tables,
		events:  events,
		archive: archive,
		metrics: metrics,
		logger:  logger.WithPrefix("game"),
		rng:     rng,
	}
}

// SetTurnWatcher wires the turn orchestrator. Must be called before play
// starts; not safe to swap while hands are live.
func (s *GameService) SetTurnWatcher(w TurnWatcher) { s.watcher = w }

// SetNotifier wires the client push channel.
func (s *GameService) SetNotifier(n Notifier) { s.notifier = n }

// CreateTable opens a new empty table and returns its document.
func (s *GameService) CreateTable(ctx context.Context, name string, smallBlind, bigBlind, maxPlayers int) (*store.TableDoc, error) {
	if smallBlind <= 0 || bigBlind <= smallBlind {
		return nil, fmt.Errorf("invalid blinds %d/%d", smallBlind, bigBlind)
	}
	if maxPlayers < 2 {
		return nil, fmt.Errorf("max players must be at least 2, got %d", maxPlayers)
	}

	doc := &store.TableDoc{
		ID:         uuid.New().String(),
		Name:       name,
		MaxPlayers: maxPlayers,
		SmallBlind: smallBlind,
		BigBlind:   bigBlind,
		CreatedAt:  time.Now(),
	}
	if err := s.store.CreateTable(ctx, doc); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}

	s.metrics.ActiveTables.Inc()
	s.logger.Info("table created", "table", doc.ID, "name", name, "blinds", fmt.Sprintf("%d/%d", smallBlind, bigBlind))
	return doc, nil
}

// CloseTable removes a table. Hands in progress are abandoned; the event log
// survives for inspection.
func (s *GameService) CloseTable(ctx context.Context, tableID string) error {
	if err := s.store.DeleteTable(ctx, tableID); err != nil {
		return err
	}
	if s.watcher != nil {
		s.watcher.TurnEnded(tableID)
	}
	s.metrics.ActiveTables.Dec()
	s.logger.Info("table closed", "table", tableID)
	return nil
}

// JoinTable seats a player with the given buy-in. Joining during a live hand
// is allowed; the player is dealt in from the next hand.
func (s *GameService) JoinTable(ctx context.Context, tableID, playerID, name string, buyIn int) error {
	if buyIn <= 0 {
		return fmt.Errorf("buy-in must be positive, got %d", buyIn)
	}
	return s.updateDoc(ctx, tableID, func(doc *store.TableDoc) error {
		if doc.SeatOf(playerID) >= 0 {
			return fmt.Errorf("player %s is already seated", playerID)
		}
		if len(doc.Seats) >= doc.MaxPlayers {
			return fmt.Errorf("table %s is full", tableID)
		}
		doc.Seats = append(doc.Seats, store.Seat{
			PlayerID: playerID,
			Name:     name,
			Stack:    buyIn,
		})
		return nil
	})
}

// LeaveTable removes a player's seat. If the player is in a live hand the
// seat is marked sitting out instead and removed when the hand settles: the
// hand's chips stay on the table until the pot resolves.
func (s *GameService) LeaveTable(ctx context.Context, tableID, playerID string) error {
	return s.updateDoc(ctx, tableID, func(doc *store.TableDoc) error {
		seat := doc.SeatOf(playerID)
		if seat < 0 {
			return game.Errorf(game.CodePlayerNotFound, "player %s is not seated", playerID)
		}
		if doc.Hand != nil && doc.Hand.InProgress() && handSeatOf(doc.Hand, playerID) >= 0 {
			doc.Seats[seat].SittingOut = true
			return nil
		}
		doc.Seats = append(doc.Seats[:seat], doc.Seats[seat+1:]...)
		return nil
	})
}

// AddSpectator records a spectator joining. Spectators never influence
// gameplay; the entry exists so replays show who was watching.
func (s *GameService) AddSpectator(ctx context.Context, tableID, playerID string) error {
	doc, err := s.store.Table(ctx, tableID)
	if err != nil {
		return err
	}
	var handNum uint64
	if doc.Hand != nil {
		handNum = doc.Hand.HandNum
	}
	return s.appendEvent(ctx, tableID, game.NewSpectatorJoinEvent(handNum, playerID, time.Now()))
}

// Table returns a copy of the table document.
func (s *GameService) Table(ctx context.Context, tableID string) (*store.TableDoc, error) {
	return s.store.Table(ctx, tableID)
}

// ListTables summarizes every open table for the lobby.
func (s *GameService) ListTables(ctx context.Context) []TableInfo {
	docs, err := s.store.Tables(ctx)
	if err != nil {
		s.logger.Error("list tables", "err", err)
		return nil
	}
	infos := make([]TableInfo, 0, len(docs))
	for _, doc := range docs {
		infos = append(infos, TableInfo{
			ID:          doc.ID,
			Name:        doc.Name,
			PlayerCount: len(doc.Seats),
			MaxPlayers:  doc.MaxPlayers,
			Stakes:      fmt.Sprintf("%d/%d", doc.SmallBlind, doc.BigBlind),
			HandActive:  doc.Hand != nil && doc.Hand.InProgress(),
		})
	}
	return infos
}

// StartHand deals the next hand for every seated player who is not sitting
// out and still has chips. The button rotates with the hand counter. A deal
// whose blinds put everyone all-in settles on the spot with no turn to act.
func (s *GameService) StartHand(ctx context.Context, tableID string) (game.HandView, error) {
	var started *game.Hand
	var dealt *game.ActionResult
	err := s.updateDoc(ctx, tableID, func(doc *store.TableDoc) error {
		if doc.Hand != nil && doc.Hand.Frozen {
			return game.Errorf(game.CodeHandFrozen, "hand %d is frozen pending inspection", doc.Hand.HandNum)
		}
		if doc.Hand != nil && doc.Hand.InProgress() {
			return game.Errorf(game.CodeGameAlreadyStarted, "hand %d is still in progress", doc.Hand.HandNum)
		}

		var seats []game.SeatInfo
		for _, seat := range doc.Seats {
			if seat.SittingOut || seat.Stack <= 0 {
				continue
			}
			seats = append(seats, game.SeatInfo{PlayerID: seat.PlayerID, Name: seat.Name, Stack: seat.Stack})
		}
		if len(seats) < 2 {
			return game.Errorf(game.CodeNotEnoughPlayers, "need 2 players with chips, have %d", len(seats))
		}

		doc.HandCounter++
		button := int(doc.HandCounter % uint64(len(seats)))

		s.rngMu.Lock()
		hand, result, err := game.NewHand(s.rng, doc.HandCounter, button, doc.SmallBlind, doc.BigBlind, seats)
		s.rngMu.Unlock()
		if err != nil {
			return err
		}
		doc.Hand = hand
		started = hand
		dealt = result
		if hand.Complete {
			s.settleSeats(doc)
		}
		return nil
	})
	if err != nil {
		return game.HandView{}, err
	}

	s.metrics.HandsStarted.Inc()
	s.logger.Info("hand started", "table", tableID, "hand", started.HandNum,
		"players", len(started.Participants), "button", started.Button)
	for _, ev := range dealt.Events {
		if err := s.appendEvent(ctx, tableID, ev); err != nil {
			s.logger.Error("append event", "table", tableID, "hand", ev.HandNum, "err", err)
		}
	}
	if started.Complete {
		s.metrics.HandsCompleted.Inc()
		s.logger.Info("hand complete", "table", tableID, "hand", started.HandNum, "awards", len(started.Results))
		s.archiveHand(ctx, tableID, started)
	} else if s.watcher != nil {
		s.watcher.TurnChanged(tableID, started.HandNum, started.TurnSeq)
	}
	if s.notifier != nil {
		s.notifier.HandUpdated(tableID, started)
	}
	return started.View(""), nil
}

// SubmitAction applies an action on behalf of a connected player. The hand
// number and sequence number are captured on the first read and pinned across
// retries: if another writer commits first, the retry is rejected as stale
// rather than silently re-applied against the new turn.
func (s *GameService) SubmitAction(ctx context.Context, tableID, playerID string, kind game.ActionKind, amount int) (game.HandView, error) {
	doc, err := s.store.Table(ctx, tableID)
	if err != nil {
		return game.HandView{}, err
	}
	if doc.Hand == nil {
		return game.HandView{}, game.Errorf(game.CodeGameNotActive, "no hand in progress")
	}
	seat := handSeatOf(doc.Hand, playerID)
	if seat < 0 {
		return game.HandView{}, game.Errorf(game.CodePlayerNotFound, "player %s is not in the hand", playerID)
	}
	return s.applyFenced(ctx, tableID, playerID, seat, doc.Hand.HandNum, doc.Hand.TurnSeq, kind, amount)
}

// submitTimeout resolves an expired turn: check when nothing is owed, fold
// otherwise. The sequence number comes from the timer task that fired, so
// redelivered or late callbacks fence out exactly like stale client actions.
func (s *GameService) submitTimeout(ctx context.Context, tableID string, handNum, turnSeq uint64) error {
	doc, err := s.store.Table(ctx, tableID)
	if err != nil {
		return err
	}
	hand := doc.Hand
	if hand == nil || !hand.InProgress() || hand.HandNum != handNum {
		return game.Errorf(game.CodeStaleAction, "hand %d is gone", handNum)
	}
	if hand.TurnSeq != turnSeq || hand.TurnSeat < 0 {
		return game.Errorf(game.CodeStaleAction, "turn %d has passed", turnSeq)
	}

	seat := hand.TurnSeat
	kind := game.Fold
	if hand.AmountToCall(seat) == 0 {
		kind = game.Check
	}
	actor := hand.Participants[seat]
	s.logger.Info("turn timed out", "table", tableID, "hand", handNum, "seat", seat, "resolved", kind.String())
	_, err = s.applyFenced(ctx, tableID, actor.PlayerID, seat, handNum, turnSeq, kind, 0)
	return err
}

// applyFenced runs the read-modify-save cycle for one action. handNum and seq
// are captured by the caller and never refreshed: sequence numbers restart
// with every hand, so both halves of the fence are needed to keep a submission
// from landing on a hand dealt after it was read.
func (s *GameService) applyFenced(ctx context.Context, tableID, playerID string, seat int, handNum, seq uint64, kind game.ActionKind, amount int) (game.HandView, error) {
	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		doc, err := s.store.Table(ctx, tableID)
		if err != nil {
			return game.HandView{}, err
		}
		hand := doc.Hand
		if hand == nil {
			return game.HandView{}, s.reject(game.Errorf(game.CodeGameNotActive, "no hand in progress"))
		}
		if hand.HandNum != handNum {
			return game.HandView{}, s.reject(game.Errorf(game.CodeStaleAction,
				"hand %d has ended, hand %d is live", handNum, hand.HandNum))
		}

		result, err := hand.ApplyAction(seat, seq, kind, amount, time.Now())
		if err != nil {
			if hand.Frozen {
				s.persistFrozen(ctx, tableID, doc)
			}
			return game.HandView{}, s.reject(err)
		}

		if result.HandComplete {
			s.settleSeats(doc)
		}

		if err := s.store.SaveTable(ctx, doc, doc.Version); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return game.HandView{}, fmt.Errorf("save table: %w", err)
		}

		s.commitEffects(ctx, tableID, hand, result, kind)
		return hand.View(playerID), nil
	}
	return game.HandView{}, fmt.Errorf("table %s: gave up after %d attempts: %w", tableID, maxSaveAttempts, lastErr)
}

// commitEffects runs the side effects of a committed action: event log,
// metrics, timeout scheduling and client push. All of these are safe to run
// exactly once per committed write.
func (s *GameService) commitEffects(ctx context.Context, tableID string, hand *game.Hand, result *game.ActionResult, kind game.ActionKind) {
	for _, ev := range result.Events {
		if err := s.appendEvent(ctx, tableID, ev); err != nil {
			s.logger.Error("append event", "table", tableID, "hand", ev.HandNum, "err", err)
		}
	}
	s.metrics.ActionsApplied.WithLabelValues(kind.String()).Inc()

	if result.HandComplete {
		s.metrics.HandsCompleted.Inc()
		s.logger.Info("hand complete", "table", tableID, "hand", hand.HandNum, "awards", len(hand.Results))
		if s.watcher != nil {
			s.watcher.TurnEnded(tableID)
		}
		s.archiveHand(ctx, tableID, hand)
	} else if result.TurnChanged && hand.TurnSeat >= 0 && s.watcher != nil {
		s.watcher.TurnChanged(tableID, hand.HandNum, hand.TurnSeq)
	}

	if s.notifier != nil {
		s.notifier.HandUpdated(tableID, hand)
	}
}

// settleSeats copies final stacks back onto the table seats and drops seats
// whose players left mid-hand.
func (s *GameService) settleSeats(doc *store.TableDoc) {
	for _, p := range doc.Hand.Participants {
		if i := doc.SeatOf(p.PlayerID); i >= 0 {
			doc.Seats[i].Stack = p.Stack
		}
	}
	kept := doc.Seats[:0]
	for _, seat := range doc.Seats {
		if seat.SittingOut {
			continue
		}
		kept = append(kept, seat)
	}
	doc.Seats = kept
}

// persistFrozen saves a hand that tripped the conservation check so the
// frozen state survives a restart. Best effort: a conflicting writer will
// trip the same check on its own read.
func (s *GameService) persistFrozen(ctx context.Context, tableID string, doc *store.TableDoc) {
	s.metrics.HandsFrozen.Inc()
	s.logger.Error("hand frozen", "table", tableID, "hand", doc.Hand.HandNum)
	if err := s.store.SaveTable(ctx, doc, doc.Version); err != nil {
		s.logger.Error("persist frozen hand", "table", tableID, "err", err)
	}
}

// Reveal voluntarily shows a player's hole cards after a hand ends.
func (s *GameService) Reveal(ctx context.Context, tableID, playerID string) error {
	var shown game.Event
	err := s.updateDoc(ctx, tableID, func(doc *store.TableDoc) error {
		if doc.Hand == nil || !doc.Hand.Complete {
			return game.Errorf(game.CodeGameNotActive, "no settled hand to reveal in")
		}
		seat := handSeatOf(doc.Hand, playerID)
		if seat < 0 {
			return game.Errorf(game.CodePlayerNotFound, "player %s is not in the hand", playerID)
		}
		ev, err := doc.Hand.Reveal(seat, time.Now())
		if err != nil {
			return err
		}
		shown = ev
		return nil
	})
	if err != nil {
		return err
	}
	if err := s.appendEvent(ctx, tableID, shown); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.LobbyUpdated(tableID)
	}
	return nil
}

// updateDoc runs a read-modify-save cycle with compare-and-set retries for
// mutations that carry no sequence fence of their own (seating, dealing).
func (s *GameService) updateDoc(ctx context.Context, tableID string, mutate func(*store.TableDoc) error) error {
	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		doc, err := s.store.Table(ctx, tableID)
		if err != nil {
			return err
		}
		if err := mutate(doc); err != nil {
			return err
		}
		if err := s.store.SaveTable(ctx, doc, doc.Version); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return fmt.Errorf("save table: %w", err)
		}
		if s.notifier != nil {
			s.notifier.LobbyUpdated(tableID)
		}
		return nil
	}
	return fmt.Errorf("table %s: gave up after %d attempts: %w", tableID, maxSaveAttempts, lastErr)
}

// appendEvent writes to the in-memory log and, when configured, the durable
// archive. Archive failures are logged, not surfaced: gameplay never blocks
// on the archive.
func (s *GameService) appendEvent(ctx context.Context, tableID string, ev game.Event) error {
	if err := s.events.Append(ctx, tableID, ev); err != nil {
		return err
	}
	if s.archive != nil {
		if err := s.archive.Append(ctx, tableID, ev); err != nil {
			s.logger.Error("archive event", "table", tableID, "err", err)
		}
	}
	return nil
}

func (s *GameService) archiveHand(ctx context.Context, tableID string, hand *game.Hand) {
	if s.archive == nil {
		return
	}
	results, err := json.Marshal(hand.Results)
	if err != nil {
		s.logger.Error("marshal results", "table", tableID, "hand", hand.HandNum, "err", err)
		return
	}
	if err := s.archive.ArchiveHand(ctx, tableID, hand, string(results)); err != nil {
		s.logger.Error("archive hand", "table", tableID, "hand", hand.HandNum, "err", err)
	}
}

// reject counts a rejected submission before handing the error back.
func (s *GameService) reject(err error) error {
	if code := game.CodeOf(err); code != "" {
		s.metrics.ActionsRejected.WithLabelValues(string(code)).Inc()
	}
	return err
}

// handSeatOf returns the participant seat index for a player id, or -1.
func handSeatOf(h *game.Hand, playerID string) int {
	for _, p := range h.Participants {
		if p.PlayerID == playerID {
			return p.Seat
		}
	}
	return -1
}
