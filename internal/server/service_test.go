package server

import (
	"context"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardroomhq/cardroom/internal/game"
	"github.com/cardroomhq/cardroom/internal/store"
	"github.com/cardroomhq/cardroom/internal/timer"
	"github.com/cardroomhq/cardroom/poker"
)

type testEnv struct {
	service *GameService
	orch    *Orchestrator
	clock   *quartz.Mock
	store   *store.MemoryStore
	metrics *Metrics
	tableID string
}

// newTestEnv builds a service over an in-memory store with a mocked clock
// driving turn timeouts, and opens one 10/20 table.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := log.New(io.Discard)
	metrics := NewMetrics(prometheus.NewRegistry())
	mem := store.NewMemoryStore()
	rng := rand.New(rand.NewSource(42))

	svc := NewGameService(mem, mem, nil, metrics, logger, rng)
	orch := NewOrchestrator(svc, metrics, logger, 30*time.Second)
	clock := quartz.NewMock(t)
	orch.SetScheduler(timer.NewClockScheduler(clock, orch.HandleTimeout, logger))
	svc.SetTurnWatcher(orch)

	doc, err := svc.CreateTable(context.Background(), "test", 10, 20, 6)
	require.NoError(t, err)

	return &testEnv{
		service: svc,
		orch:    orch,
		clock:   clock,
		store:   mem,
		metrics: metrics,
		tableID: doc.ID,
	}
}

func (e *testEnv) join(t *testing.T, playerID string, buyIn int) {
	t.Helper()
	require.NoError(t, e.service.JoinTable(context.Background(), e.tableID, playerID, playerID, buyIn))
}

func (e *testEnv) doc(t *testing.T) *store.TableDoc {
	t.Helper()
	doc, err := e.service.Table(context.Background(), e.tableID)
	require.NoError(t, err)
	return doc
}

// playToShowdown drives the live hand with passive actions until it settles.
func (e *testEnv) playToShowdown(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		doc := e.doc(t)
		require.NotNil(t, doc.Hand)
		if doc.Hand.Complete {
			return
		}
		seat := doc.Hand.TurnSeat
		require.GreaterOrEqual(t, seat, 0)
		actor := doc.Hand.Participants[seat]
		kind := game.Check
		if doc.Hand.AmountToCall(seat) > 0 {
			kind = game.Call
		}
		_, err := e.service.SubmitAction(ctx, e.tableID, actor.PlayerID, kind, 0)
		require.NoError(t, err)
	}
	t.Fatal("hand did not settle")
}

func TestJoinTableRules(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	env.join(t, "alice", 1000)
	assert.Error(t, env.service.JoinTable(ctx, env.tableID, "alice", "alice", 500), "double join must fail")
	assert.Error(t, env.service.JoinTable(ctx, env.tableID, "zed", "zed", 0), "zero buy-in must fail")

	for _, name := range []string{"b", "c", "d", "e", "f"} {
		env.join(t, name, 1000)
	}
	assert.Error(t, env.service.JoinTable(ctx, env.tableID, "late", "late", 1000), "seventh seat must fail")
}

func TestStartHandRequiresPlayers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.join(t, "alice", 1000)

	_, err := env.service.StartHand(ctx, env.tableID)
	assert.True(t, game.IsCode(err, game.CodeNotEnoughPlayers), "got %v", err)
}

func TestStartHandWhileInProgressRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.join(t, "alice", 1000)
	env.join(t, "bob", 1000)

	_, err := env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)

	_, err = env.service.StartHand(ctx, env.tableID)
	assert.True(t, game.IsCode(err, game.CodeGameAlreadyStarted), "got %v", err)
}

func TestSubmitActionValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.join(t, "alice", 1000)
	env.join(t, "bob", 1000)

	_, err := env.service.SubmitAction(ctx, env.tableID, "alice", game.Check, 0)
	assert.True(t, game.IsCode(err, game.CodeGameNotActive), "no hand: got %v", err)

	_, err = env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)

	doc := env.doc(t)
	waiting := doc.Hand.Participants[1-doc.Hand.TurnSeat]
	_, err = env.service.SubmitAction(ctx, env.tableID, waiting.PlayerID, game.Fold, 0)
	assert.True(t, game.IsCode(err, game.CodeNotYourTurn), "got %v", err)

	_, err = env.service.SubmitAction(ctx, env.tableID, "stranger", game.Fold, 0)
	assert.True(t, game.IsCode(err, game.CodePlayerNotFound), "got %v", err)

	rejected := testutil.ToFloat64(env.metrics.ActionsRejected.WithLabelValues(string(game.CodeNotYourTurn)))
	assert.Equal(t, 1.0, rejected)
}

func TestHandCompletionSyncsSeatsAndAllowsNextHand(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.join(t, "alice", 1000)
	env.join(t, "bob", 1000)

	_, err := env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)

	// First to act folds, the other player collects the blinds.
	doc := env.doc(t)
	actor := doc.Hand.Participants[doc.Hand.TurnSeat]
	_, err = env.service.SubmitAction(ctx, env.tableID, actor.PlayerID, game.Fold, 0)
	require.NoError(t, err)

	doc = env.doc(t)
	require.True(t, doc.Hand.Complete)

	total := 0
	for _, seat := range doc.Seats {
		total += seat.Stack
	}
	assert.Equal(t, 2000, total, "seat stacks must carry the settled result")
	assert.Equal(t, 0, env.orch.PendingTimeouts(), "settled hand must leave no timers")

	_, err = env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)
	doc = env.doc(t)
	assert.Equal(t, uint64(2), doc.Hand.HandNum)
}

func TestTurnTimeoutFoldsWhenFacingABet(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.join(t, "alice", 1000)
	env.join(t, "bob", 1000)

	_, err := env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)
	require.Equal(t, 1, env.orch.PendingTimeouts())

	// Heads-up the button owes the balance of the small blind, so an expiry
	// folds them and the hand settles.
	env.clock.Advance(30 * time.Second).MustWait(ctx)

	doc := env.doc(t)
	require.True(t, doc.Hand.Complete)
	assert.Equal(t, "fold", doc.Hand.Results[0].Reason)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.TimeoutsFired))

	total := 0
	for _, seat := range doc.Seats {
		total += seat.Stack
	}
	assert.Equal(t, 2000, total)
}

func TestTurnTimeoutChecksWhenNothingOwed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.join(t, "alice", 1000)
	env.join(t, "bob", 1000)

	_, err := env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)

	// Button completes the small blind; the big blind then owes nothing, so
	// its expiry checks and the flop comes down.
	doc := env.doc(t)
	button := doc.Hand.Participants[doc.Hand.TurnSeat]
	_, err = env.service.SubmitAction(ctx, env.tableID, button.PlayerID, game.Call, 0)
	require.NoError(t, err)

	env.clock.Advance(30 * time.Second).MustWait(ctx)

	doc = env.doc(t)
	require.False(t, doc.Hand.Complete)
	assert.Equal(t, "flop", doc.Hand.Street.String())
}

func TestDuplicateTimeoutDeliveryHasNoSecondEffect(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.join(t, "alice", 1000)
	env.join(t, "bob", 1000)

	_, err := env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)

	doc := env.doc(t)
	handNum, seq := doc.Hand.HandNum, doc.Hand.TurnSeq

	// The timer service may deliver the same task twice. The first delivery
	// resolves the turn; the redelivery must bounce off the sequence fence.
	env.orch.HandleTimeout(env.tableID, handNum, seq)
	env.orch.HandleTimeout(env.tableID, handNum, seq)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.TimeoutsStale))

	events, err := env.store.Query(ctx, env.tableID, store.EventFilter{Kind: game.EventAction})
	require.NoError(t, err)
	assert.Len(t, events, 1, "only one action may result from duplicated delivery")
}

func TestLateTimeoutForEarlierTurnIsStale(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.join(t, "alice", 1000)
	env.join(t, "bob", 1000)

	_, err := env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)

	doc := env.doc(t)
	staleSeq := doc.Hand.TurnSeq
	actor := doc.Hand.Participants[doc.Hand.TurnSeat]
	_, err = env.service.SubmitAction(ctx, env.tableID, actor.PlayerID, game.Call, 0)
	require.NoError(t, err)

	// A delivery for the turn that was already resolved by the player.
	env.orch.HandleTimeout(env.tableID, doc.Hand.HandNum, staleSeq)

	fresh := env.doc(t)
	assert.False(t, fresh.Hand.Complete)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.TimeoutsStale))
}

func TestAllInBlindsSettleAtDeal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.join(t, "alice", 20)
	env.join(t, "bob", 10)

	// Stacks match the blinds exactly: both players are all-in the moment
	// the blinds post, so the deal itself must run the board and settle
	// instead of leaving a hand nobody can ever act on.
	view, err := env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)
	require.True(t, view.Complete)
	assert.Equal(t, -1, view.TurnSeat)

	doc := env.doc(t)
	require.True(t, doc.Hand.Complete)
	assert.Equal(t, 0, env.orch.PendingTimeouts(), "settled deal must schedule no timer")

	total := 0
	for _, seat := range doc.Seats {
		total += seat.Stack
	}
	assert.Equal(t, 30, total, "seat stacks must carry the settled result")
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.HandsCompleted))

	shown, err := env.store.Query(ctx, env.tableID, store.EventFilter{Kind: game.EventShownCards})
	require.NoError(t, err)
	assert.Len(t, shown, 2, "runout must reveal both players")
}

func TestActionReadBeforeRedealIsStale(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.join(t, "alice", 2000)
	env.join(t, "bob", 2000)

	_, err := env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)

	doc := env.doc(t)
	require.Equal(t, uint64(1), doc.Hand.HandNum)
	firstSeat := doc.Hand.TurnSeat
	firstActor := doc.Hand.Participants[firstSeat].PlayerID
	pinnedSeq := doc.Hand.TurnSeq

	// The first turn expires, folding its actor and settling the hand, and
	// two more players sit down before the next deal.
	env.orch.HandleTimeout(env.tableID, 1, pinnedSeq)
	require.True(t, env.doc(t).Hand.Complete)
	env.join(t, "carol", 1000)
	env.join(t, "dave", 1000)

	_, err = env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)
	doc = env.doc(t)
	require.Equal(t, uint64(2), doc.Hand.HandNum)
	// Four-handed the fresh hand opens on the same seat index with the same
	// restarted sequence number, so only the hand number tells the two
	// turns apart.
	require.Equal(t, firstSeat, doc.Hand.TurnSeat)
	require.Equal(t, pinnedSeq, doc.Hand.TurnSeq)

	// A raise whose pre-read saw hand 1 must not land on hand 2.
	_, err = env.service.applyFenced(ctx, env.tableID, firstActor, firstSeat, 1, pinnedSeq, game.Raise, 100)
	assert.True(t, game.IsCode(err, game.CodeStaleAction), "got %v", err)

	fresh := env.doc(t)
	assert.Equal(t, pinnedSeq, fresh.Hand.TurnSeq, "stale raise must not advance the new hand")
	assert.Equal(t, 20, fresh.Hand.Betting.CurrentBet)
	assert.Equal(t, 0, fresh.Hand.Participants[firstSeat].Bet)
}

func TestLateDeliveryKeepsCurrentTimeoutScheduled(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.join(t, "alice", 1000)
	env.join(t, "bob", 1000)

	_, err := env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)

	doc := env.doc(t)
	oldSeq := doc.Hand.TurnSeq
	actor := doc.Hand.Participants[doc.Hand.TurnSeat]
	_, err = env.service.SubmitAction(ctx, env.tableID, actor.PlayerID, game.Call, 0)
	require.NoError(t, err)
	require.Equal(t, 1, env.orch.PendingTimeouts())

	// The cancelled task for the resolved turn arrives anyway. It must not
	// evict the entry guarding the turn that is actually live.
	env.orch.HandleTimeout(env.tableID, doc.Hand.HandNum, oldSeq)
	assert.Equal(t, 1, env.orch.PendingTimeouts(), "live turn's timeout must stay scheduled")
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.TimeoutsStale))

	// And it still fires: the big blind owes nothing, so expiry checks.
	env.clock.Advance(30 * time.Second).MustWait(ctx)
	fresh := env.doc(t)
	assert.Equal(t, "flop", fresh.Hand.Street.String())
}

func TestLeaveDuringHandSitsOutThenReleasesSeat(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.join(t, "alice", 1000)
	env.join(t, "bob", 1000)
	env.join(t, "carol", 1000)

	_, err := env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)

	require.NoError(t, env.service.LeaveTable(ctx, env.tableID, "carol"))
	doc := env.doc(t)
	require.Len(t, doc.Seats, 3, "seat must stay through the live hand")
	assert.True(t, doc.Seats[doc.SeatOf("carol")].SittingOut)

	// Carol still owes actions in the live hand; fold her out, then fold the
	// next actor to settle.
	for i := 0; i < 3; i++ {
		doc = env.doc(t)
		if doc.Hand.Complete {
			break
		}
		actor := doc.Hand.Participants[doc.Hand.TurnSeat]
		_, err = env.service.SubmitAction(ctx, env.tableID, actor.PlayerID, game.Fold, 0)
		require.NoError(t, err)
	}

	doc = env.doc(t)
	require.True(t, doc.Hand.Complete)
	assert.Equal(t, -1, doc.SeatOf("carol"), "seat released once the hand settled")
	assert.Len(t, doc.Seats, 2)
}

func TestJoinDuringHandWaitsForNextDeal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.join(t, "alice", 1000)
	env.join(t, "bob", 1000)

	_, err := env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)

	env.join(t, "carol", 1000)
	doc := env.doc(t)
	assert.Len(t, doc.Hand.Participants, 2, "late joiner must not enter the live hand")

	actor := doc.Hand.Participants[doc.Hand.TurnSeat]
	_, err = env.service.SubmitAction(ctx, env.tableID, actor.PlayerID, game.Fold, 0)
	require.NoError(t, err)

	_, err = env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)
	doc = env.doc(t)
	assert.Len(t, doc.Hand.Participants, 3)
}

func TestShowdownRevealsAndHistoryFilters(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.join(t, "alice", 1000)
	env.join(t, "bob", 1000)

	_, err := env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)
	env.playToShowdown(t)

	doc := env.doc(t)
	for _, p := range doc.Hand.Participants {
		assert.True(t, p.Revealed, "showdown must reveal seat %d", p.Seat)
	}

	hands, err := env.service.HandHistory(ctx, env.tableID, "alice", "", 10)
	require.NoError(t, err)
	require.Len(t, hands, 1)
	assert.Equal(t, uint64(1), hands[0].HandNum)
	assert.NotEmpty(t, hands[0].HoleCards)
	assert.NotEmpty(t, hands[0].Actions)

	// Narrowing to the entry's own category keeps it; any other drops it.
	same, err := env.service.HandHistory(ctx, env.tableID, "alice", hands[0].Category, 10)
	require.NoError(t, err)
	assert.Len(t, same, 1)

	other := "Premium"
	if hands[0].Category == "Premium" {
		other = "Trash"
	}
	none, err := env.service.HandHistory(ctx, env.tableID, "alice", poker.HoleCardCategory(other), 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSpectatorEventNeverTouchesHandState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.join(t, "alice", 1000)
	env.join(t, "bob", 1000)

	_, err := env.service.StartHand(ctx, env.tableID)
	require.NoError(t, err)
	before := env.doc(t)

	require.NoError(t, env.service.AddSpectator(ctx, env.tableID, "railbird"))

	after := env.doc(t)
	assert.Equal(t, before.Hand.TurnSeq, after.Hand.TurnSeq)
	assert.Equal(t, before.Version, after.Version, "spectating must not write the table doc")

	events, err := env.store.Query(ctx, env.tableID, store.EventFilter{Kind: game.EventSpectatorJoin})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestListTables(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.join(t, "alice", 1000)

	tables := env.service.ListTables(ctx)
	require.Len(t, tables, 1)
	assert.Equal(t, "test", tables[0].Name)
	assert.Equal(t, 1, tables[0].PlayerCount)
	assert.Equal(t, "10/20", tables[0].Stakes)
	assert.False(t, tables[0].HandActive)
}
