package game

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/beezo-bot/beezo/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChannel = "chan-1"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type harness struct {
	reg     *Registry
	msgr    *recordingMessenger
	source  *fakeSource
	history *fakeHistory
}

func newHarness() *harness {
	h := &harness{
		msgr:    &recordingMessenger{},
		source:  newFakeSource(),
		history: &fakeHistory{},
	}
	h.reg = NewRegistry(nil, SessionOptions{
		Messenger: h.msgr,
		Events:    h.source,
		History:   h.history,
		Logger:    quietLogger(),
	})
	return h
}

// seat creates a lobby owned by ids[0] and joins the rest.
func (h *harness) seat(t *testing.T, rules Rules, ids ...string) *Session {
	t.Helper()
	s, err := h.reg.Create(testChannel, rules, SessionOptions{OwnerID: ids[0], OwnerName: ids[0]})
	require.NoError(t, err)
	for _, id := range ids[1:] {
		_, err := s.Join(id, id)
		require.NoError(t, err)
	}
	return s
}

func (h *harness) started(t *testing.T, rules Rules, ids ...string) *Session {
	t.Helper()
	s := h.seat(t, rules, ids...)
	_, err := s.Start(ids[0])
	require.NoError(t, err)
	return s
}

func TestJoinKeepsRosterDistinct(t *testing.T) {
	h := newHarness()
	s := h.seat(t, newStubRules(2, 5), "A", "B", "C", "D")

	_, err := s.Join("B", "B")
	assert.ErrorIs(t, err, ErrAlreadyJoined)
	_, err = s.Join("A", "A")
	assert.ErrorIs(t, err, ErrAlreadyJoined)
	assert.Len(t, s.Snapshot().Players, 4)

	_, err = s.Join("E", "E")
	require.NoError(t, err)
	_, err = s.Join("F", "F")
	assert.ErrorIs(t, err, ErrGameFull)

	ids := map[string]bool{}
	for _, p := range s.Snapshot().Players {
		ids[p.ID] = true
	}
	assert.Len(t, ids, 5)
}

func TestStartBelowMinimumStaysInLobby(t *testing.T) {
	h := newHarness()
	s := h.seat(t, newStubRules(2, 4), "A")

	_, err := s.Start("A")
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)
	assert.Equal(t, PhaseLobby, s.Phase())
	assert.False(t, s.turns.Pending())
}

func TestStartRequiresOwner(t *testing.T) {
	h := newHarness()
	s := h.seat(t, newStubRules(2, 4), "A", "B")

	_, err := s.Start("B")
	assert.ErrorIs(t, err, ErrNotOwner)

	notes, err := s.Start("A")
	require.NoError(t, err)
	assert.Equal(t, PhaseActive, s.Phase())
	assert.Equal(t, "dealt", notes[0].Content)

	_, err = s.Start("A")
	assert.ErrorIs(t, err, ErrInProgress)
	_, err = s.Join("C", "C")
	assert.ErrorIs(t, err, ErrInProgress)
}

func TestActGuards(t *testing.T) {
	h := newHarness()
	s := h.seat(t, newStubRules(2, 4), "A", "B")

	_, err := s.Act("A", "A", Action{Name: "good"})
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = s.Start("A")
	require.NoError(t, err)

	_, err = s.Act("Z", "Z", Action{Name: "good"})
	assert.ErrorIs(t, err, ErrNotPlaying)
	_, err = s.Act("B", "B", Action{Name: "good"})
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestValidActionAdvancesTurnAndRearms(t *testing.T) {
	h := newHarness()
	s := h.started(t, newStubRules(2, 6), "A", "B", "C", "D")

	for i := 0; i < 10; i++ {
		before := s.Snapshot()
		gen := s.turns.Generation()

		_, err := s.Act(before.Current, before.Current, Action{Name: "good"})
		require.NoError(t, err)

		after := s.Snapshot()
		assert.Equal(t, (before.Turn+before.Direction+4)%4, after.Turn)
		assert.Greater(t, s.turns.Generation(), gen)
		assert.False(t, s.turns.Current(gen), "old timer must be dead")
		assert.True(t, s.turns.Pending())
	}
}

func TestStaleTimerAfterActionIsNoop(t *testing.T) {
	h := newHarness()
	rules := newStubRules(2, 4)
	s := h.started(t, rules, "A", "B")

	stale := s.turns.Generation()
	_, err := s.Act("A", "A", Action{Name: "good"})
	require.NoError(t, err)

	s.onTurnTimeout(stale)

	assert.Equal(t, 1, s.Snapshot().Turn)
	assert.Equal(t, 0, rules.timeouts)
	assert.Empty(t, h.msgr.all())
}

func TestTwoPlayerScenario(t *testing.T) {
	h := newHarness()
	s := h.started(t, newStubRules(2, 2), "A", "B")
	assert.Equal(t, 0, s.Snapshot().Turn)

	_, err := s.Act("A", "A", Action{Name: "good"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Snapshot().Turn)

	s.onTurnTimeout(s.turns.Generation())

	snap := s.Snapshot()
	assert.Equal(t, 0, snap.Turn)
	assert.Equal(t, "A", snap.Current)
	assert.Equal(t, 1, h.msgr.countContaining("turn was skipped"))
	assert.Equal(t, 1, h.msgr.countContaining(Mention("B")+"'s turn was skipped"))
}

func TestTurnTimerFiresAsynchronously(t *testing.T) {
	h := newHarness()
	rules := newStubRules(2, 2)
	rules.settings.TurnTimeout = 40 * time.Millisecond
	s := h.started(t, rules, "A", "B")

	require.Eventually(t, func() bool { return s.Snapshot().Turn == 1 }, time.Second, 5*time.Millisecond)
	_, err := s.ForceEnd(ReasonCancelled)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, h.msgr.countContaining(Mention("A")+"'s turn was skipped"), 1)
}

func TestTimeoutRacingActionAdvancesOnce(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := newHarness()
		s := h.started(t, newStubRules(2, 4), "A", "B", "C")
		gen := s.turns.Generation()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.onTurnTimeout(gen)
		}()
		go func() {
			defer wg.Done()
			_, _ = s.Act("A", "A", Action{Name: "good"})
		}()
		wg.Wait()

		require.Equal(t, 1, s.Snapshot().Turn, "iteration %d", i)
		_, err := s.ForceEnd(ReasonCancelled)
		require.NoError(t, err)
	}
}

func TestForceEndSoloPlayer(t *testing.T) {
	h := newHarness()
	rules := newStubRules(1, 1)
	rules.settings.TurnTimeout = 30 * time.Millisecond
	s := h.started(t, rules, "solo")
	armed := s.turns.Generation()

	notes, err := s.ForceEnd(ReasonCancelled)
	require.NoError(t, err)
	assert.NotEmpty(t, notes)
	assert.Equal(t, PhaseEnded, s.Phase())
	assert.Equal(t, ReasonCancelled, s.EndReason())

	_, err = h.reg.Get(testChannel)
	assert.ErrorIs(t, err, ErrNotFound)

	before := len(h.msgr.all())
	assert.NotPanics(t, func() { s.onTurnTimeout(armed) })
	time.Sleep(80 * time.Millisecond)
	assert.Len(t, h.msgr.all(), before)
	assert.Equal(t, 0, rules.timeouts)

	_, err = s.Act("solo", "solo", Action{Name: "good"})
	assert.ErrorIs(t, err, ErrSessionEnded)
	_, err = s.ForceEnd(ReasonCancelled)
	assert.ErrorIs(t, err, ErrSessionEnded)
	_, err = s.Join("x", "x")
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestInvalidActionKeepsTimerAndSpendsChances(t *testing.T) {
	h := newHarness()
	rules := newStubRules(2, 4)
	rules.settings.Chances = 3
	s := h.started(t, rules, "A", "B")
	gen := s.turns.Generation()

	for i := 0; i < 2; i++ {
		_, err := s.Act("A", "A", Action{Name: "bad"})
		assert.ErrorIs(t, err, ErrInvalidAction)
	}
	assert.Equal(t, gen, s.turns.Generation())
	assert.Equal(t, 0, s.Snapshot().Turn)
	assert.Equal(t, 1, s.limiter.Remaining("A"))

	notes, err := s.Act("A", "A", Action{Name: "bad"})
	var invalid *InvalidActionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "that move is not allowed", invalid.Reason)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Content, "out of chances")
	assert.True(t, s.Snapshot().Players[0].Excluded)

	_, err = s.Act("A", "A", Action{Name: "good"})
	assert.ErrorIs(t, err, ErrNoChancesLeft)
	assert.Equal(t, PhaseActive, s.Phase())
}

func TestValidActionRestoresChances(t *testing.T) {
	h := newHarness()
	rules := newStubRules(2, 4)
	rules.settings.Chances = 3
	s := h.started(t, rules, "A", "B")

	_, _ = s.Act("A", "A", Action{Name: "bad"})
	_, _ = s.Act("A", "A", Action{Name: "bad"})
	_, err := s.Act("A", "A", Action{Name: "good"})
	require.NoError(t, err)
	assert.Equal(t, 3, s.limiter.Remaining("A"))
}

func TestCooldownRejectsRapidActions(t *testing.T) {
	h := newHarness()
	rules := newStubRules(2, 4)
	rules.settings.Cooldown = 5 * time.Second
	s := h.started(t, rules, "A", "B")
	t0 := time.Unix(1_700_000_000, 0)

	_, err := s.Act("A", "A", Action{Name: "good", At: t0})
	require.NoError(t, err)
	_, err = s.Act("B", "B", Action{Name: "good", At: t0})
	require.NoError(t, err)

	_, err = s.Act("A", "A", Action{Name: "good", At: t0.Add(time.Second)})
	assert.ErrorIs(t, err, ErrCooldown)
	assert.Equal(t, 0, s.Snapshot().Turn)

	_, err = s.Act("A", "A", Action{Name: "good", At: t0.Add(6 * time.Second)})
	require.NoError(t, err)
}

func TestReverseAndSkip(t *testing.T) {
	h := newHarness()
	s := h.started(t, newStubRules(2, 4), "A", "B", "C")

	_, err := s.Act("A", "A", Action{Name: "reverse"})
	require.NoError(t, err)
	snap := s.Snapshot()
	assert.Equal(t, -1, snap.Direction)
	assert.Equal(t, "C", snap.Current)

	_, err = s.Act("C", "C", Action{Name: "skip"})
	require.NoError(t, err)
	assert.Equal(t, "A", s.Snapshot().Current)
}

func TestWinEndsAndUnregisters(t *testing.T) {
	h := newHarness()
	rules := newStubRules(2, 4)
	s := h.started(t, rules, "A", "B")

	notes, err := s.Act("A", "A", Action{Name: "win"})
	require.NoError(t, err)
	assert.Equal(t, PhaseEnded, s.Phase())
	assert.Equal(t, ReasonWon, s.EndReason())
	assert.Equal(t, "A", s.Snapshot().Winner)
	assert.Contains(t, notes[len(notes)-1].Content, "wins")
	assert.Equal(t, []EndReason{ReasonWon}, rules.finished)
	assert.False(t, s.turns.Pending())

	_, err = h.reg.Get(testChannel)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTimeoutForfeitAbandonsBelowMinimum(t *testing.T) {
	h := newHarness()
	rules := newStubRules(2, 4)
	rules.settings.TimeoutPolicy = TimeoutForfeit
	s := h.started(t, rules, "A", "B", "C")

	s.onTurnTimeout(s.turns.Generation())
	snap := s.Snapshot()
	require.Len(t, snap.Players, 2)
	assert.Equal(t, "B", snap.Current)
	assert.True(t, s.turns.Pending())

	s.onTurnTimeout(s.turns.Generation())
	assert.Equal(t, PhaseEnded, s.Phase())
	assert.Equal(t, ReasonAbandoned, s.EndReason())
	assert.Equal(t, 1, h.msgr.countContaining("abandoned"))
}

func TestTimeoutCanFinishGame(t *testing.T) {
	h := newHarness()
	rules := newStubRules(1, 4)
	rules.timeoutEnds = true
	s := h.started(t, rules, "A", "B")

	s.onTurnTimeout(s.turns.Generation())
	assert.Equal(t, PhaseEnded, s.Phase())
	assert.Equal(t, ReasonCompleted, s.EndReason())
	assert.False(t, s.turns.Pending())
	_, err := h.reg.Get(testChannel)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLeaveDuringActiveRepairsTurn(t *testing.T) {
	h := newHarness()
	s := h.started(t, newStubRules(2, 4), "A", "B", "C", "D")

	_, err := s.Act("A", "A", Action{Name: "good"})
	require.NoError(t, err)
	assert.Equal(t, "B", s.Snapshot().Current)

	// Someone seated before the current player leaves.
	_, err = s.Leave("A")
	require.NoError(t, err)
	assert.Equal(t, "B", s.Snapshot().Current)

	// The current player leaves; the next one takes over.
	_, err = s.Leave("B")
	require.NoError(t, err)
	assert.Equal(t, "C", s.Snapshot().Current)

	_, err = s.Leave("Z")
	assert.ErrorIs(t, err, ErrNotPlaying)

	_, err = s.Leave("D")
	require.NoError(t, err)
	assert.Equal(t, ReasonAbandoned, s.EndReason())
}

func TestLeaveLobby(t *testing.T) {
	h := newHarness()
	s := h.seat(t, newStubRules(2, 4), "A", "B")

	_, err := s.Leave("B")
	require.NoError(t, err)
	assert.Len(t, s.Snapshot().Players, 1)

	_, err = s.Leave("A")
	require.NoError(t, err)
	assert.Equal(t, ReasonCancelled, s.EndReason())
}

func TestLobbyTimeoutAbandons(t *testing.T) {
	h := newHarness()
	rules := newStubRules(2, 4)
	rules.settings.LobbyTimeout = 20 * time.Millisecond
	s := h.seat(t, rules, "A")

	require.Eventually(t, func() bool { return s.Phase() == PhaseEnded }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ReasonAbandoned, s.EndReason())
	require.Eventually(t, func() bool { return h.msgr.countContaining("Nobody started") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.reg.Len())
}

func TestStartCancelsLobbyTimeout(t *testing.T) {
	h := newHarness()
	rules := newStubRules(2, 4)
	rules.settings.LobbyTimeout = 30 * time.Millisecond
	s := h.started(t, rules, "A", "B")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, PhaseActive, s.Phase())
}

func TestDealFailureEndsSession(t *testing.T) {
	h := newHarness()
	rules := newStubRules(2, 4)
	rules.dealErr = ErrProviderExhausted
	s := h.seat(t, rules, "A", "B")

	_, err := s.Start("A")
	assert.ErrorIs(t, err, ErrProviderExhausted)
	assert.Equal(t, ReasonFailed, s.EndReason())
}

func TestOpenJoinAdmitsOnFirstAction(t *testing.T) {
	h := newHarness()
	rules := newStubRules(1, 0)
	rules.settings.OpenJoin = true
	rules.settings.TurnOrder = TurnOpen
	s := h.started(t, rules, "A")

	_, err := s.Act("Z", "Zed", Action{Name: "score"})
	require.NoError(t, err)
	snap := s.Snapshot()
	require.Len(t, snap.Players, 2)
	assert.Equal(t, "Zed", snap.Players[1].Name)
	assert.Equal(t, 1, snap.Players[1].Score)
}

func TestCollectorDrivesActions(t *testing.T) {
	h := newHarness()
	base := newStubRules(2, 4)
	base.settings.TurnOrder = TurnOpen
	s := h.started(t, chatRules{base}, "A", "B")
	require.Equal(t, 1, h.source.subscribers(testChannel))

	h.source.Emit(Event{ChannelID: testChannel, UserID: "B", Content: "!score"})
	assert.Equal(t, 1, s.Snapshot().Moves)

	h.source.Emit(Event{ChannelID: testChannel, UserID: "B", Content: "just chatting"})
	h.source.Emit(Event{ChannelID: testChannel, UserID: "X", Content: "!score"})
	assert.Equal(t, 1, s.Snapshot().Moves)

	h.source.Emit(Event{ChannelID: testChannel, UserID: "B", Content: "!bad"})
	assert.Equal(t, 1, h.msgr.countContaining(Mention("B")+" that move is not allowed"))

	_, err := s.ForceEnd(ReasonCancelled)
	require.NoError(t, err)
	assert.Equal(t, 0, h.source.subscribers(testChannel))

	h.source.Emit(Event{ChannelID: testChannel, UserID: "B", Content: "!score"})
	assert.Equal(t, 1, s.Snapshot().Moves)
}

func TestCollectorWindowEndsSession(t *testing.T) {
	h := newHarness()
	base := newStubRules(2, 4)
	base.settings.TurnOrder = TurnOpen
	base.settings.SessionTimeout = 30 * time.Millisecond
	s := h.started(t, chatRules{base}, "A", "B")

	require.Eventually(t, func() bool { return s.Phase() == PhaseEnded }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ReasonTimedOut, s.EndReason())
	require.Eventually(t, func() bool { return h.msgr.countContaining("Time's up") == 1 }, time.Second, 5*time.Millisecond)
}

func TestSessionDeadlineWithoutCollector(t *testing.T) {
	h := newHarness()
	rules := newStubRules(2, 4)
	rules.settings.SessionTimeout = 30 * time.Millisecond
	s := h.started(t, rules, "A", "B")

	require.Eventually(t, func() bool { return s.Phase() == PhaseEnded }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ReasonTimedOut, s.EndReason())
}

func TestTransitionsAreRecorded(t *testing.T) {
	h := newHarness()
	s := h.started(t, newStubRules(2, 4), "A", "B")

	_, err := s.Act("A", "A", Action{Name: "good"})
	require.NoError(t, err)
	_, err = s.ForceEnd(ReasonCancelled)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.history.count(models.ActionSessionEnd) == 1 &&
			h.history.count(models.ActionPlayerAct) == 1 &&
			h.history.count(models.ActionSessionStart) == 1 &&
			h.history.count(models.ActionPlayerJoin) == 1
	}, time.Second, 5*time.Millisecond)
}
