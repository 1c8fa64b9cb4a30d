package game

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	text string
	err  error
}

func (s *stubGenerator) GenerateRoast(ctx context.Context, attacker, defender Profile) (string, error) {
	return s.text, s.err
}

type stubJudge struct {
	mu        sync.Mutex
	damage    int
	rationale string
	err       error
	calls     int
}

func (s *stubJudge) JudgeRoast(ctx context.Context, roast string, defender Profile) (int, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.damage, s.rationale, s.err
}

type stubFetcher struct {
	fail bool
}

func (s *stubFetcher) FetchProfile(ctx context.Context, name, ref string) Profile {
	if s.fail && ref != "" {
		return Profile{Name: name, SourceErrors: []string{"fetch failed: " + ref}}
	}
	return Profile{Name: name, Bio: ref, Headline: name + " the Great"}
}

type fixture struct {
	orc   *Orchestrator
	store *Store
	gen   *stubGenerator
	judge *stubJudge
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: NewStore(),
		gen:   &stubGenerator{text: "Your bio reads like a cover letter nobody asked for."},
		judge: &stubJudge{damage: 30, rationale: "specific and mean"},
	}
	f.orc = NewOrchestrator(OrchestratorOptions{
		Store:     f.store,
		Fetcher:   &stubFetcher{},
		Generator: f.gen,
		Judge:     f.judge,
	})
	return f
}

func (f *fixture) start(t *testing.T) GameState {
	t.Helper()
	st, err := f.orc.StartGame(context.Background(), "Alice", "", "Bob", "")
	require.NoError(t, err)
	return st
}

func TestStartGame(t *testing.T) {
	f := newFixture(t)
	st := f.start(t)

	assert.Equal(t, StatusInProgress, st.Status)
	assert.Equal(t, Player1, st.CurrentTurn)
	assert.Equal(t, "Alice the Great", st.Player1.Profile.Headline)
	assert.Equal(t, "Bob the Great", st.Player2.Profile.Headline)
}

func TestStartGameRequiresNames(t *testing.T) {
	f := newFixture(t)
	_, err := f.orc.StartGame(context.Background(), "Alice", "", "  ", "")
	assert.Error(t, err)
}

func TestStartGameFetchFailureDoesNotAbort(t *testing.T) {
	store := NewStore()
	orc := NewOrchestrator(OrchestratorOptions{
		Store:     store,
		Fetcher:   &stubFetcher{fail: true},
		Generator: &stubGenerator{text: "x"},
		Judge:     &stubJudge{damage: 5},
	})

	st, err := orc.StartGame(context.Background(), "Alice", "", "Bob", "https://example.com/broken")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, st.Status)
	assert.Empty(t, st.Player1.Profile.SourceErrors)
	require.NotEmpty(t, st.Player2.Profile.SourceErrors)
	assert.Empty(t, st.Player2.Profile.Headline)

	// Game proceeds normally with the incomplete profile.
	_, err = orc.GenerateRoast(context.Background(), st.SessionID, Player1)
	require.NoError(t, err)
}

func TestGenerateRoastDraftDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	st := f.start(t)

	text, err := f.orc.GenerateRoast(context.Background(), st.SessionID, Player1)
	require.NoError(t, err)
	assert.Equal(t, f.gen.text, text)

	after, err := f.store.Get(st.SessionID)
	require.NoError(t, err)
	assert.Equal(t, st, after)
}

func TestGenerateRoastWrongTurn(t *testing.T) {
	f := newFixture(t)
	st := f.start(t)

	_, err := f.orc.GenerateRoast(context.Background(), st.SessionID, Player2)
	assert.ErrorIs(t, err, ErrWrongTurn)
}

func TestGenerateRoastFallsBackOnError(t *testing.T) {
	f := newFixture(t)
	f.gen.err = errors.New("model unavailable")
	st := f.start(t)

	text, err := f.orc.GenerateRoast(context.Background(), st.SessionID, Player1)
	require.NoError(t, err)
	assert.Equal(t, FallbackRoast, text)
}

func TestGenerateRoastUnknownSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.orc.GenerateRoast(context.Background(), "missing", Player1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReviewAndApplyScenario(t *testing.T) {
	// Player1 100hp, Player2 100hp, turn=1; damage 30 on Player2.
	f := newFixture(t)
	st := f.start(t)

	draft, err := f.orc.GenerateRoast(context.Background(), st.SessionID, Player1)
	require.NoError(t, err)

	updated, damage, rationale, err := f.orc.ReviewAndApply(context.Background(), st.SessionID, draft, Player2)
	require.NoError(t, err)
	assert.Equal(t, 30, damage)
	assert.Equal(t, "specific and mean", rationale)
	assert.Equal(t, 70, updated.Player2.Health)
	assert.Equal(t, 100, updated.Player1.Health)
	assert.Equal(t, Player2, updated.CurrentTurn)
	assert.Equal(t, 2, updated.RoundNumber)
	assert.Equal(t, StatusInProgress, updated.Status)
	assert.Equal(t, draft, updated.LastRoast)
	require.NotNil(t, updated.LastDamage)
	assert.Equal(t, 30, *updated.LastDamage)
	assert.Nil(t, updated.Winner)
}

func TestReviewAndApplyClampsAtZeroAndFinishes(t *testing.T) {
	// Player2 at 10hp, judge scores 45: health clamps to 0, attacker wins.
	f := newFixture(t)
	st := f.start(t)
	require.NoError(t, f.store.WithLock(st.SessionID, func(g *GameState) error {
		g.Player2.Health = 10
		return nil
	}))
	f.judge.damage = 45

	updated, damage, _, err := f.orc.ReviewAndApply(context.Background(), st.SessionID, "finisher", Player2)
	require.NoError(t, err)
	assert.Equal(t, 10, damage, "damage is clamped to remaining health")
	assert.Equal(t, 0, updated.Player2.Health)
	assert.Equal(t, StatusFinished, updated.Status)
	require.NotNil(t, updated.Winner)
	assert.Equal(t, Player1, *updated.Winner)
	assert.Equal(t, Player1, updated.CurrentTurn, "turn does not advance on the finishing blow")
	assert.Equal(t, 1, updated.RoundNumber)
}

func TestReviewAndApplyNegativeDamageFloorsAtZero(t *testing.T) {
	f := newFixture(t)
	st := f.start(t)
	f.judge.damage = -20

	updated, damage, _, err := f.orc.ReviewAndApply(context.Background(), st.SessionID, "gentle", Player2)
	require.NoError(t, err)
	assert.Equal(t, 0, damage)
	assert.Equal(t, 100, updated.Player2.Health)
	assert.Equal(t, Player2, updated.CurrentTurn)
}

func TestReviewAndApplyWrongDefender(t *testing.T) {
	// Defender equal to currentTurn is rejected with no mutation.
	f := newFixture(t)
	st := f.start(t)

	_, _, _, err := f.orc.ReviewAndApply(context.Background(), st.SessionID, "roast", Player1)
	assert.ErrorIs(t, err, ErrWrongTurn)

	after, err := f.store.Get(st.SessionID)
	require.NoError(t, err)
	assert.Equal(t, st, after)
	assert.Equal(t, 0, f.judge.calls, "judge must not be consulted for a rejected operation")
}

func TestReviewAndApplyAfterFinishIsGameOver(t *testing.T) {
	f := newFixture(t)
	st := f.start(t)
	f.judge.damage = 100

	finished, _, _, err := f.orc.ReviewAndApply(context.Background(), st.SessionID, "obliteration", Player2)
	require.NoError(t, err)
	require.Equal(t, StatusFinished, finished.Status)

	_, _, _, err = f.orc.ReviewAndApply(context.Background(), st.SessionID, "again", Player1)
	assert.ErrorIs(t, err, ErrGameOver)
	_, err = f.orc.GenerateRoast(context.Background(), st.SessionID, Player1)
	assert.ErrorIs(t, err, ErrGameOver)

	after, err := f.store.Get(st.SessionID)
	require.NoError(t, err)
	assert.Equal(t, finished, after, "terminal state never changes")
}

func TestReviewAndApplyJudgeFailureFallsBack(t *testing.T) {
	f := newFixture(t)
	f.judge.err = errors.New("judge offline")
	st := f.start(t)

	updated, damage, rationale, err := f.orc.ReviewAndApply(context.Background(), st.SessionID, "roast", Player2)
	require.NoError(t, err, "upstream failure must not surface to the caller")
	assert.Equal(t, FallbackDamage, damage)
	assert.Equal(t, FallbackRationale, rationale)
	assert.Equal(t, 100-FallbackDamage, updated.Player2.Health)
	assert.Equal(t, 2, updated.RoundNumber)
}

func TestTurnsAlternateUntilSomeoneDrops(t *testing.T) {
	f := newFixture(t)
	f.judge.damage = 40
	st := f.start(t)

	expected := []struct {
		defender PlayerNum
		p1       int
		p2       int
	}{
		{Player2, 100, 60},
		{Player1, 60, 60},
		{Player2, 60, 20},
		{Player1, 20, 20},
		{Player2, 20, 0}, // clamped from 40, game over
	}
	for i, step := range expected {
		updated, _, _, err := f.orc.ReviewAndApply(context.Background(), st.SessionID, "roast", step.defender)
		require.NoError(t, err, "step %d", i)
		assert.Equal(t, step.p1, updated.Player1.Health, "step %d", i)
		assert.Equal(t, step.p2, updated.Player2.Health, "step %d", i)
		assert.GreaterOrEqual(t, updated.Player1.Health, 0)
		assert.LessOrEqual(t, updated.Player1.Health, StartingHealth)
		assert.GreaterOrEqual(t, updated.Player2.Health, 0)
		assert.LessOrEqual(t, updated.Player2.Health, StartingHealth)
	}

	final, err := f.store.Get(st.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, final.Status)
	require.NotNil(t, final.Winner)
	assert.Equal(t, Player1, *final.Winner)
	assert.Equal(t, 5, final.RoundNumber, "four applied rounds plus the starting round; the finisher does not increment")
}

func TestConcurrentReviewAndApplySingleApplication(t *testing.T) {
	// Two racing applies for the same round: exactly one may win.
	f := newFixture(t)
	st := f.start(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _, errs[i] = f.orc.ReviewAndApply(context.Background(), st.SessionID, "same-round roast", Player2)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrWrongTurn)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one application per round")

	after, err := f.store.Get(st.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 70, after.Player2.Health, "one round's worth of damage, not two")
	assert.Equal(t, 2, after.RoundNumber)
	assert.Equal(t, 1, f.judge.calls)
}

func TestAttackComposedFlow(t *testing.T) {
	f := newFixture(t)
	st := f.start(t)

	updated, roast, damage, rationale, err := f.orc.Attack(context.Background(), st.SessionID, Player1)
	require.NoError(t, err)
	assert.Equal(t, f.gen.text, roast)
	assert.Equal(t, 30, damage)
	assert.Equal(t, "specific and mean", rationale)
	assert.Equal(t, 70, updated.Player2.Health)
	assert.Equal(t, Player2, updated.CurrentTurn)
}

func TestPlayerNumHelpers(t *testing.T) {
	assert.Equal(t, Player2, Player1.Opponent())
	assert.Equal(t, Player1, Player2.Opponent())
	assert.True(t, Player1.Valid())
	assert.True(t, Player2.Valid())
	assert.False(t, PlayerNum(0).Valid())
	assert.False(t, PlayerNum(3).Valid())
}
