package game

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Generator produces roast text aimed at the defender. Implementations may be
// slow or unavailable; the orchestrator absorbs their failures.
type Generator interface {
	GenerateRoast(ctx context.Context, attacker, defender Profile) (string, error)
}

// Judge scores a roast into a damage amount plus a short rationale.
type Judge interface {
	JudgeRoast(ctx context.Context, roast string, defender Profile) (damage int, rationale string, err error)
}

// ProfileFetcher resolves a player name and optional profile reference into a
// normalized Profile. It never fails: errors are recorded on the profile.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, name, ref string) Profile
}

// Deterministic substitutes used when a model call fails or times out. They
// flow through the same apply path as real responses, so the state machine
// never notices the upstream was down.
const (
	FallbackRoast     = "Your profile was so bland even the AI refused to engage with it."
	FallbackDamage    = 10
	FallbackRationale = "The judge was unavailable, so a standard hit was scored."
)

type OrchestratorOptions struct {
	Store           *Store
	Fetcher         ProfileFetcher
	Generator       Generator
	Judge           Judge
	GenerateTimeout time.Duration
	JudgeTimeout    time.Duration
	FetchTimeout    time.Duration
	FallbackDamage  int // 0 means FallbackDamage
}

// Orchestrator owns the turn state machine: it validates whose turn it is,
// coordinates the external generator/judge calls, applies damage under the
// session lock, and detects the win condition.
type Orchestrator struct {
	store           *Store
	fetcher         ProfileFetcher
	gen             Generator
	judge           Judge
	generateTimeout time.Duration
	judgeTimeout    time.Duration
	fetchTimeout    time.Duration
	fallbackDamage  int
}

func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	o := &Orchestrator{
		store:           opts.Store,
		fetcher:         opts.Fetcher,
		gen:             opts.Generator,
		judge:           opts.Judge,
		generateTimeout: opts.GenerateTimeout,
		judgeTimeout:    opts.JudgeTimeout,
		fetchTimeout:    opts.FetchTimeout,
		fallbackDamage:  opts.FallbackDamage,
	}
	if o.generateTimeout <= 0 {
		o.generateTimeout = 40 * time.Second
	}
	if o.judgeTimeout <= 0 {
		o.judgeTimeout = 30 * time.Second
	}
	if o.fetchTimeout <= 0 {
		o.fetchTimeout = 15 * time.Second
	}
	if o.fallbackDamage <= 0 {
		o.fallbackDamage = FallbackDamage
	}
	return o
}

// StartGame fetches both profiles and creates the session. Profile fetch
// failures degrade to an empty profile with recorded errors; they never abort
// creation.
func (o *Orchestrator) StartGame(ctx context.Context, p1Name, p1Ref, p2Name, p2Ref string) (GameState, error) {
	p1Name = strings.TrimSpace(p1Name)
	p2Name = strings.TrimSpace(p2Name)
	if p1Name == "" || p2Name == "" {
		return GameState{}, fmt.Errorf("both player names are required")
	}

	var profiles [2]Profile
	var wg sync.WaitGroup
	for i, in := range []struct{ name, ref string }{{p1Name, p1Ref}, {p2Name, p2Ref}} {
		i, in := i, in
		wg.Add(1)
		go func() {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, o.fetchTimeout)
			defer cancel()
			profiles[i] = o.fetcher.FetchProfile(fctx, in.name, in.ref)
		}()
	}
	wg.Wait()

	p1 := Player{Name: p1Name, Health: StartingHealth, Profile: profiles[0]}
	p2 := Player{Name: p2Name, Health: StartingHealth, Profile: profiles[1]}
	return o.store.Create(p1, p2), nil
}

// GetState returns a snapshot of the session.
func (o *Orchestrator) GetState(id string) (GameState, error) {
	return o.store.Get(id)
}

// GenerateRoast produces a draft roast for the acting player. It mutates
// nothing: the caller reviews the draft and applies it via ReviewAndApply.
// The external call runs without holding the session lock, so the state is
// re-validated under the lock before the draft is handed back; if the game
// moved on meanwhile the draft is discarded.
func (o *Orchestrator) GenerateRoast(ctx context.Context, id string, actor PlayerNum) (string, error) {
	if !actor.Valid() {
		return "", fmt.Errorf("%w: player number must be 1 or 2", ErrWrongTurn)
	}

	snap, err := o.store.Get(id)
	if err != nil {
		return "", err
	}
	if err := checkTurn(&snap, actor); err != nil {
		return "", err
	}

	attacker := snap.PlayerByNum(actor).Profile
	defender := snap.PlayerByNum(actor.Opponent()).Profile

	gctx, cancel := context.WithTimeout(ctx, o.generateTimeout)
	defer cancel()
	text, err := o.gen.GenerateRoast(gctx, attacker, defender)
	if err != nil || strings.TrimSpace(text) == "" {
		log.Printf("roast generation fell back for game %s: %v", id, err)
		text = FallbackRoast
	}

	err = o.store.WithLock(id, func(st *GameState) error {
		return checkTurn(st, actor)
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// ReviewAndApply judges the roast and applies the damage. The session lock is
// held for the whole operation, judge call included, so at most one
// health-mutating operation per session runs at a time. The judge context is
// detached from the caller: once we are past validation the mutation is not
// cancellable.
func (o *Orchestrator) ReviewAndApply(ctx context.Context, id, roast string, defendingPlayer PlayerNum) (GameState, int, string, error) {
	if !defendingPlayer.Valid() {
		return GameState{}, 0, "", fmt.Errorf("%w: player number must be 1 or 2", ErrWrongTurn)
	}
	roast = strings.TrimSpace(roast)
	if roast == "" {
		return GameState{}, 0, "", fmt.Errorf("roast text is required")
	}

	var out GameState
	var damage int
	var rationale string

	err := o.store.WithLock(id, func(st *GameState) error {
		attacker := defendingPlayer.Opponent()
		if err := checkTurn(st, attacker); err != nil {
			return err
		}

		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.judgeTimeout)
		defer cancel()
		dmg, why, err := o.judge.JudgeRoast(jctx, roast, st.PlayerByNum(defendingPlayer).Profile)
		if err != nil {
			log.Printf("roast judging fell back for game %s: %v", id, err)
			dmg, why = o.fallbackDamage, FallbackRationale
		}

		def := st.PlayerByNum(defendingPlayer)
		if dmg < 0 {
			dmg = 0
		}
		if dmg > def.Health {
			dmg = def.Health // damage floors health at 0, never below
		}
		def.Health -= dmg
		st.LastRoast = roast
		st.LastDamage = &dmg

		if def.Health == 0 {
			st.Status = StatusFinished
			w := attacker
			st.Winner = &w
		} else {
			st.CurrentTurn = defendingPlayer
			st.RoundNumber++
		}
		st.Version++

		damage, rationale = dmg, why
		out = st.Clone()
		return nil
	})
	return out, damage, rationale, err
}

// Attack composes GenerateRoast and ReviewAndApply behind one call, for
// callers that do not want the draft-review step.
func (o *Orchestrator) Attack(ctx context.Context, id string, actor PlayerNum) (GameState, string, int, string, error) {
	roast, err := o.GenerateRoast(ctx, id, actor)
	if err != nil {
		return GameState{}, "", 0, "", err
	}
	st, damage, rationale, err := o.ReviewAndApply(ctx, id, roast, actor.Opponent())
	if err != nil {
		return GameState{}, "", 0, "", err
	}
	return st, roast, damage, rationale, nil
}

func checkTurn(st *GameState, actor PlayerNum) error {
	switch {
	case st.Status == StatusFinished:
		return ErrGameOver
	case st.Status != StatusInProgress:
		return ErrInvalidState
	case st.CurrentTurn != actor:
		return fmt.Errorf("%w: it's player %d's turn", ErrWrongTurn, st.CurrentTurn)
	}
	return nil
}
