package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"roast-arena/server/game"
	"roast-arena/server/store"
)

// Router wires the HTTP surface. The archive db may be nil; battle history
// endpoints then report that persistence is disabled.
func Router(orc *game.Orchestrator, fetcher game.ProfileFetcher, db *store.DB) http.Handler {
	s := &apiServer{orc: orc, fetcher: fetcher, db: db}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Post("/api/game/start", s.handleStart)
	r.Get("/api/game/{id}", s.handleGetState)
	r.Post("/api/game/{id}/roast", s.handleGenerateRoast)
	r.Post("/api/game/{id}/review", s.handleReview)
	r.Post("/api/game/{id}/attack", s.handleAttack)
	r.Get("/api/game/{id}/live", s.handleLive)
	r.Get("/api/game/{id}/log", s.handleBattleLog)

	r.Post("/api/scrape", s.handleScrape)
	r.Get("/api/battles", s.handleBattles)
	r.Get("/api/leaderboard", s.handleLeaderboard)

	return r
}

type apiServer struct {
	orc     *game.Orchestrator
	fetcher game.ProfileFetcher
	db      *store.DB
}

func (s *apiServer) handleStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Player1Name string `json:"player1_name"`
		Player1Ref  string `json:"player1_ref"`
		Player2Name string `json:"player2_name"`
		Player2Ref  string `json:"player2_ref"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.orc.StartGame(r.Context(), req.Player1Name, req.Player1Ref, req.Player2Name, req.Player2Ref)
	if err != nil {
		writeGameError(w, err)
		return
	}
	s.archiveState(st)
	writeJSON(w, http.StatusOK, st)
}

func (s *apiServer) handleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := s.orc.GetState(chi.URLParam(r, "id"))
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *apiServer) handleGenerateRoast(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerNumber int `json:"player_number"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	text, err := s.orc.GenerateRoast(r.Context(), chi.URLParam(r, "id"), game.PlayerNum(req.PlayerNumber))
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roast": text})
}

func (s *apiServer) handleReview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Roast                 string `json:"roast"`
		DefendingPlayerNumber int    `json:"defending_player_number"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, damage, rationale, err := s.orc.ReviewAndApply(r.Context(), chi.URLParam(r, "id"), req.Roast, game.PlayerNum(req.DefendingPlayerNumber))
	if err != nil {
		writeGameError(w, err)
		return
	}
	s.archiveRound(st, damage, rationale)
	writeJSON(w, http.StatusOK, map[string]any{
		"game_state": st,
		"damage":     damage,
		"rationale":  rationale,
	})
}

func (s *apiServer) handleAttack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerNumber int `json:"player_number"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, roast, damage, rationale, err := s.orc.Attack(r.Context(), chi.URLParam(r, "id"), game.PlayerNum(req.PlayerNumber))
	if err != nil {
		writeGameError(w, err)
		return
	}
	s.archiveRound(st, damage, rationale)
	writeJSON(w, http.StatusOK, map[string]any{
		"game_state": st,
		"roast":      roast,
		"damage":     damage,
		"rationale":  rationale,
	})
}

// handleScrape previews what a profile reference resolves to, without
// creating a game.
func (s *apiServer) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Ref  string `json:"ref"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	p := s.fetcher.FetchProfile(r.Context(), req.Name, req.Ref)
	writeJSON(w, http.StatusOK, p)
}

// handleLive streams state snapshots over SSE whenever the game's version
// counter moves. Poll-and-diff keeps the store free of subscriber plumbing.
func (s *apiServer) handleLive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := s.orc.GetState(id)
	if err != nil {
		writeGameError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "stream unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	enc := json.NewEncoder(w)
	send := func(st game.GameState) {
		w.Write([]byte("event: state\n"))
		w.Write([]byte("data: "))
		_ = enc.Encode(st)
		w.Write([]byte("\n"))
		flusher.Flush()
	}
	send(st)
	lastVersion := st.Version

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			cur, err := s.orc.GetState(id)
			if err != nil {
				return
			}
			if cur.Version == lastVersion {
				continue
			}
			lastVersion = cur.Version
			send(cur)
			if cur.Status == game.StatusFinished {
				return
			}
		}
	}
}

func (s *apiServer) handleBattles(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusNotImplemented, "battle history requires a configured database")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.db.RecentBattles(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *apiServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusNotImplemented, "leaderboard requires a configured database")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rows, err := s.db.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (s *apiServer) handleBattleLog(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusNotImplemented, "battle logs require a configured database")
		return
	}
	rows, err := s.db.BattleLog(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

/* -----------------------------
   Archive writes (best-effort)
------------------------------*/

// archiveState mirrors the current session into the archive. Runs in the
// background; the archive never blocks or fails a request.
func (s *apiServer) archiveState(st game.GameState) {
	if s.db == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var winner *int
		if st.Winner != nil {
			w := int(*st.Winner)
			winner = &w
		}
		if _, err := s.db.UpsertBattle(ctx, st.SessionID, st.Player1.Name, st.Player2.Name,
			winner, st.RoundNumber, st.Player1.Health, st.Player2.Health); err != nil {
			log.Printf("archive upsert failed for game %s: %v", st.SessionID, err)
			return
		}
		if st.Status == game.StatusFinished && winner != nil {
			if err := s.db.CompleteBattle(ctx, st.SessionID, *winner); err != nil {
				log.Printf("archive complete failed for game %s: %v", st.SessionID, err)
			}
		}
	}()
}

func (s *apiServer) archiveRound(st game.GameState, damage int, rationale string) {
	if s.db == nil {
		return
	}
	// The attacker of the round just applied. On a finishing blow the turn
	// does not flip, so CurrentTurn is still the attacker; otherwise the
	// attacker is whoever is not about to act.
	attacker := st.CurrentTurn
	if st.Status != game.StatusFinished {
		attacker = st.CurrentTurn.Opponent()
	}
	round := st.RoundNumber
	if st.Status != game.StatusFinished {
		round-- // RoundNumber already advanced past the applied round
	}
	roast := st.LastRoast
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.db.InsertRoastLog(ctx, st.SessionID, round, int(attacker), roast, damage, rationale); err != nil {
			log.Printf("archive roast log failed for game %s: %v", st.SessionID, err)
		}
	}()
	s.archiveState(st)
}

/* -----------------------------
   JSON plumbing
------------------------------*/

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid request body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeGameError maps the game package's sentinel errors onto HTTP statuses.
func writeGameError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrWrongTurn),
		errors.Is(err, game.ErrInvalidState),
		errors.Is(err, game.ErrGameOver):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}
