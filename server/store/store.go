// Package store is the optional battle archive. Live sessions are always
// in-memory; when a DATABASE_URL is configured, finished rounds and battles
// are also written here so history and leaderboard endpoints have something
// to serve. Everything is best-effort: archive failures never touch gameplay.
package store

import (
	"context"
	"embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema embed.FS

type DB struct{ *pgxpool.Pool }

func Open(dsn string) (*DB, error) {
	p, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &DB{p}, nil
}

func (db *DB) Close(ctx context.Context)      { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

/* -----------------------------
   Write helpers
------------------------------*/

// Upsert the battle row for a game and return its id. Called once at start
// and again on each state change, so column values always track the session.
func (db *DB) UpsertBattle(ctx context.Context, gameID, p1Name, p2Name string, winner *int, rounds, p1Health, p2Health int) (int64, error) {
	var id int64
	var w any
	if winner != nil {
		w = *winner
	}
	err := db.QueryRow(ctx, `
        INSERT INTO battles(game_id, player1_name, player2_name, winner, rounds, p1_health, p2_health)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (game_id) DO UPDATE
          SET winner    = EXCLUDED.winner,
              rounds    = EXCLUDED.rounds,
              p1_health = EXCLUDED.p1_health,
              p2_health = EXCLUDED.p2_health
        RETURNING id
    `, gameID, p1Name, p2Name, w, rounds, p1Health, p2Health).Scan(&id)
	return id, err
}

// Mark the battle finished.
func (db *DB) CompleteBattle(ctx context.Context, gameID string, winner int) error {
	_, err := db.Exec(ctx, `
        UPDATE battles SET winner = $2, ended_at = now() WHERE game_id = $1
    `, gameID, winner)
	return err
}

// InsertRoastLog records one applied roast for history and auditing.
func (db *DB) InsertRoastLog(ctx context.Context, gameID string, roundNumber, attacker int, roast string, damage int, rationale string) error {
	_, err := db.Exec(ctx, `
        INSERT INTO roast_logs(battle_id, round_number, attacker, roast, damage, rationale)
        SELECT id, $2, $3, $4, $5, $6 FROM battles WHERE game_id = $1
    `, gameID, roundNumber, attacker, roast, damage, rationale)
	return err
}

/* -----------------------------
   Read helpers
------------------------------*/

type BattleSummary struct {
	GameID      string     `json:"game_id"`
	Player1Name string     `json:"player1_name"`
	Player2Name string     `json:"player2_name"`
	Winner      *int       `json:"winner,omitempty"`
	Rounds      int        `json:"rounds"`
	P1Health    int        `json:"p1_health"`
	P2Health    int        `json:"p2_health"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// RecentBattles returns the latest battles, newest first.
func (db *DB) RecentBattles(ctx context.Context, limit int) ([]BattleSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := db.Query(ctx, `
        SELECT game_id, player1_name, player2_name, winner, rounds,
               p1_health, p2_health, started_at, ended_at
          FROM battles
         ORDER BY started_at DESC
         LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]BattleSummary, 0, limit)
	for rows.Next() {
		var b BattleSummary
		if err := rows.Scan(&b.GameID, &b.Player1Name, &b.Player2Name, &b.Winner,
			&b.Rounds, &b.P1Health, &b.P2Health, &b.StartedAt, &b.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type LeaderboardRow struct {
	Name    string `json:"name"`
	Wins    int    `json:"wins"`
	Battles int    `json:"battles"`
}

// Leaderboard aggregates wins per player name across finished battles.
func (db *DB) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := db.Query(ctx, `
        WITH sides AS (
            SELECT player1_name AS name,
                   CASE WHEN winner = 1 THEN 1 ELSE 0 END AS won
              FROM battles WHERE ended_at IS NOT NULL
            UNION ALL
            SELECT player2_name AS name,
                   CASE WHEN winner = 2 THEN 1 ELSE 0 END AS won
              FROM battles WHERE ended_at IS NOT NULL
        )
        SELECT name, SUM(won)::int AS wins, COUNT(*)::int AS battles
          FROM sides
         GROUP BY name
         ORDER BY wins DESC, battles DESC, name ASC
         LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]LeaderboardRow, 0, limit)
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.Name, &r.Wins, &r.Battles); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type RoastLogRow struct {
	RoundNumber int       `json:"round_number"`
	Attacker    int       `json:"attacker"`
	Roast       string    `json:"roast"`
	Damage      int       `json:"damage"`
	Rationale   string    `json:"rationale"`
	CreatedAt   time.Time `json:"created_at"`
}

// BattleLog returns the applied roasts of one battle in round order.
func (db *DB) BattleLog(ctx context.Context, gameID string) ([]RoastLogRow, error) {
	var battleID int64
	err := db.QueryRow(ctx, `SELECT id FROM battles WHERE game_id = $1`, gameID).Scan(&battleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rows, err := db.Query(ctx, `
        SELECT round_number, attacker, roast, damage, rationale, created_at
          FROM roast_logs
         WHERE battle_id = $1
         ORDER BY round_number ASC, id ASC
    `, battleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoastLogRow
	for rows.Next() {
		var r RoastLogRow
		if err := rows.Scan(&r.RoundNumber, &r.Attacker, &r.Roast, &r.Damage, &r.Rationale, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
