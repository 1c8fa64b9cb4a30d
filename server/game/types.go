package game

// StartingHealth is every player's health at session creation.
const StartingHealth = 100

type Status string

const (
	StatusSetup      Status = "setup"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

// PlayerNum identifies a seat. Player numbering is fixed for the session's lifetime.
type PlayerNum int

const (
	Player1 PlayerNum = 1
	Player2 PlayerNum = 2
)

func (n PlayerNum) Valid() bool { return n == Player1 || n == Player2 }

func (n PlayerNum) Opponent() PlayerNum {
	if n == Player1 {
		return Player2
	}
	return Player1
}

// Profile is the canonical normalized profile shape. Bio may hold free text or
// the source URL the caller handed in; the game core treats it as opaque text.
// SourceErrors records fetch failures; an empty slice means a clean fetch.
type Profile struct {
	Name         string   `json:"name"`
	Headline     string   `json:"headline,omitempty"`
	Bio          string   `json:"bio,omitempty"`
	Experience   []string `json:"experience,omitempty"`
	Education    []string `json:"education,omitempty"`
	Skills       []string `json:"skills,omitempty"`
	SourceErrors []string `json:"source_errors,omitempty"`
}

func (p Profile) Clone() Profile {
	out := p
	out.Experience = append([]string(nil), p.Experience...)
	out.Education = append([]string(nil), p.Education...)
	out.Skills = append([]string(nil), p.Skills...)
	out.SourceErrors = append([]string(nil), p.SourceErrors...)
	return out
}

type Player struct {
	Name    string  `json:"name"`
	Health  int     `json:"health"`
	Profile Profile `json:"profile"`
}

// GameState is the full session state. It is mutated only through the store's
// per-session lock; everything handed to callers is a Clone.
type GameState struct {
	SessionID   string     `json:"game_id"`
	Player1     Player     `json:"player1"`
	Player2     Player     `json:"player2"`
	CurrentTurn PlayerNum  `json:"current_turn"`
	Status      Status     `json:"status"`
	LastRoast   string     `json:"last_roast,omitempty"`
	LastDamage  *int       `json:"last_damage,omitempty"`
	Winner      *PlayerNum `json:"winner,omitempty"`
	RoundNumber int        `json:"round_number"`
	Version     int        `json:"version"`
}

// PlayerByNum returns a pointer into the state, so callers holding the session
// lock can mutate the player in place.
func (g *GameState) PlayerByNum(n PlayerNum) *Player {
	if n == Player1 {
		return &g.Player1
	}
	return &g.Player2
}

func (g GameState) Clone() GameState {
	out := g
	out.Player1.Profile = g.Player1.Profile.Clone()
	out.Player2.Profile = g.Player2.Profile.Clone()
	if g.LastDamage != nil {
		v := *g.LastDamage
		out.LastDamage = &v
	}
	if g.Winner != nil {
		w := *g.Winner
		out.Winner = &w
	}
	return out
}
