// Package roast turns scraped profile content into roast text and judges
// submitted roasts into damage scores, via the chat-completions API.
package roast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"roast-arena/server/game"
	"roast-arena/server/llm"
)

const roastSystem = `You are an AI roast generator in a turn-based profile roast battle game.
You receive noisy, web-scraped profile content as context.
Write short, witty, non-hateful roasts that target weaknesses, fluff, or buzzwords
in the target's online presence. Keep outputs safe for a PG-13 audience.`

const judgeSystem = `You are an impartial judge in a profile roast battle game.
Given a roast and the target's (possibly noisy) web-scraped profile content,
return ONLY JSON with a damage score from 0-100 and a one-sentence explanation,
evaluating wit, relevance to the profile, and comedic impact.`

const (
	maxRoastTokens = 200
	maxJudgeTokens = 300
)

// Service implements game.Generator and game.Judge.
type Service struct {
	roastModel string // empty means resolve from env
	judgeModel string
}

func NewService(roastModel, judgeModel string) *Service {
	return &Service{roastModel: roastModel, judgeModel: judgeModel}
}

func (s *Service) GenerateRoast(ctx context.Context, attacker, defender game.Profile) (string, error) {
	user := fmt.Sprintf(`CONTEXT (web-scraped profile of the target):
%s

The attacker is %s. Their profile, for flavor only:
%s

INSTRUCTION:
- Write a single roast (1-2 sentences) aimed at the target.
- Make it witty and targeted to the profile's weaknesses or cringe.
- Do NOT include JSON or explanations, only the roast line(s).

Roast:`, profileSummary(defender), attacker.Name, profileSummary(attacker))

	tokens := maxRoastTokens
	text, err := llm.ChatText(ctx, s.roastModel, roastSystem, user, llm.Options{MaxOutputTokens: &tokens})
	if err != nil {
		return "", err
	}
	text = strings.Trim(strings.TrimSpace(text), `"`)
	if text == "" {
		return "", errors.New("model returned an empty roast")
	}
	return text, nil
}

func (s *Service) JudgeRoast(ctx context.Context, roast string, defender game.Profile) (int, string, error) {
	user := fmt.Sprintf(`CONTEXT (web-scraped profile of the target):
%s

ROAST:
%s

INSTRUCTION:
- Respond with ONLY a JSON object.
- Format: {"damage": <integer 0-100>, "reasoning": "<brief explanation>"}
- Do not include any extra text before or after the JSON.

JSON:`, profileSummary(defender), roast)

	tokens := maxJudgeTokens
	text, err := llm.ChatText(ctx, s.judgeModel, judgeSystem, user, llm.Options{MaxOutputTokens: &tokens, ForceJSON: true})
	if err != nil {
		return 0, "", err
	}
	return parseVerdict(text)
}

// parseVerdict extracts {"damage": n, "reasoning": s} from possibly noisy
// model output. Damage is clamped into [0, 100].
func parseVerdict(raw string) (int, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, "", errors.New("empty judge response")
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		cleaned := llm.ExtractJSONObject(raw)
		if cleaned == "" {
			return 0, "", fmt.Errorf("judge response is not JSON: %q", truncate(raw, 200))
		}
		if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
			return 0, "", fmt.Errorf("judge response is not JSON: %w", err)
		}
	}

	damage, ok := coerceInt(parsed["damage"])
	if !ok {
		return 0, "", fmt.Errorf("judge response has no damage field: %q", truncate(raw, 200))
	}
	if damage < 0 {
		damage = 0
	}
	if damage > 100 {
		damage = 100
	}

	reasoning := "Standard roast"
	if v, ok := parsed["reasoning"].(string); ok && strings.TrimSpace(v) != "" {
		reasoning = strings.TrimSpace(v)
	}
	return damage, reasoning, nil
}

func coerceInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// profileSummary flattens a profile into the prompt block the models see.
// Missing fields show as N/A so noisy scrapes don't skew the judge.
func profileSummary(p game.Profile) string {
	return fmt.Sprintf(`Name: %s
Headline: %s
Summary_or_WebScrape: %s
Experience_snippets: %s
Skills_snippets: %s
Education_snippets: %s`,
		orNA(p.Name),
		orNA(p.Headline),
		orNA(p.Bio),
		orNA(strings.Join(p.Experience, ", ")),
		orNA(strings.Join(p.Skills, ", ")),
		orNA(strings.Join(p.Education, ", ")),
	)
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
