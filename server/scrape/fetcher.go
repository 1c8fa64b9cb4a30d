// Package scrape resolves a player's name and optional profile reference into
// the normalized Profile the game uses. Fetching is best effort: any failure
// degrades to an empty profile with the error recorded in SourceErrors, so
// game creation is never blocked by a bad or unreachable source.
package scrape

import (
	"context"
	"net/http"
	"strings"
	"time"

	"roast-arena/server/game"
)

const defaultUserAgent = "RoastArena/1.0 (profile fetcher)"

type Fetcher struct {
	client    *http.Client
	userAgent string
	wikiBase  string // override in tests
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
		wikiBase:  "https://en.wikipedia.org/w/api.php",
	}
}

// FetchProfile never fails. A ref that is not a URL is kept as free-text bio.
func (f *Fetcher) FetchProfile(ctx context.Context, name, ref string) game.Profile {
	p := game.Profile{Name: name}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return p
	}

	lower := strings.ToLower(ref)
	switch {
	case strings.Contains(lower, "wikipedia.org"):
		f.fetchWikipedia(ctx, ref, &p)
	case strings.Contains(lower, "linkedin.com"):
		// No browser session in-process; keep the URL as opaque bio text.
		p.Bio = ref
		p.SourceErrors = append(p.SourceErrors, "linkedin profiles need browser automation, which is unavailable; profile left as provided")
	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		f.fetchWebPage(ctx, ref, &p)
	default:
		p.Bio = ref
	}

	normalize(&p)
	return p
}

func normalize(p *game.Profile) {
	p.Name = strings.TrimSpace(p.Name)
	p.Headline = strings.TrimSpace(p.Headline)
	p.Bio = strings.TrimSpace(p.Bio)
	p.Experience = normalizeList(p.Experience, 15)
	p.Education = normalizeList(p.Education, 15)
	p.Skills = normalizeList(p.Skills, 15)
}

func normalizeList(in []string, cap int) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == cap {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func capText(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
