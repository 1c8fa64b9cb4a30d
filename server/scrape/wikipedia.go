package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"roast-arena/server/game"
)

// fetchWikipedia pulls an article through the MediaWiki API (no auth, plain
// text extract) and maps it onto the profile: intro becomes the bio, section
// headings fill the experience slots, categories fill the skills slots.
func (f *Fetcher) fetchWikipedia(ctx context.Context, ref string, p *game.Profile) {
	title := wikipediaTitle(ref)
	if title == "" {
		p.SourceErrors = append(p.SourceErrors, fmt.Sprintf("could not extract article title from %q", ref))
		return
	}

	q := url.Values{}
	q.Set("action", "query")
	q.Set("format", "json")
	q.Set("titles", title)
	q.Set("prop", "extracts|categories")
	q.Set("explaintext", "1")
	q.Set("cllimit", "50")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.wikiBase+"?"+q.Encode(), nil)
	if err != nil {
		p.SourceErrors = append(p.SourceErrors, "wikipedia request: "+err.Error())
		return
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		p.SourceErrors = append(p.SourceErrors, "wikipedia fetch: "+err.Error())
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		p.SourceErrors = append(p.SourceErrors, fmt.Sprintf("wikipedia fetch: http %d", resp.StatusCode))
		return
	}

	var payload struct {
		Query struct {
			Pages map[string]struct {
				Title      string `json:"title"`
				Extract    string `json:"extract"`
				Missing    *any   `json:"missing,omitempty"`
				Categories []struct {
					Title string `json:"title"`
				} `json:"categories"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		p.SourceErrors = append(p.SourceErrors, "wikipedia parse: "+err.Error())
		return
	}
	if len(payload.Query.Pages) == 0 {
		p.SourceErrors = append(p.SourceErrors, fmt.Sprintf("article not found: %s", title))
		return
	}

	for _, page := range payload.Query.Pages {
		if page.Missing != nil {
			p.SourceErrors = append(p.SourceErrors, fmt.Sprintf("article does not exist: %s", title))
			return
		}
		p.Headline = page.Title
		p.Bio = capText(articleIntro(page.Extract), 500)
		p.Experience = articleHeadings(page.Extract)
		for _, c := range page.Categories {
			p.Skills = append(p.Skills, strings.TrimPrefix(c.Title, "Category:"))
		}
		return // single title requested, single page expected
	}
}

// wikipediaTitle extracts the article title from a /wiki/ URL, or passes a
// bare title through.
func wikipediaTitle(ref string) string {
	if !strings.HasPrefix(strings.ToLower(ref), "http") {
		return strings.TrimSpace(ref)
	}
	idx := strings.LastIndex(ref, "/wiki/")
	if idx < 0 {
		return ""
	}
	title := ref[idx+len("/wiki/"):]
	if i := strings.IndexAny(title, "?#"); i >= 0 {
		title = title[:i]
	}
	if decoded, err := url.PathUnescape(title); err == nil {
		title = decoded
	}
	return strings.TrimSpace(strings.ReplaceAll(title, "_", " "))
}

// articleIntro is the lead section: everything before the first blank line.
func articleIntro(extract string) string {
	sections := strings.SplitN(extract, "\n\n", 2)
	if len(sections) == 0 {
		return ""
	}
	return sections[0]
}

// articleHeadings pulls "== Heading ==" lines out of a plain-text extract.
func articleHeadings(extract string) []string {
	var out []string
	for _, line := range strings.Split(extract, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "==") || !strings.HasSuffix(line, "==") {
			continue
		}
		heading := strings.TrimSpace(strings.Trim(line, "= "))
		if heading != "" {
			out = append(out, heading)
		}
		if len(out) == 15 {
			break
		}
	}
	return out
}
