package scrape

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"roast-arena/server/game"
)

// fetchWebPage does a plain GET and maps generic page structure onto the
// profile: <title> becomes the headline, h1-h3 text fills the experience
// slots, paragraph text becomes the bio.
func (f *Fetcher) fetchWebPage(ctx context.Context, ref string, p *game.Profile) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		p.SourceErrors = append(p.SourceErrors, "web request: "+err.Error())
		return
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		p.SourceErrors = append(p.SourceErrors, "web fetch: "+err.Error())
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		p.SourceErrors = append(p.SourceErrors, fmt.Sprintf("web fetch: http %d", resp.StatusCode))
		return
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		p.SourceErrors = append(p.SourceErrors, "web parse: "+err.Error())
		return
	}

	var title string
	var headings, paragraphs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if title == "" {
					title = nodeText(n)
				}
			case "h1", "h2", "h3":
				if t := nodeText(n); t != "" && len(headings) < 10 {
					headings = append(headings, t)
				}
			case "p":
				if t := nodeText(n); t != "" && len(paragraphs) < 20 {
					paragraphs = append(paragraphs, t)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	p.Headline = title
	p.Bio = capText(strings.Join(paragraphs, " "), 1000)
	p.Experience = headings
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
