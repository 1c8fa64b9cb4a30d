package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testFetcher(wikiBase string) *Fetcher {
	f := NewFetcher(5 * time.Second)
	if wikiBase != "" {
		f.wikiBase = wikiBase
	}
	return f
}

func TestFetchProfileFreeText(t *testing.T) {
	f := testFetcher("")
	p := f.FetchProfile(context.Background(), "Alex", "just a person who loves spreadsheets")
	if p.Bio != "just a person who loves spreadsheets" {
		t.Fatalf("bio = %q", p.Bio)
	}
	if len(p.SourceErrors) != 0 {
		t.Fatalf("unexpected source errors: %v", p.SourceErrors)
	}
}

func TestFetchProfileEmptyRef(t *testing.T) {
	f := testFetcher("")
	p := f.FetchProfile(context.Background(), "Alex", "")
	if p.Name != "Alex" || p.Bio != "" || len(p.SourceErrors) != 0 {
		t.Fatalf("unexpected profile: %+v", p)
	}
}

func TestFetchProfileLinkedInDegrades(t *testing.T) {
	f := testFetcher("")
	ref := "https://www.linkedin.com/in/somebody"
	p := f.FetchProfile(context.Background(), "Alex", ref)
	if p.Bio != ref {
		t.Fatalf("expected the URL kept as opaque bio, got %q", p.Bio)
	}
	if len(p.SourceErrors) == 0 {
		t.Fatal("expected a recorded source error")
	}
}

const wikiStubResponse = `{
  "query": {
    "pages": {
      "12345": {
        "title": "Ada Lovelace",
        "extract": "Ada Lovelace was an English mathematician and writer.\n\n\n== Early life ==\nShe was born in 1815.\n\n\n== Work ==\nNotes on the Analytical Engine.",
        "categories": [
          {"title": "Category:1815 births"},
          {"title": "Category:English mathematicians"}
        ]
      }
    }
  }
}`

func TestFetchProfileWikipedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("titles"); got != "Ada Lovelace" {
			t.Errorf("titles param = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(wikiStubResponse))
	}))
	defer srv.Close()

	f := testFetcher(srv.URL)
	p := f.FetchProfile(context.Background(), "Ada", "https://en.wikipedia.org/wiki/Ada_Lovelace")

	if len(p.SourceErrors) != 0 {
		t.Fatalf("unexpected source errors: %v", p.SourceErrors)
	}
	if p.Headline != "Ada Lovelace" {
		t.Fatalf("headline = %q", p.Headline)
	}
	if p.Bio != "Ada Lovelace was an English mathematician and writer." {
		t.Fatalf("bio = %q", p.Bio)
	}
	if len(p.Experience) != 2 || p.Experience[0] != "Early life" || p.Experience[1] != "Work" {
		t.Fatalf("experience = %v", p.Experience)
	}
	if len(p.Skills) != 2 || p.Skills[0] != "1815 births" {
		t.Fatalf("skills = %v", p.Skills)
	}
}

func TestFetchProfileWikipediaMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"query":{"pages":{"-1":{"title":"Nope","missing":""}}}}`))
	}))
	defer srv.Close()

	f := testFetcher(srv.URL)
	p := f.FetchProfile(context.Background(), "X", "https://en.wikipedia.org/wiki/Nope")
	if len(p.SourceErrors) == 0 {
		t.Fatal("expected a source error for a missing article")
	}
	if p.Bio != "" || p.Headline != "" {
		t.Fatalf("profile fields should stay empty on failure: %+v", p)
	}
}

func TestFetchProfileWikipediaDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := testFetcher(srv.URL)
	p := f.FetchProfile(context.Background(), "X", "https://en.wikipedia.org/wiki/Whoever")
	if len(p.SourceErrors) == 0 {
		t.Fatal("expected a source error when the API is down")
	}
	if p.Name != "X" {
		t.Fatalf("name should survive a failed fetch, got %q", p.Name)
	}
}

func TestFetchProfileGenericWebPage(t *testing.T) {
	page := `<html><head><title>Jordan | Portfolio</title><style>p{color:red}</style></head>
<body><h1>Jordan</h1><h2>Projects</h2>
<p>I build   things.</p><p>Mostly side projects.</p>
<script>console.log("ignore me")</script></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	f := testFetcher("")
	p := f.FetchProfile(context.Background(), "Jordan", srv.URL)

	if p.Headline != "Jordan | Portfolio" {
		t.Fatalf("headline = %q", p.Headline)
	}
	if p.Bio != "I build things. Mostly side projects." {
		t.Fatalf("bio = %q", p.Bio)
	}
	if len(p.Experience) != 2 || p.Experience[0] != "Jordan" || p.Experience[1] != "Projects" {
		t.Fatalf("experience = %v", p.Experience)
	}
	if strings.Contains(p.Bio, "ignore me") {
		t.Fatal("script content leaked into bio")
	}
}

func TestWikipediaTitle(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://en.wikipedia.org/wiki/Ada_Lovelace", "Ada Lovelace"},
		{"https://en.wikipedia.org/wiki/Go_(programming_language)", "Go (programming language)"},
		{"https://en.wikipedia.org/wiki/Ada_Lovelace#Legacy", "Ada Lovelace"},
		{"Grace Hopper", "Grace Hopper"},
		{"https://en.wikipedia.org/notwiki/x", ""},
	}
	for _, tc := range cases {
		if got := wikipediaTitle(tc.in); got != tc.want {
			t.Fatalf("wikipediaTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
