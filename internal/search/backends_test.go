// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/deep-research/internal/httputil"
	"github.com/pdiddy/deep-research/pkg/types"
)

func testClient(ts *httptest.Server) *httputil.Client {
	return httputil.NewClient(ts.Client(), "test/0.1", 0)
}

// swap points *target at url for the duration of the test.
func swap(t *testing.T, target *string, url string) {
	t.Helper()
	old := *target
	*target = url
	t.Cleanup(func() { *target = old })
}

// --- SearXNG ---

func TestSearXNGSearch(t *testing.T) {
	var gotQuery, gotCategories, gotFormat string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		gotFormat = r.URL.Query().Get("format")
		gotCategories = r.URL.Query().Get("categories")
		fmt.Fprint(w, `{"results":[
			{"title":"One","url":"https://one.example","content":"first","engines":["google"],"category":"general"},
			{"title":"Two","url":"https://two.example","content":"second","publishedDate":"2026-01-02"},
			{"title":"Three","url":"https://three.example","content":"third"}]}`)
	}))
	defer ts.Close()

	b := NewSearXNGNews(testClient(ts), ts.URL+"/")
	results, err := b.Search(context.Background(), "solar power", 2)
	require.NoError(t, err)

	assert.Equal(t, "solar power", gotQuery)
	assert.Equal(t, "json", gotFormat)
	assert.Equal(t, "news", gotCategories)
	require.Len(t, results, 2)
	assert.Equal(t, "One", results[0].Title)
	assert.Equal(t, "first", results[0].Snippet)
	assert.Equal(t, "searxng_news", results[0].SourceEngine)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 0.95, results[1].Score, 1e-9)
	assert.Equal(t, "2026-01-02", results[1].PublishedDate)
	assert.Equal(t, types.DomainNews, b.Capabilities())
	assert.Equal(t, types.DomainGeneral, NewSearXNG(nil, ts.URL).Capabilities())
}

func TestSearXNGHealthy(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	b := NewSearXNG(testClient(ts), ts.URL)
	assert.True(t, b.Healthy(context.Background()))
	ts.Close()
	assert.False(t, b.Healthy(context.Background()))
}

func TestBackendHTTPErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	swap(t, &arxivAPIBase, ts.URL)
	swap(t, &semanticAPIBase, ts.URL)
	swap(t, &openAlexSearchBase, ts.URL)
	swap(t, &braveAPIBase, ts.URL)
	swap(t, &wikipediaAPIFormat, ts.URL)

	c := testClient(ts)
	backends := []Backend{
		NewSearXNG(c, ts.URL),
		&WikipediaBackend{Client: c},
		&ArxivBackend{Client: c},
		&SemanticScholarBackend{Client: c},
		&OpenAlexBackend{Client: c},
		&BraveBackend{Client: c, APIKey: "k"},
	}
	for _, b := range backends {
		t.Run(b.Name(), func(t *testing.T) {
			_, err := b.Search(context.Background(), "q", 5)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "403")
		})
	}
}

func TestBackendMalformedJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{not json`)
	}))
	defer ts.Close()

	swap(t, &semanticAPIBase, ts.URL)
	swap(t, &openAlexSearchBase, ts.URL)

	c := testClient(ts)
	for _, b := range []Backend{NewSearXNG(c, ts.URL), &SemanticScholarBackend{Client: c}, &OpenAlexBackend{Client: c}} {
		_, err := b.Search(context.Background(), "q", 5)
		assert.ErrorContains(t, err, "parsing", b.Name())
	}
}

// --- Wikipedia ---

func TestWikipediaSearchWithExtracts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("list") == "search":
			assert.Equal(t, "photosynthesis", q.Get("srsearch"))
			fmt.Fprint(w, `{"query":{"search":[
				{"title":"Photosynthesis","pageid":1,"snippet":"<span class=\"searchmatch\">Photosynthesis</span> is a process"},
				{"title":"Calvin cycle","pageid":2,"snippet":"light-independent"}]}}`)
		case q.Get("prop") == "extracts":
			if q.Get("titles") == "Calvin cycle" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprintf(w, `{"query":{"pages":{"1":{"title":%q,"extract":"Plants convert light."}}}}`, q.Get("titles"))
		default:
			t.Errorf("unexpected request %s", r.URL)
		}
	}))
	defer ts.Close()
	swap(t, &wikipediaAPIFormat, ts.URL)

	b := &WikipediaBackend{Client: testClient(ts)}
	results, err := b.Search(context.Background(), "photosynthesis", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "https://en.wikipedia.org/wiki/Photosynthesis", results[0].URL)
	assert.Equal(t, "Photosynthesis is a process", results[0].Snippet)
	assert.Equal(t, "Plants convert light.", results[0].Content)
	assert.InDelta(t, 0.9, results[0].Score, 1e-9)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Calvin_cycle", results[1].URL)
	assert.Empty(t, results[1].Content, "extract failure keeps the hit")
}

// --- arXiv ---

const arxivFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <title>Attention Is
      All You Need</title>
    <summary>  The dominant sequence transduction models.  </summary>
    <published>2017-06-12T17:57:34Z</published>
    <author><name>A1</name></author><author><name>A2</name></author><author><name>A3</name></author>
    <author><name>A4</name></author><author><name>A5</name></author><author><name>A6</name></author>
    <category term="cs.CL"/><category term="cs.LG"/>
  </entry>
  <entry>
    <id>not-an-arxiv-id</id>
    <title>Skipped</title>
  </entry>
</feed>`

func TestArxivSearch(t *testing.T) {
	var rawQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		fmt.Fprint(w, arxivFeedXML)
	}))
	defer ts.Close()
	swap(t, &arxivAPIBase, ts.URL)

	b := &ArxivBackend{Client: testClient(ts)}
	results, err := b.Search(context.Background(), "attention transformer", 7)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Contains(t, rawQuery, "search_query=all:attention+transformer")
	assert.Contains(t, rawQuery, "max_results=7")

	r := results[0]
	assert.Equal(t, "Attention Is All You Need", r.Title)
	assert.Equal(t, "https://arxiv.org/abs/1706.03762", r.URL)
	assert.Equal(t, "The dominant sequence transduction models.", r.Content)
	assert.Len(t, r.Authors, 5, "authors capped")
	assert.Equal(t, "2017-06-12T17:57:34Z", r.PublishedDate)
	assert.Equal(t, []string{"cs.CL", "cs.LG"}, r.Metadata["categories"])
	assert.InDelta(t, 0.85, r.Score, 1e-9)
}

func TestExtractArxivID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"http://arxiv.org/abs/2301.07041v1", "2301.07041"},
		{"http://arxiv.org/abs/2301.07041", "2301.07041"},
		{"http://arxiv.org/abs/hep-th/9901001v2", "hep-th/9901001"},
		{"garbage", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractArxivID(tt.in), tt.in)
	}
}

func TestBuildArxivQuery(t *testing.T) {
	assert.Equal(t, "all:deep+learning", buildArxivQuery(" deep   learning "))
	assert.Equal(t, "", buildArxivQuery("   "))
	assert.Equal(t, "all:c%2B%2B", buildArxivQuery("c++"))
}

// --- Semantic Scholar ---

func TestSemanticScholarSearch(t *testing.T) {
	var apiKey, limit string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("x-api-key")
		limit = r.URL.Query().Get("limit")
		fmt.Fprint(w, `{"total":2,"data":[
			{"paperId":"p1","title":"First","abstract":"abs one","url":"https://www.semanticscholar.org/paper/p1",
			 "publicationDate":"2020-05-01","authors":[{"name":"Ada Lovelace"}],"externalIds":{"DOI":"10.1/x"}},
			{"paperId":"p2","title":"Second","year":2019,"authors":[],"externalIds":{"DOI":"10.2/y"}}]}`)
	}))
	defer ts.Close()
	swap(t, &semanticAPIBase, ts.URL)

	b := &SemanticScholarBackend{Client: testClient(ts), APIKey: "secret"}
	results, err := b.Search(context.Background(), "graphs", 9)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "secret", apiKey)
	assert.Equal(t, "9", limit)
	assert.Equal(t, "https://www.semanticscholar.org/paper/p1", results[0].URL)
	assert.Equal(t, "abs one", results[0].Content)
	assert.Equal(t, []string{"Ada Lovelace"}, results[0].Authors)
	assert.Equal(t, "2020-05-01", results[0].PublishedDate)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)

	assert.Equal(t, "https://doi.org/10.2/y", results[1].URL)
	assert.Equal(t, "2019", results[1].PublishedDate)
	assert.InDelta(t, 0.1, results[1].Score, 1e-9)
}

// --- OpenAlex ---

func TestOpenAlexSearch(t *testing.T) {
	var mailto, perPage string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mailto = r.URL.Query().Get("mailto")
		perPage = r.URL.Query().Get("per_page")
		fmt.Fprint(w, `{"results":[{"id":"https://openalex.org/W1","title":"Work","doi":"https://doi.org/10.5/z",
			"publication_year":2021,"cited_by_count":12,
			"authorships":[{"author":{"display_name":"Grace Hopper"}},{"author":{"display_name":""}}],
			"abstract_inverted_index":{"world":[1],"hello":[0]},
			"open_access":{"is_oa":true,"oa_url":"https://oa.example/w1"}}]}`)
	}))
	defer ts.Close()
	swap(t, &openAlexSearchBase, ts.URL)

	b := &OpenAlexBackend{Client: testClient(ts), Email: "me@example.com"}
	results, err := b.Search(context.Background(), "compilers", 500)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "me@example.com", mailto)
	assert.Equal(t, "200", perPage)
	r := results[0]
	assert.Equal(t, "https://doi.org/10.5/z", r.URL)
	assert.Equal(t, "hello world", r.Content)
	assert.Equal(t, []string{"Grace Hopper"}, r.Authors)
	assert.Equal(t, "2021", r.PublishedDate)
	assert.Equal(t, "10.5/z", r.Metadata["doi"])
}

func TestReconstructAbstract(t *testing.T) {
	assert.Equal(t, "", reconstructAbstract(nil))
	assert.Equal(t, "a b a", reconstructAbstract(map[string][]int{"a": {0, 2}, "b": {1}}))
}

// --- DuckDuckGo ---

func TestDuckDuckGoInstantAnswer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"Heading":"Go","AbstractText":"Go is a language.","AbstractURL":"https://go.dev",
			"AbstractSource":"Wikipedia","RelatedTopics":[
				{"Text":"Gopher - the mascot","FirstURL":"https://duckduckgo.com/Gopher"},
				{"Name":"Group","Topics":[{"Text":"Goroutine - lightweight thread","FirstURL":"https://duckduckgo.com/Goroutine"}]},
				{"Text":"","FirstURL":""}]}`)
	}))
	defer ts.Close()
	swap(t, &ddgInstantBase, ts.URL)

	b := &DuckDuckGoBackend{Client: testClient(ts)}
	results, err := b.Search(context.Background(), "golang", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "Go", results[0].Title)
	assert.Equal(t, "Go is a language.", results[0].Content)
	assert.Equal(t, "Gopher", results[1].Title)
	assert.Equal(t, "Goroutine", results[2].Title)
}

func TestDuckDuckGoFallsBackToHTML(t *testing.T) {
	instant := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"AbstractText":"","RelatedTopics":[]}`)
	}))
	defer instant.Close()
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "rare query", r.URL.Query().Get("q"))
		fmt.Fprint(w, `<html><body>
			<div class="result results_links">
			  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Ftarget.example%2Fpage&rut=abc">Target Page</a>
			  <a class="result__snippet">A snippet.</a>
			</div>
			<div class="result"><a class="result__a" href="https://direct.example">Direct</a></div>
			<div class="result"><span>no link</span></div>
		</body></html>`)
	}))
	defer page.Close()
	swap(t, &ddgInstantBase, instant.URL)
	swap(t, &ddgHTMLBase, page.URL)

	b := &DuckDuckGoBackend{Client: httputil.NewClient(http.DefaultClient, "test", 0)}
	results, err := b.Search(context.Background(), "rare query", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "https://target.example/page", results[0].URL)
	assert.Equal(t, "A snippet.", results[0].Snippet)
	assert.Equal(t, "https://direct.example", results[1].URL)
}

func TestDecodeDDGRedirect(t *testing.T) {
	assert.Equal(t, "https://a.example/x", decodeDDGRedirect("//duckduckgo.com/l/?uddg=https%3A%2F%2Fa.example%2Fx"))
	assert.Equal(t, "https://b.example", decodeDDGRedirect("https://b.example"))
	assert.Equal(t, "https://c.example/p", decodeDDGRedirect("//c.example/p"))
}

// --- Brave ---

func TestBraveSearch(t *testing.T) {
	var token string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.Header.Get("X-Subscription-Token")
		assert.Equal(t, "20", r.URL.Query().Get("count"))
		fmt.Fprint(w, `{"web":{"results":[
			{"title":"B1","url":"https://b1.example","description":"<strong>bold</strong> text","age":"2 days ago"},
			{"title":"B2","url":"https://b2.example","description":"plain"}]}}`)
	}))
	defer ts.Close()
	swap(t, &braveAPIBase, ts.URL)

	b := &BraveBackend{Client: testClient(ts), APIKey: "tok"}
	results, err := b.Search(context.Background(), "q", 50)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "tok", token)
	assert.Equal(t, "bold text", results[0].Snippet)
	assert.InDelta(t, 0.86, results[1].Score, 1e-9)
	assert.True(t, b.Capabilities().Has(types.DomainNews))
}

func TestBraveRequiresKey(t *testing.T) {
	b := &BraveBackend{}
	_, err := b.Search(context.Background(), "q", 5)
	assert.Error(t, err)
	assert.False(t, b.Healthy(context.Background()))
}

// --- GitHub ---

func TestGitHubSearch(t *testing.T) {
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.True(t, strings.HasSuffix(r.URL.Path, "/search/repositories"), r.URL.Path)
		assert.Equal(t, "http client", r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"total_count":2,"items":[
			{"full_name":"acme/http","html_url":"https://github.com/acme/http","description":"HTTP client",
			 "stargazers_count":42,"language":"Go","owner":{"login":"acme"},"updated_at":"2025-11-03T10:00:00Z"},
			{"full_name":"other/req","html_url":"https://github.com/other/req","description":"requests"}]}`)
	}))
	defer ts.Close()

	b := NewGitHub(ts.Client(), "ghp_test")
	require.NoError(t, b.withBaseURL(ts.URL))

	results, err := b.Search(context.Background(), "http client", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Bearer ghp_test", auth)
	assert.Equal(t, "acme/http", results[0].Title)
	assert.Equal(t, "https://github.com/acme/http", results[0].URL)
	assert.Equal(t, []string{"acme"}, results[0].Authors)
	assert.Equal(t, "2025-11-03", results[0].PublishedDate)
	assert.Equal(t, 42, results[0].Metadata["stars"])
	assert.Equal(t, types.DomainCode, b.Capabilities())
}

// --- registry ---

func TestNewBackends(t *testing.T) {
	cfg := types.SearchConfig{
		SearXNGURL:       "http://localhost:8080",
		EnableSearXNG:    true,
		EnableWikipedia:  true,
		EnableArxiv:      true,
		EnableDuckDuckGo: true,
	}
	var names []string
	for _, b := range NewBackends(cfg, http.DefaultClient, zap.NewNop()) {
		names = append(names, b.Name())
	}
	assert.Equal(t, []string{"searxng", "searxng_news", "wikipedia", "arxiv", "duckduckgo"}, names)

	cfg.BraveAPIKey = "k"
	cfg.EnableGitHub = true
	cfg.EnableSearXNG = false
	names = nil
	for _, b := range NewBackends(cfg, http.DefaultClient, zap.NewNop()) {
		names = append(names, b.Name())
	}
	assert.Equal(t, []string{"wikipedia", "arxiv", "duckduckgo", "brave", "github"}, names)
}
