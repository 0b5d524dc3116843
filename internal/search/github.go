// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/go-github/v68/github"

	"github.com/pdiddy/deep-research/pkg/types"
)

// GitHubBackend searches GitHub repositories. It serves code queries.
type GitHubBackend struct {
	client *github.Client
}

// NewGitHub returns a backend using hc. An empty token searches
// anonymously with the lower unauthenticated rate limit.
func NewGitHub(hc *http.Client, token string) *GitHubBackend {
	c := github.NewClient(hc)
	if token != "" {
		c = c.WithAuthToken(token)
	}
	return &GitHubBackend{client: c}
}

// withBaseURL points the client at another API root (used by tests).
func (b *GitHubBackend) withBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Path == "" || u.Path[len(u.Path)-1] != '/' {
		u.Path += "/"
	}
	b.client.BaseURL = u
	return nil
}

// Name returns the backend identifier.
func (b *GitHubBackend) Name() string { return "github" }

// Capabilities returns the code domain.
func (b *GitHubBackend) Capabilities() types.Domain { return types.DomainCode }

// Healthy checks the rate limit endpoint, which does not count against quota.
func (b *GitHubBackend) Healthy(ctx context.Context) bool {
	_, _, err := b.client.RateLimit.Get(ctx)
	return err == nil
}

// Search runs a repository search ordered by GitHub's best match.
func (b *GitHubBackend) Search(ctx context.Context, query string, maxResults int) ([]types.SearchResult, error) {
	if maxResults > 100 {
		maxResults = 100
	}
	res, _, err := b.client.Search.Repositories(ctx, query, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: maxResults},
	})
	if err != nil {
		return nil, fmt.Errorf("GitHub search: %w", err)
	}

	total := len(res.Repositories)
	var results []types.SearchResult
	for i, repo := range res.Repositories {
		if len(results) >= maxResults {
			break
		}
		r := types.SearchResult{
			Title:        repo.GetFullName(),
			URL:          repo.GetHTMLURL(),
			Snippet:      repo.GetDescription(),
			SourceEngine: b.Name(),
			Rank:         i + 1,
			Score:        positionScore(i, total),
			Metadata: map[string]any{
				"stars":    repo.GetStargazersCount(),
				"language": repo.GetLanguage(),
				"topics":   repo.Topics,
			},
		}
		if owner := repo.GetOwner().GetLogin(); owner != "" {
			r.Authors = []string{owner}
		}
		if ts := repo.GetUpdatedAt(); !ts.IsZero() {
			r.PublishedDate = ts.Format("2006-01-02")
		}
		results = append(results, r)
	}
	return results, nil
}
