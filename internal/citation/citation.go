// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package citation numbers sources for cited answers. Numbers are assigned
// on first sight of a normalized URL and never change afterwards.
package citation

import (
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/deep-research/pkg/types"
)

// Handler assigns citation numbers. It is not safe for concurrent use; a
// Handler belongs to one research run.
type Handler struct {
	citations []*types.Citation
	byURL     map[string]*types.Citation
}

// NewHandler returns an empty Handler.
func NewHandler() *Handler {
	return &Handler{byURL: make(map[string]*types.Citation)}
}

// FromSources returns a Handler with every source added in order.
func FromSources(sources []types.SearchResult) *Handler {
	h := NewHandler()
	h.AddAll(sources)
	return h
}

// Add returns the citation for src, creating it with the next number when
// its normalized URL has not been seen. A known URL returns the existing
// citation unchanged.
func (h *Handler) Add(src types.SearchResult) *types.Citation {
	key := sourceKey(src.URL, src.Title)
	if c, ok := h.byURL[key]; ok {
		return c
	}
	c := &types.Citation{
		Number:       len(h.citations) + 1,
		Title:        src.Title,
		URL:          src.URL,
		Authors:      src.Authors,
		Date:         src.PublishedDate,
		SourceEngine: src.SourceEngine,
	}
	h.citations = append(h.citations, c)
	h.byURL[key] = c
	return c
}

// AddAll adds each source in order.
func (h *Handler) AddAll(sources []types.SearchResult) {
	for _, s := range sources {
		h.Add(s)
	}
}

// sourceKey identifies a source by normalized URL. Without a URL the
// title is the only identity available.
func sourceKey(url, title string) string {
	if key := types.NormalizeURL(url); key != "" {
		return key
	}
	return "title:" + types.NormalizeTitle(title)
}

// Lookup returns the citation for url, if any.
func (h *Handler) Lookup(url string) (*types.Citation, bool) {
	key := types.NormalizeURL(url)
	if key == "" {
		return nil, false
	}
	c, ok := h.byURL[key]
	return c, ok
}

// LookupSource returns the citation src was or would be numbered under,
// matching by URL, or by title when src has no URL.
func (h *Handler) LookupSource(src types.SearchResult) (*types.Citation, bool) {
	c, ok := h.byURL[sourceKey(src.URL, src.Title)]
	return c, ok
}

// Len returns the number of citations.
func (h *Handler) Len() int { return len(h.citations) }

// Citations returns copies of the citations in number order.
func (h *Handler) Citations() []types.Citation {
	out := make([]types.Citation, len(h.citations))
	for i, c := range h.citations {
		out[i] = *c
	}
	return out
}

// Format renders one citation as "[n] Title. Authors (date). URL".
func Format(c types.Citation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s.", c.Number, strings.TrimSuffix(strings.TrimSpace(c.Title), "."))
	if len(c.Authors) > 0 {
		authors := c.Authors
		suffix := ""
		if len(authors) > 3 {
			authors = authors[:3]
			suffix = " et al."
		}
		part := strings.Join(authors, ", ") + suffix
		if c.Date != "" {
			part += " (" + c.Date + ")"
		}
		if !strings.HasSuffix(part, ".") {
			part += "."
		}
		b.WriteString(" " + part)
	} else if c.Date != "" {
		fmt.Fprintf(&b, " (%s).", c.Date)
	}
	if c.URL != "" {
		fmt.Fprintf(&b, " %s", c.URL)
	}
	return b.String()
}

// Bibliography returns the numbered reference list, one citation per line.
func (h *Handler) Bibliography() string {
	lines := make([]string, len(h.citations))
	for i, c := range h.citations {
		lines[i] = Format(*c)
	}
	return strings.Join(lines, "\n")
}

// WriteBibliography writes the reference list to w.
func (h *Handler) WriteBibliography(w io.Writer) error {
	if len(h.citations) == 0 {
		_, err := fmt.Fprintln(w, "No sources.")
		return err
	}
	_, err := fmt.Fprintln(w, h.Bibliography())
	return err
}

// SourceList renders sources for a prompt, each prefixed with its citation
// number. Sources beyond limit are omitted when limit > 0.
func (h *Handler) SourceList(limit int) string {
	var b strings.Builder
	for i, c := range h.citations {
		if limit > 0 && i >= limit {
			break
		}
		fmt.Fprintf(&b, "[%d] %s (%s)\n", c.Number, c.Title, c.URL)
	}
	return b.String()
}
