// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package citation

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/deep-research/pkg/types"
)

// CSLItem is a bibliographic entry in CSL (Citation Style Language) form.
// Field names follow the CSL-YAML schema so output is consumable by Pandoc
// and reference managers.
type CSLItem struct {
	ID     string    `yaml:"id"`
	Type   string    `yaml:"type"`
	Title  string    `yaml:"title"`
	Author []CSLName `yaml:"author,omitempty"`
	Issued *CSLDate  `yaml:"issued,omitempty"`
	URL    string    `yaml:"URL,omitempty"`
	Source string    `yaml:"source,omitempty"`
}

// CSLName represents a person's name in CSL format.
type CSLName struct {
	Family  string `yaml:"family,omitempty"`
	Given   string `yaml:"given,omitempty"`
	Literal string `yaml:"literal,omitempty"`
}

// CSLDate represents a date in CSL format using date-parts.
type CSLDate struct {
	DateParts [][]int `yaml:"date-parts"`
}

// academicEngines produce scholarly articles; everything else is a web page.
var academicEngines = map[string]bool{
	"arxiv":            true,
	"semantic_scholar": true,
	"openalex":         true,
	"pubmed":           true,
}

// CSL returns the citations as CSL items.
func (h *Handler) CSL() []CSLItem {
	items := make([]CSLItem, len(h.citations))
	for i, c := range h.citations {
		items[i] = toCSLItem(*c)
	}
	return items
}

// WriteCSL writes the citations as a CSL-YAML list to w.
func (h *Handler) WriteCSL(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(h.CSL())
}

func toCSLItem(c types.Citation) CSLItem {
	item := CSLItem{
		ID:     fmt.Sprintf("ref%d", c.Number),
		Type:   "webpage",
		Title:  c.Title,
		URL:    c.URL,
		Source: c.SourceEngine,
	}
	if academicEngines[c.SourceEngine] {
		item.Type = "article"
	}
	for _, a := range c.Authors {
		item.Author = append(item.Author, parseAuthorName(a))
	}
	item.Issued = parseCSLDate(c.Date)
	return item
}

// parseCSLDate reads the leading YYYY, YYYY-MM or YYYY-MM-DD of s. Anything
// else (e.g. "3 days ago") yields nil.
func parseCSLDate(s string) *CSLDate {
	s = strings.TrimSpace(s)
	if len(s) < 4 {
		return nil
	}
	if len(s) > 10 {
		s = s[:10]
	}
	var parts []int
	for _, p := range strings.Split(s, "-") {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		parts = append(parts, n)
	}
	if len(parts) == 0 || parts[0] < 1000 {
		return nil
	}
	return &CSLDate{DateParts: [][]int{parts}}
}

// parseAuthorName splits a full name string into CSL family/given parts.
// It splits on the last space: everything before is given, the last token
// is family. Single-token names use the literal field.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	if name == "" {
		return CSLName{}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{
		Given:  name[:idx],
		Family: name[idx+1:],
	}
}
