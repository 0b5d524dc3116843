// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"regexp"
	"strconv"
	"strings"
)

// NeutralConfidence is returned when no score can be read from a reply.
const NeutralConfidence = 0.5

// minListItemLen drops fragments such as headings or "Sure!".
const minListItemLen = 10

var (
	listMarkerRe = regexp.MustCompile(`^\s*(?:\d+[\.\)]|[-*•]|Q\d+[:\.])\s*`)
	confidenceRe = regexp.MustCompile(`\b(?:0(?:\.\d+)?|1(?:\.0+)?)\b`)
)

// ParseList splits a model reply into items, one per line, with numbering
// and bullets removed. Lines of minListItemLen characters or fewer are
// dropped. At most max items are returned when max > 0. A diagnostic
// reply yields nil.
func ParseList(text string, max int) []string {
	if IsDiagnostic(text) {
		return nil
	}
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(listMarkerRe.ReplaceAllString(line, ""))
		line = strings.Trim(line, `"`)
		if len(line) <= minListItemLen {
			continue
		}
		items = append(items, line)
		if max > 0 && len(items) >= max {
			break
		}
	}
	return items
}

// ParseConfidence reads the first standalone number in [0,1] from a reply,
// so "7 out of 10" does not read as 1. Values
// are clamped; an unparsable or diagnostic reply yields NeutralConfidence.
func ParseConfidence(text string) float64 {
	if IsDiagnostic(text) {
		return NeutralConfidence
	}
	m := confidenceRe.FindString(text)
	if m == "" {
		return NeutralConfidence
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return NeutralConfidence
	}
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
