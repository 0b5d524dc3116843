// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/deep-research/internal/citation"
	"github.com/pdiddy/deep-research/pkg/types"
)

// promptData is the input to every prompt template. Each template reads
// only the fields it needs.
type promptData struct {
	Query    string
	N        int
	Context  string
	Summary  string
	Previous string

	Findings   []types.Finding
	Groups     []findingGroup
	Results    []types.SearchResult
	Citations  []types.Citation
	Sources    []sourceEntry
	Strategies []Info
}

type findingGroup struct {
	Question string
	Findings []types.Finding
}

type sourceEntry struct {
	types.Citation
	Excerpt string
}

var funcs = template.FuncMap{
	"clip": func(n int, s string) string { return clip(s, n) },
	"inc":  func(i int) int { return i + 1 },
	"join": strings.Join,
	"authors": func(a []string) string {
		if len(a) > 3 {
			a = a[:3]
		}
		return strings.Join(a, ", ")
	},
}

func mustPrompt(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).Parse(text))
}

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

var rapidAnswerTmpl = mustPrompt("rapid-answer", `Based on the following search results, provide a comprehensive answer to the question.
Include inline citations like [1], [2] referring to the source numbers.

Question: {{.Query}}

Search Results:
{{.Context}}

Instructions:
- Provide a detailed, well-structured answer
- Use inline citations [1], [2] to reference sources
- If information is insufficient, state what is known and what needs more research
- Be factual and objective

Answer:`)

var decomposeTmpl = mustPrompt("decompose", `Break down this research question into {{.N}} specific sub-questions
that would help answer the main question comprehensively.

Main question: {{.Query}}

Return ONLY the sub-questions, one per line, numbered 1-{{.N}}.
Each sub-question should be specific and searchable.

Sub-questions:`)

var gapsTmpl = mustPrompt("gaps", `Based on the original question and the current research findings,
identify 2-3 knowledge gaps or follow-up questions that would improve the answer.

Original question: {{.Query}}

Current findings (summary):
{{clip 2000 .Summary}}

If the current findings are comprehensive enough, respond with "COMPLETE".
Otherwise, list 2-3 follow-up questions, one per line:`)

var synthesizeTmpl = mustPrompt("synthesize", `Synthesize the following research findings into a coherent summary.

Original question: {{.Query}}

Research findings:
{{range $i, $f := .Findings}}[{{inc $i}}] {{$f.SourceTitle}}: {{clip 300 $f.Content}}
{{end}}
Previous summary:
{{if .Previous}}{{clip 1000 .Previous}}{{else}}None yet{{end}}

Create an updated, comprehensive summary with inline citations [1], [2].
Focus on answering the original question.

Summary:`)

var finalSynthesisTmpl = mustPrompt("final-synthesis", `Create a comprehensive, well-structured research answer based on all findings.

Original question: {{.Query}}

Research Summary:
{{clip 3000 .Summary}}

Sources:
{{range .Citations}}[{{.Number}}] {{.Title}} - {{.URL}}
{{end}}
Instructions:
- Write a detailed, well-organized answer
- Use clear headings and sections (## for main sections, ### for sub-sections)
- Include inline citations [1], [2] using the source numbers above
- End with a "## Sources" section listing all referenced sources
- Be thorough but avoid speculation
- Synthesize information from multiple sources

Answer:`)

var sourceReportTmpl = mustPrompt("source-report", `Create a comprehensive, well-sourced research report.

Original Question: {{.Query}}

Research organized by sub-questions:
{{range .Groups}}
### Sub-question: {{.Question}}
{{range .Findings}}- [{{.SourceTitle}}]: {{clip 300 .Content}}
{{end}}{{end}}
Detailed Source Information:
{{range .Sources}}[{{.Number}}] Title: {{.Title}}
    URL: {{.URL}}
    Engine: {{.SourceEngine}}
{{- if .Authors}}
    Authors: {{authors .Authors}}{{end}}
{{- if .Date}}
    Date: {{.Date}}{{end}}
    Excerpt: {{clip 200 .Excerpt}}
{{end}}
Instructions:
- Write a thorough, academic-style answer
- Use ## headings for main sections, ### for sub-sections
- Include inline citations [1], [2] throughout using the source numbers above
- Every major claim must have a citation
- End with:
  ## Sources
  List all sources with numbers, titles, and URLs
- Be comprehensive but factual

Research Report:`)

var focusTmpl = mustPrompt("focus", `Analyze these initial search results and identify {{.N}}
specific focus areas that need deeper investigation to fully answer the question.

Question: {{.Query}}

Initial results:
{{range .Results}}- {{.Title}}: {{clip 200 .Snippet}}
{{end}}
List {{.N}} specific, searchable focus queries that would uncover
important details not covered in the initial results. One per line:`)

var confidenceTmpl = mustPrompt("confidence", `Rate the confidence level of this answer on a scale of 0.0 to 1.0.
Consider completeness, accuracy indicators, and source quality.

Question: {{.Query}}

Current answer:
{{clip 2000 .Summary}}

Respond with ONLY a number between 0.0 and 1.0:`)

var variationsTmpl = mustPrompt("variations", `Generate {{.N}} different search queries that would help
comprehensively answer this question. Each query should approach the topic from
a different angle or focus on different aspects.

Question: {{.Query}}

Generate search queries, one per line:`)

var parallelSynthesisTmpl = mustPrompt("parallel-synthesis", `Create a comprehensive research answer by synthesizing these parallel search results.

Question: {{.Query}}

Research Findings:
{{range $i, $f := .Findings}}[{{inc $i}}] ({{$f.SourceEngine}}) {{$f.SourceTitle}}: {{clip 300 $f.Content}}

{{end}}Sources:
{{range .Citations}}[{{.Number}}] {{.Title}} - {{.URL}}
{{end}}
Instructions:
- Create a well-structured answer with headings
- Include inline citations [1], [2] using the source numbers above
- Cover all aspects found across different search queries
- End with a Sources section

Answer:`)

var selectTmpl = mustPrompt("select-strategy", `Analyze this research query and determine the best research strategy.

Query: {{.Query}}

Available strategies:
{{range $i, $s := .Strategies}}{{inc $i}}. "{{$s.ID}}" - {{$s.Description}}. Best for: {{$s.BestFor}}.
{{end}}
Respond with ONLY the strategy name (e.g., "iterative"):`)

// citedSources numbers the first limit sources the way the exported
// bibliography will, so inline markers in the report match it.
func citedSources(sources []types.SearchResult, limit int) []types.Citation {
	cites := citation.FromSources(sources).Citations()
	if len(cites) > limit {
		cites = cites[:limit]
	}
	return cites
}

// lastFindings returns at most n findings from the end.
func lastFindings(fs []types.Finding, n int) []types.Finding {
	if len(fs) > n {
		return fs[len(fs)-n:]
	}
	return fs
}

// firstFindings returns at most n findings from the start.
func firstFindings(fs []types.Finding, n int) []types.Finding {
	if len(fs) > n {
		return fs[:n]
	}
	return fs
}

// groupFindings groups findings by sub-question in first-seen order,
// keeping at most perGroup findings each.
func groupFindings(fs []types.Finding, perGroup int) []findingGroup {
	var groups []findingGroup
	index := map[string]int{}
	for _, f := range fs {
		i, ok := index[f.SubQuestion]
		if !ok {
			i = len(groups)
			index[f.SubQuestion] = i
			groups = append(groups, findingGroup{Question: f.SubQuestion})
		}
		if len(groups[i].Findings) < perGroup {
			groups[i].Findings = append(groups[i].Findings, f)
		}
	}
	return groups
}
