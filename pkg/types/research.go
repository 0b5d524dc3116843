// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Status is the lifecycle state of a research task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Finding is one piece of evidence tied to a sub-question and iteration.
type Finding struct {
	Content        string  `json:"content" yaml:"content"`
	SourceTitle    string  `json:"source_title" yaml:"source_title"`
	SourceURL      string  `json:"source_url" yaml:"source_url"`
	SourceEngine   string  `json:"source_engine" yaml:"source_engine"`
	RelevanceScore float64 `json:"relevance_score" yaml:"relevance_score"`
	SubQuestion    string  `json:"sub_question" yaml:"sub_question"`
	Iteration      int     `json:"iteration" yaml:"iteration"`
}

// ResearchState accumulates everything a strategy learns while running one
// task. It is owned by the single worker executing the task.
type ResearchState struct {
	Query     string `json:"query" yaml:"query"`
	Strategy  string `json:"strategy" yaml:"strategy"`
	Status    Status `json:"status" yaml:"status"`
	Iteration int    `json:"iteration" yaml:"iteration"`

	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// TotalSearches counts backend invocations issued, whether or not
	// they succeeded.
	TotalSearches int `json:"total_searches" yaml:"total_searches"`

	// Progress is a percentage in [0,100].
	Progress float64 `json:"progress" yaml:"progress"`

	Findings          []Finding      `json:"findings" yaml:"findings"`
	Sources           []SearchResult `json:"sources" yaml:"sources"`
	SubQuestions      []string       `json:"sub_questions" yaml:"sub_questions"`
	AnsweredQuestions []string       `json:"answered_questions" yaml:"answered_questions"`
	KnowledgeSummary  string         `json:"knowledge_summary" yaml:"knowledge_summary"`

	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Citation is a numbered reference to a source.
type Citation struct {
	Number       int      `json:"number" yaml:"number"`
	Title        string   `json:"title" yaml:"title"`
	URL          string   `json:"url" yaml:"url"`
	Authors      []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Date         string   `json:"date,omitempty" yaml:"date,omitempty"`
	SourceEngine string   `json:"source_engine,omitempty" yaml:"source_engine,omitempty"`
}

// TaskRecord is the durable view of a research task.
type TaskRecord struct {
	ID              string     `json:"id" yaml:"id" db:"id"`
	Query           string     `json:"query" yaml:"query" db:"query"`
	Strategy        string     `json:"strategy" yaml:"strategy" db:"strategy"`
	Status          Status     `json:"status" yaml:"status" db:"status"`
	Progress        float64    `json:"progress" yaml:"progress" db:"progress"`
	ProgressMessage string     `json:"progress_message" yaml:"progress_message" db:"progress_message"`
	ResultKnowledge string     `json:"result_knowledge,omitempty" yaml:"result_knowledge,omitempty" db:"result_knowledge"`
	ResultSources   string     `json:"result_sources,omitempty" yaml:"result_sources,omitempty" db:"result_sources"`
	ResultMetadata  string     `json:"result_metadata,omitempty" yaml:"result_metadata,omitempty" db:"result_metadata"`
	ErrorMessage    string     `json:"error_message,omitempty" yaml:"error_message,omitempty" db:"error_message"`
	CreatedAt       time.Time  `json:"created_at" yaml:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" yaml:"updated_at" db:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty" db:"completed_at"`
}

// TaskUpdate carries the fields to change on a task record. Nil fields are
// left untouched.
type TaskUpdate struct {
	Status          *Status
	Progress        *float64
	ProgressMessage *string
	ResultKnowledge *string
	ResultSources   *string
	ResultMetadata  *string
	ErrorMessage    *string
	CompletedAt     *time.Time
}
