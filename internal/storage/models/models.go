package models

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional write finds the row in an
	// unexpected state.
	ErrConflict = errors.New("record state conflict")
)

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionAnalyzing SessionStatus = "analyzing"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

type Mode string

const (
	ModeFactCheck Mode = "fact_check"
	ModeResearch  Mode = "research"
)

func (m Mode) Valid() bool {
	return m == ModeFactCheck || m == ModeResearch
}

type Variant string

const (
	VariantTraditional     Variant = "traditional"
	VariantSearchAugmented Variant = "search_augmented"
	VariantResearch        Variant = "research"
)

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
)

type StepType string

const (
	StepTopicAnalysis     StepType = "topic_analysis"
	StepSourceSearch      StepType = "source_search"
	StepContentExtraction StepType = "content_extraction"
	StepSourceEvaluation  StepType = "source_evaluation"
	StepFinalVerdict      StepType = "final_verdict"

	StepInitialWebSearch            StepType = "initial_web_search"
	StepDeeperExploration           StepType = "deeper_exploration"
	StepSourceCredibilityEvaluation StepType = "source_credibility_evaluation"
	StepFinalConclusion             StepType = "final_conclusion"

	StepResearchUnderstanding StepType = "research_understanding"
	StepGeneralResearch       StepType = "general_research"
	StepSpecificResearch      StepType = "specific_research"
)

type SearchType string

const (
	SearchGeneral   SearchType = "general"
	SearchNews      SearchType = "news"
	SearchFactCheck SearchType = "fact_check"
	SearchAcademic  SearchType = "academic"
)

func (t SearchType) Valid() bool {
	switch t {
	case SearchGeneral, SearchNews, SearchFactCheck, SearchAcademic:
		return true
	}
	return false
}

type Session struct {
	ID           string        `json:"id"`
	Input        string        `json:"user_input"`
	ImagePath    string        `json:"image_path,omitempty"`
	Mode         Mode          `json:"mode"`
	Variant      Variant       `json:"variant"`
	Status       SessionStatus `json:"status"`
	Verdict      string        `json:"verdict,omitempty"`
	Confidence   *float64      `json:"confidence_score,omitempty"`
	Summary      string        `json:"summary,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

type Step struct {
	ID           int64           `json:"id"`
	SessionID    string          `json:"session_id"`
	Number       int             `json:"step_number"`
	Type         StepType        `json:"step_type"`
	Description  string          `json:"description"`
	Status       StepStatus      `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

type Source struct {
	ID               int64     `json:"id"`
	SessionID        string    `json:"session_id"`
	URL              string    `json:"url"`
	Title            string    `json:"title"`
	Publisher        string    `json:"publisher"`
	PublishDate      string    `json:"publish_date,omitempty"`
	CredibilityScore float64   `json:"credibility_score"`
	RelevanceScore   float64   `json:"relevance_score"`
	SupportsClaim    *bool     `json:"supports_claim"`
	ContentSummary   string    `json:"content_summary"`
	AccessedAt       time.Time `json:"accessed_at"`
}

// SourceEvaluation is the score backfill an evaluation step writes onto a
// Source.
type SourceEvaluation struct {
	CredibilityScore float64
	RelevanceScore   float64
	SupportsClaim    *bool
}

type SearchQuery struct {
	ID           int64      `json:"id"`
	SessionID    string     `json:"session_id"`
	Query        string     `json:"query_text"`
	Type         SearchType `json:"search_type"`
	ResultsCount int        `json:"results_count"`
	Successful   bool       `json:"successful"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

type Interaction struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Type       string    `json:"interaction_type"`
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	Model      string    `json:"model"`
	TokensUsed int       `json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
}
