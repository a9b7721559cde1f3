package analysis

import (
	"strings"

	"github.com/BroWo1/factcheck-backend/pkg/utils"
)

// Traditional variant payloads.

type TopicAnalysis struct {
	StepMeta
	MainTopic           string   `json:"main_topic"`
	FactualClaims       []string `json:"factual_claims"`
	PotentialPublishers []string `json:"potential_publishers,omitempty"`
	SearchKeywords      []string `json:"search_keywords"`
	ClaimType           string   `json:"claim_type,omitempty"`
	UrgencyLevel        string   `json:"urgency_level,omitempty"`
	ComplexityScore     float64  `json:"complexity_score,omitempty"`
	InitialAssessment   string   `json:"initial_assessment,omitempty"`
}

type SourceSearch struct {
	StepMeta
	Queries        []string    `json:"queries"`
	Results        []SearchHit `json:"results"`
	TotalFound     int         `json:"total_found"`
	FailedSearches int         `json:"failed_searches"`
}

type ExtractedSource struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Publisher string `json:"publisher"`
}

type ContentExtraction struct {
	StepMeta
	Attempted    int               `json:"attempted"`
	CrawledCount int               `json:"crawled_count"`
	Skipped      int               `json:"skipped"`
	Sources      []ExtractedSource `json:"sources"`
}

type SourceScore struct {
	URL                  string   `json:"url"`
	CredibilityScore     *float64 `json:"credibility_score"`
	RelevanceScore       *float64 `json:"relevance_score"`
	SupportsClaim        *bool    `json:"supports_claim"`
	KeyPoints            any      `json:"key_points,omitempty"`
	PublisherReliability any      `json:"publisher_reliability,omitempty"`
	BiasAssessment       any      `json:"bias_assessment,omitempty"`
	FactCheckNotes       any      `json:"fact_check_notes,omitempty"`
}

type SourceEvaluation struct {
	StepMeta
	SourceEvaluations []SourceScore `json:"source_evaluations"`
	OverallAssessment any           `json:"overall_assessment,omitempty"`
}

type Verdict struct {
	StepMeta
	Verdict               string   `json:"verdict"`
	ConfidenceScore       *float64 `json:"confidence_score"`
	Reasoning             string   `json:"reasoning"`
	KeyEvidence           any      `json:"key_evidence,omitempty"`
	SupportingEvidence    any      `json:"supporting_evidence,omitempty"`
	ContradictoryEvidence any      `json:"contradictory_evidence,omitempty"`
	SourceQualitySummary  any      `json:"source_quality_summary,omitempty"`
	Limitations           any      `json:"limitations,omitempty"`
	Recommendations       any      `json:"recommendations,omitempty"`
}

// Search-augmented variant payloads.

type InitialSearch struct {
	StepMeta
	MainTopic                  string `json:"main_topic"`
	ClaimType                  string `json:"claim_type"`
	InitialCredibleSources     any    `json:"initial_credible_sources,omitempty"`
	GeneralSummary             string `json:"general_summary"`
	SearchStrategy             any    `json:"search_strategy,omitempty"`
	PreliminaryAssessment      string `json:"preliminary_assessment"`
	AreasNeedingDeeperResearch any    `json:"areas_needing_deeper_research,omitempty"`
}

type DeeperExploration struct {
	StepMeta
	SpecificEvidence         any    `json:"specific_evidence,omitempty"`
	CounterArguments         any    `json:"counter_arguments,omitempty"`
	ExpertPerspectives       any    `json:"expert_perspectives,omitempty"`
	RecentDevelopments       any    `json:"recent_developments,omitempty"`
	ContextualFactors        any    `json:"contextual_factors,omitempty"`
	ContradictoryInformation any    `json:"contradictory_information,omitempty"`
	AreasOfUncertainty       any    `json:"areas_of_uncertainty,omitempty"`
	RawFindings              string `json:"raw_findings,omitempty"`
}

type CredibilityEvaluation struct {
	StepMeta
	SourceCredibilityAnalysis any    `json:"source_credibility_analysis,omitempty"`
	OverallSourceQuality      any    `json:"overall_source_quality,omitempty"`
	CrossReferenceAnalysis    any    `json:"cross_reference_analysis,omitempty"`
	RedFlags                  any    `json:"red_flags,omitempty"`
	SourceRecommendations     any    `json:"source_recommendations,omitempty"`
	RawEvaluation             string `json:"raw_evaluation,omitempty"`
}

type ConclusionVerdict struct {
	Classification  string   `json:"classification"`
	ConfidenceScore *float64 `json:"confidence_score"`
	Summary         string   `json:"summary"`
}

type FinalConclusion struct {
	StepMeta
	Verdict             ConclusionVerdict `json:"verdict"`
	DetailedAnalysis    any               `json:"detailed_analysis,omitempty"`
	MethodologySummary  any               `json:"methodology_summary,omitempty"`
	Recommendations     any               `json:"recommendations,omitempty"`
	FollowUpSuggestions any               `json:"follow_up_suggestions,omitempty"`
}

// Research variant payloads.

type ResearchUnderstanding struct {
	StepMeta
	ResearchQuestion       string `json:"research_question"`
	QuestionType           string `json:"question_type,omitempty"`
	ResearchScope          any    `json:"research_scope,omitempty"`
	KeyConcepts            any    `json:"key_concepts,omitempty"`
	SearchStrategy         any    `json:"search_strategy,omitempty"`
	InitialUnderstanding   string `json:"initial_understanding"`
	ResearchAreas          any    `json:"research_areas,omitempty"`
	MethodologySuggestions any    `json:"methodology_suggestions,omitempty"`
	ExpectedOutcomes       any    `json:"expected_outcomes,omitempty"`
}

type GeneralResearch struct {
	StepMeta
	GeneralFindings           any    `json:"general_findings,omitempty"`
	KeyInformation            any    `json:"key_information,omitempty"`
	TopicOverview             string `json:"topic_overview"`
	RelatedTopics             any    `json:"related_topics,omitempty"`
	PreliminaryInsights       any    `json:"preliminary_insights,omitempty"`
	AreasForDeeperResearch    any    `json:"areas_for_deeper_research,omitempty"`
	InformationGaps           any    `json:"information_gaps,omitempty"`
	ResearchQualityAssessment any    `json:"research_quality_assessment,omitempty"`
}

type SpecificResearch struct {
	StepMeta
	DetailedFindings      any    `json:"detailed_findings,omitempty"`
	SpecificInsights      any    `json:"specific_insights,omitempty"`
	ExpertOpinions        any    `json:"expert_opinions,omitempty"`
	CaseStudies           any    `json:"case_studies,omitempty"`
	DataPoints            any    `json:"data_points,omitempty"`
	ConflictingViewpoints any    `json:"conflicting_viewpoints,omitempty"`
	ResearchGaps          any    `json:"research_gaps,omitempty"`
	PracticalApplications any    `json:"practical_applications,omitempty"`
	RawFindings           string `json:"raw_findings,omitempty"`
}

// Fallbacks keep whatever the raw text offers so later steps still have
// something to reason over.

func fallbackTopicAnalysis(claim string) func(raw string) TopicAnalysis {
	return func(raw string) TopicAnalysis {
		return TopicAnalysis{
			MainTopic:         utils.Truncate(claim, 200),
			SearchKeywords:    ExtractKeywords(claim, 5),
			ClaimType:         "other",
			InitialAssessment: utils.Truncate(raw, 500),
		}
	}
}

func fallbackSourceEvaluation(raw string) SourceEvaluation {
	return SourceEvaluation{
		OverallAssessment: utils.Truncate(raw, 1000),
	}
}

func fallbackVerdict(raw string) Verdict {
	return Verdict{
		Verdict:   VerdictUncertain,
		Reasoning: utils.Truncate(raw, 1000),
	}
}

func fallbackInitialSearch(raw string) InitialSearch {
	return InitialSearch{
		MainTopic:             "Analysis completed but unable to parse structured response",
		ClaimType:             "other",
		GeneralSummary:        utils.Truncate(raw, 500),
		PreliminaryAssessment: "Unable to determine due to parsing error",
	}
}

func fallbackDeeperExploration(raw string) DeeperExploration {
	return DeeperExploration{
		AreasOfUncertainty: []string{"Unable to parse structured response"},
		RawFindings:        utils.Truncate(raw, 1000),
	}
}

func fallbackCredibilityEvaluation(raw string) CredibilityEvaluation {
	return CredibilityEvaluation{
		SourceRecommendations: "Unable to parse structured evaluation",
		RawEvaluation:         utils.Truncate(raw, 1000),
	}
}

func fallbackFinalConclusion(raw string) FinalConclusion {
	zero := 0.0
	return FinalConclusion{
		Verdict: ConclusionVerdict{
			Classification:  VerdictUncertain,
			ConfidenceScore: &zero,
			Summary:         "Unable to reach a structured conclusion",
		},
		DetailedAnalysis: map[string]string{"reasoning": utils.Truncate(raw, 1000)},
	}
}

func fallbackUnderstanding(raw string) ResearchUnderstanding {
	return ResearchUnderstanding{
		ResearchQuestion:     "Unable to parse structured response",
		QuestionType:         "other",
		InitialUnderstanding: utils.Truncate(raw, 500),
	}
}

func fallbackGeneralResearch(raw string) GeneralResearch {
	return GeneralResearch{
		TopicOverview: utils.Truncate(raw, 1000),
	}
}

func fallbackSpecificResearch(raw string) SpecificResearch {
	return SpecificResearch{
		RawFindings: utils.Truncate(raw, 1000),
	}
}

const (
	VerdictTrue       = "true"
	VerdictLikely     = "likely"
	VerdictUncertain  = "uncertain"
	VerdictSuspicious = "suspicious"
	VerdictFalse      = "false"
	VerdictCompleted  = "completed"
)

// NormalizeVerdict maps collaborator classifications onto the five-value
// verdict vocabulary.
func NormalizeVerdict(v string) string {
	s := strings.ToLower(strings.TrimSpace(v))
	s = strings.ReplaceAll(s, " ", "_")
	switch s {
	case VerdictTrue, VerdictLikely, VerdictUncertain, VerdictSuspicious, VerdictFalse:
		return s
	case "likely_true", "mostly_true":
		return VerdictLikely
	case "likely_false", "mostly_false", "misleading":
		return VerdictSuspicious
	default:
		return VerdictUncertain
	}
}

func clampConfidence(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	c := *v
	if c > 1 && c <= 100 {
		c /= 100
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
