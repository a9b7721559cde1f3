package llm

import (
	"encoding/json"
	"fmt"
)

const jsonOnly = `CRITICAL: Respond with ONLY valid JSON. Do not include any text before or after the JSON and do not use markdown code blocks.`

const factCheckerSystem = `You are an expert fact-checker. You are thorough, balanced and transparent about uncertainty. Answer in the language of the claim.`

func analyzeClaimPrompt(claim string) string {
	return fmt.Sprintf(`Analyze the following claim and provide a structured analysis.

Claim: %s

Provide a JSON response with this structure:
{
    "main_topic": "The primary topic or subject matter",
    "factual_claims": ["Specific factual claims that can be verified"],
    "potential_publishers": ["Credible news sources likely to have covered this topic"],
    "search_keywords": ["Effective search terms for finding relevant information"],
    "claim_type": "news_event|historical_fact|scientific_claim|statistical_claim|other",
    "urgency_level": "high|medium|low",
    "complexity_score": 5,
    "initial_assessment": "Brief initial assessment of the claim's plausibility"
}

Identify the most important aspects to verify. If an image is attached, treat its content as part of the claim.
%s`, claim, jsonOnly)
}

func evaluateSourcesPrompt(claim string, sources any) string {
	return fmt.Sprintf(`Evaluate the following sources for credibility and relevance to the claim.

Original claim: %s

Sources to evaluate:
%s

Provide a JSON response with this structure:
{
    "source_evaluations": [
        {
            "url": "source_url",
            "credibility_score": 0.0,
            "relevance_score": 0.0,
            "supports_claim": true,
            "key_points": ["Important points from this source"],
            "publisher_reliability": "high|medium|low|unknown",
            "bias_assessment": "left|center|right|unknown",
            "fact_check_notes": "Notes about this source's reliability"
        }
    ],
    "overall_assessment": "Summary of source quality and consensus"
}

Scores are between 0.0 and 1.0. Use null for supports_claim when the source neither supports nor contradicts the claim.
%s`, claim, indentJSON(sources), jsonOnly)
}

func verdictPrompt(claim string, evidence any) string {
	return fmt.Sprintf(`Provide a final verdict on the claim based on the gathered evidence.

Original claim: %s

Evidence and analysis:
%s

Provide a JSON response with this structure:
{
    "verdict": "true|likely|uncertain|suspicious|false",
    "confidence_score": 0.0,
    "reasoning": "Detailed explanation of the verdict",
    "key_evidence": ["Most important evidence points"],
    "contradictory_evidence": ["Evidence that contradicts the claim"],
    "supporting_evidence": ["Evidence that supports the claim"],
    "source_quality_summary": "Assessment of overall source quality",
    "limitations": ["Limitations of this fact-check"],
    "recommendations": ["Recommendations for further verification"],
    "summary": "Brief summary suitable for display to users"
}
%s`, claim, indentJSON(evidence), jsonOnly)
}

func initialSearchPrompt(claim string) string {
	return fmt.Sprintf(`You are an expert fact-checker performing an initial search for credible sources. Search the web for the most authoritative sources on the following claim. Respond in the language of the claim.

Claim: %s

Focus on primary sources (official statements, government documents), news organizations with strong fact-checking reputations, academic sources and recognized experts.

Provide your response in this JSON structure:
{
    "main_topic": "The primary topic",
    "claim_type": "news_event|historical_fact|scientific_claim|statistical_claim|political_statement|other",
    "initial_credible_sources": [
        {"source_name": "", "source_type": "news|academic|government|expert|other", "credibility_level": "high|medium|low", "key_information": ""}
    ],
    "general_summary": "What current credible sources say about this topic",
    "search_strategy": "Which search approach was most effective",
    "preliminary_assessment": "Initial assessment based on the sources found",
    "areas_needing_deeper_research": ["Aspects that need more investigation"]
}

Always use web search rather than internal knowledge.
%s`, claim, jsonOnly)
}

func deeperExplorationPrompt(claim string, initial any) string {
	return fmt.Sprintf(`You are an expert fact-checker conducting deeper research. Use web search to look for specific evidence, counter-arguments, expert opinion and recent developments.

Claim: %s

Initial findings:
%s

Provide your response in this JSON structure:
{
    "specific_evidence": [{"evidence": "", "source": "", "supports_claim": true}],
    "counter_arguments": ["Credible counter-arguments"],
    "expert_perspectives": [{"expert": "", "position": ""}],
    "recent_developments": ["Developments that affect the claim"],
    "contextual_factors": ["Context needed to judge the claim"],
    "contradictory_information": ["Conflicting reports"],
    "areas_of_uncertainty": ["What remains unclear"]
}
%s`, claim, indentJSON(initial), jsonOnly)
}

func evaluateCitedPrompt(claim string, citations, findings any) string {
	return fmt.Sprintf(`You are an expert fact-checker evaluating the credibility of the sources cited so far. Use web search to check publisher reputations where needed.

Claim: %s

Cited sources:
%s

Findings so far:
%s

Provide your response in this JSON structure:
{
    "source_credibility_analysis": [{"url": "", "publisher": "", "credibility": "high|medium|low", "bias": "", "notes": ""}],
    "overall_source_quality": "high|medium|low",
    "cross_reference_analysis": "How well the sources agree",
    "red_flags": ["Warning signs about sources or evidence"],
    "source_recommendations": "Which sources to trust most"
}
%s`, claim, indentJSON(citations), indentJSON(findings), jsonOnly)
}

func finalConclusionPrompt(claim string, findings any) string {
	return fmt.Sprintf(`You are an expert fact-checker providing a final conclusion. Synthesize all previous research and use web search for any final verification.

Original claim: %s

Research summary:
%s

Provide your response in this JSON structure:
{
    "verdict": {
        "classification": "true|likely_true|uncertain|likely_false|false",
        "confidence_score": 0.85,
        "summary": "Brief summary suitable for display to users"
    },
    "detailed_analysis": {
        "reasoning": "",
        "key_evidence": [],
        "supporting_evidence": [],
        "contradictory_evidence": [],
        "limitations": []
    },
    "methodology_summary": {"search_approach": "", "sources_consulted": ""},
    "recommendations": ["How readers should interpret this information"],
    "follow_up_suggestions": ["Further research or developments to monitor"]
}
%s`, claim, indentJSON(findings), jsonOnly)
}

func understandRequestPrompt(request string) string {
	return fmt.Sprintf(`You are a research analyst. Clarify the following research request before any research is done. Respond in the language of the request.

Research request: %s

Provide your response in this JSON structure:
{
    "research_question": "The precise question to answer",
    "question_type": "factual|comparative|explanatory|exploratory|other",
    "research_scope": {"includes": [], "excludes": []},
    "key_concepts": ["Concepts to understand"],
    "search_strategy": ["Searches that will be most useful"],
    "initial_understanding": "What is already known",
    "research_areas": ["Areas to investigate"],
    "methodology_suggestions": [],
    "expected_outcomes": []
}
%s`, request, jsonOnly)
}

func generalResearchPrompt(request string, understanding any) string {
	return fmt.Sprintf(`You are a research analyst. Use web search to build a broad overview of the topic.

Research request: %s

Research plan:
%s

Provide your response in this JSON structure:
{
    "general_findings": [{"finding": "", "source": ""}],
    "key_information": [],
    "topic_overview": "A broad overview of the topic",
    "related_topics": [],
    "preliminary_insights": [],
    "areas_for_deeper_research": [],
    "information_gaps": [],
    "research_quality_assessment": ""
}
%s`, request, indentJSON(understanding), jsonOnly)
}

func specificResearchPrompt(request string, findings any) string {
	return fmt.Sprintf(`You are a research analyst. Use web search to research the specific details that the general research identified.

Research request: %s

Research so far:
%s

Provide your response in this JSON structure:
{
    "detailed_findings": [{"finding": "", "source": ""}],
    "specific_insights": [],
    "expert_opinions": [],
    "case_studies": [],
    "data_points": [],
    "conflicting_viewpoints": [],
    "research_gaps": [],
    "practical_applications": []
}
%s`, request, indentJSON(findings), jsonOnly)
}

func reportPrompt(request string, findings any) string {
	return fmt.Sprintf(`You are a research analyst writing the final report. Use web search to verify key facts.

Research request: %s

Research findings:
%s

Write a comprehensive report in Markdown with a title, an executive summary, sections for the main findings, a discussion of conflicting views and open questions, and a conclusion. Cite sources inline. Respond with the Markdown only.`, request, indentJSON(findings))
}

func stepSummaryPrompt(stepNumber int, payload any) string {
	return fmt.Sprintf(`Based on the following JSON data from step %d of a fact-checking process, write a concise, one-sentence summary for a non-technical user.

Data:
%s

Example summaries:
- "Identified the main topic and found initial credible sources to investigate the claim."
- "Gathered specific evidence and noted some conflicting reports that require further analysis."
- "Evaluated the reliability of the sources, finding most to be credible but with some potential for bias."

Your summary:`, stepNumber, indentJSON(payload))
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
