// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// QueryType classifies what kind of answer a query is after.
type QueryType string

const (
	QueryTypeFactual       QueryType = "factual"
	QueryTypeTechnical     QueryType = "technical"
	QueryTypeAcademic      QueryType = "academic"
	QueryTypeCurrentEvents QueryType = "current_events"
	QueryTypeCode          QueryType = "code"
	QueryTypeGeneral       QueryType = "general"
	QueryTypeLocal         QueryType = "local"
	QueryTypeProduct       QueryType = "product"
	QueryTypeDefinition    QueryType = "definition"
	QueryTypeHowTo         QueryType = "how_to"
)

// Complexity bands a query by structural difficulty.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Sentiment captures the rough stance of a query.
type Sentiment string

const (
	SentimentNeutral       Sentiment = "neutral"
	SentimentInvestigative Sentiment = "investigative"
	SentimentComparative   Sentiment = "comparative"
)

// Intent is the derived likely goal of the query.
type Intent string

const (
	IntentTroubleshoot     Intent = "troubleshoot"
	IntentCompareOptions   Intent = "compare_options"
	IntentLearn            Intent = "learn"
	IntentLocate           Intent = "locate"
	IntentPurchase         Intent = "purchase"
	IntentLookupDefinition Intent = "lookup_definition"
	IntentResearch         Intent = "research"
	IntentStayInformed     Intent = "stay_informed"
	IntentFindFact         Intent = "find_fact"
	IntentGeneralInfo      Intent = "general_info"
)

// QueryCharacteristics is the analyzer's feature vector. It is a pure
// function of the query string: same input, same output, always.
type QueryCharacteristics struct {
	QueryType        QueryType  `json:"query_type"`
	DomainsMentioned []string   `json:"domains_mentioned"`
	RequiresRecency  bool       `json:"requires_recency"`
	Complexity       Complexity `json:"complexity"`
	HasOperators     bool       `json:"has_operators"`
	Sentiment        Sentiment  `json:"sentiment"`
	LikelyIntent     Intent     `json:"likely_intent"`
	Keywords         []string   `json:"keywords"`
}

// queryTypeIndicators maps each query type to its indicator phrases.
// Declaration order is significant: classification ties resolve to the
// earliest entry, so the order must stay stable.
var queryTypeIndicators = []struct {
	Type       QueryType
	Indicators []string
}{
	{QueryTypeFactual, []string{
		"what is", "who is", "who was", "when did", "when was", "where is",
		"how many", "how much", "population of", "capital of", "distance between",
	}},
	{QueryTypeTechnical, []string{
		"how to implement", "error", "debug", "api", "sdk", "library",
		"framework", "install", "configure", "deploy", "websocket",
		"authentication", "database", "server", "docker", "kubernetes",
		"node.js", "python", "javascript", "golang", "typescript",
	}},
	{QueryTypeAcademic, []string{
		"research", "paper", "papers", "study", "studies", "journal",
		"thesis", "peer reviewed", "academic", "scientific", "hypothesis",
		"literature review", "citation",
	}},
	{QueryTypeCurrentEvents, []string{
		"news", "latest", "today", "breaking", "current", "recent",
		"this week", "this month", "announcement", "update",
	}},
	{QueryTypeCode, []string{
		"snippet", "example code", "code example", "implementation of",
		"algorithm", "regex", "syntax", "compile", "stack trace",
		"runtime error", "leetcode",
	}},
	{QueryTypeGeneral, nil},
	{QueryTypeLocal, []string{
		"near me", "nearby", "restaurant", "directions to", "weather in",
		"open now", "local", "closest",
	}},
	{QueryTypeProduct, []string{
		"buy", "price", "review", "reviews", "best", "cheapest", "deal",
		"alternative to", "worth it",
	}},
	{QueryTypeDefinition, []string{
		"define", "definition of", "meaning of", "what does", "synonym",
		"etymology", "stands for",
	}},
	{QueryTypeHowTo, []string{
		"how to", "how do i", "how can i", "tutorial", "guide", "steps to",
		"instructions", "set up", "setup",
	}},
}

var (
	domainPattern      = regexp.MustCompile(`(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}`)
	conjunctionPattern = regexp.MustCompile(`\b(and|or|but|with|without|except)\b`)
	comparativePattern = regexp.MustCompile(`\b(vs|versus|compare|better|worse|than)\b`)
	recencyPattern     = regexp.MustCompile(`\b(latest|newest|recent|recently|news|today|tonight|now|current|currently|breaking|upcoming|this (week|month|year)|20(2[0-9]|3[0-9]))\b`)
	operatorPattern    = regexp.MustCompile(`\b(site|filetype|intitle|inurl|inanchor|ext):`)
	booleanOperator    = regexp.MustCompile(`\bOR\b|\bAND\b`)
	troubleshootWords  = regexp.MustCompile(`\b(error|fix|fails?|failing|broken|crash|issue|not working|troubleshoot)\b`)
)

// domainSelectorPrefixes are stripped before domain extraction so that
// "site:example.com" and "@github.com" yield bare hostnames.
var domainSelectorPrefixes = []string{"site:", "from:", "@", "on "}

// stopWords are dropped from keyword extraction.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "his": {}, "has": {}, "how": {}, "who": {},
	"what": {}, "when": {}, "where": {}, "why": {}, "which": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "with": {},
	"from": {}, "into": {}, "does": {}, "did": {}, "will": {},
	"would": {}, "should": {}, "could": {}, "about": {}, "your": {},
	"them": {}, "they": {}, "then": {}, "there": {}, "here": {},
	"have": {}, "had": {}, "been": {}, "being": {}, "get": {},
	"its": {}, "were": {}, "any": {}, "some": {}, "most": {},
}

// QueryAnalyzer classifies queries and scores providers against them.
// It is stateless and safe for concurrent use.
type QueryAnalyzer struct {
	capabilities func(string) ProviderCapabilities
}

// NewQueryAnalyzer creates an analyzer backed by the static capability
// table.
func NewQueryAnalyzer() *QueryAnalyzer {
	return &QueryAnalyzer{capabilities: CapabilitiesFor}
}

// Analyze extracts the full feature vector for a query.
func (a *QueryAnalyzer) Analyze(query string) QueryCharacteristics {
	lowered := strings.ToLower(strings.TrimSpace(query))

	c := QueryCharacteristics{
		QueryType:        classifyQueryType(lowered),
		DomainsMentioned: extractDomains(lowered),
		RequiresRecency:  recencyPattern.MatchString(lowered),
		Complexity:       scoreComplexity(lowered),
		HasOperators:     hasOperators(query),
		Keywords:         extractKeywords(lowered),
	}
	c.Sentiment = deriveSentiment(lowered)
	c.LikelyIntent = deriveIntent(lowered, c)
	return c
}

// classifyQueryType scores each type by the token count of every
// matched indicator phrase. Ties resolve to declaration order; a zero
// score across the board means "general".
func classifyQueryType(lowered string) QueryType {
	best := QueryTypeGeneral
	bestScore := 0

	for _, entry := range queryTypeIndicators {
		score := 0
		for _, indicator := range entry.Indicators {
			if strings.Contains(lowered, indicator) {
				score += len(strings.Fields(indicator))
			}
		}
		if score > bestScore {
			best = entry.Type
			bestScore = score
		}
	}

	return best
}

// scoreComplexity bands a query by word count, conjunctions,
// comparatives and multi-question form.
func scoreComplexity(lowered string) Complexity {
	words := strings.Fields(lowered)

	score := 0
	switch {
	case len(words) > 15:
		score += 2
	case len(words) > 5:
		score++
	}
	if conjunctionPattern.MatchString(lowered) {
		score++
	}
	if comparativePattern.MatchString(lowered) {
		score++
	}
	if strings.Count(lowered, "?") >= 2 {
		score += 2
	}

	switch {
	case score >= 3:
		return ComplexityComplex
	case score >= 1:
		return ComplexityModerate
	default:
		return ComplexitySimple
	}
}

// extractDomains pulls deduplicated hostnames out of the query,
// stripping leading selector prefixes first.
func extractDomains(lowered string) []string {
	stripped := lowered
	for _, prefix := range domainSelectorPrefixes {
		stripped = strings.ReplaceAll(stripped, prefix, " ")
	}

	matches := domainPattern.FindAllString(stripped, -1)
	seen := make(map[string]struct{}, len(matches))
	var domains []string
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		domains = append(domains, m)
	}
	return domains
}

// hasOperators detects search operators like site:, filetype: and
// quoted phrases. Checked against the original casing since "OR" is
// only an operator when uppercase.
func hasOperators(query string) bool {
	if operatorPattern.MatchString(strings.ToLower(query)) {
		return true
	}
	if strings.Count(query, `"`) >= 2 {
		return true
	}
	return booleanOperator.MatchString(query)
}

// extractKeywords returns lowercased content words longer than two
// characters, stop words removed, deduplicated in insertion order.
func extractKeywords(lowered string) []string {
	tokens := strings.FieldsFunc(lowered, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '.' || r == '-')
	})

	seen := make(map[string]struct{}, len(tokens))
	var keywords []string
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".-")
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
	}
	return keywords
}

func deriveSentiment(lowered string) Sentiment {
	if comparativePattern.MatchString(lowered) {
		return SentimentComparative
	}
	if strings.HasPrefix(lowered, "why") || strings.HasPrefix(lowered, "how") ||
		strings.Contains(lowered, "what causes") || strings.Contains(lowered, "investigate") {
		return SentimentInvestigative
	}
	return SentimentNeutral
}

func deriveIntent(lowered string, c QueryCharacteristics) Intent {
	if troubleshootWords.MatchString(lowered) {
		return IntentTroubleshoot
	}
	if c.Sentiment == SentimentComparative {
		return IntentCompareOptions
	}
	switch c.QueryType {
	case QueryTypeHowTo, QueryTypeTechnical:
		return IntentLearn
	case QueryTypeLocal:
		return IntentLocate
	case QueryTypeProduct:
		return IntentPurchase
	case QueryTypeDefinition:
		return IntentLookupDefinition
	case QueryTypeAcademic:
		return IntentResearch
	case QueryTypeCurrentEvents:
		return IntentStayInformed
	case QueryTypeFactual:
		return IntentFindFact
	}
	return IntentGeneralInfo
}

// ProviderScore is one candidate's analyzer score with the reasons
// that produced it.
type ProviderScore struct {
	Provider string   `json:"provider"`
	Score    float64  `json:"score"`
	Reasons  []string `json:"reasons"`
}

// Recommendation is the analyzer's single best candidate.
type Recommendation struct {
	Provider     string   `json:"provider"`
	Confidence   float64  `json:"confidence"`
	Reasoning    string   `json:"reasoning"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// ScoreProviders ranks the candidate set against the characteristics.
// Every candidate starts at 50; fixed bonuses apply additively. Ties
// keep the candidate input order.
func (a *QueryAnalyzer) ScoreProviders(c QueryCharacteristics, candidates []string) []ProviderScore {
	scores := make([]ProviderScore, 0, len(candidates))

	for _, name := range candidates {
		caps := a.capabilities(name)
		s := ProviderScore{Provider: name, Score: 50}

		if containsType(caps.StrongFor, c.QueryType) {
			s.Score += 30
			s.Reasons = append(s.Reasons, fmt.Sprintf("Excellent for %s queries", c.QueryType))
		} else if c.QueryType == QueryTypeGeneral {
			s.Score += 10
		}

		if c.Complexity == ComplexityComplex && caps.ComplexityHandling >= 0.9 {
			s.Score += 20
			s.Reasons = append(s.Reasons, "Handles complex queries well")
		}
		if c.Complexity == ComplexitySimple && caps.FastResponse {
			s.Score += 15
			s.Reasons = append(s.Reasons, "Fast for simple queries")
		}
		if c.RequiresRecency && caps.RecencyScore >= 0.8 {
			s.Score += 20
			s.Reasons = append(s.Reasons, "Good with recent information")
		}
		if c.HasOperators && caps.OperatorSupport >= 0.8 {
			s.Score += 15
			s.Reasons = append(s.Reasons, "Strong operator support")
		}

		if d, ok := coveredDomain(c.DomainsMentioned, caps.GoodWithDomains); ok {
			s.Score += 10
			s.Reasons = append(s.Reasons, fmt.Sprintf("Good with %s", d))
		}

		if caps.AIPowered && c.Complexity == ComplexityComplex {
			s.Score += 10
			s.Reasons = append(s.Reasons, "AI-powered analysis")
		}
		if caps.PrivacyFocused && c.QueryType != QueryTypeAcademic {
			s.Score += 5
			s.Reasons = append(s.Reasons, "Privacy-focused")
		}
		if caps.NoAds && c.QueryType == QueryTypeTechnical {
			s.Score += 10
			s.Reasons = append(s.Reasons, "No ads, clean results")
		}

		scores = append(scores, s)
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})
	return scores
}

// RecommendProvider returns the top-scored candidate with a confidence
// in [0, 100] and up to two alternatives from the next rankings.
func (a *QueryAnalyzer) RecommendProvider(c QueryCharacteristics, candidates []string) Recommendation {
	scores := a.ScoreProviders(c, candidates)
	if len(scores) == 0 {
		return Recommendation{Confidence: 0}
	}

	top := scores[0]
	rec := Recommendation{
		Provider:   top.Provider,
		Confidence: clamp(top.Score, 0, 100),
		Reasoning:  strings.Join(top.Reasons, "; "),
	}
	if rec.Reasoning == "" {
		rec.Reasoning = "General-purpose match"
	}

	for _, alt := range scores[1:] {
		if len(rec.Alternatives) == 2 {
			break
		}
		rec.Alternatives = append(rec.Alternatives, alt.Provider)
	}

	return rec
}

func containsType(types []QueryType, t QueryType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// coveredDomain reports the first mentioned domain covered by the
// provider's good-with list. "*" covers everything; other entries
// match by substring.
func coveredDomain(mentioned, goodWith []string) (string, bool) {
	if len(mentioned) == 0 || len(goodWith) == 0 {
		return "", false
	}
	for _, d := range mentioned {
		for _, g := range goodWith {
			if g == "*" || strings.Contains(d, g) {
				return d, true
			}
		}
	}
	return "", false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
