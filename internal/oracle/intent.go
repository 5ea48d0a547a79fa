package oracle

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/MrWong99/conch/pkg/provider/llm"
)

// Defaults filled in by [Classify].
const (
	DefaultSearchQuery = "restaurants"
	DefaultIntent      = "seeking food guidance"
	FallbackIntent     = "seeking mystical food wisdom"
)

// foodKeywords drive the heuristic used when the classifier reply is not
// valid JSON.
var foodKeywords = []string{
	"food", "eat", "restaurant", "hungry", "meal", "lunch", "dinner", "breakfast", "cuisine",
}

// IntentAnalysis is the classifier verdict for one question.
type IntentAnalysis struct {
	IsFoodRelated bool
	// SearchQuery is never empty.
	SearchQuery string
	Intent      string
}

// ClassifyOutcome records which path produced an [IntentAnalysis].
type ClassifyOutcome string

const (
	// OutcomeParsed means the LLM reply was valid JSON.
	OutcomeParsed ClassifyOutcome = "parsed"
	// OutcomeHeuristic means the reply was malformed and keywords decided.
	OutcomeHeuristic ClassifyOutcome = "heuristic"
	// OutcomeFallback means the LLM call failed or replied with JSON that is
	// not an object, such as null.
	OutcomeFallback ClassifyOutcome = "fallback"
)

// intentReply mirrors the JSON the classifier prompt asks for. Pointer fields
// tell a missing key apart from a zero value.
type intentReply struct {
	IsFoodRelated *bool   `json:"is_food_related"`
	SearchQuery   *string `json:"search_query"`
	Intent        *string `json:"intent"`
}

// Classify asks gen whether question is about food. It never fails: a
// malformed reply falls back to a keyword check, and a failed call assumes the
// question is food-related so transient outages do not produce annoyed
// answers.
func Classify(ctx context.Context, gen llm.Provider, question string) IntentAnalysis {
	a, _ := classify(ctx, gen, question)
	return a
}

func classify(ctx context.Context, gen llm.Provider, question string) (IntentAnalysis, ClassifyOutcome) {
	reply, err := Generate(ctx, gen, classifierPrompt(question), "")
	if err != nil {
		slog.Warn("oracle: intent classification failed, assuming food", "err", err)
		return IntentAnalysis{
			IsFoodRelated: true,
			SearchQuery:   DefaultSearchQuery,
			Intent:        FallbackIntent,
		}, OutcomeFallback
	}

	body := stripJSONFence(reply)
	if json.Valid([]byte(body)) && !strings.HasPrefix(strings.TrimSpace(body), "{") {
		slog.Warn("oracle: intent reply is not a JSON object, assuming food", "reply", reply)
		return IntentAnalysis{
			IsFoodRelated: true,
			SearchQuery:   DefaultSearchQuery,
			Intent:        FallbackIntent,
		}, OutcomeFallback
	}

	var r intentReply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		slog.Warn("oracle: intent reply is not valid JSON", "err", err, "reply", reply)
		return IntentAnalysis{
			IsFoodRelated: mentionsFood(question),
			SearchQuery:   DefaultSearchQuery,
			Intent:        DefaultIntent,
		}, OutcomeHeuristic
	}

	a := IntentAnalysis{SearchQuery: DefaultSearchQuery, Intent: DefaultIntent}
	if r.IsFoodRelated != nil {
		a.IsFoodRelated = *r.IsFoodRelated
	}
	if r.SearchQuery != nil && strings.TrimSpace(*r.SearchQuery) != "" {
		a.SearchQuery = *r.SearchQuery
	}
	if r.Intent != nil {
		a.Intent = *r.Intent
	}
	return a, OutcomeParsed
}

// stripJSONFence removes one leading "```json" and one trailing "```" when the
// trimmed reply carries both. Anything else is returned trimmed but intact.
func stripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	rest, ok := strings.CutPrefix(s, "```json")
	if !ok {
		return s
	}
	inner, ok := strings.CutSuffix(rest, "```")
	if !ok {
		return s
	}
	return inner
}

func mentionsFood(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range foodKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}
