// Package router selects the model for each agent iteration.
//
// Selection is a fixed rule list over the step's task type and a complexity
// score, evaluated first match wins, so that a given input always routes to
// the same tier. The tier to model table comes from configuration.
package router

import "strings"

// Tier classifies models by capability/cost tradeoff.
type Tier string

const (
	TierDefault  Tier = "default"
	TierComplex  Tier = "complex"
	TierBalanced Tier = "balanced"
	TierFast     Tier = "fast"
	TierCoding   Tier = "coding"
	TierLlama    Tier = "llama"
)

// DefaultTable returns the built-in tier to model table. Configuration
// overrides individual entries.
func DefaultTable() map[Tier]string {
	return map[Tier]string{
		TierDefault:  "gpt-4o",
		TierComplex:  "gpt-4o",
		TierBalanced: "gpt-4o",
		TierFast:     "gpt-4o-mini",
		TierCoding:   "claude-3-5-sonnet-20241022",
		TierLlama:    "meta-llama/Llama-3.3-70B-Instruct-Turbo",
	}
}

// Router maps (task type, complexity) pairs to model identifiers.
type Router struct {
	table map[Tier]string
}

// New creates a Router whose table is the built-in defaults overlaid with
// the non-empty entries of overrides.
func New(overrides map[Tier]string) *Router {
	table := DefaultTable()
	for tier, model := range overrides {
		if model != "" {
			table[tier] = model
		}
	}
	return &Router{table: table}
}

// Select returns the model for a step. Pure function of its inputs:
//
//  1. complexity > 0.8                                  -> complex
//  2. task type code|coding|programming|debug           -> coding
//  3. complexity > 0.6 and analysis|research|planning   -> complex
//  4. 0.3 <= complexity <= 0.6                          -> balanced
//  5. complexity < 0.3 and simple|file_operation|read   -> fast
//  6. otherwise                                         -> balanced
func (r *Router) Select(taskType string, complexity float64) string {
	return r.ModelFor(selectTier(taskType, complexity))
}

// ModelFor resolves a tier to its configured model, falling back to the
// default tier for unknown tiers.
func (r *Router) ModelFor(tier Tier) string {
	if model, ok := r.table[tier]; ok && model != "" {
		return model
	}
	return r.table[TierDefault]
}

func selectTier(taskType string, complexity float64) Tier {
	taskType = strings.ToLower(strings.TrimSpace(taskType))

	switch {
	case complexity > 0.8:
		return TierComplex
	case isCodingTask(taskType):
		return TierCoding
	case complexity > 0.6 && isReasoningTask(taskType):
		return TierComplex
	case complexity >= 0.3 && complexity <= 0.6:
		return TierBalanced
	case complexity < 0.3 && isLightTask(taskType):
		return TierFast
	default:
		return TierBalanced
	}
}

func isCodingTask(taskType string) bool {
	switch taskType {
	case "code", "coding", "programming", "debug":
		return true
	}
	return false
}

func isReasoningTask(taskType string) bool {
	switch taskType {
	case "analysis", "research", "planning":
		return true
	}
	return false
}

func isLightTask(taskType string) bool {
	switch taskType {
	case "simple", "file_operation", "read":
		return true
	}
	return false
}
