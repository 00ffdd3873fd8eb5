package agent

import (
	"strings"

	"github.com/Mikeyy1405/Writgoai.nl/internal/events"
)

// errorIndicators mark an observation as a failure. Matching is
// case-insensitive containment.
var errorIndicators = []string{
	"error:",
	"traceback",
	"exception",
	"failed",
	"command not found",
	"permission denied",
}

// IsErrorObservation reports whether an observation describes a failure.
// The sandbox returns raw tool output, so classification is keyword-based.
func IsErrorObservation(observation string) bool {
	lower := strings.ToLower(observation)
	for _, indicator := range errorIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// EstimateComplexity scores the current step from 0.0 (simple) to 1.0
// (complex) for model routing. The base score comes from the step type;
// each error observation among the recent events adds 0.1, capped at +0.3.
func EstimateComplexity(stepType string, recent []events.Event) float64 {
	complexity := 0.5

	switch stepType {
	case "code", "analysis", "research":
		complexity = 0.8
	case "browser", "scraping":
		complexity = 0.6
	case "simple", "file_operation":
		complexity = 0.3
	}

	errorBoost := float64(countErrorObservations(recent)) * 0.1
	if errorBoost > 0.3 {
		errorBoost = 0.3
	}
	complexity += errorBoost

	if complexity > 1.0 {
		complexity = 1.0
	}
	return complexity
}

func countErrorObservations(recent []events.Event) int {
	count := 0
	for _, e := range recent {
		if e.Type == events.TypeObservation && IsErrorObservation(e.Content) {
			count++
		}
	}
	return count
}
