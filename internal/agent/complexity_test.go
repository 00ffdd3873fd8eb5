package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Mikeyy1405/Writgoai.nl/internal/events"
)

func TestIsErrorObservation(t *testing.T) {
	failures := []string{
		"Error: connection reset by peer",
		"Traceback (most recent call last):\n  File \"<stdin>\", line 1",
		"raised RuntimeException while parsing",
		"build FAILED after 3s",
		"bash: pyhton3: command not found",
		"open /etc/shadow: permission denied",
	}
	for _, obs := range failures {
		assert.True(t, IsErrorObservation(obs), "want failure: %q", obs)
	}

	clean := []string{
		"Code executed successfully (exit code: 0)",
		"Command executed (exit code: 0)",
		"File saved: report.md",
		"Unknown action type: teleport",
		"No action returned; respond with exactly one tool call.",
		"the previous errors were all recovered",
		"",
	}
	for _, obs := range clean {
		assert.False(t, IsErrorObservation(obs), "want clean: %q", obs)
	}
}

func TestEstimateComplexityBaseByStepType(t *testing.T) {
	tests := []struct {
		stepType string
		want     float64
	}{
		{"code", 0.8},
		{"analysis", 0.8},
		{"research", 0.8},
		{"browser", 0.6},
		{"scraping", 0.6},
		{"simple", 0.3},
		{"file_operation", 0.3},
		{"general", 0.5},
		{"something-else", 0.5},
	}
	for _, tc := range tests {
		assert.InDelta(t, tc.want, EstimateComplexity(tc.stepType, nil), 1e-9, "step type %s", tc.stepType)
	}
}

func TestEstimateComplexityErrorBoost(t *testing.T) {
	errObs := events.Event{Type: events.TypeObservation, Content: "Error: no such file"}
	okObs := events.Event{Type: events.TypeObservation, Content: "File saved: notes.txt"}

	assert.InDelta(t, 0.6, EstimateComplexity("general", []events.Event{errObs}), 1e-9)
	assert.InDelta(t, 0.7, EstimateComplexity("general", []events.Event{errObs, okObs, errObs}), 1e-9)
}

func TestEstimateComplexityBoostCapsAtPointThree(t *testing.T) {
	errObs := events.Event{Type: events.TypeObservation, Content: "Traceback (most recent call last):"}

	var recent []events.Event
	for i := 0; i < 6; i++ {
		recent = append(recent, errObs)
	}
	assert.InDelta(t, 0.8, EstimateComplexity("general", recent), 1e-9)
}

func TestEstimateComplexityOnlyCountsObservations(t *testing.T) {
	action := events.Event{Type: events.TypeAction, Content: "error: this is an action name, not a result"}
	recovery := events.Event{Type: events.TypeRecovery, Content: "The command failed because the binary is missing."}

	assert.InDelta(t, 0.5, EstimateComplexity("general", []events.Event{action, recovery}), 1e-9)
}

func TestEstimateComplexityNeverExceedsOne(t *testing.T) {
	errObs := events.Event{Type: events.TypeObservation, Content: "Error: exception"}
	recent := []events.Event{errObs, errObs, errObs, errObs}

	assert.InDelta(t, 1.0, EstimateComplexity("code", recent), 1e-9)
}
