package callflow

import (
	"strings"

	"github.com/code-100-precent/calltrack/internal/models"
)

// MapCallStatus maps a raw provider status to the call's status
func MapCallStatus(raw string) models.CallStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ringing":
		return models.CallRinging
	case "in-progress", "answered":
		return models.CallConnected
	case "completed":
		return models.CallCompleted
	case "busy", "failed", "canceled", "no-answer":
		return models.CallFailed
	default:
		return models.CallInitiated
	}
}

// MapAttemptStatus maps a raw provider status to a leg's status
func MapAttemptStatus(raw string) models.AttemptStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "ringing":
		return models.AttemptRinging
	case "in-progress", "answered":
		return models.AttemptAnswered
	case "no-answer":
		return models.AttemptNoAnswer
	case "busy":
		return models.AttemptBusy
	case "failed":
		return models.AttemptFailed
	case "canceled":
		return models.AttemptCanceled
	case "completed":
		return models.AttemptCompleted
	default:
		return models.AttemptInitiated
	}
}
