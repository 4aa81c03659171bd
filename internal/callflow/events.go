package callflow

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/code-100-precent/calltrack/internal/models"
	"github.com/code-100-precent/calltrack/pkg/utils"
)

// ErrMissingCorrelation the callback cannot be tied to a call; it is dropped
var ErrMissingCorrelation = errors.New("missing correlation")

// InboundEvent first callback of a call
type InboundEvent struct {
	ExternalID string
	From       string
	To         string
}

// StatusEvent is either a ParentStatusEvent or a LegStatusEvent
type StatusEvent interface {
	statusEvent()
}

// ParentStatusEvent status of the caller's call, reported by the dial action
type ParentStatusEvent struct {
	CallID     string
	ExternalID string
	Status     models.CallStatus
}

// LegStatusEvent status of one agent leg
type LegStatusEvent struct {
	CallID           string
	AgentID          string
	LegExternalID    string
	ParentExternalID string
	Status           models.AttemptStatus
}

func (ParentStatusEvent) statusEvent() {}
func (LegStatusEvent) statusEvent()    {}

// RecordingEvent dial recording finished
type RecordingEvent struct {
	ExternalID      string
	URL             string
	SID             string
	DurationSeconds *int
}

// VoicemailEvent caller left a message
type VoicemailEvent struct {
	CallID string
	URL    string
	SID    string
}

func ParseInboundEvent(form url.Values) (InboundEvent, error) {
	ev := InboundEvent{
		ExternalID: strings.TrimSpace(form.Get("CallSid")),
		From:       strings.TrimSpace(form.Get("From")),
		To:         strings.TrimSpace(form.Get("To")),
	}
	if ev.ExternalID == "" {
		return ev, ErrMissingCorrelation
	}
	if normalized := utils.NormalizeE164(ev.To); normalized != "" {
		ev.To = normalized
	}
	if normalized := utils.NormalizeE164(ev.From); normalized != "" {
		ev.From = normalized
	}
	return ev, nil
}

// ParseStatusEvent classifies a status callback. scope=parent selects the call,
// otherwise an agent_id selects a leg. Parent callbacks carry the dial outcome in
// DialCallStatus, so it is read before CallStatus.
func ParseStatusEvent(query, form url.Values) (StatusEvent, error) {
	callID := strings.TrimSpace(query.Get("call_id"))
	agentID := strings.TrimSpace(query.Get("agent_id"))
	callSid := strings.TrimSpace(form.Get("CallSid"))

	if query.Get("scope") == "parent" {
		if callID == "" || callSid == "" {
			return nil, ErrMissingCorrelation
		}
		raw := form.Get("DialCallStatus")
		if raw == "" {
			raw = form.Get("CallStatus")
		}
		return ParentStatusEvent{
			CallID:     callID,
			ExternalID: callSid,
			Status:     MapCallStatus(raw),
		}, nil
	}

	if agentID == "" || callID == "" || callSid == "" {
		return nil, ErrMissingCorrelation
	}
	return LegStatusEvent{
		CallID:           callID,
		AgentID:          agentID,
		LegExternalID:    callSid,
		ParentExternalID: strings.TrimSpace(form.Get("ParentCallSid")),
		Status:           MapAttemptStatus(form.Get("CallStatus")),
	}, nil
}

func ParseRecordingEvent(form url.Values) RecordingEvent {
	ev := RecordingEvent{
		ExternalID: strings.TrimSpace(form.Get("CallSid")),
		URL:        strings.TrimSpace(form.Get("RecordingUrl")),
		SID:        strings.TrimSpace(form.Get("RecordingSid")),
	}
	if raw := strings.TrimSpace(form.Get("RecordingDuration")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			ev.DurationSeconds = &n
		}
	}
	return ev
}

func ParseVoicemailEvent(query, form url.Values) VoicemailEvent {
	return VoicemailEvent{
		CallID: strings.TrimSpace(query.Get("call_id")),
		URL:    strings.TrimSpace(form.Get("RecordingUrl")),
		SID:    strings.TrimSpace(form.Get("RecordingSid")),
	}
}
