package callflow

import (
	"net/url"
	"testing"

	"github.com/code-100-precent/calltrack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapCallStatus(t *testing.T) {
	cases := map[string]models.CallStatus{
		"ringing":     models.CallRinging,
		"in-progress": models.CallConnected,
		"ANSWERED":    models.CallConnected,
		"completed":   models.CallCompleted,
		"busy":        models.CallFailed,
		"failed":      models.CallFailed,
		"canceled":    models.CallFailed,
		"no-answer":   models.CallFailed,
		"queued":      models.CallInitiated,
		"":            models.CallInitiated,
	}
	for raw, want := range cases {
		assert.Equal(t, want, MapCallStatus(raw), raw)
	}
}

func TestMapAttemptStatus(t *testing.T) {
	cases := map[string]models.AttemptStatus{
		"ringing":     models.AttemptRinging,
		"in-progress": models.AttemptAnswered,
		"answered":    models.AttemptAnswered,
		"no-answer":   models.AttemptNoAnswer,
		"busy":        models.AttemptBusy,
		"Failed":      models.AttemptFailed,
		"canceled":    models.AttemptCanceled,
		"completed":   models.AttemptCompleted,
		"initiated":   models.AttemptInitiated,
		"weird":       models.AttemptInitiated,
	}
	for raw, want := range cases {
		assert.Equal(t, want, MapAttemptStatus(raw), raw)
	}
}

func TestParseStatusEvent_Parent(t *testing.T) {
	q := url.Values{"call_id": {"c1"}, "scope": {"parent"}}
	form := url.Values{"CallSid": {"CA1"}, "CallStatus": {"in-progress"}, "DialCallStatus": {"no-answer"}}

	ev, err := ParseStatusEvent(q, form)
	require.NoError(t, err)
	parent, ok := ev.(ParentStatusEvent)
	require.True(t, ok)
	assert.Equal(t, "c1", parent.CallID)
	assert.Equal(t, "CA1", parent.ExternalID)
	assert.Equal(t, models.CallFailed, parent.Status)

	form.Del("DialCallStatus")
	ev, err = ParseStatusEvent(q, form)
	require.NoError(t, err)
	assert.Equal(t, models.CallConnected, ev.(ParentStatusEvent).Status)
}

func TestParseStatusEvent_Leg(t *testing.T) {
	q := url.Values{"call_id": {"c1"}, "agent_id": {"a1"}}
	form := url.Values{"CallSid": {"CL1"}, "ParentCallSid": {"CA1"}, "CallStatus": {"Ringing"}}

	ev, err := ParseStatusEvent(q, form)
	require.NoError(t, err)
	leg, ok := ev.(LegStatusEvent)
	require.True(t, ok)
	assert.Equal(t, LegStatusEvent{
		CallID:           "c1",
		AgentID:          "a1",
		LegExternalID:    "CL1",
		ParentExternalID: "CA1",
		Status:           models.AttemptRinging,
	}, leg)
}

func TestParseStatusEvent_MissingCorrelation(t *testing.T) {
	cases := map[string]struct {
		q    url.Values
		form url.Values
	}{
		"no agent or scope":  {url.Values{"call_id": {"c1"}}, url.Values{"CallSid": {"CA1"}}},
		"leg without call":   {url.Values{"agent_id": {"a1"}}, url.Values{"CallSid": {"CL1"}}},
		"parent without id":  {url.Values{"scope": {"parent"}}, url.Values{"CallSid": {"CA1"}}},
		"parent without sid": {url.Values{"scope": {"parent"}, "call_id": {"c1"}}, url.Values{}},
		"leg without sid":    {url.Values{"agent_id": {"a1"}, "call_id": {"c1"}}, url.Values{}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseStatusEvent(tc.q, tc.form)
			assert.ErrorIs(t, err, ErrMissingCorrelation)
		})
	}
}

func TestParseInboundEvent(t *testing.T) {
	ev, err := ParseInboundEvent(url.Values{"CallSid": {"CA1"}, "To": {" (555) 000-0000 "}, "From": {"anonymous"}})
	require.NoError(t, err)
	assert.Equal(t, "+15550000000", ev.To)
	assert.Equal(t, "anonymous", ev.From)

	_, err = ParseInboundEvent(url.Values{"To": {"+15550000000"}})
	assert.ErrorIs(t, err, ErrMissingCorrelation)
}

func TestParseRecordingAndVoicemail(t *testing.T) {
	rec := ParseRecordingEvent(url.Values{"CallSid": {"CA1"}, "RecordingUrl": {"https://r"}, "RecordingSid": {"RE1"}, "RecordingDuration": {"17"}})
	require.NotNil(t, rec.DurationSeconds)
	assert.Equal(t, 17, *rec.DurationSeconds)

	rec = ParseRecordingEvent(url.Values{"CallSid": {"CA1"}, "RecordingDuration": {"abc"}})
	assert.Nil(t, rec.DurationSeconds)

	vm := ParseVoicemailEvent(url.Values{"call_id": {"c1"}}, url.Values{"RecordingUrl": {"https://v"}, "RecordingSid": {"RE2"}})
	assert.Equal(t, VoicemailEvent{CallID: "c1", URL: "https://v", SID: "RE2"}, vm)
}
