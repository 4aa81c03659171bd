package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/code-100-precent/calltrack/internal/models"
	"github.com/code-100-precent/calltrack/pkg/twiml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInbound_DialsAllAgents(t *testing.T) {
	env := setupEnv(t, testConfig())

	w := env.webhook("/api/voice/inbound", url.Values{
		"CallSid": {"CA100"},
		"From":    {"+15557770000"},
		"To":      {env.number.PhoneNumber},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), twiml.ContentType)

	call, err := models.GetCallByExternalID(env.db, "CA100")
	require.NoError(t, err)
	assert.Equal(t, models.CallRinging, call.Status)
	assert.True(t, call.VoicemailEnabled)

	body := w.Body.String()
	assert.Contains(t, body, "<Say>Thanks for calling.</Say>")
	assert.Contains(t, body, `answerOnBridge="true"`)
	assert.Contains(t, body, `timeout="25"`)
	assert.Contains(t, body, "/api/voice/status?call_id="+call.ID+"&amp;scope=parent")
	assert.Contains(t, body, "/api/voice/status?call_id="+call.ID+"&amp;agent_id=agent1")
	assert.Contains(t, body, "/api/voice/status?call_id="+call.ID+"&amp;agent_id=agent2")
	assert.Contains(t, body, ">+15550002001</Number>")
	assert.Contains(t, body, ">+15550002002</Number>")
	assert.NotContains(t, body, "recordingStatusCallback")
}

func TestInbound_RecordsWhenEnabled(t *testing.T) {
	cfg := testConfig()
	cfg.RecordCalls = true
	env := setupEnv(t, cfg)

	w := env.webhook("/api/voice/inbound", url.Values{
		"CallSid": {"CA101"},
		"From":    {"+15557770000"},
		"To":      {env.number.PhoneNumber},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `record="record-from-answer"`)
	assert.Contains(t, w.Body.String(), `recordingStatusCallback="`+testBaseURL+`/api/voice/recording"`)
}

func TestInbound_NotConfigured(t *testing.T) {
	env := setupEnv(t, testConfig())

	w := env.webhook("/api/voice/inbound", url.Values{
		"CallSid": {"CA102"},
		"From":    {"+15557770000"},
		"To":      {"+15559999999"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Say>Sorry, this number is not configured.</Say>")
	assert.NotContains(t, w.Body.String(), "<Dial")

	_, err := models.GetCallByExternalID(env.db, "CA102")
	assert.ErrorIs(t, err, models.ErrCallNotFound)
}

func TestInbound_NoAgents(t *testing.T) {
	env := setupEnv(t, testConfig())
	require.NoError(t, env.db.Model(&models.Agent{}).Where("1 = 1").Update("active", false).Error)

	w := env.webhook("/api/voice/inbound", url.Values{
		"CallSid": {"CA103"},
		"From":    {"+15557770000"},
		"To":      {env.number.PhoneNumber},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Say>No agents are assigned to this number.</Say>")
	assert.NotContains(t, w.Body.String(), "<Dial")

	_, err := models.GetCallByExternalID(env.db, "CA103")
	assert.NoError(t, err)
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	env := setupEnv(t, testConfig())

	form := url.Values{"CallSid": {"CA104"}, "To": {env.number.PhoneNumber}}
	w := env.webhook("/api/voice/inbound", form)
	require.Equal(t, http.StatusOK, w.Code)

	req := newFormRequest("/api/voice/inbound", form)
	req.Header.Set("X-Twilio-Signature", "bm90LXZhbGlk")
	rec := serve(env, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid signature", rec.Body.String())

	var count int64
	env.db.Model(&models.Call{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

// ring-all: first answer wins, the sibling is canceled, the call completes
func TestStatus_RingAllLifecycle(t *testing.T) {
	env := setupEnv(t, testConfig())
	call := env.inbound(t, "CA200")

	for _, w := range []*httptest.ResponseRecorder{
		env.leg(call.ID, "agent1", "CL1", "ringing"),
		env.leg(call.ID, "agent2", "CL2", "ringing"),
		env.leg(call.ID, "agent2", "CL2", "in-progress"),
		env.leg(call.ID, "agent1", "CL1", "canceled"),
	} {
		require.Equal(t, http.StatusOK, w.Code)
	}

	got, err := models.GetCallByID(env.db, call.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallConnected, got.Status)
	require.NotNil(t, got.ConnectedAgentID)
	assert.Equal(t, "agent2", *got.ConnectedAgentID)
	assert.Nil(t, got.EndedAt)

	require.Equal(t, http.StatusOK, env.leg(call.ID, "agent2", "CL2", "completed").Code)
	w := env.parent(call.ID, "CA200", "completed")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "<Record")

	got, err = models.GetCallByID(env.db, call.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallCompleted, got.Status)
	assert.NotNil(t, got.EndedAt)

	attempts, err := models.ListAttempts(env.db, call.ID)
	require.NoError(t, err)
	assert.Len(t, attempts, 2)
}

func TestStatus_MissingCorrelationDropped(t *testing.T) {
	env := setupEnv(t, testConfig())

	w := env.webhook("/api/voice/status", url.Values{"CallSid": {"CL9"}, "CallStatus": {"ringing"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Response></Response>")

	w = env.leg("no-such-call", "agent1", "CL9", "ringing")
	assert.Equal(t, http.StatusOK, w.Code)

	var count int64
	env.db.Model(&models.CallAttempt{}).Count(&count)
	assert.Zero(t, count)
}

func TestStatus_ParentWithForeignCallIDDropped(t *testing.T) {
	env := setupEnv(t, testConfig())
	call := env.inbound(t, "CA301")

	w := env.parent(call.ID, "CA-other", "completed")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Response></Response>")

	stored, err := models.GetCallByID(env.db, call.ID)
	require.NoError(t, err)
	assert.Equal(t, "CA301", stored.ExternalID)
	assert.Nil(t, stored.EndedAt)
}

func TestStatus_StorageFailureReturns500(t *testing.T) {
	env := setupEnv(t, testConfig())
	call := env.inbound(t, "CA201")

	sqlDB, err := env.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w := env.leg(call.ID, "agent1", "CL1", "ringing")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestVoicemail_CaptureAndAttach(t *testing.T) {
	env := setupEnv(t, testConfig())
	call := env.inbound(t, "CA300")

	env.leg(call.ID, "agent1", "CL1", "no-answer")
	env.leg(call.ID, "agent2", "CL2", "busy")

	w := env.parent(call.ID, "CA300", "no-answer")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "<Say>Leave a message</Say>")
	assert.Contains(t, body, `action="`+testBaseURL+`/api/voice/voicemail?call_id=`+call.ID+`"`)
	assert.Contains(t, body, `playBeep="true"`)

	w = env.webhook("/api/voice/voicemail?call_id="+call.ID, url.Values{
		"RecordingUrl": {"https://media.example.com/RE1"},
		"RecordingSid": {"RE1"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<Say>Thanks, goodbye.</Say><Hangup></Hangup>")

	got, err := models.GetCallByID(env.db, call.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/RE1", got.VoicemailURL)
	assert.Equal(t, models.CallCompleted, got.Status)
	assert.NotNil(t, got.EndedAt)
}

func TestVoicemail_NotOfferedWhenDisabled(t *testing.T) {
	env := setupEnv(t, testConfig())
	require.NoError(t, env.db.Model(&models.TrackedNumber{}).Where("id = ?", env.number.ID).
		Update("voicemail_enabled", false).Error)
	call := env.inbound(t, "CA301")

	w := env.parent(call.ID, "CA301", "no-answer")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "<Record")
}

func TestRecording_Attached(t *testing.T) {
	env := setupEnv(t, testConfig())
	call := env.inbound(t, "CA400")

	w := env.webhook("/api/voice/recording", url.Values{
		"CallSid":           {"CA400"},
		"RecordingUrl":      {"https://media.example.com/RE9"},
		"RecordingSid":      {"RE9"},
		"RecordingDuration": {"42"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	got, err := models.GetCallByID(env.db, call.ID)
	require.NoError(t, err)
	assert.Equal(t, "RE9", got.RecordingSID)
	require.NotNil(t, got.RecordingDurationSeconds)
	assert.Equal(t, 42, *got.RecordingDurationSeconds)

	w = env.webhook("/api/voice/recording", url.Values{
		"CallSid":      {"CA-unknown"},
		"RecordingUrl": {"https://media.example.com/RE10"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestVoiceURL(t *testing.T) {
	h := &Handlers{cfg: testConfig()}
	assert.Equal(t, testBaseURL+"/api/voice/status?call_id=c%201&scope=parent",
		h.voiceURL("status", "call_id", "c 1", "scope", "parent"))
	assert.Equal(t, testBaseURL+"/api/voice/recording", h.voiceURL("recording"))
}
