package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/code-100-precent/calltrack/internal/models"
	"github.com/code-100-precent/calltrack/pkg/config"
	"github.com/code-100-precent/calltrack/pkg/events"
	"github.com/code-100-precent/calltrack/pkg/metrics"
	"github.com/code-100-precent/calltrack/pkg/middleware"
	"github.com/code-100-precent/calltrack/pkg/signature"
	"github.com/code-100-precent/calltrack/pkg/websocket"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testBaseURL = "https://calls.example.com"
	testToken   = "provider-token"
	testAPIKey  = "read-key"
)

type testEnv struct {
	db     *gorm.DB
	router *gin.Engine
	signer *signature.Validator
	hub    *websocket.Hub
	number models.TrackedNumber
	agents []models.Agent
}

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		APIPrefix:          "/api",
		PublicBaseURL:      testBaseURL,
		ProviderAuthToken:  testToken,
		DialTimeoutSeconds: 25,
		StoreTimeout:       5 * time.Second,
		APISecretKey:       testAPIKey,
		MonitorPrefix:      "/metrics",
	}
}

func setupEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	db := models.SetupTestDB(t)

	number := models.TrackedNumber{
		FriendlyName:     "Main line",
		PhoneNumber:      "+15550001000",
		Active:           true,
		GreetingText:     "Thanks for calling.",
		VoicemailEnabled: true,
		VoicemailPrompt:  "Leave a message",
	}
	require.NoError(t, db.Create(&number).Error)

	agents := []models.Agent{
		{ID: "agent1", FullName: "Ada", PhoneNumber: "+15550002001", Active: true},
		{ID: "agent2", FullName: "Bo", PhoneNumber: "+15550002002", Active: true},
	}
	for i := range agents {
		require.NoError(t, db.Create(&agents[i]).Error)
		require.NoError(t, db.Create(&models.TrackedNumberRoute{
			TrackedNumberID: number.ID,
			AgentID:         agents[i].ID,
			SortOrder:       i,
			Active:          true,
		}).Error)
	}

	hub := websocket.NewHub(websocket.DefaultConfig())
	t.Cleanup(hub.Close)
	h := NewHandlers(db, cfg, Deps{
		Bus:     events.NewEventBus(),
		Hub:     hub,
		Metrics: metrics.NewMetrics(),
	})
	r := gin.New()
	h.Register(r)

	return &testEnv{
		db:     db,
		router: r,
		signer: signature.NewValidator(testToken),
		hub:    hub,
		number: number,
		agents: agents,
	}
}

// webhook posts a signed provider callback; target is the path plus query
func (e *testEnv) webhook(target string, form url.Values) *httptest.ResponseRecorder {
	req := newFormRequest(target, form)
	req.Header.Set(signature.HeaderName, e.signer.Sign(testBaseURL+target, form))
	return serve(e, req)
}

func (e *testEnv) get(target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set(middleware.APIKeyHeader, testAPIKey)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) inbound(t *testing.T, callSid string) *models.Call {
	t.Helper()
	w := e.webhook("/api/voice/inbound", url.Values{
		"CallSid": {callSid},
		"From":    {"+15557770000"},
		"To":      {e.number.PhoneNumber},
	})
	require.Equal(t, http.StatusOK, w.Code)
	call, err := models.GetCallByExternalID(e.db, callSid)
	require.NoError(t, err)
	return call
}

func (e *testEnv) leg(callID, agentID, legSid, status string) *httptest.ResponseRecorder {
	return e.webhook("/api/voice/status?call_id="+callID+"&agent_id="+agentID, url.Values{
		"CallSid":       {legSid},
		"ParentCallSid": {"CA-parent"},
		"CallStatus":    {status},
	})
}

func (e *testEnv) parent(callID, callSid, dialStatus string) *httptest.ResponseRecorder {
	return e.webhook("/api/voice/status?call_id="+callID+"&scope=parent", url.Values{
		"CallSid":        {callSid},
		"CallStatus":     {"in-progress"},
		"DialCallStatus": {dialStatus},
	})
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env
}

func newFormRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func serve(e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}
