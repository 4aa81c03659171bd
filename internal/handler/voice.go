package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/code-100-precent/calltrack/internal/callflow"
	"github.com/code-100-precent/calltrack/internal/routing"
	"github.com/code-100-precent/calltrack/pkg/logger"
	"github.com/code-100-precent/calltrack/pkg/twiml"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	msgNotConfigured   = "Sorry, this number is not configured."
	msgNoAgents        = "No agents are assigned to this number."
	msgVoicemailPrompt = "Please leave a message after the tone."
	msgGoodbye         = "Thanks, goodbye."

	voicemailMaxLength = 120
)

var legEvents = []string{"initiated", "ringing", "answered", "completed"}

// HandleInbound answers a new call: unknown numbers are told so, otherwise every
// routed agent is dialed at once.
func (h *Handlers) HandleInbound(c *gin.Context) {
	ev, err := callflow.ParseInboundEvent(h.form(c))
	if err != nil {
		h.callbackFailed(c, "inbound", err)
		return
	}

	plan, err := h.resolver.Resolve(c.Request.Context(), ev.To)
	if errors.Is(err, routing.ErrNotConfigured) {
		logger.Info("inbound call to unconfigured number",
			zap.String("to", ev.To),
			zap.String("callSid", ev.ExternalID))
		h.metrics.RecordCallback("inbound", "not_configured")
		h.writeTwiML(c, twiml.NewResponse().Say(msgNotConfigured).Hangup())
		return
	}
	if err != nil {
		h.callbackFailed(c, "inbound", &callflow.StorageError{Op: "resolve route", Err: err})
		return
	}

	call, _, err := h.reconciler.StartCall(c.Request.Context(), ev, plan)
	if err != nil {
		h.callbackFailed(c, "inbound", err)
		return
	}

	doc := twiml.NewResponse()
	if plan.Empty() {
		h.metrics.RecordCallback("inbound", "no_agents")
		h.writeTwiML(c, doc.Say(msgNoAgents).Hangup())
		return
	}
	if plan.Number.GreetingText != "" {
		doc.Say(plan.Number.GreetingText)
	}

	dial := twiml.Dial{
		Action:         h.voiceURL("status", "call_id", call.ID, "scope", "parent"),
		Method:         http.MethodPost,
		Timeout:        h.cfg.DialTimeoutSeconds,
		AnswerOnBridge: true,
	}
	if h.cfg.RecordCalls {
		dial.Record = "record-from-answer"
		dial.RecordingStatusCallback = h.voiceURL("recording")
		dial.RecordingStatusCallbackMethod = http.MethodPost
	}
	for _, agent := range plan.Agents {
		dial.AddNumber(agent.PhoneNumber, h.voiceURL("status", "call_id", call.ID, "agent_id", agent.ID), legEvents...)
	}
	doc.Dial(dial)

	h.metrics.RecordCallback("inbound", "ok")
	h.writeTwiML(c, doc)
}

// HandleStatus reconciles a parent or leg status callback
func (h *Handlers) HandleStatus(c *gin.Context) {
	ev, err := callflow.ParseStatusEvent(c.Request.URL.Query(), h.form(c))
	if err != nil {
		h.callbackFailed(c, "status", err)
		return
	}

	doc := twiml.NewResponse()
	switch e := ev.(type) {
	case callflow.ParentStatusEvent:
		call, _, err := h.reconciler.ApplyParent(c.Request.Context(), e)
		if err != nil {
			h.callbackFailed(c, "status", err)
			return
		}
		if callflow.VoicemailCapture(call) {
			prompt := call.VoicemailPrompt
			if prompt == "" {
				prompt = msgVoicemailPrompt
			}
			doc.Say(prompt).Record(twiml.Record{
				Action:    h.voiceURL("voicemail", "call_id", call.ID),
				Method:    http.MethodPost,
				MaxLength: voicemailMaxLength,
				PlayBeep:  true,
			})
		}
	case callflow.LegStatusEvent:
		if _, err := h.reconciler.ApplyLeg(c.Request.Context(), e); err != nil {
			h.callbackFailed(c, "status", err)
			return
		}
	}

	h.metrics.RecordCallback("status", "ok")
	h.writeTwiML(c, doc)
}

func (h *Handlers) HandleRecording(c *gin.Context) {
	ev := callflow.ParseRecordingEvent(h.form(c))
	if err := h.reconciler.AttachRecording(c.Request.Context(), ev); err != nil {
		h.callbackFailed(c, "recording", err)
		return
	}
	h.metrics.RecordCallback("recording", "ok")
	h.writeTwiML(c, twiml.NewResponse())
}

func (h *Handlers) HandleVoicemail(c *gin.Context) {
	ev := callflow.ParseVoicemailEvent(c.Request.URL.Query(), h.form(c))
	if _, err := h.reconciler.AttachVoicemail(c.Request.Context(), ev); err != nil {
		h.callbackFailed(c, "voicemail", err)
		return
	}
	h.metrics.RecordCallback("voicemail", "ok")
	h.writeTwiML(c, twiml.NewResponse().Say(msgGoodbye).Hangup())
}

// callbackFailed maps reconciler errors: dropped callbacks get an empty document,
// storage failures a 500 so the provider retries.
func (h *Handlers) callbackFailed(c *gin.Context, kind string, err error) {
	if errors.Is(err, callflow.ErrMissingCorrelation) {
		logger.Warn("callback dropped",
			zap.String("kind", kind),
			zap.String("query", c.Request.URL.RawQuery),
			zap.Error(err))
		h.metrics.RecordCallback(kind, "dropped")
		h.writeTwiML(c, twiml.NewResponse())
		return
	}

	var storageErr *callflow.StorageError
	if errors.As(err, &storageErr) {
		logger.Error("callback storage failure", zap.String("kind", kind), zap.String("op", storageErr.Op), zap.Error(storageErr.Err))
	} else {
		logger.Error("callback failed", zap.String("kind", kind), zap.Error(err))
	}
	h.metrics.RecordCallback(kind, "error")
	c.Error(err)
	c.String(http.StatusInternalServerError, "storage failure")
}

func (h *Handlers) form(c *gin.Context) url.Values {
	if err := c.Request.ParseForm(); err != nil {
		logger.Warn("parse callback form", zap.Error(err))
	}
	return c.Request.PostForm
}

// voiceURL absolute webhook URL; query is given as key, value pairs and keeps its order
func (h *Handlers) voiceURL(path string, query ...string) string {
	u := fmt.Sprintf("%s%s/voice/%s", h.cfg.PublicBaseURL, h.cfg.APIPrefix, path)
	for i := 0; i+1 < len(query); i += 2 {
		sep := "&"
		if i == 0 {
			sep = "?"
		}
		u += sep + url.QueryEscape(query[i]) + "=" + url.QueryEscape(query[i+1])
	}
	return u
}

func (h *Handlers) writeTwiML(c *gin.Context, doc *twiml.Response) {
	c.Data(http.StatusOK, twiml.ContentType, []byte(doc.String()))
}
