package callflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/code-100-precent/calltrack/internal/models"
	"github.com/code-100-precent/calltrack/pkg/events"
	"github.com/code-100-precent/calltrack/pkg/logger"
	"go.uber.org/zap"
)

// AttachRecording stores the dial recording on the call, whatever its status.
// A callback without a recording URL is ignored.
func (r *Reconciler) AttachRecording(ctx context.Context, ev RecordingEvent) error {
	if ev.URL == "" {
		return nil
	}
	if ev.ExternalID == "" {
		return ErrMissingCorrelation
	}

	db, cancel := r.session(ctx)
	defer cancel()

	ok, err := models.AttachRecording(db, ev.ExternalID, ev.URL, ev.SID, ev.DurationSeconds)
	if err != nil {
		return storageErr("attach recording", err)
	}
	if !ok {
		return fmt.Errorf("%w: no call for %s", ErrMissingCorrelation, ev.ExternalID)
	}

	call, err := models.GetCallByExternalID(db, ev.ExternalID)
	if err == nil {
		r.publish(events.CallRecording, call.ID, map[string]interface{}{
			"recording_sid": ev.SID,
		})
	}
	return nil
}

// AttachVoicemail stores a voicemail and completes the call. A call an agent already
// answered keeps its state and the voicemail is dropped; attached reports which happened.
func (r *Reconciler) AttachVoicemail(ctx context.Context, ev VoicemailEvent) (bool, error) {
	if ev.CallID == "" {
		return false, ErrMissingCorrelation
	}
	if ev.URL == "" {
		return false, nil
	}

	db, cancel := r.session(ctx)
	defer cancel()

	attached, ended, err := models.AttachVoicemail(db, ev.CallID, ev.URL, ev.SID, r.now())
	if errors.Is(err, models.ErrCallNotFound) {
		return false, fmt.Errorf("%w: call %s", ErrMissingCorrelation, ev.CallID)
	}
	if err != nil {
		return false, storageErr("attach voicemail", err)
	}
	if !attached {
		logger.Info("voicemail ignored, call was answered",
			zap.String("callId", ev.CallID),
			zap.String("recordingSid", ev.SID))
		return false, nil
	}

	r.publish(events.CallVoicemail, ev.CallID, map[string]interface{}{
		"recording_sid": ev.SID,
	})
	if ended {
		r.publish(events.CallEnded, ev.CallID, map[string]interface{}{
			"status": string(models.CallCompleted),
		})
	}
	return true, nil
}
