// Package callflow reconciles provider callbacks into Call and CallAttempt rows.
//
// Callbacks for one call may be handled concurrently by different instances, so the
// reconciler holds no locks: every write is an insert-if-absent or a guarded update
// in the store (see models/store.go).
package callflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/code-100-precent/calltrack/internal/models"
	"github.com/code-100-precent/calltrack/internal/routing"
	"github.com/code-100-precent/calltrack/pkg/events"
	"github.com/code-100-precent/calltrack/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const eventSource = "callflow"

// StorageError a store read or write failed; the provider should retry
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// Outcome what a callback actually changed
type Outcome struct {
	CallID    string
	Created   bool
	Connected bool
	Ended     bool
}

type Option func(*Reconciler)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithStoreTimeout bounds every store round trip of one callback
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.timeout = d }
}

// WithEventBus publishes lifecycle events on bus
func WithEventBus(bus *events.EventBus) Option {
	return func(r *Reconciler) { r.bus = bus }
}

type Reconciler struct {
	db      *gorm.DB
	now     func() time.Time
	timeout time.Duration
	bus     *events.EventBus
}

func NewReconciler(db *gorm.DB, opts ...Option) *Reconciler {
	r := &Reconciler{
		db:      db,
		now:     func() time.Time { return time.Now().UTC() },
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) session(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if r.timeout <= 0 {
		return r.db.WithContext(ctx), func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	return r.db.WithContext(ctx), cancel
}

// StartCall records an inbound call for a resolved plan. A redelivered inbound
// event returns the existing row and moves it back to ringing only if it has
// not progressed.
func (r *Reconciler) StartCall(ctx context.Context, ev InboundEvent, plan *routing.RoutePlan) (*models.Call, Outcome, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	call := &models.Call{
		ExternalID: ev.ExternalID,
		FromNumber: ev.From,
		ToNumber:   ev.To,
		StartedAt:  r.now(),
		Status:     models.CallRinging,
	}
	if plan != nil {
		numberID := plan.Number.ID
		call.TrackedNumberID = &numberID
		call.VoicemailEnabled = plan.Number.VoicemailEnabled
		call.VoicemailPrompt = plan.Number.VoicemailPrompt
	}

	created, err := models.InsertCallIfAbsent(db, call)
	if err != nil {
		return nil, Outcome{}, storageErr("insert call", err)
	}
	if created {
		data := map[string]interface{}{
			"external_id": call.ExternalID,
			"from_number": call.FromNumber,
			"to_number":   call.ToNumber,
		}
		if plan != nil {
			data["tracked_number_id"] = plan.Number.ID
			data["agents"] = len(plan.Agents)
		}
		r.publish(events.CallStarted, call.ID, data)
		return call, Outcome{CallID: call.ID, Created: true}, nil
	}

	existing, err := models.GetCallByExternalID(db, ev.ExternalID)
	if err != nil {
		return nil, Outcome{}, storageErr("load call", err)
	}
	if err := models.ResetCallRinging(db, existing.ID); err != nil {
		return nil, Outcome{}, storageErr("reset call", err)
	}
	logger.Debug("inbound redelivered",
		zap.String("callId", existing.ID),
		zap.String("callSid", ev.ExternalID))
	return existing, Outcome{CallID: existing.ID}, nil
}

// ApplyParent reconciles the call-level status. The row is created when the
// inbound event was never seen, using the call_id correlation as its id.
// Returns the call as stored after the update.
func (r *Reconciler) ApplyParent(ctx context.Context, ev ParentStatusEvent) (*models.Call, Outcome, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	now := r.now()

	// call_id already taken by another provider call: the callback cannot be ours.
	if owner, err := models.GetCallByID(db, ev.CallID); err == nil {
		if owner.ExternalID != ev.ExternalID {
			return nil, Outcome{}, fmt.Errorf("%w: call %s belongs to %s, not %s",
				ErrMissingCorrelation, ev.CallID, owner.ExternalID, ev.ExternalID)
		}
	} else if !errors.Is(err, models.ErrCallNotFound) {
		return nil, Outcome{}, storageErr("load call", err)
	}

	fresh := &models.Call{
		ID:         ev.CallID,
		ExternalID: ev.ExternalID,
		StartedAt:  now,
		Status:     ev.Status,
	}
	created, err := models.InsertCallIfAbsent(db, fresh)
	if err != nil {
		return nil, Outcome{}, storageErr("insert call", err)
	}

	call, err := models.GetCallByExternalID(db, ev.ExternalID)
	if err != nil {
		return nil, Outcome{}, storageErr("load call", err)
	}
	out := Outcome{CallID: call.ID, Created: created}

	if !created {
		if err := models.SetCallStatus(db, call.ID, ev.Status); err != nil {
			return nil, out, storageErr("update call status", err)
		}
		call.Status = ev.Status
	}
	if ev.Status.Terminal() {
		ended, err := models.MarkCallEnded(db, call.ID, now)
		if err != nil {
			return nil, out, storageErr("end call", err)
		}
		if ended {
			out.Ended = true
			call.EndedAt = &now
		}
	}

	if created {
		r.publish(events.CallStarted, call.ID, map[string]interface{}{
			"external_id": call.ExternalID,
		})
	}
	if out.Ended {
		r.publish(events.CallEnded, call.ID, map[string]interface{}{
			"status": string(call.Status),
		})
	}
	return call, out, nil
}

// ApplyLeg reconciles one agent leg and, through it, the call: an answered leg
// claims the call if nobody holds it, and a finished leg ends the call unless
// another agent holds it.
func (r *Reconciler) ApplyLeg(ctx context.Context, ev LegStatusEvent) (Outcome, error) {
	db, cancel := r.session(ctx)
	defer cancel()
	now := r.now()

	call, err := models.GetCallByID(db, ev.CallID)
	if errors.Is(err, models.ErrCallNotFound) {
		return Outcome{}, fmt.Errorf("%w: call %s", ErrMissingCorrelation, ev.CallID)
	}
	if err != nil {
		return Outcome{}, storageErr("load call", err)
	}
	out := Outcome{CallID: call.ID}

	attempt := &models.CallAttempt{
		ExternalID: ev.LegExternalID,
		CallID:     call.ID,
		AgentID:    ev.AgentID,
		Status:     ev.Status,
		StartedAt:  now,
	}
	created, err := models.InsertAttemptIfAbsent(db, attempt)
	if err != nil {
		return out, storageErr("insert attempt", err)
	}
	if !created {
		if err := models.SetAttemptStatus(db, ev.LegExternalID, ev.Status); err != nil {
			return out, storageErr("update attempt status", err)
		}
	}
	if ev.Status.Final() {
		if _, err := models.MarkAttemptEnded(db, ev.LegExternalID, now); err != nil {
			return out, storageErr("end attempt", err)
		}
	}

	if ev.Status == models.AttemptAnswered {
		won, err := models.ClaimConnectedAgent(db, call.ID, ev.AgentID)
		if err != nil {
			return out, storageErr("claim call", err)
		}
		out.Connected = won
		if won {
			r.publish(events.CallConnected, call.ID, map[string]interface{}{
				"agent_id": ev.AgentID,
				"leg_sid":  ev.LegExternalID,
			})
		}
	}

	if ev.Status.EndsCall() {
		status := MapCallStatus(string(ev.Status))
		applied, ended, err := models.EndCallFromLeg(db, call.ID, ev.AgentID, status, now)
		if err != nil {
			return out, storageErr("end call from leg", err)
		}
		if !applied {
			logger.Debug("leg end ignored, call held by another agent",
				zap.String("callId", call.ID),
				zap.String("agentId", ev.AgentID))
		}
		out.Ended = ended
		if ended {
			r.publish(events.CallEnded, call.ID, map[string]interface{}{
				"status":   string(status),
				"agent_id": ev.AgentID,
			})
		}
	}
	return out, nil
}

// VoicemailCapture reports whether a parent outcome should offer the caller voicemail
func VoicemailCapture(call *models.Call) bool {
	return call != nil &&
		call.Status == models.CallFailed &&
		call.VoicemailEnabled &&
		call.ConnectedAgentID == nil &&
		call.VoicemailURL == ""
}

func (r *Reconciler) publish(eventType, callID string, data map[string]interface{}) {
	if r.bus == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["call_id"] = callID
	r.bus.Publish(events.Event{
		Type:      eventType,
		Timestamp: r.now(),
		Data:      data,
		Source:    eventSource,
	})
}
