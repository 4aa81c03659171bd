package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Conditional writes backing call reconciliation. Each helper is a single
// statement whose WHERE clause carries the precondition, so concurrent
// writers on different instances need no shared lock.

var answeredAttemptStatuses = []string{string(AttemptAnswered), string(AttemptCompleted)}

// InsertCallIfAbsent inserts call unless a row with the same external id exists.
// When it reports false the struct's ID is not the stored one; reload by external id.
func InsertCallIfAbsent(db *gorm.DB, call *Call) (bool, error) {
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(call)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ResetCallRinging moves a redelivered inbound call back to ringing,
// only while it has not progressed past ringing
func ResetCallRinging(db *gorm.DB, callID string) error {
	return db.Model(&Call{}).
		Where("id = ? AND status IN ?", callID, []string{string(CallInitiated), string(CallRinging)}).
		Update("status", CallRinging).Error
}

// SetCallStatus last-write-wins status update
func SetCallStatus(db *gorm.DB, callID string, status CallStatus) error {
	return db.Model(&Call{}).Where("id = ?", callID).Update("status", status).Error
}

// MarkCallEnded sets ended_at only when it is still null
func MarkCallEnded(db *gorm.DB, callID string, at time.Time) (bool, error) {
	res := db.Model(&Call{}).
		Where("id = ? AND ended_at IS NULL", callID).
		Update("ended_at", at)
	return res.RowsAffected > 0, res.Error
}

// ClaimConnectedAgent awards the call to agentID if nobody has it yet.
// Exactly one concurrent caller gets true.
func ClaimConnectedAgent(db *gorm.DB, callID, agentID string) (bool, error) {
	res := db.Model(&Call{}).
		Where("id = ? AND connected_agent_id IS NULL", callID).
		Updates(map[string]interface{}{
			"status":             CallConnected,
			"connected_agent_id": agentID,
		})
	return res.RowsAffected > 0, res.Error
}

// EndCallFromLeg applies a leg's terminal outcome to its call unless another
// agent already holds the call. Reports whether the status write applied and
// whether ended_at was set by this call.
func EndCallFromLeg(db *gorm.DB, callID, agentID string, status CallStatus, at time.Time) (bool, bool, error) {
	res := db.Model(&Call{}).
		Where("id = ?", callID).
		Where("(connected_agent_id IS NULL OR connected_agent_id = ?)", agentID).
		Update("status", status)
	if res.Error != nil {
		return false, false, res.Error
	}
	applied := res.RowsAffected > 0
	if !applied {
		return false, false, nil
	}

	res = db.Model(&Call{}).
		Where("id = ? AND ended_at IS NULL", callID).
		Where("(connected_agent_id IS NULL OR connected_agent_id = ?)", agentID).
		Update("ended_at", at)
	return applied, res.RowsAffected > 0, res.Error
}

// InsertAttemptIfAbsent inserts attempt unless its leg id is already stored
func InsertAttemptIfAbsent(db *gorm.DB, attempt *CallAttempt) (bool, error) {
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(attempt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SetAttemptStatus last-write-wins status update keyed by leg id
func SetAttemptStatus(db *gorm.DB, legExternalID string, status AttemptStatus) error {
	return db.Model(&CallAttempt{}).Where("external_id = ?", legExternalID).Update("status", status).Error
}

// MarkAttemptEnded sets the leg's ended_at only when it is still null
func MarkAttemptEnded(db *gorm.DB, legExternalID string, at time.Time) (bool, error) {
	res := db.Model(&CallAttempt{}).
		Where("external_id = ? AND ended_at IS NULL", legExternalID).
		Update("ended_at", at)
	return res.RowsAffected > 0, res.Error
}

// AttachRecording stores recording details on the call with the given provider id,
// regardless of its status. Reports false when no such call exists.
func AttachRecording(db *gorm.DB, externalID, url, sid string, durationSeconds *int) (bool, error) {
	res := db.Model(&Call{}).
		Where("external_id = ?", externalID).
		Updates(map[string]interface{}{
			"recording_url":              url,
			"recording_sid":              sid,
			"recording_duration_seconds": durationSeconds,
		})
	return res.RowsAffected > 0, res.Error
}

// AttachVoicemail stores the voicemail and completes the call, unless an agent
// answered it (connected agent set or an answered/completed attempt).
// Returns ErrCallNotFound when callID does not exist.
func AttachVoicemail(db *gorm.DB, callID, url, sid string, at time.Time) (attached bool, ended bool, err error) {
	answered := db.Session(&gorm.Session{NewDB: true}).
		Model(&CallAttempt{}).
		Select("1").
		Where("call_attempts.call_id = calls.id AND call_attempts.status IN ?", answeredAttemptStatuses)

	res := db.Model(&Call{}).
		Where("calls.id = ? AND calls.connected_agent_id IS NULL", callID).
		Where("NOT EXISTS (?)", answered).
		Updates(map[string]interface{}{
			"voicemail_url": url,
			"voicemail_sid": sid,
			"status":        CallCompleted,
		})
	if res.Error != nil {
		return false, false, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := GetCallByID(db, callID); err != nil {
			return false, false, err
		}
		return false, false, nil
	}

	ended, err = MarkCallEnded(db, callID, at)
	return true, ended, err
}
