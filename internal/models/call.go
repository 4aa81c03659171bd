package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrCallNotFound = errors.New("call not found")

type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallRinging   CallStatus = "ringing"
	CallConnected CallStatus = "connected"
	CallCompleted CallStatus = "completed"
	CallFailed    CallStatus = "failed"
)

// Terminal completed and failed end the call
func (s CallStatus) Terminal() bool {
	return s == CallCompleted || s == CallFailed
}

type AttemptStatus string

const (
	AttemptInitiated AttemptStatus = "initiated"
	AttemptRinging   AttemptStatus = "ringing"
	AttemptAnswered  AttemptStatus = "answered"
	AttemptNoAnswer  AttemptStatus = "no-answer"
	AttemptBusy      AttemptStatus = "busy"
	AttemptFailed    AttemptStatus = "failed"
	AttemptCanceled  AttemptStatus = "canceled"
	AttemptCompleted AttemptStatus = "completed"
)

// Final the leg will not receive further progress
func (s AttemptStatus) Final() bool {
	switch s {
	case AttemptCompleted, AttemptFailed, AttemptCanceled, AttemptNoAnswer, AttemptBusy:
		return true
	}
	return false
}

// EndsCall leg outcomes that also end the parent call
func (s AttemptStatus) EndsCall() bool {
	return s == AttemptCompleted || s == AttemptFailed || s == AttemptCanceled
}

// Answered the leg was picked up
func (s AttemptStatus) Answered() bool {
	return s == AttemptAnswered || s == AttemptCompleted
}

// Call one inbound telephony session, keyed by the provider call id
type Call struct {
	ID               string     `json:"id" gorm:"primaryKey;size:36"`
	ExternalID       string     `json:"external_id" gorm:"size:64;uniqueIndex;not null"`
	TrackedNumberID  *string    `json:"tracked_number_id" gorm:"size:36;index"`
	FromNumber       string     `json:"from_number" gorm:"size:32;index"`
	ToNumber         string     `json:"to_number" gorm:"size:32;index"`
	StartedAt        time.Time  `json:"started_at" gorm:"index"`
	EndedAt          *time.Time `json:"ended_at"`
	Status           CallStatus `json:"status" gorm:"size:16;index"`
	ConnectedAgentID *string    `json:"connected_agent_id" gorm:"size:36;index"`

	RecordingURL             string `json:"recording_url,omitempty" gorm:"size:512"`
	RecordingSID             string `json:"recording_sid,omitempty" gorm:"size:64"`
	RecordingDurationSeconds *int   `json:"recording_duration_seconds,omitempty"`
	VoicemailURL             string `json:"voicemail_url,omitempty" gorm:"size:512"`
	VoicemailSID             string `json:"voicemail_sid,omitempty" gorm:"size:64"`

	// voicemail policy captured at call start
	VoicemailEnabled bool   `json:"voicemail_enabled"`
	VoicemailPrompt  string `json:"voicemail_prompt,omitempty" gorm:"size:512"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Call) TableName() string {
	return "calls"
}

func (c *Call) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// CallAttempt one leg dialed toward one agent
type CallAttempt struct {
	ID         string        `json:"id" gorm:"primaryKey;size:36"`
	ExternalID string        `json:"external_id" gorm:"size:64;uniqueIndex;not null"`
	CallID     string        `json:"call_id" gorm:"size:36;index;not null"`
	AgentID    string        `json:"agent_id" gorm:"size:36;index"`
	Status     AttemptStatus `json:"status" gorm:"size:16"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    *time.Time    `json:"ended_at"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (CallAttempt) TableName() string {
	return "call_attempts"
}

func (a *CallAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// GetCallByID loads a call, ErrCallNotFound when absent
func GetCallByID(db *gorm.DB, id string) (*Call, error) {
	var call Call
	err := db.Where("id = ?", id).First(&call).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, err
	}
	return &call, nil
}

// GetCallByExternalID loads a call by provider call id, ErrCallNotFound when absent
func GetCallByExternalID(db *gorm.DB, externalID string) (*Call, error) {
	var call Call
	err := db.Where("external_id = ?", externalID).First(&call).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, err
	}
	return &call, nil
}

// ListAttempts returns the attempts of one call, oldest first
func ListAttempts(db *gorm.DB, callID string) ([]CallAttempt, error) {
	var attempts []CallAttempt
	err := db.Where("call_id = ?", callID).
		Order("started_at ASC").
		Order("id ASC").
		Find(&attempts).Error
	return attempts, err
}

// ListAttemptsForCalls returns the attempts of many calls
func ListAttemptsForCalls(db *gorm.DB, callIDs []string) ([]CallAttempt, error) {
	var attempts []CallAttempt
	if len(callIDs) == 0 {
		return attempts, nil
	}
	// keep IN lists below driver parameter limits
	const chunk = 500
	for start := 0; start < len(callIDs); start += chunk {
		end := start + chunk
		if end > len(callIDs) {
			end = len(callIDs)
		}
		var part []CallAttempt
		if err := db.Where("call_id IN ?", callIDs[start:end]).Find(&part).Error; err != nil {
			return nil, err
		}
		attempts = append(attempts, part...)
	}
	return attempts, nil
}
