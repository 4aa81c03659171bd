package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrackedNumber a dialable number configured for inbound routing
type TrackedNumber struct {
	ID               string    `json:"id" gorm:"primaryKey;size:36"`
	FriendlyName     string    `json:"friendly_name" gorm:"size:128"`
	PhoneNumber      string    `json:"phone_number" gorm:"size:32;uniqueIndex;not null"`
	ProviderSID      string    `json:"provider_sid,omitempty" gorm:"size:64"`
	Active           bool      `json:"active" gorm:"index"`
	GreetingText     string    `json:"greeting_text,omitempty" gorm:"size:512"`
	VoicemailEnabled bool      `json:"voicemail_enabled"`
	VoicemailPrompt  string    `json:"voicemail_prompt,omitempty" gorm:"size:512"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (TrackedNumber) TableName() string {
	return "tracked_numbers"
}

func (n *TrackedNumber) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// Label display name used by reports
func (n *TrackedNumber) Label() string {
	if n.FriendlyName != "" {
		return n.FriendlyName
	}
	return n.PhoneNumber
}

// Agent a ringable destination
type Agent struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	FullName    string    `json:"full_name" gorm:"size:128"`
	PhoneNumber string    `json:"phone_number" gorm:"size:32"`
	Active      bool      `json:"active" gorm:"index"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Agent) TableName() string {
	return "agents"
}

func (a *Agent) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// TrackedNumberRoute joins an agent to a number with a display order
type TrackedNumberRoute struct {
	ID              string    `json:"id" gorm:"primaryKey;size:36"`
	TrackedNumberID string    `json:"tracked_number_id" gorm:"size:36;index;not null"`
	AgentID         string    `json:"agent_id" gorm:"size:36;index;not null"`
	SortOrder       int       `json:"sort_order"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
}

func (TrackedNumberRoute) TableName() string {
	return "tracked_number_routes"
}

func (r *TrackedNumberRoute) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// GetActiveTrackedNumber finds an active tracked number by its E.164 phone number
func GetActiveTrackedNumber(db *gorm.DB, phoneNumber string) (*TrackedNumber, error) {
	var n TrackedNumber
	err := db.Where("phone_number = ? AND active = ?", phoneNumber, true).First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListRoutedAgents returns active agents on active routes of a number,
// ordered by sort_order then agent name
func ListRoutedAgents(db *gorm.DB, trackedNumberID string) ([]Agent, error) {
	var agents []Agent
	err := db.Model(&Agent{}).
		Select("agents.*").
		Joins("JOIN tracked_number_routes r ON r.agent_id = agents.id").
		Where("r.tracked_number_id = ? AND r.active = ? AND agents.active = ?", trackedNumberID, true, true).
		Order("r.sort_order ASC").
		Order("agents.full_name ASC").
		Order("agents.id ASC").
		Find(&agents).Error
	return agents, err
}

// GetAgentNames maps agent id to full name for the given ids
func GetAgentNames(db *gorm.DB, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var agents []Agent
	if err := db.Select("id", "full_name").Where("id IN ?", ids).Find(&agents).Error; err != nil {
		return nil, err
	}
	for _, a := range agents {
		names[a.ID] = a.FullName
	}
	return names, nil
}

// GetTrackedNumberLabels maps tracked number id to its display label
func GetTrackedNumberLabels(db *gorm.DB, ids []string) (map[string]string, error) {
	labels := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return labels, nil
	}
	var numbers []TrackedNumber
	if err := db.Select("id", "friendly_name", "phone_number").Where("id IN ?", ids).Find(&numbers).Error; err != nil {
		return nil, err
	}
	for i := range numbers {
		labels[numbers[i].ID] = numbers[i].Label()
	}
	return labels, nil
}
