package bootstrap

import (
	"github.com/code-100-precent/calltrack/internal/models"
	"github.com/code-100-precent/calltrack/pkg/logger"
	"github.com/code-100-precent/calltrack/pkg/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type SeedService struct {
	db *gorm.DB
}

// SeedAll writes one demo number routed to two agents; existing rows are kept
func (s *SeedService) SeedAll() error {
	number, err := s.seedTrackedNumber()
	if err != nil {
		return err
	}
	agents, err := s.seedAgents()
	if err != nil {
		return err
	}
	return s.seedRoutes(number, agents)
}

func (s *SeedService) seedTrackedNumber() (*models.TrackedNumber, error) {
	phone := utils.GetEnv("SEED_TRACKED_NUMBER")
	if phone == "" {
		phone = "+15550100100"
	}
	number := models.TrackedNumber{
		FriendlyName:     "Main line",
		PhoneNumber:      phone,
		Active:           true,
		GreetingText:     "Thanks for calling. Connecting you now.",
		VoicemailEnabled: true,
		VoicemailPrompt:  "Sorry we missed you. Please leave a message after the tone.",
	}
	if err := s.db.Where("phone_number = ?", phone).FirstOrCreate(&number).Error; err != nil {
		return nil, err
	}
	logger.Info("seeded tracked number", zap.String("phone", phone))
	return &number, nil
}

func (s *SeedService) seedAgents() ([]models.Agent, error) {
	defaults := []models.Agent{
		{FullName: "Demo Agent One", PhoneNumber: "+15550100201", Active: true},
		{FullName: "Demo Agent Two", PhoneNumber: "+15550100202", Active: true},
	}
	for i := range defaults {
		if err := s.db.Where("phone_number = ?", defaults[i].PhoneNumber).FirstOrCreate(&defaults[i]).Error; err != nil {
			return nil, err
		}
	}
	return defaults, nil
}

func (s *SeedService) seedRoutes(number *models.TrackedNumber, agents []models.Agent) error {
	for i, agent := range agents {
		route := models.TrackedNumberRoute{
			TrackedNumberID: number.ID,
			AgentID:         agent.ID,
			SortOrder:       i,
			Active:          true,
		}
		err := s.db.Where("tracked_number_id = ? AND agent_id = ?", number.ID, agent.ID).
			FirstOrCreate(&route).Error
		if err != nil {
			return err
		}
	}
	return nil
}
