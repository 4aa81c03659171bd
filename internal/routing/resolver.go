// Package routing resolves the agents to ring for a dialed tracked number.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/code-100-precent/calltrack/internal/models"
	"github.com/code-100-precent/calltrack/pkg/utils"
	"gorm.io/gorm"
)

// ErrNotConfigured the dialed number is unknown or inactive
var ErrNotConfigured = errors.New("number not configured")

// RoutePlan snapshot of a tracked number and its ordered active agents at call start.
// Ringing is simultaneous; order only affects display.
type RoutePlan struct {
	Number models.TrackedNumber
	Agents []models.Agent
}

func (p *RoutePlan) Empty() bool {
	return p == nil || len(p.Agents) == 0
}

type Resolver struct {
	db      *gorm.DB
	timeout time.Duration
}

type Option func(*Resolver)

// WithTimeout bounds each lookup; zero leaves only the caller's deadline
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

func NewResolver(db *gorm.DB, opts ...Option) *Resolver {
	r := &Resolver{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the route plan for dialedNumber, ErrNotConfigured when no active
// tracked number matches. Any other error is a storage failure.
func (r *Resolver) Resolve(ctx context.Context, dialedNumber string) (*RoutePlan, error) {
	lookup := utils.NormalizeE164(dialedNumber)
	if lookup == "" {
		lookup = strings.TrimSpace(dialedNumber)
	}
	if lookup == "" {
		return nil, ErrNotConfigured
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	db := r.db.WithContext(ctx)
	number, err := models.GetActiveTrackedNumber(db, lookup)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("lookup tracked number: %w", err)
	}

	agents, err := models.ListRoutedAgents(db, number.ID)
	if err != nil {
		return nil, fmt.Errorf("load route plan for %s: %w", number.ID, err)
	}
	return &RoutePlan{Number: *number, Agents: agents}, nil
}
