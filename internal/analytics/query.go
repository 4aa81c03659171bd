package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/code-100-precent/calltrack/internal/models"
	"github.com/code-100-precent/calltrack/pkg/cache"
	"github.com/code-100-precent/calltrack/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 500
	DefaultWindow    = 7 * 24 * time.Hour
	// guards trend zero-filling against absurd ranges
	MaxWindow = 366 * 24 * time.Hour
)

// CallFilter filters for ListCalls; zero values mean no filter
type CallFilter struct {
	TrackedNumberID string
	Status          string
	AgentID         string
	Q               string
	From            time.Time
	To              time.Time
	Limit           int
}

// CallDetail a call with its legs and display names
type CallDetail struct {
	Call        models.Call          `json:"call"`
	Attempts    []models.CallAttempt `json:"attempts"`
	AgentNames  map[string]string    `json:"agent_names"`
	NumberLabel string               `json:"number_label,omitempty"`
}

type Options struct {
	Cache    cache.Cache
	CacheTTL time.Duration
	RowLimit int
	Location *time.Location
	Now      func() time.Time
	// OnCache is told whether a metrics lookup was served from cache
	OnCache func(hit bool)
	// StoreTimeout bounds each read; zero leaves only the caller's deadline
	StoreTimeout time.Duration
}

// Service read-side queries over calls
type Service struct {
	db       *gorm.DB
	cache    cache.Cache
	ttl      time.Duration
	rowLimit int
	loc      *time.Location
	now      func() time.Time
	onCache  func(hit bool)
	timeout  time.Duration
}

func NewService(db *gorm.DB, opts Options) *Service {
	s := &Service{
		db:       db,
		cache:    opts.Cache,
		ttl:      opts.CacheTTL,
		rowLimit: opts.RowLimit,
		loc:      opts.Location,
		now:      opts.Now,
		onCache:  opts.OnCache,
		timeout:  opts.StoreTimeout,
	}
	if s.rowLimit <= 0 {
		s.rowLimit = 50000
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) session(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if s.timeout <= 0 {
		return s.db.WithContext(ctx), func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// containsPattern matches q literally anywhere; pair it with ESCAPE '!'
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

// ListCalls newest first
func (s *Service) ListCalls(ctx context.Context, f CallFilter) ([]models.Call, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	db, cancel := s.session(ctx)
	defer cancel()

	q := db.Model(&models.Call{})
	if f.TrackedNumberID != "" {
		q = q.Where("tracked_number_id = ?", f.TrackedNumberID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.AgentID != "" {
		legs := s.db.Session(&gorm.Session{NewDB: true}).
			Model(&models.CallAttempt{}).
			Select("1").
			Where("call_attempts.call_id = calls.id AND call_attempts.agent_id = ?", f.AgentID)
		q = q.Where("(calls.connected_agent_id = ? OR EXISTS (?))", f.AgentID, legs)
	}
	if f.Q != "" {
		like := containsPattern(f.Q)
		q = q.Where("(from_number LIKE ? ESCAPE '!' OR to_number LIKE ? ESCAPE '!')", like, like)
	}
	if !f.From.IsZero() {
		q = q.Where("started_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("started_at <= ?", f.To.UTC())
	}

	var calls []models.Call
	if err := q.Order("started_at DESC").Order("id DESC").Limit(limit).Find(&calls).Error; err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	return calls, nil
}

// GetCall returns models.ErrCallNotFound when id is unknown
func (s *Service) GetCall(ctx context.Context, id string) (*CallDetail, error) {
	db, cancel := s.session(ctx)
	defer cancel()
	call, err := models.GetCallByID(db, id)
	if err != nil {
		return nil, err
	}
	attempts, err := models.ListAttempts(db, call.ID)
	if err != nil {
		return nil, fmt.Errorf("load attempts: %w", err)
	}

	ids := agentIDs([]models.Call{*call}, attempts)
	names, err := models.GetAgentNames(db, ids)
	if err != nil {
		return nil, fmt.Errorf("load agent names: %w", err)
	}

	detail := &CallDetail{Call: *call, Attempts: attempts, AgentNames: names}
	if call.TrackedNumberID != nil {
		labels, err := models.GetTrackedNumberLabels(db, []string{*call.TrackedNumberID})
		if err != nil {
			return nil, fmt.Errorf("load number label: %w", err)
		}
		detail.NumberLabel = labels[*call.TrackedNumberID]
	}
	return detail, nil
}

// ResolveWindow fills a missing bound: To defaults to now, From to seven days before To
func (s *Service) ResolveWindow(w Window) (Window, error) {
	if w.To.IsZero() {
		w.To = s.now()
	}
	if w.From.IsZero() {
		w.From = w.To.Add(-DefaultWindow)
	}
	if w.To.Before(w.From) {
		return w, fmt.Errorf("window ends before it starts")
	}
	if w.To.Sub(w.From) > MaxWindow {
		return w, fmt.Errorf("window longer than %d days", int(MaxWindow/(24*time.Hour)))
	}
	return w, nil
}

// GetMetrics aggregates the window. Results may be served from cache for the TTL.
func (s *Service) GetMetrics(ctx context.Context, w Window, f Filter, loc *time.Location) (*Result, error) {
	if loc == nil {
		loc = s.loc
	}
	w, err := s.ResolveWindow(w)
	if err != nil {
		return nil, err
	}

	key := metricsCacheKey(w, f, loc)
	if s.cache != nil && s.ttl > 0 {
		var cached Result
		hit := cache.GetInto(ctx, s.cache, key, &cached)
		if s.onCache != nil {
			s.onCache(hit)
		}
		if hit {
			return &cached, nil
		}
	}

	in, err := s.load(ctx, w, f, loc)
	if err != nil {
		return nil, err
	}
	result := Aggregate(in)

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.Set(ctx, key, result, s.ttl); err != nil {
			logger.Warn("cache metrics", zap.String("key", key), zap.Error(err))
		}
	}
	return &result, nil
}

func (s *Service) load(ctx context.Context, w Window, f Filter, loc *time.Location) (Input, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	q := db.Where("started_at >= ? AND started_at <= ?", w.From.UTC(), w.To.UTC())
	if f.TrackedNumberID != "" {
		q = q.Where("tracked_number_id = ?", f.TrackedNumberID)
	}
	var calls []models.Call
	if err := q.Order("started_at DESC").Limit(s.rowLimit).Find(&calls).Error; err != nil {
		return Input{}, fmt.Errorf("load calls: %w", err)
	}
	if len(calls) == s.rowLimit {
		logger.Warn("metrics window truncated", zap.Int("rowLimit", s.rowLimit))
	}

	callIDs := make([]string, len(calls))
	for i := range calls {
		callIDs[i] = calls[i].ID
	}
	attempts, err := models.ListAttemptsForCalls(db, callIDs)
	if err != nil {
		return Input{}, fmt.Errorf("load attempts: %w", err)
	}

	names, err := models.GetAgentNames(db, agentIDs(calls, attempts))
	if err != nil {
		return Input{}, fmt.Errorf("load agent names: %w", err)
	}
	labels, err := models.GetTrackedNumberLabels(db, trackedNumberIDs(calls))
	if err != nil {
		return Input{}, fmt.Errorf("load number labels: %w", err)
	}

	return Input{
		Calls:        calls,
		Attempts:     attempts,
		Window:       w,
		Filter:       f,
		Location:     loc,
		AgentNames:   names,
		NumberLabels: labels,
	}, nil
}

// minute granularity lets the default "until now" window share cache entries
func metricsCacheKey(w Window, f Filter, loc *time.Location) string {
	return fmt.Sprintf("metrics:%d:%d:%s:%s:%s",
		w.From.Truncate(time.Minute).Unix(),
		w.To.Truncate(time.Minute).Unix(),
		f.TrackedNumberID, f.AgentID, loc.String())
}

func agentIDs(calls []models.Call, attempts []models.CallAttempt) []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for _, c := range calls {
		if c.ConnectedAgentID != nil {
			add(*c.ConnectedAgentID)
		}
	}
	for _, a := range attempts {
		add(a.AgentID)
	}
	return ids
}

func trackedNumberIDs(calls []models.Call) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, c := range calls {
		if c.TrackedNumberID == nil {
			continue
		}
		if _, ok := seen[*c.TrackedNumberID]; !ok {
			seen[*c.TrackedNumberID] = struct{}{}
			ids = append(ids, *c.TrackedNumberID)
		}
	}
	return ids
}
