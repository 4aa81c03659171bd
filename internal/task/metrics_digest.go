package task

import (
	"context"
	"time"

	"github.com/code-100-precent/calltrack/internal/analytics"
	"github.com/code-100-precent/calltrack/pkg/cache"
	"github.com/code-100-precent/calltrack/pkg/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	digestRetention = 8 * 24 * time.Hour
	digestTimeout   = time.Minute
)

// DigestKey cache key of the digest for a report-local date (YYYY-MM-DD)
func DigestKey(date string) string {
	return "metrics:digest:" + date
}

// RunMetricsDigest aggregates the report-local day containing day and stores the
// result in c when it is set.
func RunMetricsDigest(ctx context.Context, svc *analytics.Service, c cache.Cache, day time.Time) (*analytics.Result, error) {
	loc := svc.Location()
	day = day.In(loc)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
	date := start.Format("2006-01-02")

	result, err := svc.GetMetrics(ctx, analytics.Window{From: start, To: end}, analytics.Filter{}, loc)
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("date", date),
		zap.Int("total", result.Summary.Total),
		zap.Int("answered", result.Summary.Answered),
		zap.Int("missed", result.Summary.Missed),
		zap.Int("voicemail", result.Summary.Voicemail),
	}
	if result.Summary.AvgAnswerSec != nil {
		fields = append(fields, zap.Int("avgAnswerSec", *result.Summary.AvgAnswerSec))
	}
	logger.Info("Daily call digest", fields...)

	if c != nil {
		if err := c.Set(ctx, DigestKey(date), result, digestRetention); err != nil {
			logger.Warn("store call digest", zap.String("date", date), zap.Error(err))
		}
	}
	return result, nil
}

// StartMetricsDigest schedules the previous-day digest. The returned cron must be
// stopped on shutdown.
func StartMetricsDigest(svc *analytics.Service, c cache.Cache, schedule string) (*cron.Cron, error) {
	loc := svc.Location()
	cr := cron.New(cron.WithLocation(loc))

	_, err := cr.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), digestTimeout)
		defer cancel()
		yesterday := time.Now().In(loc).AddDate(0, 0, -1)
		if _, err := RunMetricsDigest(ctx, svc, c, yesterday); err != nil {
			logger.Error("Daily call digest failed", zap.Error(err))
		}
	})
	if err != nil {
		logger.Error("Failed to add metrics digest cron job", zap.Error(err))
		return nil, err
	}

	cr.Start()
	logger.Info("Metrics digest started", zap.String("schedule", schedule), zap.String("tz", loc.String()))
	return cr, nil
}
