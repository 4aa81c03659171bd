package task

import (
	"context"
	"testing"
	"time"

	"github.com/code-100-precent/calltrack/internal/analytics"
	"github.com/code-100-precent/calltrack/internal/models"
	"github.com/code-100-precent/calltrack/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMetricsDigest(t *testing.T) {
	db := models.SetupTestDB(t)
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

	agent := "agent1"
	ended := day.Add(9*time.Hour + 2*time.Minute)
	calls := []models.Call{
		{ExternalID: "CA1", StartedAt: day.Add(9 * time.Hour), EndedAt: &ended, Status: models.CallCompleted, ConnectedAgentID: &agent},
		{ExternalID: "CA2", StartedAt: day.Add(15 * time.Hour), Status: models.CallFailed},
		// next day, outside the digest
		{ExternalID: "CA3", StartedAt: day.Add(25 * time.Hour), Status: models.CallFailed},
	}
	for i := range calls {
		_, err := models.InsertCallIfAbsent(db, &calls[i])
		require.NoError(t, err)
	}

	svc := analytics.NewService(db, analytics.Options{})
	store := cache.NewLocalCache(cache.LocalConfig{MaxSize: 10})
	ctx := context.Background()

	result, err := RunMetricsDigest(ctx, svc, store, day.Add(13*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Summary.Total)
	assert.Equal(t, 1, result.Summary.Answered)
	assert.Equal(t, 1, result.Summary.Abandoned)
	assert.Len(t, result.Trends, 1)

	var cached analytics.Result
	require.True(t, cache.GetInto(ctx, store, DigestKey("2024-05-10"), &cached))
	assert.Equal(t, 2, cached.Summary.Total)
}

func TestStartMetricsDigest(t *testing.T) {
	db := models.SetupTestDB(t)
	svc := analytics.NewService(db, analytics.Options{})

	cr, err := StartMetricsDigest(svc, nil, "5 0 * * *")
	require.NoError(t, err)
	assert.Len(t, cr.Entries(), 1)
	<-cr.Stop().Done()

	_, err = StartMetricsDigest(svc, nil, "not a schedule")
	assert.Error(t, err)
}
