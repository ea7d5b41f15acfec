package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thoughtcapture/internal/model"
)

type fakeHealthThoughts struct {
	total   int
	byClass map[model.Classification]int
}

func (f *fakeHealthThoughts) CountAll(_ context.Context) (int, error) {
	return f.total, nil
}

func (f *fakeHealthThoughts) CountAllByClassification(_ context.Context) (map[model.Classification]int, error) {
	return f.byClass, nil
}

type fakeHealthAnalytics struct {
	activeUsers int
	typeCounts  map[string]int
}

func (f *fakeHealthAnalytics) CountDistinctUsersSince(_ context.Context, _ time.Time) (int, error) {
	return f.activeUsers, nil
}

func (f *fakeHealthAnalytics) CountEventsOfTypeSince(_ context.Context, eventType string, _ time.Time) (int, error) {
	return f.typeCounts[eventType], nil
}

type fakeHealthDeliveries struct {
	sent int
}

func (f *fakeHealthDeliveries) CountSince(_ context.Context, _ time.Time) (int, error) {
	return f.sent, nil
}

func TestHealthReport_Rates(t *testing.T) {
	svc := NewHealthService(
		&fakeHealthThoughts{
			total: 120,
			byClass: map[model.Classification]int{
				model.ClassificationActionRequired: 50,
				model.ClassificationReference:      40,
				model.ClassificationNoise:          30,
			},
		},
		&fakeHealthAnalytics{
			activeUsers: 9,
			typeCounts: map[string]int{
				"thought_classified":        40,
				"classification_overridden": 10,
				// Many taps, but engagement is per digest, not per tap.
				"digest_action_taken": 35,
				"digest_engagement":   6,
			},
		},
		&fakeHealthDeliveries{sent: 8},
	)

	report, err := svc.Report(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 120, report.TotalThoughts)
	assert.Equal(t, 50, report.ByClassification["action_required"])
	assert.Equal(t, 9, report.ActiveUsers14d)
	assert.InDelta(t, 0.25, report.OverrideRate7d, 1e-9)
	assert.InDelta(t, 0.75, report.EngagementRate7d, 1e-9, "engaged digests over digests sent")
	assert.LessOrEqual(t, report.EngagementRate7d, 1.0)
}

func TestHealthReport_ZeroDenominators(t *testing.T) {
	svc := NewHealthService(
		&fakeHealthThoughts{byClass: map[model.Classification]int{}},
		&fakeHealthAnalytics{typeCounts: map[string]int{}},
		&fakeHealthDeliveries{},
	)

	report, err := svc.Report(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.OverrideRate7d)
	assert.Zero(t, report.EngagementRate7d)
}
