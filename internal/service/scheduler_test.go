package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"thoughtcapture/config"
	contracts "thoughtcapture/contracts/mq"
	"thoughtcapture/internal/model"
	"thoughtcapture/internal/repository"
)

type fakeAllPrefs struct {
	all []model.UserPrefs
}

func (f *fakeAllPrefs) FindAll(_ context.Context) ([]model.UserPrefs, error) {
	return f.all, nil
}

type fakeRecentDeliveries struct {
	recent map[string]bool
}

func (f *fakeRecentDeliveries) HasDeliverySince(_ context.Context, userID string, _ time.Time) (bool, error) {
	return f.recent[userID], nil
}

type fakeStaleStore struct {
	stale []repository.StaleThought
}

func (f *fakeStaleStore) FindStaleUnclassified(_ context.Context, _, _ time.Time) ([]repository.StaleThought, error) {
	return f.stale, nil
}

type publishedJob struct {
	routingKey string
	payload    any
}

type fakePublisher struct {
	published []publishedJob
}

func (f *fakePublisher) Publish(routingKey string, payload any) error {
	f.published = append(f.published, publishedJob{routingKey: routingKey, payload: payload})
	return nil
}

func duePrefs(userID string) model.UserPrefs {
	// Trigger matching whatever the current wall clock is, in UTC.
	now := time.Now().UTC()
	return model.UserPrefs{
		SlackUserID:  userID,
		DigestDay:    int(now.Weekday()),
		DigestHour:   now.Hour(),
		DigestMinute: now.Minute(),
		Timezone:     "UTC",
	}
}

func newSchedulerFixture(prefs []model.UserPrefs, recent map[string]bool) (*SchedulerService, *fakePublisher) {
	publisher := &fakePublisher{}
	access := NewAccessChecker(config.FeatureConfig{Enabled: true})
	svc := NewSchedulerService(
		&fakeAllPrefs{all: prefs},
		&fakeRecentDeliveries{recent: recent},
		&fakeStaleStore{},
		publisher,
		access,
		zap.NewNop(),
	)
	return svc, publisher
}

func TestScanDueDigests_EnqueuesDueUsersOnly(t *testing.T) {
	notDue := duePrefs("U2")
	notDue.DigestHour = (notDue.DigestHour + 12) % 24

	svc, publisher := newSchedulerFixture([]model.UserPrefs{duePrefs("U1"), notDue}, nil)

	svc.ScanDueDigests(context.Background())

	require.Len(t, publisher.published, 1)
	assert.Equal(t, contracts.RoutingKeyDeliver, publisher.published[0].routingKey)

	job := publisher.published[0].payload.(contracts.DigestDeliveryJob)
	assert.Equal(t, "U1", job.UserID)
	assert.Equal(t, job.PeriodEnd.Add(-7*24*time.Hour), job.PeriodStart)
	assert.Zero(t, job.PeriodEnd.Second(), "period is minute-aligned")
}

func TestScanDueDigests_SkipsRecentDeliveries(t *testing.T) {
	svc, publisher := newSchedulerFixture(
		[]model.UserPrefs{duePrefs("U1")},
		map[string]bool{"U1": true},
	)

	svc.ScanDueDigests(context.Background())

	assert.Empty(t, publisher.published)
}

func TestScanDueDigests_SkipsGatedUsers(t *testing.T) {
	publisher := &fakePublisher{}
	access := NewAccessChecker(config.FeatureConfig{Enabled: true, EnabledUserIDs: "U999"})
	svc := NewSchedulerService(
		&fakeAllPrefs{all: []model.UserPrefs{duePrefs("U1")}},
		&fakeRecentDeliveries{},
		&fakeStaleStore{},
		publisher,
		access,
		zap.NewNop(),
	)

	svc.ScanDueDigests(context.Background())

	assert.Empty(t, publisher.published)
}

func TestScanStaleUnclassified_ReenqueuesJobs(t *testing.T) {
	publisher := &fakePublisher{}
	svc := NewSchedulerService(
		&fakeAllPrefs{},
		&fakeRecentDeliveries{},
		&fakeStaleStore{stale: []repository.StaleThought{
			{ID: "t1", SlackUserID: "U1"},
			{ID: "t2", SlackUserID: "U2"},
		}},
		publisher,
		NewAccessChecker(config.FeatureConfig{Enabled: true}),
		zap.NewNop(),
	)

	svc.ScanStaleUnclassified(context.Background())

	require.Len(t, publisher.published, 2)
	for _, p := range publisher.published {
		assert.Equal(t, contracts.RoutingKeyClassify, p.routingKey)
	}

	job := publisher.published[0].payload.(contracts.ClassificationJob)
	assert.Equal(t, "t1", job.ThoughtID)
	assert.Equal(t, "U1", job.UserID)
}
