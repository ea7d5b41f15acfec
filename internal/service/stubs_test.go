package service

import (
	"context"
	"time"

	"thoughtcapture/internal/model"
	"thoughtcapture/internal/repository"
	"thoughtcapture/internal/slack"
	"thoughtcapture/pkg/outbox"
)

type postedMessage struct {
	channel string
	text    string
	blocks  []slack.Block
}

type fakeSlack struct {
	posted      []postedMessage
	updated     []postedMessage
	reactions   []string
	userInfo    *slack.UserInfo
	postErr     error
	openErr     error
	nextTS      string
	convChannel string
}

func (f *fakeSlack) PostMessage(_ context.Context, channel, text string, blocks []slack.Block) (string, error) {
	if f.postErr != nil {
		return "", f.postErr
	}
	f.posted = append(f.posted, postedMessage{channel: channel, text: text, blocks: blocks})
	if f.nextTS == "" {
		return "1700000000.000100", nil
	}
	return f.nextTS, nil
}

func (f *fakeSlack) UpdateMessage(_ context.Context, channel, ts, text string, blocks []slack.Block) error {
	f.updated = append(f.updated, postedMessage{channel: channel, text: text, blocks: blocks})
	return nil
}

func (f *fakeSlack) OpenConversation(_ context.Context, userID string) (string, error) {
	if f.openErr != nil {
		return "", f.openErr
	}
	if f.convChannel == "" {
		return "D" + userID, nil
	}
	return f.convChannel, nil
}

func (f *fakeSlack) AddReaction(_ context.Context, _, _, name string) error {
	f.reactions = append(f.reactions, name)
	return nil
}

func (f *fakeSlack) GetUserInfo(_ context.Context, userID string) (*slack.UserInfo, error) {
	if f.userInfo == nil {
		return &slack.UserInfo{ID: userID}, nil
	}
	return f.userInfo, nil
}

type loggedEvent struct {
	eventType string
	userID    string
	props     map[string]any
}

type fakeAnalytics struct {
	events      []loggedEvent
	eventCounts map[string]int
}

func (f *fakeAnalytics) LogEvent(_ context.Context, eventType, userID string, props map[string]any) error {
	f.events = append(f.events, loggedEvent{eventType: eventType, userID: userID, props: props})
	return nil
}

func (f *fakeAnalytics) CountEventsSince(_ context.Context, eventType, _ string, _ time.Time) (int, error) {
	return f.eventCounts[eventType], nil
}

func (f *fakeAnalytics) HasDigestEngagement(_ context.Context, messageTS string) (bool, error) {
	for _, e := range f.events {
		if e.eventType == "digest_engagement" && e.props["message_ts"] == messageTS {
			return true, nil
		}
	}
	return false, nil
}

type fakeThoughtStore struct {
	thoughts map[string]*model.Thought

	insertedParams []repository.InsertThoughtParams
	insertedEvents []*outbox.Event
	insertReturns  *model.Thought

	captureCount int

	overrideApplied []string
	statusUpdates   []statusUpdate
	statusApplied   bool

	recentThought *model.Thought
	byBotReplyTS  map[string]*model.Thought
	byMessageTS   map[string]*model.Thought

	digestItems []model.Thought
	classCounts map[model.Classification]int
}

type statusUpdate struct {
	id          string
	status      model.Status
	snoozeUntil *time.Time
}

func newFakeThoughtStore() *fakeThoughtStore {
	return &fakeThoughtStore{
		thoughts:      map[string]*model.Thought{},
		byBotReplyTS:  map[string]*model.Thought{},
		byMessageTS:   map[string]*model.Thought{},
		statusApplied: true,
	}
}

func (f *fakeThoughtStore) InsertWithOutboxEvent(_ context.Context, params repository.InsertThoughtParams, event *outbox.Event) (*model.Thought, error) {
	f.insertedParams = append(f.insertedParams, params)
	f.insertedEvents = append(f.insertedEvents, event)
	return f.insertReturns, nil
}

func (f *fakeThoughtStore) CountByUserSince(_ context.Context, _ string, _ time.Time) (int, error) {
	return f.captureCount, nil
}

func (f *fakeThoughtStore) FindByID(_ context.Context, id string) (*model.Thought, error) {
	return f.thoughts[id], nil
}

func (f *fakeThoughtStore) FindMostRecentByUser(_ context.Context, _, _ string) (*model.Thought, error) {
	return f.recentThought, nil
}

func (f *fakeThoughtStore) FindByBotReplyTS(_ context.Context, ts string) (*model.Thought, error) {
	return f.byBotReplyTS[ts], nil
}

func (f *fakeThoughtStore) FindByMessageTS(_ context.Context, ts string) (*model.Thought, error) {
	return f.byMessageTS[ts], nil
}

func (f *fakeThoughtStore) OverrideClassification(_ context.Context, id string, classification model.Classification) (bool, error) {
	f.overrideApplied = append(f.overrideApplied, id)
	if t, ok := f.thoughts[id]; ok {
		t.Classification = classification
		t.ClassificationSource = model.SourceUserOverride
	}
	return true, nil
}

func (f *fakeThoughtStore) UpdateStatus(_ context.Context, id string, status model.Status, snoozeUntil *time.Time) (bool, error) {
	f.statusUpdates = append(f.statusUpdates, statusUpdate{id: id, status: status, snoozeUntil: snoozeUntil})
	if f.statusApplied {
		if t, ok := f.thoughts[id]; ok {
			t.Status = status
			t.SnoozeUntil = snoozeUntil
		}
	}
	return f.statusApplied, nil
}

func (f *fakeThoughtStore) FindDigestItems(_ context.Context, _ string, _, _, _ time.Time) ([]model.Thought, error) {
	return f.digestItems, nil
}

func (f *fakeThoughtStore) CountByClassification(_ context.Context, _ string, _, _ time.Time) (map[model.Classification]int, error) {
	return f.classCounts, nil
}

type fakePrefsStore struct {
	prefs     map[string]*model.UserPrefs
	welcomed  []string
	timezones map[string]string
	upserts   []model.UserPrefs
}

func newFakePrefsStore() *fakePrefsStore {
	return &fakePrefsStore{
		prefs:     map[string]*model.UserPrefs{},
		timezones: map[string]string{},
	}
}

func (f *fakePrefsStore) FindByUserID(_ context.Context, userID string) (*model.UserPrefs, error) {
	return f.prefs[userID], nil
}

func (f *fakePrefsStore) MarkWelcomed(_ context.Context, userID string) error {
	f.welcomed = append(f.welcomed, userID)
	return nil
}

func (f *fakePrefsStore) SetTimezone(_ context.Context, userID, timezone string) error {
	f.timezones[userID] = timezone
	return nil
}

func (f *fakePrefsStore) UpsertSchedule(_ context.Context, userID string, day, hour, minute int, timezone string) error {
	f.upserts = append(f.upserts, model.UserPrefs{
		SlackUserID: userID, DigestDay: day, DigestHour: hour, DigestMinute: minute, Timezone: timezone,
	})
	return nil
}

type fakeDeliveryStore struct {
	hasDelivery bool
	insertOK    bool
	inserted    []repository.InsertDeliveryParams
	byMessageTS map[string]*model.DigestDelivery
}

func (f *fakeDeliveryStore) HasDeliveryForPeriod(_ context.Context, _ string, _ time.Time) (bool, error) {
	return f.hasDelivery, nil
}

func (f *fakeDeliveryStore) FindBySlackMessageTS(_ context.Context, ts string) (*model.DigestDelivery, error) {
	return f.byMessageTS[ts], nil
}

func (f *fakeDeliveryStore) Insert(_ context.Context, params repository.InsertDeliveryParams) (bool, error) {
	f.inserted = append(f.inserted, params)
	return f.insertOK, nil
}
