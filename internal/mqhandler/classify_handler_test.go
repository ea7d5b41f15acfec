package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"thoughtcapture/internal/model"
	"thoughtcapture/internal/service"
	"thoughtcapture/internal/slack"
	"thoughtcapture/pkg/mq"
)

type fakeThoughts struct {
	thought       *model.Thought
	updateApplied bool
	updates       int
	botReplyTS    string
}

func (f *fakeThoughts) FindByID(_ context.Context, _ string) (*model.Thought, error) {
	return f.thought, nil
}

func (f *fakeThoughts) UpdateClassification(_ context.Context, _ string, classification model.Classification, source model.ClassificationSource, _ string, _ int64) (bool, error) {
	f.updates++
	if f.updateApplied && f.thought != nil {
		f.thought.Classification = classification
		f.thought.ClassificationSource = source
	}
	return f.updateApplied, nil
}

func (f *fakeThoughts) UpdateBotReplyTS(_ context.Context, _, ts string) error {
	f.botReplyTS = ts
	return nil
}

type fakeClassifier struct {
	result *service.ClassifyResult
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(_ context.Context, _ string) (*service.ClassifyResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeAnalytics struct {
	events []string
}

func (f *fakeAnalytics) LogEvent(_ context.Context, eventType, _ string, _ map[string]any) error {
	f.events = append(f.events, eventType)
	return nil
}

type fakeMessenger struct {
	posted []string
}

func (f *fakeMessenger) OpenConversation(_ context.Context, userID string) (string, error) {
	return "D" + userID, nil
}

func (f *fakeMessenger) PostMessage(_ context.Context, _, text string, _ []slack.Block) (string, error) {
	f.posted = append(f.posted, text)
	return "999.111", nil
}

type fakeDLQ struct {
	parked [][]byte
}

func (f *fakeDLQ) PublishToDLQ(_ string, payload []byte, _ string) error {
	f.parked = append(f.parked, payload)
	return nil
}

type fakeDeduper struct {
	held     map[string]bool
	releases int
}

func (f *fakeDeduper) AcquireOnce(_ context.Context, handler, key string) bool {
	if f.held == nil {
		f.held = map[string]bool{}
	}
	k := handler + ":" + key
	if f.held[k] {
		return false
	}
	f.held[k] = true
	return true
}

func (f *fakeDeduper) Release(_ context.Context, handler, key string) {
	delete(f.held, handler+":"+key)
	f.releases++
}

type fakeRetryCounter struct {
	count  int64
	resets int
}

func (f *fakeRetryCounter) IncrementAndGet(_ context.Context, _ string) (int64, error) {
	f.count++
	return f.count, nil
}

func (f *fakeRetryCounter) Reset(_ context.Context, _ string) error {
	f.resets++
	return nil
}

func unclassifiedThought() *model.Thought {
	text := "call the dentist"
	return &model.Thought{
		ID:             "t1",
		SlackUserID:    "U123",
		Text:           &text,
		Classification: model.ClassificationUnclassified,
		Status:         model.StatusOpen,
	}
}

func classifyJobPayload(t *testing.T) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(map[string]string{"thought_id": "t1", "user_id": "U123"})
	require.NoError(t, err)
	return b
}

type classifyFixture struct {
	handler    *ClassifyHandler
	thoughts   *fakeThoughts
	classifier *fakeClassifier
	messenger  *fakeMessenger
	dlq        *fakeDLQ
	deduper    *fakeDeduper
	counter    *fakeRetryCounter
}

func newClassifyFixture(thought *model.Thought) (*ClassifyHandler, *fakeThoughts, *fakeClassifier, *fakeMessenger, *fakeDLQ, *fakeRetryCounter) {
	f := newClassifyFixtureFull(thought)
	return f.handler, f.thoughts, f.classifier, f.messenger, f.dlq, f.counter
}

func newClassifyFixtureFull(thought *model.Thought) *classifyFixture {
	f := &classifyFixture{
		thoughts: &fakeThoughts{thought: thought, updateApplied: true},
		classifier: &fakeClassifier{result: &service.ClassifyResult{
			Classification: model.ClassificationActionRequired,
			Model:          "gpt-4o-mini",
			LatencyMS:      120,
		}},
		messenger: &fakeMessenger{},
		dlq:       &fakeDLQ{},
		deduper:   &fakeDeduper{},
		counter:   &fakeRetryCounter{},
	}
	f.handler = NewClassifyHandler(
		f.thoughts, f.classifier, &fakeAnalytics{}, f.messenger,
		f.dlq, f.deduper, f.counter, zap.NewNop(),
	)
	return f
}

func TestClassifyHandler_AppliesAndReplies(t *testing.T) {
	h, thoughts, _, messenger, dlq, counter := newClassifyFixture(unclassifiedThought())

	outcome, err := h.Handle(context.Background(), classifyJobPayload(t))
	require.NoError(t, err)
	assert.Equal(t, mq.OutcomeApplied, outcome)

	assert.Equal(t, 1, thoughts.updates)
	assert.Equal(t, model.ClassificationActionRequired, thoughts.thought.Classification)
	assert.Equal(t, model.SourceLLM, thoughts.thought.ClassificationSource)

	require.Len(t, messenger.posted, 1)
	assert.Contains(t, messenger.posted[0], "Action Required")
	assert.Equal(t, "999.111", thoughts.botReplyTS, "reply ts stored for emoji overrides")

	assert.Empty(t, dlq.parked)
	assert.Equal(t, 1, counter.resets)
}

func TestClassifyHandler_MalformedJobGoesToDLQ(t *testing.T) {
	h, _, classifier, _, dlq, _ := newClassifyFixture(unclassifiedThought())

	outcome, err := h.Handle(context.Background(), json.RawMessage(`{not json`))
	require.NoError(t, err)
	assert.Equal(t, mq.OutcomeAlreadyDone, outcome, "poison is acked, not requeued")
	assert.Len(t, dlq.parked, 1)
	assert.Zero(t, classifier.calls)
}

func TestClassifyHandler_MissingThoughtIsDone(t *testing.T) {
	h, _, classifier, _, _, _ := newClassifyFixture(nil)

	outcome, err := h.Handle(context.Background(), classifyJobPayload(t))
	require.NoError(t, err)
	assert.Equal(t, mq.OutcomeAlreadyDone, outcome)
	assert.Zero(t, classifier.calls)
}

func TestClassifyHandler_PurgedTextIsDone(t *testing.T) {
	thought := unclassifiedThought()
	thought.Text = nil
	h, _, classifier, _, _, _ := newClassifyFixture(thought)

	outcome, err := h.Handle(context.Background(), classifyJobPayload(t))
	require.NoError(t, err)
	assert.Equal(t, mq.OutcomeAlreadyDone, outcome)
	assert.Zero(t, classifier.calls)
}

func TestClassifyHandler_AlreadyClassifiedIsDone(t *testing.T) {
	thought := unclassifiedThought()
	thought.Classification = model.ClassificationReference
	h, thoughts, classifier, messenger, _, _ := newClassifyFixture(thought)

	outcome, err := h.Handle(context.Background(), classifyJobPayload(t))
	require.NoError(t, err)
	assert.Equal(t, mq.OutcomeAlreadyDone, outcome)
	assert.Zero(t, classifier.calls, "no quota spent on a settled thought")
	assert.Zero(t, thoughts.updates)
	assert.Empty(t, messenger.posted)
}

func TestClassifyHandler_LostRaceSkipsReply(t *testing.T) {
	h, thoughts, _, messenger, _, _ := newClassifyFixture(unclassifiedThought())
	thoughts.updateApplied = false

	outcome, err := h.Handle(context.Background(), classifyJobPayload(t))
	require.NoError(t, err)
	assert.Equal(t, mq.OutcomeAlreadyDone, outcome)
	assert.Empty(t, messenger.posted, "the winning writer owns the reply")
}

func TestClassifyHandler_DuplicateDeliveryIsDone(t *testing.T) {
	f := newClassifyFixtureFull(unclassifiedThought())
	f.deduper.held = map[string]bool{"classify:t1": true}

	outcome, err := f.handler.Handle(context.Background(), classifyJobPayload(t))
	require.NoError(t, err)
	assert.Equal(t, mq.OutcomeAlreadyDone, outcome)
	assert.Zero(t, f.classifier.calls, "concurrent duplicate spends no quota")
	assert.Zero(t, f.thoughts.updates)
}

func TestClassifyHandler_RedeliveryAfterTransientErrorClassifies(t *testing.T) {
	f := newClassifyFixtureFull(unclassifiedThought())
	good := f.classifier.result
	f.classifier.result = nil
	f.classifier.err = errors.New("classifier: upstream degraded")

	outcome, err := f.handler.Handle(context.Background(), classifyJobPayload(t))
	require.Error(t, err)
	require.Equal(t, mq.OutcomeRetry, outcome)
	assert.Equal(t, 1, f.deduper.releases, "lock released so the requeue can run")

	// The classifier recovers; the nacked job comes back around.
	f.classifier.result = good
	f.classifier.err = nil

	outcome, err = f.handler.Handle(context.Background(), classifyJobPayload(t))
	require.NoError(t, err)
	assert.Equal(t, mq.OutcomeApplied, outcome)
	assert.Equal(t, 1, f.thoughts.updates, "redelivered job classifies the thought")
	assert.Equal(t, model.ClassificationActionRequired, f.thoughts.thought.Classification)
}

func TestClassifyHandler_TransientErrorRetries(t *testing.T) {
	h, _, classifier, _, dlq, _ := newClassifyFixture(unclassifiedThought())
	classifier.result = nil
	classifier.err = errors.New("classifier: upstream degraded")

	outcome, err := h.Handle(context.Background(), classifyJobPayload(t))
	require.Error(t, err)
	assert.Equal(t, mq.OutcomeRetry, outcome)
	assert.Empty(t, dlq.parked)
}

func TestClassifyHandler_RetryBudgetExhausted(t *testing.T) {
	h, _, classifier, _, dlq, counter := newClassifyFixture(unclassifiedThought())
	classifier.result = nil
	classifier.err = errors.New("classifier: upstream degraded")
	counter.count = maxClassifyRetries // next increment exceeds the budget

	outcome, err := h.Handle(context.Background(), classifyJobPayload(t))
	require.NoError(t, err)
	assert.Equal(t, mq.OutcomeAlreadyDone, outcome)
	assert.Len(t, dlq.parked, 1)
}
