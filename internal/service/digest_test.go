package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	contracts "thoughtcapture/contracts/mq"
	"thoughtcapture/internal/model"
)

func thoughtWith(id string, classification model.Classification, status model.Status) model.Thought {
	text := "thought " + id
	return model.Thought{
		ID:             id,
		SlackUserID:    "U123",
		Text:           &text,
		Classification: classification,
		Status:         status,
	}
}

func TestBuildDigestPayload_OrdersByUrgency(t *testing.T) {
	items := []model.Thought{
		thoughtWith("u1", model.ClassificationUnclassified, model.StatusOpen),
		thoughtWith("s1", model.ClassificationActionRequired, model.StatusSnoozed),
		thoughtWith("a1", model.ClassificationActionRequired, model.StatusOpen),
	}

	payload := BuildDigestPayload(items, nil)

	require.False(t, payload.Empty)
	assert.Equal(t, 3, payload.ItemCount)
	assert.Equal(t, 1, payload.SnoozedItemCount)

	// header, divider, then section+actions pairs in urgency order
	require.Len(t, payload.Blocks, 2+3*2)
	assert.Equal(t, "a1", payload.Blocks[3]["block_id"])
	assert.Equal(t, "s1", payload.Blocks[5]["block_id"])
	assert.Equal(t, "u1", payload.Blocks[7]["block_id"])
}

func TestBuildDigestPayload_CapsItemsAndCountsHidden(t *testing.T) {
	var items []model.Thought
	for i := 0; i < 20; i++ {
		items = append(items, thoughtWith(fmt.Sprintf("t%02d", i), model.ClassificationActionRequired, model.StatusOpen))
	}

	payload := BuildDigestPayload(items, nil)

	assert.Equal(t, 14, payload.ItemCount)

	last := payload.Blocks[len(payload.Blocks)-1]
	require.Equal(t, "context", last["type"])
	elements := last["elements"].([]map[string]any)
	assert.Contains(t, elements[0]["text"], "6 more")
}

func TestBuildDigestPayload_EmptyWeekSummarizesCounts(t *testing.T) {
	payload := BuildDigestPayload(nil, map[model.Classification]int{
		model.ClassificationReference: 3,
		model.ClassificationNoise:     2,
	})

	require.True(t, payload.Empty)
	assert.Zero(t, payload.ItemCount)

	body := payload.Blocks[1]["text"].(map[string]any)["text"].(string)
	assert.Contains(t, body, "5 thoughts")
	assert.Contains(t, body, "3 reference")
	assert.Contains(t, body, "2 noise")
}

func TestBuildDigestPayload_EmptyWeekNoCaptures(t *testing.T) {
	payload := BuildDigestPayload(nil, nil)

	require.True(t, payload.Empty)
	body := payload.Blocks[1]["text"].(map[string]any)["text"].(string)
	assert.Contains(t, body, "Nothing captured")
}

func digestJob() contracts.DigestDeliveryJob {
	end := time.Date(2026, 1, 5, 9, 5, 0, 0, time.UTC)
	return contracts.DigestDeliveryJob{
		UserID:      "U123",
		PeriodStart: end.Add(-7 * 24 * time.Hour),
		PeriodEnd:   end,
	}
}

func TestDigestDeliver_SendsAndRecords(t *testing.T) {
	thoughts := newFakeThoughtStore()
	thoughts.digestItems = []model.Thought{thoughtWith("a1", model.ClassificationActionRequired, model.StatusOpen)}
	deliveries := &fakeDeliveryStore{insertOK: true}
	analytics := &fakeAnalytics{}
	sl := &fakeSlack{}

	svc := NewDigestService(thoughts, deliveries, analytics, sl, zap.NewNop())

	outcome, err := svc.Deliver(context.Background(), digestJob())
	require.NoError(t, err)
	assert.Equal(t, DeliverySent, outcome)

	require.Len(t, sl.posted, 1)
	require.Len(t, deliveries.inserted, 1)
	assert.Equal(t, 1, deliveries.inserted[0].ItemCount)
	require.NotNil(t, deliveries.inserted[0].SlackMessageTS)
	require.Len(t, analytics.events, 1)
	assert.Equal(t, "digest_sent", analytics.events[0].eventType)
}

func TestDigestDeliver_SkipsWhenAlreadyDelivered(t *testing.T) {
	thoughts := newFakeThoughtStore()
	deliveries := &fakeDeliveryStore{hasDelivery: true}
	sl := &fakeSlack{}

	svc := NewDigestService(thoughts, deliveries, &fakeAnalytics{}, sl, zap.NewNop())

	outcome, err := svc.Deliver(context.Background(), digestJob())
	require.NoError(t, err)
	assert.Equal(t, DeliveryAlreadySent, outcome)
	assert.Empty(t, sl.posted, "no second digest goes out")
	assert.Empty(t, deliveries.inserted)
}

func TestDigestDeliver_SendFailureIsRetryable(t *testing.T) {
	thoughts := newFakeThoughtStore()
	deliveries := &fakeDeliveryStore{insertOK: true}
	sl := &fakeSlack{postErr: fmt.Errorf("slack api 5xx: 502")}

	svc := NewDigestService(thoughts, deliveries, &fakeAnalytics{}, sl, zap.NewNop())

	_, err := svc.Deliver(context.Background(), digestJob())
	require.Error(t, err)
	assert.Empty(t, deliveries.inserted, "no record without a send")
}

func TestDigestDeliver_LostInsertRaceIsBenign(t *testing.T) {
	thoughts := newFakeThoughtStore()
	deliveries := &fakeDeliveryStore{insertOK: false}
	sl := &fakeSlack{}

	svc := NewDigestService(thoughts, deliveries, &fakeAnalytics{}, sl, zap.NewNop())

	outcome, err := svc.Deliver(context.Background(), digestJob())
	require.NoError(t, err)
	assert.Equal(t, DeliveryAlreadySent, outcome)
}
