package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"thoughtcapture/internal/model"
	"thoughtcapture/pkg/circuitbreaker"
	"thoughtcapture/pkg/metrics"
)

const classifyTimeout = 25 * time.Second

const classifySystemPrompt = `You are a classifier for a personal thought capture tool. ` +
	`Classify the user's message into exactly one category:
action_required - a task, commitment, or anything the user needs to follow up on
reference - information, links, or ideas worth keeping but needing no action
noise - greetings, test messages, or content with no lasting value
Respond with only the category name, nothing else.`

type ClassifyResult struct {
	Classification model.Classification
	Model          string
	LatencyMS      int64
}

// Classifier labels thought text through the OpenAI chat API. Calls run
// behind a circuit breaker so a degraded upstream sheds load instead of
// tying up every worker for the full timeout.
type Classifier struct {
	client  *openai.Client
	model   string
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewClassifier(apiKey, modelName string, logger *zap.Logger) *Classifier {
	return &Classifier{
		client:  openai.NewClient(apiKey),
		model:   modelName,
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		logger:  logger,
	}
}

// Classify returns a label for the text. Upstream failures and an open
// breaker come back as retryable errors; an unparseable completion falls
// back to action_required, because surfacing a thought needlessly beats
// burying a real task.
func (c *Classifier) Classify(ctx context.Context, text string) (*ClassifyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, classifyTimeout)
	defer cancel()

	start := time.Now()
	var content string

	err := c.breaker.Execute(func() error {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: 0,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: classifySystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: text},
			},
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty completion")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})

	latency := time.Since(start)
	if err != nil {
		metrics.RecordClassifierCallLatency(c.model, "error", latency)
		return nil, fmt.Errorf("classifier: %w", err)
	}
	metrics.RecordClassifierCallLatency(c.model, "ok", latency)

	label := strings.ToLower(strings.TrimSpace(content))
	classification, ok := model.ParseClassification(label)
	if !ok {
		c.logger.Warn("Classifier returned unknown label, falling back",
			zap.String("label", label),
		)
		classification = model.ClassificationActionRequired
	}

	return &ClassifyResult{
		Classification: classification,
		Model:          c.model,
		LatencyMS:      latency.Milliseconds(),
	}, nil
}
