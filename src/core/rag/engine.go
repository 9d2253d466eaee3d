package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"ragmix/src/log"
)

type chatEngine struct {
	orch        *orchestrator
	synth       AnswerSynthesizer
	completions CompletionProvider
	retry       RetryPolicy
	cfg         Config
}

// NewChatService wires retrieval orchestration and synthesis into the full
// turn pipeline.
func NewChatService(
	semantic SearchService,
	structured StructuredSearchService,
	synth AnswerSynthesizer,
	completions CompletionProvider,
	files FileStore,
	docs DocumentStore,
	retry RetryPolicy,
	cfg Config,
) ChatService {
	cfg = cfg.withDefaults()
	return &chatEngine{
		orch: &orchestrator{
			semantic:    semantic,
			structured:  structured,
			completions: completions,
			files:       files,
			docs:        docs,
			retry:       retry,
			cfg:         cfg,
		},
		synth:       synth,
		completions: completions,
		retry:       retry,
		cfg:         cfg,
	}
}

func (c *chatEngine) Answer(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	if req.User == nil || req.Query == "" {
		return nil, ErrInvalidRequest
	}
	if req.Limit <= 0 {
		req.Limit = c.cfg.DefaultLimit
	}
	if req.MinScore == 0 {
		req.MinScore = c.cfg.DefaultMinScore
	}

	turnID := uuid.New().String()

	if !req.UseRetrieval {
		return c.fallback(ctx, req, turnID)
	}

	evidence, err := c.orch.retrieve(ctx, req.User, req.Query, req.Limit, req.MinScore)
	if err != nil {
		log.Error(err, "retrieval unavailable, answering without documents", "turn_id", turnID)
		return c.fallback(ctx, req, turnID)
	}

	combined := evidence.combined()
	if len(combined) == 0 {
		return c.fallback(ctx, req, turnID)
	}

	answer := c.synth.Synthesize(ctx, req.Query, combined, req.Model)
	if !answer.Success {
		log.Info("synthesis degraded", "turn_id", turnID, "response_type", string(evidence.responseType))
	}

	return &TurnResponse{
		TurnID:       turnID,
		Response:     answer.Response,
		Sources:      answer.Sources,
		ResponseType: evidence.responseType,
	}, nil
}

// fallback answers without retrieval. It is the path for retrieval-disabled
// turns and for turns where no usable evidence exists.
func (c *chatEngine) fallback(ctx context.Context, req TurnRequest, turnID string) (*TurnResponse, error) {
	var text string
	err := c.retry.Do(ctx, func() error {
		var completeErr error
		text, completeErr = c.completions.Complete(ctx, []Message{
			{Role: "system", Content: FallbackSystemMessage},
			{Role: "user", Content: req.Query},
		}, CompletionOptions{Model: req.Model, Temperature: 0.7, MaxTokens: 2048})
		return completeErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}

	return &TurnResponse{
		TurnID:       turnID,
		Response:     text,
		Sources:      []string{},
		ResponseType: ResponseNoResults,
	}, nil
}
