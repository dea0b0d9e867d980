package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"ai-answer-engine-be/internal/dto"
	"ai-answer-engine-be/pkg/pipeline/executor"
	"ai-answer-engine-be/pkg/pipeline/state"
)

// Bus topics consumed by the metrics and recorder workers.
const (
	TopicStageCompleted = "pipeline.stage.completed"
	TopicQueryCompleted = "pipeline.query.completed"
	TopicQueryRejected  = "pipeline.query.rejected"
)

// busEventSink forwards pipeline progress onto the in-process bus. Publish
// failures are logged and swallowed; the pipeline never waits on consumers.
type busEventSink struct {
	publisher IPublisherService
}

var _ executor.EventSink = &busEventSink{}

func NewBusEventSink(publisher IPublisherService) executor.EventSink {
	return &busEventSink{publisher: publisher}
}

func (s *busEventSink) StageCompleted(ctx context.Context, requestId, stage string, latency time.Duration) {
	payload := dto.PublishStageCompletedMessage{
		RequestId: requestId,
		Stage:     stage,
		LatencyMs: latency.Milliseconds(),
	}
	msgJson, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.publisher.PublishTo(ctx, TopicStageCompleted, msgJson); err != nil {
		log.Printf("[WARN] Failed to publish stage event: %v", err)
	}
}

func (s *busEventSink) PipelineCompleted(ctx context.Context, requestId string, qc state.QueryContext, result *state.PipelineResult, latency time.Duration) {
	payload := dto.PublishQueryCompletedMessage{
		RequestId:   requestId,
		SessionId:   qc.SessionID,
		Mode:        string(qc.Mode),
		Message:     qc.Message,
		Vertical:    string(result.Vertical),
		Quality:     string(result.RetrievalStats.Quality),
		Summary:     result.Summary,
		Citations:   result.Citations,
		CacheHit:    result.Debug.CacheHit,
		LatencyMs:   latency.Milliseconds(),
		CompletedAt: time.Now(),
	}
	if result.Debug.Rewrite != nil {
		payload.Rewritten = result.Debug.Rewrite.RewrittenPrompt
	}
	msgJson, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.publisher.PublishTo(ctx, TopicQueryCompleted, msgJson); err != nil {
		log.Printf("[WARN] Failed to publish completion event: %v", err)
	}
}
