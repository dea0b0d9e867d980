package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"ai-answer-engine-be/internal/dto"
	"ai-answer-engine-be/internal/entity"
	"ai-answer-engine-be/internal/repository/contract"
	"ai-answer-engine-be/pkg/embedding"
	"ai-answer-engine-be/pkg/events"
	pktNats "ai-answer-engine-be/pkg/nats"
	"ai-answer-engine-be/pkg/pipeline/state"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

type IRecorderService interface {
	Consume(ctx context.Context) error
}

// recorderService persists every completed query for analytics and follow-up
// mining, then mirrors the completion onto the NATS bus.
type recorderService struct {
	pubSub            *gochannel.GoChannel
	historyRepo       contract.QueryHistoryRepository
	embeddingProvider embedding.EmbeddingProvider
	eventPublisher    *pktNats.Publisher
}

func NewRecorderService(
	pubSub *gochannel.GoChannel,
	historyRepo contract.QueryHistoryRepository,
	embeddingProvider embedding.EmbeddingProvider,
	eventPublisher *pktNats.Publisher,
) IRecorderService {
	return &recorderService{
		pubSub:            pubSub,
		historyRepo:       historyRepo,
		embeddingProvider: embeddingProvider,
		eventPublisher:    eventPublisher,
	}
}

func (rs *recorderService) Consume(ctx context.Context) error {
	messages, err := rs.pubSub.Subscribe(ctx, TopicQueryCompleted)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			rs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (rs *recorderService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishQueryCompletedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[ERROR] Failed to unmarshal completion message: %v", err)
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	log.Printf("[INFO] Recording query %s (vertical: %s, quality: %s)", payload.RequestId, payload.Vertical, payload.Quality)

	record := &entity.QueryRecord{
		Id:        uuid.New(),
		SessionId: payload.SessionId,
		Mode:      payload.Mode,
		Message:   payload.Message,
		Rewritten: payload.Rewritten,
		Vertical:  payload.Vertical,
		Quality:   payload.Quality,
		Summary:   payload.Summary,
		Citations: payload.Citations,
		LatencyMs: payload.LatencyMs,
		CacheHit:  payload.CacheHit,
		CreatedAt: time.Now(),
	}

	// Cache hits reuse the embedding-bearing row already written for the
	// original computation; skip the embedding call for them.
	if !payload.CacheHit {
		res, err := rs.embeddingProvider.Generate(ctx, payload.Message, embedding.TaskRetrievalDocument)
		if err != nil {
			log.Printf("[WARN] Failed to embed query %s, storing without embedding: %v", payload.RequestId, err)
		} else if res != nil {
			record.Embedding = res.Embedding.Values
		}
	}

	if err := rs.historyRepo.Create(ctx, record); err != nil {
		log.Printf("[ERROR] Failed to store query record %s: %v", payload.RequestId, err)
		msg.Nack() // Nack for retriable errors
		return
	}

	if rs.eventPublisher != nil {
		evt := events.NewQueryCompleted(payload.RequestId, payload.SessionId, payload.Mode, payload.Vertical, payload.Quality, payload.LatencyMs, payload.CacheHit)
		evt.Data["record_id"] = record.Id.String()
		// We log error but don't fail the message as the mirror is auxiliary
		if err := rs.eventPublisher.Publish(ctx, evt); err != nil {
			log.Printf("[WARN] Failed to publish QUERY_COMPLETED event: %v", err)
		}

		if payload.Quality == string(state.QualityFallbackOther) {
			if err := rs.eventPublisher.Publish(ctx, events.NewFallbackTaken(payload.RequestId, payload.SessionId)); err != nil {
				log.Printf("[WARN] Failed to publish FALLBACK_TAKEN event: %v", err)
			}
		}
	}

	msg.Ack()
}
