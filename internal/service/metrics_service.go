package service

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"ai-answer-engine-be/internal/dto"
	"ai-answer-engine-be/internal/repository/contract"
	"ai-answer-engine-be/pkg/pipeline/state"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IMetricsService interface {
	Consume(ctx context.Context) error
	Snapshot(ctx context.Context) (*dto.PipelineMetricsResponse, error)
}

type stageAggregate struct {
	count int64
	sumMs int64
	maxMs int64
}

// metricsService folds bus events into in-memory counters. Counters reset on
// restart; durable analytics live in the query history table.
type metricsService struct {
	pubSub      *gochannel.GoChannel
	historyRepo contract.QueryHistoryRepository

	mu         sync.Mutex
	since      time.Time
	total      int64
	cacheHits  int64
	fallbacks  int64
	rejections int64
	byVertical map[string]int64
	byMode     map[string]int64
	stages     map[string]*stageAggregate
}

func NewMetricsService(pubSub *gochannel.GoChannel, historyRepo contract.QueryHistoryRepository) IMetricsService {
	return &metricsService{
		pubSub:      pubSub,
		historyRepo: historyRepo,
		since:       time.Now(),
		byVertical:  make(map[string]int64),
		byMode:      make(map[string]int64),
		stages:      make(map[string]*stageAggregate),
	}
}

func (ms *metricsService) Consume(ctx context.Context) error {
	stageMsgs, err := ms.pubSub.Subscribe(ctx, TopicStageCompleted)
	if err != nil {
		return err
	}
	completedMsgs, err := ms.pubSub.Subscribe(ctx, TopicQueryCompleted)
	if err != nil {
		return err
	}
	rejectedMsgs, err := ms.pubSub.Subscribe(ctx, TopicQueryRejected)
	if err != nil {
		return err
	}

	go func() {
		for msg := range stageMsgs {
			ms.processStage(msg)
		}
	}()
	go func() {
		for msg := range completedMsgs {
			ms.processCompleted(msg)
		}
	}()
	go func() {
		for msg := range rejectedMsgs {
			ms.processRejected(msg)
		}
	}()

	return nil
}

func (ms *metricsService) processStage(msg *message.Message) {
	var payload dto.PublishStageCompletedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[ERROR] Failed to unmarshal stage message: %v", err)
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	ms.mu.Lock()
	agg, ok := ms.stages[payload.Stage]
	if !ok {
		agg = &stageAggregate{}
		ms.stages[payload.Stage] = agg
	}
	agg.count++
	agg.sumMs += payload.LatencyMs
	if payload.LatencyMs > agg.maxMs {
		agg.maxMs = payload.LatencyMs
	}
	ms.mu.Unlock()

	msg.Ack()
}

func (ms *metricsService) processCompleted(msg *message.Message) {
	var payload dto.PublishQueryCompletedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[ERROR] Failed to unmarshal completion message: %v", err)
		msg.Ack()
		return
	}

	ms.mu.Lock()
	ms.total++
	if payload.CacheHit {
		ms.cacheHits++
	}
	if payload.Quality == string(state.QualityFallbackOther) {
		ms.fallbacks++
	}
	ms.byVertical[payload.Vertical]++
	ms.byMode[payload.Mode]++
	ms.mu.Unlock()

	msg.Ack()
}

func (ms *metricsService) processRejected(msg *message.Message) {
	var payload dto.PublishQueryRejectedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[ERROR] Failed to unmarshal rejection message: %v", err)
		msg.Ack()
		return
	}

	ms.mu.Lock()
	ms.rejections++
	ms.mu.Unlock()

	msg.Ack()
}

func (ms *metricsService) Snapshot(ctx context.Context) (*dto.PipelineMetricsResponse, error) {
	ms.mu.Lock()
	resp := &dto.PipelineMetricsResponse{
		TotalQueries:   ms.total,
		CacheHits:      ms.cacheHits,
		Fallbacks:      ms.fallbacks,
		Rejections:     ms.rejections,
		ByVertical:     make(map[string]int64, len(ms.byVertical)),
		ByMode:         make(map[string]int64, len(ms.byMode)),
		Stages:         make([]dto.StageMetrics, 0, len(ms.stages)),
		CollectedSince: ms.since,
	}
	for v, n := range ms.byVertical {
		resp.ByVertical[v] = n
	}
	for m, n := range ms.byMode {
		resp.ByMode[m] = n
	}
	for name, agg := range ms.stages {
		sm := dto.StageMetrics{
			Stage:        name,
			Count:        agg.count,
			MaxLatencyMs: agg.maxMs,
		}
		if agg.count > 0 {
			sm.AvgLatencyMs = float64(agg.sumMs) / float64(agg.count)
		}
		resp.Stages = append(resp.Stages, sm)
	}
	ms.mu.Unlock()

	sort.Slice(resp.Stages, func(i, j int) bool { return resp.Stages[i].Stage < resp.Stages[j].Stage })

	if ms.historyRepo != nil {
		count, err := ms.historyRepo.CountSince(ctx, time.Now().Add(-24*time.Hour))
		if err != nil {
			log.Printf("[WARN] Failed to count recent queries: %v", err)
		} else {
			resp.QueriesLastDay = count
		}
	}

	return resp, nil
}
