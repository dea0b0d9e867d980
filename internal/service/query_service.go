package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"ai-answer-engine-be/internal/dto"
	"ai-answer-engine-be/internal/repository/contract"
	"ai-answer-engine-be/pkg/embedding"
	"ai-answer-engine-be/pkg/events"
	pktNats "ai-answer-engine-be/pkg/nats"
	"ai-answer-engine-be/pkg/pipeline/executor"
	"ai-answer-engine-be/pkg/pipeline/state"

	"golang.org/x/sync/semaphore"
)

// ErrQueueFull is returned when both the worker pool and the waiting queue
// are saturated. Controllers map it to 429.
var ErrQueueFull = errors.New("query queue is full")

const (
	followUpLimit     = 3
	followUpThreshold = 0.55
)

type IQueryService interface {
	Run(ctx context.Context, request *dto.QueryRequest) (*state.PipelineResult, error)
	RunStream(ctx context.Context, request *dto.QueryRequest, emit func(dto.StreamEvent) error) error
}

type queryService struct {
	exec              *executor.Executor
	historyRepo       contract.QueryHistoryRepository
	embeddingProvider embedding.EmbeddingProvider
	publisherService  IPublisherService
	eventPublisher    *pktNats.Publisher
	followUpTimeout   time.Duration

	// workSem bounds in-flight pipeline runs; queueSem additionally bounds
	// callers allowed to wait for a slot. TryAcquire on queueSem failing
	// means even the queue is full.
	workSem  *semaphore.Weighted
	queueSem *semaphore.Weighted
}

func NewQueryService(
	exec *executor.Executor,
	historyRepo contract.QueryHistoryRepository,
	embeddingProvider embedding.EmbeddingProvider,
	publisherService IPublisherService,
	eventPublisher *pktNats.Publisher,
	maxConcurrent int,
	maxQueue int,
	followUpTimeout time.Duration,
) IQueryService {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if maxQueue < 0 {
		maxQueue = 0
	}
	return &queryService{
		exec:              exec,
		historyRepo:       historyRepo,
		embeddingProvider: embeddingProvider,
		publisherService:  publisherService,
		eventPublisher:    eventPublisher,
		followUpTimeout:   followUpTimeout,
		workSem:           semaphore.NewWeighted(int64(maxConcurrent)),
		queueSem:          semaphore.NewWeighted(int64(maxConcurrent + maxQueue)),
	}
}

func (c *queryService) Run(ctx context.Context, request *dto.QueryRequest) (*state.PipelineResult, error) {
	qc := request.ToQueryContext()

	if err := c.admit(ctx, qc); err != nil {
		return nil, err
	}
	defer c.release()

	result, err := c.exec.Run(ctx, qc)
	if err != nil {
		return nil, err
	}

	result.FollowUpSuggestions = c.followUpSuggestions(ctx, qc)
	return result, nil
}

// RunStream executes the pipeline and replays the answer over emit as a
// token stream followed by citations, the full result and a done marker.
// Terminal failures surface as a single error event.
func (c *queryService) RunStream(ctx context.Context, request *dto.QueryRequest, emit func(dto.StreamEvent) error) error {
	result, err := c.Run(ctx, request)
	if err != nil {
		msg := "query failed"
		if errors.Is(err, ErrQueueFull) {
			msg = ErrQueueFull.Error()
		}
		_ = emit(dto.StreamEvent{Type: dto.StreamEventError, Error: msg})
		return err
	}

	for _, token := range tokenize(result.Summary) {
		if err := emit(dto.StreamEvent{Type: dto.StreamEventToken, Token: token}); err != nil {
			return err
		}
	}
	if err := emit(dto.StreamEvent{Type: dto.StreamEventCitations, Citations: result.Citations}); err != nil {
		return err
	}
	if err := emit(dto.StreamEvent{Type: dto.StreamEventResult, Result: result}); err != nil {
		return err
	}
	return emit(dto.StreamEvent{Type: dto.StreamEventDone})
}

// admit takes one slot or fails fast with ErrQueueFull. A caller that gets
// past the queue semaphore may still wait on workSem, but only up to the
// configured queue depth of callers can wait at once.
func (c *queryService) admit(ctx context.Context, qc state.QueryContext) error {
	if !c.queueSem.TryAcquire(1) {
		c.reportRejection(ctx, qc)
		return ErrQueueFull
	}
	if err := c.workSem.Acquire(ctx, 1); err != nil {
		c.queueSem.Release(1)
		return err
	}
	return nil
}

func (c *queryService) release() {
	c.workSem.Release(1)
	c.queueSem.Release(1)
}

func (c *queryService) reportRejection(ctx context.Context, qc state.QueryContext) {
	if c.publisherService != nil {
		payload := dto.PublishQueryRejectedMessage{
			SessionId:  qc.SessionID,
			Mode:       string(qc.Mode),
			RejectedAt: time.Now(),
		}
		if msgJson, err := json.Marshal(payload); err == nil {
			if err := c.publisherService.PublishTo(ctx, TopicQueryRejected, msgJson); err != nil {
				log.Printf("[WARN] Failed to publish rejection: %v", err)
			}
		}
	}

	if c.eventPublisher != nil {
		evt := events.NewQueryRejected(qc.SessionID, string(qc.Mode))
		if err := c.eventPublisher.Publish(ctx, evt); err != nil {
			log.Printf("[WARN] Failed to publish QUERY_REJECTED event: %v", err)
		}
	}
}

// followUpSuggestions mines past similar queries for next questions. It is
// strictly best effort under a short deadline; any failure returns nil.
func (c *queryService) followUpSuggestions(ctx context.Context, qc state.QueryContext) []string {
	if c.historyRepo == nil || c.embeddingProvider == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.followUpTimeout)
	defer cancel()

	res, err := c.embeddingProvider.Generate(ctx, qc.Message, embedding.TaskSemanticSimilarity)
	if err != nil || res == nil {
		return nil
	}

	scored, err := c.historyRepo.SearchSimilarWithScore(ctx, res.Embedding.Values, followUpLimit*3, followUpThreshold)
	if err != nil {
		return nil
	}

	seen := map[string]bool{normalizeQuestion(qc.Message): true}
	var suggestions []string
	for _, s := range scored {
		if s.Record == nil {
			continue
		}
		q := strings.TrimSpace(s.Record.Message)
		if q == "" || seen[normalizeQuestion(q)] {
			continue
		}
		seen[normalizeQuestion(q)] = true
		suggestions = append(suggestions, q)
		if len(suggestions) >= followUpLimit {
			break
		}
	}
	return suggestions
}

func normalizeQuestion(q string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(q), "?!. "))
}

// tokenize splits a summary into whitespace-preserving chunks so the client
// can render them progressively.
func tokenize(summary string) []string {
	words := strings.Fields(summary)
	tokens := make([]string, 0, len(words))
	for i, w := range words {
		if i < len(words)-1 {
			tokens = append(tokens, w+" ")
		} else {
			tokens = append(tokens, w)
		}
	}
	return tokens
}
