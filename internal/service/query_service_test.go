package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ai-answer-engine-be/internal/dto"
	"ai-answer-engine-be/internal/entity"
	"ai-answer-engine-be/internal/repository/contract"
	"ai-answer-engine-be/pkg/embedding"
	"ai-answer-engine-be/pkg/pipeline/state"
)

type stubHistoryRepo struct {
	scored []*contract.ScoredQueryRecord
	err    error
}

func (s *stubHistoryRepo) Create(context.Context, *entity.QueryRecord) error { return nil }

func (s *stubHistoryRepo) FindRecentBySession(context.Context, string, int) ([]*entity.QueryRecord, error) {
	return nil, nil
}

func (s *stubHistoryRepo) FindRecent(context.Context, int) ([]*entity.QueryRecord, error) {
	return nil, nil
}

func (s *stubHistoryRepo) CountSince(context.Context, time.Time) (int64, error) { return 0, nil }

func (s *stubHistoryRepo) SearchSimilarWithScore(context.Context, []float32, int, float64) ([]*contract.ScoredQueryRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.scored, nil
}

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Generate(context.Context, string, string) (*embedding.EmbeddingResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &embedding.EmbeddingResponse{
		Embedding: embedding.EmbeddingResponseEmbedding{Values: []float32{0.1, 0.2}},
	}, nil
}

func scoredRecord(message string) *contract.ScoredQueryRecord {
	return &contract.ScoredQueryRecord{Record: &entity.QueryRecord{Message: message}, Similarity: 0.8}
}

func saturatedService(t *testing.T) *queryService {
	t.Helper()
	svc := NewQueryService(nil, nil, nil, nil, nil, 1, 0, time.Second).(*queryService)
	if err := svc.admit(context.Background(), state.QueryContext{}); err != nil {
		t.Fatalf("admit() error = %v", err)
	}
	t.Cleanup(svc.release)
	return svc
}

func TestAdmitRejectsWhenQueueFull(t *testing.T) {
	svc := NewQueryService(nil, nil, nil, nil, nil, 1, 0, time.Second).(*queryService)
	ctx := context.Background()

	if err := svc.admit(ctx, state.QueryContext{}); err != nil {
		t.Fatalf("first admit() error = %v", err)
	}
	if err := svc.admit(ctx, state.QueryContext{}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second admit() error = %v, want ErrQueueFull", err)
	}

	svc.release()
	if err := svc.admit(ctx, state.QueryContext{}); err != nil {
		t.Errorf("admit() after release error = %v", err)
	}
}

func TestAdmitQueuesUpToDepth(t *testing.T) {
	svc := NewQueryService(nil, nil, nil, nil, nil, 1, 1, time.Second).(*queryService)
	ctx := context.Background()

	if err := svc.admit(ctx, state.QueryContext{}); err != nil {
		t.Fatalf("admit() error = %v", err)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- svc.admit(ctx, state.QueryContext{}) }()

	// The queued caller holds the last queue slot once TryAcquire stops
	// succeeding; queueSem never has blocked waiters, so polling is safe.
	deadline := time.Now().Add(2 * time.Second)
	for svc.queueSem.TryAcquire(1) {
		svc.queueSem.Release(1)
		if time.Now().After(deadline) {
			t.Fatal("queued caller never claimed its slot")
		}
		time.Sleep(time.Millisecond)
	}

	if err := svc.admit(ctx, state.QueryContext{}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("admit() beyond queue depth error = %v, want ErrQueueFull", err)
	}

	svc.release()
	select {
	case err := <-waitErr:
		if err != nil {
			t.Fatalf("queued admit() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued caller still blocked after release")
	}
	svc.release()
}

func TestAdmitCancelledWhileWaiting(t *testing.T) {
	svc := NewQueryService(nil, nil, nil, nil, nil, 1, 1, time.Second).(*queryService)

	if err := svc.admit(context.Background(), state.QueryContext{}); err != nil {
		t.Fatalf("admit() error = %v", err)
	}
	defer svc.release()

	ctx, cancel := context.WithCancel(context.Background())
	waitErr := make(chan error, 1)
	go func() { waitErr <- svc.admit(ctx, state.QueryContext{}) }()

	deadline := time.Now().Add(2 * time.Second)
	for svc.queueSem.TryAcquire(1) {
		svc.queueSem.Release(1)
		if time.Now().After(deadline) {
			t.Fatal("queued caller never claimed its slot")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-waitErr:
		if err == nil {
			t.Fatal("queued admit() error = nil, want context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller still blocked")
	}

	// The abandoned queue slot is returned; a new caller gets through.
	if !svc.queueSem.TryAcquire(1) {
		t.Error("queue slot not released after cancelled wait")
	} else {
		svc.queueSem.Release(1)
	}
}

func TestRunSurfacesQueueFull(t *testing.T) {
	svc := saturatedService(t)

	_, err := svc.Run(context.Background(), &dto.QueryRequest{Message: "hotels in boston"})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Run() error = %v, want ErrQueueFull", err)
	}
}

func TestRunStreamEmitsErrorEvent(t *testing.T) {
	svc := saturatedService(t)

	var events []dto.StreamEvent
	emit := func(e dto.StreamEvent) error {
		events = append(events, e)
		return nil
	}

	err := svc.RunStream(context.Background(), &dto.QueryRequest{Message: "hotels in boston"}, emit)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("RunStream() error = %v, want ErrQueueFull", err)
	}
	if len(events) != 1 {
		t.Fatalf("emitted %d events, want 1", len(events))
	}
	if events[0].Type != dto.StreamEventError {
		t.Errorf("event type = %s, want %s", events[0].Type, dto.StreamEventError)
	}
	if events[0].Error != ErrQueueFull.Error() {
		t.Errorf("event error = %q, want %q", events[0].Error, ErrQueueFull.Error())
	}
}

func TestFollowUpSuggestions(t *testing.T) {
	repo := &stubHistoryRepo{scored: []*contract.ScoredQueryRecord{
		scoredRecord("hotels in boston"),
		{Record: nil, Similarity: 0.9},
		scoredRecord("   "),
		scoredRecord("cheap hotels in boston"),
		scoredRecord("Cheap hotels in Boston?"),
		scoredRecord("pet friendly hotels boston"),
		scoredRecord("boston hotel deals"),
		scoredRecord("never reached"),
	}}
	svc := &queryService{
		historyRepo:       repo,
		embeddingProvider: &stubEmbedder{},
		followUpTimeout:   time.Second,
	}

	got := svc.followUpSuggestions(context.Background(), state.QueryContext{Message: "Hotels in Boston?"})
	want := []string{"cheap hotels in boston", "pet friendly hotels boston", "boston hotel deals"}
	if len(got) != len(want) {
		t.Fatalf("suggestions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("suggestion %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFollowUpSuggestionsDegradeToNil(t *testing.T) {
	tests := []struct {
		name     string
		repo     contract.QueryHistoryRepository
		embedder embedding.EmbeddingProvider
	}{
		{name: "no history repo", repo: nil, embedder: &stubEmbedder{}},
		{name: "no embedder", repo: &stubHistoryRepo{}, embedder: nil},
		{name: "embedding fails", repo: &stubHistoryRepo{}, embedder: &stubEmbedder{err: errors.New("down")}},
		{name: "search fails", repo: &stubHistoryRepo{err: errors.New("db down")}, embedder: &stubEmbedder{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &queryService{
				historyRepo:       tt.repo,
				embeddingProvider: tt.embedder,
				followUpTimeout:   time.Second,
			}
			got := svc.followUpSuggestions(context.Background(), state.QueryContext{Message: "anything"})
			if got != nil {
				t.Errorf("followUpSuggestions() = %v, want nil", got)
			}
		})
	}
}

func TestNormalizeQuestion(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "strips question mark", input: "Hotels in Boston?", want: "hotels in boston"},
		{name: "strips mixed trailers", input: "  what now?!  ", want: "what now"},
		{name: "plain text untouched", input: "plain", want: "plain"},
		{name: "trailing period", input: "Ends with period.", want: "ends with period"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeQuestion(tt.input); got != tt.want {
				t.Errorf("normalizeQuestion(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name    string
		summary string
		want    []string
	}{
		{name: "two words", summary: "two words", want: []string{"two ", "words"}},
		{name: "single word", summary: "one", want: []string{"one"}},
		{name: "empty", summary: "", want: []string{}},
		{name: "collapses whitespace", summary: "  spaced   out  ", want: []string{"spaced ", "out"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenize(tt.summary)
			if len(got) != len(tt.want) {
				t.Fatalf("tokenize(%q) = %v, want %v", tt.summary, got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("token %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
