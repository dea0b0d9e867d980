package bootstrap

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"ai-answer-engine-be/internal/config"
	"ai-answer-engine-be/internal/controller"
	"ai-answer-engine-be/internal/pkg/logger"
	"ai-answer-engine-be/internal/repository/implementation"
	"ai-answer-engine-be/internal/repository/memory"
	"ai-answer-engine-be/internal/service"
	"ai-answer-engine-be/pkg/embedding"
	"ai-answer-engine-be/pkg/embedding/jina"
	"ai-answer-engine-be/pkg/llm/factory"
	"ai-answer-engine-be/pkg/pipeline/aggregate"
	"ai-answer-engine-be/pkg/pipeline/executor"
	"ai-answer-engine-be/pkg/pipeline/route"
	"ai-answer-engine-be/pkg/pipeline/state"
	"ai-answer-engine-be/pkg/rerank"
	"ai-answer-engine-be/pkg/serpapi"
	"ai-answer-engine-be/pkg/vertical"

	pktNats "ai-answer-engine-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	QueryController controller.IQueryController
	AdminController controller.IAdminController

	// Background Services (Exposed for main.go to run)
	MetricsService  service.IMetricsService
	RecorderService service.IRecorderService
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")
	pipelineLogger := initPipelineLogger(cfg.App.PipelineLogPath)

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. AI Providers
	// Initialize Embedding Provider based on Config
	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embeddingProvider = embedding.NewOllamaProvider(
			cfg.Ai.OllamaBaseURL,
			cfg.Ai.OllamaEmbedModel,
		)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.OllamaEmbedModel)
	} else if cfg.Ai.EmbeddingProvider == "jina" {
		embeddingProvider = jina.NewJinaProvider(cfg.Keys.Jina)
		log.Printf("[INFO] Using Embedding Provider: JINA AI")
	} else {
		embeddingProvider = embedding.NewGeminiProvider(cfg.Keys.GoogleGemini)
		log.Printf("[INFO] Using Embedding Provider: GEMINI")
	}

	// Initialize LLM Providers based on Config. The pipeline uses two: a main
	// model for synthesis and a small one for rewrite/filter/critique work.
	providerKeys := factory.Keys{
		Gemini:      cfg.Keys.GoogleGemini,
		HuggingFace: cfg.Keys.HuggingFace,
	}
	mainLLM, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.MainModel, cfg.Ai.OllamaBaseURL, providerKeys)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize main LLM Provider: %v", err)
	}
	smallLLM, err := factory.NewLLMProvider(cfg.Ai.LLMProvider, cfg.Ai.SmallModel, cfg.Ai.OllamaBaseURL, providerKeys)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize small LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (main: %s, small: %s)", cfg.Ai.LLMProvider, cfg.Ai.MainModel, cfg.Ai.SmallModel)

	// 4. Infrastructure
	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	redisUp := true
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
		redisUp = false
	}

	// 5. Retrieval Backends
	serpClient := serpapi.NewClient(cfg.Keys.SerpAPI)
	webRetriever := vertical.NewWebRetriever(serpClient, pipelineLogger)
	retrievers := map[state.Vertical]route.Retriever{
		state.VerticalProduct: vertical.NewProductRetriever(serpClient, pipelineLogger),
		state.VerticalHotel:   vertical.NewHotelRetriever(serpClient, pipelineLogger),
		state.VerticalFlight:  vertical.NewFlightRetriever(serpClient, pipelineLogger),
		state.VerticalMovie:   vertical.NewMovieRetriever(serpClient, pipelineLogger),
		state.VerticalOther:   webRetriever,
	}

	reranker := rerank.NewEmbeddingReranker(embeddingProvider, rerank.DefaultConfig(), pipelineLogger)

	// 6. Stores
	var sessionStore executor.SessionStore
	var resultCache executor.Cache
	if cfg.Session.Backend == "redis" && redisUp {
		sessionStore = implementation.NewRedisSessionStore(rdb, cfg.Session.TTL, cfg.Session.MaxTurns)
		resultCache = implementation.NewRedisPipelineCache(rdb, pipelineLogger)
		log.Printf("[INFO] Using Session/Cache Backend: REDIS")
	} else {
		sessionStore = memory.NewSessionStore(cfg.Session.TTL, cfg.Session.SweepInterval, cfg.Session.MaxTurns)
		resultCache = memory.NewPipelineCache(cfg.Pipeline.ResultCacheTTL, cfg.Session.SweepInterval)
		log.Printf("[INFO] Using Session/Cache Backend: MEMORY")
	}
	planCache := memory.NewPlanCache(cfg.Pipeline.PlanCacheTTL, cfg.Session.SweepInterval)

	// 7. Persistence
	historyRepo := implementation.NewQueryHistoryRepository(db)

	// 8. Pipeline Assembly
	publisherService := service.NewPublisherService(service.TopicQueryCompleted, pubSub)
	eventSink := service.NewBusEventSink(publisherService)

	deps := executor.Deps{
		MainLLM:     mainLLM,
		SmallLLM:    smallLLM,
		Retrievers:  retrievers,
		WebOverview: webRetriever,
		Embedder:    embeddingProvider,
		Reranker:    reranker,
		Cache:       resultCache,
		PlanCache:   planCache,
		Sessions:    sessionStore,
		Events:      eventSink,
	}

	exec := executor.New(deps, pipelineConfig(cfg), pipelineLogger)

	// 9. Services
	queryService := service.NewQueryService(
		exec,
		historyRepo,
		embeddingProvider,
		publisherService,
		natsPub,
		cfg.Pipeline.MaxConcurrent,
		cfg.Pipeline.MaxQueue,
		cfg.Pipeline.FollowUpTimeout,
	)
	metricsService := service.NewMetricsService(pubSub, historyRepo)
	recorderService := service.NewRecorderService(pubSub, historyRepo, embeddingProvider, natsPub)
	recommendationService := service.NewRecommendationService(historyRepo, retrievers[state.VerticalProduct])

	// 10. Controllers
	return &Container{
		QueryController: controller.NewQueryController(queryService, recommendationService),
		AdminController: controller.NewAdminController(metricsService, sysLogger),

		MetricsService:  metricsService,
		RecorderService: recorderService,
	}
}

// pipelineConfig projects the flat env-backed tunables onto the per-stage
// configs the executor assembles from.
func pipelineConfig(cfg *config.Config) executor.Config {
	ec := executor.DefaultConfig()

	ec.Normalizer.SmallLLMTimeout = cfg.Pipeline.SmallLLMTimeout
	ec.Decomposer.SmallLLMTimeout = cfg.Pipeline.SmallLLMTimeout
	ec.Decomposer.MaxSubQueries = cfg.Pipeline.MaxSubQueries

	ec.Router.SecondaryMargin = cfg.Pipeline.SecondaryMargin
	ec.Router.SecondaryFloor = cfg.Pipeline.SecondaryFloor
	ec.Router.MaxVerticals = cfg.Pipeline.MaxVerticals
	ec.Router.IntentPinCutoff = cfg.Pipeline.IntentPinCutoff
	ec.Router.RetrieveTimeout = cfg.Pipeline.RetrieveTimeout
	retry := route.DefaultRetryPolicy()
	retry.MaxExtraAttempts = cfg.Pipeline.RetryExtraCalls
	ec.Router.Retry = retry

	ec.Aggregator.OverviewTimeout = cfg.Pipeline.OverviewTimeout
	ec.Aggregator.Thresholds = aggregate.Thresholds{
		WeakHitRate:       cfg.Pipeline.WeakHitRate,
		StrongScoreFloor:  cfg.Pipeline.StrongScoreFloor,
		SmallSetThreshold: cfg.Pipeline.SmallSetThreshold,
	}

	ec.Synthesizer.MainLLMTimeout = cfg.Pipeline.MainLLMTimeout

	ec.Deep.SmallLLMTimeout = cfg.Pipeline.SmallLLMTimeout
	ec.Deep.ReplanConfidence = cfg.Pipeline.ReplanConfidence
	ec.Deep.RetrieveTimeout = cfg.Pipeline.RetrieveTimeout

	ec.ResultCacheTTL = cfg.Pipeline.ResultCacheTTL
	ec.SessionMaxTurns = cfg.Session.MaxTurns

	return ec
}

// initPipelineLogger opens the dedicated per-stage pipeline log. Falls back
// to stdout so a bad path never silences the pipeline trace.
func initPipelineLogger(logPath string) *log.Logger {
	if logPath == "" {
		logPath = filepath.Join(".", "logs", "pipeline.log")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		log.Printf("Failed to create logs directory: %v", err)
	}
	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return log.New(os.Stdout, "[PIPELINE] ", log.LstdFlags)
	}
	return log.New(file, "", log.LstdFlags)
}
