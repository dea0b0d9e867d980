package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Pipeline PipelineConfig
	Session  SessionConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	PipelineLogPath    string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JWTSecret          string
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	GoogleGemini string
	SerpAPI      string
	Jina         string
	HuggingFace  string
}

type AIConfig struct {
	LLMProvider       string // "gemini" or "ollama"
	MainModel         string // full answers / synthesis
	SmallModel        string // cheap structured tasks (rewrite, filters, critique)
	EmbeddingProvider string // "gemini" or "ollama"
	OllamaBaseURL     string
	OllamaEmbedModel  string
}

// PipelineConfig carries every tunable the orchestration stages read.
// The quality/critique thresholds default to the empirically chosen values;
// they are configuration, not law.
type PipelineConfig struct {
	// Routing
	SecondaryMargin float64 // secondary admitted if score >= primary - margin
	SecondaryFloor  float64 // ...and score >= floor
	MaxVerticals    int
	IntentPinCutoff float64 // intent confidence that pins a transactional vertical
	MaxSubQueries   int
	RetryExtraCalls int // uniform bounded retry: extra attempts per provider call

	// Quality classification
	WeakHitRate       float64 // itemCount/maxItems below this is weak
	StrongScoreFloor  float64 // avg score that overrides weakness...
	SmallSetThreshold int     // ...when itemCount is at most this

	// Deep mode
	ReplanConfidence float64

	// Timeouts
	SmallLLMTimeout time.Duration
	MainLLMTimeout  time.Duration
	RetrieveTimeout time.Duration
	OverviewTimeout time.Duration
	StoreTimeout    time.Duration
	FollowUpTimeout time.Duration

	// Caching
	ResultCacheTTL time.Duration
	PlanCacheTTL   time.Duration

	// Admission gate
	MaxConcurrent int
	MaxQueue      int
}

type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	Backend       string // "memory" or "redis"
	MaxTurns      int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			PipelineLogPath:    getEnv("PIPELINE_LOG_PATH", "logs/pipeline.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			SerpAPI:      getEnv("SERPAPI_API_KEY", ""),
			Jina:         getEnv("JINA_API_KEY", ""),
			HuggingFace:  getEnv("HUGGINGFACE_API_KEY", ""),
		},
		Ai: AIConfig{
			LLMProvider:       getEnv("LLM_PROVIDER", "gemini"),
			MainModel:         getEnv("LLM_MAIN_MODEL", "gemini-1.5-flash"),
			SmallModel:        getEnv("LLM_SMALL_MODEL", "gemini-1.5-flash-8b"),
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "gemini"),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaEmbedModel:  getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
		},
		Pipeline: PipelineConfig{
			SecondaryMargin:   getEnvAsFloat("ROUTE_SECONDARY_MARGIN", 0.15),
			SecondaryFloor:    getEnvAsFloat("ROUTE_SECONDARY_FLOOR", 0.5),
			MaxVerticals:      getEnvAsInt("ROUTE_MAX_VERTICALS", 5),
			IntentPinCutoff:   getEnvAsFloat("ROUTE_INTENT_PIN_CUTOFF", 0.75),
			MaxSubQueries:     getEnvAsInt("DECOMPOSE_MAX_SUBQUERIES", 5),
			RetryExtraCalls:   getEnvAsInt("RETRIEVE_RETRY_EXTRA", 1),
			WeakHitRate:       getEnvAsFloat("QUALITY_WEAK_HIT_RATE", 0.2),
			StrongScoreFloor:  getEnvAsFloat("QUALITY_STRONG_SCORE", 0.7),
			SmallSetThreshold: getEnvAsInt("QUALITY_SMALL_SET", 3),
			ReplanConfidence:  getEnvAsFloat("DEEP_REPLAN_CONFIDENCE", 0.6),
			SmallLLMTimeout:   getEnvAsDuration("TIMEOUT_SMALL_LLM", 10*time.Second),
			MainLLMTimeout:    getEnvAsDuration("TIMEOUT_MAIN_LLM", 30*time.Second),
			RetrieveTimeout:   getEnvAsDuration("TIMEOUT_RETRIEVE", 12*time.Second),
			OverviewTimeout:   getEnvAsDuration("TIMEOUT_OVERVIEW", 12*time.Second),
			StoreTimeout:      getEnvAsDuration("TIMEOUT_STORE", 2*time.Second),
			FollowUpTimeout:   getEnvAsDuration("TIMEOUT_FOLLOWUP", 3*time.Second),
			ResultCacheTTL:    getEnvAsDuration("RESULT_CACHE_TTL", 15*time.Minute),
			PlanCacheTTL:      getEnvAsDuration("PLAN_CACHE_TTL", 30*time.Minute),
			MaxConcurrent:     getEnvAsInt("PIPELINE_MAX_CONCURRENT", 8),
			MaxQueue:          getEnvAsInt("PIPELINE_MAX_QUEUE", 32),
		},
		Session: SessionConfig{
			TTL:           getEnvAsDuration("SESSION_TTL", 1*time.Hour),
			SweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", 10*time.Minute),
			Backend:       getEnv("SESSION_BACKEND", "memory"),
			MaxTurns:      getEnvAsInt("SESSION_MAX_TURNS", 20),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
