package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Pipeline PipelineConfig
	Retry    RetryConfig
	Store    StoreConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	DigestTopic        string // watermill topic for completed runs
}

type DatabaseConfig struct {
	Connection string
}

type APIKeys struct {
	GoogleGemini string
	OpenAI       string
	Jina         string
}

type AIConfig struct {
	EmbeddingProvider string // "gemini", "ollama", "openai" or "jina"
	EmbeddingModel    string
	EmbeddingBaseURL  string
	OllamaBaseURL     string
	OllamaModel       string
	LLMProvider       string // "ollama" or "openai"
	LLMModel          string
	LLMBaseURL        string
}

type PipelineConfig struct {
	SimilarityThreshold    float64
	RelatedThreshold       float64
	MaxArticleChars        int
	MinSections            int
	MaxSections            int
	MaxConcepts            int
	QuestionCount          int
	PersonalizeConcurrency int
	RunTimeout             time.Duration
	DomainAliases          map[string]string
}

type RetryConfig struct {
	MaxTries           uint
	InitialInterval    time.Duration
	MaxInterval        time.Duration
	BreakerMinRequests uint32
	BreakerFailRatio   float64
	BreakerOpenTimeout time.Duration
}

type StoreConfig struct {
	Backend            string // "postgres" or "memory"
	EmbeddingDimension int
	LockBackend        string // "local" or "redis"
	LockTTL            time.Duration
	MaxStaleness       time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			DigestTopic:        getEnv("DIGEST_TOPIC_NAME", "DIGEST_COMPLETED"),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
			OpenAI:       getEnv("OPENAI_API_KEY", ""),
			Jina:         getEnv("JINA_API_KEY", ""),
		},
		Ai: AIConfig{
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
			EmbeddingModel:    getEnv("EMBEDDING_MODEL", ""),
			EmbeddingBaseURL:  getEnv("EMBEDDING_BASE_URL", ""),
			OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			OllamaModel:       getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			LLMProvider:       getEnv("LLM_PROVIDER", "ollama"),
			LLMModel:          getEnv("LLM_MODEL", "llama3"),
			LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
		},
		Pipeline: PipelineConfig{
			SimilarityThreshold:    getEnvAsFloat("SIMILARITY_THRESHOLD", 0.6),
			RelatedThreshold:       getEnvAsFloat("RELATED_THRESHOLD", 0.45),
			MaxArticleChars:        getEnvAsInt("MAX_ARTICLE_CHARS", 24000),
			MinSections:            getEnvAsInt("MIN_SECTIONS", 3),
			MaxSections:            getEnvAsInt("MAX_SECTIONS", 5),
			MaxConcepts:            getEnvAsInt("MAX_CONCEPTS", 5),
			QuestionCount:          getEnvAsInt("QUESTION_COUNT", 5),
			PersonalizeConcurrency: getEnvAsInt("PERSONALIZE_CONCURRENCY", 3),
			RunTimeout:             getEnvAsDuration("RUN_TIMEOUT", 3*time.Minute),
			DomainAliases:          parseAliases(getEnv("DOMAIN_ALIASES", "")),
		},
		Retry: RetryConfig{
			MaxTries:           uint(getEnvAsInt("PROVIDER_MAX_TRIES", 4)),
			InitialInterval:    getEnvAsDuration("PROVIDER_RETRY_INITIAL", 500*time.Millisecond),
			MaxInterval:        getEnvAsDuration("PROVIDER_RETRY_MAX", 8*time.Second),
			BreakerMinRequests: uint32(getEnvAsInt("BREAKER_MIN_REQUESTS", 5)),
			BreakerFailRatio:   getEnvAsFloat("BREAKER_FAILURE_RATIO", 0.8),
			BreakerOpenTimeout: getEnvAsDuration("BREAKER_OPEN_TIMEOUT", 60*time.Second),
		},
		Store: StoreConfig{
			Backend:            getEnv("STORE_BACKEND", "postgres"),
			EmbeddingDimension: getEnvAsInt("EMBEDDING_DIMENSION", 768),
			LockBackend:        getEnv("LOCK_BACKEND", "local"),
			LockTTL:            getEnvAsDuration("LOCK_TTL", 10*time.Minute),
			MaxStaleness:       getEnvAsDuration("STORE_MAX_STALENESS", 5*time.Second),
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

// parseAliases reads "ml:machine learning,db:databases".
func parseAliases(raw string) map[string]string {
	aliases := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		from, to, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		from = strings.TrimSpace(from)
		to = strings.TrimSpace(to)
		if from == "" || to == "" {
			continue
		}
		aliases[from] = to
	}
	return aliases
}
