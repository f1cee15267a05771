package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Harshitk-cp/protomind/internal/service"
	"github.com/Harshitk-cp/protomind/internal/store"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Load reads the .env file specified by PROTOMIND_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("PROTOMIND_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// APIKey returns the bearer token required on /v1 routes. Empty disables auth.
func APIKey() string {
	return os.Getenv("API_KEY")
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	return floatEnv("RATE_LIMIT_RPS", 100)
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// NewLogger builds a production JSON logger at LOG_LEVEL.
func NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(LogLevel())
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// StoreBackend returns the storage engine: memory, postgres, badger or neo4j.
// Defaults to "memory" if not set.
func StoreBackend() string {
	b := os.Getenv("STORE_BACKEND")
	if b == "" {
		return store.BackendMemory
	}
	return b
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func BadgerDir() string {
	d := os.Getenv("BADGER_DIR")
	if d == "" {
		return "data/badger"
	}
	return d
}

func Neo4jURI() string {
	u := os.Getenv("NEO4J_URI")
	if u == "" {
		return "bolt://localhost:7687"
	}
	return u
}

func Neo4jUser() string {
	u := os.Getenv("NEO4J_USER")
	if u == "" {
		return "neo4j"
	}
	return u
}

func Neo4jPassword() string {
	return os.Getenv("NEO4J_PASSWORD")
}

func Neo4jDatabase() string {
	return os.Getenv("NEO4J_DATABASE")
}

// StoreOptions assembles the backend options from the environment.
func StoreOptions() store.Options {
	return store.Options{
		Backend:       StoreBackend(),
		DatabaseURL:   DatabaseURL(),
		BadgerDir:     BadgerDir(),
		Neo4jURI:      Neo4jURI(),
		Neo4jUser:     Neo4jUser(),
		Neo4jPassword: Neo4jPassword(),
		Neo4jDatabase: Neo4jDatabase(),
	}
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// EmbeddingProvider returns the configured embedding provider.
// Defaults to "mock" if not set.
// Valid values: openai, mock
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "mock"
	}
	return p
}

// EmbeddingAPIKey returns the API key for the configured embedding provider.
func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "mock":
		return ""
	default:
		return OpenAIAPIKey()
	}
}

// EmbeddingDimensions returns the requested vector size, 0 for the
// provider default.
func EmbeddingDimensions() int {
	d, err := strconv.Atoi(os.Getenv("EMBEDDING_DIMENSIONS"))
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// ScoringPolicy returns the WTA weights and recency half-life.
func ScoringPolicy() service.ScoringPolicy {
	p := service.DefaultScoringPolicy()
	p.WeightTruth = floatEnv("WTA_WEIGHT_TRUTH", p.WeightTruth)
	p.WeightVote = floatEnv("WTA_WEIGHT_VOTE", p.WeightVote)
	p.WeightSource = floatEnv("WTA_WEIGHT_SOURCE", p.WeightSource)
	p.WeightRecency = floatEnv("WTA_WEIGHT_RECENCY", p.WeightRecency)
	p.WeightStrength = floatEnv("WTA_WEIGHT_STRENGTH", p.WeightStrength)
	p.HalfLife = durationEnv("WTA_HALF_LIFE", p.HalfLife)
	return p
}

// HebbianConfig returns the reinforcement and decay parameters.
func HebbianConfig() service.HebbianConfig {
	c := service.DefaultHebbianConfig()
	c.ReinforceDelta = floatEnv("HEBBIAN_REINFORCE_DELTA", c.ReinforceDelta)
	c.MaxWeight = floatEnv("HEBBIAN_MAX_WEIGHT", c.MaxWeight)
	c.DecayRate = floatEnv("HEBBIAN_DECAY_RATE", c.DecayRate)
	c.Epsilon = floatEnv("HEBBIAN_EPSILON", c.Epsilon)
	return c
}

// DecayInterval returns how often serve runs a decay pass. Zero disables it.
func DecayInterval() time.Duration {
	return durationEnv("DECAY_INTERVAL", 0)
}

// SearchDefaultTopK returns the result count used when a search omits top_k.
func SearchDefaultTopK() int {
	k, err := strconv.Atoi(os.Getenv("SEARCH_DEFAULT_TOP_K"))
	if err != nil || k <= 0 {
		return 10
	}
	return k
}

// ORMSchemaFile returns a YAML file of ORM prototypes registered at startup.
func ORMSchemaFile() string {
	return os.Getenv("ORM_SCHEMA_FILE")
}

func floatEnv(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// durationEnv accepts Go durations ("168h") or plain seconds.
func durationEnv(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}
