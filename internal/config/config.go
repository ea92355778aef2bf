package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	App     AppConfig
	Agent   AgentConfig
	Storage StorageConfig
	Engine  EngineConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	UploadDir          string
}

type AgentConfig struct {
	BaseURL       string
	TurnEndpoint  string
	TitleEndpoint string
	InitialPrompt string // auto-sent on startup when set; suppresses auto-resume
}

type StorageConfig struct {
	Backend   string // "file", "redis" or "memory"
	Dir       string
	Namespace string // storage key, one blob per namespace
}

type EngineConfig struct {
	SessionLimit   int
	DedupMinChars  int
	DedupProbeLen  int
	PreviewMaxLen  int
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
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			UploadDir:          getEnv("UPLOAD_DIR", "./uploads"),
		},
		Agent: AgentConfig{
			BaseURL:       getEnv("AGENT_BASE_URL", "http://localhost:8787"),
			TurnEndpoint:  getEnv("AGENT_TURN_ENDPOINT", "/api/agents/turn"),
			TitleEndpoint: getEnv("AGENT_TITLE_ENDPOINT", "/api/summarize-title"),
			InitialPrompt: getEnv("AGENT_INITIAL_PROMPT", ""),
		},
		Storage: StorageConfig{
			Backend:   getEnv("SESSION_STORAGE_BACKEND", "file"),
			Dir:       getEnv("SESSION_STORAGE_DIR", "data"),
			Namespace: getEnv("SESSION_STORAGE_NAMESPACE", "agent-sessions"),
		},
		Engine: EngineConfig{
			SessionLimit:  getEnvAsInt("SESSION_LIMIT", 20),
			DedupMinChars: getEnvAsInt("DEDUP_MIN_CHARS", 50),
			DedupProbeLen: getEnvAsInt("DEDUP_PROBE_LEN", 80),
			PreviewMaxLen: getEnvAsInt("PREVIEW_MAX_LEN", 50),
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
