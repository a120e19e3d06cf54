package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// Database
	DBDriver    string // "postgres" or "sqlite"
	DatabaseURL string

	// Agent mailbox
	MailTransport  string // "gmail" or "imap"
	AgentEmail     string
	AgentName      string
	WelcomeSubject string

	// Gmail API
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRefreshToken string

	// Pub/Sub
	GoogleProjectID          string
	GooglePubSubTopic        string
	GooglePubSubSubscription string
	GoogleCredentials        string
	ListenerWorkers          int
	HistoryLookback          uint64
	WatchRenewInterval       time.Duration

	// IMAP / SMTP
	IMAPAddr     string
	SMTPAddr     string
	SMTPSecurity string // "starttls", "tls" or "none"
	MailUsername string
	MailPassword string

	// Generation backend
	AIProvider       string
	GeminiApiKey     string
	GeminiModel      string
	OllamaBaseURL    string
	OllamaModel      string
	OpenAIAPIKey     string
	OpenAIEndpoint   string
	OpenAIModel      string
	SystemPromptFile string
	ContextFiles     []string

	// Completion policy
	CompletionPolicy string // "exchanges", "intent" or "either"
	MaxExchanges     int
	TerminalPhrases  []string

	// Retries and timeouts
	RetryAttempts       int
	RetryInitial        time.Duration
	RetryMax            time.Duration
	TransportTimeout    time.Duration
	GenerationTimeout   time.Duration
	StoreTimeout        time.Duration
	ProcessingTimeout   time.Duration
	DeliveryLease       time.Duration
	ThreadConcurrency   int
	ReconcileInterval   time.Duration
	ReconcileStaleAfter time.Duration

	// Operator alerts and search
	FirebaseCredentials string
	FCMOperatorTokens   []string
	ChromaAPIKey        string
	ChromaTenant        string
	ChromaDatabase      string

	// Operator API
	JWTSecret       string
	JWTAccessExpiry time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "8080"),

		DBDriver:    getEnv("DB_DRIVER", "postgres"),
		DatabaseURL: getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=raid_agent port=5432 sslmode=disable"),

		MailTransport:  getEnv("MAIL_TRANSPORT", "gmail"),
		AgentEmail:     strings.ToLower(getEnv("AGENT_EMAIL", "")),
		AgentName:      getEnv("AGENT_NAME", "Rafael"),
		WelcomeSubject: getEnv("WELCOME_SUBJECT", "Welcome to RAID!"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRefreshToken: getEnv("GOOGLE_REFRESH_TOKEN", ""),

		GoogleProjectID:          getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:        getEnv("GOOGLE_PUBSUB_TOPIC", "gmail-updates"),
		GooglePubSubSubscription: getEnv("GOOGLE_PUBSUB_SUBSCRIPTION", ""),
		GoogleCredentials:        getEnv("GOOGLE_CREDENTIALS", ""),
		ListenerWorkers:          getEnvInt("LISTENER_WORKERS", 10),
		HistoryLookback:          uint64(getEnvInt("HISTORY_LOOKBACK", 100)),
		WatchRenewInterval:       getEnvDuration("WATCH_RENEW_INTERVAL", 24*time.Hour),

		IMAPAddr:     getEnv("IMAP_ADDR", ""),
		SMTPAddr:     getEnv("SMTP_ADDR", ""),
		SMTPSecurity: getEnv("SMTP_SECURITY", "starttls"),
		MailUsername: getEnv("MAIL_USERNAME", ""),
		MailPassword: getEnv("MAIL_PASSWORD", ""),

		AIProvider:       getEnv("AI_PROVIDER", "auto"),
		GeminiApiKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		OllamaBaseURL:    getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:      getEnv("OLLAMA_MODEL", "llama3"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIEndpoint:   getEnv("OPENAI_ENDPOINT", "https://openrouter.ai/api/v1"),
		OpenAIModel:      getEnv("OPENAI_MODEL", "openai/gpt-4o-mini"),
		SystemPromptFile: getEnv("SYSTEM_PROMPT_FILE", ""),
		ContextFiles:     getEnvList("CONTEXT_FILES", nil),

		CompletionPolicy: getEnv("COMPLETION_POLICY", "either"),
		MaxExchanges:     getEnvInt("MAX_EXCHANGES", 4),
		TerminalPhrases: getEnvList("TERMINAL_PHRASES", []string{
			"that's all", "that is all", "nothing else", "no more questions", "goodbye",
		}),

		RetryAttempts:       getEnvInt("RETRY_ATTEMPTS", 3),
		RetryInitial:        getEnvDuration("RETRY_INITIAL_INTERVAL", time.Second),
		RetryMax:            getEnvDuration("RETRY_MAX_INTERVAL", 8*time.Second),
		TransportTimeout:    getEnvDuration("TRANSPORT_TIMEOUT", 30*time.Second),
		GenerationTimeout:   getEnvDuration("GENERATION_TIMEOUT", 60*time.Second),
		StoreTimeout:        getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		ProcessingTimeout:   getEnvDuration("PROCESSING_TIMEOUT", 5*time.Minute),
		DeliveryLease:       getEnvDuration("DELIVERY_LEASE", 10*time.Minute),
		ThreadConcurrency:   getEnvInt("THREAD_CONCURRENCY", 4),
		ReconcileInterval:   getEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		ReconcileStaleAfter: getEnvDuration("RECONCILE_STALE_AFTER", 10*time.Minute),

		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),
		FCMOperatorTokens:   getEnvList("FCM_OPERATOR_TOKENS", nil),
		ChromaAPIKey:        getEnv("CHROMA_API_KEY", ""),
		ChromaTenant:        getEnv("CHROMA_TENANT", ""),
		ChromaDatabase:      getEnv("CHROMA_DATABASE", ""),

		JWTSecret:       getEnv("OPERATOR_JWT_SECRET", "your-secret-key-change-in-production"),
		JWTAccessExpiry: getEnvDuration("OPERATOR_TOKEN_TTL", 12*time.Hour),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
