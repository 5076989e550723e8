package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime settings for the client.
type Config struct {
	Port            string
	APIBaseURL      string
	SessionDBDSN    string
	HTTPTimeout     time.Duration
	PollInterval    time.Duration
	MessageLimit    int
	InviteLimit     int
	ErrorClearDelay time.Duration
	AMQPURL         string
	AuditExchange   string
	AuditRoutingKey string
	Environment     string
	OTLPEndpoint    string
	ServiceName     string
}

// Load reads an optional .env file and then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env not loaded: %v", err)
	}

	return Config{
		Port:            getEnv("PORT", "8090"),
		APIBaseURL:      getEnv("API_BASE_URL", "http://127.0.0.1:8000"),
		SessionDBDSN:    getEnv("SESSION_DB_DSN", "chat-client.db"),
		HTTPTimeout:     getDuration("HTTP_TIMEOUT", 10*time.Second),
		PollInterval:    getDuration("POLL_INTERVAL", 3*time.Second),
		MessageLimit:    getInt("MESSAGE_LIMIT", 100),
		InviteLimit:     getInt("INVITE_LIMIT", 50),
		ErrorClearDelay: getDuration("ERROR_CLEAR_DELAY", 4*time.Second),
		AMQPURL:         getEnv("AMQP_URL", ""),
		AuditExchange:   getEnv("AUDIT_EXCHANGE", "audit"),
		AuditRoutingKey: getEnv("AUDIT_ROUTING_KEY", "audit.chat-client"),
		Environment:     getEnv("APP_ENV", "local"),
		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:     getEnv("OTEL_SERVICE_NAME", "chat-client"),
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s=%q, using %d", key, val, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		log.Printf("config: invalid %s=%q, using %s", key, val, fallback)
		return fallback
	}
	return d
}
