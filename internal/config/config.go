package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Transport TransportConfig
	Polling   PollingConfig
	Socket    SocketConfig
	Broker    BrokerConfig
	Stream    StreamConfig
	Chat      ChatConfig
	Simulator SimulatorConfig
	Tracing   TracingConfig
}

type AppConfig struct {
	Environment string `validate:"oneof=development production test"`
	LogFilePath string `validate:"required"`
	Debug       bool
}

// Transport kinds.
const (
	TransportPolling   = "polling"
	TransportWebsocket = "websocket"
	TransportNats      = "nats"
	TransportRedis     = "redis"
	TransportChannel   = "channel"
)

type TransportConfig struct {
	Kind     string        `validate:"oneof=polling websocket nats redis channel"`
	DedupTTL time.Duration `validate:"gte=0"`
}

type PollingConfig struct {
	BaseURL        string        `validate:"required,url"`
	Interval       time.Duration `validate:"gt=0"`
	MaxPolls       int           `validate:"gte=1"`
	StageBudget    time.Duration `validate:"gte=0"`
	MaxPollErrors  int           `validate:"gte=0"`
	RequestTimeout time.Duration `validate:"gt=0"`
}

type SocketConfig struct {
	URL              string        `validate:"required,url"`
	HandshakeTimeout time.Duration `validate:"gt=0"`
	WriteWait        time.Duration `validate:"gt=0"`
	PongWait         time.Duration `validate:"gt=0"`
	MaxMessageSize   int64         `validate:"gt=0"`
	SendQueue        int           `validate:"gt=0"`
	MaxReconnects    uint
	ReconnectMaxGap  time.Duration `validate:"gte=0"`
}

type BrokerConfig struct {
	NatsURL  string
	RedisURL string
	Prefix   string `validate:"required"`
	ClientID string
}

type StreamConfig struct {
	Script     string
	ExtraChars string
	Sentinels  []string
}

type ChatConfig struct {
	UserID        string
	DeleteOnReset bool
	// TurnTimeout bounds a push-mode turn that never reaches a terminal event.
	TurnTimeout   time.Duration `validate:"gte=0"`
	ActivityLimit int           `validate:"gte=0"`
}

type SimulatorConfig struct {
	Port               string `validate:"required,numeric"`
	ScenarioPath       string
	CorsAllowedOrigins string
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Environment: getEnv("GO_ENV", "development"),
			LogFilePath: getEnv("LOG_FILE_PATH", "promochat.log"),
			Debug:       getEnvAsBool("LOG_DEBUG", false),
		},
		Transport: TransportConfig{
			Kind:     getEnv("CHAT_TRANSPORT", TransportPolling),
			DedupTTL: getEnvAsDuration("CHAT_DEDUP_TTL", 5*time.Minute),
		},
		Polling: PollingConfig{
			BaseURL:        strings.TrimRight(getEnv("CHAT_BACKEND_URL", "http://localhost:8000"), "/"),
			Interval:       getEnvAsDuration("POLL_INTERVAL", time.Second),
			MaxPolls:       getEnvAsInt("POLL_MAX_POLLS", 60),
			StageBudget:    getEnvAsDuration("POLL_STAGE_BUDGET", 2*time.Minute),
			MaxPollErrors:  getEnvAsInt("POLL_MAX_ERRORS", 3),
			RequestTimeout: getEnvAsDuration("HTTP_TIMEOUT", 10*time.Second),
		},
		Socket: SocketConfig{
			URL:              getEnv("CHAT_SOCKET_URL", "ws://localhost:8000/api/chat-socket"),
			HandshakeTimeout: getEnvAsDuration("SOCKET_HANDSHAKE_TIMEOUT", 10*time.Second),
			WriteWait:        getEnvAsDuration("SOCKET_WRITE_WAIT", 10*time.Second),
			PongWait:         getEnvAsDuration("SOCKET_PONG_WAIT", 60*time.Second),
			MaxMessageSize:   int64(getEnvAsInt("SOCKET_MAX_MESSAGE_SIZE", 64*1024)),
			SendQueue:        getEnvAsInt("SOCKET_SEND_QUEUE", 256),
			MaxReconnects:    uint(getEnvAsInt("SOCKET_MAX_RECONNECTS", 5)),
			ReconnectMaxGap:  getEnvAsDuration("SOCKET_RECONNECT_MAX_GAP", 30*time.Second),
		},
		Broker: BrokerConfig{
			NatsURL:  getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
			Prefix:   getEnv("BROKER_PREFIX", "promochat"),
			ClientID: getEnv("BROKER_CLIENT_ID", ""),
		},
		Stream: StreamConfig{
			Script:     getEnv("STREAM_SCRIPT", "Thai"),
			ExtraChars: getEnv("STREAM_EXTRA_CHARS", ""),
			Sentinels:  getEnvAsList("STREAM_SENTINELS", []string{"None", "null"}),
		},
		Chat: ChatConfig{
			UserID:        getEnv("CHAT_USER_ID", "1"),
			DeleteOnReset: getEnvAsBool("CHAT_DELETE_ON_RESET", false),
			TurnTimeout:   getEnvAsDuration("CHAT_TURN_TIMEOUT", 3*time.Minute),
			ActivityLimit: getEnvAsInt("CHAT_ACTIVITY_LIMIT", 50),
		},
		Simulator: SimulatorConfig{
			Port:               getEnv("APP_PORT", "8000"),
			ScenarioPath:       getEnv("SIM_SCENARIO", ""),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "promochat"),
		},
	}
}

// Validate checks every group and the transport-specific requirements.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Transport.Kind {
	case TransportNats:
		if c.Broker.NatsURL == "" {
			return fmt.Errorf("invalid config: NATS_URL is required for the nats transport")
		}
	case TransportRedis:
		if c.Broker.RedisURL == "" {
			return fmt.Errorf("invalid config: REDIS_URL is required for the redis transport")
		}
	}
	return nil
}

// IsProduction reports whether GO_ENV selects production logging.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
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

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
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

func getEnvAsList(key string, fallback []string) []string {
	strValue, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(strValue, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
