package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Motion backend control plane
	BackendURL     string
	BackendAPIKey  string
	BackendTimeout time.Duration

	// MQTT (backend state-change notification feed)
	MQTTBroker    string
	MQTTClientID  string
	MQTTUsername  string
	MQTTPassword  string
	EventTopic    string
	SafetyTopic   string
	EventsEnabled bool

	// Redis (last-known state mirror)
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisEnabled  bool

	// Database (execution record persistence)
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBEnabled  bool

	// Pipeline
	QueueSize      int
	HistorySize    int
	DefaultTimeout time.Duration
	SweepInterval  time.Duration
	LimitsFile     string

	// Observability
	MetricsAddr string
	LogLevel    string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	return &Config{
		BackendURL:     getEnv("BACKEND_URL", "http://localhost:7125"),
		BackendAPIKey:  getEnv("BACKEND_API_KEY", ""),
		BackendTimeout: getEnvDuration("BACKEND_TIMEOUT", 10*time.Second),

		MQTTBroker:    getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:  getEnv("MQTT_CLIENT_ID", "pnp-bridge"),
		MQTTUsername:  getEnv("MQTT_USERNAME", ""),
		MQTTPassword:  getEnv("MQTT_PASSWORD", ""),
		EventTopic:    getEnv("EVENT_TOPIC", "pnp/v1/state/#"),
		SafetyTopic:   getEnv("SAFETY_TOPIC", "pnp/v1/safety/events"),
		EventsEnabled: getEnvBool("EVENTS_ENABLED", true),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "pnp_bridge"),
		DBEnabled:  getEnvBool("DB_ENABLED", false),

		QueueSize:      getEnvInt("QUEUE_SIZE", 1000),
		HistorySize:    getEnvInt("HISTORY_SIZE", 1000),
		DefaultTimeout: getEnvDuration("DEFAULT_TIMEOUT", 30*time.Second),
		SweepInterval:  getEnvDuration("CACHE_SWEEP_INTERVAL", 10*time.Second),
		LimitsFile:     getEnv("SAFETY_LIMITS_FILE", ""),

		MetricsAddr: getEnv("METRICS_ADDR", ":9100"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
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
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
