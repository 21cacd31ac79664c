package config

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Settings is the typed view over the loaded configuration.
type Settings struct {
	LogLevel string

	HTTPPort int
	GRPCPort int

	APIBaseURL   string
	APIKey       string
	APIRateLimit float64
	APIBurst     int

	MCPCommand string
	MCPArgs    []string

	GeminiAPIKey string
	GeminiModel  string
	MaxToolSteps int

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	KafkaBrokers   []string
	KafkaCartTopic string

	RedisAddr     string
	RedisPassword string
	MerchantTTL   time.Duration

	AddedFlash     time.Duration
	SessionIdleTTL time.Duration
	SweepSchedule  string
}

// Load initializes configuration from environment variables and .env file.
func Load() error {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		logrus.WithError(err).Warn("Failed to read .env file, using environment variables")
	}

	logrus.Info("Configuration loaded successfully")
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("GRPC_PORT", 8081)

	v.SetDefault("HENRY_API_BASE_URL", "https://api.henrylabs.ai/v0")
	v.SetDefault("HENRY_API_RPS", 10.0)
	v.SetDefault("HENRY_API_BURST", 20)

	v.SetDefault("MCP_COMMAND", "")
	v.SetDefault("MCP_ARGS", "")

	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("CHAT_MAX_TOOL_STEPS", 5)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "henry")

	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CART_TOPIC", "CART_EVENTS")

	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("MERCHANT_STATUS_TTL", "1h")

	v.SetDefault("CART_ADDED_FLASH", "2s")
	v.SetDefault("SESSION_IDLE_TTL", "30m")
	v.SetDefault("SWEEP_SCHEDULE", "@every 5m")
}

// Get reads the current configuration into Settings.
func Get() Settings {
	return fromViper(viper.GetViper())
}

func fromViper(v *viper.Viper) Settings {
	return Settings{
		LogLevel: v.GetString("LOG_LEVEL"),
		HTTPPort: v.GetInt("HTTP_PORT"),
		GRPCPort: v.GetInt("GRPC_PORT"),

		APIBaseURL:   strings.TrimRight(v.GetString("HENRY_API_BASE_URL"), "/"),
		APIKey:       v.GetString("HENRY_API_KEY"),
		APIRateLimit: v.GetFloat64("HENRY_API_RPS"),
		APIBurst:     v.GetInt("HENRY_API_BURST"),

		MCPCommand: v.GetString("MCP_COMMAND"),
		MCPArgs:    splitList(v.GetString("MCP_ARGS"), " "),

		GeminiAPIKey: v.GetString("GEMINI_API_KEY"),
		GeminiModel:  v.GetString("GEMINI_MODEL"),
		MaxToolSteps: v.GetInt("CHAT_MAX_TOOL_STEPS"),

		DBHost:     v.GetString("DB_HOST"),
		DBPort:     v.GetString("DB_PORT"),
		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBName:     v.GetString("DB_NAME"),

		KafkaBrokers:   splitList(v.GetString("KAFKA_BROKERS"), ","),
		KafkaCartTopic: v.GetString("KAFKA_CART_TOPIC"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		MerchantTTL:   v.GetDuration("MERCHANT_STATUS_TTL"),

		AddedFlash:     v.GetDuration("CART_ADDED_FLASH"),
		SessionIdleTTL: v.GetDuration("SESSION_IDLE_TTL"),
		SweepSchedule:  v.GetString("SWEEP_SCHEDULE"),
	}
}

func splitList(raw, sep string) []string {
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
