// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

type EmailProviderConfig struct {
	BaseURL     string
	APIKey      string
	FromAddress string
}

type SMSProviderConfig struct {
	BaseURL    string
	AccountID  string
	AuthToken  string
	FromNumber string
}

type WhatsAppProviderConfig struct {
	BaseURL    string
	AuthToken  string
	FromNumber string
}

// Config holds everything the process needs from the environment. Load it
// once in main and pass it down; nothing else reads os.Getenv.
type Config struct {
	HTTPAddr string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	AMQPURL        string
	JobEventsQueue string

	// SendHour is the fixed UTC hour scheduled reminders fire at.
	SendHour int

	SchedulerSpec     string
	ExecutorInterval  time.Duration
	ExecutorBatchSize int

	ProviderTimeout time.Duration

	Email    EmailProviderConfig
	SMS      SMSProviderConfig
	WhatsApp WhatsAppProviderConfig
}

func Load() Config {
	return Config{
		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DBUser:     getenv("DB_USER", "postgres"),
		DBPassword: getenv("DB_PASSWORD", ""),
		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBName:     getenv("DB_NAME", "renewcast"),

		AMQPURL:        getenv("AMQP_URL", ""),
		JobEventsQueue: getenv("JOB_EVENTS_QUEUE", "job_events"),

		SendHour: getenvInt("SEND_HOUR", 9),

		SchedulerSpec:     getenv("SCHEDULER_SPEC", "0 5 * * *"),
		ExecutorInterval:  getenvDuration("EXECUTOR_INTERVAL", 60*time.Second),
		ExecutorBatchSize: getenvInt("EXECUTOR_BATCH_SIZE", 50),

		ProviderTimeout: getenvDuration("PROVIDER_TIMEOUT", 10*time.Second),

		Email: EmailProviderConfig{
			BaseURL:     getenv("EMAIL_API_URL", ""),
			APIKey:      getenv("EMAIL_API_KEY", ""),
			FromAddress: getenv("EMAIL_FROM", ""),
		},
		SMS: SMSProviderConfig{
			BaseURL:    getenv("SMS_API_URL", ""),
			AccountID:  getenv("SMS_ACCOUNT_ID", ""),
			AuthToken:  getenv("SMS_AUTH_TOKEN", ""),
			FromNumber: getenv("SMS_FROM", ""),
		},
		WhatsApp: WhatsAppProviderConfig{
			BaseURL:    getenv("WHATSAPP_API_URL", ""),
			AuthToken:  getenv("WHATSAPP_AUTH_TOKEN", ""),
			FromNumber: getenv("WHATSAPP_FROM", ""),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
