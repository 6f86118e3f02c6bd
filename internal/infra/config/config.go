package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env                string
	HTTPAddr           string
	StoreMode          string
	MongoURI           string
	MongoDB            string
	KafkaBrokers       []string
	KafkaTopicPrefix   string
	KafkaConsumerGroup string
	ChatRetention      time.Duration
	ChatStoreTimeout   time.Duration
	SweepInterval      time.Duration
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration
	WSSendBuffer       int
	WSPingInterval     time.Duration
	WSWriteTimeout     time.Duration
	FixturesPath       string
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:                getEnv("APP_ENV", "dev"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		StoreMode:          strings.ToLower(getEnv("STORE_MODE", "memory")),
		MongoURI:           os.Getenv("MONGO_URI"),
		MongoDB:            getEnv("MONGO_DB", "campusxchange"),
		KafkaTopicPrefix:   getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "campusxchange-chat"),
		FixturesPath:       getEnv("FIXTURES_PATH", ""),
	}
	brokers := getEnv("KAFKA_BROKERS", "")
	if brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	retention, err := parseDurationEnv("CHAT_RETENTION", 168*time.Hour)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatRetention = retention

	storeTimeout, err := parseDurationEnv("CHAT_STORE_TIMEOUT", 5*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatStoreTimeout = storeTimeout

	sweep, err := parseDurationEnv("SWEEP_INTERVAL", 10*time.Minute)
	if err != nil {
		return Config{}, err
	}
	cfg.SweepInterval = sweep

	poll, err := parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond)
	if err != nil {
		return Config{}, err
	}
	cfg.OutboxPollInterval = poll

	ping, err := parseDurationEnv("WS_PING_INTERVAL", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.WSPingInterval = ping

	writeTimeout, err := parseDurationEnv("WS_WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return Config{}, err
	}
	cfg.WSWriteTimeout = writeTimeout

	buffer, err := parseIntEnv("WS_SEND_BUFFER", 64)
	if err != nil {
		return Config{}, err
	}
	cfg.WSSendBuffer = buffer

	retryStr := getEnv("RETRY_BACKOFF", "1s,5s,30s")
	for _, raw := range strings.Split(retryStr, ",") {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		d, err := time.ParseDuration(val)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RETRY_BACKOFF component %q: %w", raw, err)
		}
		cfg.RetryBackoff = append(cfg.RetryBackoff, d)
	}

	switch cfg.StoreMode {
	case "memory":
	case "mongo":
		if cfg.MongoURI == "" {
			return Config{}, fmt.Errorf("MONGO_URI is required when STORE_MODE=mongo")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_MODE %q", cfg.StoreMode)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	var v int
	if _, err := fmt.Sscanf(raw, "%d", &v); err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s integer: %q", key, raw)
	}
	return v, nil
}
