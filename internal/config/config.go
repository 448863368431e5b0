package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port                     string
	DatabaseURL              string
	MinutesPerPatient        int
	RateLimitPerMinute       int
	RateLimitBurst           int
	BranchRateLimitPerMinute int
	BranchRateLimitBurst     int
	OutboxPollInterval       time.Duration
	OutboxBatchSize          int
	DedupeSweepEnabled       bool
	DedupeSweepInterval      time.Duration
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:                     port,
		DatabaseURL:              os.Getenv("DB_DSN"),
		MinutesPerPatient:        readInt("MINUTES_PER_PATIENT", 15),
		RateLimitPerMinute:       readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:           readInt("RATE_LIMIT_BURST", 30),
		BranchRateLimitPerMinute: readInt("BRANCH_RATE_LIMIT_PER_MIN", 600),
		BranchRateLimitBurst:     readInt("BRANCH_RATE_LIMIT_BURST", 120),
		OutboxPollInterval:       readDurationSeconds("OUTBOX_POLL_INTERVAL_SECONDS", 1),
		OutboxBatchSize:          readInt("OUTBOX_BATCH_SIZE", 100),
		DedupeSweepEnabled:       readBool("DEDUPE_SWEEP_ENABLED", false),
		DedupeSweepInterval:      readDurationSeconds("DEDUPE_SWEEP_INTERVAL_SECONDS", 3600),
	}
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
