package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"chat-sync/internal/models"
)

// Config holds sync-engine configuration loaded from environment.
type Config struct {
	Env       string
	DebugAddr string

	APIBaseURL string
	WSBaseURL  string
	AuthToken  string

	ActorID   string
	ActorRole models.SenderRole

	// EchoMatchWindow bounds the optimistic-echo reconciliation heuristic.
	EchoMatchWindow time.Duration

	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	StableResetAfter time.Duration
	DialTimeout      time.Duration

	AMQPURL      string
	AMQPExchange string
}

// Load parses environment variables into a Config struct.
func Load() (Config, error) {
	cfg := Config{
		Env:          getEnv("APP_ENV", "dev"),
		DebugAddr:    getEnv("DEBUG_ADDR", ":8086"),
		APIBaseURL:   strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080"), "/"),
		WSBaseURL:    strings.TrimRight(getEnv("WS_BASE_URL", "ws://localhost:8080"), "/"),
		AuthToken:    strings.TrimSpace(os.Getenv("API_TOKEN")),
		ActorID:      strings.TrimSpace(os.Getenv("ACTOR_ID")),
		AMQPURL:      strings.TrimSpace(os.Getenv("AMQP_URL")),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "chat_sync_events"),
	}

	if cfg.ActorID == "" {
		return Config{}, fmt.Errorf("ACTOR_ID is required")
	}

	role, err := parseRole(getEnv("ACTOR_ROLE", "traveler"))
	if err != nil {
		return Config{}, err
	}
	cfg.ActorRole = role

	for _, d := range []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"ECHO_MATCH_WINDOW", "10s", &cfg.EchoMatchWindow},
		{"BACKOFF_INITIAL", "500ms", &cfg.BackoffInitial},
		{"BACKOFF_MAX", "30s", &cfg.BackoffMax},
		{"BACKOFF_STABLE_RESET", "60s", &cfg.StableResetAfter},
		{"DIAL_TIMEOUT", "10s", &cfg.DialTimeout},
	} {
		dur, err := parseDuration(d.key, d.def)
		if err != nil {
			return Config{}, err
		}
		*d.dst = dur
	}

	if cfg.BackoffInitial > cfg.BackoffMax {
		return Config{}, fmt.Errorf("BACKOFF_INITIAL exceeds BACKOFF_MAX")
	}
	return cfg, nil
}

func parseRole(raw string) (models.SenderRole, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "traveler":
		return models.RoleTraveler, nil
	case "provider":
		return models.RoleProvider, nil
	case "instructor":
		return models.RoleInstructor, nil
	default:
		return "", fmt.Errorf("unsupported ACTOR_ROLE: %s", raw)
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return dur, nil
}
