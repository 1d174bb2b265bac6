/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// TurnUnreachablePolicy selects how the ICE-credential service behaves
// when the upstream TURN record store is unavailable.
type TurnUnreachablePolicy string

const (
	TurnReturnErr    TurnUnreachablePolicy = "err"
	TurnReturnStatic TurnUnreachablePolicy = "static"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	BaseURL     string

	ControlAPIBind string
	ControlAPIPort int
	GRPCBind       string
	GRPCPort       int

	DBBackend DatabaseBackend
	DBDSN     string

	JWTSigningKey string
	MetricsBind   string

	NATSURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TurnHost             string
	TurnPort             int
	TurnSecret           string
	TurnCredentialTTL    time.Duration
	TurnStaticUsername   string
	TurnStaticCredential string
	TurnUnreachable      TurnUnreachablePolicy

	RPCIdleTimeout       time.Duration
	RPCReconnectTimeout  time.Duration
	RPCPingInterval      time.Duration
	MediaMaxLag          time.Duration
	MediaInitTimeout     time.Duration
	NegotiationRollback  time.Duration
	MediaStateTimeout    time.Duration

	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	InstanceID string

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"SIGNALCORE_ENV", "MEDEA_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"SIGNALCORE_HTTP_BIND", "MEDEA_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"SIGNALCORE_HTTP_PORT", "MEDEA_HTTP_PORT"}, 8080),
		BaseURL:     getEnvAny([]string{"SIGNALCORE_BASE_URL", "MEDEA_BASE_URL"}, ""),

		ControlAPIBind: getEnvAny([]string{"SIGNALCORE_CONTROL_API_BIND", "MEDEA_CONTROL_API_BIND"}, "0.0.0.0"),
		ControlAPIPort: getEnvIntAny([]string{"SIGNALCORE_CONTROL_API_PORT", "MEDEA_CONTROL_API_PORT"}, 6565),
		GRPCBind:       getEnvAny([]string{"SIGNALCORE_GRPC_BIND", "MEDEA_GRPC_BIND"}, "0.0.0.0"),
		GRPCPort:       getEnvIntAny([]string{"SIGNALCORE_GRPC_PORT", "MEDEA_GRPC_PORT"}, 6566),

		DBBackend: DatabaseBackend(getEnvAny([]string{"SIGNALCORE_DB_BACKEND", "MEDEA_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"SIGNALCORE_DB_DSN", "MEDEA_DB_DSN"}, "signalcore.db"),

		JWTSigningKey: getEnvAny([]string{"SIGNALCORE_JWT_SIGNING_KEY", "MEDEA_JWT_SIGNING_KEY"}, ""),
		MetricsBind:   getEnvAny([]string{"SIGNALCORE_METRICS_BIND", "MEDEA_METRICS_BIND"}, "127.0.0.1:9000"),

		NATSURL: getEnvAny([]string{"SIGNALCORE_NATS_URL", "NATS_URL"}, ""),

		RedisAddr:     getEnvAny([]string{"SIGNALCORE_REDIS_ADDR", "MEDEA_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"SIGNALCORE_REDIS_PASSWORD", "MEDEA_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"SIGNALCORE_REDIS_DB", "MEDEA_REDIS_DB"}, 0),

		TurnHost:             getEnvAny([]string{"SIGNALCORE_TURN_HOST", "MEDEA_TURN_HOST"}, "localhost"),
		TurnPort:             getEnvIntAny([]string{"SIGNALCORE_TURN_PORT", "MEDEA_TURN_PORT"}, 3478),
		TurnSecret:           getEnvAny([]string{"SIGNALCORE_TURN_SECRET", "MEDEA_TURN_SECRET"}, ""),
		TurnCredentialTTL:    time.Duration(getEnvIntAny([]string{"SIGNALCORE_TURN_TTL_SECONDS", "MEDEA_TURN_TTL_SECONDS"}, 86400)) * time.Second,
		TurnStaticUsername:   getEnvAny([]string{"SIGNALCORE_TURN_STATIC_USER", "MEDEA_TURN_STATIC_USER"}, ""),
		TurnStaticCredential: getEnvAny([]string{"SIGNALCORE_TURN_STATIC_PASS", "MEDEA_TURN_STATIC_PASS"}, ""),
		TurnUnreachable:      TurnUnreachablePolicy(getEnvAny([]string{"SIGNALCORE_TURN_UNREACHABLE_POLICY", "MEDEA_TURN_UNREACHABLE_POLICY"}, string(TurnReturnErr))),

		RPCIdleTimeout:      time.Duration(getEnvIntAny([]string{"SIGNALCORE_RPC_IDLE_TIMEOUT_SECONDS", "MEDEA_RPC_IDLE_TIMEOUT_SECONDS"}, 10)) * time.Second,
		RPCReconnectTimeout: time.Duration(getEnvIntAny([]string{"SIGNALCORE_RPC_RECONNECT_TIMEOUT_SECONDS", "MEDEA_RPC_RECONNECT_TIMEOUT_SECONDS"}, 10)) * time.Second,
		RPCPingInterval:     time.Duration(getEnvIntAny([]string{"SIGNALCORE_RPC_PING_INTERVAL_SECONDS", "MEDEA_RPC_PING_INTERVAL_SECONDS"}, 3)) * time.Second,
		MediaMaxLag:         time.Duration(getEnvIntAny([]string{"SIGNALCORE_MEDIA_MAX_LAG_SECONDS", "MEDEA_MEDIA_MAX_LAG_SECONDS"}, 10)) * time.Second,
		MediaInitTimeout:    time.Duration(getEnvIntAny([]string{"SIGNALCORE_MEDIA_INIT_TIMEOUT_SECONDS", "MEDEA_MEDIA_INIT_TIMEOUT_SECONDS"}, 15)) * time.Second,
		NegotiationRollback: time.Duration(getEnvIntAny([]string{"SIGNALCORE_NEGOTIATION_ROLLBACK_SECONDS", "MEDEA_NEGOTIATION_ROLLBACK_SECONDS"}, 10)) * time.Second,
		MediaStateTimeout:   time.Duration(getEnvIntAny([]string{"SIGNALCORE_MEDIA_STATE_TIMEOUT_SECONDS", "MEDEA_MEDIA_STATE_TIMEOUT_SECONDS"}, 10)) * time.Second,

		TracingEnabled:    getEnvBoolAny([]string{"SIGNALCORE_TRACING_ENABLED", "MEDEA_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"SIGNALCORE_OTLP_ENDPOINT", "MEDEA_OTLP_ENDPOINT"}, ""),
		TracingSampleRate: getEnvFloatAny([]string{"SIGNALCORE_TRACING_SAMPLE_RATE", "MEDEA_TRACING_SAMPLE_RATE"}, 1.0),

		InstanceID: getEnvAny([]string{"SIGNALCORE_INSTANCE_ID", "MEDEA_INSTANCE_ID"}, ""),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.TurnUnreachable != TurnReturnErr && cfg.TurnUnreachable != TurnReturnStatic {
		return nil, fmt.Errorf("unsupported turn unreachable policy %q", cfg.TurnUnreachable)
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.TurnSecret == "" {
			return nil, fmt.Errorf("SIGNALCORE_TURN_SECRET or MEDEA_TURN_SECRET must be set in production")
		}
		if cfg.JWTSigningKey == "" {
			return nil, fmt.Errorf("SIGNALCORE_JWT_SIGNING_KEY or MEDEA_JWT_SIGNING_KEY must be set in production")
		}
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":      "use SIGNALCORE_ENV (or MEDEA_ENV)",
		"JWT_SIGNING_KEY":  "use SIGNALCORE_JWT_SIGNING_KEY (or MEDEA_JWT_SIGNING_KEY)",
		"TRACING_ENABLED":  "use SIGNALCORE_TRACING_ENABLED (or MEDEA_TRACING_ENABLED)",
		"OTLP_ENDPOINT":    "use SIGNALCORE_OTLP_ENDPOINT (or MEDEA_OTLP_ENDPOINT)",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
