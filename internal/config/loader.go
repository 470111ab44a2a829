package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "homemonitor.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "HOMEMONITOR_PORT")
	setString(&cfg.Server.CORSOrigin, "HOMEMONITOR_CORS_ORIGIN")
	setDuration(&cfg.Server.RequestTimeout, "HOMEMONITOR_REQUEST_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "HOMEMONITOR_SHUTDOWN_TIMEOUT")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "HOMEMONITOR_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "HOMEMONITOR_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "HOMEMONITOR_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "HOMEMONITOR_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "HOMEMONITOR_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.KVBucket, "HOMEMONITOR_NATS_KV_BUCKET")

	setString(&cfg.MQTT.Broker, "MQTT_BROKER")
	setString(&cfg.MQTT.ClientID, "MQTT_CLIENT_ID")
	setString(&cfg.MQTT.Topic, "HOMEMONITOR_MQTT_TOPIC")
	setByte(&cfg.MQTT.QoS, "HOMEMONITOR_MQTT_QOS")

	setInt64(&cfg.Cache.L1MaxSizeMB, "HOMEMONITOR_CACHE_L1_SIZE_MB")
	setString(&cfg.Cache.L2Backend, "HOMEMONITOR_CACHE_L2_BACKEND")
	setString(&cfg.Cache.RedisURL, "REDIS_URL")
	setDuration(&cfg.Cache.StatsTTL, "HOMEMONITOR_CACHE_STATS_TTL")

	setString(&cfg.Logging.Level, "HOMEMONITOR_LOG_LEVEL")
	setString(&cfg.Logging.Service, "HOMEMONITOR_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "HOMEMONITOR_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "HOMEMONITOR_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "HOMEMONITOR_BREAKER_TIMEOUT")

	setDuration(&cfg.Broadcast.SendTimeout, "HOMEMONITOR_BROADCAST_SEND_TIMEOUT")
	setInt(&cfg.Broadcast.MaxParallel, "HOMEMONITOR_BROADCAST_MAX_PARALLEL")

	setFloat64(&cfg.Ingest.Rate, "HOMEMONITOR_INGEST_RATE")
	setInt(&cfg.Ingest.Burst, "HOMEMONITOR_INGEST_BURST")

	// Watch mode
	setString(&cfg.Client.URL, "HOMEMONITOR_WS_URL")
	setDuration(&cfg.Client.InitialBackoff, "HOMEMONITOR_RECONNECT_INITIAL")
	setDuration(&cfg.Client.MaxBackoff, "HOMEMONITOR_RECONNECT_MAX")
	setDuration(&cfg.Client.HandshakeTimeout, "HOMEMONITOR_HANDSHAKE_TIMEOUT")
	setDuration(&cfg.Client.KeepAlive, "HOMEMONITOR_KEEPALIVE")
	setDuration(&cfg.Client.StatsInterval, "HOMEMONITOR_STATS_INTERVAL")
	setDuration(&cfg.Client.StatsTimeout, "HOMEMONITOR_STATS_TIMEOUT")

	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.OTEL.Insecure, "HOMEMONITOR_OTEL_INSECURE")
	setFloat64(&cfg.OTEL.SampleRatio, "HOMEMONITOR_OTEL_SAMPLE_RATIO")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Broadcast.MaxParallel < 0 {
		return errors.New("broadcast.max_parallel must be >= 0")
	}
	if cfg.Ingest.Rate < 0 {
		return errors.New("ingest.rate must be >= 0")
	}
	if cfg.MQTT.QoS > 2 {
		return errors.New("mqtt.qos must be 0, 1 or 2")
	}
	switch cfg.Cache.L2Backend {
	case "", "nats", "redis":
	default:
		return fmt.Errorf("cache.l2_backend %q is not one of nats, redis", cfg.Cache.L2Backend)
	}
	if cfg.Cache.L2Backend == "nats" && cfg.NATS.URL == "" {
		return errors.New("cache.l2_backend nats requires nats.url")
	}
	if cfg.Cache.L2Backend == "redis" && cfg.Cache.RedisURL == "" {
		return errors.New("cache.l2_backend redis requires cache.redis_url")
	}
	if cfg.Client.InitialBackoff <= 0 {
		return errors.New("client.initial_backoff must be > 0")
	}
	if cfg.Client.MaxBackoff < cfg.Client.InitialBackoff {
		return errors.New("client.max_backoff must be >= client.initial_backoff")
	}
	if cfg.Client.StatsInterval <= 0 {
		return errors.New("client.stats_interval must be > 0")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setByte(dst *byte, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 8); err == nil {
			*dst = byte(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
