// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN used for municipalities, transmissions, and sync leases.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// GPServerBaseURL is the GPServer (GIPIES) API endpoint queried for GPS objects.
	GPServerBaseURL string `mapstructure:"GPSERVER_BASE_URL"`
	// GPServerTimeoutSec is the overall request timeout in seconds for GPServer calls.
	GPServerTimeoutSec int `mapstructure:"GPSERVER_TIMEOUT"`
	// GPServerConnectTimeoutSec is the connect timeout in seconds for GPServer calls.
	GPServerConnectTimeoutSec int `mapstructure:"GPSERVER_CONNECT_TIMEOUT"`
	// GPServerRetryAttempts is the bounded retry count for connection errors and 5xx responses.
	GPServerRetryAttempts int `mapstructure:"GPSERVER_RETRY_ATTEMPTS"`
	// GPServerRetryDelayMS is the fixed delay between GPServer retries, in milliseconds.
	GPServerRetryDelayMS int `mapstructure:"GPSERVER_RETRY_DELAY"`

	// MininterSerenazgoEndpoint receives transformed records for SERENAZGO municipalities.
	MininterSerenazgoEndpoint string `mapstructure:"MININTER_SERENAZGO_ENDPOINT"`
	// MininterPolicialEndpoint receives transformed records for POLICIAL municipalities.
	MininterPolicialEndpoint string `mapstructure:"MININTER_POLICIAL_ENDPOINT"`
	// MininterTimeoutSec is the overall request timeout in seconds for MININTER calls.
	MininterTimeoutSec int `mapstructure:"MININTER_TIMEOUT"`
	// MininterConnectTimeoutSec is the connect timeout in seconds for MININTER calls.
	MininterConnectTimeoutSec int `mapstructure:"MININTER_CONNECT_TIMEOUT"`
	// MininterRetryAttempts is the bounded retry count for connection errors and 5xx responses.
	MininterRetryAttempts int `mapstructure:"MININTER_RETRY_ATTEMPTS"`
	// MininterRetryDelayMS is the fixed delay between MININTER retries, in milliseconds.
	MininterRetryDelayMS int `mapstructure:"MININTER_RETRY_DELAY"`
	// MininterVerifySSL toggles TLS certificate verification (disable only in development).
	MininterVerifySSL bool `mapstructure:"MININTER_VERIFY_SSL"`
	// MininterMinTLSVersion is the minimum TLS protocol version, e.g. "1.2" or "1.3".
	MininterMinTLSVersion string `mapstructure:"MININTER_MIN_TLS_VERSION"`

	// BoundsLatMin..BoundsLngMax form the geographic bounding box records must fall in.
	// Defaults approximate the Peruvian national territory.
	BoundsLatMin float64 `mapstructure:"GPS_BOUNDS_LAT_MIN"`
	BoundsLatMax float64 `mapstructure:"GPS_BOUNDS_LAT_MAX"`
	BoundsLngMin float64 `mapstructure:"GPS_BOUNDS_LNG_MIN"`
	BoundsLngMax float64 `mapstructure:"GPS_BOUNDS_LNG_MAX"`

	// CoordinatePrecision is the number of decimal places kept on coordinates.
	CoordinatePrecision int `mapstructure:"GPS_COORDINATE_PRECISION"`
	// TimezoneOffsetHours is the fixed civil-time offset payload timestamps use (Lima is -5).
	TimezoneOffsetHours int `mapstructure:"GPS_TIMEZONE_OFFSET_HOURS"`
	// MaxSpeedKMH is the highest plausible vehicle speed accepted by validation.
	MaxSpeedKMH float64 `mapstructure:"GPS_MAX_SPEED_KMH"`
	// MinYear is the earliest capture-time year accepted by validation.
	MinYear int `mapstructure:"GPS_MIN_YEAR"`
	// DefaultUbigeo is the fallback administrative area code when a record carries none.
	DefaultUbigeo string `mapstructure:"GPS_DEFAULT_UBIGEO"`

	// SyncIntervalSec is how often the scheduler enqueues a sync-all round.
	SyncIntervalSec int `mapstructure:"GPS_SYNC_INTERVAL"`
	// SyncStaggerMaxSec bounds the random per-municipality enqueue delay (thundering-herd guard).
	SyncStaggerMaxSec int `mapstructure:"GPS_SYNC_STAGGER_MAX"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses for the sync job queue.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaSyncTopic is the topic sync jobs are produced to and consumed from.
	KafkaSyncTopic string `mapstructure:"KAFKA_SYNC_TOPIC"`
	// KafkaGroupID is the consumer group ID for the sync worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// KafkaLogTopic is the optional topic structured log events are mirrored to. Empty disables it.
	KafkaLogTopic string `mapstructure:"KAFKA_LOG_TOPIC"`

	// LokiURL is the optional Loki base URL log events are pushed to. Empty disables it.
	LokiURL string `mapstructure:"LOKI_URL"`
	// OTLPEndpoint is the optional OTLP gRPC collector endpoint. Empty disables OTel export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("GPSERVER_BASE_URL", "https://www.gipies.pe/api/api.php")
	v.SetDefault("GPSERVER_TIMEOUT", 30)
	v.SetDefault("GPSERVER_CONNECT_TIMEOUT", 10)
	v.SetDefault("GPSERVER_RETRY_ATTEMPTS", 3)
	v.SetDefault("GPSERVER_RETRY_DELAY", 100)
	v.SetDefault("MININTER_SERENAZGO_ENDPOINT", "https://transmision.mininter.gob.pe/retransmisionGPS/ubicacionGPS")
	v.SetDefault("MININTER_POLICIAL_ENDPOINT", "https://transmision.mininter.gob.pe/retransmisionpolicial/ubicacion/gps-policial")
	v.SetDefault("MININTER_TIMEOUT", 30)
	v.SetDefault("MININTER_CONNECT_TIMEOUT", 10)
	v.SetDefault("MININTER_RETRY_ATTEMPTS", 3)
	v.SetDefault("MININTER_RETRY_DELAY", 1000)
	v.SetDefault("MININTER_VERIFY_SSL", true)
	v.SetDefault("MININTER_MIN_TLS_VERSION", "1.2")
	v.SetDefault("GPS_BOUNDS_LAT_MIN", -18.4)
	v.SetDefault("GPS_BOUNDS_LAT_MAX", 0.0)
	v.SetDefault("GPS_BOUNDS_LNG_MIN", -81.4)
	v.SetDefault("GPS_BOUNDS_LNG_MAX", -68.7)
	v.SetDefault("GPS_COORDINATE_PRECISION", 6)
	v.SetDefault("GPS_TIMEZONE_OFFSET_HOURS", -5)
	v.SetDefault("GPS_MAX_SPEED_KMH", 500)
	v.SetDefault("GPS_MIN_YEAR", 2000)
	v.SetDefault("GPS_DEFAULT_UBIGEO", "230101")
	v.SetDefault("GPS_SYNC_INTERVAL", 60)
	v.SetDefault("GPS_SYNC_STAGGER_MAX", 10)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_SYNC_TOPIC", "gps-sync-jobs")
	v.SetDefault("KAFKA_GROUP_ID", "gps-sync-worker")
	v.SetDefault("KAFKA_LOG_TOPIC", "")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GPServerBaseURL == "" {
		return nil, errors.New("config: GPSERVER_BASE_URL must be set")
	}
	if cfg.MininterSerenazgoEndpoint == "" || cfg.MininterPolicialEndpoint == "" {
		return nil, errors.New("config: both MININTER endpoints must be set")
	}
	if cfg.BoundsLatMin > cfg.BoundsLatMax || cfg.BoundsLngMin > cfg.BoundsLngMax {
		return nil, errors.New("config: bounding box min must not exceed max")
	}
	if cfg.CoordinatePrecision < 0 || cfg.CoordinatePrecision > 10 {
		return nil, fmt.Errorf("config: GPS_COORDINATE_PRECISION %d out of range [0,10]", cfg.CoordinatePrecision)
	}
	if _, err := cfg.MinTLSVersion(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// GPServerTimeout returns the GPServer overall timeout as a duration.
func (c *Config) GPServerTimeout() time.Duration {
	return time.Duration(c.GPServerTimeoutSec) * time.Second
}

// GPServerConnectTimeout returns the GPServer connect timeout as a duration.
func (c *Config) GPServerConnectTimeout() time.Duration {
	return time.Duration(c.GPServerConnectTimeoutSec) * time.Second
}

// GPServerRetryDelay returns the fixed delay between GPServer retries.
func (c *Config) GPServerRetryDelay() time.Duration {
	return time.Duration(c.GPServerRetryDelayMS) * time.Millisecond
}

// MininterTimeout returns the MININTER overall timeout as a duration.
func (c *Config) MininterTimeout() time.Duration {
	return time.Duration(c.MininterTimeoutSec) * time.Second
}

// MininterConnectTimeout returns the MININTER connect timeout as a duration.
func (c *Config) MininterConnectTimeout() time.Duration {
	return time.Duration(c.MininterConnectTimeoutSec) * time.Second
}

// MininterRetryDelay returns the fixed delay between MININTER retries.
func (c *Config) MininterRetryDelay() time.Duration {
	return time.Duration(c.MininterRetryDelayMS) * time.Millisecond
}

// SyncInterval returns the scheduler round interval as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSec) * time.Second
}

// MinTLSVersion maps MININTER_MIN_TLS_VERSION to a crypto/tls constant.
func (c *Config) MinTLSVersion() (uint16, error) {
	switch c.MininterMinTLSVersion {
	case "", "1.2", "TLSv1.2":
		return tls.VersionTLS12, nil
	case "1.3", "TLSv1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("config: unsupported MININTER_MIN_TLS_VERSION %q", c.MininterMinTLSVersion)
	}
}

// Timezone returns the fixed civil-time zone payload timestamps are formatted in.
func (c *Config) Timezone() *time.Location {
	name := fmt.Sprintf("UTC%+d", c.TimezoneOffsetHours)
	return time.FixedZone(name, c.TimezoneOffsetHours*3600)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the job queue is enabled (non-empty list) and to create producers/readers.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
