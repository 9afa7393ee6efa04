// Package config loads and validates runtime configuration for the
// grouping engine, predicate index and transaction-log server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// validate is a package-level validator instance, matching the
// go-playground/validator convention of building the struct cache once and
// reusing it across calls.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("crc_kind", validateCRCKind)
	_ = v.RegisterValidation("compression_kind", validateCompressionKind)
	return v
}

func validateCRCKind(fl validator.FieldLevel) bool {
	switch CRCKind(fl.Field().String()) {
	case CRCCCITT, CRCXXH64:
		return true
	default:
		return false
	}
}

func validateCompressionKind(fl validator.FieldLevel) bool {
	switch CompressionKind(fl.Field().String()) {
	case CompressionNoneMulti, CompressionLZ4, CompressionZSTD:
		return true
	default:
		return false
	}
}

// CRCKind selects the checksum algorithm used to frame a chunk (§6.4).
type CRCKind string

const (
	CRCCCITT CRCKind = "ccitt_crc32"
	CRCXXH64 CRCKind = "xxh64"
)

// CompressionKind selects the payload compression used to frame a chunk.
type CompressionKind string

const (
	CompressionNoneMulti CompressionKind = "none_multi"
	CompressionLZ4       CompressionKind = "lz4"
	CompressionZSTD      CompressionKind = "zstd"
)

// EncodingConfig holds the chunk-codec defaults (§6.4, §4.8).
type EncodingConfig struct {
	CRC         CRCKind         `mapstructure:"crc" validate:"crc_kind"`
	Compression CompressionKind `mapstructure:"compression" validate:"compression_kind"`
}

// SimpleIndexConfig holds posting-list promotion/demotion thresholds (§4.5).
type SimpleIndexConfig struct {
	UpperDocIDFreqThreshold  float64 `mapstructure:"upper_doc_id_freq_threshold" validate:"gtfield=LowerDocIDFreqThreshold"`
	LowerDocIDFreqThreshold  float64 `mapstructure:"lower_doc_id_freq_threshold" validate:"gte=0"`
	UpperVectorSizeThreshold int     `mapstructure:"upper_vector_size_threshold" validate:"gtfield=LowerVectorSizeThreshold"`
	LowerVectorSizeThreshold int     `mapstructure:"lower_vector_size_threshold" validate:"gte=0"`
	VectorPruneFrequency     int     `mapstructure:"vector_prune_frequency" validate:"gt=0"`
	ForeachVectorThreshold   float64 `mapstructure:"foreach_vector_threshold" validate:"gte=0"`
}

// HyperLogLogConfig holds HLL sketch precision.
type HyperLogLogConfig struct {
	Precision uint8 `mapstructure:"precision" validate:"gte=4,lte=18"`
}

// TLogConfig holds transaction-log-server storage tuning.
type TLogConfig struct {
	FSyncOnCommit    bool   `mapstructure:"fsync_on_commit"`
	PartSizeLimit    int64  `mapstructure:"part_size_limit" validate:"gt=0"`
	ChunkSizeLimit   int64  `mapstructure:"chunk_size_limit" validate:"gt=0,ltefield=PartSizeLimit"`
	CompressionLevel int    `mapstructure:"compression_level"`
	DataDir          string `mapstructure:"data_dir" validate:"required"`
}

// ServerConfig holds the RPC transport's listener settings.
type ServerConfig struct {
	BindAddr                string        `mapstructure:"bind_addr" validate:"required"`
	ReadTimeout             time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout            time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout             time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
	GracefulShutdownTimeout time.Duration `mapstructure:"graceful_shutdown_timeout" validate:"gt=0"`
	FollowPollInterval      time.Duration `mapstructure:"follow_poll_interval" validate:"gt=0"`
}

// MetricsConfig holds the Prometheus exposition endpoint settings.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BindAddr string `mapstructure:"bind_addr"`
	Path     string `mapstructure:"path"`
}

// LogConfig mirrors pkg/logger.Config, duplicated here so viper can bind it
// directly onto the top-level Config without an import cycle.
type LogConfig struct {
	Level      string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"required,oneof=json text"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Config is the root configuration object for the core module. Nested
// struct fields are walked automatically by validator.Struct; only leaf
// fields carry their own validate tags.
type Config struct {
	Encoding    EncodingConfig    `mapstructure:"encoding"`
	SimpleIndex SimpleIndexConfig `mapstructure:"simple_index"`
	HyperLogLog HyperLogLogConfig `mapstructure:"hyper_log_log"`
	TLog        TLogConfig        `mapstructure:"tlog"`
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// Load reads configuration from an optional file, environment variables
// (prefixed SEARCHCORE_, with "." replaced by "_"), and built-in defaults.
// Environment variables take precedence over the file, and the file over
// the defaults.
func Load(configPath string) (*Config, error) {
	viper.SetEnvPrefix("searchcore")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("encoding.crc", string(CRCXXH64))
	viper.SetDefault("encoding.compression", string(CompressionZSTD))

	viper.SetDefault("simple_index.upper_doc_id_freq_threshold", 0.40)
	viper.SetDefault("simple_index.lower_doc_id_freq_threshold", 0.32)
	viper.SetDefault("simple_index.upper_vector_size_threshold", 10000)
	viper.SetDefault("simple_index.lower_vector_size_threshold", 8000)
	viper.SetDefault("simple_index.vector_prune_frequency", 20000)
	viper.SetDefault("simple_index.foreach_vector_threshold", 0.25)

	viper.SetDefault("hyper_log_log.precision", 10)

	viper.SetDefault("tlog.fsync_on_commit", false)
	viper.SetDefault("tlog.part_size_limit", 256*1024*1024)
	viper.SetDefault("tlog.chunk_size_limit", 256*1024)
	viper.SetDefault("tlog.compression_level", 9)
	viper.SetDefault("tlog.data_dir", "./data")

	viper.SetDefault("server.bind_addr", ":12100")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.graceful_shutdown_timeout", "30s")
	viper.SetDefault("server.follow_poll_interval", "200ms")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.bind_addr", ":12101")
	viper.SetDefault("metrics.path", "/metrics")
}

// Validate checks invariants the rest of the module relies on, via struct
// tags: ranges, required fields and cross-field comparisons (gtfield,
// ltefield) all run through validator.Struct in one pass.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			return fmt.Errorf("%s", formatValidationErrors(verrs))
		}
		return err
	}
	return nil
}

// formatValidationErrors renders a validator.ValidationErrors as one
// "field: tag" entry per failure, using the lower-cased Go namespace of the
// field (e.g. "config.encoding.compression"), not its mapstructure key.
func formatValidationErrors(verrs validator.ValidationErrors) string {
	var b strings.Builder
	for i, e := range verrs {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: failed %q", strings.ToLower(e.Namespace()), e.Tag())
		if e.Param() != "" {
			fmt.Fprintf(&b, "=%s", e.Param())
		}
	}
	return b.String()
}
