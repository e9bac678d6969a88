package hashfinder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v2"

	"example.org/hashfinder/digest"
	"example.org/hashfinder/pool"
)

// ErrInvalidConfig is wrapped by every *ConfigError.
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError names the setting that failed validation.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

type FinderConfig struct {
	FinderID           string `yaml:"finder_id"`
	Workers            int    `yaml:"workers"`
	ZeroRunLength      uint8  `yaml:"zero_run_length"`
	TargetMatches      uint32 `yaml:"target_matches"`
	Model              string `yaml:"model"`
	Poll               string `yaml:"poll"`
	BackoffMaxInterval string `yaml:"backoff_max_interval"`
	Digest             string `yaml:"digest"`
	LogLevel           string `yaml:"log_level"`
	TracerServerAddr   string `yaml:"tracer_server_addr"`
	TracerSecret       []byte `yaml:"tracer_secret"`
}

func DefaultFinderConfig() FinderConfig {
	return FinderConfig{
		FinderID:           "finder",
		Workers:            pool.DefaultWorkers,
		Model:              string(pool.Threads),
		Poll:               string(pool.BusyPoll),
		BackoffMaxInterval: pool.DefaultBackoffMaxInterval.String(),
		Digest:             "sha256",
		LogLevel:           "info",
	}
}

func ReadJSONConfig(filename string, config interface{}) error {
	configData, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(configData))
	dec.DisallowUnknownFields()
	return dec.Decode(config)
}

// ReadConfig reads a JSON or YAML config file, chosen by extension.
func ReadConfig(filename string, config interface{}) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		configData, err := os.ReadFile(filename)
		if err != nil {
			return err
		}
		return yaml.UnmarshalStrict(configData, config)
	default:
		return ReadJSONConfig(filename, config)
	}
}

// Validate checks every setting and returns the first problem as a
// *ConfigError.
func (c FinderConfig) Validate() error {
	if c.Workers < 1 || c.Workers > pool.MaxWorkers {
		return &ConfigError{Field: "Workers", Reason: fmt.Sprintf("must be in 1..%d, got %d", pool.MaxWorkers, c.Workers)}
	}
	if _, err := pool.ParseModel(c.Model); err != nil {
		return &ConfigError{Field: "Model", Reason: err.Error()}
	}
	if _, err := pool.ParseStrategy(c.Poll); err != nil {
		return &ConfigError{Field: "Poll", Reason: err.Error()}
	}
	if _, err := c.backoffMaxInterval(); err != nil {
		return &ConfigError{Field: "BackoffMaxInterval", Reason: err.Error()}
	}
	if _, err := digest.ByName(c.Digest); err != nil {
		return &ConfigError{Field: "Digest", Reason: err.Error()}
	}
	if _, err := c.Level(); err != nil {
		return &ConfigError{Field: "LogLevel", Reason: err.Error()}
	}
	return nil
}

// Level parses LogLevel. An empty level means info.
func (c FinderConfig) Level() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(c.LogLevel)
}

func (c FinderConfig) backoffMaxInterval() (time.Duration, error) {
	if c.BackoffMaxInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.BackoffMaxInterval)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative, got %s", d)
	}
	return d, nil
}

// PoolConfig validates c and converts it to a pool.Config.
func (c FinderConfig) PoolConfig() (pool.Config, error) {
	if err := c.Validate(); err != nil {
		return pool.Config{}, err
	}
	model, _ := pool.ParseModel(c.Model)
	poll, _ := pool.ParseStrategy(c.Poll)
	maxInterval, _ := c.backoffMaxInterval()
	return pool.Config{
		Workers:            c.Workers,
		ZeroRunLength:      c.ZeroRunLength,
		TargetMatches:      c.TargetMatches,
		Model:              model,
		Poll:               poll,
		BackoffMaxInterval: maxInterval,
		BufferSize:         pool.DefaultBufferSize,
	}, nil
}
