package hashfinder

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.org/hashfinder/pool"
)

func TestDefaultFinderConfig(t *testing.T) {
	config := DefaultFinderConfig()
	require.NoError(t, config.Validate())
	assert.Equal(t, 10, config.Workers)
	assert.Equal(t, "threads", config.Model)
	assert.Equal(t, "busy", config.Poll)
	assert.Equal(t, "sha256", config.Digest)

	pc, err := config.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, pool.Threads, pc.Model)
	assert.Equal(t, pool.BusyPoll, pc.Poll)
	assert.Equal(t, time.Millisecond, pc.BackoffMaxInterval)
}

func TestConfigValidation(t *testing.T) {
	cases := map[string]func(*FinderConfig){
		"Workers":            func(c *FinderConfig) { c.Workers = 0 },
		"Model":              func(c *FinderConfig) { c.Model = "fibers" },
		"Poll":               func(c *FinderConfig) { c.Poll = "sleep" },
		"BackoffMaxInterval": func(c *FinderConfig) { c.BackoffMaxInterval = "-1ms" },
		"Digest":             func(c *FinderConfig) { c.Digest = "crc32" },
		"LogLevel":           func(c *FinderConfig) { c.LogLevel = "loud" },
	}
	for field, mutate := range cases {
		config := DefaultFinderConfig()
		mutate(&config)

		err := config.Validate()
		require.Error(t, err, field)
		assert.True(t, errors.Is(err, ErrInvalidConfig), field)

		var ce *ConfigError
		require.True(t, errors.As(err, &ce), field)
		assert.Equal(t, field, ce.Field)

		_, err = config.PoolConfig()
		assert.Error(t, err, field)
	}
}

func TestReadConfigFormats(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "finder_config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"Workers":3,"ZeroRunLength":4,"TargetMatches":2,"Model":"tasks"}`), 0644))
	config := DefaultFinderConfig()
	require.NoError(t, ReadConfig(jsonPath, &config))
	assert.Equal(t, 3, config.Workers)
	assert.Equal(t, uint8(4), config.ZeroRunLength)
	assert.Equal(t, uint32(2), config.TargetMatches)
	assert.Equal(t, "tasks", config.Model)
	assert.Equal(t, "sha256", config.Digest)

	yamlPath := filepath.Join(dir, "finder.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("workers: 7\npoll: backoff\nbackoff_max_interval: 250us\n"), 0644))
	config = DefaultFinderConfig()
	require.NoError(t, ReadConfig(yamlPath, &config))
	assert.Equal(t, 7, config.Workers)
	pc, err := config.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, pool.BackoffPoll, pc.Poll)
	assert.Equal(t, 250*time.Microsecond, pc.BackoffMaxInterval)

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("wrokers: 7\n"), 0644))
	assert.Error(t, ReadConfig(badPath, &config))

	badJSON := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badJSON, []byte(`{"Wrokers":7}`), 0644))
	config = DefaultFinderConfig()
	assert.Error(t, ReadConfig(badJSON, &config))
	assert.Equal(t, 10, config.Workers)

	assert.Error(t, ReadConfig(filepath.Join(dir, "missing.json"), &config))
}
