package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newFlags(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Uint("card", 0, "")
	fs.Uint("periodSize", 1024, "")
	fs.String("loglevel", "info", "")
	require.NoError(t, fs.Parse(args))

	return fs
}

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	require.NoError(t, LoadConfig("", newFlags(t)))

	cfg := Driver(zap.NewNop())
	assert.Equal(t, uint(0), cfg.Card)
	assert.Equal(t, uint32(1024), cfg.PeriodSize)
	assert.Equal(t, uint32(4), cfg.PeriodCount)
	assert.Equal(t, 128, cfg.QueueLength)
	assert.Zero(t, cfg.Channels)
	assert.Zero(t, cfg.Rate)
	assert.Empty(t, Format())
	assert.Equal(t, 5*time.Second, Duration())
}

func TestLoadConfigStreamSettings(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "snd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("channels: 1\nrate: 44100\nformat: s24\n"), 0o600))
	t.Setenv("SND_DURATION", "2500ms")

	require.NoError(t, LoadConfig(path, newFlags(t)))

	cfg := Driver(zap.NewNop())
	assert.Equal(t, uint32(1), cfg.Channels)
	assert.Equal(t, uint32(44100), cfg.Rate)
	assert.Equal(t, "s24", Format())
	assert.Equal(t, 2500*time.Millisecond, Duration())
}

func TestLoadConfigFileAndFlags(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "snd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("card: 2\ndevice: 1\nperiodSize: 256\n"), 0o600))

	require.NoError(t, LoadConfig(path, newFlags(t, "-periodSize", "512")))

	cfg := Driver(zap.NewNop())
	assert.Equal(t, uint(2), cfg.Card)
	assert.Equal(t, uint(1), cfg.Device)
	assert.Equal(t, uint32(512), cfg.PeriodSize, "flags override the file")
}

func TestLoadConfigMissingFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), newFlags(t))
	assert.NoError(t, err)
}

func TestLoadConfigEnvironment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("SND_CARD", "3")

	require.NoError(t, LoadConfig("", newFlags(t)))
	assert.Equal(t, uint(3), Driver(zap.NewNop()).Card)
}

func TestConfigureLogger(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	require.NoError(t, LoadConfig("", newFlags(t, "-loglevel", "warn")))

	log, err := ConfigureLogger()
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zap.InfoLevel))
	assert.True(t, log.Core().Enabled(zap.WarnLevel))

	viper.Set("loglevel", "loud")
	_, err = ConfigureLogger()
	assert.Error(t, err)
}
