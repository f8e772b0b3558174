// Package config loads the settings shared by the snd command line tools.
//
// Values come from an optional config file, overridden by any flag the user
// set explicitly.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gen2brain/snd/alsa"
)

func setViperDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("card", 0)
	viper.SetDefault("device", 0)
	viper.SetDefault("periodSize", 1024)
	viper.SetDefault("periodCount", 4)
	viper.SetDefault("queueLength", alsa.DefaultQueueLength)
	viper.SetDefault("channels", 0)
	viper.SetDefault("rate", 0)
	viper.SetDefault("format", "")
	viper.SetDefault("duration", 5*time.Second)
}

// LoadConfig reads configFilePath, if it exists, then applies every flag of
// flags that was set on the command line. Flag names are config keys.
// SND_* environment variables sit between the file and the flags.
func LoadConfig(configFilePath string, flags *flag.FlagSet) error {
	setViperDefaults()

	viper.SetEnvPrefix("snd")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configFilePath != "" {
		viper.SetConfigFile(configFilePath)
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			// An explicit path that does not exist surfaces as a plain *fs.PathError.
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("error during config read: %w", err)
			}
		}
	}

	flags.Visit(func(f *flag.Flag) {
		viper.Set(f.Name, f.Value.String())
	})

	return nil
}

// ConfigureLogger builds the console logger for the configured level.
func ConfigureLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(viper.GetString("loglevel"))
	if err != nil {
		return nil, fmt.Errorf("invalid loglevel: %w", err)
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true

	return cfg.Build()
}

// Driver returns the ALSA configuration for the configured device. Stream
// parameters left zero are filled in by the tool or by alsa.Open.
func Driver(log *zap.Logger) alsa.Config {
	return alsa.Config{
		Card:        viper.GetUint("card"),
		Device:      viper.GetUint("device"),
		Channels:    viper.GetUint32("channels"),
		Rate:        viper.GetUint32("rate"),
		PeriodSize:  viper.GetUint32("periodSize"),
		PeriodCount: viper.GetUint32("periodCount"),
		QueueLength: viper.GetInt("queueLength"),
		Logger:      log,
	}
}

// Format returns the configured sample format name; empty selects the tool's default.
func Format() string {
	return viper.GetString("format")
}

// Duration returns the configured recording length.
func Duration() time.Duration {
	return viper.GetDuration("duration")
}
