package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/app"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/audioapi"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "MICTEST"

func setViperDefaults(v *viper.Viper) {
	v.SetDefault("loglevel", "warn")
	v.SetDefault("logfile", "")
	v.SetDefault("backend", audioapi.BackendPortAudio)
	v.SetDefault("output", app.DefaultOutputPath)
	v.SetDefault("duration", 0)
	v.SetDefault("playback", string(app.PlaybackAsk))
	v.SetDefault("playbackrate", 0)
}

// Register the command line flags that override config keys.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "mictest.yaml", "Path to the config file. A missing file is not an error.")
	flags.String("loglevel", "warn", "Log level: none, error, warn, info or debug.")
	flags.String("logfile", "", "Write JSON logs to this file instead of stderr.")
	flags.String("backend", audioapi.BackendPortAudio, fmt.Sprintf("Audio backend: %s.", strings.Join(audioapi.Backends(), ", ")))
	flags.StringP("output", "o", app.DefaultOutputPath, "Where to save the recording.")
	flags.IntP("duration", "d", 0, "Recording length in seconds. Prompts when not set.")
	flags.String("playback", string(app.PlaybackAsk), "Play the recording back: ask, yes or no.")
	flags.Int("playbackrate", 0, "Resample 16-bit playback to this rate in Hz. 0 plays at the file's rate.")
}

// Load configuration into v, in increasing order of precedence: defaults,
// the config file, MICTEST_* environment variables, then flags that were
// explicitly set.
func LoadConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	setViperDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("could not bind flags: %w", err)
	}

	configFilePath, err := flags.GetString("config")
	if err != nil {
		return err
	}
	if configFilePath == "" {
		return nil
	}

	v.SetConfigFile(configFilePath)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			slog.Info("no config file found", "configFilePath", configFilePath)
			return nil
		}
		return fmt.Errorf("error during config read: %w", err)
	}
	return nil
}

// The options the run depends on, validated.
type Settings struct {
	LogLevel     string
	LogFile      string
	Backend      string
	Output       string
	Duration     int
	Playback     app.PlaybackMode
	PlaybackRate int
}

func ReadSettings(v *viper.Viper) (Settings, error) {
	playback, err := app.ParsePlaybackMode(v.GetString("playback"))
	if err != nil {
		return Settings{}, err
	}
	if v.GetInt("duration") < 0 {
		return Settings{}, fmt.Errorf("duration must not be negative, got %d", v.GetInt("duration"))
	}
	if v.GetInt("playbackrate") < 0 {
		return Settings{}, fmt.Errorf("playbackrate must not be negative, got %d", v.GetInt("playbackrate"))
	}

	return Settings{
		LogLevel:     v.GetString("loglevel"),
		LogFile:      v.GetString("logfile"),
		Backend:      v.GetString("backend"),
		Output:       v.GetString("output"),
		Duration:     v.GetInt("duration"),
		Playback:     playback,
		PlaybackRate: v.GetInt("playbackrate"),
	}, nil
}
