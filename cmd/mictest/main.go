package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Honorable-Knights-of-the-Roundtable/mictest/cmd/mictest/config"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/app"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/audioapi"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/console"
	"github.com/Honorable-Knights-of-the-Roundtable/mictest/internal/utils"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet("mictest", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	v := viper.New()
	if err := config.LoadConfig(v, flags); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	settings, err := config.ReadSettings(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logFilePointer, err := utils.ConfigureDefaultLogger(
		settings.LogLevel,
		settings.LogFile,
		slog.HandlerOptions{},
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error while configuring default logger:", err)
		return 1
	}
	if logFilePointer != nil {
		defer logFilePointer.Close()
	}

	// --------------------------------------------------------------------------------

	newAPI, err := audioapi.NewFactory(settings.Backend, slog.Default())
	if err != nil {
		slog.Error("could not select audio backend", "err", err)
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	err = app.Run(app.Options{
		Console:      console.New(os.Stdin, os.Stdout),
		NewAPI:       newAPI,
		Logger:       slog.Default(),
		OutputPath:   settings.Output,
		Duration:     settings.Duration,
		Playback:     settings.Playback,
		PlaybackRate: settings.PlaybackRate,
	})
	if err != nil {
		slog.Error("microphone test aborted", "err", err)
		return 1
	}
	return 0
}
