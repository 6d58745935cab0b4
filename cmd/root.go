package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	configcmd "github.com/tphakala/longrec/cmd/config"
	"github.com/tphakala/longrec/cmd/devices"
	"github.com/tphakala/longrec/cmd/info"
	"github.com/tphakala/longrec/cmd/record"
	"github.com/tphakala/longrec/cmd/serve"
	"github.com/tphakala/longrec/cmd/version"
	"github.com/tphakala/longrec/internal/buildinfo"
	"github.com/tphakala/longrec/internal/conf"
	"github.com/tphakala/longrec/internal/logger"
	"github.com/tphakala/longrec/internal/telemetry"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "longrec",
		Short:         "Long-running audio recorder",
		Long:          "Record audio from a capture device to WAV or ffmpeg-encoded files with bounded memory use.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	versionCmd := version.Command()
	configCmd := configcmd.Command(settings)

	rootCmd.AddCommand(
		record.Command(settings),
		serve.Command(settings),
		devices.Command(settings),
		info.Command(),
		configCmd,
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// version and config print plain output without touching logging
		if cmd.Name() == versionCmd.Name() || cmd.Name() == configCmd.Name() {
			return nil
		}
		return initialize(settings)
	}

	return rootCmd
}

// initialize sets up the central logger and optional error reporting.
func initialize(settings *conf.Settings) error {
	cfg := settings.Logging
	if settings.Debug {
		cfg.DefaultLevel = "debug"
		if cfg.Console != nil {
			console := *cfg.Console
			console.Level = "debug"
			cfg.Console = &console
		}
	}
	cl, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)

	if err := telemetry.Init(settings.Sentry, buildinfo.Current(), cl.Module("telemetry")); err != nil {
		cl.Module("telemetry").Warn("error reporting not started", logger.Error(err))
	}
	return nil
}

func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Audio.Source, "source", settings.Audio.Source, "Capture device (\"default\", a device name or a name fragment)")
	rootCmd.PersistentFlags().StringVar(&settings.Audio.Backend, "backend", settings.Audio.Backend, "Audio backend (alsa, pulse, wasapi, coreaudio, null)")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.SampleRate, "samplerate", settings.Audio.SampleRate, "Sample rate in Hz, 0 uses the device's native rate")

	for key, flag := range map[string]string{
		"debug":            "debug",
		"audio.source":     "source",
		"audio.backend":    "backend",
		"audio.samplerate": "samplerate",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
