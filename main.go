package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"whisperkey/internal/app"
	"whisperkey/internal/capture"
	"whisperkey/internal/logging"
	"whisperkey/internal/settings"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	hotkey   string
	model    string
	engine   string
	endpoint string
	mic      int
	verbose  bool
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "whisperkey",
		Short: "Hold a key chord, speak, release: the transcript lands at your cursor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := settings.Load()
			if err != nil {
				return err
			}
			applyFlags(&cfg, cmd, flags)

			logPath, _ := settings.LogPath()
			log := logging.New(logPath, flags.verbose)
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return app.New(version, log).Run(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&flags.hotkey, "hotkey", "", "chord that starts recording while held (e.g. alt+shift, cmd+shift+space)")
	cmd.Flags().StringVar(&flags.model, "model", "", "transcription model name")
	cmd.Flags().StringVar(&flags.engine, "engine", "", "transcription transport: http or websocket")
	cmd.Flags().StringVar(&flags.endpoint, "endpoint", "", "transcription service URL")
	cmd.Flags().IntVar(&flags.mic, "mic", -1, "input device index (-1 for system default)")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging on the console")

	cmd.AddCommand(newDevicesCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// applyFlags lets command-line flags win over the config file and
// environment, but only when the user actually set them.
func applyFlags(cfg *settings.Settings, cmd *cobra.Command, flags rootFlags) {
	if cmd.Flags().Changed("hotkey") {
		cfg.Hotkey = flags.hotkey
	}
	if cmd.Flags().Changed("model") {
		cfg.Model = flags.model
	}
	if cmd.Flags().Changed("engine") {
		cfg.Engine = flags.engine
	}
	if cmd.Flags().Changed("endpoint") {
		cfg.Endpoint = flags.endpoint
	}
	if cmd.Flags().Changed("mic") {
		cfg.MicrophoneIndex = flags.mic
	}
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := capture.NewPortAudioOpener().Devices()
			if err != nil {
				return err
			}
			for _, d := range devices {
				marker := " "
				if d.Default {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %3d  %s (%d ch, %.0f Hz)\n",
					marker, d.Index, d.Name, d.Channels, d.SampleRate)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "whisperkey %s\n", version)
		},
	}
}
