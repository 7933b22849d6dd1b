// root.go viper root command code
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gndl/talkgraph/cmd/play"
	"github.com/gndl/talkgraph/cmd/render"
	"github.com/gndl/talkgraph/cmd/serve"
	"github.com/gndl/talkgraph/cmd/validate"
	"github.com/gndl/talkgraph/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	// Create the root command
	rootCmd := &cobra.Command{
		Use:   "talkgraph",
		Short: "talkgraph audio synthesis and sequencing engine",
	}

	// Set up the global flags for the root command.
	err := setupFlags(rootCmd, settings)
	if err != nil {
		log.Printf("error setting up flags: %v\n", err)
	}

	// Add sub-commands to the root command.
	playCmd := play.Command(settings)
	serveCmd := serve.Command(settings)
	validateCmd := validate.Command(settings)
	renderCmd := render.Command(settings)

	subcommands := []*cobra.Command{
		playCmd,
		serveCmd,
		validateCmd,
		renderCmd,
	}

	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := initialize(); err != nil {
			return fmt.Errorf("error initializing: %w", err)
		}
		return nil
	}

	return rootCmd
}

// initialize is called before any subcommands are run, but after the context is ready
// This function is responsible for setting up configurations, ensuring the environment is ready, etc.
func initialize() error {
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Session.Path, "session", viper.GetString("session.path"), "Session file to load at startup")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.SampleRate, "sample-rate", viper.GetInt("audio.samplerate"), "Audio sample rate")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.ChunkSize, "chunk-size", viper.GetInt("audio.chunksize"), "Samples pulled through the graph per scheduler tick")
	rootCmd.PersistentFlags().IntVar(&settings.Audio.Channels, "channels", viper.GetInt("audio.channels"), "Output channel count")

	// Bind flags to the viper settings
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
