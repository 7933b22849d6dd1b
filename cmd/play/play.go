// Package play implements the `talkgraph play` subcommand: load a
// session and run its player to completion (or until interrupted),
// writing to the configured output sink.
package play

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gndl/talkgraph/internal/conf"
	"github.com/gndl/talkgraph/internal/cpuspec"
	"github.com/gndl/talkgraph/internal/factory"
	"github.com/gndl/talkgraph/internal/logging"
	"github.com/gndl/talkgraph/internal/player"
	"github.com/gndl/talkgraph/internal/session"
)

var logger = logging.ForService("play")

// Command creates the `play` subcommand for playing a session file.
func Command(settings *conf.Settings) *cobra.Command {
	var outputKind string

	cmd := &cobra.Command{
		Use:   "play [session.tgs]",
		Short: "Play a session",
		Long:  `Load a session file and run its player until it stops or is interrupted.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
			go func() {
				sig := <-sigChan
				fmt.Printf("\nreceived signal %v, stopping playback\n", sig)
				cancel()
			}()

			spec := cpuspec.GetCPUSpec()
			logger.Info("cpu detected", "brand", spec.BrandName, "recommended_workers", spec.GetOptimalThreadCount())

			b, mixerSpecs, err := session.Load(args[0], settings.Audio.ChunkSize)
			if err != nil {
				return fmt.Errorf("play: load session: %w", err)
			}

			f := factory.Get()
			m, err := session.SelectMixer(b, mixerSpecs, settings.Audio.Channels, settings.Audio.ChunkSize)
			if err != nil {
				return fmt.Errorf("play: build mixer: %w", err)
			}

			out, err := f.MakeOutput(factory.OutputParams{
				Kind:       factory.OutputKind(outputKind),
				SampleRate: uint32(settings.Audio.SampleRate),
				Channels:   settings.Audio.Channels,
			})
			if err != nil {
				return fmt.Errorf("play: make output: %w", err)
			}
			m.AddSink(out)

			p := player.New(m, settings.Audio.ChunkSize)
			sess := session.New(args[0], b, p)
			logger.Info("session loaded", "path", sess.Path, "talkers", len(sess.Band.Talkers()))

			go p.Run(ctx)
			p.Send(player.Order{Kind: player.OrderPlay})

			for {
				select {
				case report := <-p.States():
					if report.Err != nil {
						logger.Error("playback error", "error", report.Err)
					}
					if report.State == player.StateStopped || report.State == player.StateExited {
						return nil
					}
				case <-ctx.Done():
					p.Send(player.Order{Kind: player.OrderExit})
					return nil
				}
			}
		},
	}

	cmd.SilenceUsage = true
	cmd.Flags().StringVar(&outputKind, "output", "device", "Output sink: device, wav, or null")

	return cmd
}
