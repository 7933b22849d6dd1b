// Package render implements the `talkgraph render` subcommand:
// faster-than-realtime, non-interactive rendering of a session's time
// range to a WAV file.
package render

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gndl/talkgraph/internal/conf"
	"github.com/gndl/talkgraph/internal/factory"
	"github.com/gndl/talkgraph/internal/session"
)

// Command creates the `render` subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	var output string
	var startTick, endTick int64

	cmd := &cobra.Command{
		Use:   "render [session.tgs]",
		Short: "Render a session's time range to a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return fmt.Errorf("render: --output is required")
			}

			b, mixerSpecs, err := session.Load(args[0], settings.Audio.ChunkSize)
			if err != nil {
				return fmt.Errorf("render: load session: %w", err)
			}

			f := factory.Get()
			m, err := session.SelectMixer(b, mixerSpecs, settings.Audio.Channels, settings.Audio.ChunkSize)
			if err != nil {
				return fmt.Errorf("render: build mixer: %w", err)
			}
			out, err := f.MakeOutput(factory.OutputParams{
				Kind:       factory.OutputWav,
				Path:       output,
				SampleRate: uint32(settings.Audio.SampleRate),
				Channels:   settings.Audio.Channels,
			})
			if err != nil {
				return fmt.Errorf("render: make output: %w", err)
			}
			m.AddSink(out)

			if endTick < startTick {
				return fmt.Errorf("render: --end must be >= --start")
			}
			for tick := startTick; tick < endTick; {
				length := settings.Audio.ChunkSize
				if remain := endTick - tick; int(remain) < length {
					length = int(remain)
				}
				ln, err := m.ComeOut(tick, length)
				if err != nil {
					return fmt.Errorf("render: tick %d: %w", tick, err)
				}
				if ln == 0 {
					break
				}
				tick += int64(ln)
			}

			if closer, ok := out.(interface{ Close() error }); ok {
				if err := closer.Close(); err != nil {
					return fmt.Errorf("render: close output: %w", err)
				}
			}

			fmt.Printf("rendered %d talkers, ticks [%d, %d) to %s\n", len(b.Talkers()), startTick, endTick, output)
			return nil
		},
	}

	cmd.SilenceUsage = true
	cmd.Flags().StringVar(&output, "output", "", "Output WAV file path")
	cmd.Flags().Int64Var(&startTick, "start", 0, "First tick to render")
	cmd.Flags().Int64Var(&endTick, "end", 0, "Tick to stop rendering at (exclusive)")

	return cmd
}
