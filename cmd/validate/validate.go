// Package validate implements the `talkgraph validate` subcommand: load
// a session file and report structural diagnostics (cycles, orphaned
// talkers) without starting a player.
package validate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gndl/talkgraph/internal/conf"
	"github.com/gndl/talkgraph/internal/session"
)

// Command creates the `validate` subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [session.tgs]",
		Short: "Validate a session's band structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, _, err := session.Load(args[0], settings.Audio.ChunkSize)
			if err != nil {
				return fmt.Errorf("validate: load session: %w", err)
			}

			diags, err := b.Validate()
			if err != nil {
				return fmt.Errorf("validate: %w", err)
			}
			if len(diags) == 0 {
				fmt.Println("no structural issues found")
				return nil
			}
			for _, d := range diags {
				fmt.Printf("talker %d: %s\n", d.TalkerID, d.Message)
			}
			return nil
		},
	}

	cmd.SilenceUsage = true
	return cmd
}
