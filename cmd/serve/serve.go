// Package serve implements the `talkgraph serve` subcommand: run the
// HTTP control surface over a session, optionally monitoring system
// resources, until interrupted.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gndl/talkgraph/internal/band"
	"github.com/gndl/talkgraph/internal/conf"
	"github.com/gndl/talkgraph/internal/control"
	"github.com/gndl/talkgraph/internal/events"
	"github.com/gndl/talkgraph/internal/factory"
	"github.com/gndl/talkgraph/internal/logging"
	"github.com/gndl/talkgraph/internal/monitor"
	"github.com/gndl/talkgraph/internal/notify"
	"github.com/gndl/talkgraph/internal/player"
	"github.com/gndl/talkgraph/internal/session"
)

var logger = logging.ForService("serve")

// Command creates the `serve` subcommand for running the control surface.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control surface",
		Long:  `Start the control surface, loading a session if one is configured, and serve until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
			go func() {
				sig := <-sigChan
				fmt.Printf("\nreceived signal %v, shutting down\n", sig)
				cancel()
			}()

			b := band.New()
			var mixerSpecs []band.MixerSpec
			if settings.Session.Path != "" {
				loaded, specs, err := session.Load(settings.Session.Path, settings.Audio.ChunkSize)
				if err != nil {
					return fmt.Errorf("serve: load session: %w", err)
				}
				b = loaded
				mixerSpecs = specs
			}

			f := factory.Get()
			m, err := session.SelectMixer(b, mixerSpecs, settings.Audio.Channels, settings.Audio.ChunkSize)
			if err != nil {
				return fmt.Errorf("serve: build mixer: %w", err)
			}
			out, err := f.MakeOutput(factory.OutputParams{
				Kind:       factory.OutputKind("device"),
				SampleRate: uint32(settings.Audio.SampleRate),
				Channels:   settings.Audio.Channels,
			})
			if err != nil {
				return fmt.Errorf("serve: make output: %w", err)
			}
			m.AddSink(out)

			p := player.New(m, settings.Audio.ChunkSize)
			sess := session.New(settings.Session.Path, b, p)
			go p.Run(ctx)

			if settings.Monitor.Enabled {
				sm := monitor.NewSystemMonitor(settings)
				sm.Start()
				defer sm.Stop()
			}

			bus := events.NewBus()

			if settings.Notify.MQTT.Enabled {
				mqttClient := notify.NewMQTTClient(settings)
				connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
				if err := mqttClient.Connect(connectCtx); err != nil {
					logger.Warn("mqtt connect failed, notifications will not be published", "error", err)
				} else {
					bus.Subscribe("mqtt", mqttClient.Publish)
				}
				connectCancel()
				defer mqttClient.Disconnect()
			}

			if settings.Notify.Webhook.Enabled {
				webhook, err := notify.NewWebhookObserver(settings)
				if err != nil {
					logger.Warn("webhook observer disabled", "error", err)
				} else if webhook != nil {
					bus.Subscribe("webhook", webhook.Notify)
				}
			}

			srv := control.New(sess, bus, settings, settings.Audio.ChunkSize, settings.Audio.Channels)
			defer srv.Close()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(settings.Control.Listen) }()

			select {
			case <-ctx.Done():
				logger.Info("stopping control surface")
				return nil
			case err := <-errCh:
				return err
			}
		},
	}

	cmd.SilenceUsage = true
	return cmd
}
