package notify

import (
	"fmt"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/gndl/talkgraph/internal/conf"
	"github.com/gndl/talkgraph/internal/events"
)

// WebhookObserver forwards selected notifications to a shoutrrr service
// URL (Slack, Discord, generic webhook, ...). Only state changes and
// errors are forwarded; tick-level chatter would flood the channel.
type WebhookObserver struct {
	sender *shoutrrr.Sender
}

// NewWebhookObserver builds an observer from the engine's Notify.Webhook
// settings. Returns nil if no URL is configured.
func NewWebhookObserver(settings *conf.Settings) (*WebhookObserver, error) {
	if settings.Notify.Webhook.URL == "" {
		return nil, nil
	}
	sender, err := shoutrrr.CreateSender(settings.Notify.Webhook.URL)
	if err != nil {
		return nil, fmt.Errorf("notify: create webhook sender: %w", err)
	}
	return &WebhookObserver{sender: sender}, nil
}

// Notify implements the events.Bus observer callback signature.
func (w *WebhookObserver) Notify(n events.Notification) {
	switch n.Kind {
	case events.NotificationStateChanged, events.NotificationError:
	default:
		return
	}

	message := fmt.Sprintf("talkgraph: %s", n.Kind)
	if n.Kind == events.NotificationError {
		if err, ok := n.Payload.(error); ok {
			message = fmt.Sprintf("talkgraph error: %v", err)
		}
	}

	for _, err := range w.sender.Send(message, &types.Params{}) {
		if err != nil {
			logger.Error("webhook send failed", "error", err)
		}
	}
}
