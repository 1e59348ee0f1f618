package notifier

import (
	"context"
	"fmt"

	"github.com/signalshift-data/internal/common/config"
	"github.com/signalshift-data/internal/common/discord"
	"github.com/signalshift-data/internal/common/logger"
)

// NewChannel builds the channel selected by cfg.Channel. The returned close
// function releases any connection the channel holds.
func NewChannel(ctx context.Context, cfg config.NotifyConfig, log logger.Logger) (Channel, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Channel {
	case "sns":
		client, err := NewSNSClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return NewSNSChannel(client, cfg.SNSTopic), noop, nil
	case "nats":
		ch, err := NewNATSChannel(cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return ch, ch.Close, nil
	case "discord":
		return NewDiscordChannel(discord.NewClient(cfg.DiscordURL)), noop, nil
	case "none", "":
		return NewLogChannel(log), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown notification channel %q", cfg.Channel)
	}
}
