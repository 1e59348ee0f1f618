package notifier

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/signalshift-data/internal/common/discord"
	"github.com/signalshift-data/internal/common/logger"
	"github.com/signalshift-data/pkg/incidents/models"
)

// Discord rejects embed field values above this length
const maxFieldLen = 1024

// DiscordChannel posts alerts to a single webhook. There is no per-station
// routing; the stations list is shown in the embed instead.
type DiscordChannel struct {
	client *discord.Client
}

func NewDiscordChannel(client *discord.Client) *DiscordChannel {
	return &DiscordChannel{client: client}
}

func (c *DiscordChannel) Name() string {
	return "discord"
}

func (c *DiscordChannel) Publish(ctx context.Context, n models.Notification) error {
	stations := strings.Join(n.Stations, ", ")
	if stations == "" {
		stations = "No scheduled calls today"
	}
	stations = truncateField(stations)

	return c.client.SendMessageContext(ctx, discord.WebhookMessage{
		Embeds: []discord.Embed{{
			Title:       n.Subject,
			Description: n.Body,
			Color:       discord.ColorForLevel("ALERT"),
			Timestamp:   time.Now(),
			Fields: []discord.Field{
				{Name: "Stations", Value: stations},
			},
		}},
	})
}

// truncateField cuts s to maxFieldLen bytes on a rune boundary
func truncateField(s string) string {
	if len(s) <= maxFieldLen {
		return s
	}
	cut := maxFieldLen - len("...")
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// LogChannel only logs notifications. Used when fan-out is switched off.
type LogChannel struct {
	logger logger.Logger
}

func NewLogChannel(log logger.Logger) *LogChannel {
	return &LogChannel{logger: log}
}

func (c *LogChannel) Name() string {
	return "log"
}

func (c *LogChannel) Publish(_ context.Context, n models.Notification) error {
	c.logger.Info("Notification not sent, channel disabled",
		"incident_id", n.IncidentID,
		"subject", n.Subject,
		"stations", strings.Join(n.Stations, ", "))
	return nil
}
