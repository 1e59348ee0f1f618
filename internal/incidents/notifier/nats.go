package notifier

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"

	"github.com/signalshift-data/internal/common/config"
	"github.com/signalshift-data/internal/common/logger"
	"github.com/signalshift-data/pkg/incidents/models"
)

// NATSChannel publishes notifications as JSON on a core NATS subject.
// Consumers filter on the "stations" metadata header.
type NATSChannel struct {
	publisher message.Publisher
	subject   string
}

func NewNATSChannel(cfg config.NotifyConfig, log logger.Logger) (*NATSChannel, error) {
	wmLogger := NewWatermillLogger(log)

	natsOpts := []natsgo.Option{
		natsgo.Name("signalshift-incidents"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled: true,
		},
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("creating nats publisher: %w", err)
	}

	return NewNATSChannelWithPublisher(pub, cfg.NATSSubject), nil
}

// NewNATSChannelWithPublisher wraps any watermill publisher
func NewNATSChannelWithPublisher(pub message.Publisher, subject string) *NATSChannel {
	return &NATSChannel{
		publisher: pub,
		subject:   subject,
	}
}

func (c *NATSChannel) Name() string {
	return "nats"
}

func (c *NATSChannel) Publish(ctx context.Context, n models.Notification) error {
	if n.Stations == nil {
		n.Stations = []string{}
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	stations, err := stationsJSON(n.Stations)
	if err != nil {
		return err
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("subject", n.Subject)
	msg.Metadata.Set(StationsAttribute, stations)
	msg.Metadata.Set("incident_id", strconv.Itoa(n.IncidentID))

	if err := c.publisher.Publish(c.subject, msg); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (c *NATSChannel) Close() error {
	return c.publisher.Close()
}

// watermillLogger routes watermill's logging through the pipeline logger
type watermillLogger struct {
	log    logger.Logger
	fields watermill.LogFields
}

func NewWatermillLogger(log logger.Logger) watermill.LoggerAdapter {
	return &watermillLogger{log: log}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Error(msg, append(l.kv(fields), "error", err)...)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Info(msg, l.kv(fields)...)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug(msg, l.kv(fields)...)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.Debug(msg, l.kv(fields)...)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{log: l.log, fields: l.fields.Add(fields)}
}

func (l *watermillLogger) kv(fields watermill.LogFields) []interface{} {
	all := l.fields.Add(fields)
	out := make([]interface{}, 0, len(all)*2)
	for k, v := range all {
		out = append(out, k, v)
	}
	return out
}
