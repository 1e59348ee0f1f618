package notifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/goccy/go-json"

	"github.com/signalshift-data/internal/common/discord"
	"github.com/signalshift-data/internal/common/logger"
	"github.com/signalshift-data/pkg/incidents/models"
)

type fakeReader struct {
	incident *models.PersistedIncident
	details  []models.ServiceDetail
	stations []string
	err      error
}

func (r *fakeReader) GetIncident(_ context.Context, id int) (*models.PersistedIncident, error) {
	if r.err != nil {
		return nil, r.err
	}
	inc := *r.incident
	inc.ID = id
	return &inc, nil
}

func (r *fakeReader) ServiceDetails(context.Context, int) ([]models.ServiceDetail, error) {
	return r.details, nil
}

func (r *fakeReader) StationsAffected(context.Context, int) ([]string, error) {
	return r.stations, nil
}

type fakeChannel struct {
	sent []models.Notification
	err  error
}

func (c *fakeChannel) Name() string { return "fake" }

func (c *fakeChannel) Publish(_ context.Context, n models.Notification) error {
	c.sent = append(c.sent, n)
	return c.err
}

func newFakeReader() *fakeReader {
	yes := true
	return &fakeReader{
		incident: persisted(&yes, nil),
		details:  []models.ServiceDetail{{OperatorName: "Southern", OriginStation: "London Victoria", DestinationStation: "East Grinstead"}},
		stations: []string{"East Croydon", "East Grinstead"},
	}
}

func TestNotifyPublishesOnce(t *testing.T) {
	ch := &fakeChannel{}
	n := New(newFakeReader(), ch, logger.Nop())

	if err := n.Notify(context.Background(), 12); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(ch.sent) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(ch.sent))
	}
	got := ch.sent[0]
	if got.IncidentID != 12 || got.Subject != AlertSubject {
		t.Errorf("unexpected notification %+v", got)
	}
	if !reflect.DeepEqual(got.Stations, []string{"East Croydon", "East Grinstead"}) {
		t.Errorf("unexpected stations %v", got.Stations)
	}
}

func TestNotifyFailureIsNotRetried(t *testing.T) {
	ch := &fakeChannel{err: errors.New("throttled")}
	n := New(newFakeReader(), ch, logger.Nop())

	if err := n.Notify(context.Background(), 12); err == nil {
		t.Fatal("expected publish error")
	}
	if len(ch.sent) != 1 {
		t.Errorf("expected exactly one attempt, got %d", len(ch.sent))
	}
}

func TestNotifyBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	ch := &fakeChannel{err: errors.New("unavailable")}
	n := New(newFakeReader(), ch, logger.Nop(), WithBreakerTimeout(time.Hour))

	for i := 0; i < 5; i++ {
		_ = n.Notify(context.Background(), i+1)
	}

	if len(ch.sent) != 3 {
		t.Errorf("expected breaker to stop publishing after 3 failures, got %d attempts", len(ch.sent))
	}
}

func TestNotifyReaderError(t *testing.T) {
	reader := newFakeReader()
	reader.err = errors.New("connection refused")
	ch := &fakeChannel{}

	if err := New(reader, ch, logger.Nop()).Notify(context.Background(), 1); err == nil {
		t.Fatal("expected reader error")
	}
	if len(ch.sent) != 0 {
		t.Error("nothing should be published when the incident cannot be loaded")
	}
}

type fakeSNS struct {
	createCalls int
	published   []*sns.PublishInput
}

func (f *fakeSNS) CreateTopic(_ context.Context, in *sns.CreateTopicInput, _ ...func(*sns.Options)) (*sns.CreateTopicOutput, error) {
	f.createCalls++
	return &sns.CreateTopicOutput{TopicArn: aws.String("arn:aws:sns:eu-west-2:123456789012:" + aws.ToString(in.Name))}, nil
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.published = append(f.published, in)
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestSNSChannelPublish(t *testing.T) {
	client := &fakeSNS{}
	ch := NewSNSChannel(client, "incident-alerts")

	note := models.Notification{IncidentID: 1, Subject: AlertSubject, Body: "body", Stations: []string{"Brighton", "Hove"}}
	for i := 0; i < 2; i++ {
		if err := ch.Publish(context.Background(), note); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	if client.createCalls != 1 {
		t.Errorf("expected topic to be resolved once, got %d calls", client.createCalls)
	}
	if len(client.published) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(client.published))
	}

	in := client.published[0]
	if aws.ToString(in.TopicArn) != "arn:aws:sns:eu-west-2:123456789012:incident-alerts" {
		t.Errorf("unexpected topic %q", aws.ToString(in.TopicArn))
	}
	attr, ok := in.MessageAttributes[StationsAttribute]
	if !ok {
		t.Fatal("missing stations attribute")
	}
	if aws.ToString(attr.DataType) != "String.Array" {
		t.Errorf("unexpected data type %q", aws.ToString(attr.DataType))
	}
	var stations []string
	if err := json.Unmarshal([]byte(aws.ToString(attr.StringValue)), &stations); err != nil {
		t.Fatalf("stations attribute is not a JSON array: %v", err)
	}
	if !reflect.DeepEqual(stations, []string{"Brighton", "Hove"}) {
		t.Errorf("unexpected stations %v", stations)
	}
}

func TestSNSChannelEmptyStations(t *testing.T) {
	client := &fakeSNS{}
	ch := NewSNSChannel(client, "incident-alerts")

	if err := ch.Publish(context.Background(), models.Notification{Subject: "s", Body: "b"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got := aws.ToString(client.published[0].MessageAttributes[StationsAttribute].StringValue); got != "[]" {
		t.Errorf("expected empty JSON array, got %q", got)
	}
}

func TestNATSChannelPublish(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	messages, err := pubSub.Subscribe(context.Background(), "incidents.alerts")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ch := NewNATSChannelWithPublisher(pubSub, "incidents.alerts")
	note := models.Notification{IncidentID: 5, Subject: AlertSubject, Body: "body", Stations: []string{"York"}}
	if err := ch.Publish(context.Background(), note); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-messages:
		msg.Ack()
		if msg.Metadata.Get("stations") != `["York"]` {
			t.Errorf("unexpected stations metadata %q", msg.Metadata.Get("stations"))
		}
		if msg.Metadata.Get("incident_id") != "5" {
			t.Errorf("unexpected incident id %q", msg.Metadata.Get("incident_id"))
		}
		var got models.Notification
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("payload: %v", err)
		}
		if !reflect.DeepEqual(got, note) {
			t.Errorf("payload mismatch: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestDiscordChannelPublish(t *testing.T) {
	var got discord.WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ch := NewDiscordChannel(discord.NewClient(srv.URL))
	note := models.Notification{Subject: AlertSubject, Body: "body", Stations: []string{"Leeds", "York"}}
	if err := ch.Publish(context.Background(), note); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(got.Embeds) != 1 {
		t.Fatalf("expected 1 embed, got %d", len(got.Embeds))
	}
	embed := got.Embeds[0]
	if embed.Title != AlertSubject || embed.Description != "body" {
		t.Errorf("unexpected embed %+v", embed)
	}
	if len(embed.Fields) != 1 || embed.Fields[0].Value != "Leeds, York" {
		t.Errorf("unexpected fields %+v", embed.Fields)
	}
}

func TestTruncateFieldKeepsRunesWhole(t *testing.T) {
	// "é" is two bytes, so the cut point lands inside a rune
	long := strings.Repeat("é", maxFieldLen)

	got := truncateField(long)
	if len(got) > maxFieldLen {
		t.Errorf("expected at most %d bytes, got %d", maxFieldLen, len(got))
	}
	if !utf8.ValidString(got) {
		t.Error("truncated field is not valid UTF-8")
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis, got %q", got[len(got)-5:])
	}

	if short := "Brighton, Hove"; truncateField(short) != short {
		t.Error("short field should be unchanged")
	}
}
