package notifier

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/goccy/go-json"

	"github.com/signalshift-data/internal/common/config"
	"github.com/signalshift-data/pkg/incidents/models"
)

// StationsAttribute is the message attribute subscription filter policies match on
const StationsAttribute = "stations"

// SNSAPI is the subset of the SNS client the channel uses
type SNSAPI interface {
	CreateTopic(ctx context.Context, in *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error)
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSChannel publishes to a topic whose subscribers filter on the stations attribute
type SNSChannel struct {
	client    SNSAPI
	topicName string

	mu       sync.Mutex
	topicARN string
}

// NewSNSClient builds a client for the configured region. Static keys are
// used when set, otherwise the default AWS credential chain applies.
func NewSNSClient(ctx context.Context, cfg config.NotifyConfig) (*sns.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKey != "" && cfg.AWSSecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKey, cfg.AWSSecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return sns.NewFromConfig(awsCfg), nil
}

func NewSNSChannel(client SNSAPI, topicName string) *SNSChannel {
	return &SNSChannel{
		client:    client,
		topicName: topicName,
	}
}

func (c *SNSChannel) Name() string {
	return "sns"
}

func (c *SNSChannel) Publish(ctx context.Context, n models.Notification) error {
	arn, err := c.topic(ctx)
	if err != nil {
		return err
	}

	stations, err := stationsJSON(n.Stations)
	if err != nil {
		return err
	}

	_, err = c.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(arn),
		Subject:  aws.String(n.Subject),
		Message:  aws.String(n.Body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			StationsAttribute: {
				DataType:    aws.String("String.Array"),
				StringValue: aws.String(stations),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

// topic resolves the topic ARN once. CreateTopic returns the existing ARN
// when the topic is already there.
func (c *SNSChannel) topic(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.topicARN != "" {
		return c.topicARN, nil
	}

	out, err := c.client.CreateTopic(ctx, &sns.CreateTopicInput{Name: aws.String(c.topicName)})
	if err != nil {
		return "", fmt.Errorf("resolving sns topic %s: %w", c.topicName, err)
	}
	c.topicARN = aws.ToString(out.TopicArn)
	return c.topicARN, nil
}

func stationsJSON(stations []string) (string, error) {
	if stations == nil {
		stations = []string{}
	}
	b, err := json.Marshal(stations)
	if err != nil {
		return "", fmt.Errorf("encoding stations: %w", err)
	}
	return string(b), nil
}
