package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/dwsmith1983/tripwire/pkg/types"
)

const (
	publishTimeout = 10 * time.Second
	maxSubjectLen  = 100
)

// SNSAPI is the subset of the SNS client used by SNSSink.
type SNSAPI interface {
	Publish(ctx context.Context, input *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSink publishes alerts to an SNS topic.
type SNSSink struct {
	client   SNSAPI
	topicARN string
}

// SNSSinkOption configures an SNSSink.
type SNSSinkOption func(*SNSSink)

// WithSNSClient sets a custom SNS client (useful for testing).
func WithSNSClient(c SNSAPI) SNSSinkOption {
	return func(s *SNSSink) { s.client = c }
}

// NewSNSSink creates a new SNS alert sink.
func NewSNSSink(topicARN string, opts ...SNSSinkOption) (*SNSSink, error) {
	if topicARN == "" {
		return nil, fmt.Errorf("SNS topic ARN required")
	}
	s := &SNSSink{topicARN: topicARN}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.client = sns.NewFromConfig(cfg)
	}
	return s, nil
}

// Name returns the sink identifier.
func (s *SNSSink) Name() string { return "sns" }

// Send publishes the alert as JSON to the configured SNS topic. Level,
// strategy and error kind travel as message attributes so subscriptions can
// filter on them.
func (s *SNSSink) Send(ctx context.Context, alert types.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(s.topicARN),
		Subject:           aws.String(snsSubject(alert)),
		Message:           aws.String(string(data)),
		MessageAttributes: snsAttributes(alert),
	})
	if err != nil {
		return fmt.Errorf("publishing to SNS topic %s: %w", s.topicARN, err)
	}
	return nil
}

// snsSubject renders "[level] KIND strategy", cut to the SNS subject limit.
func snsSubject(alert types.Alert) string {
	subject := "[" + string(alert.Level) + "]"
	if kind := errorKind(alert); kind != "" {
		subject += " " + kind
	}
	if alert.StrategyID != "" {
		subject += " " + alert.StrategyID
	}
	if len(subject) > maxSubjectLen {
		subject = subject[:maxSubjectLen]
	}
	return subject
}

func snsAttributes(alert types.Alert) map[string]snstypes.MessageAttributeValue {
	attrs := map[string]snstypes.MessageAttributeValue{
		"level": stringAttr(string(alert.Level)),
	}
	if alert.StrategyID != "" {
		attrs["strategyId"] = stringAttr(alert.StrategyID)
	}
	if kind := errorKind(alert); kind != "" {
		attrs["errorKind"] = stringAttr(kind)
	}
	return attrs
}

func stringAttr(v string) snstypes.MessageAttributeValue {
	return snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}

func errorKind(alert types.Alert) string {
	kind, _ := alert.Details["errorKind"].(string)
	return kind
}
