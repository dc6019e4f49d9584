package alert

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/tripwire/pkg/types"
)

type mockSNS struct {
	published []*sns.PublishInput
}

func (m *mockSNS) Publish(_ context.Context, input *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.published = append(m.published, input)
	return &sns.PublishOutput{}, nil
}

func TestSNSSink_Send(t *testing.T) {
	mock := &mockSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:alerts", WithSNSClient(mock))
	require.NoError(t, err)
	assert.Equal(t, "sns", sink.Name())

	require.NoError(t, sink.Send(context.Background(), testAlert()))

	require.Len(t, mock.published, 1)
	pub := mock.published[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789:alerts", *pub.TopicArn)
	assert.Equal(t, "[error] BURN_FAILED strat-1", *pub.Subject)
	assert.Equal(t, "error", *pub.MessageAttributes["level"].StringValue)
	assert.Equal(t, "strat-1", *pub.MessageAttributes["strategyId"].StringValue)
	assert.Equal(t, "BURN_FAILED", *pub.MessageAttributes["errorKind"].StringValue)

	var decoded types.Alert
	require.NoError(t, json.Unmarshal([]byte(*pub.Message), &decoded))
	assert.Equal(t, types.AlertLevelError, decoded.Level)
	assert.Equal(t, "bridge failed", decoded.Message)
}

func TestSNSSink_SubjectTruncation(t *testing.T) {
	mock := &mockSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:alerts", WithSNSClient(mock))
	require.NoError(t, err)

	a := testAlert()
	a.StrategyID = strings.Repeat("s", 150)
	require.NoError(t, sink.Send(context.Background(), a))
	assert.LessOrEqual(t, len(*mock.published[0].Subject), 100)
}

func TestSNSSink_NoErrorKind(t *testing.T) {
	mock := &mockSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:alerts", WithSNSClient(mock))
	require.NoError(t, err)

	a := testAlert()
	a.Level = types.AlertLevelWarning
	a.Details = nil
	require.NoError(t, sink.Send(context.Background(), a))

	pub := mock.published[0]
	assert.Equal(t, "[warning] strat-1", *pub.Subject)
	assert.NotContains(t, pub.MessageAttributes, "errorKind")
}

func TestNewSNSSink_RequiresTopic(t *testing.T) {
	_, err := NewSNSSink("", WithSNSClient(&mockSNS{}))
	assert.Error(t, err)
}
