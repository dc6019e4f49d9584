package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/tripwire/pkg/types"
)

const defaultEventLimit = 50

// AppendEvent writes an event to the event log partition.
func (p *DynamoDBProvider) AppendEvent(ctx context.Context, ev types.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	item := map[string]ddbtypes.AttributeValue{
		"PK":   str(pkEventLog),
		"SK":   str(eventSK(ev.OccurredAt)),
		"data": str(string(data)),
	}
	if p.retentionTTL > 0 {
		item["ttl"] = &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlEpoch(p.retentionTTL))}
	}
	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &p.tableName, Item: item})
	return err
}

// ListEvents returns the most recent events, newest first.
func (p *DynamoDBProvider) ListEvents(ctx context.Context, limit int) ([]types.Event, error) {
	if limit <= 0 {
		limit = defaultEventLimit
	}
	out, err := p.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &p.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     str(pkEventLog),
			":prefix": str(prefixEvent),
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, err
	}

	events := make([]types.Event, 0, len(out.Items))
	for _, item := range out.Items {
		ttlVal, _ := attributeInt(item)
		if isExpired(ttlVal) {
			continue
		}
		data, err := attributeStr(item, "data")
		if err != nil {
			p.logger.Warn("skipping corrupt event data", "error", err)
			continue
		}
		var ev types.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			p.logger.Warn("skipping corrupt event data", "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
