package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/tripwire/internal/provider"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

const typeStrategy = "strategy"

func (p *DynamoDBProvider) strategyItem(s types.Strategy) (map[string]ddbtypes.AttributeValue, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling strategy: %w", err)
	}
	return map[string]ddbtypes.AttributeValue{
		"PK":     str(strategyPK(s.ID)),
		"SK":     str(configSK()),
		"GSI1PK": str(typeIndexPK(typeStrategy)),
		"GSI1SK": str(strategyIndexSK(s.CreatedAt, s.ID)),
		"active": &ddbtypes.AttributeValueMemberBOOL{Value: s.Active},
		"data":   str(string(data)),
	}, nil
}

// PutStrategy stores a strategy, replacing any previous version.
func (p *DynamoDBProvider) PutStrategy(ctx context.Context, s types.Strategy) error {
	item, err := p.strategyItem(s)
	if err != nil {
		return err
	}
	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &p.tableName, Item: item})
	return err
}

// GetStrategy reads a strategy by ID.
func (p *DynamoDBProvider) GetStrategy(ctx context.Context, id string) (*types.Strategy, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &p.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": str(strategyPK(id)),
			"SK": str(configSK()),
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("strategy %q: %w", id, provider.ErrNotFound)
	}
	return decodeStrategy(out.Item)
}

// ListStrategies reads every strategy from the type index in creation order.
func (p *DynamoDBProvider) ListStrategies(ctx context.Context, activeOnly bool) ([]types.Strategy, error) {
	var (
		out      []types.Strategy
		startKey map[string]ddbtypes.AttributeValue
	)
	for {
		page, err := p.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              &p.tableName,
			IndexName:              aws.String(gsi1),
			KeyConditionExpression: aws.String("GSI1PK = :pk"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pk": str(typeIndexPK(typeStrategy)),
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			s, err := decodeStrategy(item)
			if err != nil {
				p.logger.Warn("skipping corrupt strategy data", "error", err)
				continue
			}
			if activeOnly && !s.Active {
				continue
			}
			out = append(out, *s)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		startKey = page.LastEvaluatedKey
	}
	provider.SortStrategies(out)
	return out, nil
}

// SetStrategyActive flips a strategy's active flag.
func (p *DynamoDBProvider) SetStrategyActive(ctx context.Context, id string, active bool) error {
	s, err := p.GetStrategy(ctx, id)
	if err != nil {
		return err
	}
	s.Active = active
	item, err := p.strategyItem(*s)
	if err != nil {
		return err
	}
	_, err = p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &p.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if isConditionalCheckFailed(err) {
		return fmt.Errorf("strategy %q: %w", id, provider.ErrNotFound)
	}
	return err
}

func decodeStrategy(item map[string]ddbtypes.AttributeValue) (*types.Strategy, error) {
	data, err := attributeStr(item, "data")
	if err != nil {
		return nil, err
	}
	var s types.Strategy
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, fmt.Errorf("unmarshaling strategy: %w", err)
	}
	return &s, nil
}
