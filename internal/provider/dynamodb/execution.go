package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dwsmith1983/tripwire/internal/provider"
	"github.com/dwsmith1983/tripwire/pkg/types"
)

// Executions are dual-written: a truth item keyed by execution ID and a list
// copy under the owning strategy's partition, sorted by creation time.
func (p *DynamoDBProvider) executionPuts(e types.Execution, truthCond *string, truthValues map[string]ddbtypes.AttributeValue) ([]ddbtypes.TransactWriteItem, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling execution: %w", err)
	}
	return []ddbtypes.TransactWriteItem{
		{
			Put: &ddbtypes.Put{
				TableName: &p.tableName,
				Item: map[string]ddbtypes.AttributeValue{
					"PK":     str(executionPK(e.ID)),
					"SK":     str(executionTruthSK(e.ID)),
					"status": str(string(e.Status)),
					"data":   str(string(data)),
				},
				ConditionExpression:       truthCond,
				ExpressionAttributeNames:  conditionNames(truthValues),
				ExpressionAttributeValues: truthValues,
			},
		},
		{
			Put: &ddbtypes.Put{
				TableName: &p.tableName,
				Item: map[string]ddbtypes.AttributeValue{
					"PK":   str(strategyPK(e.StrategyID)),
					"SK":   str(executionListSK(e.CreatedAt, e.ID)),
					"data": str(string(data)),
				},
			},
		},
	}, nil
}

func conditionNames(values map[string]ddbtypes.AttributeValue) map[string]string {
	if len(values) == 0 {
		return nil
	}
	return map[string]string{"#status": "status"}
}

// CreateExecution records a new PENDING execution. IDs are never reused.
func (p *DynamoDBProvider) CreateExecution(ctx context.Context, e types.Execution) error {
	items, err := p.executionPuts(e, aws.String("attribute_not_exists(PK)"), nil)
	if err != nil {
		return err
	}
	_, err = p.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if isConditionalCheckFailed(err) {
		return fmt.Errorf("execution %q: %w", e.ID, provider.ErrExists)
	}
	return err
}

// FinalizeExecution replaces a PENDING execution with its terminal state. The
// write is conditional on the stored status, so a record finalizes once.
func (p *DynamoDBProvider) FinalizeExecution(ctx context.Context, e types.Execution) error {
	if err := provider.CheckFinal(e); err != nil {
		return err
	}
	items, err := p.executionPuts(e,
		aws.String("attribute_exists(PK) AND #status = :pending"),
		map[string]ddbtypes.AttributeValue{":pending": str(string(types.ExecutionPending))},
	)
	if err != nil {
		return err
	}
	_, err = p.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if !isConditionalCheckFailed(err) {
		return err
	}
	if _, getErr := p.GetExecution(ctx, e.ID); errors.Is(getErr, provider.ErrNotFound) {
		return getErr
	}
	return fmt.Errorf("execution %q: %w", e.ID, provider.ErrAlreadyFinalized)
}

// GetExecution reads the truth item of an execution.
func (p *DynamoDBProvider) GetExecution(ctx context.Context, id string) (*types.Execution, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &p.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": str(executionPK(id)),
			"SK": str(executionTruthSK(id)),
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("execution %q: %w", id, provider.ErrNotFound)
	}
	return decodeExecution(out.Item)
}

// ListExecutions returns a strategy's executions, newest first.
func (p *DynamoDBProvider) ListExecutions(ctx context.Context, strategyID string, limit int) ([]types.Execution, error) {
	input := &dynamodb.QueryInput{
		TableName:              &p.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     str(strategyPK(strategyID)),
			":prefix": str(prefixExecution),
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	out, err := p.client.Query(ctx, input)
	if err != nil {
		return nil, err
	}

	execs := make([]types.Execution, 0, len(out.Items))
	for _, item := range out.Items {
		e, err := decodeExecution(item)
		if err != nil {
			p.logger.Warn("skipping corrupt execution data", "error", err)
			continue
		}
		execs = append(execs, *e)
	}
	return execs, nil
}

func decodeExecution(item map[string]ddbtypes.AttributeValue) (*types.Execution, error) {
	data, err := attributeStr(item, "data")
	if err != nil {
		return nil, err
	}
	var e types.Execution
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("unmarshaling execution: %w", err)
	}
	return &e, nil
}
