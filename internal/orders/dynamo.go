package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
)

// DynamoBackend stores orders in a DynamoDB table keyed by numeric order_id.
type DynamoBackend struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewDynamoBackend creates a DynamoBackend over tableName.
func NewDynamoBackend(client aws.DynamoDBAPI, tableName string) *DynamoBackend {
	return &DynamoBackend{client: client, tableName: tableName}
}

func orderKey(id int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberN{Value: strconv.FormatInt(id, 10)},
	}
}

func (d *DynamoBackend) Load(ctx context.Context, id int64) (*Order, error) {
	out, err := d.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &d.tableName,
		Key:            orderKey(id),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

func (d *DynamoBackend) Insert(ctx context.Context, o Order) error {
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &d.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return errExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (d *DynamoBackend) Replace(ctx context.Context, o Order, prevVersion int64) error {
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &d.tableName,
		Item:                     item,
		ConditionExpression:      awsString("#v = :expected"),
		ExpressionAttributeNames: map[string]string{"#v": "version"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(prevVersion, 10)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return errVersionMismatch
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (d *DynamoBackend) Remove(ctx context.Context, id int64) (bool, error) {
	out, err := d.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:    &d.tableName,
		Key:          orderKey(id),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	return len(out.Attributes) > 0, nil
}

// Scan reads the whole table page by page. The table is expected to stay small
// enough for reporting scans; larger deployments would add a GSI per filter.
func (d *DynamoBackend) Scan(ctx context.Context) ([]Order, error) {
	var (
		out   []Order
		start map[string]types.AttributeValue
	)
	for {
		page, err := d.client.Scan(ctx, &dyn.ScanInput{
			TableName:         &d.tableName,
			ExclusiveStartKey: start,
			ConsistentRead:    awsBool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		start = page.LastEvaluatedKey
	}
	sortByID(out)
	return out, nil
}

func isConditionFailed(err error) bool {
	var cf *types.ConditionalCheckFailedException
	return errors.As(err, &cf)
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
