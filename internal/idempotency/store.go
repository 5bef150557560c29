package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-order-lifecycle/internal/aws"
)

// claimCondition lets a Put through for a new key, an expired one or one whose
// previous attempt failed.
const claimCondition = "attribute_not_exists(idempotency_key) OR expires_at < :now OR #s = :failed"

// DynamoStore keeps idempotency keys in a DynamoDB table with TTL on expires_at.
type DynamoStore struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

// NewDynamoStore returns a DynamoStore. A non-positive ttl uses DefaultTTL.
func NewDynamoStore(client aws.DynamoDBAPI, tableName string, ttl time.Duration) *DynamoStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		ttlWindow: ttl,
		nowFunc:   time.Now,
	}
}

func (s *DynamoStore) key(k string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: k},
	}
}

func (s *DynamoStore) Claim(ctx context.Context, key, fingerprint string) (Claim, error) {
	now := s.nowFunc().UTC()
	rec := Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.ttlWindow).Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return Claim{}, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      awsString(claimCondition),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":    &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
			":failed": &types.AttributeValueMemberS{Value: string(StatusFailed)},
		},
	})
	if err == nil {
		return Claim{Outcome: OutcomeNew, Record: rec}, nil
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "ConditionalCheckFailedException" {
		return Claim{}, fmt.Errorf("put item: %w", err)
	}

	existing, err := s.Get(ctx, key)
	if err != nil {
		return Claim{}, err
	}
	if existing == nil {
		// Expired and removed by TTL between the two calls.
		return Claim{Outcome: OutcomeInProgress, Record: rec}, nil
	}
	return existingClaim(*existing, fingerprint)
}

// Get returns the record for key, or nil when there is none.
func (s *DynamoStore) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(key),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

func (s *DynamoStore) Complete(ctx context.Context, key string, orderID int64, status int, body string) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(key),
		ConditionExpression: awsString("attribute_exists(idempotency_key)"),
		UpdateExpression:    awsString("SET #s = :done, order_id = :oid, response_body = :rb, response_status = :rs, updated_at = :ua, expires_at = :exp"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done": &types.AttributeValueMemberS{Value: string(StatusDone)},
			":oid":  &types.AttributeValueMemberN{Value: strconv.FormatInt(orderID, 10)},
			":rb":   &types.AttributeValueMemberS{Value: body},
			":rs":   &types.AttributeValueMemberN{Value: strconv.Itoa(status)},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":exp":  &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(s.ttlWindow).Unix(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("update item (complete): %w", err)
	}
	return nil
}

func (s *DynamoStore) Fail(ctx context.Context, key, note string) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              s.key(key),
		UpdateExpression: awsString("SET #s = :failed, note = :n, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: string(StatusFailed)},
			":n":      &types.AttributeValueMemberS{Value: note},
			":ua":     &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		return fmt.Errorf("update item (fail): %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
