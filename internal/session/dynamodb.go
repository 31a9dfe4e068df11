package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// DynamoDBAPI is the part of *dynamodb.Client used by DynamoDBStore.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// NewDynamoDBClient loads the default AWS configuration. A non-empty endpoint
// points the client at a local DynamoDB.
func NewDynamoDBClient(ctx context.Context, endpoint string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// sessionRecord is the DynamoDB item for one session. The table's partition key
// is session_key and expires_at is its TTL attribute.
type sessionRecord struct {
	Key       string          `dynamodbav:"session_key"`
	Items     []Item          `dynamodbav:"items"`
	Discount  *discountRecord `dynamodbav:"discount,omitempty"`
	Version   int64           `dynamodbav:"version"`
	ExpiresAt int64           `dynamodbav:"expires_at"`
}

type discountRecord struct {
	Code    string `dynamodbav:"code"`
	Percent string `dynamodbav:"percent"`
}

// DynamoDBStore keeps a whole session in one item and writes it with a
// version check, retrying when another writer got there first.
type DynamoDBStore struct {
	client    DynamoDBAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

func NewDynamoDBStore(client DynamoDBAPI, tableName string, ttl time.Duration) *DynamoDBStore {
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		now:       time.Now,
	}
}

// load returns the stored record, or a fresh one at version 0. Records past
// their TTL are treated as absent since DynamoDB deletes them lazily.
func (s *DynamoDBStore) load(ctx context.Context, key string) (*sessionRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"session_key": &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	rec := &sessionRecord{Key: key}
	if len(out.Item) == 0 {
		return rec, nil
	}
	if err := attributevalue.UnmarshalMap(out.Item, rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if rec.ExpiresAt > 0 && s.now().Unix() > rec.ExpiresAt {
		return &sessionRecord{Key: key, Version: rec.Version}, nil
	}
	return rec, nil
}

func (s *DynamoDBStore) save(ctx context.Context, rec *sessionRecord) error {
	expected := rec.Version
	rec.Version++
	rec.ExpiresAt = s.now().Add(s.ttl).Unix()

	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(session_key) OR version = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
		},
	})
	var conflict *types.ConditionalCheckFailedException
	if errors.As(err, &conflict) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to put session: %w", err)
	}
	return nil
}

// mutate runs a read-modify-write of the session record with optimistic retries.
func (s *DynamoDBStore) mutate(ctx context.Context, key string, fn func(rec *sessionRecord) error) error {
	for i := 0; i < maxUpdateAttempts; i++ {
		rec, err := s.load(ctx, key)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		err = s.save(ctx, rec)
		if errors.Is(err, ErrConflict) {
			continue
		}
		return err
	}
	return ErrConflict
}

func (s *DynamoDBStore) Items(ctx context.Context, key string) ([]Item, error) {
	rec, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	return cloneItems(rec.Items), nil
}

func (s *DynamoDBStore) UpdateItems(ctx context.Context, key string, fn func(items []Item) ([]Item, error)) error {
	return s.mutate(ctx, key, func(rec *sessionRecord) error {
		items, err := fn(cloneItems(rec.Items))
		if err != nil {
			return err
		}
		rec.Items = cloneItems(items)
		return nil
	})
}

func (s *DynamoDBStore) ClearItems(ctx context.Context, key string) error {
	return s.mutate(ctx, key, func(rec *sessionRecord) error {
		rec.Items = nil
		return nil
	})
}

func (s *DynamoDBStore) Discount(ctx context.Context, key string) (*Discount, error) {
	rec, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if rec.Discount == nil {
		return nil, nil
	}
	percent, err := decimal.NewFromString(rec.Discount.Percent)
	if err != nil {
		return nil, fmt.Errorf("invalid stored discount percent %q: %w", rec.Discount.Percent, err)
	}
	return &Discount{Code: rec.Discount.Code, Percent: percent}, nil
}

func (s *DynamoDBStore) SetDiscount(ctx context.Context, key string, d Discount) error {
	return s.mutate(ctx, key, func(rec *sessionRecord) error {
		rec.Discount = &discountRecord{Code: d.Code, Percent: d.Percent.String()}
		return nil
	})
}

func (s *DynamoDBStore) ClearDiscount(ctx context.Context, key string) error {
	return s.mutate(ctx, key, func(rec *sessionRecord) error {
		rec.Discount = nil
		return nil
	})
}
