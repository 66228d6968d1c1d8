// Package dynamo provides uniform get/query/put/update/delete access to the
// DynamoDB tables backing the review workflow. Items cross the boundary as
// map[string]any so callers never touch attribute values directly.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tapstamp/shop-review-backend/internal/config"
	"github.com/tapstamp/shop-review-backend/internal/monitoring"
)

// ErrNotFound is returned when an item does not exist
var ErrNotFound = errors.New("item not found")

// API is the subset of the DynamoDB client the adapter uses
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// Store wraps a DynamoDB client with map-based table operations
type Store struct {
	client API
}

// New creates a Store around an existing client
func New(client API) *Store {
	return &Store{client: client}
}

// NewClient builds a DynamoDB client from application configuration
func NewClient(ctx context.Context, cfg *config.AWSConfig) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// Get retrieves a single item by key, returning ErrNotFound if missing
func (s *Store) Get(ctx context.Context, table string, key map[string]any) (map[string]any, error) {
	start := time.Now()
	defer func() { monitoring.RecordDynamoRequest("get", table, time.Since(start)) }()

	keyAttr, err := attributevalue.MarshalMap(key)
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}

	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       keyAttr,
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", table, err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	return unmarshalItem(result.Item)
}

// Put writes an item, overwriting any existing item with the same key
func (s *Store) Put(ctx context.Context, table string, item map[string]any) error {
	start := time.Now()
	defer func() { monitoring.RecordDynamoRequest("put", table, time.Since(start)) }()

	itemAttr, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      itemAttr,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", table, err)
	}
	return nil
}

// Update applies a SET update of the given fields to the item with the key
func (s *Store) Update(ctx context.Context, table string, key map[string]any, fields map[string]any) error {
	start := time.Now()
	defer func() { monitoring.RecordDynamoRequest("update", table, time.Since(start)) }()

	if len(fields) == 0 {
		return nil
	}

	keyAttr, err := attributevalue.MarshalMap(key)
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}

	// Deterministic expression ordering keeps requests reproducible in tests
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	var setClauses []string
	exprNames := make(map[string]string, len(fields))
	exprValues := make(map[string]types.AttributeValue, len(fields))
	for i, k := range names {
		nameKey := fmt.Sprintf("#attr%d", i)
		valueKey := fmt.Sprintf(":val%d", i)
		av, err := attributevalue.Marshal(fields[k])
		if err != nil {
			return fmt.Errorf("marshal field %s: %w", k, err)
		}
		exprNames[nameKey] = k
		exprValues[valueKey] = av
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", nameKey, valueKey))
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       keyAttr,
		UpdateExpression:          aws.String("SET " + strings.Join(setClauses, ", ")),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

// Delete removes an item by key. Deleting a missing item is not an error.
func (s *Store) Delete(ctx context.Context, table string, key map[string]any) error {
	start := time.Now()
	defer func() { monitoring.RecordDynamoRequest("delete", table, time.Since(start)) }()

	keyAttr, err := attributevalue.MarshalMap(key)
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}

	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key:       keyAttr,
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, err)
	}
	return nil
}

// Query returns all items sharing a partition key value, ascending by the
// table's sort key, following pagination to the end.
func (s *Store) Query(ctx context.Context, table, pkName string, pkValue any) ([]map[string]any, error) {
	start := time.Now()
	defer func() { monitoring.RecordDynamoRequest("query", table, time.Since(start)) }()

	pkAttr, err := attributevalue.Marshal(pkValue)
	if err != nil {
		return nil, fmt.Errorf("marshal partition key: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                aws.String(table),
		KeyConditionExpression:   aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{"#pk": pkName},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": pkAttr,
		},
		ScanIndexForward: aws.Bool(true),
	}

	var items []map[string]any
	for {
		page, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", table, err)
		}
		for _, raw := range page.Items {
			item, err := unmarshalItem(raw)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if page.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}

	return items, nil
}

// Scan returns every item in a table, following pagination to the end
func (s *Store) Scan(ctx context.Context, table string) ([]map[string]any, error) {
	start := time.Now()
	defer func() { monitoring.RecordDynamoRequest("scan", table, time.Since(start)) }()

	input := &dynamodb.ScanInput{TableName: aws.String(table)}

	var items []map[string]any
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		for _, raw := range page.Items {
			item, err := unmarshalItem(raw)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if page.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}

	return items, nil
}

func unmarshalItem(raw map[string]types.AttributeValue) (map[string]any, error) {
	var item map[string]any
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return item, nil
}
