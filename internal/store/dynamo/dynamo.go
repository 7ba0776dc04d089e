// Package dynamo implements store.Store on Amazon DynamoDB or a DynamoDB-compatible endpoint.
package dynamo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/DeafMist/diet-digest/backend/internal/keys"
	"github.com/DeafMist/diet-digest/backend/internal/store"
)

// batchSize is the BatchWriteItem request limit.
const batchSize = 25

const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// API is the subset of the DynamoDB client used by the store.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Store reads the single article table.
type Store struct {
	client API
	table  string
	schema keys.Schema
	log    *slog.Logger

	// backoff is the first delay before unprocessed items are re-sent.
	backoff time.Duration
}

// New builds a Store over table.
func New(client API, table string, schema keys.Schema, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{client: client, table: table, schema: schema, log: logger, backoff: initialBackoff}
}

// Ping checks that the table is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err != nil {
		return store.Unavailable("describe table", err)
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key keys.Key) (store.Item, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			s.schema.Table.PartitionAttr: &types.AttributeValueMemberS{Value: key.PK},
			s.schema.Table.SortAttr:      &types.AttributeValueMemberS{Value: key.SK},
		},
	})
	if err != nil {
		return nil, false, store.Unavailable("get item", err)
	}
	if len(out.Item) == 0 {
		return nil, false, nil
	}

	item, err := decode(out.Item)
	if err != nil {
		return nil, false, fmt.Errorf("decode item %s: %w", key.PK, err)
	}
	return item, true, nil
}

// Query implements store.Store. The cursor is the base64 encoded LastEvaluatedKey.
func (s *Store) Query(ctx context.Context, in store.QueryInput) (*store.Page, error) {
	spec, err := s.schema.Lookup(in.Index)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                aws.String(s.table),
		KeyConditionExpression:   aws.String("#pk = :pk"),
		ExpressionAttributeNames: map[string]string{"#pk": spec.PartitionAttr},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: in.Partition},
		},
		ScanIndexForward: aws.Bool(in.Forward),
	}
	if in.Index != "" {
		input.IndexName = aws.String(in.Index)
	}
	if in.Limit > 0 {
		input.Limit = aws.Int32(int32(in.Limit))
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, store.Unavailable("query", err)
	}

	page := &store.Page{Items: make([]store.Item, 0, len(out.Items))}
	for _, raw := range out.Items {
		item, err := decode(raw)
		if err != nil {
			s.log.Warn("skip undecodable item", slog.String("partition", in.Partition), slog.Any("err", err))
			continue
		}
		page.Items = append(page.Items, item)
	}
	if len(out.LastEvaluatedKey) > 0 {
		cursor, err := encodeCursor(out.LastEvaluatedKey)
		if err != nil {
			return nil, fmt.Errorf("encode cursor: %w", err)
		}
		page.Cursor = cursor
	}

	s.log.Debug("query",
		slog.String("index", in.Index),
		slog.String("partition", in.Partition),
		slog.Int("items", len(page.Items)),
		slog.Bool("more", page.Cursor != ""),
	)
	return page, nil
}

// PutItems writes items in batches, retrying unprocessed ones.
func (s *Store) PutItems(ctx context.Context, items []store.Item) error {
	for start := 0; start < len(items); start += batchSize {
		end := min(start+batchSize, len(items))

		requests := make([]types.WriteRequest, 0, end-start)
		for _, item := range items[start:end] {
			av, err := attributevalue.MarshalMap(map[string]any(item))
			if err != nil {
				return fmt.Errorf("marshal item %s: %w", item.String(s.schema.Table.PartitionAttr), err)
			}
			requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
		}

		if err := s.writeBatch(ctx, requests); err != nil {
			return err
		}
	}
	return nil
}

// writeBatch sends one batch and re-sends its unprocessed items with a
// doubling delay until the table accepts all of them.
func (s *Store) writeBatch(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.table: requests}
	delay := s.backoff
	for {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return store.Unavailable("batch write", err)
		}
		pending = out.UnprocessedItems
		if len(pending[s.table]) == 0 {
			return nil
		}

		s.log.Debug("unprocessed items, backing off",
			slog.Int("items", len(pending[s.table])),
			slog.Duration("delay", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return store.Unavailable("batch write", ctx.Err())
		}
		delay = min(delay*2, maxBackoff)
	}
}

func decode(raw map[string]types.AttributeValue) (store.Item, error) {
	var item map[string]any
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return nil, err
	}
	return store.Item(item), nil
}

func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	var plain map[string]any
	if err := attributevalue.UnmarshalMap(key, &plain); err != nil {
		return "", err
	}
	data, err := json.Marshal(plain)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}
