package dynamo

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/dmitrymomot/taskengine/pkg/cache"
)

const (
	attrKey   = "key"
	attrTTL   = "expires_at" // epoch seconds, read by DynamoDB TTL
	attrExpMs = "expires_ms" // epoch millis, used for precise expiry checks

	batchGetLimit   = 100
	batchWriteLimit = 25
	maxBatchRetries = 5
)

type item struct {
	Key       string `dynamodbav:"key"`
	Value     []byte `dynamodbav:"value,omitempty"`
	ExpiresAt int64  `dynamodbav:"expires_at,omitempty"`
	ExpiresMs int64  `dynamodbav:"expires_ms,omitempty"`
}

func (it item) expired(now time.Time) bool {
	return it.ExpiresMs != 0 && now.UnixMilli() >= it.ExpiresMs
}

// Storage is a cache backend on a DynamoDB table keyed by "key".
// DynamoDB removes expired items lazily, so reads check expires_ms themselves.
type Storage struct {
	client *dynamodb.Client
	table  string
	now    func() time.Time
}

func NewStorage(client *dynamodb.Client, table string) *Storage {
	return &Storage{client: client, table: table, now: time.Now}
}

func (s *Storage) Name() string { return "dynamo" }

func (s *Storage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	it, ok, err := s.getItem(ctx, key, s.now())
	if err != nil || !ok {
		return nil, false, err
	}
	return it.Value, true, nil
}

func (s *Storage) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	now := s.now()
	it, ok, err := s.getItem(ctx, key, now)
	if err != nil || !ok {
		return 0, false, err
	}
	if it.ExpiresMs == 0 {
		return 0, true, nil
	}
	return time.UnixMilli(it.ExpiresMs).Sub(now), true, nil
}

// getItem reads one item consistently and hides it once expired.
func (s *Storage) getItem(ctx context.Context, key string, now time.Time) (item, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyAttr(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return item{}, false, err
	}
	if out.Item == nil {
		return item{}, false, nil
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return item{}, false, err
	}
	if it.expired(now) {
		return item{}, false, nil
	}
	return it, true, nil
}

// GetMulti reads keys with BatchGetItem in chunks of 100, retrying unprocessed keys.
func (s *Storage) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	now := s.now()

	for chunk := range slices.Chunk(keys, batchGetLimit) {
		request := map[string]types.KeysAndAttributes{
			s.table: {Keys: keyAttrs(chunk), ConsistentRead: aws.Bool(true)},
		}
		for attempt := 0; len(request) > 0; attempt++ {
			if attempt == maxBatchRetries {
				return nil, ErrUnprocessed
			}
			res, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, err
			}
			var items []item
			if err := attributevalue.UnmarshalListOfMaps(res.Responses[s.table], &items); err != nil {
				return nil, err
			}
			for _, it := range items {
				if !it.expired(now) {
					out[it.Key] = it.Value
				}
			}
			request = res.UnprocessedKeys
		}
	}
	return out, nil
}

func (s *Storage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	av, err := attributevalue.MarshalMap(s.newItem(key, value, ttl))
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	return err
}

// SetNX writes only when the key is absent or its ttl has run out.
func (s *Storage) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	av, err := attributevalue.MarshalMap(s.newItem(key, value, ttl))
	if err != nil {
		return false, err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#k) OR (attribute_exists(#exp) AND #exp <= :now)"),
		ExpressionAttributeNames: map[string]string{
			"#k":   attrKey,
			"#exp": attrExpMs,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().UnixMilli(), 10)},
		},
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       keyAttr(key),
	})
	return err
}

func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// Keys scans the table filtered by the literal prefix of pattern.
func (s *Storage) Keys(ctx context.Context, pattern string) ([]string, error) {
	items, err := s.scan(ctx, cache.PatternPrefix(pattern), false)
	if err != nil {
		return nil, err
	}

	now := s.now()
	keys := make([]string, 0, len(items))
	for _, it := range items {
		if !it.expired(now) && cache.MatchPattern(pattern, it.Key) {
			keys = append(keys, it.Key)
		}
	}
	return keys, nil
}

func (s *Storage) Flush(ctx context.Context) error {
	items, err := s.scan(ctx, "", false)
	if err != nil {
		return err
	}
	_, err = s.deleteAll(ctx, items)
	return err
}

func (s *Storage) PurgeExpired(ctx context.Context) (int, error) {
	items, err := s.scan(ctx, "", true)
	if err != nil {
		return 0, err
	}
	return s.deleteAll(ctx, items)
}

// scan pages through the table projecting key and expiry only.
func (s *Storage) scan(ctx context.Context, prefix string, onlyExpired bool) ([]item, error) {
	input := &dynamodb.ScanInput{
		TableName:                aws.String(s.table),
		ProjectionExpression:     aws.String("#k, #exp"),
		ExpressionAttributeNames: map[string]string{"#k": attrKey, "#exp": attrExpMs},
	}

	var (
		filters []string
		values  = map[string]types.AttributeValue{}
	)
	if prefix != "" {
		filters = append(filters, "begins_with(#k, :prefix)")
		values[":prefix"] = &types.AttributeValueMemberS{Value: prefix}
	}
	if onlyExpired {
		filters = append(filters, "(attribute_exists(#exp) AND #exp <= :now)")
		values[":now"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().UnixMilli(), 10)}
	}
	if len(filters) > 0 {
		input.FilterExpression = aws.String(strings.Join(filters, " AND "))
		input.ExpressionAttributeValues = values
	}

	var items []item
	pager := dynamodb.NewScanPaginator(s.client, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []item
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		items = append(items, batch...)
	}
	return items, nil
}

func (s *Storage) deleteAll(ctx context.Context, items []item) (int, error) {
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.Key
	}

	deleted := 0
	for chunk := range slices.Chunk(keys, batchWriteLimit) {
		requests := make([]types.WriteRequest, len(chunk))
		for i, k := range chunk {
			requests[i] = types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: keyAttr(k)}}
		}

		pending := map[string][]types.WriteRequest{s.table: requests}
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt == maxBatchRetries {
				return deleted, ErrUnprocessed
			}
			res, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
			if err != nil {
				return deleted, err
			}
			pending = res.UnprocessedItems
		}
		deleted += len(chunk)
	}
	return deleted, nil
}

func (s *Storage) newItem(key string, value []byte, ttl time.Duration) item {
	it := item{Key: key, Value: value}
	if ttl > 0 {
		exp := s.now().Add(ttl)
		it.ExpiresAt = exp.Unix() + 1
		it.ExpiresMs = exp.UnixMilli()
	}
	return it
}

func keyAttr(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{attrKey: &types.AttributeValueMemberS{Value: key}}
}

func keyAttrs(keys []string) []map[string]types.AttributeValue {
	out := make([]map[string]types.AttributeValue, len(keys))
	for i, k := range keys {
		out[i] = keyAttr(k)
	}
	return out
}
