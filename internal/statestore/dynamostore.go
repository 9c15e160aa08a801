package statestore

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/turphai/boomwatch/internal/apperrors"
	"github.com/turphai/boomwatch/internal/domain"
)

// dynamoRecord is the wide-column row shape spec §6 mandates: partition key
// "{dataSource}#{metricName}", sort key an RFC-3339 UTC timestamp, value
// blob the MetricPoint itself, plus a TTL attribute the table respects.
type dynamoRecord struct {
	PK        string `dynamodbav:"pk"`
	SK        string `dynamodbav:"sk"`
	TTL       int64  `dynamodbav:"ttl"`
	Valid     bool   `dynamodbav:"valid"`
	Point     domain.MetricPoint `dynamodbav:"point"`
}

// DynamoStore is the production State Store binding (spec §6: "managed KV
// with composite key (source#metric, timestamp) in production").
type DynamoStore struct {
	client *dynamodb.Client
	table  string
	ttl    time.Duration
	now    func() time.Time
}

func NewDynamoStore(client *dynamodb.Client, table string) *DynamoStore {
	return &DynamoStore{
		client: client,
		table:  table,
		ttl:    DefaultTTL,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *DynamoStore) Put(ctx context.Context, point domain.MetricPoint) error {
	if existing, err := s.findSameDayChecksum(ctx, point); err != nil {
		return err
	} else if existing {
		return nil
	}

	record := dynamoRecord{
		PK:    point.Key().String(),
		SK:    point.Timestamp.UTC().Format(time.RFC3339Nano),
		TTL:   point.Timestamp.UTC().Add(s.ttl).Unix(),
		Valid: point.ValidationStatus == domain.StatusValid,
		Point: point,
	}
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindStateStore, "dynamostore", "marshal record")
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.KindStateStore, "dynamostore", "put item")
	}
	return nil
}

func (s *DynamoStore) findSameDayChecksum(ctx context.Context, point domain.MetricPoint) (bool, error) {
	dayStart := time.Date(point.Timestamp.Year(), point.Timestamp.Month(), point.Timestamp.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)
	pts, err := s.GetRange(ctx, point.Key(), dayStart, dayEnd)
	if err != nil {
		return false, err
	}
	for _, p := range pts {
		if p.Checksum == point.Checksum {
			return true, nil
		}
	}
	return false, nil
}

func (s *DynamoStore) GetLatest(ctx context.Context, key domain.Key) (*domain.MetricPoint, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: key.String()},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindStateStore, "dynamostore", "query latest")
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var record dynamoRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &record); err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindStateStore, "dynamostore", "unmarshal record")
	}
	now := s.now()
	if now.After(record.Point.Timestamp.Add(s.ttl)) {
		return nil, nil
	}
	return &record.Point, nil
}

func (s *DynamoStore) GetRange(ctx context.Context, key domain.Key, from, to time.Time) ([]domain.MetricPoint, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("pk = :pk AND sk BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: key.String()},
			":from": &types.AttributeValueMemberS{Value: from.UTC().Format(time.RFC3339Nano)},
			":to":   &types.AttributeValueMemberS{Value: to.UTC().Format(time.RFC3339Nano)},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.KindStateStore, "dynamostore", "query range")
	}

	now := s.now()
	points := make([]domain.MetricPoint, 0, len(out.Items))
	for _, item := range out.Items {
		var record dynamoRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindStateStore, "dynamostore", "unmarshal record")
		}
		if now.After(record.Point.Timestamp.Add(s.ttl)) {
			continue
		}
		points = append(points, record.Point)
	}
	return points, nil
}

// lastKnownGoodScanLimit caps how many pages GetLastKnownGood walks backward
// before giving up; a metric with no valid point in this many recent pages
// has bigger problems than a slow fallback lookup.
const lastKnownGoodScanLimit = 50

func (s *DynamoStore) GetLastKnownGood(ctx context.Context, key domain.Key) (*domain.MetricPoint, error) {
	var exclusiveStartKey map[string]types.AttributeValue
	for page := 0; page < lastKnownGoodScanLimit; page++ {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: key.String()},
			},
			ScanIndexForward:  aws.Bool(false),
			ExclusiveStartKey: exclusiveStartKey,
		})
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.KindStateStore, "dynamostore", "query last-known-good")
		}
		for _, item := range out.Items {
			var record dynamoRecord
			if err := attributevalue.UnmarshalMap(item, &record); err != nil {
				return nil, apperrors.Wrap(err, apperrors.KindStateStore, "dynamostore", "unmarshal record")
			}
			if record.Valid {
				return &record.Point, nil // bypasses normal TTL, per spec §4.5
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		exclusiveStartKey = out.LastEvaluatedKey
	}
	return nil, nil
}
