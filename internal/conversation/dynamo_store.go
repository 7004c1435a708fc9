package conversation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

type dynamoItem struct {
	Phone           string `dynamodbav:"phone"`
	EventID         string `dynamodbav:"eventId"`
	PatientName     string `dynamodbav:"patientName"`
	AppointmentTime string `dynamodbav:"appointmentTime"`
	OriginalPhone   string `dynamodbav:"originalPhone"`
	CreatedAt       string `dynamodbav:"createdAt"`
	CreatedAtEpoch  int64  `dynamodbav:"createdAtEpoch"`
	// ExpiresAt feeds the table's TTL so abandoned rows vanish even if the
	// janitor never runs.
	ExpiresAt int64 `dynamodbav:"expiresAt,omitempty"`
}

func (it dynamoItem) record() Record {
	created, _ := time.Parse(time.RFC3339Nano, it.CreatedAt)
	return Record{
		Phone:           it.Phone,
		EventID:         it.EventID,
		PatientName:     it.PatientName,
		AppointmentTime: it.AppointmentTime,
		OriginalPhone:   it.OriginalPhone,
		CreatedAt:       created,
	}
}

// DynamoStore persists records in a DynamoDB table keyed by "phone".
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		ttl:       DefaultRetention + 24*time.Hour,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source used for CreatedAt and eviction.
func (s *DynamoStore) WithClock(now func() time.Time) *DynamoStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *DynamoStore) Put(ctx context.Context, phone string, rec Record) error {
	rec, err := prepare(phone, rec, s.now())
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(dynamoItem{
		Phone:           rec.Phone,
		EventID:         rec.EventID,
		PatientName:     rec.PatientName,
		AppointmentTime: rec.AppointmentTime,
		OriginalPhone:   rec.OriginalPhone,
		CreatedAt:       rec.CreatedAt.Format(time.RFC3339Nano),
		CreatedAtEpoch:  rec.CreatedAt.Unix(),
		ExpiresAt:       rec.CreatedAt.Add(s.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("conversation: marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("conversation: put item: %w", err)
	}
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, phone string) (*Record, error) {
	key, err := Key(phone)
	if err != nil {
		return nil, nil
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            phoneKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("conversation: unmarshal item: %w", err)
	}
	rec := item.record()
	return &rec, nil
}

func (s *DynamoStore) Delete(ctx context.Context, phone string) error {
	key, err := Key(phone)
	if err != nil {
		return nil
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       phoneKey(key),
	})
	if err != nil {
		return fmt.Errorf("conversation: delete item: %w", err)
	}
	return nil
}

func (s *DynamoStore) EvictOlderThan(ctx context.Context, age time.Duration) (int, error) {
	cutoff := s.now().Add(-age).Unix()
	items, err := s.scan(ctx, &dynamodb.ScanInput{
		TableName:                aws.String(s.tableName),
		FilterExpression:         aws.String("#created < :cutoff"),
		ExpressionAttributeNames: map[string]string{"#created": "createdAtEpoch"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(cutoff, 10)},
		},
	})
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, item := range items {
		if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key:       phoneKey(item.Phone),
		}); err != nil {
			s.logger.Warn("conversation: evict item failed", "phone", item.Phone, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func (s *DynamoStore) List(ctx context.Context) ([]Record, error) {
	items, err := s.scan(ctx, &dynamodb.ScanInput{TableName: aws.String(s.tableName)})
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		out = append(out, item.record())
	}
	sortRecords(out)
	return out, nil
}

func (s *DynamoStore) scan(ctx context.Context, input *dynamodb.ScanInput) ([]dynamoItem, error) {
	var items []dynamoItem
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("conversation: scan: %w", err)
		}
		var page []dynamoItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("conversation: unmarshal scan page: %w", err)
		}
		items = append(items, page...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func phoneKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"phone": &types.AttributeValueMemberS{Value: key},
	}
}
