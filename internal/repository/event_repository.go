package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/ulma/ulma/internal/models"
)

var ErrParticipationExists = errors.New("participation already exists")

const (
	counterPK     = "COUNTER"
	metadataSK    = "METADATA"
	guestSKPrefix = "GUEST#"
)

type EventRepository struct {
	client    DynamoAPI
	tableName string
	logger    *logrus.Logger
}

func NewEventRepository(client DynamoAPI, tableName string, logger *logrus.Logger) *EventRepository {
	return &EventRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// NextID atomically increments the named counter and returns the new value.
func (r *EventRepository) NextID(ctx context.Context, name string) (int64, error) {
	return nextID(ctx, r.client, r.tableName, name)
}

func nextID(ctx context.Context, client DynamoAPI, tableName, name string) (int64, error) {
	result, err := client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(tableName),
		Key:                       key(counterPK, name),
		UpdateExpression:          aws.String("ADD #value :one"),
		ExpressionAttributeNames:  map[string]string{"#value": "value"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":one": &types.AttributeValueMemberN{Value: "1"}},
		ReturnValues:              types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s counter: %w", name, err)
	}

	attr, ok := result.Attributes["value"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("counter %s returned no value", name)
	}
	return strconv.ParseInt(attr.Value, 10, 64)
}

func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	id, err := r.NextID(ctx, "EVENT")
	if err != nil {
		r.logger.WithError(err).Error("Failed to allocate event id")
		return err
	}
	event.EventID = id
	event.CreatedAt = time.Now()

	item, err := attributevalue.MarshalMap(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: models.EventPK(id)}
	item["SK"] = &types.AttributeValueMemberS{Value: metadataSK}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		r.logger.WithError(err).WithField("event_id", id).Error("Failed to create event in DynamoDB")
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// Get returns the event, or nil when it does not exist.
func (r *EventRepository) Get(ctx context.Context, eventID int64) (*models.Event, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       key(models.EventPK(eventID), metadataSK),
	})
	if err != nil {
		r.logger.WithError(err).WithField("event_id", eventID).Error("Failed to get event from DynamoDB")
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var event models.Event
	if err := attributevalue.UnmarshalMap(result.Item, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &event, nil
}

// AddParticipation records a guest's amount at an event. A guest can be
// recorded once per event.
func (r *EventRepository) AddParticipation(ctx context.Context, eventID int64, record models.GuestRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal participation: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: models.EventPK(eventID)}
	item["SK"] = &types.AttributeValueMemberS{Value: models.GuestSK(record.GuestID)}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(SK)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrParticipationExists
		}
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_id": eventID,
			"guest_id": record.GuestID,
		}).Error("Failed to store participation")
		return fmt.Errorf("failed to store participation: %w", err)
	}
	return nil
}

// Participants returns one page of the event's guests, ordered by guest id.
// Pages start at 1.
func (r *EventRepository) Participants(ctx context.Context, eventID int64, page, size int) (*models.GuestPage, error) {
	var all []models.GuestRecord
	var startKey map[string]types.AttributeValue

	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: models.EventPK(eventID)},
				":prefix": &types.AttributeValueMemberS{Value: guestSKPrefix},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			r.logger.WithError(err).WithField("event_id", eventID).Error("Failed to query participants")
			return nil, fmt.Errorf("failed to query participants: %w", err)
		}

		var records []models.GuestRecord
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &records); err != nil {
			return nil, fmt.Errorf("failed to unmarshal participants: %w", err)
		}
		all = append(all, records...)

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return paginate(all, page, size), nil
}

func paginate(all []models.GuestRecord, page, size int) *models.GuestPage {
	total := len(all)
	out := &models.GuestPage{
		Data:       []models.GuestRecord{},
		Page:       page,
		TotalItems: total,
		TotalPages: (total + size - 1) / size,
	}

	offset := (page - 1) * size
	if offset >= total {
		return out
	}
	end := offset + size
	if end > total {
		end = total
	}
	out.Data = all[offset:end]
	return out
}
