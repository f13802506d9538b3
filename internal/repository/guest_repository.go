package repository

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/ulma/ulma/internal/models"
)

const contactSKPrefix = "CONTACT#"

// GuestRepository stores the contacts each user registers guests from. They
// live under the owner's partition.
type GuestRepository struct {
	client    DynamoAPI
	tableName string
	logger    *logrus.Logger
}

func NewGuestRepository(client DynamoAPI, tableName string, logger *logrus.Logger) *GuestRepository {
	return &GuestRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func contactKey(ownerID string, guestID int64) map[string]types.AttributeValue {
	owner := &models.User{UserID: ownerID}
	return key(owner.GetPK(), models.ContactSK(guestID))
}

func (r *GuestRepository) Create(ctx context.Context, contact *models.Contact) error {
	id, err := nextID(ctx, r.client, r.tableName, "GUEST")
	if err != nil {
		r.logger.WithError(err).Error("Failed to allocate guest id")
		return err
	}
	contact.GuestID = id

	item, err := attributevalue.MarshalMap(contact)
	if err != nil {
		return fmt.Errorf("failed to marshal contact: %w", err)
	}
	for k, v := range contactKey(contact.OwnerID, id) {
		item[k] = v
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	}); err != nil {
		r.logger.WithError(err).WithField("guest_id", id).Error("Failed to create contact in DynamoDB")
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// Get returns ownerID's contact guestID, or nil when there is none.
func (r *GuestRepository) Get(ctx context.Context, ownerID string, guestID int64) (*models.Contact, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       contactKey(ownerID, guestID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var contact models.Contact
	if err := attributevalue.UnmarshalMap(result.Item, &contact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contact: %w", err)
	}
	return &contact, nil
}

// FindByName returns ownerID's contacts whose name contains name.
func (r *GuestRepository) FindByName(ctx context.Context, ownerID, name string) ([]models.Contact, error) {
	owner := &models.User{UserID: ownerID}
	contacts := []models.Contact{}
	var startKey map[string]types.AttributeValue

	for {
		result, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(r.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			FilterExpression:       aws.String("contains(#name, :name)"),
			ExpressionAttributeNames: map[string]string{
				"#name": "name",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: owner.GetPK()},
				":prefix": &types.AttributeValueMemberS{Value: contactSKPrefix},
				":name":   &types.AttributeValueMemberS{Value: name},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			r.logger.WithError(err).WithField("name", name).Error("Failed to search contacts")
			return nil, fmt.Errorf("failed to search contacts: %w", err)
		}

		var page []models.Contact
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &page); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contacts: %w", err)
		}
		contacts = append(contacts, page...)

		if len(result.LastEvaluatedKey) == 0 {
			return contacts, nil
		}
		startKey = result.LastEvaluatedKey
	}
}
