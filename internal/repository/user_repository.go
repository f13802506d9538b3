package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"github.com/ulma/ulma/internal/models"
)

var ErrUserExists = errors.New("user already exists")

// phoneSK is the sort key of the item reserving a phone number.
const phoneSK = "OWNER"

type UserRepository struct {
	client    DynamoAPI
	tableName string
	logger    *logrus.Logger
}

func NewUserRepository(client DynamoAPI, tableName string, logger *logrus.Logger) *UserRepository {
	return &UserRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

func (r *UserRepository) GetByLoginID(ctx context.Context, loginID string) (*models.User, error) {
	user := &models.User{UserID: loginID}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       key(user.GetPK(), user.GetSK()),
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to get user from DynamoDB")
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var dbUser models.User
	if err := attributevalue.UnmarshalMap(result.Item, &dbUser); err != nil {
		r.logger.WithError(err).Error("Failed to unmarshal user from DynamoDB")
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return &dbUser, nil
}

// ExistsByPhone reports whether an account already owns phoneNumber.
func (r *UserRepository) ExistsByPhone(ctx context.Context, phoneNumber string) (bool, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(r.tableName),
		Key:                  key(models.PhonePK(phoneNumber), phoneSK),
		ProjectionExpression: aws.String("PK"),
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to look up phone number")
		return false, fmt.Errorf("failed to look up phone number: %w", err)
	}
	return result.Item != nil, nil
}

// Create writes the profile and the phone reservation in one transaction, so
// neither the login id nor the phone number can be taken twice.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	item, err := attributevalue.MarshalMap(user)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal user for DynamoDB")
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: user.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: user.GetSK()}

	phoneItem := key(models.PhonePK(user.PhoneNumber), phoneSK)
	phoneItem["user_id"] = &types.AttributeValueMemberS{Value: user.UserID}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                phoneItem,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrUserExists
		}
		r.logger.WithError(err).Error("Failed to create user in DynamoDB")
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}
