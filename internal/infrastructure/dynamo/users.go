package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-whatsapp-otp/internal/domain"
	"github.com/go-whatsapp-otp/internal/pkg/id"
)

// UserRepo provides typed DynamoDB operations for the users table, keyed
// by standardized phone number.
type UserRepo struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewUserRepo(client API, tableName string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName, now: time.Now}
}

func (r *UserRepo) Get(ctx context.Context, phoneNumber string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldPhoneNumber, phoneNumber),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user %s: %w", phoneNumber, domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

// RecordLoginAttempt creates the user on first sight (role user, status
// pending) and stamps the attempt. Existing role and status are kept.
func (r *UserRepo) RecordLoginAttempt(ctx context.Context, a domain.LoginAttempt) (*domain.User, error) {
	at := a.At.UTC()
	set := map[string]interface{}{
		fieldLastLoginAttempt: at,
		fieldUpdatedAt:        at,
	}
	if a.DeviceID != "" {
		set[fieldDeviceID] = a.DeviceID
	}
	if a.IPAddress != "" {
		set[fieldIPAddress] = a.IPAddress
	}
	return r.upsert(ctx, a.PhoneNumber, set, at)
}

// RecordLogin stamps a successful verification, creating the user if the
// login attempt was never recorded.
func (r *UserRepo) RecordLogin(ctx context.Context, phoneNumber string) (*domain.User, error) {
	at := r.now().UTC()
	return r.upsert(ctx, phoneNumber, map[string]interface{}{
		fieldLastLogin: at,
		fieldUpdatedAt: at,
	}, at)
}

func (r *UserRepo) upsert(ctx context.Context, phoneNumber string, set map[string]interface{}, at time.Time) (*domain.User, error) {
	ue, err := buildUpsertExpr(set, map[string]interface{}{
		fieldUserID:    id.NewAt(at),
		fieldRole:      domain.RoleUser,
		fieldStatus:    domain.StatusPending,
		fieldCreatedAt: at,
	})
	if err != nil {
		return nil, err
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldPhoneNumber, phoneNumber),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return decodeUser(out.Attributes)
}

// UpdateRole sets the role of an existing user.
func (r *UserRepo) UpdateRole(ctx context.Context, phoneNumber string, role domain.Role) (*domain.User, error) {
	return r.update(ctx, phoneNumber, map[string]interface{}{fieldRole: role})
}

// UpdateStatus sets the status of an existing user.
func (r *UserRepo) UpdateStatus(ctx context.Context, phoneNumber string, status domain.Status) (*domain.User, error) {
	return r.update(ctx, phoneNumber, map[string]interface{}{fieldStatus: status})
}

func (r *UserRepo) update(ctx context.Context, phoneNumber string, updates map[string]interface{}) (*domain.User, error) {
	updates[fieldUpdatedAt] = r.now().UTC()
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return nil, err
	}
	ue.Names["#pk"] = fieldPhoneNumber
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldPhoneNumber, phoneNumber),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, fmt.Errorf("user %s: %w", phoneNumber, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return decodeUser(out.Attributes)
}

func decodeUser(item map[string]types.AttributeValue) (*domain.User, error) {
	var u domain.User
	if err := attributevalue.UnmarshalMap(item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}
