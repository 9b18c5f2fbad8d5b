package ratelimit

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
)

type dynamoAPI interface {
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

type windowItem struct {
	Key       string `dynamodbav:"windowKey"`
	Count     int    `dynamodbav:"hits"`
	ExpiresAt int64  `dynamodbav:"expiresAt"`
}

// DynamoLimiter keeps one item per customer per aligned window. The counter is
// bumped by a conditional UpdateItem so concurrent writers never exceed Max;
// the expiresAt attribute lets DynamoDB TTL reap old windows.
type DynamoLimiter struct {
	client    dynamoAPI
	tableName string
	policy    Policy
}

// NewDynamoLimiter builds a limiter on a DynamoDB table keyed by windowKey.
func NewDynamoLimiter(client dynamoAPI, tableName string, policy Policy) *DynamoLimiter {
	if client == nil {
		panic("ratelimit: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("ratelimit: table name cannot be empty")
	}
	return &DynamoLimiter{client: client, tableName: tableName, policy: policy.normalized()}
}

// Allow implements Limiter.
func (l *DynamoLimiter) Allow(ctx context.Context, customerID string, now time.Time) (bool, error) {
	start := now.UTC().Truncate(l.policy.Window)
	key := customerID + "#" + strconv.FormatInt(start.Unix(), 10)
	expires := start.Add(2 * l.policy.Window).Unix()

	out, err := l.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(l.tableName),
		Key: map[string]types.AttributeValue{
			"windowKey": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression:    aws.String("ADD #hits :one SET #expires = if_not_exists(#expires, :expires)"),
		ConditionExpression: aws.String("attribute_not_exists(#hits) OR #hits < :max"),
		ExpressionAttributeNames: map[string]string{
			"#hits":    "hits",
			"#expires": "expiresAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one":     &types.AttributeValueMemberN{Value: "1"},
			":max":     &types.AttributeValueMemberN{Value: strconv.Itoa(l.policy.Max)},
			":expires": &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("ratelimit: dynamodb update: %w", err)
	}

	var item windowItem
	if err := attributevalue.UnmarshalMap(out.Attributes, &item); err != nil {
		return false, fmt.Errorf("ratelimit: decode window: %w", err)
	}
	return item.Count <= l.policy.Max, nil
}
