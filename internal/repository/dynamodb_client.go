package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"helpdesk-bot/internal/domain"
)

const (
	pkPrefixUser = "USER#"
	skStats      = "STATS#"
	skPrefixTurn = "TURN#"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Client wraps a DynamoDB table holding per-user stats snapshots and the
// append-only turn log. One table, keyed USER#<id> / STATS# or TURN#<ts>.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func userPK(userID string) string {
	return pkPrefixUser + userID
}

func turnSK(ts time.Time) string {
	return skPrefixTurn + ts.UTC().Format(time.RFC3339Nano)
}

// SaveStats writes or replaces the stats snapshot for a user.
func (c *Client) SaveStats(ctx context.Context, stats domain.UserStats) error {
	if stats.UserID == "" {
		return errors.New("repository: SaveStats: user id is required")
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      statsItem(stats),
	})
	if err != nil {
		return fmt.Errorf("repository: SaveStats: %w", err)
	}
	return nil
}

// GetStats reads the stats snapshot for a user. A missing item yields a zero
// snapshot and found=false.
func (c *Client) GetStats(ctx context.Context, userID string) (domain.UserStats, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: skStats},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.UserStats{}, false, fmt.Errorf("repository: GetStats: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.UserStats{}, false, nil
	}
	stats, err := itemToStats(out.Item)
	if err != nil {
		return domain.UserStats{}, false, fmt.Errorf("repository: GetStats decode: %w", err)
	}
	return stats, true, nil
}

// LoadAllStats scans every stats snapshot, following pagination. Used once at
// startup to rehydrate the ledger.
func (c *Client) LoadAllStats(ctx context.Context) ([]domain.UserStats, error) {
	var (
		all     []domain.UserStats
		lastKey map[string]types.AttributeValue
	)
	for {
		out, err := c.api.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(c.tableName),
			FilterExpression: aws.String("SK = :stats"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":stats": &types.AttributeValueMemberS{Value: skStats},
			},
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, fmt.Errorf("repository: LoadAllStats scan: %w", err)
		}
		for _, item := range out.Items {
			stats, err := itemToStats(item)
			if err != nil {
				return nil, fmt.Errorf("repository: LoadAllStats decode: %w", err)
			}
			all = append(all, stats)
		}
		if len(out.LastEvaluatedKey) == 0 {
			return all, nil
		}
		lastKey = out.LastEvaluatedKey
	}
}

// AppendTurn persists one export record. Append-only; the sort key carries
// the turn timestamp so records read back in order.
func (c *Client) AppendTurn(ctx context.Context, rec domain.ExportRecord) error {
	if rec.UserID == "" {
		return errors.New("repository: AppendTurn: user id is required")
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      turnItem(rec, ts),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendTurn: %w", err)
	}
	return nil
}

func statsItem(stats domain.UserStats) map[string]types.AttributeValue {
	tagAttrs := make(map[string]types.AttributeValue, len(stats.TagCounts))
	for tag, count := range stats.TagCounts {
		tagAttrs[tag] = &types.AttributeValueMemberN{Value: strconv.Itoa(count)}
	}
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: userPK(stats.UserID)},
		"SK":           &types.AttributeValueMemberS{Value: skStats},
		"userId":       &types.AttributeValueMemberS{Value: stats.UserID},
		"messageCount": &types.AttributeValueMemberN{Value: strconv.Itoa(stats.MessageCount)},
		"tokensSpent":  &types.AttributeValueMemberN{Value: strconv.Itoa(stats.TokensSpent)},
		"tagCounts":    &types.AttributeValueMemberM{Value: tagAttrs},
	}
}

func turnItem(rec domain.ExportRecord, ts time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":     &types.AttributeValueMemberS{Value: userPK(rec.UserID)},
		"SK":     &types.AttributeValueMemberS{Value: turnSK(ts)},
		"id":     &types.AttributeValueMemberS{Value: rec.ID},
		"userId": &types.AttributeValueMemberS{Value: rec.UserID},
		"input":  &types.AttributeValueMemberS{Value: rec.Input},
		"reply":  &types.AttributeValueMemberS{Value: rec.Reply},
		"tokens": &types.AttributeValueMemberN{Value: strconv.Itoa(rec.Tokens)},
		"ts":     &types.AttributeValueMemberS{Value: ts.UTC().Format(time.RFC3339)},
	}
}

func itemToStats(item map[string]types.AttributeValue) (domain.UserStats, error) {
	userID, err := strAttr(item, "userId")
	if err != nil {
		return domain.UserStats{}, err
	}
	messageCount, err := intAttr(item, "messageCount")
	if err != nil {
		return domain.UserStats{}, err
	}
	tokensSpent, err := intAttr(item, "tokensSpent")
	if err != nil {
		return domain.UserStats{}, err
	}

	tagCounts := make(map[string]int)
	if raw, ok := item["tagCounts"]; ok {
		m, ok := raw.(*types.AttributeValueMemberM)
		if !ok {
			return domain.UserStats{}, errors.New(`repository: attribute "tagCounts" is not a map`)
		}
		for tag, v := range m.Value {
			n, ok := v.(*types.AttributeValueMemberN)
			if !ok {
				return domain.UserStats{}, fmt.Errorf("repository: tag count %q is not a number", tag)
			}
			count, err := strconv.Atoi(n.Value)
			if err != nil {
				return domain.UserStats{}, fmt.Errorf("repository: parse tag count %q: %w", tag, err)
			}
			tagCounts[tag] = count
		}
	}

	return domain.UserStats{
		UserID:       userID,
		MessageCount: messageCount,
		TagCounts:    tagCounts,
		TokensSpent:  tokensSpent,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
