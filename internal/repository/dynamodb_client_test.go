package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"helpdesk-bot/internal/domain"
)

type mockAPI struct {
	putInputs []*dynamodb.PutItemInput
	putErr    error

	getOutput *dynamodb.GetItemOutput
	getErr    error

	scanOutputs []*dynamodb.ScanOutput
	scanCalls   int
	scanErr     error
}

func (m *mockAPI) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInputs = append(m.putInputs, in)
	return &dynamodb.PutItemOutput{}, m.putErr
}

func (m *mockAPI) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return m.getOutput, m.getErr
}

func (m *mockAPI) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	out := m.scanOutputs[m.scanCalls]
	m.scanCalls++
	return out, nil
}

func sampleStats() domain.UserStats {
	return domain.UserStats{
		UserID:       "42",
		MessageCount: 3,
		TagCounts:    map[string]int{"billing": 2, "tech": 1},
		TokensSpent:  150,
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "table")
	require.Error(t, err)

	_, err = New(&mockAPI{}, "  ")
	require.Error(t, err)
}

func TestSaveStats_WritesSnapshotItem(t *testing.T) {
	api := &mockAPI{}
	c, err := New(api, "helpdesk-state")
	require.NoError(t, err)

	require.NoError(t, c.SaveStats(context.Background(), sampleStats()))
	require.Len(t, api.putInputs, 1)

	item := api.putInputs[0].Item
	require.Equal(t, "USER#42", item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "STATS#", item["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "3", item["messageCount"].(*types.AttributeValueMemberN).Value)
	require.Equal(t, "150", item["tokensSpent"].(*types.AttributeValueMemberN).Value)

	tags := item["tagCounts"].(*types.AttributeValueMemberM).Value
	require.Equal(t, "2", tags["billing"].(*types.AttributeValueMemberN).Value)
	require.Equal(t, "1", tags["tech"].(*types.AttributeValueMemberN).Value)
}

func TestSaveStats_RequiresUserID(t *testing.T) {
	c, err := New(&mockAPI{}, "helpdesk-state")
	require.NoError(t, err)
	require.Error(t, c.SaveStats(context.Background(), domain.UserStats{}))
}

func TestSaveStats_WrapsAPIError(t *testing.T) {
	api := &mockAPI{putErr: errors.New("throttled")}
	c, err := New(api, "helpdesk-state")
	require.NoError(t, err)

	err = c.SaveStats(context.Background(), sampleStats())
	require.Error(t, err)
	require.Contains(t, err.Error(), "SaveStats")
}

func TestGetStats_RoundTrip(t *testing.T) {
	api := &mockAPI{getOutput: &dynamodb.GetItemOutput{Item: statsItem(sampleStats())}}
	c, err := New(api, "helpdesk-state")
	require.NoError(t, err)

	stats, found, err := c.GetStats(context.Background(), "42")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, sampleStats(), stats)
}

func TestGetStats_MissingItem(t *testing.T) {
	api := &mockAPI{getOutput: &dynamodb.GetItemOutput{}}
	c, err := New(api, "helpdesk-state")
	require.NoError(t, err)

	_, found, err := c.GetStats(context.Background(), "42")
	require.NoError(t, err)
	require.False(t, found)
}

func TestLoadAllStats_FollowsPagination(t *testing.T) {
	first := statsItem(domain.UserStats{UserID: "1", MessageCount: 1, TagCounts: map[string]int{}})
	second := statsItem(domain.UserStats{UserID: "2", MessageCount: 5, TagCounts: map[string]int{"sales": 3}, TokensSpent: 40})
	api := &mockAPI{scanOutputs: []*dynamodb.ScanOutput{
		{
			Items:            []map[string]types.AttributeValue{first},
			LastEvaluatedKey: map[string]types.AttributeValue{"PK": &types.AttributeValueMemberS{Value: "USER#1"}},
		},
		{Items: []map[string]types.AttributeValue{second}},
	}}
	c, err := New(api, "helpdesk-state")
	require.NoError(t, err)

	all, err := c.LoadAllStats(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, 2, api.scanCalls)
	require.Equal(t, "1", all[0].UserID)
	require.Equal(t, "2", all[1].UserID)
	require.Equal(t, 3, all[1].TagCounts["sales"])
}

func TestLoadAllStats_ScanError(t *testing.T) {
	api := &mockAPI{scanErr: errors.New("scan throttled")}
	c, err := New(api, "helpdesk-state")
	require.NoError(t, err)

	_, err = c.LoadAllStats(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "LoadAllStats")
}

func TestAppendTurn_WritesTurnItem(t *testing.T) {
	api := &mockAPI{}
	c, err := New(api, "helpdesk-state")
	require.NoError(t, err)

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := domain.ExportRecord{
		ID:        "rec-1",
		Timestamp: ts,
		UserID:    "42",
		Input:     "integration error 500",
		Reply:     "Try restarting the service. [tags: tech]",
		Tokens:    12,
	}
	require.NoError(t, c.AppendTurn(context.Background(), rec))
	require.Len(t, api.putInputs, 1)

	item := api.putInputs[0].Item
	require.Equal(t, "USER#42", item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "TURN#"+ts.Format(time.RFC3339Nano), item["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "integration error 500", item["input"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "12", item["tokens"].(*types.AttributeValueMemberN).Value)
}

func TestAppendTurn_RequiresUserID(t *testing.T) {
	c, err := New(&mockAPI{}, "helpdesk-state")
	require.NoError(t, err)
	require.Error(t, c.AppendTurn(context.Background(), domain.ExportRecord{}))
}

func TestItemToStats_BadTagMap(t *testing.T) {
	item := statsItem(sampleStats())
	item["tagCounts"] = &types.AttributeValueMemberS{Value: "oops"}
	_, err := itemToStats(item)
	require.Error(t, err)
}
