package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/brojonat/solcredit/service/report"
	"github.com/brojonat/solcredit/service/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReport(address string) *report.CreditReport {
	return &report.CreditReport{
		Address:     address,
		Score:       640,
		Tier:        scoring.TierMedium,
		Features:    &scoring.FeatureSet{TransactionTypes: map[string]int{"TRANSFER": 4}},
		GeneratedAt: time.Date(2025, 5, 13, 12, 0, 0, 0, time.UTC),
	}
}

func TestFromReport(t *testing.T) {
	r := testReport("wallet-a")
	event := FromReport(r)

	assert.Equal(t, "wallet-a", event.Address)
	assert.Equal(t, 640, event.Score)
	assert.Equal(t, "medium risk", event.Tier)
	assert.Same(t, r, event.Report)
	assert.False(t, event.PublishedAt.IsZero())
	assert.Equal(t, "reports.wallet-a", Subject(event.Address))

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	inner, ok := decoded["report"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "wallet-a", inner["address"])
	assert.EqualValues(t, 640, inner["score"])
}

func TestMockPublisher(t *testing.T) {
	m := NewMockPublisher()
	ctx := context.Background()

	require.NoError(t, m.PublishReport(ctx, FromReport(testReport("a"))))
	require.NoError(t, m.PublishReport(ctx, FromReport(testReport("b"))))
	require.NoError(t, m.PublishReport(ctx, FromReport(testReport("a"))))

	assert.Len(t, m.GetPublishedEvents(), 3)
	assert.Len(t, m.GetPublishedEventsForAddress("a"), 2)

	m.SetPublishError(errors.New("nats down"))
	assert.Error(t, m.PublishReport(ctx, FromReport(testReport("c"))))
	assert.Len(t, m.GetPublishedEvents(), 3)

	require.NoError(t, m.Close())
	assert.True(t, m.IsClosed())
}
