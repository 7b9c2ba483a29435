package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brojonat/solcredit/service/metrics"
	"github.com/brojonat/solcredit/service/scoring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testInput() Input {
	return Input{
		Address: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		Features: &scoring.FeatureSet{
			TransactionCount:  12,
			TotalInflow:       decimal.RequireFromString("4.5"),
			TotalOutflow:      decimal.RequireFromString("1.25"),
			CounterpartyCount: 5,
			AssetDiversity:    3,
			StakingRatio:      0.2,
			TransactionTypes:  map[string]int{"TRANSFER": 9, "SWAP": 3},
		},
		Score:     scoring.Score{Value: 512, Tier: scoring.TierMedium},
		Activity:  scoring.FilterStats{Raw: 20, Qualifying: 12, Small: 8, Retained: 12},
		MinAmount: decimal.RequireFromString("0.1"),
		Native:    decimal.RequireFromString("8"),
		Staked:    decimal.RequireFromString("2"),
		Holdings: []Holding{
			{Symbol: "USDC", Mint: "usdc-mint", Balance: decimal.RequireFromString("150"), Share: 0.25},
		},
	}
}

// chatServer answers /v1/chat/completions with content and captures the request.
func chatServer(t *testing.T, status int, content string, captured *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if captured != nil {
			body := map[string]any{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			*captured = body
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": content, "type": "server_error"},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   DefaultModel,
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 100, "completion_tokens": 50, "total_tokens": 150},
		})
	}))
}

func newTestGenerator(serverURL string, m *metrics.Metrics) *Generator {
	return NewGenerator(Options{APIKey: "test-key", BaseURL: serverURL + "/v1"}, nil, m, testLogger())
}

func TestGenerateNarrative_Success(t *testing.T) {
	var captured map[string]any
	server := chatServer(t, http.StatusOK, "```json\n{\"Credit Conclusion\": \"Medium grade\",\n \"Summary\": {\"Credit Grade\": \"Medium\"}}\n```", &captured)
	defer server.Close()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	g := newTestGenerator(server.URL, m)

	narrative, err := g.GenerateNarrative(context.Background(), testInput())
	require.NoError(t, err)
	assert.Equal(t, `{"Credit Conclusion":"Medium grade","Summary":{"Credit Grade":"Medium"}}`, narrative)

	assert.Equal(t, DefaultModel, captured["model"])
	assert.EqualValues(t, DefaultMaxTokens, captured["max_completion_tokens"])
	assert.InDelta(t, DefaultTemperature, captured["temperature"], 1e-6)

	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)
	assert.Equal(t, "user", user["role"])
	assert.Contains(t, user["content"], "Model score: 512/1000 (medium risk)")

	calls, err := testutil.GatherAndCount(reg, "solcredit_api_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestGenerateNarrative_InvalidJSON(t *testing.T) {
	server := chatServer(t, http.StatusOK, "I think this wallet is fine.", nil)
	defer server.Close()

	_, err := newTestGenerator(server.URL, nil).GenerateNarrative(context.Background(), testInput())
	require.Error(t, err)

	var invalid *InvalidReplyError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "I think this wallet is fine.", invalid.Reply)
}

func TestGenerateNarrative_APIError(t *testing.T) {
	server := chatServer(t, http.StatusInternalServerError, "upstream exploded", nil)
	defer server.Close()

	_, err := newTestGenerator(server.URL, nil).GenerateNarrative(context.Background(), testInput())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create chat completion")
}

func TestGenerateNarrative_ContextCanceled(t *testing.T) {
	server := chatServer(t, http.StatusOK, "{}", nil)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestGenerator(server.URL, nil).GenerateNarrative(ctx, testInput())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerateNarrative_MissingFeatures(t *testing.T) {
	in := testInput()
	in.Features = nil

	_, err := NewGenerator(Options{APIKey: "k"}, nil, nil, testLogger()).GenerateNarrative(context.Background(), in)
	require.Error(t, err)
}

func TestNormalizeReply(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    string
		wantErr bool
	}{
		{name: "plain object", reply: `{"a": 1}`, want: `{"a":1}`},
		{name: "json fence", reply: "```json\n{\"a\": [1, 2]}\n```", want: `{"a":[1,2]}`},
		{name: "bare fence", reply: "```\n{\"a\": true}\n```", want: `{"a":true}`},
		{name: "surrounding whitespace", reply: "\n\n  {\"a\": null}  \n", want: `{"a":null}`},
		{name: "prose", reply: "not json", wantErr: true},
		{name: "empty", reply: "", wantErr: true},
		{name: "empty fence", reply: "```json\n```", wantErr: true},
		{name: "truncated", reply: `{"a": `, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeReply(tt.reply)
			if tt.wantErr {
				var invalid *InvalidReplyError
				assert.True(t, errors.As(err, &invalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt, err := BuildPrompt(testInput())
	require.NoError(t, err)

	assert.Contains(t, prompt, "Total transactions: 12")
	assert.Contains(t, prompt, "Small transactions (<0.1 SOL): 8")
	assert.Contains(t, prompt, `Transaction types: {"SWAP":3,"TRANSFER":9}`)
	assert.Contains(t, prompt, `"symbol":"USDC"`)
	assert.Contains(t, prompt, "SOL balance: 8, staked SOL: 2")
	assert.Contains(t, prompt, "Small transaction ratio is 40.00%")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(prompt), "}"))
}

func TestBuildPrompt_NoActivity(t *testing.T) {
	in := testInput()
	in.Activity = scoring.FilterStats{}
	in.Holdings = nil

	prompt, err := BuildPrompt(in)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Small transaction ratio is 0.00%")
	assert.Contains(t, prompt, "Token data: []")
}
