package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	natspkg "github.com/brojonat/solcredit/service/nats"
	"github.com/brojonat/solcredit/service/report"
	"github.com/brojonat/solcredit/service/scoring"
	"github.com/brojonat/solcredit/service/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const (
	testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	testPeer   = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
)

// upstream fakes Helius (enhanced transactions and DAS), the Solana RPC
// node and the chat completions API on one server.
func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	now := time.Now().Unix()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/v0/addresses/"+testWallet+"/transactions":
			if r.URL.Query().Get("before") != "" {
				fmt.Fprint(w, "[]")
				return
			}
			var txns []map[string]any
			for i, lamports := range []int64{1_500_000_000, 2_000_000_000, 10_000_000} {
				txns = append(txns, map[string]any{
					"signature": fmt.Sprintf("sig-%d", i),
					"timestamp": now - int64(i*3600),
					"type":      "TRANSFER",
					"nativeTransfers": []map[string]any{
						{"fromUserAccount": testPeer, "toUserAccount": testWallet, "amount": lamports},
					},
				})
			}
			json.NewEncoder(w).Encode(txns)

		case r.URL.Path == "/" && r.Method == http.MethodPost:
			json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0",
				"id":      "solcredit-assets",
				"result": map[string]any{
					"total": 0, "limit": 100, "page": 1,
					"items":         []any{},
					"nativeBalance": map[string]any{"lamports": 5_000_000_000},
				},
			})

		case r.URL.Path == "/rpc":
			var req struct {
				ID json.RawMessage `json:"id"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":[]}`, req.ID)

		case r.URL.Path == "/v1/chat/completions":
			json.NewEncoder(w).Encode(map[string]any{
				"id":     "chatcmpl-1",
				"object": "chat.completion",
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]any{"role": "assistant", "content": "```json\n{\"Credit Conclusion\": \"Medium\"}\n```"},
					"finish_reason": "stop",
				}},
			})

		default:
			http.NotFound(w, r)
		}
	}))
}

func setTestEnv(t *testing.T, serverURL string) {
	t.Helper()
	t.Setenv("HELIUS_API_KEY", "helius-key")
	t.Setenv("OPENAI_API_KEY", "openai-key")
	t.Setenv("HELIUS_API_URL", serverURL)
	t.Setenv("HELIUS_RPC_URL", serverURL)
	t.Setenv("SOLANA_RPC_URL", serverURL+"/rpc")
	t.Setenv("OPENAI_BASE_URL", serverURL+"/v1")
	t.Setenv("HELIUS_RPS", "1000")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("NATS_URL", "")
}

func testApp(out io.Writer, commands ...*cli.Command) *cli.App {
	return &cli.App{
		Name:     "solcredit",
		Writer:   out,
		Commands: commands,
	}
}

func TestAnalyzeCommand_EndToEnd(t *testing.T) {
	server := upstream(t)
	defer server.Close()
	setTestEnv(t, server.URL)

	metricsFile := filepath.Join(t.TempDir(), "solcredit.prom")
	var out bytes.Buffer
	err := testApp(&out, analyzeCommand()).Run([]string{"solcredit", "analyze", "--metrics-file", metricsFile, testWallet})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, testWallet, got["address"])
	assert.Equal(t, `{"Credit Conclusion":"Medium"}`, got["narrative"])

	activity := got["activity"].(map[string]any)
	assert.EqualValues(t, 3, activity["raw_transactions"])
	assert.EqualValues(t, 1, activity["small_transactions"])
	assert.EqualValues(t, 2, activity["retained_transactions"])

	features := got["features"].(map[string]any)
	assert.Equal(t, "3.5", features["total_inflow"])
	assert.EqualValues(t, 1, features["counterparty_count"])

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "solcredit_reports_total")
	assert.Contains(t, string(prom), `api="helius"`)
}

func TestAnalyzeCommand_JQ(t *testing.T) {
	server := upstream(t)
	defer server.Close()
	setTestEnv(t, server.URL)

	var out bytes.Buffer
	err := testApp(&out, analyzeCommand()).Run([]string{"solcredit", "analyze", "--no-narrative", "--jq", ".narrative", testWallet})
	require.NoError(t, err)
	assert.Equal(t, "\"\"\n", out.String())
}

func TestAnalyzeCommand_Errors(t *testing.T) {
	server := upstream(t)
	defer server.Close()
	setTestEnv(t, server.URL)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing address", args: []string{"solcredit", "analyze"}, want: "wallet address is required"},
		{name: "bad jq", args: []string{"solcredit", "analyze", "--jq", ".[", testWallet}, want: "failed to parse jq filter"},
		{name: "invalid address", args: []string{"solcredit", "analyze", "not-base58-0OIl"}, want: "invalid address"},
		{name: "publish without nats", args: []string{"solcredit", "analyze", "--publish", testWallet}, want: "NATS_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testApp(io.Discard, analyzeCommand()).Run(tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAnalyzeCommand_MissingConfig(t *testing.T) {
	t.Setenv("HELIUS_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	err := testApp(io.Discard, analyzeCommand()).Run([]string{"solcredit", "analyze", testWallet})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HELIUS_API_KEY is required")
}

func sampleReport() *report.CreditReport {
	return &report.CreditReport{
		Address:     testWallet,
		Score:       420,
		Tier:        scoring.TierMedium,
		Features:    &scoring.FeatureSet{TransactionTypes: map[string]int{}},
		GeneratedAt: time.Date(2025, 5, 13, 12, 0, 0, 0, time.UTC),
		Activity:    scoring.FilterStats{Raw: 10, Qualifying: 6, Small: 4, Retained: 6},
	}
}

func TestEmitReport(t *testing.T) {
	r := sampleReport()

	t.Run("stdout", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, emitReport(&out, r, "", nil))
		expected, err := r.Marshal()
		require.NoError(t, err)
		assert.Equal(t, string(expected), out.String())
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.json")
		var out bytes.Buffer
		require.NoError(t, emitReport(&out, r, path, nil))
		assert.Contains(t, out.String(), path)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		var decoded report.CreditReport
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, 420, decoded.Score)
	})

	t.Run("jq to file", func(t *testing.T) {
		q, err := report.CompileQuery("{score, tier}")
		require.NoError(t, err)
		path := filepath.Join(t.TempDir(), "score.json")
		require.NoError(t, emitReport(io.Discard, r, path, q))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.JSONEq(t, `{"score": 420, "tier": "medium risk"}`, string(data))
	})
}

// failingCloser accepts writes and fails on Close, like a file whose final
// flush is rejected.
type failingCloser struct {
	bytes.Buffer
	closed bool
}

func (f *failingCloser) Close() error {
	f.closed = true
	return errors.New("disk quota exceeded")
}

func TestWriteQueryAndClose(t *testing.T) {
	q, err := report.CompileQuery(".score")
	require.NoError(t, err)

	t.Run("close error is returned", func(t *testing.T) {
		wc := &failingCloser{}
		err := writeQueryAndClose(wc, q, sampleReport())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk quota exceeded")
		assert.Equal(t, "420\n", wc.String())
		assert.True(t, wc.closed)
	})

	t.Run("query error wins", func(t *testing.T) {
		bad, err := report.CompileQuery(`error("boom")`)
		require.NoError(t, err)
		wc := &failingCloser{}
		err = writeQueryAndClose(wc, bad, sampleReport())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
		assert.True(t, wc.closed)
	})
}

func TestRunInteractive(t *testing.T) {
	dir := t.TempDir()
	var analyzed []string
	analyze := func(ctx context.Context, address string) (*report.CreditReport, error) {
		analyzed = append(analyzed, address)
		if address == "bad" {
			return nil, &solana.InvalidAddressError{Address: address, Reason: "invalid base58"}
		}
		r := sampleReport()
		r.Warnings = []string{"stake account lookup failed"}
		return r, nil
	}

	in := strings.NewReader("bad\n\n" + testWallet + "\ny\n" + testWallet + "\nn\nEXIT\nnever-read\n")
	var out bytes.Buffer
	require.NoError(t, runInteractive(context.Background(), in, &out, analyze, dir))

	assert.Equal(t, []string{"bad", testWallet, testWallet}, analyzed)
	assert.Contains(t, out.String(), "Analysis failed: invalid address")
	assert.Contains(t, out.String(), "⚠️ stake account lookup failed")
	assert.Equal(t, 1, strings.Count(out.String(), "Saved to"))

	saved := filepath.Join(dir, "credit_analysis_"+testWallet+".json")
	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"score": 420`)
}

func TestRunInteractive_EndOfInput(t *testing.T) {
	calls := 0
	analyze := func(ctx context.Context, address string) (*report.CreditReport, error) {
		calls++
		return sampleReport(), nil
	}

	// Input ends while waiting for the save answer.
	var out bytes.Buffer
	require.NoError(t, runInteractive(context.Background(), strings.NewReader(testWallet), &out, analyze, t.TempDir()))
	assert.Equal(t, 1, calls)
}

func TestRunInteractive_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	analyze := func(ctx context.Context, address string) (*report.CreditReport, error) {
		cancel()
		return nil, fmt.Errorf("fetch: %w", context.Canceled)
	}

	err := runInteractive(ctx, strings.NewReader(testWallet+"\n"+testWallet+"\n"), io.Discard, analyze, t.TempDir())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPrintReportEvent(t *testing.T) {
	event := natspkg.FromReport(sampleReport())

	var human bytes.Buffer
	require.NoError(t, printReportEvent(&human, event, 3, false))
	assert.Contains(t, human.String(), "Report #3")
	assert.Contains(t, human.String(), "Score:        420 (medium risk)")
	assert.Contains(t, human.String(), "Retained:     6 of 10 transactions")

	var line bytes.Buffer
	require.NoError(t, printReportEvent(&line, event, 3, true))
	var decoded natspkg.ReportEvent
	require.NoError(t, json.Unmarshal(line.Bytes(), &decoded))
	assert.Equal(t, testWallet, decoded.Address)
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
	require.NoError(t, loadDotEnv(""))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SOLCREDIT_TEST_VALUE=from-dotenv\n"), 0o600))
	t.Setenv("SOLCREDIT_TEST_VALUE", "")
	os.Unsetenv("SOLCREDIT_TEST_VALUE")

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "from-dotenv", os.Getenv("SOLCREDIT_TEST_VALUE"))
}

func TestSetupLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		assert.NotNil(t, setupLogger(level))
	}
	assert.True(t, setupLogger("debug").Enabled(context.Background(), -4))
	assert.False(t, setupLogger("error").Enabled(context.Background(), 0))
}
