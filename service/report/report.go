package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/brojonat/solcredit/service/narrative"
	"github.com/brojonat/solcredit/service/scoring"
	"github.com/itchyny/gojq"
)

// CreditReport is the final output of one run. It is built once and never
// mutated afterwards. Field order is the JSON field order.
type CreditReport struct {
	Address     string              `json:"address"`
	Score       int                 `json:"score"`
	Tier        scoring.Tier        `json:"tier"`
	Features    *scoring.FeatureSet `json:"features"`
	Narrative   string              `json:"narrative"`
	GeneratedAt time.Time           `json:"generated_at"`

	Warnings []string            `json:"warnings,omitempty"`
	Activity scoring.FilterStats `json:"activity"`
	Assets   []narrative.Holding `json:"assets"`
}

// Marshal renders the report as indented JSON.
func (r *CreditReport) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}

// Write renders the report to w.
func (r *CreditReport) Write(w io.Writer) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// WriteFile renders the report to path, replacing any existing file.
func (r *CreditReport) WriteFile(path string) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// DefaultFilename is where an interactive session saves a report.
func DefaultFilename(address string) string {
	return fmt.Sprintf("credit_analysis_%s.json", address)
}

// Query is a compiled jq program run against reports.
type Query struct {
	expr string
	code *gojq.Code
}

// CompileQuery parses and compiles a jq expression.
func CompileQuery(expr string) (*Query, error) {
	parsed, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
	}
	return &Query{expr: expr, code: code}, nil
}

// Run evaluates the query against the report's JSON form and returns every
// emitted value.
func (q *Query) Run(r *CreditReport) ([]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}

	var results []any
	iter := q.code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq filter %q failed: %w", q.expr, err)
		}
		results = append(results, v)
	}
	return results, nil
}

// WriteQuery runs q against r and writes each result to w as indented JSON.
func WriteQuery(w io.Writer, q *Query, r *CreditReport) error {
	results, err := q.Run(r)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	for _, v := range results {
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to write jq result: %w", err)
		}
	}
	return nil
}
