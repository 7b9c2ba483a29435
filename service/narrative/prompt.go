package narrative

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"text/template"

	"github.com/brojonat/solcredit/service/scoring"
	"github.com/shopspring/decimal"
)

const systemPrompt = "You are a Solana on-chain data analysis expert. Output concise JSON in English only, for credit assessment."

var userPrompt = template.Must(template.New("credit").Funcs(template.FuncMap{
	"json": toJSON,
}).Parse(`You are a Solana on-chain data analysis expert, specializing in credit assessment for lending protocols (such as Solend). Based on the following data, generate a concise analysis report in JSON format, in English only, output complete JSON only, no extra explanation.
- Wallet: {{.Address}}
- Total transactions: {{.Activity.Retained}}
- Small transactions (<{{.MinAmount}} SOL): {{.Activity.Small}}
- Transaction types: {{json .Features.TransactionTypes}}
- Token data: {{json .Holdings}}
- SOL balance: {{.Native}}, staked SOL: {{.Staked}}
- Inflow: {{.Features.TotalInflow}} SOL, outflow: {{.Features.TotalOutflow}} SOL, counterparties: {{.Features.CounterpartyCount}}
- Model score: {{.Score.Value}}/1000 ({{.Score.Tier}})

Output requirements:
- Each analysis field should not exceed 15 characters, and the conclusion should not exceed 25 characters.
- Include summary, asset overview, behavior analysis, risks, suggestions, and credit conclusion.
- Summary must contain credit grade (High, Medium, Low), based on the following rules:
  - High: Large SOL/stakedSOL (>10 SOL), stable transfers (TRANSFER > 50%), no high risk.
  - Medium: Medium SOL/stakedSOL (1-10 SOL), stable transfers (TRANSFER > 30%), low risk.
  - Low: Little SOL/stakedSOL (<1 SOL), high frequency SWAP or small transactions ratio >80%.
- Asset overview must include liquidity (High: SOL; Medium: stakedSOL, mSOL; Low: other tokens).
- Behavior analysis only includes SWAP, TRANSFER, OTHER.
- Small transaction ratio is {{.SmallRatio}} (smallCount/(totalCount+smallCount)).
- Ensure single JSON, no duplicates.

Format:
{
  "Summary": {
    "Total Transactions": number,
    "Small Transactions": number,
    "Small Transaction Ratio": string,
    "Credit Grade": string
  },
  "Asset Overview": [
    {"Token": string, "Balance": number, "Liquidity": string, "Risk": string},
    ...
  ],
  "Behavior Analysis": [
    {"Type": string, "Count": number, "Ratio": string, "Assessment": string},
    ...
  ],
  "Risk": {
    "Dust Attack": string,
    "High-frequency Arbitrage": string,
    "Low Liquidity Tokens": string
  },
  "Suggestions": [string],
  "Credit Conclusion": string
}
`))

// Holding is one token position as shown to the model.
type Holding struct {
	Symbol  string          `json:"symbol"`
	Mint    string          `json:"mint"`
	Balance decimal.Decimal `json:"balance"`
	// Share is the fraction of retained transactions touching this mint.
	Share float64 `json:"tx_share"`
}

// Input is everything the narrative is allowed to see about one wallet.
type Input struct {
	Address   string
	Features  *scoring.FeatureSet
	Score     scoring.Score
	Activity  scoring.FilterStats
	MinAmount decimal.Decimal
	Native    decimal.Decimal
	Staked    decimal.Decimal
	Holdings  []Holding
}

type promptData struct {
	Input
	SmallRatio string
}

// BuildPrompt renders the user prompt for in.
func BuildPrompt(in Input) (string, error) {
	if in.Features == nil {
		return "", fmt.Errorf("feature set is required")
	}

	holdings := append(make([]Holding, 0, len(in.Holdings)), in.Holdings...)
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Mint < holdings[j].Mint })
	in.Holdings = holdings

	var buf bytes.Buffer
	if err := userPrompt.Execute(&buf, promptData{Input: in, SmallRatio: smallRatio(in.Activity)}); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

func smallRatio(s scoring.FilterStats) string {
	total := s.Retained + s.Small
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", 100*float64(s.Small)/float64(total))
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
