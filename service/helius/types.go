package helius

import "encoding/json"

// EnhancedTransaction is one entry of the enhanced transactions API
// (GET /v0/addresses/{address}/transactions). Only fields we read are mapped.
type EnhancedTransaction struct {
	Signature       string           `json:"signature"`
	Timestamp       int64            `json:"timestamp"`
	Type            string           `json:"type"`
	Source          string           `json:"source"`
	Fee             int64            `json:"fee"`
	FeePayer        string           `json:"feePayer"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers"`
}

// NativeTransfer is a SOL movement; Amount is in lamports.
type NativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

// TokenTransfer is an SPL token movement; TokenAmount is already in whole
// token units (decimals applied by Helius).
type TokenTransfer struct {
	FromUserAccount string      `json:"fromUserAccount"`
	ToUserAccount   string      `json:"toUserAccount"`
	TokenAmount     json.Number `json:"tokenAmount"`
	Mint            string      `json:"mint"`
	TokenStandard   string      `json:"tokenStandard"`
}

// Asset is one item of a DAS getAssetsByOwner page.
type Asset struct {
	ID        string     `json:"id"`
	Interface string     `json:"interface"`
	TokenInfo *TokenInfo `json:"token_info,omitempty"`
}

// TokenInfo carries fungible token balance data; Balance is in raw subunits.
type TokenInfo struct {
	Symbol   string      `json:"symbol"`
	Balance  json.Number `json:"balance"`
	Decimals int32       `json:"decimals"`
}

// NativeBalance is the owner's SOL balance as reported by DAS.
type NativeBalance struct {
	Lamports uint64 `json:"lamports"`
}

// AssetsPage is the result object of getAssetsByOwner.
type AssetsPage struct {
	Total         int            `json:"total"`
	Limit         int            `json:"limit"`
	Page          int            `json:"page"`
	Items         []Asset        `json:"items"`
	NativeBalance *NativeBalance `json:"nativeBalance,omitempty"`
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type assetsResponse struct {
	Result *AssetsPage `json:"result"`
	Error  *rpcError   `json:"error,omitempty"`
}

type assetsParams struct {
	OwnerAddress string        `json:"ownerAddress"`
	Page         int           `json:"page"`
	Limit        int           `json:"limit"`
	Options      assetsOptions `json:"options"`
}

type assetsOptions struct {
	ShowUnverifiedCollections bool `json:"showUnverifiedCollections"`
	ShowCollectionMetadata    bool `json:"showCollectionMetadata"`
	ShowGrandTotal            bool `json:"showGrandTotal"`
	ShowFungible              bool `json:"showFungible"`
	ShowNativeBalance         bool `json:"showNativeBalance"`
	ShowInscription           bool `json:"showInscription"`
	ShowZeroBalance           bool `json:"showZeroBalance"`
}
