package steam

import "encoding/json"

// renderResponse is the wire shape of /market/listings/<app>/<name>/render
// with format=json.
type renderResponse struct {
	Success     bool                   `json:"success"`
	Start       int                    `json:"start"`
	PageSize    json.Number            `json:"pagesize"`
	TotalCount  int                    `json:"total_count"`
	ListingInfo map[string]listingInfo `json:"listinginfo"`
	// assets is keyed appid -> contextid -> assetid.
	Assets map[string]map[string]map[string]assetDescription `json:"assets"`
}

type listingInfo struct {
	ListingID      string   `json:"listingid"`
	ConvertedPrice int64    `json:"converted_price"`
	ConvertedFee   int64    `json:"converted_fee"`
	Asset          assetRef `json:"asset"`
}

type assetRef struct {
	ID        string `json:"id"`
	AppID     int    `json:"appid"`
	ContextID string `json:"contextid"`
}

type assetDescription struct {
	ID           string             `json:"id"`
	MarketName   string             `json:"market_name"`
	Descriptions []descriptionEntry `json:"descriptions"`
}

type descriptionEntry struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// histogramResponse is the wire shape of /market/itemordershistogram.
// buy_order_graph rows are [price, cumulative quantity, label] triples with
// mixed element types, decoded per row.
type histogramResponse struct {
	Success       json.Number         `json:"success"`
	BuyOrderGraph [][]json.RawMessage `json:"buy_order_graph"`
}

// buyResponse is the wire shape of /market/buylisting/<id>.
type buyResponse struct {
	WalletInfo *walletInfo `json:"wallet_info"`
	Message    string      `json:"message"`
}

type walletInfo struct {
	Success       json.Number `json:"success"`
	WalletBalance json.Number `json:"wallet_balance"`
	WalletFee     json.Number `json:"wallet_fee"`
}
