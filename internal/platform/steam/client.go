// Package steam is the HTTP client for the Steam Community Market: listing
// page rendering, buy-order histograms, and the authenticated purchase
// endpoint. One Client is pinned to one outbound proxy; worker pools hold a
// client per leased proxy.
package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

// Client is the REST client for the Steam Community Market.
type Client struct {
	host     string
	appID    int
	currency int

	// sessionCookie and sessionID authenticate the purchase path. Both are
	// empty on read-only clients.
	sessionCookie string
	sessionID     string

	httpClient *http.Client
}

// NewClient creates a read-only market client.
//
// host is the community root, e.g. "https://steamcommunity.com". appID and
// currency select the game catalogue and the price currency of the
// converted_* fields.
func NewClient(host string, appID, currency int) *Client {
	return &Client{
		host:     strings.TrimRight(host, "/"),
		appID:    appID,
		currency: currency,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetProxy routes all requests of this client through the given proxy URL.
func (c *Client) SetProxy(p domain.Proxy) error {
	u, err := url.Parse(p.URL)
	if err != nil {
		return fmt.Errorf("steam: parse proxy url: %w", err)
	}
	c.httpClient.Transport = &http.Transport{
		Proxy: http.ProxyURL(u),
	}
	return nil
}

// SetSession configures the client for authenticated purchases. cookie is
// the full Cookie header of a logged-in market session; the sessionid value
// inside it is echoed back in the purchase form as Steam requires.
func (c *Client) SetSession(cookie string) error {
	sid := cookieValue(cookie, "sessionid")
	if sid == "" {
		return fmt.Errorf("steam: session cookie has no sessionid")
	}
	c.sessionCookie = cookie
	c.sessionID = sid
	return nil
}

// GetListingCount returns the total number of live listings for the market
// hash name. It renders a single-listing page and reads total_count.
func (c *Client) GetListingCount(ctx context.Context, marketHashName string) (int, error) {
	resp, err := c.render(ctx, marketHashName, 0, 1)
	if err != nil {
		return 0, fmt.Errorf("steam: count listings %q: %w", marketHashName, err)
	}
	return resp.TotalCount, nil
}

// GetListingPage fetches one page of listings for the market hash name,
// joined with their asset descriptions and normalised into domain listings.
func (c *Client) GetListingPage(ctx context.Context, marketHashName string, start, count int) ([]domain.Listing, error) {
	resp, err := c.render(ctx, marketHashName, start, count)
	if err != nil {
		return nil, fmt.Errorf("steam: listing page %q start=%d: %w", marketHashName, start, err)
	}

	now := time.Now().UTC()
	out := make([]domain.Listing, 0, len(resp.ListingInfo))
	for id, info := range resp.ListingInfo {
		desc, ok := c.lookupAsset(resp, info.Asset)
		if !ok {
			return nil, fmt.Errorf("steam: listing %s: asset %s missing from response: %w",
				id, info.Asset.ID, domain.ErrMalformedListing)
		}

		raw, _ := json.Marshal(info)

		l := domain.Listing{
			ID:            id,
			Name:          desc.MarketName,
			Price:         float64(info.ConvertedPrice+info.ConvertedFee) / 100,
			SubtotalCents: info.ConvertedPrice,
			FeeCents:      info.ConvertedFee,
			Raw:           raw,
			FetchedAt:     now,
		}
		for _, d := range desc.Descriptions {
			if strings.Contains(d.Value, "Gem") {
				l.GemHTML = append(l.GemHTML, d.Value)
			}
		}
		out = append(out, l)
	}
	return out, nil
}

// GetOrderHistogram fetches the buy-order graph for the given item_nameid.
// Quantities in the returned histogram are cumulative; callers reduce them
// with domain.ReduceCumulative.
func (c *Client) GetOrderHistogram(ctx context.Context, itemNameID int64) (domain.Histogram, error) {
	params := url.Values{}
	params.Set("country", "US")
	params.Set("language", "english")
	params.Set("currency", strconv.Itoa(c.currency))
	params.Set("item_nameid", strconv.FormatInt(itemNameID, 10))
	params.Set("two_factor", "0")

	body, err := c.get(ctx, "/market/itemordershistogram?"+params.Encode())
	if err != nil {
		return domain.Histogram{}, fmt.Errorf("steam: histogram %d: %w", itemNameID, err)
	}

	var resp histogramResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Histogram{}, fmt.Errorf("steam: histogram %d: decode: %w (%w)",
			itemNameID, err, domain.ErrMalformedHistogram)
	}
	if v, err := resp.Success.Int64(); err != nil || v != 1 {
		return domain.Histogram{}, fmt.Errorf("steam: histogram %d: success=%s: %w",
			itemNameID, resp.Success, domain.ErrMalformedHistogram)
	}

	levels := make([]domain.BuyOrder, 0, len(resp.BuyOrderGraph))
	for _, row := range resp.BuyOrderGraph {
		if len(row) < 2 {
			return domain.Histogram{}, fmt.Errorf("steam: histogram %d: short graph row: %w",
				itemNameID, domain.ErrMalformedHistogram)
		}
		price, err := parseGraphPrice(row[0])
		if err != nil {
			return domain.Histogram{}, fmt.Errorf("steam: histogram %d: price: %w (%w)",
				itemNameID, err, domain.ErrMalformedHistogram)
		}
		var qty int
		if err := json.Unmarshal(row[1], &qty); err != nil {
			return domain.Histogram{}, fmt.Errorf("steam: histogram %d: quantity: %w (%w)",
				itemNameID, err, domain.ErrMalformedHistogram)
		}
		levels = append(levels, domain.BuyOrder{Price: price, Quantity: qty})
	}
	return domain.Histogram{Levels: levels}, nil
}

// BuyListing purchases the listing at its quoted price. The client must have
// a session configured via SetSession.
func (c *Client) BuyListing(ctx context.Context, l domain.Listing) (domain.PurchaseReceipt, error) {
	if c.sessionCookie == "" {
		return domain.PurchaseReceipt{}, fmt.Errorf("steam: buy listing %s: no session configured", l.ID)
	}

	form := url.Values{}
	form.Set("sessionid", c.sessionID)
	form.Set("currency", strconv.Itoa(c.currency))
	form.Set("subtotal", strconv.FormatInt(l.SubtotalCents, 10))
	form.Set("fee", strconv.FormatInt(l.FeeCents, 10))
	form.Set("total", strconv.FormatInt(l.SubtotalCents+l.FeeCents, 10))
	form.Set("quantity", "1")

	endpoint := c.host + "/market/buylisting/" + url.PathEscape(l.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.PurchaseReceipt{}, fmt.Errorf("steam: buy listing %s: create request: %w", l.ID, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cookie", c.sessionCookie)
	// Steam rejects purchase posts without a listing-page referer.
	req.Header.Set("Referer", fmt.Sprintf("%s/market/listings/%d/%s", c.host, c.appID, url.PathEscape(l.Name)))

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PurchaseReceipt{}, fmt.Errorf("steam: buy listing %s: %w", l.ID, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return domain.PurchaseReceipt{}, fmt.Errorf("steam: buy listing %s: read response: %w", l.ID, err)
	}

	var resp buyResponse
	_ = json.Unmarshal(body, &resp)

	if httpResp.StatusCode != http.StatusOK || resp.WalletInfo == nil {
		msg := resp.Message
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", httpResp.StatusCode)
		}
		return domain.PurchaseReceipt{}, fmt.Errorf("steam: buy listing %s: %s: %w",
			l.ID, msg, domain.ErrPurchaseRejected)
	}

	balance, _ := resp.WalletInfo.WalletBalance.Float64()
	return domain.PurchaseReceipt{
		ListingID:     l.ID,
		PricePaid:     l.Price,
		WalletBalance: balance / 100,
		CompletedAt:   time.Now().UTC(),
	}, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) render(ctx context.Context, marketHashName string, start, count int) (*renderResponse, error) {
	params := url.Values{}
	params.Set("query", "")
	params.Set("start", strconv.Itoa(start))
	params.Set("count", strconv.Itoa(count))
	params.Set("currency", strconv.Itoa(c.currency))
	params.Set("language", "english")
	params.Set("format", "json")

	path := fmt.Sprintf("/market/listings/%d/%s/render?%s",
		c.appID, url.PathEscape(marketHashName), params.Encode())

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var resp renderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode render response: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("render response success=false: %w", domain.ErrMalformedListing)
	}
	return &resp, nil
}

func (c *Client) lookupAsset(resp *renderResponse, ref assetRef) (assetDescription, bool) {
	ctxMap, ok := resp.Assets[strconv.Itoa(ref.AppID)]
	if !ok {
		return assetDescription{}, false
	}
	assetMap, ok := ctxMap[ref.ContextID]
	if !ok {
		return assetDescription{}, false
	}
	desc, ok := assetMap[ref.ID]
	return desc, ok
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limited (HTTP 429)")
	default:
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
}

// parseGraphPrice reads a buy_order_graph price cell, which Steam emits
// either as a number or as a comma-grouped string, in cents.
func parseGraphPrice(raw json.RawMessage) (float64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return 0, ferr
		}
		return f / 100, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, err
	}
	return f / 100, nil
}

// cookieValue extracts one value from a raw Cookie header.
func cookieValue(header, name string) string {
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if v, ok := strings.CutPrefix(part, name+"="); ok {
			return v
		}
	}
	return ""
}
