package steam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pudjojotaro/prismatic-parser/internal/domain"
)

func TestGetListingCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.EscapedPath(), "/market/listings/570/Unusual%20Itsy/render")
		assert.Equal(t, "1", r.URL.Query().Get("count"))
		w.Write([]byte(`{"success":true,"total_count":137,"listinginfo":{},"assets":{}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 570, 1)
	n, err := c.GetListingCount(context.Background(), "Unusual Itsy")
	require.NoError(t, err)
	assert.Equal(t, 137, n)
}

func TestGetListingPage(t *testing.T) {
	const payload = `{
		"success": true,
		"total_count": 1,
		"listinginfo": {
			"4471381234": {
				"listingid": "4471381234",
				"converted_price": 850,
				"converted_fee": 127,
				"asset": {"id": "998877", "appid": 570, "contextid": "2"}
			}
		},
		"assets": {
			"570": {"2": {"998877": {
				"id": "998877",
				"market_name": "Unusual Itsy",
				"descriptions": [
					{"type": "html", "value": "Crafted by a smith"},
					{"type": "html", "value": "<span>Sunfire Ethereal Gem</span>"}
				]
			}}}
		}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 570, 1)
	listings, err := c.GetListingPage(context.Background(), "Unusual Itsy", 0, 12)
	require.NoError(t, err)
	require.Len(t, listings, 1)

	l := listings[0]
	assert.Equal(t, "4471381234", l.ID)
	assert.Equal(t, "Unusual Itsy", l.Name)
	assert.Equal(t, 9.77, l.Price)
	assert.Equal(t, int64(850), l.SubtotalCents)
	assert.Equal(t, int64(127), l.FeeCents)
	require.Len(t, l.GemHTML, 1, "only gem descriptions are kept")
	assert.Contains(t, l.GemHTML[0], "Sunfire")
	assert.NotEmpty(t, l.Raw)
}

func TestGetListingPageMissingAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"success": true,
			"listinginfo": {"1": {"listingid":"1","asset":{"id":"2","appid":570,"contextid":"2"}}},
			"assets": {}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 570, 1)
	_, err := c.GetListingPage(context.Background(), "Unusual Itsy", 0, 12)
	assert.ErrorIs(t, err, domain.ErrMalformedListing)
}

func TestGetOrderHistogram(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/market/itemordershistogram", r.URL.Path)
		assert.Equal(t, "20118834", r.URL.Query().Get("item_nameid"))
		w.Write([]byte(`{"success":1,"buy_order_graph":[[1000,5,"5 buy orders"],["1,250",13,"13 buy orders"]]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 570, 1)
	h, err := c.GetOrderHistogram(context.Background(), 20118834)
	require.NoError(t, err)
	require.Len(t, h.Levels, 2)
	assert.Equal(t, domain.BuyOrder{Price: 10.0, Quantity: 5}, h.Levels[0])
	assert.Equal(t, domain.BuyOrder{Price: 12.5, Quantity: 13}, h.Levels[1])
}

func TestGetOrderHistogramMalformed(t *testing.T) {
	cases := map[string]string{
		"success zero":  `{"success":0}`,
		"short row":     `{"success":1,"buy_order_graph":[[1000]]}`,
		"bad price":     `{"success":1,"buy_order_graph":[["abc",5,""]]}`,
		"bad quantity":  `{"success":1,"buy_order_graph":[[1000,"x",""]]}`,
		"not even json": `<html>backoff</html>`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, 570, 1)
			_, err := c.GetOrderHistogram(context.Background(), 1)
			assert.ErrorIs(t, err, domain.ErrMalformedHistogram)
		})
	}
}

func TestBuyListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/market/buylisting/4471381234", r.URL.Path)
		assert.Equal(t, "abc123", r.PostForm.Get("sessionid"))
		assert.Equal(t, "850", r.PostForm.Get("subtotal"))
		assert.Equal(t, "127", r.PostForm.Get("fee"))
		assert.Equal(t, "977", r.PostForm.Get("total"))
		assert.Contains(t, r.Header.Get("Cookie"), "steamLoginSecure=tok")
		assert.Contains(t, r.Header.Get("Referer"), "/market/listings/570/")
		w.Write([]byte(`{"wallet_info":{"success":1,"wallet_balance":"41520"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 570, 1)
	require.NoError(t, c.SetSession("sessionid=abc123; steamLoginSecure=tok"))

	receipt, err := c.BuyListing(context.Background(), domain.Listing{
		ID:            "4471381234",
		Name:          "Unusual Itsy",
		Price:         9.77,
		SubtotalCents: 850,
		FeeCents:      127,
	})
	require.NoError(t, err)
	assert.Equal(t, "4471381234", receipt.ListingID)
	assert.Equal(t, 9.77, receipt.PricePaid)
	assert.Equal(t, 415.20, receipt.WalletBalance)
}

func TestBuyListingRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"You cannot afford that."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 570, 1)
	require.NoError(t, c.SetSession("sessionid=abc123"))

	_, err := c.BuyListing(context.Background(), domain.Listing{ID: "1", Name: "Unusual Itsy"})
	assert.ErrorIs(t, err, domain.ErrPurchaseRejected)
	assert.Contains(t, err.Error(), "cannot afford")
}

func TestBuyListingRequiresSession(t *testing.T) {
	c := NewClient("https://steamcommunity.com", 570, 1)
	_, err := c.BuyListing(context.Background(), domain.Listing{ID: "1"})
	assert.Error(t, err)

	assert.Error(t, c.SetSession("steamLoginSecure=tok"), "sessionid is mandatory")
}
