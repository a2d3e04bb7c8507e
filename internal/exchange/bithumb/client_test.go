package bithumb

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"event-trader/internal/config"
	"event-trader/internal/exchange"
)

func testConfig(baseURL string) config.ExchangeConfig {
	return config.ExchangeConfig{
		BaseURL:     baseURL,
		Timeout:     time.Second,
		MinOrderKRW: 5500,
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			MinDelay:    time.Millisecond,
			MaxDelay:    4 * time.Millisecond,
		},
	}
}

func TestSign_Deterministic(t *testing.T) {
	client := NewClient(testConfig("http://unused"), "k", "s", nil)
	client.now = func() time.Time { return time.UnixMilli(1234567) }

	endpoint := "/info/balance"
	params := url.Values{}
	params.Set("currency", "ALL")

	nonce := client.nonce()
	if nonce != "1234567" {
		t.Fatalf("expected nonce 1234567, got %s", nonce)
	}

	got := client.sign(endpoint, params, nonce)

	data := endpoint + "\x00" + params.Encode() + "\x00" + nonce
	mac := hmac.New(sha512.New, []byte("s"))
	mac.Write([]byte(data))
	want := base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(mac.Sum(nil))))

	if got != want {
		t.Errorf("signature mismatch:\n got %s\nwant %s", got, want)
	}

	if again := client.sign(endpoint, params, nonce); again != got {
		t.Errorf("signature not deterministic: %s vs %s", again, got)
	}
}

func TestMarketBuyKRW_RejectsBelowMinimumWithoutRequest(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), "k", "s", nil)

	order, err := client.MarketBuyKRW(context.Background(), "BTC/KRW", 1000)
	if order != nil {
		t.Errorf("expected nil order, got %+v", order)
	}
	if !errors.Is(err, exchange.ErrBelowMinOrder) {
		t.Errorf("expected ErrBelowMinOrder, got %v", err)
	}
	if n := atomic.LoadInt32(&requests); n != 0 {
		t.Errorf("expected no request issued, got %d", n)
	}
}

func TestMarketBuyKRW_PlacesOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/public/ticker/BTC_KRW":
			fmt.Fprint(w, `{"status":"0000","data":{"closing_price":"1000","units_traded_24H":"12.5"}}`)
		case r.URL.Path == "/public/orderbook/BTC_KRW":
			fmt.Fprint(w, `{"status":"0000","data":{"bids":[{"price":"995"}],"asks":[{"price":"1005"}]}}`)
		case r.URL.Path == "/trade/market_buy":
			if r.Header.Get("Api-Key") != "k" || r.Header.Get("Api-Sign") == "" || r.Header.Get("Api-Nonce") == "" {
				t.Errorf("missing auth headers: %v", r.Header)
			}
			if err := r.ParseForm(); err != nil {
				t.Fatalf("parse form: %v", err)
			}
			if r.PostForm.Get("units") != "5.5" || r.PostForm.Get("type") != "bid" {
				t.Errorf("unexpected order params: %v", r.PostForm)
			}
			fmt.Fprint(w, `{"status":"0000","order_id":"order-123"}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), "k", "s", nil)

	order, err := client.MarketBuyKRW(context.Background(), "BTC/KRW", 5500)
	if err != nil {
		t.Fatalf("MarketBuyKRW returned error: %v", err)
	}
	if order.ID != "order-123" {
		t.Errorf("expected order id order-123, got %s", order.ID)
	}
	if order.Side != exchange.OrderSideBuy || order.Amount != 5.5 {
		t.Errorf("unexpected order: %+v", order)
	}
}

func TestGetTicker_CombinesTickerAndOrderbook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/public/ticker/BTC_KRW":
			fmt.Fprint(w, `{"status":"0000","data":{"closing_price":"1000","units_traded_24H":"12.5"}}`)
		case "/public/orderbook/BTC_KRW":
			fmt.Fprint(w, `{"status":"0000","data":{"bids":[{"price":"995"}],"asks":[{"price":"1005"}]}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), "k", "s", nil)

	ticker, err := client.GetTicker(context.Background(), "BTC/KRW")
	if err != nil {
		t.Fatalf("GetTicker returned error: %v", err)
	}
	if ticker.Last != 1000 || ticker.Bid != 995 || ticker.Ask != 1005 || ticker.Volume != 12.5 {
		t.Errorf("unexpected ticker: %+v", ticker)
	}
}

func TestGetBalance_ParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/info/balance" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"status":"0000","data":{
			"available_krw":"8000","in_use_krw":"2000","total_krw":"10000",
			"available_btc":"0.3","in_use_btc":"0.2","total_btc":"0.5",
			"available_xrp":"0","in_use_xrp":"0","total_xrp":"0"
		}}`)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), "k", "s", nil)

	balances, err := client.GetBalance(context.Background(), "")
	if err != nil {
		t.Fatalf("GetBalance returned error: %v", err)
	}

	krw := balances["KRW"]
	if krw.Free != 8000 || krw.Used != 2000 || krw.Total != 10000 {
		t.Errorf("unexpected KRW balance: %+v", krw)
	}
	btc := balances["BTC"]
	if btc.Free != 0.3 || btc.Used != 0.2 || btc.Total != 0.5 {
		t.Errorf("unexpected BTC balance: %+v", btc)
	}
	if _, ok := balances["XRP"]; ok {
		t.Errorf("zero-total asset should be skipped: %+v", balances)
	}
}

func TestGetKRWPrices_SkipsEntriesWithoutClosingPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/public/ticker/ALL_KRW" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"status":"0000","data":{
			"XRP":{"closing_price":"400"},
			"BTC":{"closing_price":"600000"},
			"NO_PRICE":{"opening_price":"1"},
			"date":"1700000000000"
		}}`)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), "k", "s", nil)

	prices, err := client.GetKRWPrices(context.Background())
	if err != nil {
		t.Fatalf("GetKRWPrices returned error: %v", err)
	}
	if len(prices) != 2 {
		t.Fatalf("expected 2 price entries, got %d: %v", len(prices), prices)
	}
	if prices["XRP"] != 400 || prices["BTC"] != 600000 {
		t.Errorf("unexpected prices: %v", prices)
	}
}

func TestGetKRWMarkets_ListsTradablePairs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"0000","data":{
			"XRP":{"closing_price":"400"},
			"BTC":{"closing_price":"600000"},
			"date":"1700000000000"
		}}`)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), "k", "s", nil)

	markets, err := client.GetKRWMarkets(context.Background())
	if err != nil {
		t.Fatalf("GetKRWMarkets returned error: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("expected 2 markets, got %d: %v", len(markets), markets)
	}
	found := map[string]bool{}
	for _, market := range markets {
		found[market] = true
	}
	if !found["BTC/KRW"] || !found["XRP/KRW"] {
		t.Errorf("unexpected markets: %v", markets)
	}
}

func TestPrivatePost_RetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			fmt.Fprint(w, `{"status":"5500","message":"temporary"}`)
			return
		}
		fmt.Fprint(w, `{"status":"0000","data":{"available_krw":"1","in_use_krw":"0","total_krw":"1"}}`)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), "k", "s", nil)

	if _, err := client.GetBalance(context.Background(), ""); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestPrivatePost_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"status":"5500","message":"temporary"}`)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), "k", "s", nil)

	_, err := client.GetBalance(context.Background(), "")
	if !errors.Is(err, exchange.ErrBadResponse) {
		t.Fatalf("expected ErrBadResponse, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", n)
	}
}

func TestPrivatePost_AuthErrorNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"status":"5100","message":"Invalid Apikey"}`)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL), "k", "s", nil)

	_, err := client.GetBalance(context.Background(), "")
	if !errors.Is(err, exchange.ErrInvalidAPIKey) {
		t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("auth error must not be retried, got %d attempts", n)
	}
}
