package bithumb

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"event-trader/internal/config"
	"event-trader/internal/exchange"
)

const (
	statusOK            = "0000"
	statusInvalidAPIKey = "5100"

	balanceEndpoint    = "/info/balance"
	marketBuyEndpoint  = "/trade/market_buy"
	marketSellEndpoint = "/trade/market_sell"
)

// Client 是 Bithumb 私有 API 客户端，持有单个账户的凭证并实现重试机制。
// 凭证绝不跨账户共享，每个账户使用独立的 Client 实例。
type Client struct {
	cfg    config.ExchangeConfig
	logger *zap.Logger

	apiKey    string
	apiSecret string

	httpClient *http.Client
	now        func() time.Time
}

// NewClient 构造 Bithumb 客户端。
func NewClient(cfg config.ExchangeConfig, apiKey, apiSecret string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		cfg:        cfg,
		logger:     logger,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	OrderID string          `json:"order_id"`
	Data    json.RawMessage `json:"data"`
}

// sign 为一次私有请求生成签名。
// 签名数据为 endpoint + NUL + 表单编码参数 + NUL + 毫秒时间戳 nonce，
// 摘要为 HMAC-SHA512 的十六进制串再做 base64。
func (c *Client) sign(endpoint string, params url.Values, nonce string) string {
	data := endpoint + "\x00" + params.Encode() + "\x00" + nonce

	mac := hmac.New(sha512.New, []byte(c.apiSecret))
	mac.Write([]byte(data))
	digest := hex.EncodeToString(mac.Sum(nil))

	return base64.StdEncoding.EncodeToString([]byte(digest))
}

func (c *Client) nonce() string {
	return strconv.FormatInt(c.now().UnixMilli(), 10)
}

// privatePost 发送签名后的私有请求，内部按配置做指数退避重试。
// 每次重试都会重新生成 nonce 与签名。
func (c *Client) privatePost(ctx context.Context, endpoint string, params url.Values) (*apiResponse, error) {
	var resp *apiResponse

	err := c.callWithRetry(ctx, endpoint, func() error {
		nonce := c.nonce()
		body := params.Encode()

		req, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			c.cfg.BaseURL+endpoint,
			strings.NewReader(body),
		)
		if err != nil {
			return err
		}

		req.Header.Set("Api-Key", c.apiKey)
		req.Header.Set("Api-Sign", c.sign(endpoint, params, nonce))
		req.Header.Set("Api-Nonce", nonce)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		result, err := c.do(req)
		if err != nil {
			return err
		}

		if result.Status == statusInvalidAPIKey {
			return fmt.Errorf("%w: %s", exchange.ErrInvalidAPIKey, result.Message)
		}
		if result.Status != statusOK {
			return fmt.Errorf("%w: status=%s message=%s", exchange.ErrBadResponse, result.Status, result.Message)
		}

		resp = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// publicGet 请求公开行情端点，同样套用重试机制。
func (c *Client) publicGet(ctx context.Context, path string) (*apiResponse, error) {
	var resp *apiResponse

	err := c.callWithRetry(ctx, path, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
		if err != nil {
			return err
		}

		result, err := c.do(req)
		if err != nil {
			return err
		}
		if result.Status != statusOK {
			return fmt.Errorf("%w: status=%s message=%s", exchange.ErrBadResponse, result.Status, result.Message)
		}

		resp = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (c *Client) do(req *http.Request) (*apiResponse, error) {
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrBadResponse, err)
	}

	var result apiResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("%w: http=%d 响应无法解析: %v", exchange.ErrBadResponse, httpResp.StatusCode, err)
	}

	return &result, nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	maxAttempts := c.cfg.Retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = time.Second
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 8 * time.Second
	}

	attempt := 0
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := c.now()
		err := fn()
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
				)
			}
			return nil
		}

		if !exchange.IsRetryable(err) || attempt >= maxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", time.Since(start)),
				zap.Error(err),
			)
			return err
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// GetBalance 查询资产余额。currency 为空时返回全部币种。
// KRW 始终包含在结果内，其他币种仅在总量为正时返回。
func (c *Client) GetBalance(ctx context.Context, currency string) (map[string]exchange.Balance, error) {
	params := url.Values{}
	if currency == "" {
		params.Set("currency", "ALL")
	} else {
		params.Set("currency", strings.ToUpper(currency))
	}

	resp, err := c.privatePost(ctx, balanceEndpoint, params)
	if err != nil {
		return nil, err
	}

	var data map[string]interface{}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: 余额数据无法解析: %v", exchange.ErrBadResponse, err)
	}

	balances := make(map[string]exchange.Balance)

	if currency != "" {
		lower := strings.ToLower(currency)
		balances[strings.ToUpper(currency)] = exchange.Balance{
			Free:  toFloat(data["available_"+lower]),
			Used:  toFloat(data["in_use_"+lower]),
			Total: toFloat(data["total_"+lower]),
		}
		return balances, nil
	}

	if _, ok := data["total_krw"]; ok {
		balances[exchange.QuoteCurrency] = exchange.Balance{
			Free:  toFloat(data["available_krw"]),
			Used:  toFloat(data["in_use_krw"]),
			Total: toFloat(data["total_krw"]),
		}
	}

	for key, value := range data {
		if !strings.HasPrefix(key, "total_") || strings.HasSuffix(key, "krw") {
			continue
		}
		total := toFloat(value)
		if total <= 0 {
			continue
		}
		lower := strings.TrimPrefix(key, "total_")
		balances[strings.ToUpper(lower)] = exchange.Balance{
			Free:  toFloat(data["available_"+lower]),
			Used:  toFloat(data["in_use_"+lower]),
			Total: total,
		}
	}

	return balances, nil
}

// GetTicker 返回交易对的行情快照，买一卖一价取自订单簿。
func (c *Client) GetTicker(ctx context.Context, symbol string) (*exchange.Ticker, error) {
	coin := exchange.BaseAsset(symbol)

	tickerResp, err := c.publicGet(ctx, "/public/ticker/"+coin+"_"+exchange.QuoteCurrency)
	if err != nil {
		return nil, err
	}

	var tickerData map[string]interface{}
	if err := json.Unmarshal(tickerResp.Data, &tickerData); err != nil {
		return nil, fmt.Errorf("%w: 行情数据无法解析: %v", exchange.ErrBadResponse, err)
	}

	ticker := &exchange.Ticker{
		Last:   toFloat(tickerData["closing_price"]),
		Volume: toFloat(tickerData["units_traded_24H"]),
	}

	// 订单簿失败不致命，买一卖一价留空。
	orderbookResp, err := c.publicGet(ctx, "/public/orderbook/"+coin+"_"+exchange.QuoteCurrency)
	if err == nil {
		var book struct {
			Bids []struct {
				Price interface{} `json:"price"`
			} `json:"bids"`
			Asks []struct {
				Price interface{} `json:"price"`
			} `json:"asks"`
		}
		if err := json.Unmarshal(orderbookResp.Data, &book); err == nil {
			if len(book.Bids) > 0 {
				ticker.Bid = toFloat(book.Bids[0].Price)
			}
			if len(book.Asks) > 0 {
				ticker.Ask = toFloat(book.Asks[0].Price)
			}
		}
	} else {
		c.logger.Warn("订单簿查询失败", zap.String("symbol", symbol), zap.Error(err))
	}

	return ticker, nil
}

// GetKRWPrices 通过批量行情端点返回全部 KRW 市场的收盘价表。
// 缺少收盘价的条目会被跳过。
func (c *Client) GetKRWPrices(ctx context.Context) (map[string]float64, error) {
	resp, err := c.publicGet(ctx, "/public/ticker/ALL_"+exchange.QuoteCurrency)
	if err != nil {
		return nil, err
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: 批量行情无法解析: %v", exchange.ErrBadResponse, err)
	}

	prices := make(map[string]float64, len(data))
	for coin, raw := range data {
		if coin == "date" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		closing, ok := entry["closing_price"]
		if !ok {
			continue
		}
		prices[strings.ToUpper(coin)] = toFloat(closing)
	}

	return prices, nil
}

// GetKRWMarkets 返回支持的 KRW 交易对列表。
func (c *Client) GetKRWMarkets(ctx context.Context) ([]string, error) {
	prices, err := c.GetKRWPrices(ctx)
	if err != nil {
		return nil, err
	}

	markets := make([]string, 0, len(prices))
	for coin := range prices {
		markets = append(markets, coin+"/"+exchange.QuoteCurrency)
	}
	return markets, nil
}

// MarketBuyKRW 按 KRW 金额市价买入。
// 低于最小下单金额的请求在本地直接拒绝，不会发往交易所。
func (c *Client) MarketBuyKRW(ctx context.Context, symbol string, krwAmount float64) (*exchange.Order, error) {
	coin := exchange.BaseAsset(symbol)

	if krwAmount < c.cfg.MinOrderKRW {
		c.logger.Error("下单金额低于最小限制",
			zap.String("symbol", symbol),
			zap.Float64("amount_krw", krwAmount),
			zap.Float64("min_order_krw", c.cfg.MinOrderKRW),
		)
		return nil, fmt.Errorf("%w: %.0f KRW < %.0f KRW", exchange.ErrBelowMinOrder, krwAmount, c.cfg.MinOrderKRW)
	}

	ticker, err := c.GetTicker(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("查询现价失败: %w", err)
	}
	if ticker.Last <= 0 {
		return nil, fmt.Errorf("%w: %s 现价无效", exchange.ErrBadResponse, symbol)
	}

	// 数量按 Bithumb 规则保留8位小数。
	units := math.Round(krwAmount/ticker.Last*1e8) / 1e8

	params := url.Values{}
	params.Set("order_currency", coin)
	params.Set("payment_currency", exchange.QuoteCurrency)
	params.Set("units", formatUnits(units))
	params.Set("type", "bid")

	resp, err := c.privatePost(ctx, marketBuyEndpoint, params)
	if err != nil {
		return nil, err
	}

	c.logger.Info("市价买入成功",
		zap.String("symbol", symbol),
		zap.Float64("amount_krw", krwAmount),
		zap.Float64("units", units),
	)

	return &exchange.Order{
		ID:     resp.OrderID,
		Symbol: exchange.NormalizeSymbol(symbol),
		Side:   exchange.OrderSideBuy,
		Amount: units,
		Filled: units,
		Status: "closed",
	}, nil
}

// CreateMarketOrder 按数量市价下单。
func (c *Client) CreateMarketOrder(ctx context.Context, symbol string, side exchange.OrderSide, amount float64) (*exchange.Order, error) {
	coin := exchange.BaseAsset(symbol)

	params := url.Values{}
	params.Set("order_currency", coin)
	params.Set("payment_currency", exchange.QuoteCurrency)
	params.Set("units", formatUnits(amount))

	endpoint := marketSellEndpoint
	if side == exchange.OrderSideBuy {
		params.Set("type", "bid")
		endpoint = marketBuyEndpoint
	} else {
		params.Set("type", "ask")
	}

	resp, err := c.privatePost(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	c.logger.Info("市价下单成功",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.Float64("units", amount),
	)

	return &exchange.Order{
		ID:     resp.OrderID,
		Symbol: exchange.NormalizeSymbol(symbol),
		Side:   side,
		Amount: amount,
		Filled: amount,
		Status: "closed",
	}, nil
}

func formatUnits(units float64) string {
	return strconv.FormatFloat(units, 'f', -1, 64)
}

func toFloat(v interface{}) float64 {
	switch value := v.(type) {
	case string:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0
		}
		return f
	case float64:
		return value
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
