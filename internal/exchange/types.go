package exchange

import "strings"

// QuoteCurrency 是所有交易对的计价货币。
const QuoteCurrency = "KRW"

// OrderSide 表示下单方向。
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Balance 描述单一币种的资产状态。
type Balance struct {
	Free  float64
	Used  float64
	Total float64
}

// Ticker 为单个交易对的行情快照。
type Ticker struct {
	Last   float64
	Bid    float64
	Ask    float64
	Volume float64
}

// Order 为已提交订单的结果摘要。
type Order struct {
	ID     string
	Symbol string
	Side   OrderSide
	Amount float64
	Filled float64
	Status string
}

// NormalizeSymbol 将裸币种符号归一化为 BASE/KRW 形式。
// 已带计价后缀的输入只做大写处理。
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return s
	}
	if strings.Contains(s, "/") {
		return s
	}
	return s + "/" + QuoteCurrency
}

// BaseAsset 返回交易对的基础币种(BTC/KRW → BTC)。
func BaseAsset(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if idx := strings.Index(s, "/"); idx > 0 {
		return s[:idx]
	}
	return s
}
