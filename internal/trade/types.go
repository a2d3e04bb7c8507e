package trade

import (
	"context"

	"event-trader/internal/account"
	"event-trader/internal/exchange"
)

// Client 是交易序列所需的最小交易所能力。
// 由具体交易所客户端实现，测试中用假实现替代。
type Client interface {
	GetBalance(ctx context.Context, currency string) (map[string]exchange.Balance, error)
	MarketBuyKRW(ctx context.Context, symbol string, krwAmount float64) (*exchange.Order, error)
	CreateMarketOrder(ctx context.Context, symbol string, side exchange.OrderSide, amount float64) (*exchange.Order, error)
}

// ClientFactory 为指定账户构造独立的交易所客户端。
// 每个账户的凭证与连接互不共享。
type ClientFactory func(acct account.Account) Client

// Result 记录一次 (账户, 交易对) 交易序列的最终结果。
// 成功时买卖订单都存在；失败时 Error 标明失败原因，
// 订单字段反映序列推进到了哪一步。
type Result struct {
	Account   string
	Symbol    string
	Success   bool
	BuyOrder  *exchange.Order
	SellOrder *exchange.Order
	Error     string
}
