package balance

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"event-trader/internal/exchange"
)

// Client 是余额概览所需的最小交易所能力。
type Client interface {
	GetBalance(ctx context.Context, currency string) (map[string]exchange.Balance, error)
	GetKRWPrices(ctx context.Context) (map[string]float64, error)
}

// Coin 为单个持仓的估值明细。
type Coin struct {
	Currency string
	Amount   float64
	ValueKRW float64
}

// Summary 汇总账户的 KRW 余额与全部持仓的 KRW 估值。
type Summary struct {
	KRW      float64
	TotalKRW float64
	Holdings []Coin
}

// Summarize 查询余额与批量行情，返回账户估值概览。
// 缺少行情的持仓计入列表但估值为零，并记录告警。
func Summarize(ctx context.Context, client Client, logger *zap.Logger) (Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var summary Summary

	balances, err := client.GetBalance(ctx, "")
	if err != nil {
		return summary, err
	}
	if len(balances) == 0 {
		return summary, nil
	}

	prices, err := client.GetKRWPrices(ctx)
	if err != nil {
		return summary, err
	}

	for currency, balance := range balances {
		if currency == exchange.QuoteCurrency {
			summary.KRW = balance.Total
			summary.TotalKRW += balance.Total
			continue
		}
		if balance.Total <= 0 {
			continue
		}

		price, found := prices[exchange.BaseAsset(currency)]
		if !found {
			logger.Warn("持仓缺少行情，估值记为零", zap.String("currency", currency))
		}

		value := balance.Total * price
		summary.TotalKRW += value
		summary.Holdings = append(summary.Holdings, Coin{
			Currency: currency,
			Amount:   balance.Total,
			ValueKRW: value,
		})
	}

	sort.Slice(summary.Holdings, func(i, j int) bool {
		return summary.Holdings[i].Currency < summary.Holdings[j].Currency
	})

	return summary, nil
}
