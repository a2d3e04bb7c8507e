package trade

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"event-trader/internal/account"
	"event-trader/internal/exchange"
)

const (
	balanceRetryCount = 3
	balanceRetryDelay = 2 * time.Second

	// 买入成交后允许序列收尾的宽限时间：取消只阻止新序列开始，
	// 已买入的仓位仍要完成它的一次卖出尝试。
	postBuyGrace = 2 * time.Minute
)

// 失败原因，也是结果里对外可见的错误描述。
const (
	reasonBuyFailed   = "buy failed"
	reasonNoBalance   = "no balance to sell"
	reasonSellFailed  = "sell failed"
	reasonInterrupted = "interrupted"
)

// Sequencer 执行单个账户在单个交易对上的 买入→等待→查余额→卖出 序列。
type Sequencer struct {
	newClient    ClientFactory
	amountKRW    float64
	balanceDelay time.Duration
	logger       *zap.Logger
}

// NewSequencer 创建交易序列执行器。
func NewSequencer(newClient ClientFactory, amountKRW float64, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{
		newClient:    newClient,
		amountKRW:    amountKRW,
		balanceDelay: balanceRetryDelay,
		logger:       logger,
	}
}

// Run 执行完整交易序列并返回结构化结果。
// 任何失败（包括 panic）都被转化为失败结果，绝不越过本方法边界向上传播。
func (s *Sequencer) Run(ctx context.Context, acct account.Account, symbol string, settleWait time.Duration) (result Result) {
	symbol = exchange.NormalizeSymbol(symbol)
	logger := s.logger.With(zap.String("account", acct.ID), zap.String("symbol", symbol))

	result = Result{Account: acct.ID, Symbol: symbol}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("交易序列发生未预期异常", zap.Any("panic", r))
			result.Success = false
			result.SellOrder = nil
			result.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	logger.Info("活动参与开始", zap.Float64("amount_krw", s.amountKRW))

	client := s.newClient(acct)

	buyOrder, err := client.MarketBuyKRW(ctx, symbol, s.amountKRW)
	if err != nil || buyOrder == nil {
		logger.Error("买入失败", zap.Error(err))
		result.Error = reasonBuyFailed
		return result
	}
	result.BuyOrder = buyOrder
	logger.Info("买入完成", zap.String("order_id", buyOrder.ID))

	// 买入已成交，序列余下的结算与卖出脱离外部取消传播，
	// 在宽限时间内照常完成，不把仓位留在场内。
	ctx, cancelGrace := context.WithTimeout(context.WithoutCancel(ctx), postBuyGrace)
	defer cancelGrace()

	// 交易所需要时间把成交反映到余额里。
	if err := sleepCtx(ctx, settleWait); err != nil {
		logger.Warn("结算等待被中断，买入仓位可能尚未卖出", zap.Error(err))
		result.Error = reasonInterrupted
		return result
	}

	coin := exchange.BaseAsset(symbol)
	available, err := s.waitForBalance(ctx, client, coin, logger)
	if err != nil {
		logger.Warn("余额轮询被中断，买入仓位可能尚未卖出", zap.Error(err))
		result.Error = reasonInterrupted
		return result
	}
	if available <= 0 {
		logger.Error("没有可卖出的余额", zap.String("coin", coin))
		result.Error = reasonNoBalance
		return result
	}

	sellOrder, err := client.CreateMarketOrder(ctx, symbol, exchange.OrderSideSell, available)
	if err != nil || sellOrder == nil {
		// 买入已成交而卖出失败，留有真实仓位，向上汇报而不自动补救。
		logger.Error("卖出失败，持仓未平", zap.Float64("amount", available), zap.Error(err))
		result.Error = reasonSellFailed
		return result
	}
	result.SellOrder = sellOrder
	result.Success = true

	logger.Info("活动参与完成",
		zap.String("buy_order", buyOrder.ID),
		zap.String("sell_order", sellOrder.ID),
	)
	return result
}

// waitForBalance 轮询基础币种的可用余额，最多尝试 balanceRetryCount 次，
// 一旦观察到正余额立即返回。查询出错视为本次观察为零，继续重试。
func (s *Sequencer) waitForBalance(ctx context.Context, client Client, coin string, logger *zap.Logger) (float64, error) {
	for attempt := 1; attempt <= balanceRetryCount; attempt++ {
		balances, err := client.GetBalance(ctx, "")
		if err != nil {
			logger.Warn("余额查询失败",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		} else if balance, ok := balances[coin]; ok && balance.Free > 0 {
			return balance.Free, nil
		}

		if attempt < balanceRetryCount {
			if err := sleepCtx(ctx, s.balanceDelay); err != nil {
				return 0, err
			}
		}
	}
	return 0, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
