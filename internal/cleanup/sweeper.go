package cleanup

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"event-trader/internal/account"
	"event-trader/internal/config"
	"event-trader/internal/exchange"
)

const settleDelay = 2 * time.Second

// Client 是残币清理所需的最小交易所能力。
type Client interface {
	GetBalance(ctx context.Context, currency string) (map[string]exchange.Balance, error)
	GetKRWPrices(ctx context.Context) (map[string]float64, error)
	MarketBuyKRW(ctx context.Context, symbol string, krwAmount float64) (*exchange.Order, error)
	CreateMarketOrder(ctx context.Context, symbol string, side exchange.OrderSide, amount float64) (*exchange.Order, error)
}

// ClientFactory 为指定账户构造独立的交易所客户端。
type ClientFactory func(acct account.Account) Client

// Holding 描述一笔估值低于清理阈值的小额持仓。
type Holding struct {
	Coin     string
	Amount   float64
	ValueKRW float64
}

// Result 为单个账户一次清理的结果。
type Result struct {
	CleanedCoins []string
	FailedCoins  []string
	TotalCleaned int
}

// Sweeper 清理估值低于最小下单金额的残币：
// 先补买到可卖额度，再全量卖出。
type Sweeper struct {
	newClient ClientFactory
	cfg       config.CleanupConfig
	settle    time.Duration
	logger    *zap.Logger
}

// NewSweeper 创建残币清理器。
func NewSweeper(newClient ClientFactory, cfg config.CleanupConfig, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		newClient: newClient,
		cfg:       cfg,
		settle:    settleDelay,
		logger:    logger,
	}
}

// Run 对单个账户执行清理。余额或行情不可用时返回空结果；
// 单个币种的失败只影响该币种，批次继续。
func (s *Sweeper) Run(ctx context.Context, acct account.Account) Result {
	logger := s.logger.With(zap.String("account", acct.ID))
	var result Result

	logger.Info("小额残币清理开始", zap.Float64("threshold_krw", s.cfg.ThresholdKRW))

	client := s.newClient(acct)

	balances, err := client.GetBalance(ctx, "")
	if err != nil || len(balances) == 0 {
		logger.Error("余额查询失败，清理中止", zap.Error(err))
		return result
	}

	prices, err := client.GetKRWPrices(ctx)
	if err != nil {
		logger.Error("批量行情查询失败，清理中止", zap.Error(err))
		return result
	}

	holdings := IdentifySmallHoldings(balances, prices, s.cfg.ThresholdKRW, logger)
	if len(holdings) == 0 {
		logger.Info("没有需要清理的残币")
		return result
	}

	logger.Info("发现小额残币", zap.Int("count", len(holdings)))
	for _, holding := range holdings {
		logger.Info("待清理",
			zap.String("coin", holding.Coin),
			zap.Float64("amount", holding.Amount),
			zap.Float64("value_krw", holding.ValueKRW),
		)
	}

	// 逐个处理：补买会改变同一账户的后续余额状态，不能并发。
	for i, holding := range holdings {
		if i > 0 {
			if err := sleepCtx(ctx, s.cfg.CoinPause); err != nil {
				logger.Warn("清理被中断", zap.Error(err))
				break
			}
		}

		if s.sweepCoin(ctx, client, holding.Coin, logger) {
			result.CleanedCoins = append(result.CleanedCoins, holding.Coin)
			result.TotalCleaned++
		} else {
			result.FailedCoins = append(result.FailedCoins, holding.Coin)
		}
	}

	logger.Info("小额残币清理完成",
		zap.Int("cleaned", len(result.CleanedCoins)),
		zap.Int("failed", len(result.FailedCoins)),
	)

	return result
}

// sweepCoin 对单个币种执行 补买→等待→查余额→全量卖出。
func (s *Sweeper) sweepCoin(ctx context.Context, client Client, coin string, logger *zap.Logger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("清理发生未预期异常", zap.String("coin", coin), zap.Any("panic", r))
			ok = false
		}
	}()

	symbol := exchange.NormalizeSymbol(coin)
	logger = logger.With(zap.String("coin", coin))

	buyOrder, err := client.MarketBuyKRW(ctx, symbol, s.cfg.BuyAmountKRW)
	if err != nil || buyOrder == nil {
		logger.Error("补买失败", zap.Error(err))
		return false
	}
	logger.Info("补买完成", zap.Float64("amount_krw", s.cfg.BuyAmountKRW))

	if err := sleepCtx(ctx, s.settle); err != nil {
		logger.Warn("结算等待被中断", zap.Error(err))
		return false
	}

	balances, err := client.GetBalance(ctx, "")
	if err != nil {
		logger.Error("余额复查失败", zap.Error(err))
		return false
	}

	balance, found := balances[coin]
	if !found || balance.Free <= 0 {
		logger.Error("没有可卖出的数量")
		return false
	}

	sellOrder, err := client.CreateMarketOrder(ctx, symbol, exchange.OrderSideSell, balance.Free)
	if err != nil || sellOrder == nil {
		logger.Error("全量卖出失败", zap.Error(err))
		return false
	}

	logger.Info("全量卖出完成", zap.Float64("amount", balance.Free))
	return true
}

// RunAll 并发清理多个账户，返回总清理数。
func (s *Sweeper) RunAll(ctx context.Context, accounts []account.Account, maxConcurrency int) int {
	if len(accounts) == 0 {
		return 0
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	if len(accounts) < maxConcurrency {
		maxConcurrency = len(accounts)
	}

	s.logger.Info("多账户残币清理开始", zap.Int("accounts", len(accounts)))

	totals := make([]int, len(accounts))

	var group errgroup.Group
	group.SetLimit(maxConcurrency)

	for i, acct := range accounts {
		i, acct := i, acct
		group.Go(func() error {
			totals[i] = s.Run(ctx, acct).TotalCleaned
			return nil
		})
	}

	_ = group.Wait()

	total := 0
	for _, n := range totals {
		total += n
	}

	s.logger.Info("多账户残币清理完成", zap.Int("total_cleaned", total))
	return total
}

// IdentifySmallHoldings 在余额中识别估值位于 (0, threshold) 的持仓。
// 计价货币本身被排除；缺少行情的币种跳过并告警。结果按币种名排序。
func IdentifySmallHoldings(
	balances map[string]exchange.Balance,
	prices map[string]float64,
	threshold float64,
	logger *zap.Logger,
) []Holding {
	if logger == nil {
		logger = zap.NewNop()
	}

	var holdings []Holding
	for coin, balance := range balances {
		if coin == exchange.QuoteCurrency {
			continue
		}
		if balance.Free <= 0 {
			continue
		}

		price, found := prices[exchange.BaseAsset(coin)]
		if !found || price <= 0 {
			logger.Warn("缺少行情的持仓被跳过",
				zap.String("coin", coin),
				zap.Float64("amount", balance.Free),
			)
			continue
		}

		value := balance.Free * price
		if value > 0 && value < threshold {
			holdings = append(holdings, Holding{
				Coin:     coin,
				Amount:   balance.Free,
				ValueKRW: value,
			})
		}
	}

	sort.Slice(holdings, func(i, j int) bool {
		return holdings[i].Coin < holdings[j].Coin
	})
	return holdings
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
