package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"event-trader/internal/account"
	"event-trader/internal/balance"
	"event-trader/internal/cleanup"
	"event-trader/internal/cli"
	"event-trader/internal/config"
	"event-trader/internal/exchange"
	"event-trader/internal/exchange/bithumb"
	"event-trader/internal/schedule"
	"event-trader/internal/trade"
)

// App 负责把各组件装配成可运行的系统。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
}

func New(cfg *config.Config, logger *zap.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run 加载账户凭证，与操作员交互后进入余额查询或多日交易流程。
func (a *App) Run(ctx context.Context) error {
	accounts := account.LoadFromEnv()
	if len(accounts) == 0 {
		return errors.New("未从环境变量加载到任何账户凭证")
	}
	a.logger.Info("账户凭证加载完成", zap.Int("accounts", len(accounts)))

	prompter := cli.NewPrompter(os.Stdin, os.Stdout)
	opts, err := prompter.Collect(accounts, a.cfg.Trade.MaxConcurrency)
	if err != nil {
		if errors.Is(err, cli.ErrAborted) {
			a.logger.Info("操作员取消了执行")
			return nil
		}
		return fmt.Errorf("交互参数收集失败: %w", err)
	}

	if opts.BalanceOnly {
		return a.runBalanceOnly(ctx, opts.Accounts)
	}
	return a.runEvent(ctx, opts)
}

// newClient 为账户构造独立的交易所客户端，凭证不跨账户共享。
func (a *App) newClient(acct account.Account) *bithumb.Client {
	return bithumb.NewClient(a.cfg.Exchange, acct.APIKey, acct.APISecret,
		a.logger.With(zap.String("account", acct.ID)))
}

// runBalanceOnly 逐账户输出 KRW 余额与持仓估值，不做任何交易。
func (a *App) runBalanceOnly(ctx context.Context, accounts []account.Account) error {
	for _, acct := range accounts {
		logger := a.logger.With(zap.String("account", acct.ID))

		summary, err := balance.Summarize(ctx, a.newClient(acct), logger)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("余额查询失败", zap.Error(err))
			continue
		}

		logger.Info("账户余额概览",
			zap.Float64("krw", summary.KRW),
			zap.Float64("total_krw", summary.TotalKRW),
			zap.Int("holdings", len(summary.Holdings)),
		)
		for _, coin := range summary.Holdings {
			logger.Info("持仓估值",
				zap.String("currency", coin.Currency),
				zap.Float64("amount", coin.Amount),
				zap.Float64("value_krw", coin.ValueKRW),
			)
		}
	}
	return nil
}

// validateSymbols 用首个账户查询可交易市场，过滤掉不存在的币种。
// 市场列表查询失败时不拦截，交由下单环节自行报错。
func (a *App) validateSymbols(ctx context.Context, acct account.Account, symbols []string) []string {
	markets, err := a.newClient(acct).GetKRWMarkets(ctx)
	if err != nil {
		a.logger.Warn("市场列表查询失败，跳过币种校验", zap.Error(err))
		return symbols
	}

	tradable := make(map[string]struct{}, len(markets))
	for _, market := range markets {
		tradable[exchange.BaseAsset(market)] = struct{}{}
	}

	valid := symbols[:0]
	for _, symbol := range symbols {
		if _, ok := tradable[exchange.BaseAsset(symbol)]; ok {
			valid = append(valid, symbol)
			continue
		}
		a.logger.Warn("币种不在可交易市场中，已剔除", zap.String("symbol", symbol))
	}
	return valid
}

// runEvent 执行多日活动交易：调度器按天触发编排器，
// 可选的残币清理在首个交易日之后执行一次。
func (a *App) runEvent(ctx context.Context, opts cli.Options) error {
	opts.Symbols = a.validateSymbols(ctx, opts.Accounts[0], opts.Symbols)
	if len(opts.Symbols) == 0 {
		return errors.New("没有可交易的币种")
	}

	sequencer := trade.NewSequencer(func(acct account.Account) trade.Client {
		return a.newClient(acct)
	}, a.cfg.Trade.AmountKRW, a.logger)

	scheduler, err := schedule.NewScheduler(a.cfg.Schedule, a.cfg.Trade.SettleWait, a.logger)
	if err != nil {
		return err
	}

	var cleanupFn schedule.CleanupFunc
	if opts.Cleanup {
		sweeper := cleanup.NewSweeper(func(acct account.Account) cleanup.Client {
			return a.newClient(acct)
		}, a.cfg.Cleanup, a.logger)
		cleanupFn = func(ctx context.Context) error {
			cleaned := sweeper.RunAll(ctx, opts.Accounts, opts.Concurrency)
			a.logger.Info("残币清理完成", zap.Int("cleaned_coins", cleaned))
			return ctx.Err()
		}
	}

	runDay := func(ctx context.Context, day int, settleWait time.Duration) error {
		orchestrator := trade.NewOrchestrator(sequencer, opts.Concurrency, a.logger)
		orchestrator.RunAll(ctx, opts.Accounts, opts.Symbols, settleWait)

		summary := trade.Collect(orchestrator.Results(), a.logger)
		summary.Log(a.logger)
		return ctx.Err()
	}

	return scheduler.Run(ctx, opts.EventDays, runDay, cleanupFn)
}
