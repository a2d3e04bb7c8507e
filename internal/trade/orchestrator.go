package trade

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"event-trader/internal/account"
)

// Orchestrator 把交易序列扇出到 账户×交易对 的全组合上并发执行，
// 唯一的共享状态是只追加的结果队列。
type Orchestrator struct {
	sequencer      *Sequencer
	results        *Queue
	maxConcurrency int
	logger         *zap.Logger
}

// NewOrchestrator 创建并发编排器。
func NewOrchestrator(sequencer *Sequencer, maxConcurrency int, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Orchestrator{
		sequencer:      sequencer,
		results:        NewQueue(),
		maxConcurrency: maxConcurrency,
		logger:         logger,
	}
}

// Results 返回本次运行的结果队列。
func (o *Orchestrator) Results() *Queue {
	return o.results
}

// RunAll 对每个 (账户, 交易对) 组合运行一次交易序列。
// 所有任务结束后才返回；单个任务的彻底失败不会取消或阻塞其他任务。
// 账户或交易对为空时不做任何事。
func (o *Orchestrator) RunAll(ctx context.Context, accounts []account.Account, symbols []string, settleWait time.Duration) {
	if len(accounts) == 0 || len(symbols) == 0 {
		o.logger.Error("没有可执行的任务",
			zap.Int("accounts", len(accounts)),
			zap.Int("symbols", len(symbols)),
		)
		return
	}

	taskCount := len(accounts) * len(symbols)
	limit := o.maxConcurrency
	if taskCount < limit {
		limit = taskCount
	}

	o.logger.Info("多账户活动参与开始",
		zap.Int("accounts", len(accounts)),
		zap.Strings("symbols", symbols),
		zap.Int("tasks", taskCount),
		zap.Int("concurrency", limit),
	)

	var group errgroup.Group
	group.SetLimit(limit)

	for _, acct := range accounts {
		for _, symbol := range symbols {
			acct, symbol := acct, symbol
			group.Go(func() error {
				// 序列内部已吸收一切异常，这里再兜底一层，
				// 保证调度故障也不会波及其他任务。
				defer func() {
					if r := recover(); r != nil {
						o.logger.Error("任务执行异常",
							zap.String("account", acct.ID),
							zap.String("symbol", symbol),
							zap.Any("panic", r),
						)
					}
				}()

				o.results.Push(o.sequencer.Run(ctx, acct, symbol, settleWait))
				return nil
			})
		}
	}

	_ = group.Wait()
}
