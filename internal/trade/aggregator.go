package trade

import (
	"go.uber.org/zap"

	"event-trader/internal/exchange"
)

// Tally 是单个币种的成功/失败计数。
type Tally struct {
	Success int
	Fail    int
}

// Summary 为一次运行的聚合结果。
type Summary struct {
	Success   int
	Fail      int
	PerSymbol map[string]Tally
}

// Total 返回汇总的任务总数。
func (s Summary) Total() int {
	return s.Success + s.Fail
}

// Collect 取空结果队列并聚合统计，按基础币种分组。
// 队列已空时返回全零汇总（重复调用是幂等的）。
func Collect(queue *Queue, logger *zap.Logger) Summary {
	if logger == nil {
		logger = zap.NewNop()
	}

	summary := Summary{PerSymbol: make(map[string]Tally)}

	for _, result := range queue.Drain() {
		coin := exchange.BaseAsset(result.Symbol)
		tally := summary.PerSymbol[coin]

		if result.Success {
			summary.Success++
			tally.Success++
			logger.Info("任务成功",
				zap.String("account", result.Account),
				zap.String("symbol", coin),
			)
		} else {
			summary.Fail++
			tally.Fail++
			logger.Error("任务失败",
				zap.String("account", result.Account),
				zap.String("symbol", coin),
				zap.String("reason", result.Error),
			)
		}

		summary.PerSymbol[coin] = tally
	}

	return summary
}

// Log 输出运行级别的汇总日志，多币种时附带分币种明细。
func (s Summary) Log(logger *zap.Logger) {
	if logger == nil {
		return
	}

	logger.Info("运行结果汇总",
		zap.Int("total", s.Total()),
		zap.Int("success", s.Success),
		zap.Int("fail", s.Fail),
	)

	if len(s.PerSymbol) > 1 {
		for coin, tally := range s.PerSymbol {
			logger.Info("分币种结果",
				zap.String("symbol", coin),
				zap.Int("success", tally.Success),
				zap.Int("fail", tally.Fail),
			)
		}
	}
}
