package schedule

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"event-trader/internal/config"
)

// RunFunc 执行一天的交易流程，settleWait 为该天买入后的结算等待。
type RunFunc func(ctx context.Context, day int, settleWait time.Duration) error

// CleanupFunc 执行一次残币清理。
type CleanupFunc func(ctx context.Context) error

// Scheduler 负责多日活动的定时执行：第一天立即执行，
// 之后每天在配置的本地时刻触发一次。
type Scheduler struct {
	cfg       config.ScheduleConfig
	firstWait time.Duration
	loc       *time.Location
	logger    *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler 创建调度器。firstWait 为第一天使用的结算等待，
// 后续天改用 cfg.SettleWait。
func NewScheduler(cfg config.ScheduleConfig, firstWait time.Duration, logger *zap.Logger) (*Scheduler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("初始化调度器失败: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:       cfg,
		firstWait: firstWait,
		loc:       loc,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepCtx,
	}, nil
}

// Run 依次执行 1..eventDays 天的交易。单天执行失败只记录日志，
// 不影响剩余天数；cleanup 非空时在首个完成的交易日之后执行一次。
func (s *Scheduler) Run(ctx context.Context, eventDays int, run RunFunc, cleanup CleanupFunc) error {
	if eventDays <= 0 {
		eventDays = 1
	}

	cleanupPending := cleanup != nil

	for day := 1; day <= eventDays; day++ {
		settleWait := s.firstWait
		if day > 1 {
			target := s.nextTrigger(s.now().In(s.loc))
			s.logger.Info("等待下一次定时触发",
				zap.Int("day", day),
				zap.Time("trigger_at", target))
			if err := s.waitUntil(ctx, target); err != nil {
				return err
			}
			settleWait = s.cfg.SettleWait
		}

		s.logger.Info("开始执行当日交易",
			zap.Int("day", day),
			zap.Int("event_days", eventDays),
			zap.Duration("settle_wait", settleWait))

		if err := run(ctx, day, settleWait); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("当日交易执行失败",
				zap.Int("day", day),
				zap.Error(err))
		}

		if cleanupPending {
			cleanupPending = false
			if err := cleanup(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("残币清理失败", zap.Error(err))
			}
		}
	}

	s.logger.Info("多日活动执行完成", zap.Int("event_days", eventDays))
	return nil
}

// nextTrigger 返回下一次 HH:MM 触发时刻：今天的触发时刻尚未到达则取今天，
// 否则取明天同一时刻。
func (s *Scheduler) nextTrigger(now time.Time) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(),
		s.cfg.Hour, s.cfg.Minute, 0, 0, s.loc)
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// waitUntil 以不超过 MaxSleepChunk 的片段休眠直到目标时刻，
// 每次醒来重新计算剩余时间，便于及时响应取消。
func (s *Scheduler) waitUntil(ctx context.Context, target time.Time) error {
	for {
		remaining := target.Sub(s.now())
		if remaining <= 0 {
			return nil
		}
		if remaining > s.cfg.MaxSleepChunk {
			remaining = s.cfg.MaxSleepChunk
		}
		if err := s.sleep(ctx, remaining); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
