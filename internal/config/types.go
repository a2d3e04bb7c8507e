package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Trade    TradeConfig    `mapstructure:"trade"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MinOrderKRW float64       `mapstructure:"min_order_krw"`
	Retry       RetryConfig   `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// TradeConfig 控制单次活动参与的交易参数。
type TradeConfig struct {
	AmountKRW      float64       `mapstructure:"amount_krw"`
	SettleWait     time.Duration `mapstructure:"settle_wait"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

// CleanupConfig 控制小额残币清理参数。
type CleanupConfig struct {
	ThresholdKRW float64       `mapstructure:"threshold_krw"`
	BuyAmountKRW float64       `mapstructure:"buy_amount_krw"`
	CoinPause    time.Duration `mapstructure:"coin_pause"`
}

// ScheduleConfig 控制多日活动的定时执行。
type ScheduleConfig struct {
	Hour          int           `mapstructure:"hour"`
	Minute        int           `mapstructure:"minute"`
	Timezone      string        `mapstructure:"timezone"`
	SettleWait    time.Duration `mapstructure:"settle_wait"`
	MaxSleepChunk time.Duration `mapstructure:"max_sleep_chunk"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Location 解析配置的时区。
func (c ScheduleConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("解析时区 %q 失败: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.BaseURL == "" {
		err = multierr.Append(err, errors.New("exchange.base_url 不能为空"))
	}
	if c.Exchange.Timeout <= 0 {
		err = multierr.Append(err, errors.New("exchange.timeout 必须大于0"))
	}
	if c.Exchange.MinOrderKRW <= 0 {
		err = multierr.Append(err, errors.New("exchange.min_order_krw 必须大于0"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.Trade.AmountKRW <= 0 {
		err = multierr.Append(err, errors.New("trade.amount_krw 必须大于0"))
	}
	if c.Trade.AmountKRW < c.Exchange.MinOrderKRW {
		err = multierr.Append(err, errors.New("trade.amount_krw 不能低于 exchange.min_order_krw"))
	}
	if c.Trade.SettleWait < 0 {
		err = multierr.Append(err, errors.New("trade.settle_wait 不能为负"))
	}
	if c.Trade.MaxConcurrency <= 0 {
		err = multierr.Append(err, errors.New("trade.max_concurrency 必须大于0"))
	}
	if c.Cleanup.ThresholdKRW <= 0 {
		err = multierr.Append(err, errors.New("cleanup.threshold_krw 必须大于0"))
	}
	if c.Cleanup.BuyAmountKRW < c.Exchange.MinOrderKRW {
		err = multierr.Append(err, errors.New("cleanup.buy_amount_krw 不能低于 exchange.min_order_krw"))
	}
	if c.Cleanup.CoinPause < 0 {
		err = multierr.Append(err, errors.New("cleanup.coin_pause 不能为负"))
	}
	if c.Schedule.Hour < 0 || c.Schedule.Hour > 23 {
		err = multierr.Append(err, errors.New("schedule.hour 必须位于[0,23]"))
	}
	if c.Schedule.Minute < 0 || c.Schedule.Minute > 59 {
		err = multierr.Append(err, errors.New("schedule.minute 必须位于[0,59]"))
	}
	if c.Schedule.Timezone == "" {
		err = multierr.Append(err, errors.New("schedule.timezone 不能为空"))
	} else if _, locErr := c.Schedule.Location(); locErr != nil {
		err = multierr.Append(err, locErr)
	}
	if c.Schedule.SettleWait < 0 {
		err = multierr.Append(err, errors.New("schedule.settle_wait 不能为负"))
	}
	if c.Schedule.MaxSleepChunk <= 0 {
		err = multierr.Append(err, errors.New("schedule.max_sleep_chunk 必须大于0"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
