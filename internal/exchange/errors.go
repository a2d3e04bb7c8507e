package exchange

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrInvalidAPIKey 表示认证失败，对该账户立即终止，不做重试。
	ErrInvalidAPIKey = errors.New("exchange: invalid api key")
	// ErrBelowMinOrder 表示下单金额低于交易所最小单位，属于业务规则拒绝。
	ErrBelowMinOrder = errors.New("exchange: order amount below minimum")
	// ErrBadResponse 表示交易所返回了无法解析或非成功状态的响应。
	ErrBadResponse = errors.New("exchange: bad response")
)

// IsRetryable 判断错误是否可重试。
// 认证错误与业务规则拒绝不重试；网络类错误与异常响应可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrInvalidAPIKey) || errors.Is(err, ErrBelowMinOrder) {
		return false
	}
	if errors.Is(err, ErrBadResponse) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
