package account

import (
	"fmt"
	"os"
	"strings"
)

const (
	envAPIKey    = "BITHUMB_API_KEY"
	envSecretKey = "BITHUMB_SECRET_KEY"
)

// Account 表示一个参与活动的交易所账户凭证。
// 凭证在进程启动时加载一次，之后不可变，也绝不跨账户共享。
type Account struct {
	ID        string
	APIKey    string
	APISecret string
}

// LoadFromEnv 从环境变量加载账户列表。
//
// 优先读取带编号的键对(BITHUMB_API_KEY_1 / BITHUMB_SECRET_KEY_1, ...)，
// 编号从1开始连续递增，遇到缺口即停止。没有任何编号键时回退到
// 不带编号的单账户键对。
func LoadFromEnv() []Account {
	var accounts []Account

	for n := 1; ; n++ {
		apiKey := os.Getenv(fmt.Sprintf("%s_%d", envAPIKey, n))
		apiSecret := os.Getenv(fmt.Sprintf("%s_%d", envSecretKey, n))
		if apiKey == "" || apiSecret == "" {
			break
		}
		accounts = append(accounts, newAccount(fmt.Sprintf("account_%d", n), apiKey, apiSecret))
	}

	if len(accounts) > 0 {
		return accounts
	}

	apiKey := os.Getenv(envAPIKey)
	apiSecret := os.Getenv(envSecretKey)
	if apiKey != "" && apiSecret != "" {
		return []Account{newAccount("account_1", apiKey, apiSecret)}
	}

	return nil
}

func newAccount(id, apiKey, apiSecret string) Account {
	return Account{
		ID:        id,
		APIKey:    strings.Trim(apiKey, `'"`),
		APISecret: strings.Trim(apiSecret, `'"`),
	}
}
