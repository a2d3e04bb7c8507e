package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"event-trader/internal/account"
)

// ErrAborted 表示操作员在确认环节放弃了本次执行。
var ErrAborted = errors.New("操作员取消了本次执行")

// Options 为交互环节收集到的运行参数。
type Options struct {
	Accounts    []account.Account
	BalanceOnly bool
	Symbols     []string
	EventDays   int
	Concurrency int
	Cleanup     bool
}

// Prompter 通过标准输入输出与操作员交互。
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Collect 按固定顺序询问全部运行参数。
// 账户选择与币种列表在输入无效时重新询问；输入流耗尽返回错误。
func (p *Prompter) Collect(accounts []account.Account, defaultConcurrency int) (Options, error) {
	var opts Options

	fmt.Fprintln(p.out, "已加载账户:")
	for i, acct := range accounts {
		fmt.Fprintf(p.out, "  %d. %s\n", i+1, acct.ID)
	}

	indices, err := p.askSelection(len(accounts))
	if err != nil {
		return opts, err
	}
	opts.Accounts = account.Pick(accounts, indices)

	answer, err := p.ask("仅查询余额? (y/N): ")
	if err != nil {
		return opts, err
	}
	opts.BalanceOnly = parseYesNo(answer, false)
	if opts.BalanceOnly {
		return opts, nil
	}

	opts.Symbols, err = p.askSymbols()
	if err != nil {
		return opts, err
	}

	answer, err = p.ask("活动天数 (默认 1): ")
	if err != nil {
		return opts, err
	}
	opts.EventDays = parsePositiveInt(answer, 1)

	answer, err = p.ask(fmt.Sprintf("并发数 (默认 %d): ", defaultConcurrency))
	if err != nil {
		return opts, err
	}
	opts.Concurrency = parsePositiveInt(answer, defaultConcurrency)
	if opts.Concurrency > len(opts.Accounts) {
		opts.Concurrency = len(opts.Accounts)
	}

	answer, err = p.ask("执行小额残币清理? (y/N): ")
	if err != nil {
		return opts, err
	}
	opts.Cleanup = parseYesNo(answer, false)

	fmt.Fprintf(p.out, "\n账户 %d 个, 币种 %s, 活动 %d 天, 并发 %d, 清理=%v\n",
		len(opts.Accounts), strings.Join(opts.Symbols, ","), opts.EventDays, opts.Concurrency, opts.Cleanup)
	answer, err = p.ask("确认执行? (y/N): ")
	if err != nil {
		return opts, err
	}
	if !parseYesNo(answer, false) {
		return opts, ErrAborted
	}

	return opts, nil
}

func (p *Prompter) askSelection(max int) ([]int, error) {
	for {
		answer, err := p.ask("请选择账户 (all / 逗号列表 / 区间如 1-3, 默认 all): ")
		if err != nil {
			return nil, err
		}
		if indices := account.ParseSelection(answer, max); indices != nil {
			return indices, nil
		}
		fmt.Fprintln(p.out, "选择无效, 请重新输入")
	}
}

func (p *Prompter) askSymbols() ([]string, error) {
	for {
		answer, err := p.ask("请输入币种列表 (逗号分隔, 如 BTC,XRP): ")
		if err != nil {
			return nil, err
		}
		if symbols := ParseSymbols(answer); len(symbols) > 0 {
			return symbols, nil
		}
		fmt.Fprintln(p.out, "币种列表不能为空, 请重新输入")
	}
}

func (p *Prompter) ask(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("读取输入失败: %w", err)
	}
	return strings.TrimSpace(line), nil
}
