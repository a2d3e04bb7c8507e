package cli

import (
	"strconv"
	"strings"
)

// ParseSymbols 解析逗号分隔的币种列表：去除空白、统一大写、去重并保持输入顺序。
func ParseSymbols(input string) []string {
	var symbols []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(input, ",") {
		symbol := strings.ToUpper(strings.TrimSpace(part))
		if symbol == "" {
			continue
		}
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}
		symbols = append(symbols, symbol)
	}
	return symbols
}

// parsePositiveInt 解析正整数，空输入或非法输入返回默认值。
func parsePositiveInt(input string, def int) int {
	input = strings.TrimSpace(input)
	if input == "" {
		return def
	}
	n, err := strconv.Atoi(input)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// parseYesNo 解析 y/n 回答，空输入返回默认值。
func parseYesNo(input string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}
