package account

import (
	"sort"
	"strconv"
	"strings"
)

// ParseSelection 将选择表达式解析为1基索引列表。
//
// 支持 "all"、逗号列表("1,3")与区间("1-3")的任意组合；
// 区间端点可以颠倒，越界索引被丢弃，重复索引会被合并，结果升序。
// 返回 nil 表示表达式中没有任何有效索引。
func ParseSelection(selection string, max int) []int {
	selection = strings.TrimSpace(strings.ToLower(selection))
	if selection == "" || selection == "all" {
		indices := make([]int, 0, max)
		for i := 1; i <= max; i++ {
			indices = append(indices, i)
		}
		return indices
	}

	seen := make(map[int]struct{})
	for _, part := range strings.Split(selection, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			bounds := strings.SplitN(part, "-", 2)
			start, errStart := strconv.Atoi(strings.TrimSpace(bounds[0]))
			end, errEnd := strconv.Atoi(strings.TrimSpace(bounds[1]))
			if errStart != nil || errEnd != nil {
				continue
			}
			if start > end {
				start, end = end, start
			}
			for i := start; i <= end; i++ {
				if i >= 1 && i <= max {
					seen[i] = struct{}{}
				}
			}
			continue
		}

		index, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		if index >= 1 && index <= max {
			seen[index] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return nil
	}

	indices := make([]int, 0, len(seen))
	for i := range seen {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices
}

// Pick 按1基索引列表挑选账户。
func Pick(accounts []Account, indices []int) []Account {
	selected := make([]Account, 0, len(indices))
	for _, i := range indices {
		if i >= 1 && i <= len(accounts) {
			selected = append(selected, accounts[i-1])
		}
	}
	return selected
}
