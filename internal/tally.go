package internal

import (
	"math"
	"slices"
)

// AbstainVote 「不確定」牌，不計入統計
const AbstainVote = "?"

// TallyEntry 單一票值的統計
type TallyEntry struct {
	Vote       string  `json:"vote"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"` // 四捨五入到小數一位
}

// Tally 公開後的投票統計（由參與者的票推導，不另外儲存）
type Tally struct {
	Entries []TallyEntry `json:"entries"`
	Total   int          `json:"total"`
	Tied    bool         `json:"tied"`
	Winner  string       `json:"winner,omitempty"`
}

// ComputeTally 計算統計
//
// 規則：
//   - 空票與 "?" 不計入
//   - 依票數由多到少排序，同票數保持第一次出現的順序
//   - 最高票數有兩個以上票值時為平手，不指定 Winner
func ComputeTally(votes []string) Tally {
	counts := make(map[string]int)
	var order []string
	total := 0

	for _, v := range votes {
		if v == "" || v == AbstainVote {
			continue
		}
		if _, seen := counts[v]; !seen {
			order = append(order, v)
		}
		counts[v]++
		total++
	}

	entries := make([]TallyEntry, 0, len(order))
	for _, v := range order {
		entries = append(entries, TallyEntry{
			Vote:       v,
			Count:      counts[v],
			Percentage: percentage(counts[v], total),
		})
	}
	slices.SortStableFunc(entries, func(a, b TallyEntry) int {
		return b.Count - a.Count
	})

	t := Tally{Entries: entries, Total: total}
	if len(entries) > 1 && entries[0].Count == entries[1].Count {
		t.Tied = true
	} else if len(entries) > 0 {
		t.Winner = entries[0].Vote
	}
	return t
}

func percentage(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)*1000/float64(total)) / 10
}
