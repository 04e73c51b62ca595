// Package eviction 实现请求日志的保留策略：按时间窗口与最大条数淘汰，置顶记录豁免
package eviction

import (
	"sort"
	"time"

	"backtrack/internal/logstore"

	"github.com/samber/lo"
)

const (
	// RetentionWindow 非置顶记录的保留时长
	RetentionWindow = 5 * time.Minute
	// MaxEntries 集合的名义上限
	MaxEntries = 1000
)

// Policy 淘汰策略
type Policy struct {
	Retention  time.Duration
	MaxEntries int
	Now        func() time.Time
}

// Default 返回固定参数的默认策略
func Default() Policy {
	return Policy{Retention: RetentionWindow, MaxEntries: MaxEntries, Now: time.Now}
}

// Prune 执行一次淘汰，返回被删除的记录ID。
// 先按时间窗口删除过期的非置顶记录，再在超出上限时按时间戳从旧到新删除非置顶记录。
// 置顶记录永不删除，即便仅置顶记录就已超过上限。
func (p Policy) Prune(s *logstore.Store) []string {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	nowMS := float64(now().UnixNano()) / 1e6
	retentionMS := float64(p.Retention) / float64(time.Millisecond)

	var removed []string

	// 1. 按时间窗口
	expired := lo.FilterMap(s.Entries(), func(e logstore.Entry, _ int) (string, bool) {
		return e.Record.ID, !e.Record.Pinned && nowMS-e.Record.Timestamp > retentionMS
	})
	for _, id := range expired {
		s.Remove(id)
	}
	removed = append(removed, expired...)

	// 2. 按条数
	if p.MaxEntries <= 0 || s.Size() <= p.MaxEntries {
		return removed
	}
	candidates := lo.Filter(s.Entries(), func(e logstore.Entry, _ int) bool { return !e.Record.Pinned })
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Record.Timestamp != candidates[j].Record.Timestamp {
			return candidates[i].Record.Timestamp < candidates[j].Record.Timestamp
		}
		return candidates[i].Seq < candidates[j].Seq
	})
	for _, e := range candidates {
		if s.Size() <= p.MaxEntries {
			break
		}
		s.Remove(e.Record.ID)
		removed = append(removed, e.Record.ID)
	}
	return removed
}
