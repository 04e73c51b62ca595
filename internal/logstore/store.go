// Package logstore 提供按 ID 索引、显式维护插入顺序的请求记录集合
package logstore

import (
	"container/list"
	"sort"

	"backtrack/pkg/domain"

	"github.com/samber/lo"
)

// Entry 记录及其插入序号
type Entry struct {
	Record domain.Record
	Seq    uint64
}

// Store 记录集合。插入顺序由双向链表显式维护，不依赖 map 的遍历顺序。
// Store 本身不加锁，由持有者串行化访问。
type Store struct {
	index map[string]*list.Element
	order *list.List // 元素为 *Entry，按插入先后排列
	seq   uint64
}

// New 创建空集合
func New() *Store {
	return &Store{
		index: make(map[string]*list.Element),
		order: list.New(),
	}
}

// Insert 按 ID 新增或替换。替换时保留原有插入位置。
func (s *Store) Insert(rec domain.Record) {
	if el, ok := s.index[rec.ID]; ok {
		el.Value.(*Entry).Record = rec
		return
	}
	s.seq++
	s.index[rec.ID] = s.order.PushBack(&Entry{Record: rec, Seq: s.seq})
}

// Get 按 ID 查找
func (s *Store) Get(id string) (domain.Record, bool) {
	el, ok := s.index[id]
	if !ok {
		return domain.Record{}, false
	}
	return el.Value.(*Entry).Record, true
}

// SetPinned 修改置顶标记，记录不存在时返回 false
func (s *Store) SetPinned(id string, pinned bool) bool {
	el, ok := s.index[id]
	if !ok {
		return false
	}
	el.Value.(*Entry).Record.Pinned = pinned
	return true
}

// Remove 删除记录，返回是否存在
func (s *Store) Remove(id string) bool {
	el, ok := s.index[id]
	if !ok {
		return false
	}
	s.order.Remove(el)
	delete(s.index, id)
	return true
}

// Clear 清空集合，返回清除数量
func (s *Store) Clear() int {
	n := len(s.index)
	s.index = make(map[string]*list.Element)
	s.order.Init()
	return n
}

// Size 记录数量
func (s *Store) Size() int { return len(s.index) }

// Iterate 按插入顺序遍历，fn 返回 false 时停止。遍历期间不得修改集合。
func (s *Store) Iterate(fn func(e *Entry) bool) {
	for el := s.order.Front(); el != nil; el = el.Next() {
		if !fn(el.Value.(*Entry)) {
			return
		}
	}
}

// Entries 按插入顺序返回条目快照
func (s *Store) Entries() []Entry {
	out := make([]Entry, 0, s.Size())
	s.Iterate(func(e *Entry) bool {
		out = append(out, *e)
		return true
	})
	return out
}

// Snapshot 按插入顺序返回记录副本，用于持久化
func (s *Store) Snapshot() []domain.Record {
	return lo.Map(s.Entries(), func(e Entry, _ int) domain.Record { return e.Record })
}

// NewestFirst 按时间戳降序返回记录深拷贝；时间戳相同时后插入的在前
func (s *Store) NewestFirst() []domain.Record {
	entries := s.Entries()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Record.Timestamp != entries[j].Record.Timestamp {
			return entries[i].Record.Timestamp > entries[j].Record.Timestamp
		}
		return entries[i].Seq > entries[j].Seq
	})
	return lo.Map(entries, func(e Entry, _ int) domain.Record { return e.Record.Clone() })
}
