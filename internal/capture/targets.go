package capture

import (
	"context"
	"sync"

	"backtrack/pkg/domain"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/rpcc"
)

// targetSession 已附加的浏览器目标
type targetSession struct {
	ID     domain.TargetID
	URL    string
	Conn   *rpcc.Conn
	Client *cdp.Client
	Ctx    context.Context
	Cancel context.CancelFunc
	tr     *translator
}

// targetSet 已附加目标集合
type targetSet struct {
	mu      sync.RWMutex
	targets map[domain.TargetID]*targetSession
}

func newTargetSet() *targetSet {
	return &targetSet{targets: make(map[domain.TargetID]*targetSession)}
}

// has 是否已附加
func (s *targetSet) has(id domain.TargetID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.targets[id]
	return ok
}

// add 登记会话，已存在时返回 false
func (s *targetSet) add(ts *targetSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.targets[ts.ID]; ok {
		return false
	}
	s.targets[ts.ID] = ts
	return true
}

// remove 断开并移除单个目标
func (s *targetSet) remove(id domain.TargetID) {
	s.mu.Lock()
	ts, ok := s.targets[id]
	delete(s.targets, id)
	s.mu.Unlock()
	if ok {
		closeSession(ts)
	}
}

// removeAll 断开所有目标
func (s *targetSet) removeAll() {
	s.mu.Lock()
	all := s.targets
	s.targets = make(map[domain.TargetID]*targetSession)
	s.mu.Unlock()
	for _, ts := range all {
		closeSession(ts)
	}
}

// each 遍历当前会话
func (s *targetSet) each(fn func(ts *targetSession)) {
	s.mu.RLock()
	list := make([]*targetSession, 0, len(s.targets))
	for _, ts := range s.targets {
		list = append(list, ts)
	}
	s.mu.RUnlock()
	for _, ts := range list {
		fn(ts)
	}
}

// size 已附加数量
func (s *targetSet) size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.targets)
}

// closeSession 先取消上下文，再关闭连接
func closeSession(ts *targetSession) {
	if ts == nil {
		return
	}
	if ts.Cancel != nil {
		ts.Cancel()
	}
	if ts.Conn != nil {
		_ = ts.Conn.Close()
	}
}

// pageTargets 过滤出可附加的 page 目标
func pageTargets(targets []*devtool.Target) []domain.TargetInfo {
	out := make([]domain.TargetInfo, 0, len(targets))
	for _, t := range targets {
		if t == nil || t.Type != devtool.Page || t.WebSocketDebuggerURL == "" {
			continue
		}
		out = append(out, domain.TargetInfo{
			ID:    domain.TargetID(t.ID),
			Type:  string(t.Type),
			URL:   t.URL,
			Title: t.Title,
		})
	}
	return out
}
