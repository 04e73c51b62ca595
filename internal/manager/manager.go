// Package manager 持有请求日志的全部会话状态，串联关联器、日志集合、淘汰策略、持久化与会话控制
package manager

import (
	"context"
	"strings"
	"sync"
	"time"

	"backtrack/internal/correlator"
	"backtrack/internal/eviction"
	"backtrack/internal/logger"
	"backtrack/internal/logstore"
	"backtrack/internal/persist"
	"backtrack/internal/session"
	"backtrack/pkg/domain"
	"backtrack/pkg/errx"

	"github.com/samber/lo"
)

// Options 管理器依赖
type Options struct {
	Bridge  *persist.Bridge
	Session *session.Controller
	// Policy 为零值时使用默认淘汰策略
	Policy eviction.Policy
	// IgnorePrefixes 命中前缀的 URL 在进入关联器之前被丢弃
	IgnorePrefixes []string
	Logger         logger.Logger
}

// Manager 请求日志管理器
type Manager struct {
	corr    *correlator.Correlator
	bridge  *persist.Bridge
	session *session.Controller
	policy  eviction.Policy
	ignore  []string
	log     logger.Logger

	mu      sync.Mutex // 串行化日志集合的读写
	store   *logstore.Store
	writer  *persist.Writer
	started bool
}

// New 创建管理器，需调用 Init 后才开始持久化
func New(opts Options) *Manager {
	l := opts.Logger
	if l == nil {
		l = logger.NewNop()
	}
	policy := opts.Policy
	if policy.MaxEntries == 0 && policy.Retention == 0 {
		policy = eviction.Default()
	}
	return &Manager{
		corr:    correlator.New(l.With("component", "correlator")),
		bridge:  opts.Bridge,
		session: opts.Session,
		policy:  policy,
		ignore:  opts.IgnorePrefixes,
		log:     l,
		store:   logstore.New(),
	}
}

// Init 从持久层恢复日志、执行一次淘汰、加载采集开关并启动后写队列
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	restored := m.bridge.Restore(ctx)
	for _, r := range restored {
		m.store.Insert(r)
	}
	removed := m.policy.Prune(m.store)
	enabled := m.session.Load(ctx)

	m.writer = persist.NewWriter(m.bridge, m.log.With("component", "writer"))
	m.started = true
	m.log.Info("请求日志管理器已启动",
		"restored", len(restored), "evicted", len(removed), "enabled", enabled)
	return nil
}

// Shutdown 停止后写队列并同步保存一次最终快照
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	w := m.writer
	m.writer = nil
	m.mu.Unlock()

	w.Stop()

	m.mu.Lock()
	snapshot := m.store.Snapshot()
	m.mu.Unlock()
	m.bridge.Save(ctx, snapshot)
	m.log.Info("请求日志管理器已停止", "count", len(snapshot))
}

// Ignored 是否为需要在入口处过滤的 URL
func (m *Manager) Ignored(url string) bool {
	return lo.ContainsBy(m.ignore, func(prefix string) bool {
		return strings.HasPrefix(url, prefix)
	})
}

// RequestHeadersSent 请求头已发送
func (m *Manager) RequestHeadersSent(ev domain.RequestHeadersEvent) {
	if m.Ignored(ev.URL) {
		return
	}
	m.corr.OnRequestHeadersSent(ev)
}

// ResponseHeadersReceived 响应头已接收
func (m *Manager) ResponseHeadersReceived(ev domain.ResponseHeadersEvent) {
	if m.Ignored(ev.URL) {
		return
	}
	m.corr.OnResponseHeadersReceived(ev)
}

// Completed 请求完成：合并为记录，采集开启时入库并淘汰，然后提交后写。
// 关联缓冲无论是否入库都会被释放。
func (m *Manager) Completed(ev domain.CompletedEvent) bool {
	if m.Ignored(ev.URL) {
		return false
	}
	rec := m.corr.OnCompleted(ev)
	if !m.session.Enabled() {
		return false
	}

	m.mu.Lock()
	m.store.Insert(rec)
	removed := m.policy.Prune(m.store)
	snapshot := m.store.Snapshot()
	w := m.writer
	m.mu.Unlock()

	if len(removed) > 0 {
		m.log.Debug("淘汰请求记录", "count", len(removed))
	}
	if w != nil {
		w.Schedule(snapshot)
	}
	return true
}

// Abandoned 请求不再入库（如属于已清空的旧页面），只释放关联缓冲
func (m *Manager) Abandoned(requestID string) {
	m.corr.Drop(requestID)
}

// Navigated 页面导航提交，满足条件时清空日志，返回是否清空
func (m *Manager) Navigated(ctx context.Context, ev domain.NavigationEvent) bool {
	if !m.session.ShouldReset(ev) {
		return false
	}
	if err := m.Clear(ctx); err != nil {
		m.log.Err(err, "导航清空时清除持久层失败", "url", ev.URL)
	}
	m.log.Debug("顶层导航，日志已清空", "url", ev.URL)
	return true
}

// Log 返回按时间倒序排列的记录副本
func (m *Manager) Log() []domain.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.NewestFirst()
}

// Size 当前记录数
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Size()
}

// Clear 清空内存日志并清除持久层。内存总会被清空，持久层全部失败时返回错误。
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	n := m.store.Clear()
	if m.writer != nil {
		m.writer.Discard()
	}
	m.mu.Unlock()

	if err := m.bridge.Clear(ctx); err != nil {
		return errx.Wrap(errx.CodeStorageClear, err, "clear persisted log")
	}
	m.log.Debug("请求日志已清空", "count", n)
	return nil
}

// SetPinned 修改记录的置顶标记
func (m *Manager) SetPinned(id string, pinned bool) error {
	m.mu.Lock()
	ok := m.store.SetPinned(id, pinned)
	snapshot := m.store.Snapshot()
	w := m.writer
	m.mu.Unlock()

	if !ok {
		return errx.Wrap(errx.CodeRecordNotFound, domain.ErrRecordNotFound, id)
	}
	if w != nil {
		w.Schedule(snapshot)
	}
	return nil
}

// TrackingEnabled 返回持久化的采集开关，失败时为默认值
func (m *Manager) TrackingEnabled(ctx context.Context) bool {
	return m.session.TrackingState(ctx)
}

// SetTrackingEnabled 更新采集开关
func (m *Manager) SetTrackingEnabled(ctx context.Context, enabled bool) error {
	return m.session.SetEnabled(ctx, enabled)
}

// SweepOrphans 释放超时仍未完成的关联缓冲
func (m *Manager) SweepOrphans(maxAge time.Duration) int {
	return m.corr.Sweep(maxAge)
}

// Pending 在途关联缓冲数量
func (m *Manager) Pending() (requests, responses int) {
	return m.corr.Pending()
}
