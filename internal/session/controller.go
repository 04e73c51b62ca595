// Package session 维护采集开关，并在顶层页面导航时决定是否重置日志
package session

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"sync/atomic"

	"backtrack/internal/logger"
	"backtrack/internal/storage"
	"backtrack/pkg/domain"
	"backtrack/pkg/errx"

	"github.com/tidwall/gjson"
)

// DefaultEnabled 未设置过开关时的采集状态
const DefaultEnabled = true

// Controller 会话控制器
type Controller struct {
	store storage.Backend
	key   string
	log   logger.Logger

	enabled atomic.Bool

	mu        sync.RWMutex
	listeners []func(enabled bool)
}

// New 创建会话控制器，store 为保存开关的持久层
func New(store storage.Backend, key string, l logger.Logger) *Controller {
	if l == nil {
		l = logger.NewNop()
	}
	c := &Controller{store: store, key: key, log: l}
	c.enabled.Store(DefaultEnabled)
	return c
}

// Load 从持久层加载开关，失败时保持默认值
func (c *Controller) Load(ctx context.Context) bool {
	enabled := c.read(ctx)
	c.enabled.Store(enabled)
	return enabled
}

// Enabled 返回内存中的开关状态，供采集热路径使用
func (c *Controller) Enabled() bool { return c.enabled.Load() }

// TrackingState 读取持久化的开关状态，任何错误都回落为默认值
func (c *Controller) TrackingState(ctx context.Context) bool {
	return c.read(ctx)
}

func (c *Controller) read(ctx context.Context) bool {
	if c.store == nil {
		return DefaultEnabled
	}
	data, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		c.log.Warn("读取采集开关失败，使用默认值", "error", err.Error())
		return DefaultEnabled
	}
	if !ok {
		return DefaultEnabled
	}
	switch res := gjson.ParseBytes(data); res.Type {
	case gjson.True:
		return true
	case gjson.False:
		return false
	default:
		c.log.Warn("采集开关格式无效，使用默认值", "value", string(data))
		return DefaultEnabled
	}
}

// SetEnabled 持久化新的开关状态，写入成功后才生效并通知订阅者
func (c *Controller) SetEnabled(ctx context.Context, enabled bool) error {
	if c.store == nil {
		return errx.Wrap(errx.CodeStorageWrite, domain.ErrStorageUnavailable, "persist tracking state")
	}
	data, _ := json.Marshal(enabled)
	if err := c.store.Set(ctx, c.key, data); err != nil {
		return errx.Wrap(errx.CodeStorageWrite, err, "persist tracking state")
	}

	prev := c.enabled.Swap(enabled)
	c.log.Info("采集开关已更新", "enabled", enabled)
	if prev != enabled {
		c.notify(enabled)
	}
	return nil
}

// OnChange 订阅开关变化
func (c *Controller) OnChange(fn func(enabled bool)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) notify(enabled bool) {
	c.mu.RLock()
	listeners := append([]func(bool){}, c.listeners...)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(enabled)
	}
}

// ShouldReset 判断导航事件是否需要清空日志：
// 仅顶层框架、采集开启且目标为 http/https 时成立
func (c *Controller) ShouldReset(ev domain.NavigationEvent) bool {
	if ev.FrameID != 0 || !c.Enabled() {
		return false
	}
	return IsWebURL(ev.URL)
}

// IsWebURL 是否为 http/https 地址
func IsWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
