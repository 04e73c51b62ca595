// Package service 在请求日志管理器之上实现查询与命令接口，并提供进程内消息总线
package service

import (
	"context"

	"backtrack/internal/logger"
	"backtrack/internal/manager"
	"backtrack/pkg/api"
	"backtrack/pkg/domain"
)

type svc struct {
	mgr *manager.Manager
	log logger.Logger
}

// New 创建并返回服务层实例
func New(mgr *manager.Manager, l logger.Logger) api.Service {
	if l == nil {
		l = logger.NewNop()
	}
	return &svc{mgr: mgr, log: l}
}

// Log 返回按时间倒序排列的日志
func (s *svc) Log(context.Context) []domain.Record {
	return s.mgr.Log()
}

// ClearLog 清空日志，持久层失败时返回错误但内存已清空
func (s *svc) ClearLog(ctx context.Context) error {
	if err := s.mgr.Clear(ctx); err != nil {
		s.log.Err(err, "清空日志失败")
		return err
	}
	return nil
}

// TrackingState 查询采集开关
func (s *svc) TrackingState(ctx context.Context) bool {
	return s.mgr.TrackingEnabled(ctx)
}

// SetTrackingState 设置采集开关
func (s *svc) SetTrackingState(ctx context.Context, enabled bool) error {
	if err := s.mgr.SetTrackingEnabled(ctx, enabled); err != nil {
		s.log.Err(err, "设置采集开关失败", "enabled", enabled)
		return err
	}
	return nil
}

// SetPinned 修改置顶标记
func (s *svc) SetPinned(_ context.Context, id string, pinned bool) error {
	if err := s.mgr.SetPinned(id, pinned); err != nil {
		s.log.Warn("修改置顶标记失败", "id", id, "error", err.Error())
		return err
	}
	return nil
}
