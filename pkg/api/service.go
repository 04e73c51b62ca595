package api

import (
	"context"

	"backtrack/pkg/domain"
)

// Service 查询与命令接口，由请求日志管理器实现
type Service interface {
	// Log 返回按时间倒序排列的记录副本
	Log(ctx context.Context) []domain.Record

	// ClearLog 清空日志
	ClearLog(ctx context.Context) error

	// TrackingState 返回采集开关，永不失败
	TrackingState(ctx context.Context) bool

	// SetTrackingState 设置采集开关，失败时返回错误
	SetTrackingState(ctx context.Context, enabled bool) error

	// SetPinned 修改记录的置顶标记
	SetPinned(ctx context.Context, id string, pinned bool) error
}

// Dispatch 执行命令并返回响应值，错误以响应内容表达，不向调用方传播
func Dispatch(ctx context.Context, svc Service, cmd Command) any {
	return cmd.dispatch(ctx, svc)
}
