package api

import (
	"context"
	"encoding/json"
	"fmt"

	"backtrack/pkg/domain"
	"backtrack/pkg/errx"

	"github.com/tidwall/gjson"
)

// CommandType 命令类型
type CommandType string

const (
	TypeGetLog           CommandType = "GET_LOG"
	TypeClearLog         CommandType = "CLEAR_LOG"
	TypeGetTrackingState CommandType = "GET_TRACKING_STATE"
	TypeSetTrackingState CommandType = "SET_TRACKING_STATE"
	TypeSetPinned        CommandType = "SET_PINNED"
)

// Command 封闭的命令集合，每个命令自行完成对服务的调用
type Command interface {
	Type() CommandType
	dispatch(ctx context.Context, svc Service) any
}

// GetLog 获取按时间倒序排列的日志
type GetLog struct{}

// ClearLog 清空日志
type ClearLog struct{}

// GetTrackingState 查询采集开关
type GetTrackingState struct{}

// SetTrackingState 设置采集开关
type SetTrackingState struct {
	Enabled bool
}

// SetPinned 修改记录的置顶标记
type SetPinned struct {
	ID     string
	Pinned bool
}

func (GetLog) Type() CommandType           { return TypeGetLog }
func (ClearLog) Type() CommandType         { return TypeClearLog }
func (GetTrackingState) Type() CommandType { return TypeGetTrackingState }
func (SetTrackingState) Type() CommandType { return TypeSetTrackingState }
func (SetPinned) Type() CommandType        { return TypeSetPinned }

func (GetLog) dispatch(ctx context.Context, svc Service) any {
	log := svc.Log(ctx)
	if log == nil {
		log = []domain.Record{}
	}
	return LogResponse{Log: log}
}

func (ClearLog) dispatch(ctx context.Context, svc Service) any {
	return Result(svc.ClearLog(ctx))
}

func (GetTrackingState) dispatch(ctx context.Context, svc Service) any {
	return TrackingStateResponse{Enabled: svc.TrackingState(ctx)}
}

func (c SetTrackingState) dispatch(ctx context.Context, svc Service) any {
	return Result(svc.SetTrackingState(ctx, c.Enabled))
}

func (c SetPinned) dispatch(ctx context.Context, svc Service) any {
	return Result(svc.SetPinned(ctx, c.ID, c.Pinned))
}

// Decode 解析消息为命令
func Decode(raw []byte) (Command, error) {
	if !gjson.ValidBytes(raw) {
		return nil, invalid("malformed json")
	}
	msg := gjson.ParseBytes(raw)
	if !msg.IsObject() {
		return nil, invalid("message must be an object")
	}
	typ := msg.Get("type")
	if typ.Type != gjson.String {
		return nil, invalid("missing type")
	}

	switch CommandType(typ.Str) {
	case TypeGetLog:
		return GetLog{}, nil
	case TypeClearLog:
		return ClearLog{}, nil
	case TypeGetTrackingState:
		return GetTrackingState{}, nil
	case TypeSetTrackingState:
		enabled, ok := boolField(msg, "enabled")
		if !ok {
			return nil, invalid("enabled must be a boolean")
		}
		return SetTrackingState{Enabled: enabled}, nil
	case TypeSetPinned:
		id := msg.Get("id")
		if id.Type != gjson.String || id.Str == "" {
			return nil, invalid("id must be a non-empty string")
		}
		pinned, ok := boolField(msg, "pinned")
		if !ok {
			return nil, invalid("pinned must be a boolean")
		}
		return SetPinned{ID: id.Str, Pinned: pinned}, nil
	default:
		return nil, errx.Wrap(errx.CodeUnknownCommand, domain.ErrUnknownCommand, typ.Str)
	}
}

// Encode 将命令编码为消息
func Encode(cmd Command) ([]byte, error) {
	msg := map[string]any{"type": cmd.Type()}
	switch c := cmd.(type) {
	case SetTrackingState:
		msg["enabled"] = c.Enabled
	case SetPinned:
		msg["id"] = c.ID
		msg["pinned"] = c.Pinned
	}
	return json.Marshal(msg)
}

func boolField(msg gjson.Result, name string) (bool, bool) {
	switch v := msg.Get(name); v.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	default:
		return false, false
	}
}

func invalid(reason string) error {
	return errx.Wrap(errx.CodeInvalidCommand, fmt.Errorf("%w: %s", domain.ErrInvalidCommand, reason), "decode message")
}
