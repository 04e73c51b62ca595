package api

import "backtrack/pkg/domain"

// Response 传输层错误的统一响应格式，消息无法投递给服务时使用
type Response struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Fail 构造失败响应
func Fail(code, message string) Response {
	return Response{Success: false, Code: code, Message: message}
}

// LogResponse GET_LOG 的响应
type LogResponse struct {
	Log []domain.Record `json:"log"`
}

// ResultResponse 变更类命令的响应
type ResultResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TrackingStateResponse GET_TRACKING_STATE 的响应
type TrackingStateResponse struct {
	Enabled bool `json:"enabled"`
}

// Result 根据错误构造变更结果
func Result(err error) ResultResponse {
	if err != nil {
		return ResultResponse{Success: false, Error: err.Error()}
	}
	return ResultResponse{Success: true}
}
