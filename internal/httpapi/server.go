// Package httpapi 通过 HTTP 暴露与进程内总线相同的消息协议
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"backtrack/internal/logger"
	"backtrack/pkg/api"
	"backtrack/pkg/errx"

	"github.com/google/uuid"
)

// maxMessageBytes 单条消息的大小上限
const maxMessageBytes = 64 << 10

// HeaderRequestID 请求追踪头
const HeaderRequestID = "X-Request-Id"

// Sender 命令发送方，通常为进程内总线
type Sender interface {
	Send(ctx context.Context, cmd api.Command) (any, error)
}

// Server 提供给外部 UI 的 HTTP 接口入口
type Server struct {
	sender Sender
	log    logger.Logger
}

// NewServer 创建 HTTP 接口服务
func NewServer(sender Sender, l logger.Logger) *Server {
	if l == nil {
		l = logger.NewNop()
	}
	return &Server{sender: sender, log: l}
}

// ServeHTTP 处理消息请求：POST 消息 JSON，返回响应 JSON
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	traceID := r.Header.Get(HeaderRequestID)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	w.Header().Set(HeaderRequestID, traceID)

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, errx.Wrap(errx.CodeInvalidCommand, err, "read body"))
		return
	}
	if len(raw) > maxMessageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, errx.New(errx.CodeInvalidCommand, "message too large"))
		return
	}

	cmd, err := api.Decode(raw)
	if err != nil {
		s.log.Debug("无法解析的消息", "trace", traceID, "error", err.Error())
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.sender.Send(r.Context(), cmd)
	if err != nil {
		s.log.Warn("命令未完成", "trace", traceID, "type", string(cmd.Type()), "error", err.Error())
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.log.Debug("命令完成", "trace", traceID, "type", string(cmd.Type()))
	writeResponse(w, http.StatusOK, res)
}

// Run 在 addr 上监听直到 ctx 结束
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP 接口已启动", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		<-errCh
		s.log.Info("HTTP 接口已停止")
		return err
	}
}

// writeResponse 写出响应
func writeResponse(w http.ResponseWriter, status int, res any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(res)
}

// writeError 写出错误响应
func writeError(w http.ResponseWriter, status int, err error) {
	code := errx.CodeOf(err)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		code = "UNAVAILABLE"
	}
	writeResponse(w, status, api.Fail(string(code), err.Error()))
}
