package service

import (
	"context"

	"backtrack/internal/logger"
	"backtrack/pkg/api"

	"github.com/google/uuid"
)

// envelope 总线上的一条请求
type envelope struct {
	id    string
	cmd   api.Command
	reply chan any
}

// Bus 进程内消息总线，所有命令由单个协程依次执行
type Bus struct {
	svc  api.Service
	reqs chan envelope
	log  logger.Logger
}

// NewBus 创建消息总线，capacity 为排队请求上限
func NewBus(s api.Service, capacity int, l logger.Logger) *Bus {
	if l == nil {
		l = logger.NewNop()
	}
	if capacity <= 0 {
		capacity = 64
	}
	return &Bus{svc: s, reqs: make(chan envelope, capacity), log: l}
}

// Serve 处理请求直到 ctx 结束
func (b *Bus) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-b.reqs:
			resp := api.Dispatch(ctx, b.svc, env.cmd)
			b.log.Debug("命令已处理", "id", env.id, "type", string(env.cmd.Type()))
			env.reply <- resp
		}
	}
}

// Send 提交命令并等待响应
func (b *Bus) Send(ctx context.Context, cmd api.Command) (any, error) {
	env := envelope{id: uuid.NewString(), cmd: cmd, reply: make(chan any, 1)}
	select {
	case b.reqs <- env:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case resp := <-env.reply:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
