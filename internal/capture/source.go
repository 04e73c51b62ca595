// Package capture 通过 DevTools 协议附加浏览器页面，将网络与导航事件送入请求日志管理器
package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"backtrack/internal/logger"
	"backtrack/internal/pool"
	"backtrack/pkg/domain"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/rpcc"
)

// Options 采集源配置
type Options struct {
	DevToolsURL    string
	CaptureBodies  bool
	MaxBodyBytes   int
	Concurrency    int
	RescanInterval time.Duration
	OrphanTimeout  time.Duration
	Logger         logger.Logger
}

// Source 采集源
type Source struct {
	opts    Options
	sink    Sink
	targets *targetSet
	bodies  *pool.Pool
	log     logger.Logger
	wg      sync.WaitGroup
}

// New 创建采集源
func New(sink Sink, opts Options) *Source {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.RescanInterval <= 0 {
		opts.RescanInterval = 5 * time.Second
	}
	if opts.OrphanTimeout <= 0 {
		opts.OrphanTimeout = 2 * time.Minute
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Source{
		opts:    opts,
		sink:    sink,
		targets: newTargetSet(),
		bodies:  pool.New(opts.Concurrency, 0, opts.Logger.With("component", "bodies")),
		log:     opts.Logger,
	}
}

// Run 发现并附加页面目标，周期性重扫与清理，直到 ctx 结束
func (s *Source) Run(ctx context.Context) error {
	if s.opts.CaptureBodies {
		s.bodies.Start(ctx)
		defer s.bodies.Stop()
	}

	if err := s.scan(ctx); err != nil {
		s.log.Warn("浏览器暂不可达，稍后重试", "devtools", s.opts.DevToolsURL, "error", err.Error())
	}

	rescan := time.NewTicker(s.opts.RescanInterval)
	defer rescan.Stop()
	sweep := time.NewTicker(s.opts.OrphanTimeout / 2)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			s.targets.removeAll()
			s.wg.Wait()
			s.log.Info("采集源已停止")
			return nil
		case <-rescan.C:
			if err := s.scan(ctx); err != nil {
				s.log.Debug("重扫目标失败", "error", err.Error())
			}
		case <-sweep.C:
			s.sweep()
		}
	}
}

// sweep 清理超时的在途请求
func (s *Source) sweep() {
	dropped := s.sink.SweepOrphans(s.opts.OrphanTimeout)
	s.targets.each(func(ts *targetSession) {
		dropped += ts.tr.sweep(s.opts.OrphanTimeout)
	})
	if dropped > 0 {
		s.log.Debug("清理超时的在途请求", "count", dropped)
	}
}

// scan 列出页面目标并附加尚未附加的
func (s *Source) scan(ctx context.Context) error {
	list, err := devtool.New(s.opts.DevToolsURL).List(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDevToolsUnreachable, err)
	}
	for _, info := range pageTargets(list) {
		if s.targets.has(info.ID) {
			continue
		}
		var target *devtool.Target
		for _, t := range list {
			if t != nil && domain.TargetID(t.ID) == info.ID {
				target = t
				break
			}
		}
		if err := s.attach(ctx, target); err != nil {
			s.log.Err(err, "附加浏览器目标失败", "target", string(info.ID), "url", info.URL)
		}
	}
	return nil
}

// attach 连接目标并启动事件消费
func (s *Source) attach(ctx context.Context, target *devtool.Target) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	conn, err := rpcc.DialContext(sessionCtx, target.WebSocketDebuggerURL,
		rpcc.WithWriteBufferSize(1<<20),
		rpcc.WithCompression())
	if err != nil {
		cancel()
		return err
	}

	ts := &targetSession{
		ID:     domain.TargetID(target.ID),
		URL:    target.URL,
		Conn:   conn,
		Client: cdp.NewClient(conn),
		Ctx:    sessionCtx,
		Cancel: cancel,
		tr:     newTranslator(s.sink),
	}
	if !s.targets.add(ts) {
		closeSession(ts)
		return nil
	}

	ready := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.targets.remove(ts.ID)
		if err := s.consume(ts, ready); err != nil && sessionCtx.Err() == nil {
			s.log.Warn("目标事件流结束", "target", string(ts.ID), "error", err.Error())
		}
	}()

	if err := <-ready; err != nil {
		return err
	}
	s.log.Info("附加浏览器目标成功", "target", string(ts.ID), "url", ts.URL, "attached", s.targets.size())
	return nil
}

// consume 订阅网络与导航事件并按到达顺序处理
func (s *Source) consume(ts *targetSession, ready chan<- error) error {
	ctx, c := ts.Ctx, ts.Client

	requests, err := c.Network.RequestWillBeSent(ctx)
	if err != nil {
		ready <- err
		return err
	}
	defer requests.Close()
	responses, err := c.Network.ResponseReceived(ctx)
	if err != nil {
		ready <- err
		return err
	}
	defer responses.Close()
	finished, err := c.Network.LoadingFinished(ctx)
	if err != nil {
		ready <- err
		return err
	}
	defer finished.Close()
	failed, err := c.Network.LoadingFailed(ctx)
	if err != nil {
		ready <- err
		return err
	}
	defer failed.Close()
	navigated, err := c.Page.FrameNavigated(ctx)
	if err != nil {
		ready <- err
		return err
	}
	defer navigated.Close()

	// 保证跨事件流的到达顺序
	if err := cdp.Sync(requests, responses, finished, failed, navigated); err != nil {
		ready <- err
		return err
	}

	if err := c.Network.Enable(ctx, nil); err != nil {
		ready <- err
		return err
	}
	if err := c.Page.Enable(ctx); err != nil {
		ready <- err
		return err
	}
	if tree, err := c.Page.GetFrameTree(ctx); err == nil {
		ts.tr.setMainFrame(string(tree.FrameTree.Frame.ID))
	}
	ready <- nil

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-requests.Ready():
			ev, err := requests.Recv()
			if err != nil {
				return err
			}
			ts.tr.request(ev)
		case <-responses.Ready():
			ev, err := responses.Recv()
			if err != nil {
				return err
			}
			ts.tr.response(ev)
		case <-finished.Ready():
			ev, err := finished.Recv()
			if err != nil {
				return err
			}
			s.finish(ts, ev)
		case <-failed.Ready():
			ev, err := failed.Recv()
			if err != nil {
				return err
			}
			ts.tr.failed(ev)
		case <-navigated.Ready():
			ev, err := navigated.Recv()
			if err != nil {
				return err
			}
			ts.tr.navigated(ctx, ev)
		}
	}
}

// finish 完成请求；开启响应体抓取时在工作池中尽力获取，队列满则直接完成
func (s *Source) finish(ts *targetSession, ev *network.LoadingFinishedReply) {
	if !s.opts.CaptureBodies || s.tooLarge(ev) {
		ts.tr.finished(ev, nil)
		return
	}
	gen := ts.tr.generation()
	submitted := s.bodies.Submit(func() {
		ts.tr.finishedAt(ev, s.fetchBody(ts, ev.RequestID), gen)
	})
	if !submitted {
		ts.tr.finished(ev, nil)
	}
}

func (s *Source) tooLarge(ev *network.LoadingFinishedReply) bool {
	return s.opts.MaxBodyBytes > 0 && ev.EncodedDataLength > float64(s.opts.MaxBodyBytes)
}

// fetchBody 获取文本响应体，二进制或超限时返回 nil
func (s *Source) fetchBody(ts *targetSession, id network.RequestID) *string {
	ctx, cancel := context.WithTimeout(ts.Ctx, 2*time.Second)
	defer cancel()

	reply, err := ts.Client.Network.GetResponseBody(ctx, network.NewGetResponseBodyArgs(id))
	if err != nil {
		s.log.Debug("获取响应体失败", "requestID", string(id), "error", err.Error())
		return nil
	}
	body, ok := decodeBody(reply.Body, reply.Base64Encoded, ts.tr.contentType(string(id)))
	if !ok {
		return nil
	}
	if s.opts.MaxBodyBytes > 0 && len(body) > s.opts.MaxBodyBytes {
		return nil
	}
	return &body
}
