// Package pool 提供有界并发的任务池，用于尽力而为的响应体抓取
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"backtrack/internal/logger"
)

// Stats 工作池运行统计
type Stats struct {
	QueueLen  int
	QueueCap  int
	Submitted int64
	Dropped   int64
}

// Pool 固定数量 worker 消费有界队列，队列满时丢弃任务
type Pool struct {
	size  int
	queue chan func()
	log   logger.Logger

	mu        sync.Mutex
	submitted int64
	dropped   int64
	stopped   bool

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New 创建工作池
// size: worker 数量，<=0 时不限制并发；queueCap: 队列容量，为 0 时取 size*8
func New(size, queueCap int, l logger.Logger) *Pool {
	if l == nil {
		l = logger.NewNop()
	}
	p := &Pool{size: size, log: l, stopCh: make(chan struct{})}
	if size <= 0 {
		return p
	}
	if queueCap <= 0 {
		queueCap = size * 8
	}
	p.queue = make(chan func(), queueCap)
	return p
}

// Start 启动 worker 与状态监控，重复调用无效
func (p *Pool) Start(ctx context.Context) {
	if !p.IsEnabled() {
		return
	}
	p.startOnce.Do(func() {
		for i := 0; i < p.size; i++ {
			p.wg.Add(1)
			go p.worker(ctx)
		}
		p.wg.Add(1)
		go p.monitor(ctx)
	})
}

// Stop 停止所有协程并等待退出，然后在调用方协程中执行队列里剩余的任务
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.stopCh)
	})
	p.wg.Wait()
	p.drain()
}

// drain 执行队列中剩余的任务
func (p *Pool) drain() {
	for {
		select {
		case fn := <-p.queue:
			if fn != nil {
				fn()
			}
		default:
			return
		}
	}
}

func (p *Pool) monitor(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			st := p.Stats()
			if st.Submitted > 0 {
				usage := float64(st.QueueLen) / float64(st.QueueCap) * 100
				p.log.Debug("工作池状态", "queueLen", st.QueueLen, "queueCap", st.QueueCap,
					"usage", fmt.Sprintf("%.1f%%", usage), "submitted", st.Submitted, "dropped", st.Dropped)
			}
		}
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case fn := <-p.queue:
			if fn != nil {
				fn()
			}
		}
	}
}

// Submit 提交任务，队列已满或已停止时返回 false
func (p *Pool) Submit(fn func()) bool {
	if !p.IsEnabled() {
		go fn()
		return true
	}

	// 持锁入队，保证 Stop 之后不会再有任务进入队列
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return false
	}
	p.submitted++
	select {
	case p.queue <- fn:
		p.mu.Unlock()
		return true
	default:
		p.dropped++
		dropped := p.dropped
		p.mu.Unlock()
		p.log.Warn("工作池队列已满，任务被丢弃", "queueCap", cap(p.queue), "dropped", dropped)
		return false
	}
}

// Stats 返回统计信息
func (p *Pool) Stats() Stats {
	if !p.IsEnabled() {
		return Stats{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		QueueLen:  len(p.queue),
		QueueCap:  cap(p.queue),
		Submitted: p.submitted,
		Dropped:   p.dropped,
	}
}

// IsEnabled 是否启用了并发限制
func (p *Pool) IsEnabled() bool {
	return p.queue != nil
}
