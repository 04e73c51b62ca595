package persist

import (
	"context"
	"sync"

	"backtrack/internal/logger"
	"backtrack/pkg/domain"
)

// Saver 快照保存接口
type Saver interface {
	Save(ctx context.Context, records []domain.Record)
}

// Writer 后写队列：单个工作协程，同一时刻至多一次保存，
// 未写出的快照只保留最新一份
type Writer struct {
	saver Saver
	log   logger.Logger

	mu      sync.Mutex
	pending []domain.Record
	dirty   bool
	stopped bool

	flushCh  chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWriter 创建并启动后写队列
func NewWriter(s Saver, l logger.Logger) *Writer {
	if l == nil {
		l = logger.NewNop()
	}
	w := &Writer{
		saver:   s,
		log:     l,
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *Writer) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			// 停止前写出剩余快照
			w.flush()
			return
		case <-w.flushCh:
			w.flush()
		}
	}
}

func (w *Writer) flush() {
	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return
	}
	snapshot := w.pending
	w.pending = nil
	w.dirty = false
	w.mu.Unlock()

	w.saver.Save(context.Background(), snapshot)
}

// Schedule 提交最新快照，不阻塞调用方；停止后的提交被忽略
func (w *Writer) Schedule(snapshot []domain.Record) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.pending = snapshot
	w.dirty = true
	w.mu.Unlock()

	select {
	case w.flushCh <- struct{}{}:
	default:
	}
}

// Discard 丢弃尚未写出的快照，用于清空日志之后
func (w *Writer) Discard() {
	w.mu.Lock()
	w.pending = nil
	w.dirty = false
	w.mu.Unlock()
}

// Stop 停止工作协程并写出剩余快照，可重复调用
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()
		close(w.stopCh)
	})
	w.wg.Wait()
	w.log.Debug("后写队列已停止")
}
