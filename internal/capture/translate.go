package capture

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"backtrack/pkg/domain"

	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/tidwall/gjson"
)

// Sink 采集事件的接收方，由请求日志管理器实现
type Sink interface {
	Ignored(url string) bool
	RequestHeadersSent(ev domain.RequestHeadersEvent)
	ResponseHeadersReceived(ev domain.ResponseHeadersEvent)
	Completed(ev domain.CompletedEvent) bool
	Abandoned(requestID string)
	Navigated(ctx context.Context, ev domain.NavigationEvent) bool
	SweepOrphans(maxAge time.Duration) int
}

// meta 在途请求的描述信息，完成时用于拼装完成事件
type meta struct {
	url          string
	method       string
	resourceType string
	monoStart    float64 // 秒，单调时钟
	wallStart    float64 // 秒，墙上时钟
	status       int
	statusLine   string
	mimeType     string
	seen         time.Time
}

// translator 将单个目标的 CDP 事件翻译为领域事件
type translator struct {
	sink Sink
	now  func() time.Time

	mu        sync.Mutex
	inflight  map[string]*meta
	mainFrame string
	frames    map[string]int
	nextFrame int

	// order 串行化完成提交与清空日志的导航，gen 为已发生的清空次数
	order sync.Mutex
	gen   atomic.Uint64
}

func newTranslator(sink Sink) *translator {
	return &translator{
		sink:      sink,
		now:       time.Now,
		inflight:  make(map[string]*meta),
		frames:    make(map[string]int),
		nextFrame: 1,
	}
}

// setMainFrame 记录顶层框架ID
func (t *translator) setMainFrame(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mainFrame = id
}

// request 处理 Network.requestWillBeSent；重定向时先完成上一跳
func (t *translator) request(ev *network.RequestWillBeSentReply) {
	id := string(ev.RequestID)
	url := ev.Request.URL
	if t.sink.Ignored(url) {
		return
	}

	if ev.RedirectResponse != nil {
		t.mu.Lock()
		prev := t.inflight[id]
		if prev != nil {
			prev.status = ev.RedirectResponse.Status
			prev.statusLine = statusLine(ev.RedirectResponse)
		}
		t.mu.Unlock()
		if prev != nil {
			t.sink.ResponseHeadersReceived(domain.ResponseHeadersEvent{
				RequestID:       id,
				URL:             prev.url,
				ResponseHeaders: headerEntries(ev.RedirectResponse.Headers),
			})
			t.complete(id, float64(ev.Timestamp), nil, nil, t.generation())
		}
	}

	topFrame := true
	t.mu.Lock()
	if ev.FrameID != nil && t.mainFrame != "" {
		topFrame = string(*ev.FrameID) == t.mainFrame
	}
	cdpType := string(ev.Type)
	t.inflight[id] = &meta{
		url:          url,
		method:       ev.Request.Method,
		resourceType: domain.NormalizeResourceType(cdpType, topFrame),
		monoStart:    float64(ev.Timestamp),
		wallStart:    float64(ev.WallTime),
		seen:         t.now(),
	}
	t.mu.Unlock()

	t.sink.RequestHeadersSent(domain.RequestHeadersEvent{
		RequestID:      id,
		URL:            url,
		Method:         ev.Request.Method,
		RequestHeaders: headerEntries(ev.Request.Headers),
	})
}

// response 处理 Network.responseReceived
func (t *translator) response(ev *network.ResponseReceivedReply) {
	id := string(ev.RequestID)
	t.mu.Lock()
	m := t.inflight[id]
	if m != nil {
		m.status = ev.Response.Status
		m.statusLine = statusLine(&ev.Response)
		m.mimeType = ev.Response.MimeType
	}
	t.mu.Unlock()
	if m == nil {
		return
	}

	t.sink.ResponseHeadersReceived(domain.ResponseHeadersEvent{
		RequestID:       id,
		URL:             ev.Response.URL,
		ResponseHeaders: headerEntries(ev.Response.Headers),
	})
}

// generation 当前的导航代数
func (t *translator) generation() uint64 { return t.gen.Load() }

// finished 处理 Network.loadingFinished，body 为尽力抓取的响应体
func (t *translator) finished(ev *network.LoadingFinishedReply, body *string) {
	t.finishedAt(ev, body, t.generation())
}

// finishedAt 完成在第 gen 代到达的 loadingFinished。
// 响应体在工作池中抓取期间若发生了清空日志的导航，该请求属于旧页面，直接丢弃。
func (t *translator) finishedAt(ev *network.LoadingFinishedReply, body *string, gen uint64) {
	t.complete(string(ev.RequestID), float64(ev.Timestamp), body, nil, gen)
}

// failed 处理 Network.loadingFailed
func (t *translator) failed(ev *network.LoadingFailedReply) {
	msg := ev.ErrorText
	if ev.Canceled != nil && *ev.Canceled && msg == "" {
		msg = "net::ERR_ABORTED"
	}
	t.complete(string(ev.RequestID), float64(ev.Timestamp), nil, &domain.RecordError{Message: msg}, t.generation())
}

// complete 取出在途信息并提交完成事件，未追踪的请求被忽略
func (t *translator) complete(id string, monoEnd float64, body *string, failure *domain.RecordError, gen uint64) {
	t.mu.Lock()
	m, ok := t.inflight[id]
	delete(t.inflight, id)
	t.mu.Unlock()
	if !ok {
		return
	}

	ev := domain.CompletedEvent{
		RequestID:    id,
		URL:          m.url,
		Method:       m.method,
		StatusCode:   m.status,
		StatusLine:   m.statusLine,
		Type:         m.resourceType,
		TimeStamp:    wallMillis(m, monoEnd, t.now),
		ResponseBody: body,
	}
	if failure != nil {
		ev.StatusCode = 0
		ev.StatusLine = failure.Message
		ev.Error = failure
	}

	t.order.Lock()
	defer t.order.Unlock()
	if t.gen.Load() != gen {
		t.sink.Abandoned(id)
		return
	}
	t.sink.Completed(ev)
}

// navigated 处理 Page.frameNavigated
func (t *translator) navigated(ctx context.Context, ev *page.FrameNavigatedReply) {
	frameID := string(ev.Frame.ID)

	t.mu.Lock()
	var n int
	if ev.Frame.ParentID == nil || *ev.Frame.ParentID == "" {
		t.mainFrame = frameID
	} else {
		var ok bool
		if n, ok = t.frames[frameID]; !ok {
			n = t.nextFrame
			t.nextFrame++
			t.frames[frameID] = n
		}
	}
	t.mu.Unlock()

	t.order.Lock()
	defer t.order.Unlock()
	if t.sink.Navigated(ctx, domain.NavigationEvent{FrameID: n, URL: ev.Frame.URL}) {
		t.gen.Add(1)
	}
}

// sweep 丢弃超时的在途信息
func (t *translator) sweep(maxAge time.Duration) int {
	cutoff := t.now().Add(-maxAge)
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, m := range t.inflight {
		if m.seen.Before(cutoff) {
			delete(t.inflight, id)
			n++
		}
	}
	return n
}

// contentType 在途请求响应的 MIME 类型
func (t *translator) contentType(id string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.inflight[id]; ok {
		return m.mimeType
	}
	return ""
}

// pending 在途请求数
func (t *translator) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// wallMillis 将单调时钟的完成时刻换算为墙上时钟毫秒
func wallMillis(m *meta, monoEnd float64, now func() time.Time) float64 {
	if m.wallStart <= 0 || monoEnd < m.monoStart {
		return float64(now().UnixNano()) / 1e6
	}
	return (m.wallStart + (monoEnd - m.monoStart)) * 1000
}

// headerEntries 按原始顺序解析 CDP 头部对象
func headerEntries(raw network.Headers) []domain.HeaderEntry {
	if len(raw) == 0 {
		return nil
	}
	res := gjson.ParseBytes(raw)
	if !res.IsObject() {
		return nil
	}
	out := make([]domain.HeaderEntry, 0, 8)
	res.ForEach(func(key, value gjson.Result) bool {
		out = append(out, domain.HeaderEntry{Name: key.String(), Value: value.String()})
		return true
	})
	return out
}

// statusLine 拼装形如 "HTTP/1.1 200 OK" 的状态行
func statusLine(r *network.Response) string {
	proto := "HTTP/1.1"
	if r.Protocol != nil {
		switch p := strings.ToLower(*r.Protocol); {
		case p == "h2":
			proto = "HTTP/2"
		case p == "h3" || strings.HasPrefix(p, "h3-"):
			proto = "HTTP/3"
		case strings.HasPrefix(p, "http/"):
			proto = strings.ToUpper(p)
		}
	}
	text := r.StatusText
	if text == "" {
		text = http.StatusText(r.Status)
	}
	return strings.TrimSpace(fmt.Sprintf("%s %d %s", proto, r.Status, text))
}
