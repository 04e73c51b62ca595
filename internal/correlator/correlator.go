// Package correlator 将请求生命周期中的多阶段事件合并为一条完整记录
package correlator

import (
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"backtrack/internal/logger"
	"backtrack/pkg/domain"

	"github.com/dustin/go-humanize"
)

// entry 在途请求的暂存头部
type entry struct {
	headers   domain.Header
	startTime time.Time
}

// Correlator 事件关联器，按请求ID暂存请求头与响应头，直到完成事件到来
type Correlator struct {
	requests  sync.Map // map[requestID]*entry
	responses sync.Map // map[requestID]*entry
	now       func() time.Time
	log       logger.Logger
}

// New 创建事件关联器
func New(l logger.Logger) *Correlator {
	if l == nil {
		l = logger.NewNop()
	}
	return &Correlator{now: time.Now, log: l}
}

// OnRequestHeadersSent 暂存请求头，并补充由 URL 推导出的 HTTP/2 伪头部。
// 伪头部是近似值，底层接口并不暴露真实的线上表示。
func (c *Correlator) OnRequestHeadersSent(ev domain.RequestHeadersEvent) {
	headers := toHeader(ev.RequestHeaders)
	for k, v := range pseudoHeaders(ev.URL, ev.Method) {
		headers[k] = v
	}
	c.requests.Store(ev.RequestID, &entry{headers: headers, startTime: c.now()})
}

// OnResponseHeadersReceived 暂存响应头
func (c *Correlator) OnResponseHeadersReceived(ev domain.ResponseHeadersEvent) {
	c.responses.Store(ev.RequestID, &entry{headers: toHeader(ev.ResponseHeaders), startTime: c.now()})
}

// OnCompleted 取出并删除两份暂存头部，与完成事件合并为记录。
// 缺失的暂存视为空映射；无论调用方是否最终入库，暂存都会被删除。
func (c *Correlator) OnCompleted(ev domain.CompletedEvent) domain.Record {
	reqHeaders := c.take(&c.requests, ev.RequestID)
	resHeaders := c.take(&c.responses, ev.RequestID)

	return domain.Record{
		ID:              RecordID(ev.RequestID, ev.TimeStamp),
		URL:             ev.URL,
		Method:          ev.Method,
		StatusCode:      ev.StatusCode,
		StatusLine:      ev.StatusLine,
		ResourceType:    ev.Type,
		Timestamp:       ev.TimeStamp,
		RequestHeaders:  reqHeaders,
		ResponseHeaders: resHeaders,
		Domain:          DomainOf(ev.URL),
		Size:            SizeOf(resHeaders),
		ResponseBody:    ev.ResponseBody,
		Error:           ev.Error,
	}
}

// Pending 返回仍在暂存中的请求数量（请求头、响应头）
func (c *Correlator) Pending() (requests, responses int) {
	c.requests.Range(func(_, _ any) bool { requests++; return true })
	c.responses.Range(func(_, _ any) bool { responses++; return true })
	return requests, responses
}

// Sweep 清理超过 maxAge 仍未完成的孤儿暂存，返回清理数量
func (c *Correlator) Sweep(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	now := c.now()
	removed := 0
	sweep := func(pool *sync.Map) {
		pool.Range(func(key, value any) bool {
			if now.Sub(value.(*entry).startTime) > maxAge {
				pool.Delete(key)
				removed++
			}
			return true
		})
	}
	sweep(&c.requests)
	sweep(&c.responses)
	if removed > 0 {
		c.log.Debug("清理孤儿关联缓冲", "removed", removed, "maxAge", maxAge.String())
	}
	return removed
}

// Drop 丢弃某个请求的暂存，不生成记录
func (c *Correlator) Drop(requestID string) {
	c.requests.Delete(requestID)
	c.responses.Delete(requestID)
}

func (c *Correlator) take(pool *sync.Map, id string) domain.Header {
	val, ok := pool.LoadAndDelete(id)
	if !ok {
		return domain.Header{}
	}
	return val.(*entry).headers
}

// RecordID 组合传输层请求ID与事件时间戳，避免请求ID复用导致冲突
func RecordID(requestID string, ts float64) string {
	return requestID + "-" + strconv.FormatFloat(ts, 'f', -1, 64)
}

// DomainOf 取 URL 的主机名，解析失败时返回原始 URL
func DomainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}

// SizeOf 根据 content-length 响应头生成可读大小，缺失或非法时返回空串
func SizeOf(h domain.Header) string {
	for k, v := range h {
		if !strings.EqualFold(k, "content-length") {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return ""
		}
		return humanize.Bytes(n)
	}
	return ""
}

func toHeader(entries []domain.HeaderEntry) domain.Header {
	h := make(domain.Header, len(entries)+4)
	for _, e := range entries {
		h[e.Name] = e.Value
	}
	return h
}

func pseudoHeaders(raw, method string) domain.Header {
	h := domain.Header{}
	if method != "" {
		h[":method"] = method
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return h
	}
	h[":authority"] = u.Host
	h[":scheme"] = u.Scheme
	h[":path"] = u.RequestURI()
	return h
}
