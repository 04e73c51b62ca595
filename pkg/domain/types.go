package domain

// Header 头部映射，保留传输层给出的大小写
type Header map[string]string

// Clone 复制头部映射
func (h Header) Clone() Header {
	out := make(Header, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// HeaderEntry 宿主事件中的单个头部条目
type HeaderEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RecordError 请求失败描述
type RecordError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Record 已完成的网络请求记录，入库后不可变（pinned 除外）
type Record struct {
	ID              string       `json:"id"`
	URL             string       `json:"url"`
	Method          string       `json:"method"`
	StatusCode      int          `json:"statusCode"`
	StatusLine      string       `json:"statusLine"`
	ResourceType    string       `json:"type"`
	Timestamp       float64      `json:"timeStamp"` // 毫秒时间戳
	Pinned          bool         `json:"pinned"`
	RequestHeaders  Header       `json:"requestHeaders"`
	ResponseHeaders Header       `json:"responseHeaders"`
	Domain          string       `json:"domain"`
	Size            string       `json:"size,omitempty"`
	ResponseBody    *string      `json:"responseBody,omitempty"`
	Error           *RecordError `json:"error,omitempty"`
}

// Clone 深拷贝记录，供 UI 消费者持有
func (r Record) Clone() Record {
	out := r
	out.RequestHeaders = r.RequestHeaders.Clone()
	out.ResponseHeaders = r.ResponseHeaders.Clone()
	if r.ResponseBody != nil {
		body := *r.ResponseBody
		out.ResponseBody = &body
	}
	if r.Error != nil {
		e := *r.Error
		out.Error = &e
	}
	return out
}

// RequestHeadersEvent 请求头已发送事件
type RequestHeadersEvent struct {
	RequestID      string        `json:"requestId"`
	URL            string        `json:"url"`
	Method         string        `json:"method"`
	RequestHeaders []HeaderEntry `json:"requestHeaders"`
}

// ResponseHeadersEvent 响应头已接收事件
type ResponseHeadersEvent struct {
	RequestID       string        `json:"requestId"`
	URL             string        `json:"url"`
	ResponseHeaders []HeaderEntry `json:"responseHeaders"`
}

// CompletedEvent 请求完成事件
type CompletedEvent struct {
	RequestID    string       `json:"requestId"`
	URL          string       `json:"url"`
	Method       string       `json:"method"`
	StatusCode   int          `json:"statusCode"`
	StatusLine   string       `json:"statusLine"`
	Type         string       `json:"type"`
	TimeStamp    float64      `json:"timeStamp"`
	ResponseBody *string      `json:"responseBody,omitempty"`
	Error        *RecordError `json:"error,omitempty"`
}

// NavigationEvent 页面导航提交事件，FrameID 为 0 表示顶层框架
type NavigationEvent struct {
	FrameID int    `json:"frameId"`
	URL     string `json:"url"`
}

// TargetID 浏览器目标ID
type TargetID string

// TargetInfo 目标信息
type TargetInfo struct {
	ID    TargetID `json:"id"`
	Type  string   `json:"type"`
	URL   string   `json:"url"`
	Title string   `json:"title"`
}
