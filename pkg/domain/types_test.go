package domain_test

import (
	"testing"

	"backtrack/pkg/domain"
)

func TestNormalizeResourceType(t *testing.T) {
	tests := []struct {
		name       string
		cdpType    string
		topFrame   bool
		want       string
		wantReason string
	}{
		{
			name:       "顶层文档",
			cdpType:    "Document",
			topFrame:   true,
			want:       domain.ResourceMainFrame,
			wantReason: "顶层框架的 Document 应该映射为 main_frame",
		},
		{
			name:       "子框架文档",
			cdpType:    "Document",
			topFrame:   false,
			want:       domain.ResourceSubFrame,
			wantReason: "iframe 中的 Document 应该映射为 sub_frame",
		},
		{
			name:       "XHR",
			cdpType:    "XHR",
			want:       domain.ResourceXMLHTTPRequest,
			wantReason: "XHR 应该映射为 xmlhttprequest",
		},
		{
			name:       "Fetch",
			cdpType:    "Fetch",
			want:       domain.ResourceXMLHTTPRequest,
			wantReason: "Fetch 与 XHR 归为同一类",
		},
		{
			name:       "样式表",
			cdpType:    "Stylesheet",
			want:       domain.ResourceStylesheet,
			wantReason: "Stylesheet 应该映射为 stylesheet",
		},
		{
			name:       "字幕轨道",
			cdpType:    "TextTrack",
			want:       domain.ResourceMedia,
			wantReason: "TextTrack 归为 media",
		},
		{
			name:       "CSP 报告",
			cdpType:    "CSPViolationReport",
			want:       domain.ResourceCSPReport,
			wantReason: "CSPViolationReport 应该映射为 csp_report",
		},
		{
			name:       "未知类型",
			cdpType:    "Manifest",
			want:       domain.ResourceOther,
			wantReason: "未列出的类型归为 other",
		},
		{
			name:       "空类型",
			cdpType:    "",
			want:       domain.ResourceOther,
			wantReason: "缺失类型归为 other",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.NormalizeResourceType(tt.cdpType, tt.topFrame)
			if got != tt.want {
				t.Errorf("NormalizeResourceType(%q, %v) = %q, want %q\nReason: %s",
					tt.cdpType, tt.topFrame, got, tt.want, tt.wantReason)
			}
		})
	}
}

func TestRecordClone(t *testing.T) {
	body := "hello"
	orig := domain.Record{
		ID:              "1-1",
		RequestHeaders:  domain.Header{"A": "1"},
		ResponseHeaders: domain.Header{"B": "2"},
		ResponseBody:    &body,
		Error:           &domain.RecordError{Message: "x"},
	}

	c := orig.Clone()
	c.RequestHeaders["A"] = "changed"
	c.ResponseHeaders["B"] = "changed"
	*c.ResponseBody = "changed"
	c.Error.Message = "changed"

	if orig.RequestHeaders["A"] != "1" || orig.ResponseHeaders["B"] != "2" {
		t.Error("克隆后的头部修改不应影响原记录")
	}
	if *orig.ResponseBody != "hello" || orig.Error.Message != "x" {
		t.Error("克隆后的响应体或错误修改不应影响原记录")
	}
}
