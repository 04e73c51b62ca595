package capture

import (
	"encoding/base64"
	"testing"

	"github.com/mafredri/cdp/protocol/network"
)

func TestDecodeBody(t *testing.T) {
	b64 := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		name     string
		body     string
		encoded  bool
		mimeType string
		want     string
		wantOK   bool
	}{
		{"纯文本直接返回", `{"a":1}`, false, "application/json", `{"a":1}`, true},
		{"base64 JSON 解码", b64(`{"a":1}`), true, "application/json; charset=utf-8", `{"a":1}`, true},
		{"base64 图片丢弃", b64("\x89PNG"), true, "image/png", "", false},
		{"未知类型的文本", b64("hello"), true, "", "hello", true},
		{"未知类型含 NUL", b64("a\x00b"), true, "", "", false},
		{"非法 base64", "!!!", true, "text/plain", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeBody(tt.body, tt.encoded, tt.mimeType)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("decodeBody() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestContentType(t *testing.T) {
	tr := newTranslator(&recordingSink{})
	tr.request(&network.RequestWillBeSentReply{
		RequestID: "r1",
		Request:   network.Request{URL: "https://a.test/x", Method: "GET"},
	})
	tr.response(&network.ResponseReceivedReply{
		RequestID: "r1",
		Response:  network.Response{URL: "https://a.test/x", Status: 200, MimeType: "application/json"},
	})
	if got := tr.contentType("r1"); got != "application/json" {
		t.Errorf("contentType = %q", got)
	}
	if got := tr.contentType("missing"); got != "" {
		t.Errorf("未知请求 contentType = %q", got)
	}
}
