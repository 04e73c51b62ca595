package capture

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

// decodeBody 将 Network.getResponseBody 的结果还原为文本，非文本内容返回 false
func decodeBody(body string, base64Encoded bool, mimeType string) (string, bool) {
	if !base64Encoded {
		return body, true
	}
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", false
	}
	if !isTextual(data, mimeType) {
		return "", false
	}
	return string(data), true
}

// isTextual 判断响应体是否可以作为文本保存
func isTextual(data []byte, mimeType string) bool {
	lc := strings.ToLower(mimeType)
	switch {
	case strings.HasPrefix(lc, "text/"),
		strings.Contains(lc, "json"),
		strings.Contains(lc, "xml"),
		strings.Contains(lc, "javascript"),
		strings.Contains(lc, "x-www-form-urlencoded"):
		return true
	case strings.HasPrefix(lc, "image/"),
		strings.HasPrefix(lc, "audio/"),
		strings.HasPrefix(lc, "video/"),
		strings.HasPrefix(lc, "font/"),
		lc == "application/octet-stream":
		return false
	}
	// 未知类型：合法 UTF-8 且没有 NUL 视为文本
	return utf8.Valid(data) && !strings.ContainsRune(string(data), 0)
}
