package domain

// 记录中的资源类型取值
const (
	ResourceMainFrame      = "main_frame"
	ResourceSubFrame       = "sub_frame"
	ResourceStylesheet     = "stylesheet"
	ResourceScript         = "script"
	ResourceImage          = "image"
	ResourceFont           = "font"
	ResourceMedia          = "media"
	ResourceXMLHTTPRequest = "xmlhttprequest"
	ResourceWebSocket      = "websocket"
	ResourcePing           = "ping"
	ResourceCSPReport      = "csp_report"
	ResourceOther          = "other"
)

// NormalizeResourceType 将 CDP 的资源类型映射为记录使用的类型。
// Document 依据是否为顶层框架区分 main_frame 与 sub_frame。
func NormalizeResourceType(cdpType string, topFrame bool) string {
	switch cdpType {
	case "Document":
		if topFrame {
			return ResourceMainFrame
		}
		return ResourceSubFrame
	case "Stylesheet":
		return ResourceStylesheet
	case "Script":
		return ResourceScript
	case "Image":
		return ResourceImage
	case "Font":
		return ResourceFont
	case "Media", "TextTrack":
		return ResourceMedia
	case "XHR", "Fetch", "EventSource":
		return ResourceXMLHTTPRequest
	case "WebSocket":
		return ResourceWebSocket
	case "Ping":
		return ResourcePing
	case "CSPViolationReport":
		return ResourceCSPReport
	default:
		return ResourceOther
	}
}
