package capture

import (
	"context"
	"fmt"
	"net/url"
	"path"

	"backtrack/pkg/domain"

	"github.com/mafredri/cdp/devtool"
)

// BrowserID 返回浏览器实例标识，取自 /json/version 中浏览器 websocket 地址的最后一段，
// 每次浏览器启动都会变化
func BrowserID(ctx context.Context, devtoolsURL string) (string, error) {
	v, err := devtool.New(devtoolsURL).Version(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrDevToolsUnreachable, err)
	}
	return browserIDFromURL(v.WebSocketDebuggerURL)
}

func browserIDFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	id := path.Base(u.Path)
	if id == "." || id == "/" || id == "" {
		return "", fmt.Errorf("no browser id in %q", raw)
	}
	return id, nil
}
