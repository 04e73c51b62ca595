package persist

import (
	"context"
	"fmt"

	"backtrack/internal/storage"
	"backtrack/internal/storage/model"
)

// ScopeToBrowser 将会话层绑定到浏览器实例。
// 已保存的实例与 browserID 不同、或 browserID 未知时清除会话层的请求日志，返回是否清除。
func ScopeToBrowser(ctx context.Context, tier storage.Backend, browserID string) (bool, error) {
	stored, ok, err := tier.Get(ctx, model.KeyBrowserID)
	if err != nil {
		return false, fmt.Errorf("%s: read browser id: %w", tier.Name(), err)
	}
	if browserID != "" && ok && string(stored) == browserID {
		return false, nil
	}
	if err := tier.Remove(ctx, model.KeyRequestLog); err != nil {
		return false, fmt.Errorf("%s: drop previous session: %w", tier.Name(), err)
	}
	if err := tier.Set(ctx, model.KeyBrowserID, []byte(browserID)); err != nil {
		return true, fmt.Errorf("%s: write browser id: %w", tier.Name(), err)
	}
	return true, nil
}
