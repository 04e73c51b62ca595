package session_test

import (
	"context"
	"errors"
	"testing"

	"backtrack/internal/session"
	"backtrack/internal/storage"
	"backtrack/internal/storage/db"
	"backtrack/internal/storage/model"
	"backtrack/internal/storage/repo"
	"backtrack/pkg/domain"
	"backtrack/pkg/errx"
)

const key = "backtrack-enabled"

func newBackend(t *testing.T) *storage.KVBackend {
	gdb, err := db.New(db.Options{FullPath: db.MemoryPath, Prefix: "test_"})
	if err != nil {
		t.Fatalf("创建内存数据库失败: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	if err := db.Migrate(gdb, &model.KVEntry{}); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	return storage.NewKVBackend("local", repo.NewKVRepo(gdb))
}

func TestController_DefaultEnabled(t *testing.T) {
	c := session.New(newBackend(t), key, nil)
	ctx := context.Background()

	if !c.Enabled() {
		t.Error("未加载时应默认开启")
	}
	if !c.Load(ctx) {
		t.Error("未设置过开关时应默认开启")
	}
	if !c.TrackingState(ctx) {
		t.Error("TrackingState 应默认返回 true")
	}
}

func TestController_SetEnabledPersists(t *testing.T) {
	store := newBackend(t)
	ctx := context.Background()
	c := session.New(store, key, nil)

	if err := c.SetEnabled(ctx, false); err != nil {
		t.Fatalf("设置失败: %v", err)
	}
	if c.Enabled() || c.TrackingState(ctx) {
		t.Error("设置后应为关闭")
	}

	raw, ok, _ := store.Get(ctx, key)
	if !ok || string(raw) != "false" {
		t.Errorf("持久化值应为 JSON 布尔，实际 %q", raw)
	}

	// 新实例从持久层恢复
	if session.New(store, key, nil).Load(ctx) {
		t.Error("重新加载后应为关闭")
	}
}

func TestController_StorageFailures(t *testing.T) {
	ctx := context.Background()
	c := session.New(storage.NewKVBackend("local", nil), key, nil)

	if !c.TrackingState(ctx) {
		t.Error("存储不可用时 TrackingState 应返回默认值 true")
	}

	err := c.SetEnabled(ctx, false)
	if err == nil {
		t.Fatal("存储不可用时 SetEnabled 应返回错误")
	}
	if !errx.Is(err, errx.CodeStorageWrite) || !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Errorf("错误类型不符: %v", err)
	}
	if !c.Enabled() {
		t.Error("写入失败时不应改变内存状态")
	}
}

func TestController_MalformedValue(t *testing.T) {
	store := newBackend(t)
	ctx := context.Background()
	_ = store.Set(ctx, key, []byte(`"yes"`))

	if !session.New(store, key, nil).Load(ctx) {
		t.Error("格式无效时应回落为默认值")
	}
}

func TestController_OnChange(t *testing.T) {
	c := session.New(newBackend(t), key, nil)
	ctx := context.Background()

	var got []bool
	c.OnChange(func(enabled bool) { got = append(got, enabled) })
	c.OnChange(nil)

	_ = c.SetEnabled(ctx, false)
	_ = c.SetEnabled(ctx, false)
	_ = c.SetEnabled(ctx, true)

	if len(got) != 2 || got[0] != false || got[1] != true {
		t.Errorf("仅在状态变化时通知，实际 %v", got)
	}
}

func TestController_ShouldReset(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		ev      domain.NavigationEvent
		want    bool
	}{
		{"顶层 https", true, domain.NavigationEvent{FrameID: 0, URL: "https://example.com"}, true},
		{"顶层 http", true, domain.NavigationEvent{FrameID: 0, URL: "http://example.com/a?b=1"}, true},
		{"大写协议", true, domain.NavigationEvent{FrameID: 0, URL: "HTTPS://example.com"}, true},
		{"采集关闭", false, domain.NavigationEvent{FrameID: 0, URL: "https://example.com"}, false},
		{"子框架", true, domain.NavigationEvent{FrameID: 7, URL: "https://example.com"}, false},
		{"子框架且关闭", false, domain.NavigationEvent{FrameID: 7, URL: "https://example.com"}, false},
		{"浏览器内部页", true, domain.NavigationEvent{FrameID: 0, URL: "chrome://extensions"}, false},
		{"扩展页", true, domain.NavigationEvent{FrameID: 0, URL: "chrome-extension://abc/popup.html"}, false},
		{"data URI", true, domain.NavigationEvent{FrameID: 0, URL: "data:text/html,hi"}, false},
		{"about:blank", true, domain.NavigationEvent{FrameID: 0, URL: "about:blank"}, false},
		{"无法解析", true, domain.NavigationEvent{FrameID: 0, URL: "://bad"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := session.New(newBackend(t), key, nil)
			if err := c.SetEnabled(context.Background(), tt.enabled); err != nil {
				t.Fatalf("设置失败: %v", err)
			}
			if got := c.ShouldReset(tt.ev); got != tt.want {
				t.Errorf("ShouldReset() = %v, want %v", got, tt.want)
			}
		})
	}
}
