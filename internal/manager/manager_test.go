package manager_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"backtrack/internal/eviction"
	"backtrack/internal/manager"
	"backtrack/internal/persist"
	"backtrack/internal/session"
	"backtrack/internal/storage"
	"backtrack/internal/storage/db"
	"backtrack/internal/storage/model"
	"backtrack/internal/storage/repo"
	"backtrack/pkg/domain"
	"backtrack/pkg/errx"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// tiers 测试用的两级存储
type tiers struct {
	primary   *storage.KVBackend
	secondary *storage.KVBackend
}

func newRepo(t *testing.T) *repo.KVRepo {
	t.Helper()
	gdb, err := db.New(db.Options{FullPath: db.MemoryPath, Prefix: "test_"})
	if err != nil {
		t.Fatalf("创建内存数据库失败: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	if err := db.Migrate(gdb, &model.KVEntry{}); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	return repo.NewKVRepo(gdb)
}

func newTiers(t *testing.T) tiers {
	return tiers{
		primary:   storage.NewKVBackend("session", newRepo(t)),
		secondary: storage.NewKVBackend("local", newRepo(t)),
	}
}

func fixedPolicy(nowMS int64, max int) eviction.Policy {
	return eviction.Policy{
		Retention:  eviction.RetentionWindow,
		MaxEntries: max,
		Now:        func() time.Time { return time.UnixMilli(nowMS) },
	}
}

func newManager(t *testing.T, ts tiers, policy eviction.Policy) *manager.Manager {
	t.Helper()
	m := manager.New(manager.Options{
		Bridge:         persist.NewBridge(nil, ts.primary, ts.secondary),
		Session:        session.New(ts.secondary, "backtrack-enabled", nil),
		Policy:         policy,
		IgnorePrefixes: []string{"chrome-extension://"},
	})
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	t.Cleanup(func() { m.Shutdown(context.Background()) })
	return m
}

func complete(m *manager.Manager, requestID string, ts float64) bool {
	return m.Completed(domain.CompletedEvent{
		RequestID:  requestID,
		URL:        "https://a.test/x",
		Method:     "GET",
		StatusCode: 200,
		TimeStamp:  ts,
	})
}

func ids(records []domain.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestManager_NewestFirst(t *testing.T) {
	m := newManager(t, newTiers(t), fixedPolicy(2000, eviction.MaxEntries))

	complete(m, "r1", 1000)
	complete(m, "r2", 2000)

	if got := fmt.Sprint(ids(m.Log())); got != "[r2-2000 r1-1000]" {
		t.Errorf("GetLog 顺序不符: %s", got)
	}
}

func TestManager_CorrelatesHeaders(t *testing.T) {
	m := newManager(t, newTiers(t), fixedPolicy(1000, eviction.MaxEntries))

	m.RequestHeadersSent(domain.RequestHeadersEvent{
		RequestID: "7", URL: "https://a.test/x?q=1", Method: "GET",
		RequestHeaders: []domain.HeaderEntry{{Name: "Accept", Value: "*/*"}},
	})
	m.ResponseHeadersReceived(domain.ResponseHeadersEvent{
		RequestID: "7", URL: "https://a.test/x?q=1",
		ResponseHeaders: []domain.HeaderEntry{{Name: "Content-Length", Value: "10"}},
	})
	complete(m, "7", 1000)

	log := m.Log()
	if len(log) != 1 {
		t.Fatalf("预期 1 条记录，实际 %d", len(log))
	}
	r := log[0]
	if r.RequestHeaders["Accept"] != "*/*" || r.RequestHeaders[":path"] != "/x?q=1" {
		t.Errorf("请求头不符: %v", r.RequestHeaders)
	}
	if r.ResponseHeaders["Content-Length"] != "10" || r.Size == "" {
		t.Errorf("响应头或大小不符: %v %q", r.ResponseHeaders, r.Size)
	}
	if req, res := m.Pending(); req != 0 || res != 0 {
		t.Errorf("完成后缓冲应释放，实际 %d/%d", req, res)
	}
}

func TestManager_AbandonedFreesBuffers(t *testing.T) {
	m := newManager(t, newTiers(t), fixedPolicy(1000, eviction.MaxEntries))

	m.RequestHeadersSent(domain.RequestHeadersEvent{RequestID: "8", URL: "https://old.test/api", Method: "GET"})
	m.ResponseHeadersReceived(domain.ResponseHeadersEvent{RequestID: "8", URL: "https://old.test/api"})
	m.Abandoned("8")

	if req, res := m.Pending(); req != 0 || res != 0 {
		t.Errorf("丢弃后缓冲应释放，实际 %d/%d", req, res)
	}
	if n := m.Size(); n != 0 {
		t.Errorf("丢弃的请求不应入库，实际 %d 条", n)
	}
}

func TestManager_DisabledDiscardsButFreesBuffers(t *testing.T) {
	m := newManager(t, newTiers(t), fixedPolicy(1000, eviction.MaxEntries))
	ctx := context.Background()

	if err := m.SetTrackingEnabled(ctx, false); err != nil {
		t.Fatalf("关闭采集失败: %v", err)
	}
	m.RequestHeadersSent(domain.RequestHeadersEvent{RequestID: "1", URL: "https://a.test/"})
	if complete(m, "1", 1000) {
		t.Error("采集关闭时不应入库")
	}
	if len(m.Log()) != 0 {
		t.Error("采集关闭时日志应为空")
	}
	if req, _ := m.Pending(); req != 0 {
		t.Error("采集关闭时缓冲也应释放")
	}
	if m.TrackingEnabled(ctx) {
		t.Error("开关应为关闭")
	}
}

func TestManager_IgnoredPrefix(t *testing.T) {
	m := newManager(t, newTiers(t), fixedPolicy(1000, eviction.MaxEntries))

	m.RequestHeadersSent(domain.RequestHeadersEvent{RequestID: "1", URL: "chrome-extension://abc/popup.html"})
	if req, _ := m.Pending(); req != 0 {
		t.Error("扩展自身的请求不应进入缓冲")
	}
	if m.Completed(domain.CompletedEvent{RequestID: "1", URL: "chrome-extension://abc/popup.html", TimeStamp: 1000}) {
		t.Error("扩展自身的请求不应入库")
	}
}

func TestManager_Navigation(t *testing.T) {
	tests := []struct {
		name      string
		enabled   bool
		ev        domain.NavigationEvent
		wantClear bool
	}{
		{"顶层导航", true, domain.NavigationEvent{FrameID: 0, URL: "https://example.com"}, true},
		{"采集关闭", false, domain.NavigationEvent{FrameID: 0, URL: "https://example.com"}, false},
		{"子框架", true, domain.NavigationEvent{FrameID: 7, URL: "https://example.com"}, false},
		{"子框架且关闭", false, domain.NavigationEvent{FrameID: 7, URL: "https://example.com"}, false},
		{"内部页面", true, domain.NavigationEvent{FrameID: 0, URL: "chrome://extensions"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(t, newTiers(t), fixedPolicy(1000, eviction.MaxEntries))
			ctx := context.Background()
			complete(m, "1", 1000)
			if err := m.SetTrackingEnabled(ctx, tt.enabled); err != nil {
				t.Fatalf("设置开关失败: %v", err)
			}

			cleared := m.Navigated(ctx, tt.ev)
			if cleared != tt.wantClear {
				t.Errorf("Navigated() = %v, want %v", cleared, tt.wantClear)
			}
			if wantLen := map[bool]int{true: 0, false: 1}[tt.wantClear]; len(m.Log()) != wantLen {
				t.Errorf("预期 %d 条记录，实际 %d", wantLen, len(m.Log()))
			}
		})
	}
}

func TestManager_PersistAcrossRestart(t *testing.T) {
	ts := newTiers(t)
	policy := fixedPolicy(2000, eviction.MaxEntries)
	ctx := context.Background()

	first := manager.New(manager.Options{
		Bridge:  persist.NewBridge(nil, ts.primary, ts.secondary),
		Session: session.New(ts.secondary, "backtrack-enabled", nil),
		Policy:  policy,
	})
	if err := first.Init(ctx); err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	complete(first, "r1", 1000)
	complete(first, "r2", 2000)
	if err := first.SetPinned("r1-1000", true); err != nil {
		t.Fatalf("置顶失败: %v", err)
	}
	first.Shutdown(ctx)

	second := newManager(t, ts, policy)
	log := second.Log()
	if got := fmt.Sprint(ids(log)); got != "[r2-2000 r1-1000]" {
		t.Fatalf("恢复结果不符: %s", got)
	}
	if !log[1].Pinned {
		t.Error("置顶标记应被持久化")
	}
}

func TestManager_RestoreAppliesEviction(t *testing.T) {
	ts := newTiers(t)
	ctx := context.Background()
	stale := `[{"id":"old","timeStamp":1000},{"id":"kept","timeStamp":1000,"pinned":true},{"id":"new","timeStamp":600000}]`
	if err := ts.primary.Set(ctx, model.KeyRequestLog, []byte(stale)); err != nil {
		t.Fatalf("写入失败: %v", err)
	}

	m := newManager(t, ts, fixedPolicy(600000, eviction.MaxEntries))
	if got := fmt.Sprint(ids(m.Log())); got != "[new kept]" {
		t.Errorf("恢复后应执行淘汰，实际 %s", got)
	}
}

func TestManager_Clear(t *testing.T) {
	ts := newTiers(t)
	ctx := context.Background()
	m := newManager(t, ts, fixedPolicy(1000, eviction.MaxEntries))
	complete(m, "1", 1000)
	m.Shutdown(ctx) // 写出快照

	m = newManager(t, ts, fixedPolicy(1000, eviction.MaxEntries))
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("清空失败: %v", err)
	}
	if len(m.Log()) != 0 {
		t.Error("内存日志应为空")
	}
	if _, ok, _ := ts.primary.Get(ctx, model.KeyRequestLog); ok {
		t.Error("主存储层应被清除")
	}
}

func TestManager_ClearFailureStillEmptiesMemory(t *testing.T) {
	down := tiers{
		primary:   storage.NewKVBackend("session", nil),
		secondary: storage.NewKVBackend("local", nil),
	}
	m := newManager(t, down, fixedPolicy(1000, eviction.MaxEntries))
	complete(m, "1", 1000)

	err := m.Clear(context.Background())
	if !errx.Is(err, errx.CodeStorageClear) {
		t.Errorf("预期 CodeStorageClear，实际 %v", err)
	}
	if !errors.Is(err, domain.ErrAllTiersFailed) {
		t.Errorf("应包装 ErrAllTiersFailed，实际 %v", err)
	}
	if len(m.Log()) != 0 {
		t.Error("持久层失败时内存日志仍应清空")
	}
}

func TestManager_PinnedSurviveEviction(t *testing.T) {
	m := newManager(t, newTiers(t), fixedPolicy(10_000, 2))

	complete(m, "a", 9000)
	if err := m.SetPinned("a-9000", true); err != nil {
		t.Fatalf("置顶失败: %v", err)
	}
	for i := 1; i <= 5; i++ {
		complete(m, fmt.Sprintf("b%d", i), float64(9000+i))
	}

	if got := fmt.Sprint(ids(m.Log())); got != "[b5-9005 a-9000]" {
		t.Errorf("淘汰结果不符: %s", got)
	}

	err := m.SetPinned("missing", true)
	if !errx.Is(err, errx.CodeRecordNotFound) || !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("未知记录应返回 CodeRecordNotFound，实际 %v", err)
	}
}

func TestManager_LogReturnsCopies(t *testing.T) {
	m := newManager(t, newTiers(t), fixedPolicy(1000, eviction.MaxEntries))
	m.RequestHeadersSent(domain.RequestHeadersEvent{
		RequestID: "1", URL: "https://a.test/",
		RequestHeaders: []domain.HeaderEntry{{Name: "A", Value: "1"}},
	})
	complete(m, "1", 1000)

	first := m.Log()
	first[0].RequestHeaders["A"] = "changed"
	first[0].Pinned = true

	second := m.Log()
	if second[0].RequestHeaders["A"] != "1" || second[0].Pinned {
		t.Error("调用方修改不应影响内部状态")
	}
}
