package logstore_test

import (
	"testing"

	"backtrack/internal/logstore"
	"backtrack/pkg/domain"
)

func rec(id string, ts float64) domain.Record {
	return domain.Record{ID: id, URL: "https://a.test/" + id, Method: "GET", StatusCode: 200, Timestamp: ts}
}

func ids(records []domain.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestInsertAndNewestFirst(t *testing.T) {
	s := logstore.New()
	s.Insert(rec("r1-1000", 1000))
	s.Insert(rec("r2-2000", 2000))

	got := ids(s.NewestFirst())
	if want := []string{"r2-2000", "r1-1000"}; !equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNewestFirst_TieBrokenByInsertion(t *testing.T) {
	s := logstore.New()
	s.Insert(rec("a", 500))
	s.Insert(rec("b", 500))
	s.Insert(rec("c", 100))
	s.Insert(rec("d", 500))

	got := ids(s.NewestFirst())
	if want := []string{"d", "b", "a", "c"}; !equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestInsert_ReplaceKeepsPosition(t *testing.T) {
	s := logstore.New()
	s.Insert(rec("a", 1))
	s.Insert(rec("b", 2))
	updated := rec("a", 1)
	updated.StatusCode = 404
	s.Insert(updated)

	if s.Size() != 2 {
		t.Fatalf("替换不应新增条目，size=%d", s.Size())
	}
	got := ids(s.Snapshot())
	if want := []string{"a", "b"}; !equal(got, want) {
		t.Errorf("插入顺序 got %v, want %v", got, want)
	}
	r, _ := s.Get("a")
	if r.StatusCode != 404 {
		t.Errorf("替换未生效: %d", r.StatusCode)
	}
}

func TestRemoveAndClear(t *testing.T) {
	s := logstore.New()
	s.Insert(rec("a", 1))
	s.Insert(rec("b", 2))
	s.Insert(rec("c", 3))

	if !s.Remove("b") {
		t.Error("删除已存在记录应返回 true")
	}
	if s.Remove("b") {
		t.Error("重复删除应返回 false")
	}
	if got := ids(s.Snapshot()); !equal(got, []string{"a", "c"}) {
		t.Errorf("删除后顺序 %v", got)
	}

	if n := s.Clear(); n != 2 {
		t.Errorf("Clear 预期返回 2，实际 %d", n)
	}
	if s.Size() != 0 || len(s.Snapshot()) != 0 {
		t.Error("Clear 后应为空")
	}

	// 清空后仍可继续使用
	s.Insert(rec("d", 4))
	if s.Size() != 1 {
		t.Errorf("清空后插入失败 size=%d", s.Size())
	}
}

func TestSetPinned(t *testing.T) {
	s := logstore.New()
	s.Insert(rec("a", 1))

	if !s.SetPinned("a", true) {
		t.Fatal("置顶已存在记录应成功")
	}
	r, _ := s.Get("a")
	if !r.Pinned {
		t.Error("置顶标记未生效")
	}
	if s.SetPinned("missing", true) {
		t.Error("不存在的记录应返回 false")
	}
}

func TestNewestFirst_ReturnsCopies(t *testing.T) {
	s := logstore.New()
	r := rec("a", 1)
	r.RequestHeaders = domain.Header{"A": "1"}
	s.Insert(r)

	out := s.NewestFirst()
	out[0].RequestHeaders["A"] = "changed"

	stored, _ := s.Get("a")
	if stored.RequestHeaders["A"] != "1" {
		t.Error("调用方修改副本不应影响集合内记录")
	}
}

func TestIterate_StopEarly(t *testing.T) {
	s := logstore.New()
	for _, id := range []string{"a", "b", "c"} {
		s.Insert(rec(id, 1))
	}
	visited := 0
	s.Iterate(func(e *logstore.Entry) bool {
		visited++
		return e.Record.ID != "b"
	})
	if visited != 2 {
		t.Errorf("预期遍历 2 条后停止，实际 %d", visited)
	}
}
