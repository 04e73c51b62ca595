// Package storage 提供分级持久化所用的键值后端
package storage

import (
	"context"
	"fmt"
	"sync"

	"backtrack/internal/storage/repo"
	"backtrack/pkg/domain"
)

// Backend 持久化后端，按优先级排列组成多级存储
type Backend interface {
	// Name 后端名称，用于日志
	Name() string
	// Get 读取键值，键不存在时 ok 为 false
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set 写入键值
	Set(ctx context.Context, key string, value []byte) error
	// Remove 删除键
	Remove(ctx context.Context, key string) error
}

// KVBackend 基于 gorm 键值表的后端
type KVBackend struct {
	name string

	mu   sync.RWMutex
	repo *repo.KVRepo
}

// NewKVBackend 创建键值后端，repo 为 nil 时后端处于未就绪状态
func NewKVBackend(name string, r *repo.KVRepo) *KVBackend {
	return &KVBackend{name: name, repo: r}
}

// Name 返回后端名称
func (b *KVBackend) Name() string { return b.name }

// Attach 在底层数据库就绪后挂载仓库
func (b *KVBackend) Attach(r *repo.KVRepo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.repo = r
}

// Ready 是否已就绪
func (b *KVBackend) Ready() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.repo != nil
}

func (b *KVBackend) current() (*repo.KVRepo, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.repo == nil {
		return nil, fmt.Errorf("%s: %w", b.name, domain.ErrStorageUnavailable)
	}
	return b.repo, nil
}

// Get 读取键值
func (b *KVBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	r, err := b.current()
	if err != nil {
		return nil, false, err
	}
	val, ok, err := r.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	return []byte(val), true, nil
}

// Set 写入键值
func (b *KVBackend) Set(ctx context.Context, key string, value []byte) error {
	r, err := b.current()
	if err != nil {
		return err
	}
	return r.Set(ctx, key, string(value))
}

// Remove 删除键
func (b *KVBackend) Remove(ctx context.Context, key string) error {
	r, err := b.current()
	if err != nil {
		return err
	}
	return r.DeleteByKey(ctx, key)
}
