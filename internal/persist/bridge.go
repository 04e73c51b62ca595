// Package persist 负责请求日志在分级存储中的保存与恢复
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"backtrack/internal/logger"
	"backtrack/internal/storage"
	"backtrack/internal/storage/model"
	"backtrack/pkg/domain"

	"github.com/tidwall/gjson"
)

// Bridge 持久化桥，按优先级依次尝试各存储层
type Bridge struct {
	tiers []storage.Backend
	key   string
	log   logger.Logger
}

// NewBridge 创建持久化桥，tiers 按优先级从高到低排列
func NewBridge(l logger.Logger, tiers ...storage.Backend) *Bridge {
	if l == nil {
		l = logger.NewNop()
	}
	return &Bridge{tiers: tiers, key: model.KeyRequestLog, log: l}
}

// tryEach 依次执行 fn，直到某一层成功，返回成功层的名称
func (b *Bridge) tryEach(ctx context.Context, op string, fn func(context.Context, storage.Backend) error) (string, error) {
	errs := make([]error, 0, len(b.tiers))
	for _, tier := range b.tiers {
		err := fn(ctx, tier)
		if err == nil {
			return tier.Name(), nil
		}
		b.log.Debug("存储层操作失败，尝试下一层", "op", op, "tier", tier.Name(), "error", err.Error())
		errs = append(errs, fmt.Errorf("%s: %w", tier.Name(), err))
	}
	return "", fmt.Errorf("%s: %w: %w", op, domain.ErrAllTiersFailed, errors.Join(errs...))
}

// Save 写入完整记录集，所有层都失败时仅记录日志
func (b *Bridge) Save(ctx context.Context, records []domain.Record) {
	if records == nil {
		records = []domain.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		b.log.Err(err, "序列化请求日志失败")
		return
	}

	tier, err := b.tryEach(ctx, "save", func(ctx context.Context, s storage.Backend) error {
		return s.Set(ctx, b.key, data)
	})
	if err != nil {
		b.log.Err(err, "保存请求日志失败", "count", len(records))
		return
	}
	b.log.Debug("请求日志已保存", "tier", tier, "count", len(records))
}

// Restore 从最高优先级的可用层读取记录。
// 键不存在、值为空、数据损坏或层不可用都会转向下一层；全部落空时返回空集。
func (b *Bridge) Restore(ctx context.Context) []domain.Record {
	for _, tier := range b.tiers {
		data, ok, err := tier.Get(ctx, b.key)
		if err != nil {
			b.log.Debug("读取存储层失败", "tier", tier.Name(), "error", err.Error())
			continue
		}
		if !ok || len(data) == 0 {
			continue
		}
		records, skipped, err := decodeRecords(data)
		if err != nil {
			b.log.Warn("持久化数据损坏，已忽略", "tier", tier.Name(), "error", err.Error())
			continue
		}
		if skipped > 0 {
			b.log.Warn("跳过无法解析的记录", "tier", tier.Name(), "skipped", skipped)
		}
		b.log.Info("请求日志已恢复", "tier", tier.Name(), "count", len(records))
		return records
	}
	return []domain.Record{}
}

// Clear 清除所有层中的请求日志，仅当每一层都失败时返回错误
func (b *Bridge) Clear(ctx context.Context) error {
	cleared := 0
	errs := make([]error, 0, len(b.tiers))
	for _, tier := range b.tiers {
		if err := tier.Remove(ctx, b.key); err != nil {
			b.log.Debug("清除存储层失败", "tier", tier.Name(), "error", err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", tier.Name(), err))
			continue
		}
		cleared++
	}
	if cleared == 0 && len(b.tiers) > 0 {
		return fmt.Errorf("clear: %w: %w", domain.ErrAllTiersFailed, errors.Join(errs...))
	}
	return nil
}

// decodeRecords 解析持久化的记录数组，逐条解码并跳过无效元素
func decodeRecords(data []byte) ([]domain.Record, int, error) {
	if !gjson.ValidBytes(data) {
		return nil, 0, errors.New("invalid json")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, 0, fmt.Errorf("expected array, got %s", root.Type)
	}

	records := make([]domain.Record, 0, len(root.Array()))
	skipped := 0
	root.ForEach(func(_, item gjson.Result) bool {
		var r domain.Record
		if err := json.Unmarshal([]byte(item.Raw), &r); err != nil || r.ID == "" {
			skipped++
			return true
		}
		records = append(records, r)
		return true
	})
	return records, skipped, nil
}
