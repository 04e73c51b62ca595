package repo

import (
	"context"
	"time"

	"backtrack/internal/storage/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVRepo 键值仓库
type KVRepo struct {
	BaseRepository[model.KVEntry]
}

// NewKVRepo 创建键值仓库实例
func NewKVRepo(db *gorm.DB) *KVRepo {
	return &KVRepo{
		BaseRepository: *NewBaseRepository[model.KVEntry](db),
	}
}

// Get 获取值，第二个返回值表示键是否存在
func (r *KVRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var entries []model.KVEntry
	result := r.Db.WithContext(ctx).Where("key = ?", key).Limit(1).Find(&entries)
	if result.Error != nil {
		return "", false, result.Error
	}
	if len(entries) == 0 {
		return "", false, nil
	}
	return entries[0].Value, true, nil
}

// Set 设置值（存在则更新，不存在则创建）
func (r *KVRepo) Set(ctx context.Context, key, value string) error {
	entry := model.KVEntry{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return r.Db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
}

// DeleteByKey 根据 key 删除
func (r *KVRepo) DeleteByKey(ctx context.Context, key string) error {
	_, err := r.Delete(ctx, FilterFunc(func(db *gorm.DB) *gorm.DB {
		return db.Where("key = ?", key)
	}))
	return err
}
