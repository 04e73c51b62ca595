package repo

import (
	"context"

	"gorm.io/gorm"
)

// Filter 筛选器接口
type Filter interface {
	Apply(db *gorm.DB) *gorm.DB
}

// FilterFunc 函数式筛选器
type FilterFunc func(db *gorm.DB) *gorm.DB

// Apply 实现 Filter 接口
func (f FilterFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// BaseRepository 基础DAO层
type BaseRepository[T any] struct {
	Db *gorm.DB
}

// NewBaseRepository 创建基础DAO层
func NewBaseRepository[T any](db *gorm.DB) *BaseRepository[T] {
	return &BaseRepository[T]{
		Db: db,
	}
}

// Delete 删除匹配筛选器的记录
func (r *BaseRepository[T]) Delete(ctx context.Context, filter Filter) (int64, error) {
	query := r.Db.WithContext(ctx)
	if filter != nil {
		query = filter.Apply(query)
	} else {
		query = query.Where("1 = 1")
	}
	result := query.Delete(new(T))
	return result.RowsAffected, result.Error
}
