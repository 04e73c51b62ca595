package model

import (
	"time"
)

// KVEntry 键值存储表，两级持久化共用同一结构
type KVEntry struct {
	Key       string    `gorm:"primaryKey" json:"key"`  // 键
	Value     string    `gorm:"type:text" json:"value"` // JSON 编码后的值
	UpdatedAt time.Time `json:"updatedAt"`              // 更新时间
}

// 预定义的存储 Key
const (
	KeyRequestLog = "requestLog" // 请求日志快照
	KeyBrowserID  = "browserId"  // 会话层数据所属的浏览器实例
)
