package domain

import "errors"

// 存储相关错误
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrAllTiersFailed     = errors.New("all storage tiers failed")
	ErrRecordNotFound     = errors.New("record not found")
)

// 命令相关错误
var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidCommand = errors.New("invalid command")
)

// 连接相关错误
var (
	ErrDevToolsUnreachable = errors.New("devtools unreachable")
)
