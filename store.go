package gotxstate

import (
	"context"
	"time"
)

// 已定位到的一条存储消息
type MessageHandle interface {
	// 消息在存储中的字节序列，改写会直接作用于存储
	Bytes() []byte
	// 释放对底层存储区域的引用
	Release()
}

// 消息存储模块，由存储层实现并注入
type MessageStore interface {
	// 按 commitlog offset 与消息大小定位一条消息，找不到时返回 ErrMessageNotFound
	// messageSize <= 0 时由存储层从消息头部读取大小
	LocateMessage(commitLogOffset int64, messageSize int32) (MessageHandle, error)
	// 在消息内固定位置改写事务状态
	PatchState(handle MessageHandle, offsetWithinMessage int, state TransactionState) error
}

// 半消息日志，用于进程重启后恢复事务状态表（可选）
type Journal interface {
	// 写入一条半消息记录，已存在时覆盖
	Save(ctx context.Context, record *HalfMessageRecord) error
	// 删除一条已决议的半消息记录
	Delete(ctx context.Context, key RecordKey) error
	// 加载全部未决议的半消息记录
	Load(ctx context.Context) ([]*HalfMessageRecord, error)
}

// 回查任务锁（要求为分布式锁），避免多个节点重复发起回查
type TickLocker interface {
	Lock(ctx context.Context, expireDuration time.Duration) error
	Unlock(ctx context.Context) error
}
