package gotxstate

import (
	"context"
	"fmt"
)

// 与生产者之间的一条连接
type Channel interface {
	// 连接唯一 id
	ID() string
	RemoteAddr() string
	// 发送一帧数据，不等待响应
	Send(ctx context.Context, frame []byte) error
}

// 回查请求
type CheckRequest struct {
	ProducerGroup        string `json:"producerGroup"`
	TranStateTableOffset int64  `json:"tranStateTableOffset"`
	CommitLogOffset      int64  `json:"commitLogOffset"`
	MessageSize          int32  `json:"messageSize"`
	// 存储中的原始消息
	Message []byte `json:"-"`
}

// 向生产者发起事务状态回查，结果由生产者通过 commit/rollback 请求异步返回
type TransactionChecker interface {
	Check(ctx context.Context, channel Channel, req *CheckRequest) error
}

// 生产者连接注册中心
type ProducerRegistry interface {
	// 挑选生产者组下任意一条可用连接，没有时返回 ErrProducerUnavailable
	PickChannel(producerGroup string) (Channel, error)
}

// 执行单条半消息的回查
type CheckExecutor interface {
	GotoCheck(ctx context.Context, producerGroup string, tranStateTableOffset, commitLogOffset int64, messageSize int32) error
}

type checkExecutor struct {
	registry ProducerRegistry
	store    MessageStore
	checker  TransactionChecker
}

func NewCheckExecutor(registry ProducerRegistry, store MessageStore, checker TransactionChecker) CheckExecutor {
	return &checkExecutor{
		registry: registry,
		store:    store,
		checker:  checker,
	}
}

func (c *checkExecutor) GotoCheck(ctx context.Context, producerGroup string, tranStateTableOffset, commitLogOffset int64, messageSize int32) error {
	// 1 挑选生产者连接
	channel, err := c.registry.PickChannel(producerGroup)
	if err != nil {
		return fmt.Errorf("pick channel of group: %s failed, err: %w", producerGroup, err)
	}
	if channel == nil {
		return fmt.Errorf("%w: group: %s", ErrProducerUnavailable, producerGroup)
	}

	// 2 查询消息
	handle, err := c.store.LocateMessage(commitLogOffset, messageSize)
	if err != nil {
		return fmt.Errorf("locate message failed, commit log offset: %d, size: %d, err: %w", commitLogOffset, messageSize, err)
	}
	if handle == nil {
		return fmt.Errorf("%w: commit log offset: %d, size: %d", ErrMessageNotFound, commitLogOffset, messageSize)
	}
	defer handle.Release()

	// 3 向生产者发起回查
	return c.checker.Check(ctx, channel, &CheckRequest{
		ProducerGroup:        producerGroup,
		TranStateTableOffset: tranStateTableOffset,
		CommitLogOffset:      commitLogOffset,
		MessageSize:          messageSize,
		Message:              handle.Bytes(),
	})
}
