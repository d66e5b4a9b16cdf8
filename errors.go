package gotxstate

import "errors"

var (
	// 生产者组下没有可用的连接
	ErrProducerUnavailable = errors.New("producer unavailable")
	// commitlog offset 无法定位到消息，可能已被截断或损坏
	ErrMessageNotFound = errors.New("message not found")
	// 事务状态字段写入失败
	ErrPatchFailed = errors.New("patch transaction state failed")
	// 服务已关闭后仍被调用
	ErrSchedulerUnavailable = errors.New("transaction state service unavailable")

	ErrInvalidRecord  = errors.New("invalid half message record")
	ErrInvalidState   = errors.New("invalid transaction state")
	ErrFormatMismatch = errors.New("message format mismatch")
)
