package gotxstate

import (
	"time"
)

// 单条回查失败的原因
type FailureReason string

func (f FailureReason) String() string {
	return string(f)
}

const (
	ReasonProducerUnavailable FailureReason = "producer_unavailable"
	ReasonMessageNotFound     FailureReason = "message_not_found"
	ReasonCheckFailed         FailureReason = "check_failed"
	ReasonCancelled           FailureReason = "cancelled"
)

type CheckFailure struct {
	Key    RecordKey
	Reason FailureReason
	Err    error
}

// 每轮回查产出的统计事件
type TickReport struct {
	TickID    string
	StartedAt time.Time
	Duration  time.Duration
	Role      BrokerRole
	// 快照中的记录数
	Scanned int
	// 成功发起回查的记录数
	Checked int
	// 因未达到 MinAge 被跳过的记录数
	Skipped int
	// 达到最大回查次数而不再回查的记录数
	Exhausted int
	Failures  []CheckFailure
}

type TickObserver func(report TickReport)
