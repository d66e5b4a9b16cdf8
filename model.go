package gotxstate

import (
	"encoding/binary"
	"fmt"
	"maps"
	"time"
)

// 消息属性中记录生产者组的 key
const PropertyProducerGroup = "PGROUP"

// 事务状态，取值与消息 sysFlag 中的事务类型位保持一致
type TransactionState int32

const (
	// 半消息，等待生产者提交或回滚
	StatePrepared TransactionState = 0x4
	// 已提交
	StateCommitted TransactionState = 0x8
	// 已回滚
	StateRolledBack TransactionState = 0xC
)

func (t TransactionState) String() string {
	switch t {
	case StatePrepared:
		return "prepared"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("unknown(%d)", int32(t))
	}
}

// 是否为终态
func (t TransactionState) Final() bool {
	return t == StateCommitted || t == StateRolledBack
}

// 事务状态表中一条记录的唯一标识
type RecordKey struct {
	ProducerGroup        string `json:"producerGroup"`
	TranStateTableOffset int64  `json:"tranStateTableOffset"`
}

func (k RecordKey) String() string {
	return fmt.Sprintf("%s@%d", k.ProducerGroup, k.TranStateTableOffset)
}

func (k RecordKey) less(other RecordKey) bool {
	if k.ProducerGroup != other.ProducerGroup {
		return k.ProducerGroup < other.ProducerGroup
	}
	return k.TranStateTableOffset < other.TranStateTableOffset
}

// 编码为字节序列，用于计算分片
func (k RecordKey) appendTo(buf []byte) []byte {
	buf = append(buf, k.ProducerGroup...)
	return binary.BigEndian.AppendUint64(buf, uint64(k.TranStateTableOffset))
}

// 一条处于 prepared 状态、尚未决议的半消息
type HalfMessageRecord struct {
	ProducerGroup        string            `json:"producerGroup"`
	CommitLogOffset      int64             `json:"commitLogOffset"`
	TranStateTableOffset int64             `json:"tranStateTableOffset"`
	MessageSize          int32             `json:"messageSize"`
	PreparedAt           time.Time         `json:"preparedAt"`
	Properties           map[string]string `json:"properties"`

	// 由状态表维护，供回查策略使用
	CheckTimes    int       `json:"checkTimes"`
	LastCheckedAt time.Time `json:"lastCheckedAt"`
}

// 获取生产者组，字段缺失时从消息属性中推导
func (h *HalfMessageRecord) Group() string {
	if h.ProducerGroup != "" {
		return h.ProducerGroup
	}
	return h.Properties[PropertyProducerGroup]
}

func (h *HalfMessageRecord) Key() RecordKey {
	return RecordKey{
		ProducerGroup:        h.Group(),
		TranStateTableOffset: h.TranStateTableOffset,
	}
}

func (h *HalfMessageRecord) clone() *HalfMessageRecord {
	c := *h
	c.Properties = maps.Clone(h.Properties)
	return &c
}
