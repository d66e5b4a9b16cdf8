package gotxstate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/btree"
)

const btreeDegree = 8

type tableShard struct {
	mux     sync.RWMutex
	records *btree.BTreeG[*HalfMessageRecord]
}

func newTableShard() *tableShard {
	return &tableShard{
		records: btree.NewG(btreeDegree, btree.LessFunc[*HalfMessageRecord](func(a, b *HalfMessageRecord) bool {
			return a.Key().less(b.Key())
		})),
	}
}

// 事务状态表，记录所有处于 prepared 状态的半消息
// 1. 按 key 分片加锁，不同分片之间的读写互不阻塞
// 2. 状态改写与记录删除在同一把分片锁内完成，快照不会观察到已改写却仍在表中的记录
type TransactionStateTable struct {
	store  MessageStore
	shards []*tableShard
	mask   uint64
	closed atomic.Bool
}

func NewTransactionStateTable(store MessageStore, shardCount int) *TransactionStateTable {
	shardCount = roundUpPowerOfTwo(shardCount)
	shards := make([]*tableShard, 0, shardCount)
	for i := 0; i < shardCount; i++ {
		shards = append(shards, newTableShard())
	}
	return &TransactionStateTable{
		store:  store,
		shards: shards,
		mask:   uint64(shardCount - 1),
	}
}

func (t *TransactionStateTable) shard(key RecordKey) *tableShard {
	var buf [64]byte
	return t.shards[xxhash.Sum64(key.appendTo(buf[:0]))&t.mask]
}

func probe(key RecordKey) *HalfMessageRecord {
	return &HalfMessageRecord{
		ProducerGroup:        key.ProducerGroup,
		TranStateTableOffset: key.TranStateTableOffset,
	}
}

// 校验记录能否写入状态表
func (t *TransactionStateTable) validate(record *HalfMessageRecord) error {
	if t.closed.Load() {
		return ErrSchedulerUnavailable
	}
	if record == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if record.Group() == "" {
		return fmt.Errorf("%w: missing producer group, tran state table offset: %d", ErrInvalidRecord, record.TranStateTableOffset)
	}
	return nil
}

// 新增一条半消息记录，key 已存在时覆盖
func (t *TransactionStateTable) Insert(record *HalfMessageRecord) error {
	if err := t.validate(record); err != nil {
		return err
	}

	rec := record.clone()
	rec.ProducerGroup = record.Group()
	if rec.PreparedAt.IsZero() {
		rec.PreparedAt = time.Now()
	}

	shard := t.shard(rec.Key())
	shard.mux.Lock()
	defer shard.mux.Unlock()
	shard.records.ReplaceOrInsert(rec)
	return nil
}

// 更新消息的事务状态，改写成功后从状态表中移除对应记录
func (t *TransactionStateTable) Resolve(ctx context.Context, tranStateTableOffset, commitLogOffset int64, producerGroup string, state TransactionState) error {
	if t.closed.Load() {
		return ErrSchedulerUnavailable
	}
	// 组名为空时无法命中记录，改写消息后记录会残留
	if producerGroup == "" {
		return fmt.Errorf("%w: missing producer group, tran state table offset: %d", ErrInvalidRecord, tranStateTableOffset)
	}

	// 定位消息不持有分片锁
	handle, err := t.store.LocateMessage(commitLogOffset, 0)
	if err != nil {
		return fmt.Errorf("locate message failed, commit log offset: %d, err: %w", commitLogOffset, err)
	}
	if handle == nil {
		return fmt.Errorf("%w: commit log offset: %d", ErrMessageNotFound, commitLogOffset)
	}
	defer handle.Release()

	key := RecordKey{
		ProducerGroup:        producerGroup,
		TranStateTableOffset: tranStateTableOffset,
	}
	shard := t.shard(key)
	shard.mux.Lock()
	defer shard.mux.Unlock()

	// 先改写状态，再移除记录
	if err := t.store.PatchState(handle, TranStateFieldOffset, state); err != nil {
		return fmt.Errorf("%w: key: %s, commit log offset: %d, err: %w", ErrPatchFailed, key, commitLogOffset, err)
	}
	shard.records.Delete(probe(key))
	return nil
}

// 记录一次回查
func (t *TransactionStateTable) MarkChecked(key RecordKey, at time.Time) {
	shard := t.shard(key)
	shard.mux.Lock()
	defer shard.mux.Unlock()
	rec, ok := shard.records.Get(probe(key))
	if !ok {
		return
	}
	rec.CheckTimes++
	rec.LastCheckedAt = at
}

func (t *TransactionStateTable) Get(key RecordKey) (HalfMessageRecord, bool) {
	shard := t.shard(key)
	shard.mux.RLock()
	defer shard.mux.RUnlock()
	rec, ok := shard.records.Get(probe(key))
	if !ok {
		return HalfMessageRecord{}, false
	}
	return *rec.clone(), true
}

// 获取当前全部记录的拷贝，按 key 排序
func (t *TransactionStateTable) Snapshot() ([]HalfMessageRecord, error) {
	if t.closed.Load() {
		return nil, ErrSchedulerUnavailable
	}

	var records []HalfMessageRecord
	for _, shard := range t.shards {
		shard.mux.RLock()
		shard.records.Ascend(func(rec *HalfMessageRecord) bool {
			records = append(records, *rec.clone())
			return true
		})
		shard.mux.RUnlock()
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Key().less(records[j].Key())
	})
	return records, nil
}

func (t *TransactionStateTable) Len() int {
	var n int
	for _, shard := range t.shards {
		shard.mux.RLock()
		n += shard.records.Len()
		shard.mux.RUnlock()
	}
	return n
}

func (t *TransactionStateTable) Close() {
	t.closed.Store(true)
}
