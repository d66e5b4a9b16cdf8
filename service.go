package gotxstate

import (
	"context"
	"fmt"
	"sync"

	"github.com/xiaoxuxiansheng/gotxstate/log"
)

// 1. 事务状态表：记录所有未决议的半消息
// 2. 回查调度器：周期性向生产者发起事务状态回查
// 3. 半消息日志（可选）：进程重启后恢复事务状态表
type TransactionStateService struct {
	opts      *Options
	table     *TransactionStateTable
	scheduler *ReconciliationScheduler
	journal   Journal

	mux      sync.Mutex
	shutdown bool
}

func NewTransactionStateService(store MessageStore, registry ProducerRegistry, checker TransactionChecker, roles RoleSource, opts ...Option) *TransactionStateService {
	return NewTransactionStateServiceWithExecutor(store, NewCheckExecutor(registry, store, checker), roles, opts...)
}

func NewTransactionStateServiceWithExecutor(store MessageStore, executor CheckExecutor, roles RoleSource, opts ...Option) *TransactionStateService {
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	repair(&options)

	table := NewTransactionStateTable(store, options.ShardCount)
	return &TransactionStateService{
		opts:      &options,
		table:     table,
		scheduler: NewReconciliationScheduler(table, roles, executor, opts...),
		journal:   options.Journal,
	}
}

// 从半消息日志恢复状态表，并启动周期回查
func (t *TransactionStateService) Start(ctx context.Context) error {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.shutdown {
		return ErrSchedulerUnavailable
	}

	if t.journal != nil {
		records, err := t.journal.Load(ctx)
		if err != nil {
			return fmt.Errorf("load half message journal failed, err: %w", err)
		}
		for _, record := range records {
			if err := t.table.Insert(record); err != nil {
				log.ErrorContextf(ctx, "recover half message failed, key: %s, err: %v", record.Key(), err)
			}
		}
		log.InfoContextf(ctx, "recovered %d half messages from journal", len(records))
	}

	t.scheduler.Start()
	return nil
}

// 停止周期回查，之后对状态表的调用均返回 ErrSchedulerUnavailable
func (t *TransactionStateService) Shutdown() {
	t.mux.Lock()
	defer t.mux.Unlock()
	if t.shutdown {
		return
	}
	t.shutdown = true
	t.scheduler.Shutdown()
	t.table.Close()
}

// 存储层分发一条新写入的半消息
func (t *TransactionStateService) AppendPrepared(ctx context.Context, record *HalfMessageRecord) error {
	// 先校验再落日志，避免残留无法入表的记录
	if err := t.table.validate(record); err != nil {
		return err
	}
	if t.journal == nil {
		return t.table.Insert(record)
	}

	if err := t.journal.Save(ctx, record); err != nil {
		return fmt.Errorf("save half message failed, key: %s, err: %w", record.Key(), err)
	}
	if err := t.table.Insert(record); err != nil {
		// 校验之后并发关闭，回滚日志
		if derr := t.journal.Delete(ctx, record.Key()); derr != nil {
			log.ErrorContextf(ctx, "delete half message journal failed, key: %s, err: %v", record.Key(), derr)
		}
		return err
	}
	return nil
}

// 存储层处理生产者的 commit / rollback
func (t *TransactionStateService) Resolve(ctx context.Context, tranStateTableOffset, commitLogOffset int64, producerGroup string, state TransactionState) error {
	if !state.Final() {
		return fmt.Errorf("%w: %s", ErrInvalidState, state)
	}
	if err := t.table.Resolve(ctx, tranStateTableOffset, commitLogOffset, producerGroup, state); err != nil {
		return err
	}

	// 状态表为准，日志删除失败只打印日志，重启恢复后会再次回查
	if t.journal != nil {
		key := RecordKey{ProducerGroup: producerGroup, TranStateTableOffset: tranStateTableOffset}
		if err := t.journal.Delete(ctx, key); err != nil {
			log.ErrorContextf(ctx, "delete half message journal failed, key: %s, err: %v", key, err)
		}
	}
	return nil
}

func (t *TransactionStateService) Snapshot() ([]HalfMessageRecord, error) {
	return t.table.Snapshot()
}

func (t *TransactionStateService) Tick(ctx context.Context) TickReport {
	return t.scheduler.Tick(ctx)
}

func (t *TransactionStateService) Table() *TransactionStateTable {
	return t.table
}
