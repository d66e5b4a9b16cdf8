package gotxstate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xiaoxuxiansheng/gotxstate/log"
)

// 事务回查调度器
// 1. 仅在写入节点上周期性扫描事务状态表
// 2. 对快照中的每条半消息发起一次回查，单条失败不影响其他记录
// 3. 回查结果由生产者异步提交，经 Resolve 流程从状态表中移除
type ReconciliationScheduler struct {
	ctx      context.Context
	stop     context.CancelFunc
	opts     *Options
	table    *TransactionStateTable
	roles    RoleSource
	executor CheckExecutor

	mux     sync.Mutex
	started bool
	done    chan struct{}
}

func NewReconciliationScheduler(table *TransactionStateTable, roles RoleSource, executor CheckExecutor, opts ...Option) *ReconciliationScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	scheduler := ReconciliationScheduler{
		ctx:      ctx,
		stop:     cancel,
		opts:     &Options{},
		table:    table,
		roles:    roles,
		executor: executor,
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(scheduler.opts)
	}

	repair(scheduler.opts)
	return &scheduler
}

// 启动周期回查，重复调用或 Shutdown 之后调用均无效果
func (s *ReconciliationScheduler) Start() {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.started || s.ctx.Err() != nil {
		return
	}
	s.started = true
	go s.run()
}

// 停止周期回查并等待进行中的一轮回查退出
func (s *ReconciliationScheduler) Shutdown() {
	s.mux.Lock()
	s.stop()
	started := s.started
	s.mux.Unlock()

	if started {
		<-s.done
	}
}

// 执行一轮回查
func (s *ReconciliationScheduler) Tick(ctx context.Context) TickReport {
	report, _ := s.tick(ctx)
	return report
}

func (s *ReconciliationScheduler) backOffTick(tick time.Duration) time.Duration {
	tick <<= 1
	if threshold := s.opts.CheckInterval << 3; tick > threshold {
		return threshold
	}
	return tick
}

func (s *ReconciliationScheduler) run() {
	defer close(s.done)

	var tick time.Duration
	var err error
	for {
		// 获取角色失败时 tick 需要避让
		if err == nil {
			tick = s.opts.CheckInterval
		} else {
			tick = s.backOffTick(tick)
		}

		timer := time.NewTimer(tick)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// 加锁，避免多个节点重复回查；取锁失败不做退避
		locker := s.opts.TickLocker
		if locker != nil {
			if lockErr := locker.Lock(s.ctx, s.opts.CheckInterval); lockErr != nil {
				log.DebugContextf(s.ctx, "acquire check lock failed, skip this tick, err: %v", lockErr)
				err = nil
				continue
			}
		}

		_, err = s.tick(s.ctx)

		if locker != nil {
			if unlockErr := locker.Unlock(context.Background()); unlockErr != nil {
				log.WarnContextf(s.ctx, "release check lock failed, err: %v", unlockErr)
			}
		}
	}
}

func (s *ReconciliationScheduler) tick(ctx context.Context) (TickReport, error) {
	report := TickReport{
		TickID:    uuid.NewString(),
		StartedAt: time.Now(),
	}

	role, err := s.roles.CurrentRole(ctx)
	if err != nil {
		log.ErrorContextf(ctx, "get broker role failed, tick id: %s, err: %v", report.TickID, err)
		return report, err
	}
	report.Role = role

	// 只读副本不回查
	if !role.IsWriteOwner() {
		s.emit(ctx, &report)
		return report, nil
	}

	// 在发起任何网络请求之前拷贝出快照
	records, err := s.table.Snapshot()
	if err != nil {
		log.ErrorContextf(ctx, "snapshot transaction state table failed, tick id: %s, err: %v", report.TickID, err)
		return report, err
	}
	report.Scanned = len(records)

	due := make([]HalfMessageRecord, 0, len(records))
	for _, record := range records {
		if s.opts.MaxCheckTimes > 0 && record.CheckTimes >= s.opts.MaxCheckTimes {
			report.Exhausted++
			log.WarnContextf(ctx, "half message exceeds max check times, key: %s, check times: %d, commit log offset: %d",
				record.Key(), record.CheckTimes, record.CommitLogOffset)
			continue
		}
		if s.opts.MinAge > 0 && report.StartedAt.Sub(record.PreparedAt) < s.opts.MinAge {
			report.Skipped++
			continue
		}
		due = append(due, record)
	}

	errs := s.dispatch(ctx, due)
	for i, err := range errs {
		key := due[i].Key()
		if err != nil {
			reason := failureReason(err)
			log.WarnContextf(ctx, "check half message failed, tick id: %s, key: %s, reason: %s, err: %v", report.TickID, key, reason, err)
			report.Failures = append(report.Failures, CheckFailure{
				Key:    key,
				Reason: reason,
				Err:    err,
			})
			continue
		}
		report.Checked++
		s.table.MarkChecked(key, time.Now())
	}

	s.emit(ctx, &report)
	return report, nil
}

// 并发发起回查，返回值与入参一一对应
func (s *ReconciliationScheduler) dispatch(ctx context.Context, records []HalfMessageRecord) []error {
	errs := make([]error, len(records))

	var group errgroup.Group
	group.SetLimit(s.opts.CheckConcurrency)
	for i := range records {
		// shadow
		i := i
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			cctx, cancel := context.WithTimeout(ctx, s.opts.CheckTimeout)
			defer cancel()
			record := records[i]
			errs[i] = s.executor.GotoCheck(cctx, record.Group(), record.TranStateTableOffset, record.CommitLogOffset, record.MessageSize)
			return nil
		})
	}

	_ = group.Wait()
	return errs
}

func (s *ReconciliationScheduler) emit(ctx context.Context, report *TickReport) {
	report.Duration = time.Since(report.StartedAt)
	log.InfoContextw(ctx, "transaction check tick finished",
		"tick_id", report.TickID,
		"role", report.Role.String(),
		"scanned", report.Scanned,
		"checked", report.Checked,
		"skipped", report.Skipped,
		"exhausted", report.Exhausted,
		"failed", len(report.Failures),
		"duration", report.Duration,
	)
	if s.opts.TickObserver != nil {
		s.opts.TickObserver(*report)
	}
}

func failureReason(err error) FailureReason {
	switch {
	case errors.Is(err, ErrProducerUnavailable):
		return ReasonProducerUnavailable
	case errors.Is(err, ErrMessageNotFound):
		return ReasonMessageNotFound
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	default:
		return ReasonCheckFailed
	}
}
