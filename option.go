package gotxstate

import "time"

type Options struct {
	// 回查任务间隔时长
	CheckInterval time.Duration
	// 单次回查请求的超时时长
	CheckTimeout time.Duration
	// 半消息存活超过该时长才会被回查，为 0 时每轮全量回查
	MinAge time.Duration
	// 最大回查次数，为 0 时不限制
	MaxCheckTimes int
	// 单轮回查的并发度
	CheckConcurrency int
	// 事务状态表分片数
	ShardCount int
	// 回查任务锁
	TickLocker TickLocker
	// 每轮回查结束后的回调
	TickObserver TickObserver
	// 半消息日志
	Journal Journal
}

type Option func(*Options)

func WithCheckInterval(interval time.Duration) Option {
	if interval <= 0 {
		interval = 60 * time.Second
	}

	return func(o *Options) {
		o.CheckInterval = interval
	}
}

func WithCheckTimeout(timeout time.Duration) Option {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return func(o *Options) {
		o.CheckTimeout = timeout
	}
}

func WithMinAge(age time.Duration) Option {
	if age < 0 {
		age = 0
	}

	return func(o *Options) {
		o.MinAge = age
	}
}

func WithMaxCheckTimes(times int) Option {
	if times < 0 {
		times = 0
	}

	return func(o *Options) {
		o.MaxCheckTimes = times
	}
}

func WithCheckConcurrency(concurrency int) Option {
	if concurrency <= 0 {
		concurrency = 8
	}

	return func(o *Options) {
		o.CheckConcurrency = concurrency
	}
}

// 分片数会向上取整为 2 的幂
func WithShardCount(count int) Option {
	return func(o *Options) {
		o.ShardCount = count
	}
}

func WithTickLocker(locker TickLocker) Option {
	return func(o *Options) {
		o.TickLocker = locker
	}
}

func WithTickObserver(observer TickObserver) Option {
	return func(o *Options) {
		o.TickObserver = observer
	}
}

func WithJournal(journal Journal) Option {
	return func(o *Options) {
		o.Journal = journal
	}
}

func repair(o *Options) {
	if o.CheckInterval <= 0 {
		o.CheckInterval = 60 * time.Second
	}

	if o.CheckTimeout <= 0 {
		o.CheckTimeout = 3 * time.Second
	}

	if o.CheckConcurrency <= 0 {
		o.CheckConcurrency = 8
	}

	o.ShardCount = roundUpPowerOfTwo(o.ShardCount)
}

func roundUpPowerOfTwo(n int) int {
	if n <= 0 {
		return 16
	}
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}
