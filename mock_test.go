package gotxstate

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

func buildMessage(size int) []byte {
	if size < MinMessageSize {
		size = MinMessageSize
	}
	buf := make([]byte, size)
	binary.BigEndian.PutUint32(buf[0:], uint32(size))
	binary.BigEndian.PutUint32(buf[MagicCodeOffset:], MessageMagicCode)
	binary.BigEndian.PutUint32(buf[TranStateFieldOffset:], uint32(StatePrepared))
	return buf
}

type mockHandle struct {
	buf []byte
}

func (m *mockHandle) Bytes() []byte {
	return m.buf
}

func (m *mockHandle) Release() {}

type mockMessageStore struct {
	mutex    sync.Mutex
	messages map[int64][]byte
	patchErr error
	// 改写状态时的钩子，用于观察并发行为
	onPatch func()
}

func newMockMessageStore() *mockMessageStore {
	return &mockMessageStore{
		messages: make(map[int64][]byte),
	}
}

func (m *mockMessageStore) put(commitLogOffset int64, size int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.messages[commitLogOffset] = buildMessage(size)
}

func (m *mockMessageStore) state(commitLogOffset int64) TransactionState {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	state, _ := ReadTranStateField(m.messages[commitLogOffset])
	return state
}

func (m *mockMessageStore) LocateMessage(commitLogOffset int64, messageSize int32) (MessageHandle, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	buf, ok := m.messages[commitLogOffset]
	if !ok {
		return nil, fmt.Errorf("%w: offset %d", ErrMessageNotFound, commitLogOffset)
	}
	return &mockHandle{buf: buf}, nil
}

func (m *mockMessageStore) PatchState(handle MessageHandle, offsetWithinMessage int, state TransactionState) error {
	if m.onPatch != nil {
		m.onPatch()
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.patchErr != nil {
		return m.patchErr
	}
	return PatchTranStateField(handle.Bytes(), offsetWithinMessage, state)
}

type mockChannel struct {
	id string
}

func newMockChannel() *mockChannel {
	return &mockChannel{id: uuid.NewString()}
}

func (m *mockChannel) ID() string {
	return m.id
}

func (m *mockChannel) RemoteAddr() string {
	return "127.0.0.1:0"
}

func (m *mockChannel) Send(ctx context.Context, frame []byte) error {
	return nil
}

type mockChecker struct {
	mutex sync.Mutex
	reqs  []CheckRequest
	err   error
}

func (m *mockChecker) Check(ctx context.Context, channel Channel, req *CheckRequest) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.reqs = append(m.reqs, *req)
	return m.err
}

func (m *mockChecker) requests() []CheckRequest {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	reqs := make([]CheckRequest, len(m.reqs))
	copy(reqs, m.reqs)
	return reqs
}

type mockExecutor struct {
	mutex  sync.Mutex
	calls  []RecordKey
	before func(key RecordKey)
	errs   map[RecordKey]error
}

func (m *mockExecutor) GotoCheck(ctx context.Context, producerGroup string, tranStateTableOffset, commitLogOffset int64, messageSize int32) error {
	key := RecordKey{ProducerGroup: producerGroup, TranStateTableOffset: tranStateTableOffset}
	if m.before != nil {
		m.before(key)
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.calls = append(m.calls, key)
	return m.errs[key]
}

func (m *mockExecutor) callCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.calls)
}

type mockJournal struct {
	mutex   sync.Mutex
	records map[RecordKey]*HalfMessageRecord
	saveErr error
}

func newMockJournal() *mockJournal {
	return &mockJournal{
		records: make(map[RecordKey]*HalfMessageRecord),
	}
}

func (m *mockJournal) Save(ctx context.Context, record *HalfMessageRecord) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records[record.Key()] = record.clone()
	return nil
}

func (m *mockJournal) Delete(ctx context.Context, key RecordKey) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.records[key]; !ok {
		return errors.New("record not found")
	}
	delete(m.records, key)
	return nil
}

func (m *mockJournal) Load(ctx context.Context) ([]*HalfMessageRecord, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	records := make([]*HalfMessageRecord, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, record.clone())
	}
	return records, nil
}

func (m *mockJournal) len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.records)
}

type mockLocker struct {
	mutex   sync.Mutex
	lockErr error
	locks   int
	unlocks int
}

func (m *mockLocker) Lock(ctx context.Context, expireDuration time.Duration) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.lockErr != nil {
		return m.lockErr
	}
	m.locks++
	return nil
}

func (m *mockLocker) Unlock(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.unlocks++
	return nil
}

func (m *mockLocker) counts() (int, int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.locks, m.unlocks
}

func newRecord(group string, tsOffset, clOffset int64, size int32) *HalfMessageRecord {
	return &HalfMessageRecord{
		ProducerGroup:        group,
		TranStateTableOffset: tsOffset,
		CommitLogOffset:      clOffset,
		MessageSize:          size,
		Properties: map[string]string{
			PropertyProducerGroup: group,
		},
	}
}
