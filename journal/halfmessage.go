package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/demdxx/gocast"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xiaoxuxiansheng/gotxstate"
)

type HalfMessagePO struct {
	gorm.Model
	ProducerGroup        string    `gorm:"column:producer_group;size:255;uniqueIndex:uk_group_offset"`
	TranStateTableOffset int64     `gorm:"column:tran_state_table_offset;uniqueIndex:uk_group_offset"`
	CommitLogOffset      int64     `gorm:"column:commit_log_offset"`
	MessageSize          int32     `gorm:"column:message_size"`
	PreparedAt           time.Time `gorm:"column:prepared_at"`
	Properties           string    `gorm:"column:properties"`
}

func (h HalfMessagePO) TableName() string {
	return "half_message"
}

type HalfMessageDAO struct {
	db *gorm.DB
}

func NewHalfMessageDAO(db *gorm.DB) *HalfMessageDAO {
	return &HalfMessageDAO{
		db: db,
	}
}

func (h *HalfMessageDAO) GetHalfMessages(ctx context.Context, opts ...QueryOption) ([]*HalfMessagePO, error) {
	db := h.db.WithContext(ctx).Model(&HalfMessagePO{})
	for _, opt := range opts {
		db = opt(db)
	}

	var records []*HalfMessagePO
	return records, db.Order("id").Find(&records).Error
}

// 同一个 key 重复写入时覆盖旧记录
func (h *HalfMessageDAO) SaveHalfMessage(ctx context.Context, record *HalfMessagePO) error {
	return h.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "producer_group"}, {Name: "tran_state_table_offset"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"updated_at", "commit_log_offset", "message_size", "prepared_at", "properties",
		}),
	}).Create(record).Error
}

// 物理删除，记录不存在时不报错
func (h *HalfMessageDAO) DeleteHalfMessage(ctx context.Context, group string, offset int64) error {
	return h.db.WithContext(ctx).Unscoped().
		Where("producer_group = ? AND tran_state_table_offset = ?", group, offset).
		Delete(&HalfMessagePO{}).Error
}

// 基于 mysql 的半消息日志，进程重启后用于恢复事务状态表
type Journal struct {
	dao *HalfMessageDAO
}

func NewJournal(db *gorm.DB) *Journal {
	return &Journal{
		dao: NewHalfMessageDAO(db),
	}
}

func (j *Journal) Save(ctx context.Context, record *gotxstate.HalfMessageRecord) error {
	po, err := toPO(record)
	if err != nil {
		return err
	}
	return j.dao.SaveHalfMessage(ctx, po)
}

func (j *Journal) Delete(ctx context.Context, key gotxstate.RecordKey) error {
	return j.dao.DeleteHalfMessage(ctx, key.ProducerGroup, key.TranStateTableOffset)
}

func (j *Journal) Load(ctx context.Context) ([]*gotxstate.HalfMessageRecord, error) {
	pos, err := j.dao.GetHalfMessages(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]*gotxstate.HalfMessageRecord, 0, len(pos))
	for _, po := range pos {
		record, err := toRecord(po)
		if err != nil {
			return nil, fmt.Errorf("decode half message %s@%d failed, err: %w", po.ProducerGroup, po.TranStateTableOffset, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func toPO(record *gotxstate.HalfMessageRecord) (*HalfMessagePO, error) {
	properties := "{}"
	if len(record.Properties) > 0 {
		body, err := json.Marshal(record.Properties)
		if err != nil {
			return nil, err
		}
		properties = string(body)
	}

	preparedAt := record.PreparedAt
	if preparedAt.IsZero() {
		preparedAt = time.Now()
	}
	return &HalfMessagePO{
		ProducerGroup:        record.Group(),
		TranStateTableOffset: record.TranStateTableOffset,
		CommitLogOffset:      record.CommitLogOffset,
		MessageSize:          record.MessageSize,
		PreparedAt:           preparedAt,
		Properties:           properties,
	}, nil
}

func toRecord(po *HalfMessagePO) (*gotxstate.HalfMessageRecord, error) {
	// 兼容其他写入方写入的非字符串属性值
	var raw map[string]any
	if po.Properties != "" {
		if err := json.Unmarshal([]byte(po.Properties), &raw); err != nil {
			return nil, err
		}
	}

	var properties map[string]string
	if len(raw) > 0 {
		properties = make(map[string]string, len(raw))
		for k, v := range raw {
			properties[k] = gocast.ToString(v)
		}
	}

	return &gotxstate.HalfMessageRecord{
		ProducerGroup:        po.ProducerGroup,
		TranStateTableOffset: po.TranStateTableOffset,
		CommitLogOffset:      po.CommitLogOffset,
		MessageSize:          po.MessageSize,
		PreparedAt:           po.PreparedAt,
		Properties:           properties,
	}, nil
}
