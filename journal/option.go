package journal

import "gorm.io/gorm"

type QueryOption func(db *gorm.DB) *gorm.DB

func WithProducerGroup(group string) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("producer_group = ?", group)
	}
}

func WithTranStateTableOffset(offset int64) QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tran_state_table_offset = ?", offset)
	}
}
