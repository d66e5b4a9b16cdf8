package journal

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func NewDB(dsn string, opts ...gorm.Option) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), opts...)
}

// 建表，包含 (producer_group, tran_state_table_offset) 唯一索引
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&HalfMessagePO{})
}
