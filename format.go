package gotxstate

import (
	"encoding/binary"
	"fmt"
)

// 存储消息的头部布局：
//
//	0  totalSize  int32
//	4  magicCode  int32
//	8  bodyCRC    int32
//	12 queueID    int32
//	16 flag       int32
//	20 tranState  int32
//
// 事务状态字段的位置在消息格式设计时确定，修改时需要同步升级 MessageMagicCode。
const (
	MessageMagicCode     uint32 = 0xAABBCCDD
	MagicCodeOffset             = 4
	TranStateFieldOffset        = 20
	TranStateFieldWidth         = 4
	MinMessageSize              = TranStateFieldOffset + TranStateFieldWidth
)

// 校验消息格式是否与事务状态字段的位置相匹配
func ValidateMessageFormat(buf []byte) error {
	if len(buf) < MinMessageSize {
		return fmt.Errorf("%w: message size %d less than %d", ErrFormatMismatch, len(buf), MinMessageSize)
	}
	if magic := binary.BigEndian.Uint32(buf[MagicCodeOffset:]); magic != MessageMagicCode {
		return fmt.Errorf("%w: magic code %#x", ErrFormatMismatch, magic)
	}
	return nil
}

// 原地改写消息中的事务状态字段
func PatchTranStateField(buf []byte, offset int, state TransactionState) error {
	if offset != TranStateFieldOffset {
		return fmt.Errorf("%w: state field offset %d, expect %d", ErrFormatMismatch, offset, TranStateFieldOffset)
	}
	if err := ValidateMessageFormat(buf); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(buf[offset:offset+TranStateFieldWidth], uint32(state))
	return nil
}

// 读取消息中的事务状态字段
func ReadTranStateField(buf []byte) (TransactionState, error) {
	if err := ValidateMessageFormat(buf); err != nil {
		return 0, err
	}
	return TransactionState(binary.BigEndian.Uint32(buf[TranStateFieldOffset:])), nil
}
