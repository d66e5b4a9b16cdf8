package checkback

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cast"

	"github.com/xiaoxuxiansheng/gotxstate"
)

// 请求码，与生产者约定
const CheckTransactionStateRequestCode int32 = 39

// 单向请求，生产者不回包，决议结果通过 commit / rollback 请求返回
const FlagOneway int32 = 1 << 1

const (
	extProducerGroup        = "producerGroup"
	extTranStateTableOffset = "tranStateTableOffset"
	extCommitLogOffset      = "commitLogOffset"
	extMessageSize          = "msgSize"
)

// 单帧最大长度
const maxFrameSize = 16 << 20

type Header struct {
	Code      int32             `json:"code"`
	Opaque    int32             `json:"opaque"`
	Flag      int32             `json:"flag"`
	ExtFields map[string]string `json:"extFields"`
}

// 帧格式：totalLength(4) | headerLength(4) | header(json) | body
// totalLength 不包含自身的 4 个字节
func EncodeCheckRequest(opaque int32, req *gotxstate.CheckRequest) ([]byte, error) {
	header, err := json.Marshal(&Header{
		Code:   CheckTransactionStateRequestCode,
		Opaque: opaque,
		Flag:   FlagOneway,
		ExtFields: map[string]string{
			extProducerGroup:        req.ProducerGroup,
			extTranStateTableOffset: cast.ToString(req.TranStateTableOffset),
			extCommitLogOffset:      cast.ToString(req.CommitLogOffset),
			extMessageSize:          cast.ToString(req.MessageSize),
		},
	})
	if err != nil {
		return nil, err
	}

	totalLength := 4 + len(header) + len(req.Message)
	if totalLength > maxFrameSize {
		return nil, fmt.Errorf("frame too large: %d", totalLength)
	}

	buf := bytes.NewBuffer(make([]byte, 0, 4+totalLength))
	_ = binary.Write(buf, binary.BigEndian, int32(totalLength))
	_ = binary.Write(buf, binary.BigEndian, int32(len(header)))
	buf.Write(header)
	buf.Write(req.Message)
	return buf.Bytes(), nil
}

// 生产者侧解析回查请求
func DecodeCheckRequest(r io.Reader) (*gotxstate.CheckRequest, *Header, error) {
	var totalLength, headerLength int32
	if err := binary.Read(r, binary.BigEndian, &totalLength); err != nil {
		return nil, nil, err
	}
	if totalLength < 4 || totalLength > maxFrameSize {
		return nil, nil, fmt.Errorf("invalid frame length: %d", totalLength)
	}
	if err := binary.Read(r, binary.BigEndian, &headerLength); err != nil {
		return nil, nil, err
	}
	if headerLength < 0 || headerLength > totalLength-4 {
		return nil, nil, fmt.Errorf("invalid header length: %d, frame length: %d", headerLength, totalLength)
	}

	headerBody := make([]byte, headerLength)
	if _, err := io.ReadFull(r, headerBody); err != nil {
		return nil, nil, err
	}
	var header Header
	if err := json.Unmarshal(headerBody, &header); err != nil {
		return nil, nil, err
	}
	if header.Code != CheckTransactionStateRequestCode {
		return nil, nil, fmt.Errorf("unexpected request code: %d", header.Code)
	}

	message := make([]byte, totalLength-4-headerLength)
	if _, err := io.ReadFull(r, message); err != nil {
		return nil, nil, err
	}

	req := gotxstate.CheckRequest{
		ProducerGroup: header.ExtFields[extProducerGroup],
		Message:       message,
	}
	var err error
	if req.TranStateTableOffset, err = cast.ToInt64E(header.ExtFields[extTranStateTableOffset]); err != nil {
		return nil, nil, err
	}
	if req.CommitLogOffset, err = cast.ToInt64E(header.ExtFields[extCommitLogOffset]); err != nil {
		return nil, nil, err
	}
	if req.MessageSize, err = cast.ToInt32E(header.ExtFields[extMessageSize]); err != nil {
		return nil, nil, err
	}
	if req.ProducerGroup == "" {
		return nil, nil, errors.New("empty producer group")
	}
	return &req, &header, nil
}
