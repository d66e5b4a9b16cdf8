package checkback

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaoxuxiansheng/gotxstate"
)

func Test_frame_encode_decode(t *testing.T) {
	req := gotxstate.CheckRequest{
		ProducerGroup:        "G1",
		TranStateTableOffset: 100,
		CommitLogOffset:      5000,
		MessageSize:          4,
		Message:              []byte{1, 2, 3, 4},
	}
	frame, err := EncodeCheckRequest(7, &req)
	require.NoError(t, err)
	assert.Equal(t, int32(len(frame)-4), int32(binary.BigEndian.Uint32(frame)))

	got, header, err := DecodeCheckRequest(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, req, *got)
	assert.Equal(t, int32(7), header.Opaque)
	assert.Equal(t, CheckTransactionStateRequestCode, header.Code)
	assert.Equal(t, FlagOneway, header.Flag)
	assert.Equal(t, "5000", header.ExtFields["commitLogOffset"])
}

func Test_frame_decode_invalid(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{
			name:  "empty",
			frame: nil,
		},
		{
			name:  "negative length",
			frame: []byte{0xff, 0xff, 0xff, 0xff},
		},
		{
			name:  "header longer than frame",
			frame: []byte{0, 0, 0, 8, 0, 0, 0, 9, '{', '}', 0, 0},
		},
		{
			name: "wrong code",
			frame: func() []byte {
				header := []byte(`{"code":10}`)
				buf := new(bytes.Buffer)
				_ = binary.Write(buf, binary.BigEndian, int32(4+len(header)))
				_ = binary.Write(buf, binary.BigEndian, int32(len(header)))
				buf.Write(header)
				return buf.Bytes()
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeCheckRequest(bytes.NewReader(tt.frame))
			assert.NotNil(t, err)
		})
	}
}

func Test_checker_over_conn(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	conn := NewConn(server, time.Second)
	checker := NewChecker()

	received := make(chan *gotxstate.CheckRequest, 2)
	go func() {
		for i := 0; i < 2; i++ {
			req, _, err := DecodeCheckRequest(client)
			if err != nil {
				return
			}
			received <- req
		}
	}()

	ctx := context.Background()
	for i := int64(1); i <= 2; i++ {
		err := checker.Check(ctx, conn, &gotxstate.CheckRequest{
			ProducerGroup:        "G1",
			TranStateTableOffset: i,
			CommitLogOffset:      i * 1000,
			MessageSize:          3,
			Message:              []byte("msg"),
		})
		require.NoError(t, err)
	}

	for i := int64(1); i <= 2; i++ {
		select {
		case req := <-received:
			assert.Equal(t, i, req.TranStateTableOffset)
			assert.Equal(t, i*1000, req.CommitLogOffset)
			assert.Equal(t, []byte("msg"), req.Message)
		case <-time.After(time.Second):
			t.Fatal("check request not received")
		}
	}
}

func Test_checker_send_timeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	conn := NewConn(server, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// 对端不读取，写入超时返回
	start := time.Now()
	err := NewChecker().Check(ctx, conn, &gotxstate.CheckRequest{ProducerGroup: "G1"})
	assert.NotNil(t, err)
	assert.True(t, time.Since(start) < time.Second)

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	err = NewChecker().Check(cancelled, conn, &gotxstate.CheckRequest{ProducerGroup: "G1"})
	assert.NotNil(t, err)
}

func Test_conn_as_channel(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	registry := gotxstate.NewProducerManager()
	conn := NewConn(server, 0)
	require.NoError(t, registry.Register("G1", conn))

	channel, err := registry.PickChannel("G1")
	require.NoError(t, err)
	assert.Equal(t, conn.ID(), channel.ID())
	assert.Equal(t, "pipe", channel.RemoteAddr())
}
