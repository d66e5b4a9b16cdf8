package checkback

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/xiaoxuxiansheng/gotxstate"
)

// 生产者连接，写操作串行执行
type Conn struct {
	id           string
	conn         net.Conn
	writeTimeout time.Duration
	mux          sync.Mutex
}

func NewConn(conn net.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = 3 * time.Second
	}
	return &Conn{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Conn) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mux.Lock()
	defer c.mux.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	for written := 0; written < len(frame); {
		n, err := c.conn.Write(frame[written:])
		if err != nil {
			return err
		}
		written += n
	}
	return nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// 通过生产者连接发送单向回查请求
type Checker struct {
	opaque atomic.Int32
}

func NewChecker() *Checker {
	return &Checker{}
}

func (c *Checker) Check(ctx context.Context, channel gotxstate.Channel, req *gotxstate.CheckRequest) error {
	frame, err := EncodeCheckRequest(c.opaque.Add(1), req)
	if err != nil {
		return fmt.Errorf("encode check request failed, group: %s, tran state table offset: %d, err: %w",
			req.ProducerGroup, req.TranStateTableOffset, err)
	}
	if err = channel.Send(ctx, frame); err != nil {
		return fmt.Errorf("send check request to %s failed, err: %w", channel.RemoteAddr(), err)
	}
	return nil
}
