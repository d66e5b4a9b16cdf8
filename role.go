package gotxstate

import (
	"context"
	"sync/atomic"
)

// broker 角色
type BrokerRole int32

const (
	// 负责写入的主节点
	RoleMaster BrokerRole = iota
	// 只读副本
	RoleSlave
)

func (b BrokerRole) String() string {
	switch b {
	case RoleMaster:
		return "master"
	case RoleSlave:
		return "slave"
	default:
		return "unknown"
	}
}

// 只有写入节点才有资格发起事务回查
func (b BrokerRole) IsWriteOwner() bool {
	return b == RoleMaster
}

// 获取当前 broker 角色
type RoleSource interface {
	CurrentRole(ctx context.Context) (BrokerRole, error)
}

// 固定角色
type StaticRole BrokerRole

func (s StaticRole) CurrentRole(ctx context.Context) (BrokerRole, error) {
	return BrokerRole(s), nil
}

// 运行期可切换的角色，主从切换时由外部更新
type SwitchableRole struct {
	role atomic.Int32
}

func NewSwitchableRole(role BrokerRole) *SwitchableRole {
	s := SwitchableRole{}
	s.role.Store(int32(role))
	return &s
}

func (s *SwitchableRole) Set(role BrokerRole) {
	s.role.Store(int32(role))
}

func (s *SwitchableRole) CurrentRole(ctx context.Context) (BrokerRole, error) {
	return BrokerRole(s.role.Load()), nil
}
