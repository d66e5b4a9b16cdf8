package gotxstate

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// 按生产者组管理连接，回查时随机挑选一条
type ProducerManager struct {
	mux      sync.RWMutex
	channels map[string]map[string]Channel
}

func NewProducerManager() *ProducerManager {
	return &ProducerManager{
		channels: make(map[string]map[string]Channel),
	}
}

func (p *ProducerManager) Register(producerGroup string, channel Channel) error {
	if producerGroup == "" || channel == nil {
		return errors.New("empty producer group or channel")
	}

	p.mux.Lock()
	defer p.mux.Unlock()
	group, ok := p.channels[producerGroup]
	if !ok {
		group = make(map[string]Channel)
		p.channels[producerGroup] = group
	}
	group[channel.ID()] = channel
	return nil
}

// 连接断开时调用
func (p *ProducerManager) UnregisterChannel(producerGroup string, channelID string) {
	p.mux.Lock()
	defer p.mux.Unlock()
	group, ok := p.channels[producerGroup]
	if !ok {
		return
	}
	delete(group, channelID)
	if len(group) == 0 {
		delete(p.channels, producerGroup)
	}
}

func (p *ProducerManager) Unregister(producerGroup string) {
	p.mux.Lock()
	defer p.mux.Unlock()
	delete(p.channels, producerGroup)
}

func (p *ProducerManager) PickChannel(producerGroup string) (Channel, error) {
	p.mux.RLock()
	defer p.mux.RUnlock()

	group := p.channels[producerGroup]
	if len(group) == 0 {
		return nil, fmt.Errorf("%w: group: %s", ErrProducerUnavailable, producerGroup)
	}

	idx := rand.Intn(len(group))
	for _, channel := range group {
		if idx == 0 {
			return channel, nil
		}
		idx--
	}
	return nil, fmt.Errorf("%w: group: %s", ErrProducerUnavailable, producerGroup)
}

func (p *ProducerManager) Groups() []string {
	p.mux.RLock()
	defer p.mux.RUnlock()
	groups := make([]string, 0, len(p.channels))
	for group := range p.channels {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	return groups
}
