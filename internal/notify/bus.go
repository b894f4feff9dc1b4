// Package notify 提供“曲目已缓存”事件的发布/订阅总线。Publish 从不阻塞，
// 订阅者缓冲区满时事件被丢弃并计数，请求路径不会被慢消费者拖住。
package notify

import (
	"sync"

	"github.com/google/uuid"
)

// EventTrackCached 是曲目写入缓存后广播的事件类型。
const EventTrackCached = "trackCached"

// Event 是广播给所有订阅者的通知。
type Event struct {
	Type    string `json:"type"`
	TrackID int    `json:"trackId"`
	URL     string `json:"url"`
}

// DropCounter 用于统计被丢弃的事件；metrics 包实现该接口。
type DropCounter interface {
	NotificationDropped()
}

// Bus 是进程内的 fan-out 总线。
type Bus struct {
	buffer int
	drops  DropCounter

	mu   sync.RWMutex
	subs map[string]*Subscription
}

// Subscription 表示一个订阅者；调用 Close 后通道被关闭。
type Subscription struct {
	ID string

	bus    *Bus
	ch     chan Event
	closed bool
}

// NewBus 创建总线，buffer 为每个订阅者的缓冲长度。
func NewBus(buffer int, drops DropCounter) *Bus {
	if buffer <= 0 {
		buffer = 16
	}
	return &Bus{
		buffer: buffer,
		drops:  drops,
		subs:   make(map[string]*Subscription),
	}
}

// Subscribe 注册新的订阅者。
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		ID:  uuid.NewString(),
		bus: b,
		ch:  make(chan Event, b.buffer),
	}
	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()
	return sub
}

// Publish 非阻塞地把事件投递给所有订阅者，返回成功投递的数量。
func (b *Bus) Publish(evt Event) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.subs {
		select {
		case sub.ch <- evt:
			delivered++
		default:
			if b.drops != nil {
				b.drops.NotificationDropped()
			}
		}
	}
	return delivered
}

// Len 返回当前订阅者数量。
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Events 返回只读事件通道。
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close 注销订阅者并关闭通道，可重复调用。
func (s *Subscription) Close() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(b.subs, s.ID)
	close(s.ch)
}
