package presence

import (
	"container/list"
	"sync"
	"time"

	"github.com/christophersteins/aurora-sub001/internal/model"
)

// DefaultCapacity 默认容量：可见会话列表加余量
const DefaultCapacity = 512

type entry struct {
	userID string
	status model.PresenceStatus
}

// Tracker 进程内在线状态缓存
// 条目不持久化，按最近写入时间做 LRU 淘汰，容量有上限，
// 长会话里大量陌生对端不会把缓存撑爆
type Tracker struct {
	capacity int
	entries  map[string]*list.Element
	order    *list.List // 头部为最近写入
	mu       sync.RWMutex
}

// NewTracker 创建在线状态缓存，capacity <= 0 时使用默认容量
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// SetOnline 标记用户在线并记录时间
func (t *Tracker) SetOnline(userID string) {
	t.set(userID, model.PresenceStatus{IsOnline: true, LastSeen: time.Now()})
}

// SetOffline 标记用户离线
// lastSeen 由服务端下发，不一定是当前时间
func (t *Tracker) SetOffline(userID string, lastSeen time.Time) {
	t.set(userID, model.PresenceStatus{IsOnline: false, LastSeen: lastSeen})
}

// Status 返回用户在线状态，未知用户返回零值（离线、无最后在线时间）
func (t *Tracker) Status(userID string) model.PresenceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if elem, ok := t.entries[userID]; ok {
		return elem.Value.(*entry).status
	}
	return model.PresenceStatus{}
}

// Len 返回当前缓存条目数
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Clear 清空全部条目（登出时使用）
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]*list.Element)
	t.order.Init()
}

func (t *Tracker) set(userID string, status model.PresenceStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, ok := t.entries[userID]; ok {
		elem.Value.(*entry).status = status
		t.order.MoveToFront(elem)
		return
	}

	t.entries[userID] = t.order.PushFront(&entry{userID: userID, status: status})

	// 超出容量时淘汰最久未更新的条目
	for len(t.entries) > t.capacity {
		oldest := t.order.Back()
		if oldest == nil {
			break
		}
		t.order.Remove(oldest)
		delete(t.entries, oldest.Value.(*entry).userID)
	}
}
