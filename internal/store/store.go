package store

import (
	"sort"
	"sync"

	"github.com/christophersteins/aurora-sub001/internal/model"
)

// Store 会话数据的唯一可信来源
// 持有去重排序后的会话列表、每个会话的消息列表和全局未读计数，
// 所有写操作同步完成且保持不变量（去重、排序、未读数）
type Store struct {
	conversations []model.Conversation
	messages      map[string][]model.Message
	totalUnread   int
	loading       bool
	lastError     string
	mu            sync.RWMutex
}

func New() *Store {
	return &Store{
		messages: make(map[string][]model.Message),
	}
}

// DedupeConversations 按对方用户ID去重
// 同一对方用户存在多条记录时，保留排序时间（最后消息时间，回退更新时间）较晚的一条
func DedupeConversations(list []model.Conversation) []model.Conversation {
	result := make([]model.Conversation, 0, len(list))
	index := make(map[string]int, len(list))

	for _, conv := range list {
		if i, ok := index[conv.OtherUserID]; ok {
			if conv.Recency().After(result[i].Recency()) {
				result[i] = conv
			}
			continue
		}
		index[conv.OtherUserID] = len(result)
		result = append(result, conv)
	}

	return result
}

// SortConversations 排序：置顶会话在前，组内按排序时间倒序
func SortConversations(list []model.Conversation) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].IsPinned != list[j].IsPinned {
			return list[i].IsPinned
		}
		return list[i].Recency().After(list[j].Recency())
	})
}

// SetConversations 整体替换会话列表（先去重再排序，空列表合法）
func (s *Store) SetConversations(list []model.Conversation) {
	normalized := DedupeConversations(list)
	SortConversations(normalized)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = normalized
	s.recomputeTotalUnread()
}

// AddConversation 添加会话
// 同一对方用户已有会话时原地替换（更新语义，旧记录更新时间更晚则保留旧记录），
// 否则插入到列表头部；之后重新去重排序
func (s *Store) AddConversation(conv model.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.conversations {
		if s.conversations[i].OtherUserID == conv.OtherUserID {
			// 迟到的陈旧数据不能覆盖更新的记录
			if !conv.Recency().Before(s.conversations[i].Recency()) {
				s.conversations[i] = conv
			}
			replaced = true
			break
		}
	}
	if !replaced {
		s.conversations = append([]model.Conversation{conv}, s.conversations...)
	}

	s.conversations = DedupeConversations(s.conversations)
	SortConversations(s.conversations)
	s.recomputeTotalUnread()
}

// SetMessages 整体替换某个会话的消息列表（初次拉取后使用）
func (s *Store) SetMessages(conversationID string, list []model.Message) {
	msgs := make([]model.Message, len(list))
	copy(msgs, list)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[conversationID] = msgs
}

// AddMessage 向会话追加一条消息并更新父会话的预览字段
// 同一消息ID重复投递（推送通道与 REST 刷新各到一次）时原地替换而不是二次插入；
// 对方发来的未读新消息会使该会话未读数加一
func (s *Store) AddMessage(conversationID string, msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	isNew := true
	msgs := s.messages[conversationID]
	if msg.ID != "" {
		for i := range msgs {
			if msgs[i].ID == msg.ID {
				msgs[i] = msg
				isNew = false
				break
			}
		}
	}
	if isNew {
		msgs = append(msgs, msg)
	}
	s.messages[conversationID] = msgs

	for i := range s.conversations {
		if s.conversations[i].ID != conversationID {
			continue
		}
		s.conversations[i].LastMessage = msg.Content
		s.conversations[i].LastMessageTime = msg.CreatedAt
		s.conversations[i].UpdatedAt = msg.CreatedAt
		if isNew && !msg.IsRead && msg.SenderID == s.conversations[i].OtherUserID {
			s.conversations[i].UnreadCount++
		}
		break
	}

	SortConversations(s.conversations)
	s.recomputeTotalUnread()
}

// UpdateMessage 合并消息的部分字段（如标记已读），目标不存在时静默忽略
func (s *Store) UpdateMessage(conversationID, messageID string, update model.MessageUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID != messageID {
			continue
		}
		if update.Content != nil {
			msgs[i].Content = *update.Content
		}
		if update.IsRead != nil {
			msgs[i].IsRead = *update.IsRead
		}
		break
	}
}

// MarkConversationAsRead 将会话未读数清零并把缓存消息全部标记已读（幂等）
func (s *Store) MarkConversationAsRead(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.conversations {
		if s.conversations[i].ID == conversationID {
			s.conversations[i].UnreadCount = 0
			break
		}
	}

	msgs := s.messages[conversationID]
	for i := range msgs {
		msgs[i].IsRead = true
	}

	s.recomputeTotalUnread()
}

// UpdateTotalUnreadCount 重新计算全局未读计数
func (s *Store) UpdateTotalUnreadCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recomputeTotalUnread()
}

// ReconcileTotalUnreadCount 用服务端计算的总数覆盖本地计数（加载时对账）
func (s *Store) ReconcileTotalUnreadCount(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalUnread = count
}

// recomputeTotalUnread 统计有未读消息的对方用户数（不是未读消息条数之和）
// 调用方必须持有写锁
func (s *Store) recomputeTotalUnread() {
	seen := make(map[string]struct{})
	for i := range s.conversations {
		if s.conversations[i].UnreadCount > 0 {
			seen[s.conversations[i].OtherUserID] = struct{}{}
		}
	}
	s.totalUnread = len(seen)
}

// Clear 清空全部状态（登出时使用）
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conversations = nil
	s.messages = make(map[string][]model.Message)
	s.totalUnread = 0
	s.loading = false
	s.lastError = ""
}

// ============== 读访问器 ==============

// Conversations 返回会话列表快照
func (s *Store) Conversations() []model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Conversation, len(s.conversations))
	copy(result, s.conversations)
	return result
}

// Messages 返回某个会话的消息列表快照
func (s *Store) Messages(conversationID string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	result := make([]model.Message, len(msgs))
	copy(result, msgs)
	return result
}

// TotalUnreadCount 返回全局未读计数
func (s *Store) TotalUnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalUnread
}

// IsLoading 返回加载标记
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// SetLoading 设置加载标记
func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}

// LastError 返回最近一次上游调用失败的用户可见描述，空串表示无错误
func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// SetError 记录上游调用失败；传空串清除
func (s *Store) SetError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = message
}
