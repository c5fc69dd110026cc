package model

import "time"

// Message 消息实体
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	IsRead         bool      `json:"isRead"`
}

// MessageUpdate 消息部分更新字段
// 仅非 nil 字段会被合并到目标消息上
type MessageUpdate struct {
	Content *string
	IsRead  *bool
}
