package model

import "time"

// Conversation 会话信息（两人会话，服务端分配 ID）
type Conversation struct {
	ID                      string    `json:"id"`
	OtherUserID             string    `json:"otherUserId"`             // 对方用户ID
	OtherUserName           string    `json:"otherUserName"`           // 对方昵称
	OtherUserProfilePicture string    `json:"otherUserProfilePicture"` // 对方头像
	OtherUserRole           string    `json:"otherUserRole"`           // 对方角色
	LastMessage             string    `json:"lastMessage"`             // 最后一条消息预览
	LastMessageTime         time.Time `json:"lastMessageTime"`         // 最后一条消息时间
	UnreadCount             int       `json:"unreadCount"`             // 未读数
	IsPinned                bool      `json:"isPinned"`                // 是否置顶
	UpdatedAt               time.Time `json:"updatedAt"`               // 服务端更新时间
}

// Recency 返回会话的排序时间：优先取最后消息时间，缺省时回退到更新时间
func (c *Conversation) Recency() time.Time {
	if !c.LastMessageTime.IsZero() {
		return c.LastMessageTime
	}
	return c.UpdatedAt
}
