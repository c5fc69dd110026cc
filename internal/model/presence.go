package model

import "time"

// PresenceStatus 用户在线状态
type PresenceStatus struct {
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"` // 转为离线时记录
}
