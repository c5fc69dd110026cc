package proto

// ============== 下行事件 (Server -> Client) ==============

// PushEvent 下行推送事件封装
// 每次推送只会设置其中一个字段（tagged union）
type PushEvent struct {
	NewMessage  *NewMessage  `json:"NewMessage,omitempty"`
	MessageAck  *MessageAck  `json:"MessageAck,omitempty"`
	Typing      *Typing      `json:"Typing,omitempty"`
	ReadReceipt *ReadReceipt `json:"ReadReceipt,omitempty"`
	Presence    *Presence    `json:"Presence,omitempty"`
	ErrorEvent  *ErrorEvent  `json:"ErrorEvent,omitempty"`
}

// NewMessage 新消息推送
type NewMessage struct {
	MessageId      string `json:"MessageId"`
	ConversationId string `json:"ConversationId"`
	SenderId       string `json:"SenderId"`
	ReceiverId     string `json:"ReceiverId"`
	Content        string `json:"Content"`
	Timestamp      int64  `json:"Timestamp"` // 毫秒时间戳
}

// MessageAck 发送确认（自己发出的消息回显）
type MessageAck struct {
	ClientMsgId    string `json:"ClientMsgId"`
	MessageId      string `json:"MessageId"`
	ConversationId string `json:"ConversationId"`
	Timestamp      int64  `json:"Timestamp"`
}

// Typing 正在输入事件
type Typing struct {
	ConversationId string `json:"ConversationId"`
	UserId         string `json:"UserId"`
}

// ReadReceipt 已读回执
type ReadReceipt struct {
	ConversationId string `json:"ConversationId"`
	UserId         string `json:"UserId"`
	ReadAt         int64  `json:"ReadAt"`
}

// Presence 在线状态变更事件
type Presence struct {
	UserId   string `json:"UserId"`
	Online   bool   `json:"Online"`
	LastSeen int64  `json:"LastSeen"` // 毫秒时间戳，下线时有效
}

// ErrorEvent 服务端错误事件
type ErrorEvent struct {
	Code    int    `json:"Code"`
	Message string `json:"Message"`
}

// ============== 上行事件 (Client -> Server) ==============

// ClientEvent 上行事件封装
type ClientEvent struct {
	SendMessage *SendMessage `json:"SendMessage,omitempty"`
	Typing      *Typing      `json:"Typing,omitempty"`
}

// SendMessage 发送消息请求
type SendMessage struct {
	ClientMsgId    string `json:"ClientMsgId"`
	ConversationId string `json:"ConversationId"`
	SenderId       string `json:"SenderId"`
	ReceiverId     string `json:"ReceiverId"`
	Content        string `json:"Content"`
	Timestamp      int64  `json:"Timestamp"`
}
