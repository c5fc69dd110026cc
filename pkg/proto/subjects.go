package proto

// NATS Subject 常量定义
const (
	// SubjectClientUpstream Client -> Server 上行事件
	SubjectClientUpstream = "chat.client.upstream"

	// SubjectUserEventsPrefix Server -> Client 下行事件前缀
	// 完整格式: chat.user.{user_id}.events
	SubjectUserEventsPrefix = "chat.user."
	SubjectUserEventsSuffix = ".events"
)

// BuildUserEventsSubject 构建用户下行事件 Subject
func BuildUserEventsSubject(userID string) string {
	return SubjectUserEventsPrefix + userID + SubjectUserEventsSuffix
}
