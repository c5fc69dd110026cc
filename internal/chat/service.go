package chat

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/christophersteins/aurora-sub001/internal/api"
	"github.com/christophersteins/aurora-sub001/internal/model"
	"github.com/christophersteins/aurora-sub001/internal/presence"
	"github.com/christophersteins/aurora-sub001/internal/session"
	"github.com/christophersteins/aurora-sub001/internal/store"
	"github.com/christophersteins/aurora-sub001/pkg/chaterrors"
)

// Transport 发送通道（由 bridge 实现）
type Transport interface {
	SendMessage(conversationID, receiverID, content string) error
	SendTyping(conversationID string) error
	IsConnected() bool
	Stop()
}

// Service 聊天服务
// 协调 REST 边界、Store 和推送通道；REST 失败写入 Store 的错误字段，
// 乐观更新不回滚，由下次拉取重新对齐
type Service struct {
	api       *api.Client
	store     *store.Store
	presence  *presence.Tracker
	transport Transport
	sess      *session.Session
	logger    *slog.Logger

	// 用户正在查看的会话，桥接器在事件处理时读取
	currentConversation atomic.Value
}

// NewService 创建聊天服务
func NewService(apiClient *api.Client, st *store.Store, tr Transport, pr *presence.Tracker, sess *session.Session) *Service {
	s := &Service{
		api:       apiClient,
		store:     st,
		presence:  pr,
		transport: tr,
		sess:      sess,
		logger:    slog.Default(),
	}
	s.currentConversation.Store("")
	return s
}

// CurrentUserID 当前登录用户ID（未登录为空串）
func (s *Service) CurrentUserID() string {
	return s.sess.UserID
}

// CurrentConversation 用户正在查看的会话ID
func (s *Service) CurrentConversation() string {
	return s.currentConversation.Load().(string)
}

// SetCurrentConversation 记录用户正在查看的会话
func (s *Service) SetCurrentConversation(conversationID string) {
	s.currentConversation.Store(conversationID)
}

// ClearCurrentConversation 用户离开会话视图
func (s *Service) ClearCurrentConversation() {
	s.currentConversation.Store("")
}

// LoadConversations 加载会话列表并用服务端未读总数对账
func (s *Service) LoadConversations(ctx context.Context) error {
	s.store.SetLoading(true)
	defer s.store.SetLoading(false)

	list, err := s.api.GetConversations(ctx)
	if err != nil {
		s.store.SetError(chaterrors.GetMessage(err))
		return err
	}
	s.store.SetConversations(list)
	s.store.SetError("")

	// 对账失败不算加载失败
	if count, err := s.api.GetUnreadCount(ctx); err != nil {
		s.logger.Warn("Failed to reconcile unread count", "error", err)
	} else {
		s.store.ReconcileTotalUnreadCount(count)
	}
	return nil
}

// OpenConversation 打开与指定用户的会话
// 查找或创建会话、拉取消息、乐观标记已读，并把它记为当前会话
func (s *Service) OpenConversation(ctx context.Context, otherUserID string) (*model.Conversation, error) {
	conv, err := s.api.CreateOrGetConversation(ctx, otherUserID)
	if err != nil {
		s.store.SetError(chaterrors.GetMessage(err))
		return nil, err
	}
	s.store.AddConversation(*conv)

	msgs, err := s.api.GetMessages(ctx, conv.ID)
	if err != nil {
		s.store.SetError(chaterrors.GetMessage(err))
		return nil, err
	}
	s.store.SetMessages(conv.ID, msgs)

	s.SetCurrentConversation(conv.ID)

	// 本地乐观清零，REST 调用失败时不回滚
	s.store.MarkConversationAsRead(conv.ID)
	if err := s.api.MarkAsRead(ctx, conv.ID); err != nil {
		s.logger.Warn("Failed to mark conversation read on server", "conversationId", conv.ID, "error", err)
	}

	return conv, nil
}

// SendMessage 通过推送通道发出消息
// Store 只在对应的回显事件到达时才更新
func (s *Service) SendMessage(conversationID, receiverID, content string) error {
	return s.transport.SendMessage(conversationID, receiverID, content)
}

// SendTyping 发出正在输入事件
func (s *Service) SendTyping(conversationID string) error {
	return s.transport.SendTyping(conversationID)
}

// MarkConversationAsRead 标记会话已读（本地乐观 + 服务端）
func (s *Service) MarkConversationAsRead(ctx context.Context, conversationID string) error {
	s.store.MarkConversationAsRead(conversationID)
	if err := s.api.MarkAsRead(ctx, conversationID); err != nil {
		s.store.SetError(chaterrors.GetMessage(err))
		return err
	}
	return nil
}

// MarkAsUnread 标记会话未读并重新拉取列表
func (s *Service) MarkAsUnread(ctx context.Context, conversationID string) error {
	if err := s.api.MarkAsUnread(ctx, conversationID); err != nil {
		s.store.SetError(chaterrors.GetMessage(err))
		return err
	}
	return s.refresh(ctx)
}

// TogglePin 切换置顶状态并重新拉取列表，返回新的置顶状态
func (s *Service) TogglePin(ctx context.Context, conversationID string) (bool, error) {
	pinned, err := s.api.TogglePin(ctx, conversationID)
	if err != nil {
		s.store.SetError(chaterrors.GetMessage(err))
		return false, err
	}
	if err := s.refresh(ctx); err != nil {
		return pinned, err
	}
	return pinned, nil
}

// DeleteConversation 删除会话（不可恢复，界面须先向用户确认）
func (s *Service) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := s.api.DeleteConversation(ctx, conversationID); err != nil {
		s.store.SetError(chaterrors.GetMessage(err))
		return err
	}
	return s.refresh(ctx)
}

// refresh 重新拉取会话列表
func (s *Service) refresh(ctx context.Context) error {
	list, err := s.api.GetConversations(ctx)
	if err != nil {
		s.store.SetError(chaterrors.GetMessage(err))
		return err
	}
	s.store.SetConversations(list)
	return nil
}

// Logout 登出：停掉推送通道并清空全部本地状态
func (s *Service) Logout() {
	if s.transport != nil {
		s.transport.Stop()
	}
	s.store.Clear()
	if s.presence != nil {
		s.presence.Clear()
	}
	s.ClearCurrentConversation()
	s.logger.Info("Chat state cleared on logout")
}
