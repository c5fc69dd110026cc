package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/christophersteins/aurora-sub001/internal/config"
	"github.com/christophersteins/aurora-sub001/internal/model"
	"github.com/christophersteins/aurora-sub001/internal/presence"
	"github.com/christophersteins/aurora-sub001/internal/store"
	"github.com/christophersteins/aurora-sub001/pkg/chaterrors"
	"github.com/christophersteins/aurora-sub001/pkg/proto"
)

var (
	ErrNotConnected     = errors.New("transport not connected")
	ErrNotAuthenticated = errors.New("no authenticated user")
)

// Options 桥接器依赖
// currentUserID / currentConversation 在事件处理时读取，保证总是最新值
type Options struct {
	Store               *store.Store
	Presence            *presence.Tracker
	CurrentUserID       func() string
	CurrentConversation func() string
	OnAlert             func(conversationID string) // 环境提示（如提示音）
	OnTyping            func(conversationID, userID string)
}

// Bridge 实时事件桥接器
// 每个登录会话维持一条推送连接，把下行事件翻译成 Store 操作；
// 断线重连交给传输层，本地只维护 isConnected 标记
type Bridge struct {
	cfg       config.NATSConfig
	conn      *nats.Conn
	opts      Options
	logger    *slog.Logger
	connected atomic.Bool

	eventChan  chan []byte
	sub        *nats.Subscription
	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
}

const eventBufferSize = 1024

// New 创建桥接器
func New(cfg config.NATSConfig, opts Options) *Bridge {
	return &Bridge{
		cfg:    cfg,
		opts:   opts,
		logger: slog.Default(),
	}
}

// Connect 携带会话凭证建立推送连接
func (b *Bridge) Connect(token string) error {
	opts := []nats.Option{
		nats.Token(token),
		nats.MaxReconnects(b.cfg.MaxReconnects),
		nats.ReconnectWait(b.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			b.connected.Store(false)
			b.logger.Warn("Disconnected from push transport", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			b.connected.Store(true)
			b.logger.Info("Reconnected to push transport", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			b.connected.Store(false)
			b.logger.Info("Push transport connection closed")
		}),
		nats.Timeout(10 * time.Second),
	}

	conn, err := nats.Connect(b.cfg.URL, opts...)
	if err != nil {
		return err
	}

	b.conn = conn
	b.connected.Store(true)
	return nil
}

// Start 注册当前用户并开始接收下行事件
// 事件经由带缓冲的通道交给单个分发协程处理，保持到达顺序
func (b *Bridge) Start(ctx context.Context) error {
	userID := b.opts.CurrentUserID()
	if userID == "" {
		return ErrNotAuthenticated
	}
	if b.conn == nil {
		return ErrNotConnected
	}

	b.eventChan = make(chan []byte, eventBufferSize)

	workerCtx, cancel := context.WithCancel(ctx)
	b.cancelFunc = cancel

	b.wg.Add(1)
	go b.dispatch(workerCtx)

	subject := proto.BuildUserEventsSubject(userID)
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		select {
		case b.eventChan <- msg.Data:
		default:
			b.logger.Warn("Event buffer full, dropping event", "bufferSize", eventBufferSize)
		}
	})
	if err != nil {
		cancel()
		return err
	}

	b.sub = sub
	b.logger.Info("Event bridge started", "subject", subject)
	return nil
}

// dispatch 分发协程
func (b *Bridge) dispatch(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-b.eventChan:
			if !ok {
				return
			}
			b.handleEvent(data)
		}
	}
}

// handleEvent 解析并路由一条下行事件
func (b *Bridge) handleEvent(data []byte) {
	var event proto.PushEvent
	if err := json.Unmarshal(data, &event); err != nil {
		b.logger.Error("Failed to unmarshal push event", "error", err)
		return
	}

	switch {
	case event.NewMessage != nil:
		b.handleNewMessage(event.NewMessage)
	case event.MessageAck != nil:
		// 已读回执之外的发送确认只做记录；Store 已在回显消息路径更新
		b.logger.Debug("Message acknowledged",
			"clientMsgId", event.MessageAck.ClientMsgId,
			"messageId", event.MessageAck.MessageId)
	case event.Typing != nil:
		if b.opts.OnTyping != nil {
			b.opts.OnTyping(event.Typing.ConversationId, event.Typing.UserId)
		}
	case event.ReadReceipt != nil:
		// 发送方标记已读时已乐观更新，这里只记录
		b.logger.Debug("Read receipt received",
			"conversationId", event.ReadReceipt.ConversationId,
			"userId", event.ReadReceipt.UserId)
	case event.Presence != nil:
		b.handlePresence(event.Presence)
	case event.ErrorEvent != nil:
		b.logger.Error("Push transport error event",
			"code", event.ErrorEvent.Code,
			"message", event.ErrorEvent.Message)
		b.opts.Store.SetError(event.ErrorEvent.Message)
	}
}

// handleNewMessage 新消息与自己消息的回显走同一条路径
// Store 的按ID替换语义保证重复投递安全
func (b *Bridge) handleNewMessage(nm *proto.NewMessage) {
	msg := model.Message{
		ID:             nm.MessageId,
		ConversationID: nm.ConversationId,
		SenderID:       nm.SenderId,
		Content:        nm.Content,
		CreatedAt:      time.UnixMilli(nm.Timestamp),
	}
	b.opts.Store.AddMessage(nm.ConversationId, msg)

	if b.shouldAlert(nm.SenderId, nm.ConversationId) && b.opts.OnAlert != nil {
		b.opts.OnAlert(nm.ConversationId)
	}
}

// shouldAlert 环境提示抑制规则
// 自己发出的消息、或用户正在查看的会话里的消息不提示；
// 当前用户和当前会话在事件处理时读取，不在订阅时捕获
func (b *Bridge) shouldAlert(senderID, conversationID string) bool {
	if b.opts.CurrentUserID != nil && senderID == b.opts.CurrentUserID() {
		return false
	}
	if b.opts.CurrentConversation != nil && conversationID == b.opts.CurrentConversation() {
		return false
	}
	return true
}

func (b *Bridge) handlePresence(p *proto.Presence) {
	if b.opts.Presence == nil {
		return
	}
	if p.Online {
		b.opts.Presence.SetOnline(p.UserId)
	} else {
		b.opts.Presence.SetOffline(p.UserId, time.UnixMilli(p.LastSeen))
	}
}

// SendMessage 发出一条消息（fire-and-forget，不等待确认）
// 纯空白内容在发出前就被拒绝
func (b *Bridge) SendMessage(conversationID, receiverID, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return chaterrors.ErrEmptyMessage
	}
	if b.conn == nil || !b.connected.Load() {
		return ErrNotConnected
	}

	event := proto.ClientEvent{
		SendMessage: &proto.SendMessage{
			ClientMsgId:    uuid.NewString(),
			ConversationId: conversationID,
			SenderId:       b.opts.CurrentUserID(),
			ReceiverId:     receiverID,
			Content:        content,
			Timestamp:      time.Now().UnixMilli(),
		},
	}
	data, err := json.Marshal(&event)
	if err != nil {
		return err
	}
	return b.conn.Publish(proto.SubjectClientUpstream, data)
}

// SendTyping 发出正在输入事件（fire-and-forget）
func (b *Bridge) SendTyping(conversationID string) error {
	if b.conn == nil || !b.connected.Load() {
		return ErrNotConnected
	}

	event := proto.ClientEvent{
		Typing: &proto.Typing{
			ConversationId: conversationID,
			UserId:         b.opts.CurrentUserID(),
		},
	}
	data, err := json.Marshal(&event)
	if err != nil {
		return err
	}
	return b.conn.Publish(proto.SubjectClientUpstream, data)
}

// IsConnected 传输是否健康（UI 据此禁用发送）
func (b *Bridge) IsConnected() bool {
	return b.connected.Load()
}

// Stop 停止接收并关闭连接，释放全部订阅
func (b *Bridge) Stop() {
	if b.cancelFunc != nil {
		b.cancelFunc()
	}

	if b.sub != nil {
		if err := b.sub.Unsubscribe(); err != nil {
			b.logger.Error("Failed to unsubscribe", "error", err)
		}
		b.sub = nil
	}

	if b.eventChan != nil {
		close(b.eventChan)
		b.eventChan = nil
	}

	b.wg.Wait()

	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.connected.Store(false)

	b.logger.Info("Event bridge stopped")
}
