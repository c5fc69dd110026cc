package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/christophersteins/aurora-sub001/internal/model"
	"github.com/christophersteins/aurora-sub001/internal/store"
	"github.com/christophersteins/aurora-sub001/pkg/chaterrors"
)

// DefaultTimeout 单次请求默认超时，挂起的请求不会让调用方无限等待
const DefaultTimeout = 10 * time.Second

// Client 会话 REST 边界
// 所有会话/消息的增删查都走这里；调用失败不重试，错误原样抛给调用方。
// 401 响应视为会话级失效信号，触发 onUnauthorized 回调后返回 ErrSessionExpired
type Client struct {
	baseURL        string
	httpClient     *http.Client
	token          func() string
	onUnauthorized func()
	logger         *slog.Logger
}

// NewClient 创建 REST 客户端
// token 每次请求时读取，保证拿到的总是最新凭证
func NewClient(baseURL string, timeout time.Duration, token func() string) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
		logger:     slog.Default(),
	}
}

// SetOnUnauthorized 注册 401 回调（强制登出由上层处理）
func (c *Client) SetOnUnauthorized(fn func()) {
	c.onUnauthorized = fn
}

// envelope 统一响应结构
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do 执行一次请求并解析统一响应
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return chaterrors.ErrBadResponse.Wrap(err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return chaterrors.ErrNetworkError.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("API request failed", "method", method, "path", path, "error", err)
		return chaterrors.ErrNetworkError.Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("API request unauthorized, invalidating session", "path", path)
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return chaterrors.ErrSessionExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return chaterrors.ErrServerError.Wrap(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return chaterrors.ErrBadResponse.Wrap(err)
	}
	if env.Code != chaterrors.CodeSuccess {
		return chaterrors.NewError(env.Code, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return chaterrors.ErrBadResponse.Wrap(err)
		}
	}
	return nil
}

// Ping 探测后端可达性（不带凭证、不解析响应体）
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return chaterrors.ErrNetworkError.Wrap(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return chaterrors.ErrNetworkError.Wrap(err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return chaterrors.ErrServerError.Wrap(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}

// GetConversations 获取会话列表
// 服务端可能返回重复行，这里冗余做一次去重排序作为双保险
func (c *Client) GetConversations(ctx context.Context) ([]model.Conversation, error) {
	var list []model.Conversation
	if err := c.do(ctx, http.MethodGet, "/api/v1/conversations", nil, &list); err != nil {
		return nil, err
	}

	list = store.DedupeConversations(list)
	store.SortConversations(list)
	return list, nil
}

// CreateOrGetConversation 查找或创建与指定用户的会话（幂等）
func (c *Client) CreateOrGetConversation(ctx context.Context, otherUserID string) (*model.Conversation, error) {
	body := map[string]string{"otherUserId": otherUserID}
	var conv model.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations", body, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetMessages 获取会话消息列表（按时间正序，最早的在前）
func (c *Client) GetMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var list []model.Message
	path := "/api/v1/conversations/" + conversationID + "/messages"
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// MarkAsRead 标记会话已读
func (c *Client) MarkAsRead(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/conversations/"+conversationID+"/read", nil, nil)
}

// MarkAsUnread 标记会话未读
func (c *Client) MarkAsUnread(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/conversations/"+conversationID+"/unread", nil, nil)
}

// TogglePin 切换会话置顶状态，返回新的置顶状态
func (c *Client) TogglePin(ctx context.Context, conversationID string) (bool, error) {
	var result struct {
		IsPinned bool `json:"isPinned"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/conversations/"+conversationID+"/pin", nil, &result); err != nil {
		return false, err
	}
	return result.IsPinned, nil
}

// DeleteConversation 删除会话（不可恢复，调用前应由界面向用户确认）
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/conversations/"+conversationID, nil, nil)
}

// GetUnreadCount 获取服务端计算的总未读数（加载时用于对账本地计数）
func (c *Client) GetUnreadCount(ctx context.Context) (int, error) {
	var result struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/messages/unread-count", nil, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}
