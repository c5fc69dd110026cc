package session

import (
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims 凭证中携带的声明
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Session 当前登录态
// 核心只读取用户ID和凭证，验签是服务端的职责
type Session struct {
	UserID string
	Token  string
}

// Authenticated 是否持有可用凭证
func (s *Session) Authenticated() bool {
	return s.Token != "" && s.UserID != ""
}

// Parse 从本地存储的凭证解析登录态
// 使用 ParseUnverified 只解析 claims 不验证签名；
// 凭证无法解析时按"无凭证"处理，请求按未认证路径继续并由服务端自然拒绝
func Parse(rawToken string) *Session {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return &Session{}
	}

	token, _, err := jwt.NewParser().ParseUnverified(rawToken, &Claims{})
	if err != nil {
		slog.Warn("Failed to parse stored credential, treating as unauthenticated", "error", err)
		return &Session{}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		slog.Warn("Stored credential has no user id, treating as unauthenticated")
		return &Session{}
	}

	return &Session{
		UserID: claims.UserID,
		Token:  rawToken,
	}
}
