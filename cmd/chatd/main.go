package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/christophersteins/aurora-sub001/internal/api"
	"github.com/christophersteins/aurora-sub001/internal/bridge"
	"github.com/christophersteins/aurora-sub001/internal/chat"
	"github.com/christophersteins/aurora-sub001/internal/config"
	"github.com/christophersteins/aurora-sub001/internal/health"
	"github.com/christophersteins/aurora-sub001/internal/presence"
	"github.com/christophersteins/aurora-sub001/internal/session"
	"github.com/christophersteins/aurora-sub001/internal/store"
)

func main() {
	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	// 加载配置
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 读取本地凭证（无法解析时按未认证继续）
	sess := loadSession(cfg.Auth.TokenFile, logger)

	// 初始化核心组件
	st := store.New()
	tracker := presence.NewTracker(cfg.Presence.Capacity)
	apiClient := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout, func() string {
		return sess.Token
	})

	var chatSvc *chat.Service

	// 建立推送连接
	br := bridge.New(cfg.NATS, bridge.Options{
		Store:         st,
		Presence:      tracker,
		CurrentUserID: func() string { return sess.UserID },
		CurrentConversation: func() string {
			if chatSvc == nil {
				return ""
			}
			return chatSvc.CurrentConversation()
		},
		OnAlert: func(conversationID string) {
			logger.Info("New message notification", "conversationId", conversationID)
		},
	})

	chatSvc = chat.NewService(apiClient, st, br, tracker, sess)

	// 401 视为会话级失效，清空本地状态
	apiClient.SetOnUnauthorized(func() {
		logger.Error("Session invalidated by server, logging out")
		chatSvc.Logout()
	})

	if sess.Authenticated() {
		if err := br.Connect(sess.Token); err != nil {
			logger.Error("Failed to connect to push transport", "error", err)
			os.Exit(1)
		}
		if err := br.Start(ctx); err != nil {
			logger.Error("Failed to start event bridge", "error", err)
			os.Exit(1)
		}
		logger.Info("Connected to push transport", "url", cfg.NATS.URL)

		// 初始加载会话列表
		loadCtx, loadCancel := context.WithTimeout(ctx, 30*time.Second)
		if err := chatSvc.LoadConversations(loadCtx); err != nil {
			logger.Warn("Initial conversation load failed", "error", err)
		}
		loadCancel()
	} else {
		logger.Warn("No usable credential, starting unauthenticated")
	}

	// 启动健康检查 HTTP 服务
	healthChecker := health.NewChecker(br, apiClient)
	go startHealthServer(cfg.Health.Addr, healthChecker, logger)

	logger.Info("Chat client core started", "name", cfg.App.Name)

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancel()
	br.Stop()
	logger.Info("Chat client core stopped")
}

// loadSession 从本地文件读取凭证并解析登录态
func loadSession(tokenFile string, logger *slog.Logger) *session.Session {
	if tokenFile == "" {
		return &session.Session{}
	}

	data, err := os.ReadFile(tokenFile)
	if err != nil {
		logger.Warn("Failed to read credential file", "path", tokenFile, "error", err)
		return &session.Session{}
	}

	return session.Parse(string(data))
}

// startHealthServer 启动健康检查 HTTP 服务
func startHealthServer(addr string, healthChecker *health.Checker, logger *slog.Logger) {
	if addr == "" {
		addr = ":8082"
	}

	mux := http.NewServeMux()
	mux.Handle("/health", healthChecker)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if healthChecker.IsHealthy(r.Context()) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Not Ready"))
		}
	})

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	logger.Info("Health check server started", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Health check server failed", "error", err)
	}
}
