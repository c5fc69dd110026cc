package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Transport 推送通道健康状态
type Transport interface {
	IsConnected() bool
}

// APIProber 后端可达性探测
type APIProber interface {
	Ping(ctx context.Context) error
}

// Status 健康状态
type Status struct {
	Transport string `json:"transport"`
	API       string `json:"api"`
}

// Checker 健康检查器
type Checker struct {
	transport Transport
	api       APIProber
}

// NewChecker 创建健康检查器
func NewChecker(transport Transport, api APIProber) *Checker {
	return &Checker{
		transport: transport,
		api:       api,
	}
}

// Check 执行健康检查
func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{}

	if h.transport.IsConnected() {
		status.Transport = "connected"
	} else {
		status.Transport = "disconnected"
	}

	apiCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.api.Ping(apiCtx); err == nil {
		status.API = "reachable"
	} else {
		status.API = "unreachable"
	}

	return status
}

// IsHealthy 检查是否健康
func (h *Checker) IsHealthy(ctx context.Context) bool {
	status := h.Check(ctx)
	return status.Transport == "connected" && status.API == "reachable"
}

// ServeHTTP HTTP 健康检查端点
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	if status.Transport != "connected" || status.API != "reachable" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
