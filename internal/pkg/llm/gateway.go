package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/llmcouncil/backend/config"
	"github.com/llmcouncil/backend/internal/domain"
)

// Request 模型网关请求
type Request struct {
	Model    string
	Messages []domain.ChatMessage
	// Timeout 单次调用超时，为 0 时使用网关默认值
	Timeout time.Duration
}

// Response 模型网关响应
type Response struct {
	Text  string
	Usage domain.TokenUsage
}

// Gateway 模型推理网关。失败时返回 *GatewayError。
type Gateway interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// NewGateway 按配置的 provider 创建网关
func NewGateway(cfg *config.Config) (Gateway, error) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "", "openai", "openrouter":
		return NewOpenAIGateway(cfg), nil
	case "eino":
		return NewEinoGateway(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.LLM.Provider)
	}
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.Model) == "" {
		return &GatewayError{Kind: KindFatal, Message: "model is required"}
	}
	if len(req.Messages) == 0 {
		return &GatewayError{Kind: KindFatal, Model: req.Model, Message: "messages are required"}
	}
	return nil
}

func withCallTimeout(ctx context.Context, req Request, fallback time.Duration) (context.Context, context.CancelFunc) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = fallback
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
