package llm

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"
	"github.com/llmcouncil/backend/config"
	"github.com/llmcouncil/backend/internal/domain"
	"k8s.io/klog/v2"
)

// EinoGateway 基于 eino ChatModel 的网关实现，每个模型一个 ChatModel 实例并缓存
type EinoGateway struct {
	baseURL   string
	apiKey    string
	maxTokens int
	timeout   time.Duration

	modelCache      map[string]*openai.ChatModel
	modelCacheMutex sync.RWMutex
}

// NewEinoGateway 创建 eino 网关
func NewEinoGateway(cfg *config.Config) *EinoGateway {
	return &EinoGateway{
		baseURL:    strings.TrimRight(cfg.LLM.APIURL, "/"),
		apiKey:     cfg.LLM.APIKey,
		maxTokens:  cfg.LLM.MaxTokens,
		timeout:    cfg.LLM.CallTimeout,
		modelCache: make(map[string]*openai.ChatModel),
	}
}

func (g *EinoGateway) getModel(ctx context.Context, name string) (*openai.ChatModel, error) {
	g.modelCacheMutex.RLock()
	if cached, ok := g.modelCache[name]; ok {
		g.modelCacheMutex.RUnlock()
		return cached, nil
	}
	g.modelCacheMutex.RUnlock()

	g.modelCacheMutex.Lock()
	defer g.modelCacheMutex.Unlock()
	if cached, ok := g.modelCache[name]; ok {
		return cached, nil
	}

	modelCfg := &openai.ChatModelConfig{
		BaseURL: g.baseURL,
		APIKey:  g.apiKey,
		Model:   name,
	}
	if g.maxTokens > 0 {
		maxTokens := g.maxTokens
		modelCfg.MaxTokens = &maxTokens
	}
	chatModel, err := openai.NewChatModel(ctx, modelCfg)
	if err != nil {
		klog.Errorf("EinoGateway: 创建 ChatModel 失败: model=%s, err=%v", name, err)
		return nil, err
	}
	g.modelCache[name] = chatModel
	klog.V(6).Infof("EinoGateway: ChatModel 创建成功: model=%s", name)
	return chatModel, nil
}

// Complete 通过 eino ChatModel.Generate 完成一次调用
func (g *EinoGateway) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	chatModel, err := g.getModel(ctx, req.Model)
	if err != nil {
		return nil, &GatewayError{Kind: KindFatal, Model: req.Model, Message: err.Error(), Err: err}
	}

	callCtx, cancel := withCallTimeout(ctx, req, g.timeout)
	defer cancel()

	input := make([]*schema.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		input = append(input, &schema.Message{Role: schema.RoleType(m.Role), Content: m.Content})
	}

	klog.V(6).Infof("EinoGateway.Complete: model=%s, messages=%d", req.Model, len(input))
	msg, err := chatModel.Generate(callCtx, input)
	if err != nil {
		return nil, Classify(req.Model, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return nil, &GatewayError{Kind: KindFatal, Model: req.Model, Message: "empty content in response", Err: ErrMalformedResponse}
	}

	resp := &Response{Text: msg.Content}
	if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
		resp.Usage = domain.TokenUsage{
			PromptTokens:     msg.ResponseMeta.Usage.PromptTokens,
			CompletionTokens: msg.ResponseMeta.Usage.CompletionTokens,
			TotalTokens:      msg.ResponseMeta.Usage.TotalTokens,
		}
	}
	return resp, nil
}
