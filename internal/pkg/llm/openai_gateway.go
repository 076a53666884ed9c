package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/llmcouncil/backend/config"
	"github.com/llmcouncil/backend/internal/domain"
	"github.com/sashabaranov/go-openai"
	"k8s.io/klog/v2"
)

// OpenAIGateway 基于 go-openai 的 OpenAI 兼容网关（默认对接 OpenRouter）
type OpenAIGateway struct {
	client    *openai.Client
	maxTokens int
	timeout   time.Duration
}

// NewOpenAIGateway 创建 OpenAI 兼容网关
func NewOpenAIGateway(cfg *config.Config) *OpenAIGateway {
	clientCfg := openai.DefaultConfig(cfg.LLM.APIKey)
	if cfg.LLM.APIURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.LLM.APIURL, "/")
	}

	headers := http.Header{}
	if cfg.LLM.Referer != "" {
		headers.Set("HTTP-Referer", cfg.LLM.Referer)
	}
	if cfg.LLM.AppTitle != "" {
		headers.Set("X-Title", cfg.LLM.AppTitle)
	}
	clientCfg.HTTPClient = &http.Client{
		Transport: &HeaderTransport{
			Origin:  http.DefaultTransport,
			Headers: headers,
		},
	}

	return &OpenAIGateway{
		client:    openai.NewClientWithConfig(clientCfg),
		maxTokens: cfg.LLM.MaxTokens,
		timeout:   cfg.LLM.CallTimeout,
	}
}

// Complete 发起一次非流式 chat completion
func (g *OpenAIGateway) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	callCtx, cancel := withCallTimeout(ctx, req, g.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	klog.V(6).Infof("OpenAIGateway.Complete: model=%s, messages=%d", req.Model, len(messages))
	resp, err := g.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:     req.Model,
		Messages:  messages,
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return nil, classifyOpenAIError(req.Model, err)
	}

	if len(resp.Choices) == 0 {
		return nil, &GatewayError{Kind: KindFatal, Model: req.Model, Message: "no choices in response", Err: ErrMalformedResponse}
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return nil, &GatewayError{Kind: KindFatal, Model: req.Model, Message: "empty content in response", Err: ErrMalformedResponse}
	}

	return &Response{
		Text: text,
		Usage: domain.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func classifyOpenAIError(model string, err error) *GatewayError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		kind := KindForStatus(apiErr.HTTPStatusCode)
		if kind == KindFatal && IsRateLimitMessage(apiErr.Message) {
			kind = KindRateLimited
		}
		return &GatewayError{
			Kind:       kind,
			Model:      model,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			RetryAfter: ParseRetryAfter(apiErr.Message),
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &GatewayError{
			Kind:       KindForStatus(reqErr.HTTPStatusCode),
			Model:      model,
			StatusCode: reqErr.HTTPStatusCode,
			Message:    reqErr.Error(),
			Err:        err,
		}
	}
	return Classify(model, err)
}

// HeaderTransport 为每个请求附加固定请求头
type HeaderTransport struct {
	Origin  http.RoundTripper
	Headers http.Header
}

// RoundTrip implements the http.RoundTripper interface.
func (t *HeaderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clonedReq := req.Clone(req.Context())
	for key, values := range t.Headers {
		for _, value := range values {
			clonedReq.Header.Add(key, value)
		}
	}
	origin := t.Origin
	if origin == nil {
		origin = http.DefaultTransport
	}
	return origin.RoundTrip(clonedReq)
}
