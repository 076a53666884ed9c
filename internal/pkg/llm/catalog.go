package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/llmcouncil/backend/config"
	"github.com/llmcouncil/backend/internal/domain"
	"k8s.io/klog/v2"
)

// ModelInfo 模型目录中的一项
type ModelInfo struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	ContextLength *int         `json:"context_length"`
	Pricing       ModelPricing `json:"pricing"`
	Description   string       `json:"description"`
	Source        string       `json:"source"`
}

// ModelPricing 上游返回的单价字符串，单位：美元 / token
type ModelPricing struct {
	Prompt     *string `json:"prompt"`
	Completion *string `json:"completion"`
}

type modelListResponse struct {
	Data []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		Description   string `json:"description"`
		ContextLength *int   `json:"context_length"`
		Pricing       *struct {
			Prompt     any `json:"prompt"`
			Completion any `json:"completion"`
		} `json:"pricing"`
	} `json:"data"`
}

// Catalog 模型目录，从 provider 的 /models 接口拉取并按 TTL 缓存
type Catalog struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	TTL     time.Duration

	fallbackModels []string

	mu        sync.Mutex
	cached    []ModelInfo
	fetchedAt time.Time
}

// NewCatalog 创建模型目录
func NewCatalog(cfg *config.Config) *Catalog {
	fallback := append([]string{}, cfg.Council.Models...)
	if cfg.Council.Chairman != "" {
		fallback = append(fallback, cfg.Council.Chairman)
	}
	return &Catalog{
		BaseURL:        strings.TrimRight(cfg.LLM.APIURL, "/"),
		APIKey:         cfg.LLM.APIKey,
		Client:         &http.Client{Timeout: 30 * time.Second},
		TTL:            cfg.LLM.CatalogTTL,
		fallbackModels: fallback,
	}
}

// List 返回模型列表，query 非空时按 id/name/description 子串过滤（忽略大小写）
func (c *Catalog) List(ctx context.Context, query string) []ModelInfo {
	models := c.load(ctx)
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return models
	}
	return slice.Filter(models, func(_ int, m ModelInfo) bool {
		return strings.Contains(strings.ToLower(m.ID), q) ||
			strings.Contains(strings.ToLower(m.Name), q) ||
			strings.Contains(strings.ToLower(m.Description), q)
	})
}

// Pricing 返回 model -> 单价（美元 / token），只包含上游给出价格的模型
func (c *Catalog) Pricing(ctx context.Context) map[string]domain.Pricing {
	out := make(map[string]domain.Pricing)
	for _, m := range c.load(ctx) {
		prompt, okPrompt := parsePrice(m.Pricing.Prompt)
		completion, okCompletion := parsePrice(m.Pricing.Completion)
		if !okPrompt && !okCompletion {
			continue
		}
		out[m.ID] = domain.Pricing{Prompt: prompt, Completion: completion}
	}
	return out
}

func (c *Catalog) load(ctx context.Context) []ModelInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil && c.TTL > 0 && time.Since(c.fetchedAt) < c.TTL {
		return c.cached
	}

	if c.APIKey == "" {
		return c.fallback()
	}
	models, err := c.fetch(ctx)
	if err != nil || len(models) == 0 {
		if err != nil {
			klog.Warningf("Catalog: 拉取模型列表失败，使用配置中的模型: %v", err)
		}
		return c.fallback()
	}
	c.cached = models
	c.fetchedAt = time.Now()
	return models
}

func (c *Catalog) fallback() []ModelInfo {
	ids := slice.Unique(slice.Filter(c.fallbackModels, func(_ int, id string) bool {
		return strings.TrimSpace(id) != ""
	}))
	sort.Strings(ids)
	out := make([]ModelInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, ModelInfo{
			ID:          id,
			Name:        id,
			Description: "Configured model (fallback)",
			Source:      "config",
		})
	}
	return out
}

func (c *Catalog) fetch(ctx context.Context) ([]ModelInfo, error) {
	url := c.BaseURL + "/models"
	klog.V(6).Infof("Catalog: 拉取模型列表: url=%s", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var list modelListResponse
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	models := make([]ModelInfo, 0, len(list.Data))
	for _, item := range list.Data {
		if item.ID == "" {
			continue
		}
		info := ModelInfo{
			ID:            item.ID,
			Name:          item.Name,
			ContextLength: item.ContextLength,
			Description:   item.Description,
			Source:        "openrouter",
		}
		if info.Name == "" {
			info.Name = item.ID
		}
		if item.Pricing != nil {
			info.Pricing.Prompt = priceString(item.Pricing.Prompt)
			info.Pricing.Completion = priceString(item.Pricing.Completion)
		}
		models = append(models, info)
	}
	return models, nil
}

func priceString(v any) *string {
	switch p := v.(type) {
	case string:
		return &p
	case float64:
		s := strconv.FormatFloat(p, 'f', -1, 64)
		return &s
	default:
		return nil
	}
}

// parsePrice 解析 "0.000002"、"$0.5" 这类价格
func parsePrice(p *string) (float64, bool) {
	if p == nil {
		return 0, false
	}
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(*p))
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
