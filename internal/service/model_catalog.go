package service

import (
	"context"

	"github.com/llmcouncil/backend/config"
	"github.com/llmcouncil/backend/internal/pkg/llm"
)

// ModelCatalogService 可选模型列表
type ModelCatalogService struct {
	cfg     *config.Config
	catalog *llm.Catalog
}

func NewModelCatalogService(cfg *config.Config, catalog *llm.Catalog) *ModelCatalogService {
	return &ModelCatalogService{cfg: cfg, catalog: catalog}
}

// CouncilConfig GET /api/config 的返回体
type CouncilConfig struct {
	CouncilModels   []string       `json:"council_models"`
	ChairmanModel   string         `json:"chairman_model"`
	TitleModel      string         `json:"title_model"`
	HistoryDefaults HistoryDefault `json:"history_defaults"`
}

type HistoryDefault struct {
	MaxTurns  int `json:"max_turns"`
	MaxTokens int `json:"max_tokens"`
}

// List 拉取失败时返回配置中的模型，不会报错
func (s *ModelCatalogService) List(ctx context.Context, query string) []llm.ModelInfo {
	return s.catalog.List(ctx, query)
}

func (s *ModelCatalogService) Config() CouncilConfig {
	return CouncilConfig{
		CouncilModels: s.cfg.Council.Models,
		ChairmanModel: s.cfg.Council.Chairman,
		TitleModel:    s.cfg.LLM.TitleModel,
		HistoryDefaults: HistoryDefault{
			MaxTurns:  s.cfg.History.MaxTurns,
			MaxTokens: s.cfg.History.MaxTokens,
		},
	}
}
