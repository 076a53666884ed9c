package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/llmcouncil/backend/internal/domain"
	"github.com/llmcouncil/backend/internal/model"
	"github.com/llmcouncil/backend/internal/repository"
	"k8s.io/klog/v2"
)

var (
	ErrPersonaNotFound = errors.New("persona not found")
	ErrInvalidPersona  = errors.New("persona name and system prompt are required")
)

// PersonaService 命名系统提示词管理
type PersonaService struct {
	repo repository.PersonaRepository
}

func NewPersonaService(repo repository.PersonaRepository) *PersonaService {
	return &PersonaService{repo: repo}
}

// SavePersonaRequest 新增或覆盖 persona
type SavePersonaRequest struct {
	Name         string `json:"name" binding:"required"`
	SystemPrompt string `json:"system_prompt" binding:"required"`
}

func (s *PersonaService) List(ctx context.Context) ([]model.Persona, error) {
	personas, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	if personas == nil {
		personas = []model.Persona{}
	}
	return personas, nil
}

func (s *PersonaService) Save(ctx context.Context, req SavePersonaRequest) (*model.Persona, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || strings.TrimSpace(req.SystemPrompt) == "" {
		return nil, ErrInvalidPersona
	}
	persona := &model.Persona{Name: name, SystemPrompt: req.SystemPrompt}
	if err := s.repo.Upsert(ctx, persona); err != nil {
		klog.Errorf("SavePersona: failed: %v", err)
		return nil, fmt.Errorf("save persona %s: %w", name, err)
	}
	saved, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("reload persona %s: %w", name, err)
	}
	klog.V(6).Infof("SavePersona: name=%s", name)
	return saved, nil
}

func (s *PersonaService) Delete(ctx context.Context, name string) error {
	if err := s.repo.Delete(ctx, name); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPersonaNotFound
		}
		return fmt.Errorf("delete persona %s: %w", name, err)
	}
	return nil
}

// ResolveNames 为每个模型找出其 Stage 1 提示词对应的已保存 persona 名称；未匹配的模型不出现在结果中
func (s *PersonaService) ResolveNames(ctx context.Context, query domain.CouncilQuery, models []string) (map[string]string, error) {
	names := make(map[string]string)
	if len(query.PersonaMap) == 0 {
		return names, nil
	}
	personas, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}
	byPrompt := make(map[string]string, len(personas))
	for _, p := range personas {
		byPrompt[strings.TrimSpace(p.SystemPrompt)] = p.Name
	}
	for _, m := range models {
		prompt, ok := query.PersonaFor(m)
		if !ok {
			continue
		}
		if name, ok := byPrompt[strings.TrimSpace(prompt)]; ok {
			names[m] = name
		}
	}
	return names, nil
}
