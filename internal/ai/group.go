package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperqa/internal/config"
)

type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

type ChatEntry struct {
	Name  string
	Model IChatModel
}

type EmbedderEntry struct {
	Name     string
	Embedder IEmbedder
}

type groupGenerator struct {
	items []GeneratorEntry
}

func NewGroupGenerator(items []GeneratorEntry) IGenerator {
	if len(items) == 0 {
		return nil
	}
	return &groupGenerator{items: items}
}

func (g *groupGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Generator == nil {
			continue
		}
		res, err := item.Generator.Generate(ctx, prompt)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("generator failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return "", fmt.Errorf("generator not configured")
	}
	return "", lastErr
}

type groupChatModel struct {
	items []ChatEntry
}

func NewGroupChatModel(items []ChatEntry) IChatModel {
	if len(items) == 0 {
		return nil
	}
	return &groupChatModel{items: items}
}

func (g *groupChatModel) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Model == nil {
			continue
		}
		res, err := item.Model.Chat(ctx, req)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("chat model failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return nil, fmt.Errorf("chat model not configured")
	}
	return nil, lastErr
}

type groupEmbedder struct {
	items []EmbedderEntry
}

func NewGroupEmbedder(items []EmbedderEntry) IEmbedder {
	if len(items) == 0 {
		return nil
	}
	return &groupEmbedder{items: items}
}

func (g *groupEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Embedder == nil {
			continue
		}
		res, err := item.Embedder.Embed(ctx, text, taskType)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("embedder failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return nil, fmt.Errorf("embedder not configured")
	}
	return nil, lastErr
}

func (g *groupEmbedder) ModelName() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		if item.Name == "" {
			continue
		}
		names = append(names, item.Name)
	}
	return strings.Join(names, "|")
}

// Roles holds the fallback group bound to each model role.
type Roles struct {
	Planner    IChatModel
	Chat       IChatModel
	Summarizer IGenerator
	Embedder   IEmbedder
}

func BuildRoles(cfg config.AIConfig) (*Roles, error) {
	providers := make(map[string]IProvider, len(cfg.Providers))
	for _, item := range cfg.Providers {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			return nil, fmt.Errorf("ai provider name is required")
		}
		if _, ok := providers[name]; ok {
			return nil, fmt.Errorf("duplicate ai provider: %s", name)
		}
		p, err := NewProvider(item.Type, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init ai provider %s: %w", name, err)
		}
		providers[name] = p
	}
	lookup := func(role string, ref config.AIModelRef) (IProvider, string, error) {
		p, ok := providers[ref.Provider]
		if !ok {
			return nil, "", fmt.Errorf("ai.%s references unknown provider: %s", role, ref.Provider)
		}
		return p, ref.Provider + ":" + ref.Model, nil
	}
	chatGroup := func(role string, refs []config.AIModelRef) (IChatModel, error) {
		items := make([]ChatEntry, 0, len(refs))
		for _, ref := range refs {
			p, name, err := lookup(role, ref)
			if err != nil {
				return nil, err
			}
			items = append(items, ChatEntry{Name: name, Model: NewChatModel(p, ref.Model)})
		}
		return NewGroupChatModel(items), nil
	}

	planner, err := chatGroup("planner", cfg.Planner)
	if err != nil {
		return nil, err
	}
	chat, err := chatGroup("chat", cfg.Chat)
	if err != nil {
		return nil, err
	}
	gens := make([]GeneratorEntry, 0, len(cfg.Summarizer))
	for _, ref := range cfg.Summarizer {
		p, name, err := lookup("summarizer", ref)
		if err != nil {
			return nil, err
		}
		gens = append(gens, GeneratorEntry{Name: name, Generator: NewGenerator(p, ref.Model)})
	}
	embeds := make([]EmbedderEntry, 0, len(cfg.Embedder))
	for _, ref := range cfg.Embedder {
		p, name, err := lookup("embedder", ref)
		if err != nil {
			return nil, err
		}
		embeds = append(embeds, EmbedderEntry{Name: name, Embedder: NewEmbedder(p, ref.Model)})
	}
	return &Roles{
		Planner:    planner,
		Chat:       chat,
		Summarizer: NewGroupGenerator(gens),
		Embedder:   NewGroupEmbedder(embeds),
	}, nil
}
