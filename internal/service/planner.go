package service

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

// Planner turns a raw topic into a search plan. Plans are cached by the
// normalized topic so that repeated searches skip the model call.
type Planner struct {
	model IPlanModel
	cache *expirable.LRU[string, model.SearchPlan]
}

func NewPlanner(m IPlanModel, cacheSize int, ttl time.Duration) *Planner {
	p := &Planner{model: m}
	if cacheSize > 0 && ttl > 0 {
		p.cache = expirable.NewLRU[string, model.SearchPlan](cacheSize, nil, ttl)
	}
	return p
}

func (p *Planner) Expand(ctx context.Context, topic string) (*model.SearchPlan, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, appErr.Wrapf(appErr.ErrInvalid, "topic is required")
	}
	key := strings.ToLower(strings.Join(strings.Fields(topic), " "))
	if p.cache != nil {
		if plan, ok := p.cache.Get(key); ok {
			logutil.GetLogger(ctx).Debug("search plan cache hit", zap.String("topic", topic))
			return &plan, nil
		}
	}
	plan, err := p.model.ExtractSearchPlan(ctx, topic)
	if err != nil {
		return nil, appErr.Wrap(appErr.ErrGeneration, err)
	}
	if p.cache != nil {
		p.cache.Add(key, *plan)
	}
	return plan, nil
}
