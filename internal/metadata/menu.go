package metadata

import (
	"context"

	"go.uber.org/zap"

	"github.com/xaviermatuz/formdesk/internal/definition"
	"github.com/xaviermatuz/formdesk/model"
)

// BadgeCounter returns the number of rows a resource currently holds for
// the user.
type BadgeCounter interface {
	BadgeCount(ctx context.Context, rctx *model.RequestContext, resource string) (int, error)
}

// MenuProvider builds a NavigationTree from definitions filtered by
// capabilities.
type MenuProvider struct {
	registry *definition.Registry
	policy   Policy
	badges   BadgeCounter
	logger   *zap.Logger
}

// NewMenuProvider creates a MenuProvider. badges may be nil when no badge
// counts are wanted.
func NewMenuProvider(registry *definition.Registry, policy Policy, badges BadgeCounter, logger *zap.Logger) *MenuProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MenuProvider{
		registry: registry,
		policy:   policy,
		badges:   badges,
		logger:   logger,
	}
}

// GetMenu returns the entries the user may see, in definition order. Badge
// counts are best effort: failures are logged and the badge omitted.
func (p *MenuProvider) GetMenu(ctx context.Context, rctx *model.RequestContext) model.NavigationTree {
	items := []model.NavigationNode{}
	for _, nav := range p.registry.Navigation() {
		if !p.allowed(rctx, nav.Capabilities) {
			continue
		}
		node := model.NavigationNode{
			ID:    nav.ID,
			Label: nav.Label,
			Icon:  nav.Icon,
			Route: nav.Route,
		}
		if nav.BadgeResource != "" {
			node.Badge = p.resolveBadge(ctx, rctx, nav.BadgeResource)
		}
		items = append(items, node)
	}
	return model.NavigationTree{Items: items}
}

func (p *MenuProvider) allowed(rctx *model.RequestContext, caps []model.Capability) bool {
	for _, c := range caps {
		if !p.policy.Evaluate(rctx, c, nil) {
			return false
		}
	}
	return true
}

func (p *MenuProvider) resolveBadge(ctx context.Context, rctx *model.RequestContext, resource string) *model.BadgeDescriptor {
	if p.badges == nil {
		return nil
	}
	def, ok := p.registry.Resource(resource)
	if !ok || !p.policy.Evaluate(rctx, def.Capability, nil) {
		return nil
	}

	count, err := p.badges.BadgeCount(ctx, rctx, resource)
	if err != nil {
		p.logger.Debug("menu: badge resolution failed",
			zap.String("resource", resource),
			zap.Error(err),
		)
		return nil
	}
	if count <= 0 {
		return nil
	}
	return &model.BadgeDescriptor{Count: count, Style: "info"}
}
