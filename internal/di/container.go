package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atelier-gallery/api/internal/platform/config"
	"github.com/atelier-gallery/api/internal/repositories"
	"github.com/atelier-gallery/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Catalog  services.CatalogService
	Orders   services.OrderService
	Counters services.CounterService
	System   services.SystemService
}

// Infrastructure carries the optional collaborators main assembles from configuration.
// Nil fields disable the matching feature: no cache, no upload URLs, plain-text bios,
// dropped order events, or no readiness probes.
type Infrastructure struct {
	Cache        services.ListCache
	Signer       services.UploadURLSigner
	Markdown     services.MarkdownRenderer
	Events       services.OrderEventPublisher
	HealthChecks []repositories.DependencyCheck
	Build        services.BuildInfo
	Clock        func() time.Time
	Logger       func(component string) func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring supplies the Firestore
// registry while mock mode and tests supply the in-memory one.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, reg, cfg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, reg repositories.Registry, cfg config.Config, infra Infrastructure) (Services, error) {
	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := func(component string) func(context.Context, string, map[string]any) {
		if infra.Logger == nil {
			return nil
		}
		return infra.Logger(component)
	}

	var svc Services

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Artworks:     reg.Artworks(),
		Artists:      reg.Artists(),
		Cache:        infra.Cache,
		Signer:       infra.Signer,
		AssetsBucket: cfg.Storage.AssetsBucket,
		Markdown:     infra.Markdown,
		Clock:        clock,
		Logger:       logger("catalog"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
		Repository: reg.Counters(),
		Clock:      clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counterSvc

	attributor, err := services.NewSalesAttributor(services.SalesAttributorDeps{
		Artworks: reg.Artworks(),
		Artists:  reg.Artists(),
		Cache:    infra.Cache,
		Logger:   logger("attribution"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build sales attributor: %w", err)
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Artworks:   reg.Artworks(),
		Artists:    reg.Artists(),
		Counters:   counterSvc,
		Pricing:    services.NewPricingEngine(""),
		Attributor: attributor,
		Events:     infra.Events,
		Clock:      clock,
		Logger:     logger("orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	if len(infra.HealthChecks) > 0 {
		healthRepo, err := repositories.NewDependencyHealthRepository(infra.HealthChecks)
		if err != nil {
			return Services{}, fmt.Errorf("build health repository: %w", err)
		}
		build := infra.Build
		if build.Environment == "" {
			build.Environment = cfg.Security.Environment
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
