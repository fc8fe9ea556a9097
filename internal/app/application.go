package app

import (
	"context"
	"fmt"

	"github.com/strata-social/story_layer/internal/app/services/disclosure"
	engagementsvc "github.com/strata-social/story_layer/internal/app/services/engagement"
	quotasvc "github.com/strata-social/story_layer/internal/app/services/quota"
	storiessvc "github.com/strata-social/story_layer/internal/app/services/stories"
	"github.com/strata-social/story_layer/internal/app/storage"
	"github.com/strata-social/story_layer/internal/app/storage/memory"
	"github.com/strata-social/story_layer/internal/app/system"
	"github.com/strata-social/story_layer/internal/config"
	"github.com/strata-social/story_layer/internal/logging"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Stories    storage.StoryStore
	Engagement storage.EngagementStore
	Quota      storage.QuotaStore
	Follows    storage.FollowStore
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logging.Logger

	Stories    *storiessvc.Service
	Quota      *quotasvc.Service
	Engagement *engagementsvc.Service
	Disclosure *disclosure.Service
}

// New builds a fully initialised application with the provided stores.
func New(cfg *config.Config, stores Stores, log *logging.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.NewDefault("app")
	}

	mem := memory.New()
	if stores.Stories == nil {
		stores.Stories = mem
	}
	if stores.Engagement == nil {
		stores.Engagement = mem
	}
	if stores.Quota == nil {
		stores.Quota = mem
	}
	if stores.Follows == nil {
		stores.Follows = mem
	}

	manager := system.NewManager()

	quotaService := quotasvc.New(stores.Quota, cfg.Quota.Tiers, cfg.Quota.OverageCost, log)
	storyService := storiessvc.New(stores.Stories, stores.Follows, quotaService, cfg.Stories.TTL, log)
	engagementService := engagementsvc.New(stores.Engagement, storyService, log)
	disclosureService := disclosure.New(stores.Engagement, storyService, log)

	for _, name := range []string{"stories", "quota", "engagement"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	sweeper := storiessvc.NewExpirySweeper(stores.Stories, cfg.Stories.SweepInterval, log)
	retention := storiessvc.NewRetentionJob(stores.Stories, cfg.Stories.RetentionSchedule, cfg.Stories.RetentionWindow, log)
	for _, svc := range []system.Service{sweeper, retention} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:    manager,
		log:        log,
		Stories:    storyService,
		Quota:      quotaService,
		Engagement: engagementService,
		Disclosure: disclosureService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
