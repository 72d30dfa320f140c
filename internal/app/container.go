// Package app assembles the service graph shared by the API server and crmctl.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/crm-service/internal/auth"
	"github.com/spec-kit/crm-service/internal/cache"
	"github.com/spec-kit/crm-service/internal/config"
	"github.com/spec-kit/crm-service/internal/events"
	"github.com/spec-kit/crm-service/internal/notify"
	"github.com/spec-kit/crm-service/internal/observability"
	"github.com/spec-kit/crm-service/internal/persistence"
	"github.com/spec-kit/crm-service/internal/repository"
	"github.com/spec-kit/crm-service/internal/service"
	"github.com/spec-kit/crm-service/internal/worker"
)

// Container holds connections, repositories and services.
type Container struct {
	Config     config.Config
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Postgres   *persistence.Postgres
	Redis      *persistence.Redis
	Cache      *cache.Cache
	Dispatcher events.Dispatcher
	Publisher  *events.AMQPPublisher

	Users repository.UserRepository
	Roles repository.RoleRepository

	Auth           *service.AuthService
	Leads          *service.LeadService
	Qualification  *service.QualificationService
	Clients        *service.ClientService
	Reconciliation *service.ReconciliationService
	Notifications  *service.NotificationService
}

// Options toggles the optional parts of the graph.
type Options struct {
	// Notify subscribes owner notifications and the broker forwarder.
	Notify bool
}

// New connects to Postgres and Redis and builds every service.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*Container, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	c := &Container{
		Config:     cfg,
		Logger:     logger,
		Metrics:    observability.NewMetrics("crm"),
		Postgres:   pg,
		Dispatcher: events.NewInMemoryDispatcher(logger),
	}

	if cfg.Cache.Enabled {
		c.Redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		c.Cache = cache.New(c.Redis.Client, cfg.Cache.Prefix, cfg.Cache.TTL(), logger)
	} else {
		logger.Info("read cache disabled")
	}

	pool := pg.PoolHandle()
	leadRepo := repository.NewLeadRepository(pool)
	historyRepo := repository.NewLeadHistoryRepository(pool)
	c.Users = repository.NewUserRepository(pool)
	c.Roles = repository.NewRoleRepository(pool)
	departments := repository.NewDepartmentRepository(pool)
	access := auth.NewRoleAccessFilter()

	c.Auth = service.NewAuthService(cfg, service.AuthDependencies{
		UserRepo: c.Users,
		RoleRepo: c.Roles,
		Cache:    c.Cache,
		Metrics:  c.Metrics,
		Logger:   logger,
	})
	c.Leads = service.NewLeadService(service.LeadDependencies{
		LeadRepo:    leadRepo,
		UserRepo:    c.Users,
		HistoryRepo: historyRepo,
		Access:      access,
		Cache:       c.Cache,
		Dispatcher:  c.Dispatcher,
		Metrics:     c.Metrics,
		Logger:      logger,
		PhoneRegion: cfg.Qualification.PhoneRegion,
	})
	c.Qualification = service.NewQualificationService(service.QualificationDependencies{
		LeadRepo:          leadRepo,
		UserRepo:          c.Users,
		HistoryRepo:       historyRepo,
		Access:            access,
		Roles:             service.NewDirectoryRoleResolver(departments, c.Roles),
		Credentials:       auth.NewOneTimePasswordIssuer(cfg.Auth.OneTimePasswordLength, cfg.Auth.BcryptCost),
		Cache:             c.Cache,
		Dispatcher:        c.Dispatcher,
		Metrics:           c.Metrics,
		Logger:            logger,
		DefaultDepartment: cfg.Qualification.DefaultDepartment,
	})
	c.Clients = service.NewClientService(service.ClientDependencies{
		UserRepo: c.Users,
		Access:   access,
		Cache:    c.Cache,
		Metrics:  c.Metrics,
		Logger:   logger,
	})
	c.Reconciliation = service.NewReconciliationService(service.ReconciliationDependencies{
		LeadRepo:    leadRepo,
		UserRepo:    c.Users,
		HistoryRepo: historyRepo,
		Cache:       c.Cache,
		Dispatcher:  c.Dispatcher,
		Metrics:     c.Metrics,
		Logger:      logger,
	})

	if opts.Notify {
		c.Notifications = service.NewNotificationService(service.NotificationDependencies{
			Dispatcher: c.Dispatcher,
			LeadRepo:   leadRepo,
			UserRepo:   c.Users,
			Mailer:     notify.NewMailer(cfg.Notification, logger),
			Logger:     logger,
		})
		worker.StartNotificationWorker(c.Notifications, logger)

		if cfg.Broker.URL != "" {
			publisher, err := events.DialAMQPPublisher(cfg.Broker.URL, cfg.Broker.Exchange)
			if err != nil {
				logger.Warn("event broker unavailable; events stay in process", zap.Error(err))
			} else {
				c.Publisher = publisher
				worker.StartEventForwarder(c.Dispatcher, publisher, logger)
				logger.Info("forwarding events to broker", zap.String("exchange", cfg.Broker.Exchange))
			}
		}
	}

	return c, nil
}

// Close releases connections.
func (c *Container) Close() {
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			c.Logger.Warn("close event publisher", zap.Error(err))
		}
	}
	c.Redis.Close()
	c.Postgres.Close()
}
