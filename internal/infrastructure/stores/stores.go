// Package stores opens the configured persistence backend.
package stores

import (
	"context"
	"fmt"

	"github.com/wms-platform/verification-service/internal/config"
	"github.com/wms-platform/verification-service/internal/domain"
	mongoRepo "github.com/wms-platform/verification-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/verification-service/internal/infrastructure/postgres"
	"github.com/wms-platform/verification-service/pkg/cloudevents"
	pkgmongo "github.com/wms-platform/verification-service/pkg/mongodb"
	"github.com/wms-platform/verification-service/pkg/outbox"
)

// PlanStore is a plan repository that also accepts new plans
type PlanStore interface {
	domain.PlanRepository
	ImportPlan(ctx context.Context, plan *domain.Plan) error
}

// StaffStore is a staff directory that also accepts new members
type StaffStore interface {
	domain.StaffDirectory
	UpsertStaff(ctx context.Context, staff domain.Staff) error
}

// Stores groups the repositories of one backend
type Stores struct {
	Backend string
	Plans   PlanStore
	Staff   StaffStore
	Outbox  outbox.Repository

	health func(ctx context.Context) error
	close  func(ctx context.Context) error
}

// HealthCheck pings the backend
func (s *Stores) HealthCheck(ctx context.Context) error {
	return s.health(ctx)
}

// Close releases the backend connection
func (s *Stores) Close(ctx context.Context) error {
	return s.close(ctx)
}

// Open connects to the backend named by cfg.StoreBackend and prepares its
// indexes or schema.
func Open(ctx context.Context, cfg *config.Config, eventFactory *cloudevents.EventFactory) (*Stores, error) {
	switch cfg.StoreBackend {
	case config.BackendMongoDB:
		return openMongo(ctx, cfg, eventFactory)
	case config.BackendPostgres:
		return openPostgres(ctx, cfg, eventFactory)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func openMongo(ctx context.Context, cfg *config.Config, eventFactory *cloudevents.EventFactory) (*Stores, error) {
	client, err := pkgmongo.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		return nil, err
	}

	plans := mongoRepo.NewPlanRepository(client.Database(), eventFactory)
	if err := plans.EnsureIndexes(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, err
	}

	return &Stores{
		Backend: config.BackendMongoDB,
		Plans:   plans,
		Staff:   mongoRepo.NewStaffRepository(client.Database()),
		Outbox:  plans.OutboxRepository(),
		health:  client.HealthCheck,
		close:   client.Close,
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, eventFactory *cloudevents.EventFactory) (*Stores, error) {
	db, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Stores{
		Backend: config.BackendPostgres,
		Plans:   postgres.NewPlanRepository(db, eventFactory),
		Staff:   postgres.NewStaffRepository(db),
		Outbox:  postgres.NewOutboxRepository(db),
		health:  db.PingContext,
		close:   func(context.Context) error { return db.Close() },
	}, nil
}
