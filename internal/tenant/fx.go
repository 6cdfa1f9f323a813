package tenant

import (
	"github.com/haulboard/gatehouse/internal/tenant/event"
	"github.com/haulboard/gatehouse/internal/tenant/repository"
	"github.com/haulboard/gatehouse/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(event.NewOutboxPublisher),
	fx.Provide(service.NewService),
)
