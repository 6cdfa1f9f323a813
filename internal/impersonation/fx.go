package impersonation

import (
	"github.com/haulboard/gatehouse/internal/impersonation/repository"
	"github.com/haulboard/gatehouse/internal/impersonation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("impersonation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
