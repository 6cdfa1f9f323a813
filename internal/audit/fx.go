package audit

import (
	"github.com/haulboard/gatehouse/internal/audit/repository"
	"github.com/haulboard/gatehouse/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
