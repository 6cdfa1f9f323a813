package rollout

import (
	"github.com/haulboard/gatehouse/internal/rollout/repository"
	"github.com/haulboard/gatehouse/internal/rollout/service"
	"go.uber.org/fx"
)

var Module = fx.Module("rollout.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
