package identity

import (
	"github.com/haulboard/gatehouse/internal/identity/repository"
	"github.com/haulboard/gatehouse/internal/identity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("identity.service",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
