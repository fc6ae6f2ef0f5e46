package organization

import (
	"github.com/gitwallet/market/internal/organization/repository"
	"github.com/gitwallet/market/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
