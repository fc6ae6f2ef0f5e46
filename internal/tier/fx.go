package tier

import (
	"github.com/gitwallet/market/internal/tier/repository"
	"github.com/gitwallet/market/internal/tier/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tier.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
