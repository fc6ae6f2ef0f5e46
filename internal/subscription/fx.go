package subscription

import (
	"github.com/gitwallet/market/internal/subscription/repository"
	"github.com/gitwallet/market/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
