package charge

import (
	"github.com/gitwallet/market/internal/charge/repository"
	"github.com/gitwallet/market/internal/charge/service"
	"go.uber.org/fx"
)

var Module = fx.Module("charge.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
