package githubapp

import (
	"github.com/gitwallet/market/internal/githubapp/repository"
	"github.com/gitwallet/market/internal/githubapp/service"
	"go.uber.org/fx"
)

var Module = fx.Module("githubapp.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
