package auth

import (
	"github.com/gitwallet/market/internal/auth/service"
	"github.com/gitwallet/market/internal/auth/session"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(service.New),
	fx.Provide(session.NewManager),
)
