package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/gitwallet/market/internal/clock"
	"github.com/gitwallet/market/internal/config"
	"github.com/gitwallet/market/internal/migration"
	"github.com/gitwallet/market/internal/observability"
	"github.com/gitwallet/market/internal/server"
	"github.com/gitwallet/market/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
