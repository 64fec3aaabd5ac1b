package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paygo/internal/clock"
	"github.com/smallbiznis/paygo/internal/migration"
	"github.com/smallbiznis/paygo/internal/observability"
	"github.com/smallbiznis/paygo/internal/server"
	"github.com/smallbiznis/paygo/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
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
