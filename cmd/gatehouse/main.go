package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/haulboard/gatehouse/internal/clock"
	"github.com/haulboard/gatehouse/internal/migration"
	"github.com/haulboard/gatehouse/internal/observability"
	"github.com/haulboard/gatehouse/internal/server"
	"github.com/haulboard/gatehouse/pkg/db"
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
