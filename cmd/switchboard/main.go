package main

import (
	"github.com/smallbiznis/switchboard/internal/allocator"
	"github.com/smallbiznis/switchboard/internal/apply"
	"github.com/smallbiznis/switchboard/internal/audit"
	"github.com/smallbiznis/switchboard/internal/clock"
	"github.com/smallbiznis/switchboard/internal/config"
	"github.com/smallbiznis/switchboard/internal/dialplan"
	"github.com/smallbiznis/switchboard/internal/migration"
	"github.com/smallbiznis/switchboard/internal/observability"
	"github.com/smallbiznis/switchboard/internal/reload"
	"github.com/smallbiznis/switchboard/internal/resource"
	"github.com/smallbiznis/switchboard/internal/server"
	"github.com/smallbiznis/switchboard/internal/tenant"
	"github.com/smallbiznis/switchboard/internal/user"
	"github.com/smallbiznis/switchboard/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		migration.Module,

		// Functional Domains
		audit.Module,
		tenant.Module,
		allocator.Module,
		resource.Module,
		user.Module,

		// Config generation and apply
		dialplan.Module,
		reload.Module,
		apply.Module,

		server.Module,
	)
	app.Run()
}
