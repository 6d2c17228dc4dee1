package apply

import (
	"github.com/smallbiznis/switchboard/internal/apply/lock"
	"github.com/smallbiznis/switchboard/internal/apply/repository"
	"github.com/smallbiznis/switchboard/internal/apply/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apply.service",
	fx.Provide(lock.New),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
