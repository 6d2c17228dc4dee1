package resource

import (
	"github.com/smallbiznis/switchboard/internal/resource/repository"
	"github.com/smallbiznis/switchboard/internal/resource/service"
	"go.uber.org/fx"
)

var Module = fx.Module("resource.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
