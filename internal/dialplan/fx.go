package dialplan

import "go.uber.org/fx"

var Module = fx.Module("dialplan",
	fx.Provide(NewDefaultGenerator),
	fx.Provide(NewLoader),
)
