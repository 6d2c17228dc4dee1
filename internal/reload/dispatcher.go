package reload

import (
	"context"
	"time"

	"github.com/smallbiznis/switchboard/internal/config"
	"github.com/smallbiznis/switchboard/internal/observability/logger"
	"github.com/smallbiznis/switchboard/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Telephony *config.TelephonyConfigHolder
	Log       *zap.Logger
	Metrics   *metrics.Metrics `optional:"true"`
}

// Dispatcher picks the transport from the current telephony config on every
// call, so a config reload switches transports without a restart.
type Dispatcher struct {
	telephony *config.TelephonyConfigHolder
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func NewDispatcher(p Params) Reloader {
	return &Dispatcher{
		telephony: p.Telephony,
		log:       p.Log.Named("reload"),
		metrics:   p.Metrics,
	}
}

func (d *Dispatcher) Reload(ctx context.Context, target string) Result {
	cfg := d.telephony.Get().Reload

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	start := time.Now()
	res := Transport(cfg).Reload(ctx, target)
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}

	d.metrics.ObserveReload(target, res.OK, res.Duration)
	fields := []zap.Field{
		zap.String("mode", cfg.Mode),
		zap.String("target", res.Target),
		zap.String("command", res.Command),
		zap.Bool("ok", res.OK),
		zap.Duration("duration", res.Duration),
	}
	log := logger.WithContext(ctx, d.log)
	if res.OK {
		log.Info("reload.result", fields...)
	} else {
		log.Warn("reload.result", append(fields, zap.String("detail", res.Detail))...)
	}
	return res
}

// Transport builds the reloader for a reload mode.
func Transport(cfg config.ReloadConfig) Reloader {
	switch cfg.Mode {
	case config.ReloadModeCLI:
		return NewCLIRunner(cfg.CLI.Binary)
	case config.ReloadModeNoop:
		return Noop{}
	default:
		return NewAMIClient(cfg.AMI.Host, cfg.AMI.Port, cfg.AMI.Username, cfg.AMI.Secret)
	}
}
