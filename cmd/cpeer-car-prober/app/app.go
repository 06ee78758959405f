package app

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/automaxprocs/maxprocs"
	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/carprober/cmd/cpeer-car-prober/app/options"
	"github.com/autopeer-io/carprober/pkg/app"
	"github.com/autopeer-io/carprober/pkg/log"
)

const (
	commandName = "cpeer-car-prober"
	commandDesc = `The car prober finds the head-unit proxy on the local machine, logs in
with the matching brand certificate and keeps the connection alive. The
connection state is served over HTTP and gRPC health and, when a broker is
configured, published over MQTT.`
)

func NewApp() *app.App {
	opts := options.NewCarProberOptions()
	application := app.NewApp(
		commandName,
		"Launch the Autopeer car prober",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithCommands(newScanCommand(opts)),
		app.WithConfigReload(reload),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.CarProberOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)

		// Respect the container CPU quota.
		if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
			log.Info(fmt.Sprintf(format, args...))
		})); err != nil {
			log.Warn("Failed to set GOMAXPROCS", "error", err)
		}

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent()
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		return agent.Run(ctx)
	}
}

// reload applies the settings that can change without a restart.
func reload(v *viper.Viper) {
	level := v.GetString("log.level")
	log.SetLevel(level)
	log.Info("Log level reloaded", "level", level)
}
