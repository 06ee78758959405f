package app

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/autopeer-io/carprober/pkg/log"
)

const configFlagName = "config"

// ReloadFunc is called after the watched config file changed and was re-read.
// It must only read from v; the options struct is not updated.
type ReloadFunc func(v *viper.Viper)

func envPrefix(basename string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(basename))
}

func (a *App) addConfigFlag(fs *pflag.FlagSet) {
	fs.StringVarP(&a.configFile, configFlagName, "c", a.configFile,
		fmt.Sprintf("Read configuration from the specified file. Supports JSON, TOML and YAML. "+
			"Environment variables prefixed with %s_ override it.", envPrefix(a.basename)))
}

// loadConfig merges, in increasing precedence, the config file, environment
// and explicitly set flags into the options.
func (a *App) loadConfig(cmd *cobra.Command) error {
	v := a.viper
	v.SetEnvPrefix(envPrefix(a.basename))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if a.configFile != "" {
		v.SetConfigFile(a.configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read configuration file %q: %w", a.configFile, err)
		}
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if a.options == nil {
		return nil
	}
	if err := v.Unmarshal(a.options); err != nil {
		return fmt.Errorf("failed to decode configuration: %w", err)
	}
	return nil
}

// watchConfig re-reads the config file on change and runs the reload hook.
func (a *App) watchConfig() {
	if a.configFile == "" || a.reload == nil {
		return
	}

	a.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed", "name", e.Name, "op", e.Op.String())
		a.reload(a.viper)
	})
	a.viper.WatchConfig()
}
