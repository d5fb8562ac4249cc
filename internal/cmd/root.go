package cmd

import (
	"strings"

	"github.com/gauntlet-ci/gauntlet/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "gauntlet",
	Short: "Multi-phase workflow pipeline runner",
	Long: `Gauntlet drives registered subjects through a staged pipeline:
initialization, analysis, testing, quality gates, and deployment prep.
Each phase fans out to capability sub-tasks whose payloads, failures,
and metrics are folded into a single run record per subject.`,
}

// Execute runs the CLI and returns whatever error the invoked command did.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config file (default is $HOME/.config/gauntlet/config.yaml)")
	pf.String("state-dir", "", "state directory (default is $HOME/.local/share/gauntlet)")
	_ = viper.BindPFlag("config", pf.Lookup("config"))
	_ = viper.BindPFlag("paths.state_dir", pf.Lookup("state-dir"))
}

// initConfig wires viper before any subcommand runs: baked-in defaults
// first, then the config file, then GAUNTLET_* environment overrides.
func initConfig() {
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		for _, dir := range []string{config.ConfigDir(), "$HOME/.config/gauntlet", "."} {
			viper.AddConfigPath(dir)
		}
	}

	viper.SetEnvPrefix("GAUNTLET")
	// trigger.policy becomes GAUNTLET_TRIGGER_POLICY.
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine; defaults and env cover everything.
	_ = viper.ReadInConfig()
}
