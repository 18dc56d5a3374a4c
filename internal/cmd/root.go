package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/labelflow/internal/cmd/observability"
	"github.com/Iron-Ham/labelflow/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "labelflow",
	Short: "Guided superpixel labeling workflow",
	Long: `labelflow drives the guided labeling workflow of a training folder:
it synchronizes annotation categories, ranks predictions by certainty so the
least certain superpixels are reviewed first, saves labels and launches and
watches the superpixel classification job.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/labelflow/config.yaml)")
	rootCmd.PersistentFlags().String("folder", "", "training folder id (overrides folder.id)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("folder.id", rootCmd.PersistentFlags().Lookup("folder"))

	observability.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	// LABELFLOW_GIRDER_TOKEN overrides girder.token
	config.BindEnv()

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
