/*
Copyright © 2024 Dean
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"shelf/src/infrastructure/log"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shelf",
	Short: "Bookmark search service",
	Long: `shelf serves hybrid semantic and keyword search over saved bookmarks,
caching query embeddings so repeated searches skip the embedding provider.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return log.Setup(viper.GetBool("log.development"), viper.GetString("log.level"))
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./shelf.yaml)")

	settingDefaultConfig()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("shelf")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			log.Error(err, "Failed to read config file")
			os.Exit(1)
		}
		return
	}
	log.Info("Using config file", "path", viper.ConfigFileUsed())
}
