// Copyright 2025 LayerBD Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "layerbd",
	Short: "LayerBD - layered block volumes over an object store",
	Long: `LayerBD shards block volumes into fixed-size objects stored in an
object store. Clone volumes overlay a parent: objects never written
locally are read through to the parent and can be materialized on
demand.`,
	PersistentPreRun: loadConfig,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config_dir", ".", "Directory for configuration files")
}

// loadConfig wires viper to the optional layerbd.yaml in config_dir.
// Every flag can also come from the environment as LAYERBD_<FLAG>.
func loadConfig(cmd *cobra.Command, args []string) {
	dir, _ := cmd.Flags().GetString("config_dir")
	viper.SetConfigName("layerbd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(dir)
	viper.SetEnvPrefix("layerbd")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn().Err(err).Msg("Failed to read configuration file")
		}
	}
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
