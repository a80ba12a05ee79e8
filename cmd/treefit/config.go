package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/belle2/basf2-sub109/src/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved constraint configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
