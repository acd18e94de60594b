package cmd

import (
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Проверить доступность сервера",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := app.CheckConnection(cmd.Context()); err != nil {
			return err
		}
		success("Сервер %s доступен", cfg.Server)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
