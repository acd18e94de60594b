package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	pullEntities []string
	pullFull     bool
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Получить изменения с сервера",
	Long: `Получает изменения после сохраненного курсора, пока сервер сообщает has_more.
Курсор сохраняется после каждой страницы, прерванный pull продолжится с нее.
С --full курсор сбрасывается и изменения читаются с начала.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		report, err := app.Pull(cmd.Context(), pullEntities, pullFull)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(report)
		}

		success("Получено изменений: %d, страниц: %d", report.Changes, report.Pages)
		if !report.Cursor.IsZero() {
			success("Курсор: %s", report.Cursor.Format(time.RFC3339Nano))
		}
		return nil
	},
}

func init() {
	pullCmd.Flags().StringSliceVar(&pullEntities, "entities", nil, "ограничить выборку сущностями (через запятую)")
	pullCmd.Flags().BoolVar(&pullFull, "full", false, "сбросить курсор и получить все изменения заново")
	rootCmd.AddCommand(pullCmd)
}
