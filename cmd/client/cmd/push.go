package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Отправить очередь на сервер",
	Long: `Отправляет очередь пакетами по 50 записей.
Записи с конфликтом или ошибкой остаются в очереди. Конфликт разрешается
командой resolve.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		start := time.Now()

		report, err := app.Push(cmd.Context())
		if report != nil && jsonOutput {
			if perr := printJSON(report); perr != nil {
				return perr
			}
		}
		if err != nil {
			return err
		}
		if jsonOutput {
			return nil
		}

		if report.Batches == 0 {
			fmt.Println("Очередь пуста")
			return nil
		}

		success("Отправлено пакетов: %d, принято записей: %d (%v)",
			report.Batches, report.Synced, time.Since(start).Round(time.Millisecond))

		for _, c := range report.Conflicts {
			warning("конфликт %s/%s: версия сервера от %s (sync_version %d)",
				c.EntityName, c.RecordID, c.ServerUpdatedAt.Local().Format(time.DateTime), c.ServerSyncVersion)
		}
		for _, e := range report.Errors {
			warning("ошибка %s/%s: %s", e.EntityName, e.RecordID, e.Error)
		}
		if len(report.Conflicts) > 0 {
			fmt.Println(dimText("Разрешите конфликты: possync resolve --entity <name> --id <record> --resolution accept_server|accept_client"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)
}
