package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "Состояние синхронизации на сервере и на устройстве",
	RunE: func(cmd *cobra.Command, _ []string) error {
		local, err := app.Status(cmd.Context())
		if err != nil {
			return err
		}

		remote, err := app.Diagnostics(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(map[string]any{"local": local, "server": remote})
		}

		fmt.Println(header("Устройство"))
		fmt.Printf("  В очереди:          %d\n", local.Pending)
		fmt.Printf("  Строк с сервера:    %d\n", local.ServerRows)
		if local.Cursor.IsZero() {
			fmt.Printf("  Курсор:             %s\n", dimText("pull не выполнялся"))
		} else {
			fmt.Printf("  Курсор:             %s\n", local.Cursor.Local().Format(time.DateTime))
		}

		fmt.Println(header("Сервер"))
		fmt.Printf("  Журнал изменений:   %d\n", remote.PendingQueueCount)
		if remote.LastSyncAt != nil {
			fmt.Printf("  Последнее изменение: %s\n", remote.LastSyncAt.Local().Format(time.DateTime))
		}

		if len(remote.TablesStats) > 0 {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, header("  ENTITY\tROWS"))
			for _, s := range remote.TablesStats {
				fmt.Fprintf(w, "  %s\t%d\n", s.EntityName, s.RecordCount)
			}
			return w.Flush()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(diagnosticsCmd)
}
