package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	queueEntity   string
	queueRecordID string
	queueData     string
	queueDelete   bool
	queueForce    bool
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Локальная очередь изменений",
}

var queueAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Добавить изменение в очередь",
	Example: `  possync queue add --entity customers --data '{"fullName":"Ann","phone":"+100"}'
  possync queue add --entity products --id 5f1c... --delete`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := parseData(queueData)
		if err != nil {
			return err
		}

		change, err := app.Enqueue(cmd.Context(), queueEntity, queueRecordID, data, queueDelete)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(change)
		}
		success("%s/%s добавлено в очередь (#%d)", change.EntityName, change.RecordID, change.Seq)
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "Показать изменения в очереди",
	RunE: func(cmd *cobra.Command, _ []string) error {
		pending, err := app.Pending(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(pending)
		}
		if len(pending) == 0 {
			fmt.Println("Очередь пуста")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, header("#\tENTITY\tRECORD\tUPDATED\tDELETED\tATTEMPTS\tLAST ERROR"))
		for _, p := range pending {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%d\t%s\n",
				p.Seq, p.EntityName, p.RecordID, p.LocalUpdatedAt.Local().Format(time.DateTime),
				p.IsDeleted, p.Attempts, dimText(p.LastError))
		}
		return w.Flush()
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Удалить все изменения из очереди",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !queueForce {
			return fmt.Errorf("неотправленные изменения будут потеряны, повторите с --force")
		}

		n, err := app.ClearQueue(cmd.Context())
		if err != nil {
			return err
		}
		success("Удалено изменений: %d", n)
		return nil
	},
}

func init() {
	queueAddCmd.Flags().StringVar(&queueEntity, "entity", "", "имя сущности")
	queueAddCmd.Flags().StringVar(&queueRecordID, "id", "", "идентификатор записи (по умолчанию новый UUID)")
	queueAddCmd.Flags().StringVar(&queueData, "data", "", "данные записи (JSON)")
	queueAddCmd.Flags().BoolVar(&queueDelete, "delete", false, "пометить запись удаленной")
	_ = queueAddCmd.MarkFlagRequired("entity")

	queueClearCmd.Flags().BoolVar(&queueForce, "force", false, "подтвердить очистку")

	queueCmd.AddCommand(queueAddCmd, queueListCmd, queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}
