package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"possync/internal/domain/sync"
)

var (
	resolveEntity     string
	resolveRecordID   string
	resolveResolution string
	resolveData       string
	resolveDelete     bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Разрешить конфликт синхронизации",
	Long: `accept_server оставляет версию сервера, accept_client записывает данные из --data.
После разрешения изменения записи удаляются из локальной очереди.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := parseData(resolveData)
		if err != nil {
			return err
		}

		resolution := sync.Resolution(resolveResolution)
		if resolution == sync.ResolutionAcceptClient && data == nil {
			return fmt.Errorf("для accept_client нужен --data")
		}

		err = app.Resolve(cmd.Context(), sync.ResolveConflictRequest{
			EntityName: resolveEntity,
			RecordID:   resolveRecordID,
			Resolution: resolution,
			ClientData: data,
			IsDeleted:  resolveDelete,
		})
		if err != nil {
			return err
		}

		success("Конфликт %s/%s разрешен: %s", resolveEntity, resolveRecordID, resolution)
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveEntity, "entity", "", "имя сущности")
	resolveCmd.Flags().StringVar(&resolveRecordID, "id", "", "идентификатор записи")
	resolveCmd.Flags().StringVar(&resolveResolution, "resolution", string(sync.ResolutionAcceptServer), "accept_server или accept_client")
	resolveCmd.Flags().StringVar(&resolveData, "data", "", "данные устройства для accept_client (JSON)")
	resolveCmd.Flags().BoolVar(&resolveDelete, "delete", false, "accept_client: записать удаление")
	_ = resolveCmd.MarkFlagRequired("entity")
	_ = resolveCmd.MarkFlagRequired("id")

	rootCmd.AddCommand(resolveCmd)
}
