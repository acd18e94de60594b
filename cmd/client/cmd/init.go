package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"possync/internal/app/client"
	"possync/internal/app/client/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Настроить устройство",
	Long: `Команда init записывает настройки устройства в ~/.possync/config.yaml:
адрес сервера, клиента, филиал, идентификатор устройства и токен доступа.
Затем проверяется соединение с сервером.`,
	Annotations: map[string]string{skipAppAnnotation: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		reader := bufio.NewReader(os.Stdin)

		fmt.Println(header("=== Настройка possync ==="))
		fmt.Println()

		next := *cfg
		var err error
		if next.Server, err = prompt(reader, "Адрес сервера", cfg.Server); err != nil {
			return err
		}
		if next.ClientID, err = prompt(reader, "Клиент (client_id)", cfg.ClientID); err != nil {
			return err
		}
		if next.BranchID, err = prompt(reader, "Филиал (branch_id)", cfg.BranchID); err != nil {
			return err
		}

		deviceID := cfg.DeviceID
		if deviceID == "" {
			deviceID = uuid.NewString()
		}
		if next.DeviceID, err = prompt(reader, "Устройство (device_id)", deviceID); err != nil {
			return err
		}

		token, err := promptSecret(reader, "Токен доступа (пусто - оставить текущий)")
		if err != nil {
			return err
		}
		if token != "" {
			next.Token = token
		}

		if err := next.ValidateTenant(); err != nil {
			return err
		}

		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.Save(&next, path); err != nil {
			return err
		}
		success("Настройки сохранены в %s", path)

		fmt.Println("Проверка соединения с сервером...")
		if err := client.NewHTTPClient(&next, log).HealthCheck(cmd.Context()); err != nil {
			warning("не удалось подключиться к серверу: %v", err)
			fmt.Println("Изменения будут копиться в очереди до появления связи.")
			return nil
		}
		success("Соединение с сервером установлено")
		return nil
	},
}

func prompt(reader *bufio.Reader, label, def string) (string, error) {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}

	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("ошибка чтения ввода: %w", err)
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

// promptSecret читает значение без эха, если ввод идет с терминала
func promptSecret(reader *bufio.Reader, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return prompt(reader, label, "")
	}

	fmt.Printf("%s: ", label)
	secret, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("ошибка чтения токена: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}

func init() {
	rootCmd.AddCommand(initCmd)
}
