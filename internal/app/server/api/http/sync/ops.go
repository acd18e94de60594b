package sync

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

var bearer = []map[string][]string{{"bearer": {}}}

func (h *Handler) pushOp() huma.Operation {
	return huma.Operation{
		OperationID:   "sync-push",
		Method:        http.MethodPost,
		Path:          "/api/v1/sync/push",
		Summary:       "Отправить пакет изменений",
		Description:   "Применяет до 50 изменений устройства в одной транзакции и возвращает конфликты и ошибки по записям",
		Tags:          []string{"sync"},
		Security:      bearer,
		MaxBodyBytes:  8 << 20,
		DefaultStatus: http.StatusOK,
		Middlewares:   h.middleware,
	}
}

func (h *Handler) pullOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-pull",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync/pull",
		Summary:     "Получить изменения сервера",
		Description: "Возвращает страницу изменений клиента после указанного времени",
		Tags:        []string{"sync"},
		Security:    bearer,
		Middlewares: h.middleware,
	}
}

func (h *Handler) resolveConflictOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-resolve-conflict",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync/conflicts/resolve",
		Summary:     "Разрешить конфликт синхронизации",
		Description: "Оставляет серверную версию или записывает версию устройства",
		Tags:        []string{"sync"},
		Security:    bearer,
		Middlewares: h.middleware,
	}
}

func (h *Handler) diagnosticsOp() huma.Operation {
	return huma.Operation{
		OperationID: "sync-diagnostics",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/diagnostics",
		Summary:     "Диагностика синхронизации",
		Description: "Возвращает размер журнала изменений и число строк по сущностям",
		Tags:        []string{"sync"},
		Security:    bearer,
		Middlewares: h.middleware,
	}
}
