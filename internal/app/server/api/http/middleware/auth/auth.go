package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"golang.org/x/exp/slog"
)

// Auth проверяет bearer-токен устройства и определяет клиента, которому он выдан
type Auth struct {
	api    huma.API
	tokens map[string]string
	log    *slog.Logger
}

// New создает middleware. Пустой список токенов отключает проверку.
func New(api huma.API, tokens map[string]string, log *slog.Logger) *Auth {
	return &Auth{
		api:    api,
		tokens: tokens,
		log:    log.With("component", "auth_middleware"),
	}
}

type contextKey string

const ClientIDKey contextKey = "clientID"

// Enabled сообщает, настроены ли токены
func (a *Auth) Enabled() bool {
	return len(a.tokens) > 0
}

// Middleware возвращает middleware для Huma с сигнатурой func(ctx Context, next func(Context))
func (a *Auth) Middleware() func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if !a.Enabled() {
			next(ctx)
			return
		}

		header := ctx.Header("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			a.log.Warn("Missing bearer token", "path", ctx.URL().Path, "remote_addr", ctx.RemoteAddr())
			a.unauthorized(ctx)
			return
		}

		clientID, ok := a.tokens[token]
		if !ok {
			a.log.Warn("Unknown bearer token", "path", ctx.URL().Path, "remote_addr", ctx.RemoteAddr())
			a.unauthorized(ctx)
			return
		}

		newCtx := context.WithValue(ctx.Context(), ClientIDKey, clientID)
		next(huma.WithContext(ctx, newCtx))
	}
}

func (a *Auth) unauthorized(ctx huma.Context) {
	ctx.SetHeader("WWW-Authenticate", "Bearer")
	if err := huma.WriteErr(a.api, ctx, http.StatusUnauthorized, "Unauthorized"); err != nil {
		a.log.Error("Failed to write auth error", "error", err)
	}
}

// ClientID возвращает клиента, которому выдан токен запроса
func ClientID(ctx context.Context) (string, bool) {
	clientID, ok := ctx.Value(ClientIDKey).(string)
	return clientID, ok
}
