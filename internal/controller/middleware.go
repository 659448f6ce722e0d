package controller

import (
	"log/slog"
	"net/http"

	"github.com/groovesync/server/pkg/ctxlogger"
)

func (c controller) requestIdMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = ctxlogger.AppendCtx(ctx, slog.String("request_id", c.generator.GenerateRandomString(12)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
