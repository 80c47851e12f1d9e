package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery 是一个中间件，用于从 panic 中恢复，防止服务器崩溃
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				// ReverseProxy 在客户端提前断开时会以 http.ErrAbortHandler 中止，
				// 这不是服务端错误，而且响应头可能已经写出，所以直接重新抛出交给 net/http 处理。
				if err == http.ErrAbortHandler {
					panic(err)
				}

				slog.Error("panic recovered",
					"error", err,
					"path", r.URL.Path,
					"request_id", GetRequestID(r),
					"stack", string(debug.Stack()),
				)
				// 向客户端返回一个通用的 500 错误
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
