package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type logFieldsKey struct{}

// logFields 收集处理过程中产生的字段（主机分类、CSP 处理结果等），
// 在请求结束时一并写入访问日志。
type logFields struct {
	mu   sync.Mutex
	args []any
}

// AddLogFields 为当前请求的访问日志追加键值对，参数格式与 slog 相同。
// 不在 Logging 中间件之内时什么也不做。
func AddLogFields(ctx context.Context, args ...any) {
	f, ok := ctx.Value(logFieldsKey{}).(*logFields)
	if !ok {
		return
	}
	f.mu.Lock()
	f.args = append(f.args, args...)
	f.mu.Unlock()
}

// responseWriter 是一个捕获状态码和响应字节数的自定义 ResponseWriter。
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	// 默认状态码为 200 OK
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader 捕获状态码
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(p []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(p)
	rw.written += int64(n)
	return n, err
}

// Unwrap 让 http.ResponseController 能找到底层的 Flusher，
// 流式改写的响应依赖它把数据及时推给客户端。
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// getClientIP 获取客户端 IP 地址。
// 它会优先检查 X-Forwarded-For 头部，如果不存在则回退到 RemoteAddr。
func getClientIP(r *http.Request) string {
	// 检查 X-Forwarded-For 头部，通常由代理服务器设置
	forwardedFor := r.Header.Get("X-Forwarded-For")
	if forwardedFor != "" {
		// X-Forwarded-For 可能包含多个 IP 地址，通常第一个是真实的客户端 IP
		ips := strings.Split(forwardedFor, ",")
		return strings.TrimSpace(ips[0])
	}

	// 如果没有 X-Forwarded-For，则使用 RemoteAddr
	// RemoteAddr 的格式可能是 "ip:port"，我们需要分离出 IP
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// 如果解析失败（例如没有端口），则假定 RemoteAddr 就是 IP
		return r.RemoteAddr
	}
	return ip
}

// Logging 是一个中间件，用于记录 HTTP 请求的信息
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := newResponseWriter(w)
		fields := &logFields{}
		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), logFieldsKey{}, fields)))

		args := []any{
			"method", r.Method,
			"host", r.Host,
			"uri", r.RequestURI,
			"status", rw.statusCode,
			"bytes", rw.written,
			"duration", time.Since(start),
			"client_ip", getClientIP(r),
			"request_id", GetRequestID(r),
		}
		fields.mu.Lock()
		args = append(args, fields.args...)
		fields.mu.Unlock()

		slog.Info("http request", args...)
	})
}
