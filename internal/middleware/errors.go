package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse 定义了标准 JSON 错误响应格式。
type ErrorResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

// WriteJSONError 向客户端发送一个标准化的 JSON 错误响应。
// 它记录错误，然后写入一个包含机器可读错误码和人类可读错误信息的 JSON 对象。
func WriteJSONError(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)

	response := ErrorResponse{}
	response.Error.Code = errorCode
	response.Error.Message = message
	response.Error.RequestID = GetRequestID(r)

	// 记录带有更多上下文的错误
	slog.Error("HTTP error response sent",
		"method", r.Method,
		"host", r.Host,
		"path", r.URL.Path,
		"status", statusCode,
		"code", errorCode,
		"message", message,
		"request_id", response.Error.RequestID,
	)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.Error("Failed to encode JSON error response", "error", err)
	}
}

// LogError 记录与某个请求相关的错误，附带请求的基本信息。
func LogError(r *http.Request, msg string, args ...any) {
	attrs := append([]any{
		"method", r.Method,
		"host", r.Host,
		"path", r.URL.Path,
		"request_id", GetRequestID(r),
	}, args...)
	slog.Error(msg, attrs...)
}
