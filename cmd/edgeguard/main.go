package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edgeguard/configs"
	"edgeguard/internal/gateway"
	"edgeguard/internal/hostpolicy"
	"edgeguard/internal/middleware"
)

func main() {
	// 加载配置
	config, err := configs.LoadConfig()
	if err != nil {
		log.Fatalf("无法加载配置: %v", err)
	}

	logFiles, err := setupLogger(config.Log)
	if err != nil {
		log.Fatalf("无法初始化日志: %v", err)
	}
	defer func() {
		for _, f := range logFiles {
			f.Close()
		}
	}()

	// 加载主机策略表，之后只读
	source, err := hostpolicy.NewSourceFactory(config.Hosts)
	if err != nil {
		slog.Error("无法初始化主机策略来源", "error", err)
		os.Exit(1)
	}
	loadCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	table, err := source.Load(loadCtx)
	cancel()
	source.Close()
	if err != nil {
		slog.Error("无法加载主机策略表", "error", err)
		os.Exit(1)
	}
	slog.Info("主机策略表已加载", "entries", len(table))

	router, err := gateway.NewRouter(&config, table, gateway.NewHTTPFetcher(nil), middleware.GlobalPipelineMetrics)
	if err != nil {
		slog.Error("无法创建网关路由", "error", err)
		os.Exit(1)
	}

	addr := ":" + config.Server.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           newSiteHandler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var healthServer *http.Server
	if config.Server.HealthPort != "" {
		healthServer = &http.Server{
			Addr:              ":" + config.Server.HealthPort,
			Handler:           newHealthHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("健康检查端口开始监听", "addr", healthServer.Addr)
			if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("健康检查端口启动失败", "error", err)
				stop()
			}
		}()
	}

	go func() {
		slog.Info("edgeguard 开始启动", "addr", addr, "backend", config.BackendURL)
		var serveErr error
		if config.Server.TLSCertPath != "" && config.Server.TLSKeyPath != "" {
			serveErr = server.ListenAndServeTLS(config.Server.TLSCertPath, config.Server.TLSKeyPath)
		} else {
			serveErr = server.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("无法启动服务器", "error", serveErr)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("正在关闭服务器...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("关闭服务器失败", "error", err)
	}
	if healthServer != nil {
		healthServer.Shutdown(shutdownCtx)
	}

	middleware.GlobalPipelineMetrics.GetSnapshot().LogMetrics()
	middleware.LogSystemMetrics()
}

// newSiteHandler 组装站点端口的处理链。
// 顺序: Recovery -> RequestID -> Logging -> Router
// 站点端口不拦截任何路径，/healthz 也按主机策略跳转或转发给源站。
func newSiteHandler(router http.Handler) http.Handler {
	return middleware.Recovery(middleware.RequestID(middleware.Logging(router)))
}

// newHealthHandler 返回健康检查端口的处理器，只响应 /healthz。
func newHealthHandler() http.Handler {
	return middleware.HealthCheck(http.NotFoundHandler())
}

// setupLogger 根据配置初始化全局 slog 日志记录器，返回需要在退出时关闭的日志文件。
func setupLogger(cfg configs.LogConfig) ([]*os.File, error) {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var writers []io.Writer
	var logFiles []*os.File
	for _, path := range cfg.OutputPaths {
		switch path {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				for _, opened := range logFiles {
					opened.Close()
				}
				return nil, err
			}
			writers = append(writers, f)
			logFiles = append(logFiles, f)
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	logger := slog.New(slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	slog.Info("日志系统初始化完成", "level", cfg.LogLevel, "outputs", cfg.OutputPaths)
	return logFiles, nil
}
