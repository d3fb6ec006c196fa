// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"

	"nexus-promotion/internal/pkg/logger"
	"nexus-promotion/internal/pkg/nacos"
	"nexus-promotion/internal/pkg/tracing"
	"nexus-promotion/internal/pkg/utils"
)

type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Client // 未配置 Nacos 时为 nil
	Config *Config
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx)             // 一个函数，允许每个服务注册自己独特的 HTTP 路由
	Cleanup          func(ctx context.Context) error // 关停时最后执行，用于关闭数据库、消息队列等连接
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	cfg := GetCurrentConfig()
	logger.Init(info.ServiceName, cfg.App.LogLevel)

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// 2. 服务注册（可选）
	var (
		namingClient *nacos.Client
		ip           string
	)
	if cfg.Infra.Nacos.ServerAddrs != "" {
		namingClient, ip = registerService(cfg.Infra.Nacos, info)
	}

	// 3. 创建并启动 HTTP Server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Nacos: namingClient, Config: cfg})
	}
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zlog.Info().Str("service", info.ServiceName).Int("port", info.Port).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Str("addr", server.Addr).Msg("could not listen")
		}
	}()

	// 4. 优雅关停：阻塞直到接收到退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Str("service", info.ServiceName).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 按启动的逆序清理
	// a. 先从注册中心摘除，不再接收新流量
	if namingClient != nil {
		if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			zlog.Error().Err(err).Msg("error deregistering from nacos")
		}
	}
	if nacosConfigClient != nil {
		nacosConfigClient.Close()
	}

	// b. 关闭 HTTP 服务器，等待处理中的请求结束
	if err := server.Shutdown(ctx); err != nil {
		zlog.Error().Err(err).Msg("error shutting down http server")
	}

	// c. 关闭业务依赖
	if info.Cleanup != nil {
		if err := info.Cleanup(ctx); err != nil {
			zlog.Error().Err(err).Msg("error during cleanup")
		}
	}

	// d. 关闭 Tracer Provider，确保所有缓冲的 trace 都被发送出去
	if err := tp.Shutdown(ctx); err != nil {
		zlog.Error().Err(err).Msg("error shutting down tracer provider")
	}

	zlog.Info().Str("service", info.ServiceName).Msg("gracefully shut down")
}

func registerService(nc NacosConfig, info AppInfo) (*nacos.Client, string) {
	serverConfigs, err := nacos.ParseServerConfigs(nc.ServerAddrs)
	if err != nil {
		zlog.Fatal().Err(err).Msg("invalid nacos server address format")
	}
	clientConfig := nacos.NewClientConfig(nc.Namespace)
	namingClient, err := nacos.NewNacosClientWithConfigs(serverConfigs, &clientConfig, nc.Group)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to initialize nacos client")
	}

	ip, err := utils.GetOutboundIP()
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to get outbound IP address")
	}
	if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		zlog.Fatal().Err(err).Msg("failed to register service with nacos")
	}
	return namingClient, ip
}
