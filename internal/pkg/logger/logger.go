// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 配置全局 zerolog：时间格式、日志级别、service 字段。
// level 为空或无法解析时使用 info。
func Init(serviceName, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	zlog.Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx 返回 context 中的 logger；没有注入时退回全局 logger，而不是 zerolog 的 disabled logger。
func Ctx(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return &zlog.Logger
	}
	l := zerolog.Ctx(ctx)
	if l.GetLevel() == zerolog.Disabled {
		return &zlog.Logger
	}
	return l
}

// WithTraceID 把带有 trace_id 的 logger 放进 context，后续 Ctx(ctx) 打出的日志都能关联到链路。
func WithTraceID(ctx context.Context) context.Context {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ctx
	}
	l := Ctx(ctx).With().Str("trace_id", sc.TraceID().String()).Logger()
	return l.WithContext(ctx)
}
