// internal/service/promotion/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"nexus-promotion/internal/pkg/logger"
	"nexus-promotion/internal/pkg/tracing"
	"nexus-promotion/internal/service/promotion/application"
	"nexus-promotion/internal/service/promotion/domain"
)

// maxBodyBytes 限制请求体大小，购物车再大也不会超过 1MB
const maxBodyBytes = 1 << 20

// PromotionHandler 封装了 promotion 服务的 HTTP 处理器
type PromotionHandler struct {
	service *application.PromotionService
	timeout time.Duration
}

// NewPromotionHandler 创建一个新的 HTTP 处理器实例。timeout 为 0 时不额外限制处理时间。
func NewPromotionHandler(service *application.PromotionService, timeout time.Duration) *PromotionHandler {
	return &PromotionHandler{service: service, timeout: timeout}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *PromotionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/promotions/evaluate", h.handleEvaluate)
	mux.HandleFunc("/experiments/assign", h.handleAssign)
	mux.HandleFunc("/experiments/exposure", h.handleExposure)
	mux.HandleFunc("/experiments/conversion", h.handleConversion)
	mux.HandleFunc("/healthz", h.handleHealthz)
}

func (h *PromotionHandler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer cancel()

	var req application.EvaluateCartRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.EvaluateCart(ctx, &req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PromotionHandler) handleAssign(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer cancel()

	var req application.AssignVariantRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.AssignVariant(ctx, &req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PromotionHandler) handleExposure(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer cancel()

	var req application.RecordExposureRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.RecordExposure(ctx, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"success": true})
}

func (h *PromotionHandler) handleConversion(w http.ResponseWriter, r *http.Request) {
	ctx, cancel, ok := h.begin(w, r)
	if !ok {
		return
	}
	defer cancel()

	var req application.RecordConversionRequest
	if !decode(w, r, &req) {
		return
	}
	resp, err := h.service.RecordConversion(ctx, &req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *PromotionHandler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// begin 只接受 POST，提取上游的追踪上下文，并为请求附加超时和带 trace_id 的 logger
func (h *PromotionHandler) begin(w http.ResponseWriter, r *http.Request) (context.Context, context.CancelFunc, bool) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, nil, false
	}
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx = logger.WithTraceID(ctx)
	var cancel context.CancelFunc
	if h.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	return ctx, cancel, true
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError 根据错误类型返回不同的 HTTP 状态码，并带上 X-Trace-Id 方便排查
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrOfferNotFound),
		errors.Is(err, domain.ErrExperimentNotFound),
		errors.Is(err, domain.ErrAssignmentNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrAssignmentConflict):
		statusCode = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		statusCode = http.StatusGatewayTimeout
	default:
		statusCode = http.StatusInternalServerError // 其他未知错误
	}
	if traceID := tracing.GetTraceIDFromContext(ctx); traceID != "" {
		w.Header().Set("X-Trace-Id", traceID)
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Ctx(ctx).Error().Err(err).Int("status", statusCode).Msg("request failed")
	}
	http.Error(w, err.Error(), statusCode)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
