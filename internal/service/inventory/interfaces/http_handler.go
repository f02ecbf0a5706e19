// internal/service/inventory/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/pkg/apperr"
	"orderflow/internal/service/inventory/application"
)

// HTTPHandler 暴露库存台账的同步调用入口。
// 结算服务的预占/释放和管理端的绝对设置都走这里。
type HTTPHandler struct {
	svc    *application.Service
	tracer trace.Tracer
}

func NewHTTPHandler(svc *application.Service, tracer trace.Tracer) *HTTPHandler {
	return &HTTPHandler{svc: svc, tracer: tracer}
}

// RegisterRoutes 把处理器挂到服务的 mux 上。
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/inventory/reserve", h.handleReserve)
	mux.HandleFunc("/inventory/release", h.handleRelease)
	mux.HandleFunc("/inventory/update", h.handleUpdate)
}

func (h *HTTPHandler) handleReserve(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "inventory.http.Reserve")
	defer span.End()

	sku := r.URL.Query().Get("skuCode")
	orderID := r.URL.Query().Get("orderId")
	qty, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil || sku == "" || orderID == "" {
		http.Error(w, "skuCode, orderId and numeric quantity are required", http.StatusBadRequest)
		return
	}

	if err := h.svc.Reserve(ctx, sku, qty, orderID); err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HTTPHandler) handleRelease(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "inventory.http.Release")
	defer span.End()

	sku := r.URL.Query().Get("skuCode")
	orderID := r.URL.Query().Get("orderId")
	qty, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil || sku == "" || orderID == "" {
		http.Error(w, "skuCode, orderId and numeric quantity are required", http.StatusBadRequest)
		return
	}

	if err := h.svc.Release(ctx, sku, qty, orderID); err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HTTPHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "inventory.http.UpdateQuantity")
	defer span.End()

	sku := r.URL.Query().Get("skuCode")
	qty, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil || sku == "" {
		http.Error(w, "skuCode and numeric quantity are required", http.StatusBadRequest)
		return
	}

	if err := h.svc.UpdateQuantity(ctx, sku, qty); err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// writeError 把稳定错误码映射为 HTTP 状态并输出标准错误体。
// 内部错误细节不出网。
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeInsufficientStock:
		status = http.StatusUnprocessableEntity
	case apperr.CodeConcurrencyConflict, apperr.CodeDuplicateRequest:
		status = http.StatusConflict
	case apperr.CodeRateLimited:
		status = http.StatusTooManyRequests
	case apperr.CodeCircuitOpen:
		status = http.StatusServiceUnavailable
	case apperr.CodeTimeout:
		status = http.StatusGatewayTimeout
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	message := "internal error"
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	json.NewEncoder(w).Encode(map[string]string{
		"code":    string(code),
		"message": message,
	})
}
