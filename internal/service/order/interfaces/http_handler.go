// internal/service/order/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/pkg/apperr"
	"orderflow/internal/service/order/application"
	"orderflow/internal/service/order/domain"
)

// HTTPHandler 暴露订单服务的同步入口：查询和发起取消。
type HTTPHandler struct {
	orc    *application.Orchestrator
	orders domain.OrderRepository
	tracer trace.Tracer
}

func NewHTTPHandler(orc *application.Orchestrator, orders domain.OrderRepository, tracer trace.Tracer) *HTTPHandler {
	return &HTTPHandler{orc: orc, orders: orders, tracer: tracer}
}

// RegisterRoutes 把处理器挂到服务的 mux 上。
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/order/cancel", h.handleCancel)
	mux.HandleFunc("/order/status", h.handleStatus)
}

func (h *HTTPHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "order.http.Cancel")
	defer span.End()

	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		http.Error(w, "orderId is required", http.StatusBadRequest)
		return
	}

	if err := h.orc.RequestCancellation(ctx, orderID); err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	// 202：取消被接受，补偿异步推进
	w.WriteHeader(http.StatusAccepted)
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "order.http.Status")
	defer span.End()

	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		http.Error(w, "orderId is required", http.StatusBadRequest)
		return
	}

	order, err := h.orders.Find(ctx, orderID)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"orderId":     order.ID,
		"state":       order.State,
		"totalAmount": order.TotalAmount,
		"currency":    order.Currency,
		"updatedAt":   order.UpdatedAt,
	})
}

// writeError 把稳定错误码映射为 HTTP 状态并输出标准错误体。
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrOrderNotFound) {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}

	code := apperr.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
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
