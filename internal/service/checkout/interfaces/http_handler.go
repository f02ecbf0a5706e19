// internal/service/checkout/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/pkg/apperr"
	"orderflow/internal/service/checkout/application"
)

// HTTPHandler 暴露结算编排器的入口：发起结算和客户端支付回调。
type HTTPHandler struct {
	svc    *application.Service
	tracer trace.Tracer
}

func NewHTTPHandler(svc *application.Service, tracer trace.Tracer) *HTTPHandler {
	return &HTTPHandler{svc: svc, tracer: tracer}
}

// RegisterRoutes 把处理器挂到服务的 mux 上。
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/checkout/initiate", h.handleInitiate)
	mux.HandleFunc("/checkout/callback", h.handleCallback)
}

func (h *HTTPHandler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "checkout.http.Initiate")
	defer span.End()

	var req application.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	result, err := h.svc.InitiateCheckout(ctx, req)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *HTTPHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "checkout.http.Callback")
	defer span.End()

	var cb application.PaymentCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil || cb.GatewayOrderID == "" {
		http.Error(w, "gatewayOrderId, gatewayPaymentId and signature are required", http.StatusBadRequest)
		return
	}

	if err := h.svc.FinalizeOrder(ctx, cb); err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// writeError 把稳定错误码映射为 HTTP 状态并输出标准错误体。
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeSessionNotFound:
		status = http.StatusNotFound
	case apperr.CodeSessionExpired:
		status = http.StatusGone
	case apperr.CodeDuplicateRequest, apperr.CodeConcurrencyConflict:
		status = http.StatusConflict
	case apperr.CodeInsufficientStock:
		status = http.StatusUnprocessableEntity
	case apperr.CodePaymentVerifyFailed:
		status = http.StatusUnauthorized
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
