// internal/service/payment/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/pkg/apperr"
	"orderflow/internal/service/payment/application"
)

// HTTPHandler 暴露支付服务的同步入口：
// 结算服务的创建调用、客户端回调验证，以及网关的服务端 webhook。
type HTTPHandler struct {
	svc    *application.Service
	tracer trace.Tracer
}

func NewHTTPHandler(svc *application.Service, tracer trace.Tracer) *HTTPHandler {
	return &HTTPHandler{svc: svc, tracer: tracer}
}

// RegisterRoutes 把处理器挂到服务的 mux 上。
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/payment/create", h.handleCreate)
	mux.HandleFunc("/payment/verify", h.handleVerify)
	mux.HandleFunc("/payment/webhook", h.handleWebhook)
}

func (h *HTTPHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "payment.http.Create")
	defer span.End()

	orderID := r.URL.Query().Get("orderId")
	currency := r.URL.Query().Get("currency")
	amount, err := strconv.ParseInt(r.URL.Query().Get("amount"), 10, 64)
	if err != nil || orderID == "" || amount <= 0 {
		http.Error(w, "orderId and positive numeric amount are required", http.StatusBadRequest)
		return
	}
	if currency == "" {
		currency = "INR"
	}

	gatewayOrderID, err := h.svc.CreateOrder(ctx, orderID, amount, currency)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"gatewayOrderId": gatewayOrderID})
}

func (h *HTTPHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "payment.http.Verify")
	defer span.End()

	var req struct {
		GatewayOrderID   string `json:"gatewayOrderId"`
		GatewayPaymentID string `json:"gatewayPaymentId"`
		Signature        string `json:"signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GatewayOrderID == "" {
		http.Error(w, "gatewayOrderId, gatewayPaymentId and signature are required", http.StatusBadRequest)
		return
	}

	if err := h.svc.VerifyClientCallback(ctx, req.GatewayOrderID, req.GatewayPaymentID, req.Signature); err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleWebhook 处理网关的服务端通知。
// 签名通过之后一律回 200：处理失败由对账任务兜底，
// 反复 5xx 只会让网关无意义地重试。签名不匹配回 401。
func (h *HTTPHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "payment.http.Webhook")
	defer span.End()

	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	err = h.svc.HandleWebhook(ctx, raw, r.Header.Get("X-Webhook-Signature"))
	if err != nil {
		span.RecordError(err)
		if apperr.CodeOf(err) == apperr.CodePaymentVerifyFailed {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}
		log.Error().Err(err).Msg("webhook processing failed, relying on reconciliation")
	}
	w.WriteHeader(http.StatusOK)
}

// writeError 把稳定错误码映射为 HTTP 状态并输出标准错误体。
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case apperr.CodePaymentVerifyFailed:
		status = http.StatusUnauthorized
	case apperr.CodeDuplicateRequest:
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
