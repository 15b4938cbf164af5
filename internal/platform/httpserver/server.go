package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	paymentsettlement "atelier/contexts/commerce-core/payment-settlement-service"
	paymentdomainerrors "atelier/contexts/commerce-core/payment-settlement-service/domain/errors"
	paymenthttp "atelier/contexts/commerce-core/payment-settlement-service/transport/http"
	_ "atelier/internal/platform/httpserver/docs"

	httpSwagger "github.com/swaggo/http-swagger"
)

const signatureHeaderName = "Stripe-Signature"

// webhook bodies are small event JSON; cap reads well below any abuse size.
const maxWebhookBodyBytes = 1 << 20

type Server struct {
	mux      *http.ServeMux
	logger   *slog.Logger
	addr     string
	payments paymentsettlement.Module
}

func New(
	payments paymentsettlement.Module,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:      http.NewServeMux(),
		logger:   logger,
		addr:     addr,
		payments: payments,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /checkout-sessions", s.handleCreateCheckoutSession)
	s.mux.HandleFunc("POST /webhooks/payment", s.handlePaymentWebhook)
	s.mux.HandleFunc("GET /work-requests/{request_id}/settlement", s.handleGetSettlementStatus)
}

func (s *Server) handleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req paymenthttp.CreateCheckoutSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writePaymentError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.payments.Handler.CreateCheckoutSessionHandler(r.Context(), req)
	if err != nil {
		writePaymentDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		writePaymentError(w, http.StatusBadRequest, "invalid_body", "request body could not be read")
		return
	}

	// Authentication happens on the exact raw bytes before any other
	// processing; an unverified body is never parsed or acted on.
	event, err := s.payments.Verifier.Verify(rawBody, r.Header.Get(signatureHeaderName))
	if err != nil {
		s.logger.Warn("webhook signature rejected",
			"event", "payment_webhook_signature_rejected",
			"module", "internal/platform/httpserver",
			"layer", "platform",
		)
		writePaymentError(w, http.StatusBadRequest, "invalid_signature", "signature verification failed")
		return
	}

	resp, err := s.payments.Handler.PaymentWebhookHandler(r.Context(), event)
	if err != nil {
		// Only a canonical-side persistence failure reaches here; 500 makes
		// the provider redeliver.
		writePaymentDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSettlementStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("request_id")
	resp, err := s.payments.Handler.GetSettlementStatusHandler(r.Context(), requestID)
	if err != nil {
		writePaymentDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writePaymentDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, paymentdomainerrors.ErrPriceNotSet):
		writePaymentError(w, http.StatusBadRequest, "price_not_set", err.Error())
	case errors.Is(err, paymentdomainerrors.ErrRequestNotFound):
		writePaymentError(w, http.StatusNotFound, "request_not_found", err.Error())
	case errors.Is(err, paymentdomainerrors.ErrContractNotFound):
		writePaymentError(w, http.StatusNotFound, "contract_not_found", err.Error())
	case errors.Is(err, paymentdomainerrors.ErrInvalidSignature):
		writePaymentError(w, http.StatusBadRequest, "invalid_signature", err.Error())
	case errors.Is(err, paymentdomainerrors.ErrProviderUnavailable):
		writePaymentError(w, http.StatusInternalServerError, "provider_unavailable", err.Error())
	case errors.Is(err, paymentdomainerrors.ErrSettlementWriteFailed):
		writePaymentError(w, http.StatusInternalServerError, "settlement_write_failed", err.Error())
	default:
		writePaymentError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writePaymentError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, paymenthttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
