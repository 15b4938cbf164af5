package httpadapter

import (
	"context"
	"log/slog"
	"time"

	application "atelier/contexts/commerce-core/payment-settlement-service/application"
	"atelier/contexts/commerce-core/payment-settlement-service/application/commands"
	"atelier/contexts/commerce-core/payment-settlement-service/application/queries"
	"atelier/contexts/commerce-core/payment-settlement-service/ports"
	httptransport "atelier/contexts/commerce-core/payment-settlement-service/transport/http"
)

type Handler struct {
	CreateSession commands.CreateCheckoutSessionUseCase
	Reconcile     commands.ReconcileSettlementUseCase
	Status        queries.GetSettlementStatusUseCase
	Logger        *slog.Logger
}

// CreateCheckoutSessionHandler godoc
// @Summary Create a hosted checkout session
// @Description Builds a provider-hosted payment session for a priced work request.
// @Tags payment-settlement-service
// @Accept json
// @Produce json
// @Param request body httptransport.CreateCheckoutSessionRequest true "Checkout payload"
// @Success 200 {object} httptransport.CreateCheckoutSessionResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /checkout-sessions [post]
func (h Handler) CreateCheckoutSessionHandler(
	ctx context.Context,
	req httptransport.CreateCheckoutSessionRequest,
) (httptransport.CreateCheckoutSessionResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("create checkout session request received",
		"event", "http_create_checkout_session_received",
		"module", "commerce-core/payment-settlement-service",
		"layer", "transport",
		"request_id", req.RequestID,
	)

	result, err := h.CreateSession.Execute(ctx, commands.CreateCheckoutSessionCommand{
		RequestID: req.RequestID,
	})
	if err != nil {
		return httptransport.CreateCheckoutSessionResponse{}, err
	}
	return httptransport.CreateCheckoutSessionResponse{
		URL:       result.URL,
		SessionID: result.SessionID,
	}, nil
}

// PaymentWebhookHandler godoc
// @Summary Receive a payment provider notification
// @Description Applies a signature-verified settlement event; acknowledged events are never redelivered.
// @Tags payment-settlement-service
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Webhook signature header"
// @Success 200 {object} httptransport.WebhookAckResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /webhooks/payment [post]
func (h Handler) PaymentWebhookHandler(
	ctx context.Context,
	event ports.ProviderEvent,
) (httptransport.WebhookAckResponse, error) {
	if _, err := h.Reconcile.Execute(ctx, event); err != nil {
		return httptransport.WebhookAckResponse{}, err
	}
	return httptransport.WebhookAckResponse{Received: true}, nil
}

// GetSettlementStatusHandler godoc
// @Summary Get settlement status for a work request
// @Description Read-side projection of the request/contract settlement pair.
// @Tags payment-settlement-service
// @Accept json
// @Produce json
// @Param request_id path string true "Work request id"
// @Success 200 {object} httptransport.SettlementStatusResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /work-requests/{request_id}/settlement [get]
func (h Handler) GetSettlementStatusHandler(
	ctx context.Context,
	requestID string,
) (httptransport.SettlementStatusResponse, error) {
	result, err := h.Status.Execute(ctx, queries.GetSettlementStatusQuery{RequestID: requestID})
	if err != nil {
		return httptransport.SettlementStatusResponse{}, err
	}

	resp := httptransport.SettlementStatusResponse{
		RequestID:       result.Request.RequestID,
		RequestStatus:   string(result.Request.Status),
		ContractID:      result.Contract.ContractID,
		ContractStatus:  string(result.Contract.Status),
		PaymentIntentID: result.Contract.PaymentIntentID,
	}
	if result.Contract.PaidAt != nil {
		resp.PaidAt = result.Contract.PaidAt.UTC().Format(time.RFC3339)
	}
	return resp, nil
}
