package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	application "atelier/contexts/commerce-core/payment-settlement-service/application"
	domainerrors "atelier/contexts/commerce-core/payment-settlement-service/domain/errors"
	"atelier/contexts/commerce-core/payment-settlement-service/ports"
)

const neutralRequesterName = "a requester"

type CreateCheckoutSessionCommand struct {
	RequestID string
}

type CreateCheckoutSessionResult struct {
	SessionID  string
	URL        string
	ContractID string
	AmountYen  int64
}

type CreateCheckoutSessionUseCase struct {
	Requests   ports.WorkRequestRepository
	Contracts  ports.WorkContractRepository
	Provider   ports.CheckoutProvider
	Requesters ports.RequesterDirectory
	SuccessURL string
	CancelURL  string
	Logger     *slog.Logger
}

// Execute builds a provider-hosted checkout session for a priced request:
// 1) request + linked contract lookup
// 2) confirmed-price validation (provider is never called without it)
// 3) provider session creation with contract identity in metadata.
// The browser-return URLs are advisory only; settlement authority stays
// with the verified webhook event.
func (u CreateCheckoutSessionUseCase) Execute(
	ctx context.Context,
	cmd CreateCheckoutSessionCommand,
) (CreateCheckoutSessionResult, error) {
	logger := application.ResolveLogger(u.Logger)
	requestID := strings.TrimSpace(cmd.RequestID)
	if requestID == "" {
		return CreateCheckoutSessionResult{}, domainerrors.ErrRequestNotFound
	}

	request, err := u.Requests.GetRequest(ctx, requestID)
	if err != nil {
		logger.Warn("checkout session request lookup failed",
			"event", "checkout_session_request_lookup_failed",
			"module", "commerce-core/payment-settlement-service",
			"layer", "application",
			"request_id", requestID,
			"error", err.Error(),
		)
		return CreateCheckoutSessionResult{}, err
	}
	if !request.HasConfirmedPrice() {
		logger.Warn("checkout session rejected without confirmed price",
			"event", "checkout_session_price_not_set",
			"module", "commerce-core/payment-settlement-service",
			"layer", "application",
			"request_id", requestID,
		)
		return CreateCheckoutSessionResult{}, domainerrors.ErrPriceNotSet
	}

	contract, err := u.Contracts.GetContractByRequestID(ctx, requestID)
	if err != nil {
		logger.Warn("checkout session contract lookup failed",
			"event", "checkout_session_contract_lookup_failed",
			"module", "commerce-core/payment-settlement-service",
			"layer", "application",
			"request_id", requestID,
			"error", err.Error(),
		)
		return CreateCheckoutSessionResult{}, err
	}

	session, err := u.Provider.CreateSession(ctx, ports.CheckoutSessionSpec{
		AmountYen:   request.FinalPrice,
		Description: u.describe(ctx, request.Title, request.RequesterID),
		SuccessURL:  u.SuccessURL,
		CancelURL:   u.CancelURL,
		Metadata: map[string]string{
			"contract_id": contract.ContractID,
			"request_id":  request.RequestID,
		},
	})
	if err != nil {
		logger.Error("checkout session provider call failed",
			"event", "checkout_session_provider_failed",
			"module", "commerce-core/payment-settlement-service",
			"layer", "application",
			"request_id", requestID,
			"contract_id", contract.ContractID,
			"error", err.Error(),
		)
		return CreateCheckoutSessionResult{}, domainerrors.ErrProviderUnavailable
	}

	logger.Info("checkout session created",
		"event", "checkout_session_created",
		"module", "commerce-core/payment-settlement-service",
		"layer", "application",
		"request_id", requestID,
		"contract_id", contract.ContractID,
		"session_id", session.SessionID,
		"amount_yen", request.FinalPrice,
	)
	return CreateCheckoutSessionResult{
		SessionID:  session.SessionID,
		URL:        session.URL,
		ContractID: contract.ContractID,
		AmountYen:  request.FinalPrice,
	}, nil
}

func (u CreateCheckoutSessionUseCase) describe(ctx context.Context, title string, requesterID string) string {
	name := neutralRequesterName
	if u.Requesters != nil {
		// Directory failures degrade to the placeholder, never to an error.
		if resolved, err := u.Requesters.DisplayName(ctx, requesterID); err == nil && strings.TrimSpace(resolved) != "" {
			name = strings.TrimSpace(resolved)
		}
	}
	return fmt.Sprintf("%s - commissioned by %s", strings.TrimSpace(title), name)
}
