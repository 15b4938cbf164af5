package queries

import (
	"context"
	"log/slog"
	"strings"

	application "atelier/contexts/commerce-core/payment-settlement-service/application"
	"atelier/contexts/commerce-core/payment-settlement-service/domain/entities"
	domainerrors "atelier/contexts/commerce-core/payment-settlement-service/domain/errors"
	"atelier/contexts/commerce-core/payment-settlement-service/ports"
)

type GetSettlementStatusQuery struct {
	RequestID string
}

type GetSettlementStatusResult struct {
	Request  entities.WorkRequest
	Contract entities.WorkContract
}

// GetSettlementStatusUseCase is the poll target after browser return; the
// return URL itself carries no settlement authority.
type GetSettlementStatusUseCase struct {
	Requests  ports.WorkRequestRepository
	Contracts ports.WorkContractRepository
	Logger    *slog.Logger
}

func (u GetSettlementStatusUseCase) Execute(
	ctx context.Context,
	query GetSettlementStatusQuery,
) (GetSettlementStatusResult, error) {
	logger := application.ResolveLogger(u.Logger)
	requestID := strings.TrimSpace(query.RequestID)
	if requestID == "" {
		return GetSettlementStatusResult{}, domainerrors.ErrRequestNotFound
	}

	request, err := u.Requests.GetRequest(ctx, requestID)
	if err != nil {
		logger.Warn("settlement status request lookup failed",
			"event", "settlement_status_request_lookup_failed",
			"module", "commerce-core/payment-settlement-service",
			"layer", "application",
			"request_id", requestID,
			"error", err.Error(),
		)
		return GetSettlementStatusResult{}, err
	}
	contract, err := u.Contracts.GetContractByRequestID(ctx, requestID)
	if err != nil {
		logger.Warn("settlement status contract lookup failed",
			"event", "settlement_status_contract_lookup_failed",
			"module", "commerce-core/payment-settlement-service",
			"layer", "application",
			"request_id", requestID,
			"error", err.Error(),
		)
		return GetSettlementStatusResult{}, err
	}
	return GetSettlementStatusResult{
		Request:  request,
		Contract: contract,
	}, nil
}
