package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "atelier/contexts/commerce-core/payment-settlement-service/application"
	domainerrors "atelier/contexts/commerce-core/payment-settlement-service/domain/errors"
	"atelier/contexts/commerce-core/payment-settlement-service/ports"
)

const (
	completedEventType = "checkout.session.completed"
	settledEventType   = "payment.settled"
)

type ReconcileSettlementResult struct {
	ContractID      string
	ContractSettled bool
	RequestRepaired bool
	Ignored         bool
}

type ReconcileSettlementUseCase struct {
	Requests                    ports.WorkRequestRepository
	Contracts                   ports.WorkContractRepository
	Clock                       ports.Clock
	IDGenerator                 ports.IDGenerator
	DisableSettledEventEmission bool
	Logger                      *slog.Logger
}

// Execute applies one verified provider event to the contract/request pair.
// Write order is fixed: the contract is the canonical settlement record and
// goes first inside a guarded transition; the request is a downstream
// projection whose repair runs unconditionally on every call, so a prior
// partial failure converges on any redelivery. Only a canonical-side write
// failure propagates an error (and with it, provider redelivery).
func (u ReconcileSettlementUseCase) Execute(
	ctx context.Context,
	event ports.ProviderEvent,
) (ReconcileSettlementResult, error) {
	logger := application.ResolveLogger(u.Logger)

	if event.EventType != completedEventType {
		logger.Info("settlement event ignored",
			"event", "settlement_event_ignored",
			"module", "commerce-core/payment-settlement-service",
			"layer", "application",
			"provider_event_id", event.EventID,
			"provider_event_type", event.EventType,
		)
		return ReconcileSettlementResult{Ignored: true}, nil
	}

	contractID := strings.TrimSpace(event.Metadata["contract_id"])
	if contractID == "" {
		// Not addressed to this subsystem; acknowledge so the provider
		// does not retry.
		logger.Info("settlement event without contract metadata ignored",
			"event", "settlement_event_unaddressed",
			"module", "commerce-core/payment-settlement-service",
			"layer", "application",
			"provider_event_id", event.EventID,
		)
		return ReconcileSettlementResult{Ignored: true}, nil
	}

	contract, err := u.Contracts.GetContract(ctx, contractID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrContractNotFound) {
			// Terminal: redelivery cannot resolve an unknown contract.
			logger.Warn("settlement event for unknown contract acknowledged",
				"event", "settlement_contract_unknown",
				"module", "commerce-core/payment-settlement-service",
				"layer", "application",
				"provider_event_id", event.EventID,
				"contract_id", contractID,
			)
			return ReconcileSettlementResult{ContractID: contractID, Ignored: true}, nil
		}
		logger.Error("settlement contract lookup failed",
			"event", "settlement_contract_lookup_failed",
			"module", "commerce-core/payment-settlement-service",
			"layer", "application",
			"provider_event_id", event.EventID,
			"contract_id", contractID,
			"error", err.Error(),
		)
		return ReconcileSettlementResult{ContractID: contractID}, domainerrors.ErrSettlementWriteFailed
	}

	now := u.now()
	paidAt := now
	settled := false

	if !contract.IsSettled() {
		paymentIntentID := strings.TrimSpace(event.PaymentIntentID)
		if paymentIntentID == "" {
			// paid must imply a non-empty provider reference; a completed
			// session without one is not actionable.
			logger.Warn("completed event without payment intent acknowledged",
				"event", "settlement_missing_payment_intent",
				"module", "commerce-core/payment-settlement-service",
				"layer", "application",
				"provider_event_id", event.EventID,
				"contract_id", contractID,
			)
			return ReconcileSettlementResult{ContractID: contractID, Ignored: true}, nil
		}

		settledEvent, err := u.buildSettledEvent(ctx, contract.WorkRequestID, contractID, paymentIntentID, event.AmountTotal, now)
		if err != nil {
			return ReconcileSettlementResult{ContractID: contractID}, domainerrors.ErrSettlementWriteFailed
		}

		settled, err = u.Contracts.SettleContract(ctx, contractID, paymentIntentID, paidAt, settledEvent)
		if err != nil {
			logger.Error("canonical settlement write failed",
				"event", "settlement_contract_write_failed",
				"module", "commerce-core/payment-settlement-service",
				"layer", "application",
				"provider_event_id", event.EventID,
				"contract_id", contractID,
				"error", err.Error(),
			)
			return ReconcileSettlementResult{ContractID: contractID}, domainerrors.ErrSettlementWriteFailed
		}
		if !settled {
			// A concurrent delivery won the transition; reuse its stamp so
			// the request converges on the same settlement moment.
			if current, err := u.Contracts.GetContract(ctx, contractID); err == nil {
				paidAt = current.SettledAt(now)
			}
		}
	} else {
		paidAt = contract.SettledAt(now)
	}

	repaired, err := u.Requests.MarkRequestPaid(ctx, contract.WorkRequestID, paidAt)
	if err != nil {
		// The event's authority is already durably recorded on the
		// contract; acknowledge and leave the request to the repair sweep
		// or the next redelivery.
		logger.Error("request propagation failed after canonical settlement",
			"event", "settlement_request_write_failed",
			"module", "commerce-core/payment-settlement-service",
			"layer", "application",
			"provider_event_id", event.EventID,
			"contract_id", contractID,
			"request_id", contract.WorkRequestID,
			"error", err.Error(),
		)
		repaired = false
	}

	logger.Info("settlement reconciled",
		"event", "settlement_reconciled",
		"module", "commerce-core/payment-settlement-service",
		"layer", "application",
		"provider_event_id", event.EventID,
		"contract_id", contractID,
		"contract_status", "paid",
		"contract_settled", settled,
		"request_repaired", repaired,
		"repair_only", !settled && repaired,
	)
	return ReconcileSettlementResult{
		ContractID:      contractID,
		ContractSettled: settled,
		RequestRepaired: repaired,
	}, nil
}

func (u ReconcileSettlementUseCase) buildSettledEvent(
	ctx context.Context,
	requestID string,
	contractID string,
	paymentIntentID string,
	amountYen int64,
	occurredAt time.Time,
) (*ports.SettledEvent, error) {
	if u.DisableSettledEventEmission || u.IDGenerator == nil {
		return nil, nil
	}
	eventID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return nil, err
	}
	return &ports.SettledEvent{
		EventID:         eventID,
		EventType:       settledEventType,
		ContractID:      contractID,
		RequestID:       requestID,
		PaymentIntentID: paymentIntentID,
		AmountYen:       amountYen,
		PartitionKey:    contractID,
		OccurredAt:      occurredAt,
	}, nil
}

func (u ReconcileSettlementUseCase) now() time.Time {
	if u.Clock == nil {
		return time.Now().UTC()
	}
	return u.Clock.Now().UTC()
}
