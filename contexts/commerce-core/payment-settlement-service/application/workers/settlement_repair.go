package workers

import (
	"context"
	"log/slog"
	"time"

	application "atelier/contexts/commerce-core/payment-settlement-service/application"
	"atelier/contexts/commerce-core/payment-settlement-service/ports"
)

// SettlementRepairSweep converges requests left behind by a partial
// failure: contract already paid, linked request not. The reconciler also
// repairs on redelivery, but nothing guarantees another event ever arrives
// for a given contract, so the sweep closes the saga.
type SettlementRepairSweep struct {
	Contracts ports.WorkContractRepository
	Requests  ports.WorkRequestRepository
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

func (s SettlementRepairSweep) RunOnce(ctx context.Context) error {
	logger := application.ResolveLogger(s.Logger)
	limit := s.BatchSize
	if limit <= 0 {
		limit = 100
	}

	stale, err := s.Contracts.ListUnpropagatedSettlements(ctx, limit)
	if err != nil {
		logger.Error("settlement repair sweep listing failed",
			"event", "settlement_repair_list_failed",
			"module", "commerce-core/payment-settlement-service",
			"layer", "worker",
			"error", err.Error(),
		)
		return err
	}

	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}

	repairedCount := 0
	for _, contract := range stale {
		repaired, err := s.Requests.MarkRequestPaid(ctx, contract.WorkRequestID, contract.SettledAt(now))
		if err != nil {
			logger.Error("settlement repair write failed",
				"event", "settlement_repair_write_failed",
				"module", "commerce-core/payment-settlement-service",
				"layer", "worker",
				"contract_id", contract.ContractID,
				"request_id", contract.WorkRequestID,
				"error", err.Error(),
			)
			continue
		}
		if repaired {
			repairedCount++
		}
	}

	if repairedCount > 0 {
		logger.Info("settlement repair sweep completed",
			"event", "settlement_repair_completed",
			"module", "commerce-core/payment-settlement-service",
			"layer", "worker",
			"repaired_count", repairedCount,
		)
	}
	return nil
}
