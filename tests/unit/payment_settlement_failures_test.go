package unit

import (
	"context"
	"errors"
	"testing"
	"time"

	paymentsettlement "atelier/contexts/commerce-core/payment-settlement-service"
	"atelier/contexts/commerce-core/payment-settlement-service/adapters/memory"
	"atelier/contexts/commerce-core/payment-settlement-service/domain/entities"
	domainerrors "atelier/contexts/commerce-core/payment-settlement-service/domain/errors"
	"atelier/contexts/commerce-core/payment-settlement-service/ports"
)

// settleFailingStore fails the canonical contract write while every other
// repository call passes through to the real in-memory store.
type settleFailingStore struct {
	*memory.Store
	err error
}

func (s settleFailingStore) SettleContract(
	_ context.Context,
	_ string,
	_ string,
	_ time.Time,
	_ *ports.SettledEvent,
) (bool, error) {
	return false, s.err
}

// repairFailingStore fails the request projection write only.
type repairFailingStore struct {
	*memory.Store
	err error
}

func (s repairFailingStore) MarkRequestPaid(_ context.Context, _ string, _ time.Time) (bool, error) {
	return false, s.err
}

func newSettlementPairStore() *memory.Store {
	store := memory.NewStore()
	now := time.Now().UTC().Add(-time.Hour)
	store.SeedRequest(entities.WorkRequest{
		RequestID:   "request-1",
		Title:       "Album cover illustration",
		RequesterID: "requester-1",
		FinalPrice:  5000,
		Status:      entities.WorkRequestStatusPriced,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	store.SeedContract(entities.WorkContract{
		ContractID:    "contract-1",
		WorkRequestID: "request-1",
		Status:        entities.WorkContractStatusUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	return store
}

func completedProviderEvent(eventID string) ports.ProviderEvent {
	return ports.ProviderEvent{
		EventID:         eventID,
		EventType:       "checkout.session.completed",
		SessionID:       "cs_fail_1",
		PaymentIntentID: "pi_fail_1",
		AmountTotal:     5000,
		Metadata:        map[string]string{"contract_id": "contract-1", "request_id": "request-1"},
		OccurredAt:      time.Now().UTC(),
	}
}

func TestCanonicalWriteFailureSurfacesSettlementWriteFailed(t *testing.T) {
	store := newSettlementPairStore()
	module := paymentsettlement.NewModule(paymentsettlement.Dependencies{
		Requests:    store,
		Contracts:   settleFailingStore{Store: store, err: errors.New("connection reset by peer")},
		Clock:       store,
		IDGenerator: store,
	})
	ctx := context.Background()

	_, err := module.Handler.Reconcile.Execute(ctx, completedProviderEvent("evt_canonical_fail"))
	if !errors.Is(err, domainerrors.ErrSettlementWriteFailed) {
		t.Fatalf("expected ErrSettlementWriteFailed, got %v", err)
	}

	contract, err := store.GetContract(ctx, "contract-1")
	if err != nil {
		t.Fatalf("load contract failed: %v", err)
	}
	if contract.IsSettled() {
		t.Fatalf("a failed canonical write must leave the contract unpaid")
	}
	request, err := store.GetRequest(ctx, "request-1")
	if err != nil {
		t.Fatalf("load request failed: %v", err)
	}
	if request.IsSettled() {
		t.Fatalf("request must never settle ahead of the contract")
	}
}

func TestRequestRepairFailureStillAcknowledgesSettledContract(t *testing.T) {
	store := newSettlementPairStore()
	module := paymentsettlement.NewModule(paymentsettlement.Dependencies{
		Requests:    repairFailingStore{Store: store, err: errors.New("connection reset by peer")},
		Contracts:   store,
		Clock:       store,
		IDGenerator: store,
	})
	ctx := context.Background()

	result, err := module.Handler.Reconcile.Execute(ctx, completedProviderEvent("evt_repair_fail"))
	if err != nil {
		t.Fatalf("projection-side failure must not fail the delivery, got %v", err)
	}
	if !result.ContractSettled {
		t.Fatalf("expected canonical settlement despite repair failure")
	}
	if result.RequestRepaired {
		t.Fatalf("expected repair to be reported as deferred")
	}

	contract, err := store.GetContract(ctx, "contract-1")
	if err != nil {
		t.Fatalf("load contract failed: %v", err)
	}
	if contract.Status != entities.WorkContractStatusPaid {
		t.Fatalf("expected settled contract, got %s", contract.Status)
	}
	if contract.PaymentIntentID != "pi_fail_1" {
		t.Fatalf("unexpected payment intent: %q", contract.PaymentIntentID)
	}

	request, err := store.GetRequest(ctx, "request-1")
	if err != nil {
		t.Fatalf("load request failed: %v", err)
	}
	if request.IsSettled() {
		t.Fatalf("request write failed, it must stay unsettled for the sweep")
	}
}

func TestRepairSweepConvergesAfterProjectionWriteFailure(t *testing.T) {
	store := newSettlementPairStore()
	module := paymentsettlement.NewModule(paymentsettlement.Dependencies{
		Requests:    repairFailingStore{Store: store, err: errors.New("connection reset by peer")},
		Contracts:   store,
		Clock:       store,
		IDGenerator: store,
	})
	ctx := context.Background()

	if _, err := module.Handler.Reconcile.Execute(ctx, completedProviderEvent("evt_repair_fail")); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	// The pair the projection failure left behind must show up as a
	// straggler the sweep can close.
	stale, err := store.ListUnpropagatedSettlements(ctx, 10)
	if err != nil {
		t.Fatalf("list unpropagated settlements failed: %v", err)
	}
	if len(stale) != 1 || stale[0].ContractID != "contract-1" {
		t.Fatalf("expected contract-1 as straggler, got %+v", stale)
	}
}
