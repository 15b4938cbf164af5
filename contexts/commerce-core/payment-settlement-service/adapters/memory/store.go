package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"atelier/contexts/commerce-core/payment-settlement-service/domain/entities"
	domainerrors "atelier/contexts/commerce-core/payment-settlement-service/domain/errors"
	"atelier/contexts/commerce-core/payment-settlement-service/ports"

	"github.com/google/uuid"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
)

type Store struct {
	mu sync.RWMutex

	requests   map[string]entities.WorkRequest
	contracts  map[string]entities.WorkContract
	requesters map[string]string
	outbox     map[string]outboxRecord
}

type outboxRecord struct {
	Message ports.OutboxMessage
	Status  string
	SentAt  *time.Time
}

func NewStore() *Store {
	return &Store{
		requests:   make(map[string]entities.WorkRequest),
		contracts:  make(map[string]entities.WorkContract),
		requesters: make(map[string]string),
		outbox:     make(map[string]outboxRecord),
	}
}

// SeedRequest installs upstream state; request/contract creation is out of
// this context's scope.
func (s *Store) SeedRequest(request entities.WorkRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[request.RequestID] = request
}

func (s *Store) SeedContract(contract entities.WorkContract) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[contract.ContractID] = contract
}

func (s *Store) SeedRequester(requesterID string, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requesters[requesterID] = displayName
}

func (s *Store) GetRequest(_ context.Context, requestID string) (entities.WorkRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, ok := s.requests[strings.TrimSpace(requestID)]
	if !ok {
		return entities.WorkRequest{}, domainerrors.ErrRequestNotFound
	}
	return request, nil
}

func (s *Store) MarkRequestPaid(_ context.Context, requestID string, paidAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	request, ok := s.requests[strings.TrimSpace(requestID)]
	if !ok {
		return false, domainerrors.ErrRequestNotFound
	}
	if request.IsSettled() {
		return false, nil
	}
	stamp := paidAt.UTC()
	request.Status = entities.WorkRequestStatusPaid
	request.PaidAt = &stamp
	request.UpdatedAt = stamp
	s.requests[request.RequestID] = request
	return true, nil
}

func (s *Store) GetContract(_ context.Context, contractID string) (entities.WorkContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contract, ok := s.contracts[strings.TrimSpace(contractID)]
	if !ok {
		return entities.WorkContract{}, domainerrors.ErrContractNotFound
	}
	return contract, nil
}

func (s *Store) GetContractByRequestID(_ context.Context, requestID string) (entities.WorkContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, contract := range s.contracts {
		if contract.WorkRequestID == strings.TrimSpace(requestID) {
			return contract, nil
		}
	}
	return entities.WorkContract{}, domainerrors.ErrContractNotFound
}

func (s *Store) SettleContract(
	_ context.Context,
	contractID string,
	paymentIntentID string,
	paidAt time.Time,
	event *ports.SettledEvent,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contract, ok := s.contracts[strings.TrimSpace(contractID)]
	if !ok {
		return false, domainerrors.ErrContractNotFound
	}
	if contract.IsSettled() {
		return false, nil
	}

	stamp := paidAt.UTC()
	contract.Status = entities.WorkContractStatusPaid
	contract.PaymentIntentID = paymentIntentID
	contract.PaidAt = &stamp
	contract.UpdatedAt = stamp
	s.contracts[contract.ContractID] = contract

	if event != nil {
		envelope, err := buildSettledEnvelope(*event)
		if err != nil {
			return false, err
		}
		payload, err := json.Marshal(envelope)
		if err != nil {
			return false, err
		}
		if _, exists := s.outbox[event.EventID]; exists {
			return false, domainerrors.ErrRepositoryInvariantBroke
		}
		s.outbox[event.EventID] = outboxRecord{
			Message: ports.OutboxMessage{
				OutboxID:     event.EventID,
				EventType:    event.EventType,
				PartitionKey: event.PartitionKey,
				Payload:      payload,
				CreatedAt:    event.OccurredAt.UTC(),
			},
			Status: outboxStatusPending,
		}
	}
	return true, nil
}

func (s *Store) ListUnpropagatedSettlements(_ context.Context, limit int) ([]entities.WorkContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	items := make([]entities.WorkContract, 0)
	for _, contract := range s.contracts {
		if !contract.IsSettled() {
			continue
		}
		request, ok := s.requests[contract.WorkRequestID]
		if !ok || request.IsSettled() {
			continue
		}
		items = append(items, contract)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ContractID < items[j].ContractID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) DisplayName(_ context.Context, requesterID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requesters[strings.TrimSpace(requesterID)], nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	items := make([]ports.OutboxMessage, 0)
	for _, record := range s.outbox {
		if record.Status == outboxStatusPending {
			items = append(items, record.Message)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxSent(_ context.Context, outboxID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.outbox[outboxID]
	if !ok {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	stamp := sentAt.UTC()
	record.Status = outboxStatusSent
	record.SentAt = &stamp
	s.outbox[outboxID] = record
	return nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func buildSettledEnvelope(event ports.SettledEvent) (ports.EventEnvelope, error) {
	data, err := json.Marshal(map[string]any{
		"contract_id":       event.ContractID,
		"request_id":        event.RequestID,
		"payment_intent_id": event.PaymentIntentID,
		"amount_yen":        event.AmountYen,
	})
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          event.EventID,
		EventType:        event.EventType,
		OccurredAt:       event.OccurredAt.UTC(),
		SourceService:    "payment-settlement-service",
		TraceID:          event.EventID,
		SchemaVersion:    1,
		PartitionKeyPath: "contract_id",
		PartitionKey:     event.PartitionKey,
		Data:             data,
	}, nil
}
