package ports

import (
	"context"
	"time"

	"atelier/contexts/commerce-core/payment-settlement-service/domain/entities"
	contractsv1 "atelier/contracts/gen/events/v1"
)

type WorkRequestRepository interface {
	GetRequest(ctx context.Context, requestID string) (entities.WorkRequest, error)
	// MarkRequestPaid drives the request to paid with a guarded update.
	// Returns true when this call performed the transition, false when the
	// request already reached paid or a later state.
	MarkRequestPaid(ctx context.Context, requestID string, paidAt time.Time) (bool, error)
}

type WorkContractRepository interface {
	GetContract(ctx context.Context, contractID string) (entities.WorkContract, error)
	GetContractByRequestID(ctx context.Context, requestID string) (entities.WorkContract, error)
	// SettleContract performs the canonical unpaid->paid transition guarded
	// on prior status, stamping paymentIntentID and paidAt exactly once.
	// When event is non-nil the payment.settled outbox row is committed in
	// the same transaction as the contract update. Returns true only when
	// this call won the transition.
	SettleContract(
		ctx context.Context,
		contractID string,
		paymentIntentID string,
		paidAt time.Time,
		event *SettledEvent,
	) (bool, error)
	// ListUnpropagatedSettlements returns contracts already paid whose
	// linked request has not yet converged to paid.
	ListUnpropagatedSettlements(ctx context.Context, limit int) ([]entities.WorkContract, error)
}

// RequesterDirectory resolves display names for checkout descriptions.
// A missing profile yields an empty name, never an error the caller must
// treat as fatal.
type RequesterDirectory interface {
	DisplayName(ctx context.Context, requesterID string) (string, error)
}

type CheckoutSessionSpec struct {
	AmountYen   int64
	Description string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

type CheckoutSession struct {
	SessionID string
	URL       string
}

type CheckoutProvider interface {
	CreateSession(ctx context.Context, spec CheckoutSessionSpec) (CheckoutSession, error)
}

// ProviderEvent is a payment-provider notification that already passed
// signature verification. Consumers never see unverified events.
type ProviderEvent struct {
	EventID         string
	EventType       string
	SessionID       string
	PaymentIntentID string
	AmountTotal     int64
	Metadata        map[string]string
	OccurredAt      time.Time
}

type WebhookVerifier interface {
	Verify(rawBody []byte, signatureHeader string) (ProviderEvent, error)
}

type SettledEvent struct {
	EventID         string
	EventType       string
	ContractID      string
	RequestID       string
	PaymentIntentID string
	AmountYen       int64
	PartitionKey    string
	OccurredAt      time.Time
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type EventEnvelope = contractsv1.Envelope

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error
}
