package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"atelier/contexts/commerce-core/payment-settlement-service/domain/entities"
	domainerrors "atelier/contexts/commerce-core/payment-settlement-service/domain/errors"
	"atelier/contexts/commerce-core/payment-settlement-service/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
)

// statuses a request can still settle from; later lifecycle states already
// imply the payment happened and must never be rewound.
var settleableRequestStatuses = []string{
	string(entities.WorkRequestStatusUnpriced),
	string(entities.WorkRequestStatusPriced),
}

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) GetRequest(ctx context.Context, requestID string) (entities.WorkRequest, error) {
	var row workRequestModel
	err := r.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.WorkRequest{}, domainerrors.ErrRequestNotFound
		}
		return entities.WorkRequest{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) MarkRequestPaid(ctx context.Context, requestID string, paidAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&workRequestModel{}).
		Where("request_id = ? AND status IN ?", requestID, settleableRequestStatuses).
		Updates(map[string]any{
			"status":     string(entities.WorkRequestStatusPaid),
			"paid_at":    paidAt.UTC(),
			"updated_at": paidAt.UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	// Zero rows is the normal already-settled case; distinguish it from an
	// unknown request.
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&workRequestModel{}).
		Where("request_id = ?", requestID).
		Count(&count).
		Error; err != nil {
		return false, err
	}
	if count == 0 {
		return false, domainerrors.ErrRequestNotFound
	}
	return false, nil
}

func (r *Repository) GetContract(ctx context.Context, contractID string) (entities.WorkContract, error) {
	var row workContractModel
	err := r.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.WorkContract{}, domainerrors.ErrContractNotFound
		}
		return entities.WorkContract{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) GetContractByRequestID(ctx context.Context, requestID string) (entities.WorkContract, error) {
	var row workContractModel
	err := r.db.WithContext(ctx).
		Where("work_request_id = ?", requestID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.WorkContract{}, domainerrors.ErrContractNotFound
		}
		return entities.WorkContract{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) SettleContract(
	ctx context.Context,
	contractID string,
	paymentIntentID string,
	paidAt time.Time,
	event *ports.SettledEvent,
) (bool, error) {
	settled := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Guarded transition: exactly one concurrent delivery observes
		// RowsAffected > 0, and only that one appends the outbox row.
		result := tx.
			Model(&workContractModel{}).
			Where("contract_id = ? AND status = ?", contractID, string(entities.WorkContractStatusUnpaid)).
			Updates(map[string]any{
				"status":            string(entities.WorkContractStatusPaid),
				"payment_intent_id": paymentIntentID,
				"paid_at":           paidAt.UTC(),
				"updated_at":        paidAt.UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.
				Model(&workContractModel{}).
				Where("contract_id = ?", contractID).
				Count(&count).
				Error; err != nil {
				return err
			}
			if count == 0 {
				return domainerrors.ErrContractNotFound
			}
			return nil
		}
		settled = true

		if event == nil {
			return nil
		}
		envelope, err := buildSettledEnvelope(*event)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(envelope)
		if err != nil {
			return err
		}
		outboxRow := outboxModel{
			OutboxID:     event.EventID,
			EventType:    event.EventType,
			PartitionKey: event.PartitionKey,
			Payload:      payload,
			Status:       outboxStatusPending,
			CreatedAt:    event.OccurredAt.UTC(),
		}
		if err := tx.Create(&outboxRow).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrRepositoryInvariantBroke
			}
			return err
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return settled, nil
}

func (r *Repository) ListUnpropagatedSettlements(ctx context.Context, limit int) ([]entities.WorkContract, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []workContractModel
	err := r.db.WithContext(ctx).
		Model(&workContractModel{}).
		Select("work_contracts.*").
		Joins("JOIN work_requests ON work_requests.request_id = work_contracts.work_request_id").
		Where("work_contracts.status = ? AND work_requests.status IN ?",
			string(entities.WorkContractStatusPaid), settleableRequestStatuses).
		Order("work_contracts.paid_at ASC").
		Limit(limit).
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}

	items := make([]entities.WorkContract, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) DisplayName(ctx context.Context, requesterID string) (string, error) {
	var row requesterModel
	err := r.db.WithContext(ctx).
		Where("requester_id = ?", requesterID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Missing profile renders as the neutral placeholder upstream.
			return "", nil
		}
		return "", err
	}
	return row.DisplayName, nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).
		Error; err != nil {
		return nil, err
	}

	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toPort())
	}
	return items, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{
			"status":  outboxStatusSent,
			"sent_at": sentAt.UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrRepositoryInvariantBroke
	}
	return nil
}

type workRequestModel struct {
	RequestID   string     `gorm:"column:request_id;primaryKey"`
	Title       string     `gorm:"column:title"`
	RequesterID string     `gorm:"column:requester_id"`
	FinalPrice  int64      `gorm:"column:final_price"`
	Status      string     `gorm:"column:status"`
	PaidAt      *time.Time `gorm:"column:paid_at"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

func (workRequestModel) TableName() string {
	return "work_requests"
}

func (m workRequestModel) toEntity() entities.WorkRequest {
	return entities.WorkRequest{
		RequestID:   m.RequestID,
		Title:       m.Title,
		RequesterID: m.RequesterID,
		FinalPrice:  m.FinalPrice,
		Status:      entities.WorkRequestStatus(m.Status),
		PaidAt:      normalizeStamp(m.PaidAt),
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

type workContractModel struct {
	ContractID      string     `gorm:"column:contract_id;primaryKey"`
	WorkRequestID   string     `gorm:"column:work_request_id"`
	Status          string     `gorm:"column:status"`
	PaymentIntentID string     `gorm:"column:payment_intent_id"`
	PaidAt          *time.Time `gorm:"column:paid_at"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

func (workContractModel) TableName() string {
	return "work_contracts"
}

func (m workContractModel) toEntity() entities.WorkContract {
	return entities.WorkContract{
		ContractID:      m.ContractID,
		WorkRequestID:   m.WorkRequestID,
		Status:          entities.WorkContractStatus(m.Status),
		PaymentIntentID: m.PaymentIntentID,
		PaidAt:          normalizeStamp(m.PaidAt),
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
}

type requesterModel struct {
	RequesterID string `gorm:"column:requester_id;primaryKey"`
	DisplayName string `gorm:"column:display_name"`
}

func (requesterModel) TableName() string {
	return "requesters"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	SentAt       *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string {
	return "payment_settlement_outbox"
}

func (m outboxModel) toPort() ports.OutboxMessage {
	return ports.OutboxMessage{
		OutboxID:     m.OutboxID,
		EventType:    m.EventType,
		PartitionKey: m.PartitionKey,
		Payload:      append([]byte(nil), m.Payload...),
		CreatedAt:    m.CreatedAt.UTC(),
	}
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

func normalizeStamp(stamp *time.Time) *time.Time {
	if stamp == nil {
		return nil
	}
	utc := stamp.UTC()
	return &utc
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
