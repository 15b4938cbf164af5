package entities

import "time"

type WorkContractStatus string

const (
	WorkContractStatusUnpaid WorkContractStatus = "unpaid"
	WorkContractStatusPaid   WorkContractStatus = "paid"
)

// WorkContract is the canonical settlement record between a creator and a
// requester. Its lifetime is tied to the owning WorkRequest; it is created
// upstream in unpaid state and transitions to paid exactly once.
type WorkContract struct {
	ContractID      string
	WorkRequestID   string
	Status          WorkContractStatus
	PaymentIntentID string
	PaidAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (c WorkContract) IsSettled() bool {
	return c.Status == WorkContractStatusPaid
}

// SettledAt returns the recorded settlement moment, or fallback when the
// contract has no stamp yet.
func (c WorkContract) SettledAt(fallback time.Time) time.Time {
	if c.PaidAt != nil && !c.PaidAt.IsZero() {
		return c.PaidAt.UTC()
	}
	return fallback.UTC()
}
