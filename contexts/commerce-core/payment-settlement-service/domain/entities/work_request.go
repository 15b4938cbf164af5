package entities

import "time"

type WorkRequestStatus string

const (
	WorkRequestStatusUnpriced  WorkRequestStatus = "unpriced"
	WorkRequestStatusPriced    WorkRequestStatus = "priced"
	WorkRequestStatusPaid      WorkRequestStatus = "paid"
	WorkRequestStatusDelivered WorkRequestStatus = "delivered"
)

// WorkRequest is a requester's commission. Price confirmation happens
// upstream; this context only reads FinalPrice and drives the paid
// transition.
type WorkRequest struct {
	RequestID   string
	Title       string
	RequesterID string
	FinalPrice  int64 // whole yen, no fractional unit
	Status      WorkRequestStatus
	PaidAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r WorkRequest) HasConfirmedPrice() bool {
	return r.FinalPrice > 0
}

// IsSettled reports whether the request already reached paid or a later
// lifecycle state.
func (r WorkRequest) IsSettled() bool {
	return r.Status == WorkRequestStatusPaid || r.Status == WorkRequestStatusDelivered
}
