package httptransport

type CreateCheckoutSessionRequest struct {
	RequestID string `json:"request_id"`
}

type CreateCheckoutSessionResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

type WebhookAckResponse struct {
	Received bool `json:"received"`
}

type SettlementStatusResponse struct {
	RequestID       string `json:"request_id"`
	RequestStatus   string `json:"request_status"`
	ContractID      string `json:"contract_id"`
	ContractStatus  string `json:"contract_status"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	PaidAt          string `json:"paid_at,omitempty"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
