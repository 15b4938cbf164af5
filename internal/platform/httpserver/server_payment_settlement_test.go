package httpserver

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	paymentsettlement "atelier/contexts/commerce-core/payment-settlement-service"
	"atelier/contexts/commerce-core/payment-settlement-service/adapters/memory"
	stripeadapter "atelier/contexts/commerce-core/payment-settlement-service/adapters/stripe"
	"atelier/contexts/commerce-core/payment-settlement-service/domain/entities"
	"atelier/contexts/commerce-core/payment-settlement-service/ports"
)

const serverTestSecret = "whsec_server_test"

func newTestServer() (*Server, paymentsettlement.Module) {
	module := paymentsettlement.NewInMemoryModule(serverTestSecret, nil)
	now := time.Now().UTC().Add(-time.Hour)
	module.Store.SeedRequest(entities.WorkRequest{
		RequestID:   "request-1",
		Title:       "Character sheet",
		RequesterID: "requester-1",
		FinalPrice:  7000,
		Status:      entities.WorkRequestStatusPriced,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	module.Store.SeedContract(entities.WorkContract{
		ContractID:    "contract-1",
		WorkRequestID: "request-1",
		Status:        entities.WorkContractStatusUnpaid,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	module.Store.SeedRequester("requester-1", "Mika")
	return New(module, nil, ""), module
}

func signPaymentWebhookBody(secret string, body []byte) string {
	issued := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", issued)
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", issued, hex.EncodeToString(mac.Sum(nil)))
}

func completedWebhookBody() []byte {
	return []byte(`{
		"id": "evt_http_1",
		"type": "checkout.session.completed",
		"created": 1773133140,
		"data": {
			"object": {
				"id": "cs_http_1",
				"payment_intent": "pi_http_1",
				"amount_total": 7000,
				"metadata": {"contract_id": "contract-1", "request_id": "request-1"}
			}
		}
	}`)
}

func TestCreateCheckoutSessionEndpointReturnsSessionURL(t *testing.T) {
	server, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/checkout-sessions", bytes.NewReader([]byte(`{"request_id":"request-1"}`)))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		URL       string `json:"url"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.URL == "" || resp.SessionID == "" {
		t.Fatalf("expected session url and id, got %s", rr.Body.String())
	}
}

func TestCreateCheckoutSessionEndpointRejectsUnpricedRequest(t *testing.T) {
	server, module := newTestServer()
	now := time.Now().UTC()
	module.Store.SeedRequest(entities.WorkRequest{
		RequestID:   "request-unpriced",
		Title:       "Sketch",
		RequesterID: "requester-1",
		Status:      entities.WorkRequestStatusUnpriced,
		CreatedAt:   now,
		UpdatedAt:   now,
	})

	req := httptest.NewRequest(http.MethodPost, "/checkout-sessions", bytes.NewReader([]byte(`{"request_id":"request-unpriced"}`)))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Code != "price_not_set" {
		t.Fatalf("expected price_not_set code, got %q", resp.Code)
	}
}

func TestPaymentWebhookEndpointRejectsMissingSignature(t *testing.T) {
	server, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(completedWebhookBody()))
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestPaymentWebhookEndpointRejectsForgedSignature(t *testing.T) {
	server, _ := newTestServer()

	body := completedWebhookBody()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeaderName, signPaymentWebhookBody("whsec_forged", body))

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestPaymentWebhookEndpointSettlesOnValidSignature(t *testing.T) {
	server, module := newTestServer()

	body := completedWebhookBody()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeaderName, signPaymentWebhookBody(serverTestSecret, body))

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	contract, err := module.Store.GetContract(req.Context(), "contract-1")
	if err != nil {
		t.Fatalf("load contract failed: %v", err)
	}
	if contract.Status != entities.WorkContractStatusPaid {
		t.Fatalf("expected settled contract after webhook, got %s", contract.Status)
	}
}

// brokenContractStore fails the canonical settlement write; everything else
// passes through to the in-memory store.
type brokenContractStore struct {
	*memory.Store
}

func (s brokenContractStore) SettleContract(
	_ context.Context,
	_ string,
	_ string,
	_ time.Time,
	_ *ports.SettledEvent,
) (bool, error) {
	return false, errors.New("connection reset by peer")
}

func TestPaymentWebhookEndpointReturns500WhenCanonicalWriteFails(t *testing.T) {
	store := memory.NewStore()
	now := time.Now().UTC().Add(-time.Hour)
	store.SeedRequest(entities.WorkRequest{
		RequestID:   "request-1",
		Title:       "Character sheet",
		RequesterID: "requester-1",
		FinalPrice:  7000,
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

	module := paymentsettlement.NewModule(paymentsettlement.Dependencies{
		Requests:  store,
		Contracts: brokenContractStore{Store: store},
		Verifier: stripeadapter.WebhookVerifier{
			SigningSecret: serverTestSecret,
			Clock:         store,
		},
		Clock:       store,
		IDGenerator: store,
	})
	server := New(module, nil, "")

	body := completedWebhookBody()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeaderName, signPaymentWebhookBody(serverTestSecret, body))

	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 so the provider redelivers, got %d body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Code != "settlement_write_failed" {
		t.Fatalf("expected settlement_write_failed code, got %q", resp.Code)
	}

	contract, err := store.GetContract(req.Context(), "contract-1")
	if err != nil {
		t.Fatalf("load contract failed: %v", err)
	}
	if contract.IsSettled() {
		t.Fatalf("failed canonical write must leave the contract unpaid")
	}
}

func TestSettlementStatusEndpointReturnsPair(t *testing.T) {
	server, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/work-requests/request-1/settlement", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		RequestID      string `json:"request_id"`
		RequestStatus  string `json:"request_status"`
		ContractID     string `json:"contract_id"`
		ContractStatus string `json:"contract_status"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RequestID != "request-1" || resp.ContractID != "contract-1" {
		t.Fatalf("unexpected pair identity: %+v", resp)
	}
	if resp.RequestStatus != "priced" || resp.ContractStatus != "unpaid" {
		t.Fatalf("unexpected pair state before settlement: %+v", resp)
	}
}

func TestSettlementStatusEndpointUnknownRequest(t *testing.T) {
	server, _ := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/work-requests/request-missing/settlement", nil)
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}
