package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"atelier/contexts/commerce-core/payment-settlement-service/ports"
)

func TestCreateSessionSendsZeroDecimalYenForm(t *testing.T) {
	var captured url.Values
	var authUser string
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		authUser, _, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		captured = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_live_1","url":"https://checkout.stripe.com/c/pay/cs_live_1"}`))
	}))
	defer provider.Close()

	client := NewClientWithBaseURL("sk_test_key", provider.URL, nil)
	session, err := client.CreateSession(context.Background(), ports.CheckoutSessionSpec{
		AmountYen:   12000,
		Description: "Album cover illustration - commissioned by Aoi",
		SuccessURL:  "https://atelier.example/return?result=success",
		CancelURL:   "https://atelier.example/return?result=cancel",
		Metadata: map[string]string{
			"contract_id": "contract-1",
			"request_id":  "request-1",
		},
	})
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	if session.SessionID != "cs_live_1" {
		t.Fatalf("unexpected session id: %s", session.SessionID)
	}
	if !strings.Contains(session.URL, "cs_live_1") {
		t.Fatalf("unexpected session url: %s", session.URL)
	}

	if authUser != "sk_test_key" {
		t.Fatalf("expected api key as basic auth user, got %q", authUser)
	}
	if captured.Get("mode") != "payment" {
		t.Fatalf("unexpected mode: %q", captured.Get("mode"))
	}
	if captured.Get("line_items[0][price_data][currency]") != "jpy" {
		t.Fatalf("unexpected currency: %q", captured.Get("line_items[0][price_data][currency]"))
	}
	// 12000 yen must go over the wire as 12000, not 1200000.
	if captured.Get("line_items[0][price_data][unit_amount]") != "12000" {
		t.Fatalf("unexpected unit_amount: %q", captured.Get("line_items[0][price_data][unit_amount]"))
	}
	if captured.Get("metadata[contract_id]") != "contract-1" {
		t.Fatalf("missing contract metadata: %v", captured)
	}
	if captured.Get("metadata[request_id]") != "request-1" {
		t.Fatalf("missing request metadata: %v", captured)
	}
}

func TestCreateSessionSurfacesProviderRejection(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"message":"account inactive"}}`))
	}))
	defer provider.Close()

	client := NewClientWithBaseURL("sk_test_key", provider.URL, nil)
	_, err := client.CreateSession(context.Background(), ports.CheckoutSessionSpec{
		AmountYen:   500,
		Description: "Sticker",
	})
	if err == nil {
		t.Fatalf("expected error on provider rejection")
	}
}
