package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"atelier/contexts/commerce-core/payment-settlement-service/ports"
)

const defaultBaseURL = "https://api.stripe.com"

// Client creates hosted checkout sessions over the provider's form-encoded
// REST API. Safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// NewClientWithBaseURL keeps the transport overridable for test servers.
func NewClientWithBaseURL(apiKey string, baseURL string, logger *slog.Logger) *Client {
	client := NewClient(apiKey, logger)
	if strings.TrimSpace(baseURL) != "" {
		client.baseURL = strings.TrimRight(baseURL, "/")
	}
	return client
}

func (c *Client) CreateSession(ctx context.Context, spec ports.CheckoutSessionSpec) (ports.CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", spec.SuccessURL)
	form.Set("cancel_url", spec.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	// JPY is a zero-decimal currency: unit_amount is whole yen.
	form.Set("line_items[0][price_data][currency]", "jpy")
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(spec.AmountYen, 10))
	form.Set("line_items[0][price_data][product_data][name]", spec.Description)
	for key, value := range spec.Metadata {
		form.Set("metadata["+key+"]", value)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/v1/checkout/sessions",
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return ports.CheckoutSession{}, fmt.Errorf("build checkout session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.apiKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.CheckoutSession{}, fmt.Errorf("create checkout session: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("checkout session create rejected",
			"event", "stripe_checkout_session_rejected",
			"module", "commerce-core/payment-settlement-service",
			"layer", "adapter",
			"status", resp.StatusCode,
		)
		return ports.CheckoutSession{}, fmt.Errorf("create checkout session: provider status %d", resp.StatusCode)
	}

	var body struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ports.CheckoutSession{}, fmt.Errorf("decode checkout session response: %w", err)
	}
	return ports.CheckoutSession{
		SessionID: body.ID,
		URL:       body.URL,
	}, nil
}
