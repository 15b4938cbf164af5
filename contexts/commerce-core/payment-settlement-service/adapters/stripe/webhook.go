package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	domainerrors "atelier/contexts/commerce-core/payment-settlement-service/domain/errors"
	"atelier/contexts/commerce-core/payment-settlement-service/ports"
)

const defaultTolerance = 5 * time.Minute

// WebhookVerifier authenticates provider notifications against the shared
// signing secret. It is a pure function of its inputs: no parse of the body
// happens before the keyed digest over the exact bytes checks out, and every
// failure mode collapses into ErrInvalidSignature so callers cannot learn
// which part of the check failed.
type WebhookVerifier struct {
	SigningSecret string
	Tolerance     time.Duration
	Clock         ports.Clock
}

func (v WebhookVerifier) Verify(rawBody []byte, signatureHeader string) (ports.ProviderEvent, error) {
	timestamp, candidates, ok := parseSignatureHeader(signatureHeader)
	if !ok {
		return ports.ProviderEvent{}, domainerrors.ErrInvalidSignature
	}

	issuedAt := time.Unix(timestamp, 0)
	if v.now().Sub(issuedAt).Abs() > v.tolerance() {
		return ports.ProviderEvent{}, domainerrors.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(v.SigningSecret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	matched := false
	for _, candidate := range candidates {
		decoded, err := hex.DecodeString(candidate)
		if err != nil {
			continue
		}
		if hmac.Equal(expected, decoded) {
			matched = true
		}
	}
	if !matched {
		return ports.ProviderEvent{}, domainerrors.ErrInvalidSignature
	}

	var payload struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Created int64  `json:"created"`
		Data    struct {
			Object struct {
				ID            string            `json:"id"`
				PaymentIntent string            `json:"payment_intent"`
				AmountTotal   int64             `json:"amount_total"`
				Metadata      map[string]string `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return ports.ProviderEvent{}, domainerrors.ErrInvalidSignature
	}
	if strings.TrimSpace(payload.ID) == "" || strings.TrimSpace(payload.Type) == "" {
		return ports.ProviderEvent{}, domainerrors.ErrInvalidSignature
	}

	return ports.ProviderEvent{
		EventID:         payload.ID,
		EventType:       payload.Type,
		SessionID:       payload.Data.Object.ID,
		PaymentIntentID: payload.Data.Object.PaymentIntent,
		AmountTotal:     payload.Data.Object.AmountTotal,
		Metadata:        payload.Data.Object.Metadata,
		OccurredAt:      time.Unix(payload.Created, 0).UTC(),
	}, nil
}

// parseSignatureHeader splits the "t=<unix>,v1=<hex>[,v1=<hex>...]" scheme.
// Multiple v1 entries appear during secret rotation.
func parseSignatureHeader(header string) (int64, []string, bool) {
	if strings.TrimSpace(header) == "" {
		return 0, nil, false
	}

	var timestamp int64
	sawTimestamp := false
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		pair := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(pair) != 2 {
			continue
		}
		switch pair[0] {
		case "t":
			parsed, err := strconv.ParseInt(pair[1], 10, 64)
			if err != nil {
				return 0, nil, false
			}
			timestamp = parsed
			sawTimestamp = true
		case "v1":
			candidates = append(candidates, pair[1])
		}
	}
	if !sawTimestamp || len(candidates) == 0 {
		return 0, nil, false
	}
	return timestamp, candidates, true
}

func (v WebhookVerifier) now() time.Time {
	if v.Clock == nil {
		return time.Now().UTC()
	}
	return v.Clock.Now().UTC()
}

func (v WebhookVerifier) tolerance() time.Duration {
	if v.Tolerance <= 0 {
		return defaultTolerance
	}
	return v.Tolerance
}
