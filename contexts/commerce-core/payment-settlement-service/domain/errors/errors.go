package errors

import "errors"

var (
	ErrRequestNotFound          = errors.New("work request not found")
	ErrContractNotFound         = errors.New("work contract not found")
	ErrPriceNotSet              = errors.New("work request has no confirmed price")
	ErrInvalidSignature         = errors.New("webhook signature verification failed")
	ErrProviderUnavailable      = errors.New("checkout provider unavailable")
	ErrSettlementWriteFailed    = errors.New("settlement write failed")
	ErrRepositoryInvariantBroke = errors.New("payment settlement repository invariant broken")
)
