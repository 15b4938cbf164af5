// Package paymentsettlement contains the Atelier escrow payment settlement
// pipeline: hosted checkout session creation, webhook authentication, and
// idempotent reconciliation of settlement events into the contract/request
// pair.
//
// The module keeps domain/application logic decoupled from runtime/platform
// concerns through ports and adapter composition.
package paymentsettlement
