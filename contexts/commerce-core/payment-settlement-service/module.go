package paymentsettlement

import (
	"log/slog"
	"time"

	httpadapter "atelier/contexts/commerce-core/payment-settlement-service/adapters/http"
	"atelier/contexts/commerce-core/payment-settlement-service/adapters/memory"
	stripeadapter "atelier/contexts/commerce-core/payment-settlement-service/adapters/stripe"
	"atelier/contexts/commerce-core/payment-settlement-service/application/commands"
	"atelier/contexts/commerce-core/payment-settlement-service/application/queries"
	"atelier/contexts/commerce-core/payment-settlement-service/ports"
)

type Module struct {
	Handler  httpadapter.Handler
	Verifier ports.WebhookVerifier

	// Store and Provider are populated by NewInMemoryModule only.
	Store    *memory.Store
	Provider *memory.Provider
}

type Dependencies struct {
	Requests                    ports.WorkRequestRepository
	Contracts                   ports.WorkContractRepository
	Provider                    ports.CheckoutProvider
	Verifier                    ports.WebhookVerifier
	Requesters                  ports.RequesterDirectory
	Clock                       ports.Clock
	IDGenerator                 ports.IDGenerator
	SuccessURL                  string
	CancelURL                   string
	DisableSettledEventEmission bool
	Logger                      *slog.Logger
}

func NewModule(deps Dependencies) Module {
	return Module{
		Handler: httpadapter.Handler{
			CreateSession: commands.CreateCheckoutSessionUseCase{
				Requests:   deps.Requests,
				Contracts:  deps.Contracts,
				Provider:   deps.Provider,
				Requesters: deps.Requesters,
				SuccessURL: deps.SuccessURL,
				CancelURL:  deps.CancelURL,
				Logger:     deps.Logger,
			},
			Reconcile: commands.ReconcileSettlementUseCase{
				Requests:                    deps.Requests,
				Contracts:                   deps.Contracts,
				Clock:                       deps.Clock,
				IDGenerator:                 deps.IDGenerator,
				DisableSettledEventEmission: deps.DisableSettledEventEmission,
				Logger:                      deps.Logger,
			},
			Status: queries.GetSettlementStatusUseCase{
				Requests:  deps.Requests,
				Contracts: deps.Contracts,
				Logger:    deps.Logger,
			},
			Logger: deps.Logger,
		},
		Verifier: deps.Verifier,
	}
}

func NewInMemoryModule(webhookSecret string, logger *slog.Logger) Module {
	store := memory.NewStore()
	provider := memory.NewProvider()
	module := NewModule(Dependencies{
		Requests:   store,
		Contracts:  store,
		Provider:   provider,
		Requesters: store,
		Verifier: stripeadapter.WebhookVerifier{
			SigningSecret: webhookSecret,
			Tolerance:     5 * time.Minute,
			Clock:         store,
		},
		Clock:       store,
		IDGenerator: store,
		SuccessURL:  "https://atelier.example/requests/return?result=success",
		CancelURL:   "https://atelier.example/requests/return?result=cancel",
		Logger:      logger,
	})
	module.Store = store
	module.Provider = provider
	return module
}
