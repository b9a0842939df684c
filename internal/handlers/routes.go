package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/bytefinance/backend/internal/middleware"
)

// API groups the handlers served under /api/v1. Payments is nil when Redis is
// not configured.
type API struct {
	Ledger   *LedgerHandler
	Loans    *LoanHandler
	Payments *PaymentRequestHandler
}

func (a *API) Mount(r chi.Router) {
	r.Get("/loans/quote", a.Loans.Quote)
	if a.Payments != nil {
		r.Get("/payment-requests/{requestID}", a.Payments.Get)
	}

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Use(middleware.UserScope)

		a.Ledger.Routes(r)
		a.Loans.Routes(r)
		if a.Payments != nil {
			a.Payments.Routes(r)
		}
	})
}
