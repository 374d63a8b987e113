package router

import (
	"net/http"

	billinghandlers "github.com/zlovtnik/leasebill/internal/billing/handlers"
)

// BillingRouter handles routing for billing endpoints
type BillingRouter struct {
	mux *http.ServeMux

	contractHandler       *billinghandlers.ContractHandler
	amendmentHandler      *billinghandlers.AmendmentHandler
	specialPaymentHandler *billinghandlers.SpecialPaymentHandler
	billingHandler        *billinghandlers.BillingHandler
}

// BillingHandlerSet contains all billing handlers
type BillingHandlerSet struct {
	ContractHandler       *billinghandlers.ContractHandler
	AmendmentHandler      *billinghandlers.AmendmentHandler
	SpecialPaymentHandler *billinghandlers.SpecialPaymentHandler
	BillingHandler        *billinghandlers.BillingHandler
}

// NewBillingRouter creates a new BillingRouter with the provided handlers.
// Panics if mux is nil.
func NewBillingRouter(mux *http.ServeMux, handlers BillingHandlerSet) *BillingRouter {
	if mux == nil {
		panic("nil mux passed to NewBillingRouter")
	}
	return &BillingRouter{
		mux:                   mux,
		contractHandler:       handlers.ContractHandler,
		amendmentHandler:      handlers.AmendmentHandler,
		specialPaymentHandler: handlers.SpecialPaymentHandler,
		billingHandler:        handlers.BillingHandler,
	}
}

// RegisterRoutes registers all billing routes with the mux.
// Auth middleware is applied globally by the main router.
func (r *BillingRouter) RegisterRoutes() {
	// Contract lifecycle and schedule
	if r.contractHandler != nil {
		r.mux.HandleFunc("POST /api/v1/billing/contracts", r.contractHandler.Create)
		r.mux.HandleFunc("GET /api/v1/billing/contracts", r.contractHandler.List)
		r.mux.HandleFunc("GET /api/v1/billing/contracts/{id}", r.contractHandler.Get)
		r.mux.HandleFunc("POST /api/v1/billing/contracts/{id}/confirm", r.contractHandler.Confirm)
		r.mux.HandleFunc("POST /api/v1/billing/contracts/{id}/activate", r.contractHandler.Activate)
		r.mux.HandleFunc("GET /api/v1/billing/contracts/{id}/installments", r.contractHandler.Installments)
		r.mux.HandleFunc("GET /api/v1/billing/contracts/{id}/installments/{serial}/shares", r.contractHandler.Shares)
		r.mux.HandleFunc("POST /api/v1/billing/contracts/{id}/installments/{serial}/payments", r.contractHandler.RecordPayment)
		r.mux.HandleFunc("GET /api/v1/billing/contracts/{id}/audit", r.contractHandler.Audit)
	}

	// Amendments, one endpoint per operation
	if r.amendmentHandler != nil {
		r.mux.HandleFunc("POST /api/v1/billing/contracts/{id}/extend", r.amendmentHandler.Extend)
		r.mux.HandleFunc("POST /api/v1/billing/contracts/{id}/renew", r.amendmentHandler.Renew)
		r.mux.HandleFunc("POST /api/v1/billing/contracts/{id}/modify-amount", r.amendmentHandler.ModifyAmount)
		r.mux.HandleFunc("POST /api/v1/billing/contracts/{id}/modify-dates", r.amendmentHandler.ModifyDates)
		r.mux.HandleFunc("POST /api/v1/billing/contracts/{id}/cancel", r.amendmentHandler.Cancel)
		r.mux.HandleFunc("POST /api/v1/billing/contracts/{id}/suspend", r.amendmentHandler.Suspend)
		r.mux.HandleFunc("POST /api/v1/billing/contracts/{id}/reactivate", r.amendmentHandler.Reactivate)
		r.mux.HandleFunc("POST /api/v1/billing/contracts/{id}/lines/{line_id}/terminate", r.amendmentHandler.TerminateLine)
	}

	// Special payments
	if r.specialPaymentHandler != nil {
		r.mux.HandleFunc("POST /api/v1/billing/contracts/{id}/special-payments", r.specialPaymentHandler.Create)
		r.mux.HandleFunc("GET /api/v1/billing/contracts/{id}/special-payments", r.specialPaymentHandler.ListByContract)
		r.mux.HandleFunc("GET /api/v1/billing/special-payments/{id}", r.specialPaymentHandler.Get)
		r.mux.HandleFunc("POST /api/v1/billing/special-payments/{id}/confirm", r.specialPaymentHandler.Confirm)
		r.mux.HandleFunc("POST /api/v1/billing/special-payments/{id}/invoice", r.specialPaymentHandler.Invoice)
		r.mux.HandleFunc("POST /api/v1/billing/special-payments/{id}/pay", r.specialPaymentHandler.MarkPaid)
		r.mux.HandleFunc("POST /api/v1/billing/special-payments/{id}/cancel", r.specialPaymentHandler.Cancel)
	}

	// Billing
	if r.billingHandler != nil {
		r.mux.HandleFunc("POST /api/v1/billing/contracts/{id}/bill", r.billingHandler.BillDue)
		r.mux.HandleFunc("POST /api/v1/billing/contracts/{id}/late-fees", r.billingHandler.AssessLateFees)
		r.mux.HandleFunc("POST /api/v1/billing/runs", r.billingHandler.Run)
	}
}
