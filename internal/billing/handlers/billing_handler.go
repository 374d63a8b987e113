package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/zlovtnik/leasebill/internal/billing/service"
	"github.com/zlovtnik/leasebill/internal/middleware"
	"github.com/zlovtnik/leasebill/internal/models"
)

// BillingHandler triggers invoicing, late fee assessment and billing runs
type BillingHandler struct {
	svc    *service.BillingService
	run    *service.BillingRun
	actors Actors
	logger *slog.Logger
	now    func() time.Time
}

// NewBillingHandler creates a new BillingHandler. run may be nil, which
// disables the on-demand run endpoint.
func NewBillingHandler(svc *service.BillingService, run *service.BillingRun, actors Actors, logger *slog.Logger) *BillingHandler {
	if svc == nil {
		panic("billing service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{svc: svc, run: run, actors: actors, logger: logger, now: time.Now}
}

// AsOfRequest is the optional body of billing operations
type AsOfRequest struct {
	AsOf string `json:"as_of,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// BillDue handles POST /api/v1/billing/contracts/{id}/bill
func (h *BillingHandler) BillDue(w http.ResponseWriter, r *http.Request) {
	id, ok := parseContractID(w, r)
	if !ok {
		return
	}
	at, ok := h.asOf(w, r)
	if !ok {
		return
	}
	writeResult(w, r, h.logger, http.StatusOK, h.svc.BillDue(r.Context(), middleware.GetTenantID(r.Context()), id, at))
}

// AssessLateFees handles POST /api/v1/billing/contracts/{id}/late-fees
func (h *BillingHandler) AssessLateFees(w http.ResponseWriter, r *http.Request) {
	id, ok := parseContractID(w, r)
	if !ok {
		return
	}
	at, ok := h.asOf(w, r)
	if !ok {
		return
	}
	writeResult(w, r, h.logger, http.StatusOK, h.svc.AssessLateFees(r.Context(), middleware.GetTenantID(r.Context()), id, at))
}

// Run handles POST /api/v1/billing/runs. It runs the billing cycle for the
// caller's tenant and is restricted to privileged callers.
func (h *BillingHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h.run == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "billing run is not configured")
		return
	}
	if !h.actors.Actor(r).Privileged {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "billing runs require a privileged role")
		return
	}
	at, ok := h.asOf(w, r)
	if !ok {
		return
	}

	tenantID := middleware.GetTenantID(r.Context())
	report, err := h.run.RunTenant(r.Context(), tenantID, at)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SuccessResponse(report))
}

func (h *BillingHandler) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	var req AsOfRequest
	if r.ContentLength != 0 && !decodeAndValidate(w, r, &req) {
		return time.Time{}, false
	}
	at, err := asOf(req.AsOf, h.now)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "as_of must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return at, true
}
