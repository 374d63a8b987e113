package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
	"github.com/zlovtnik/leasebill/internal/billing/service"
	"github.com/zlovtnik/leasebill/internal/middleware"
	"github.com/zlovtnik/leasebill/pkg/fp"
)

// SpecialPaymentHandler handles special payment requests
type SpecialPaymentHandler struct {
	svc    *service.SpecialPaymentService
	actors Actors
	logger *slog.Logger
}

// NewSpecialPaymentHandler creates a new SpecialPaymentHandler
func NewSpecialPaymentHandler(svc *service.SpecialPaymentService, actors Actors, logger *slog.Logger) *SpecialPaymentHandler {
	if svc == nil {
		panic("special payment service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SpecialPaymentHandler{svc: svc, actors: actors, logger: logger}
}

// CreateSpecialPaymentRequest is the body of POST /contracts/{id}/special-payments
type CreateSpecialPaymentRequest struct {
	Type                 string `json:"type" validate:"required,oneof=EXTRA_PAYMENT EARLY_PAYMENT LATE_FEE ADJUSTMENT ADMIN_FEE INSURANCE PENALTY OTHER"`
	Amount               string `json:"amount" validate:"required,numeric"`
	Date                 string `json:"date" validate:"required,datetime=2006-01-02"`
	Description          string `json:"description,omitempty" validate:"max=500"`
	ReferenceInstallment string `json:"reference_installment,omitempty" validate:"omitempty,uuid"`
}

// Create handles POST /api/v1/billing/contracts/{id}/special-payments
func (h *SpecialPaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	contractID, ok := parseContractID(w, r)
	if !ok {
		return
	}
	var req CreateSpecialPaymentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	in := service.CreateSpecialPaymentRequest{
		ContractID:  contractID,
		Type:        domain.SpecialPaymentType(req.Type),
		Amount:      mustDecimal(req.Amount),
		Date:        mustDate(req.Date),
		Description: req.Description,
	}
	if req.ReferenceInstallment != "" {
		ref := domain.InstallmentID(uuid.MustParse(req.ReferenceInstallment))
		in.ReferenceInstallment = &ref
	}
	writeResult(w, r, h.logger, http.StatusCreated, h.svc.Create(r.Context(), middleware.GetTenantID(r.Context()), in, h.actors.Actor(r)))
}

// ListByContract handles GET /api/v1/billing/contracts/{id}/special-payments
func (h *SpecialPaymentHandler) ListByContract(w http.ResponseWriter, r *http.Request) {
	contractID, ok := parseContractID(w, r)
	if !ok {
		return
	}
	result := h.svc.List(r.Context(), middleware.GetTenantID(r.Context()), contractID)
	writeResult(w, r, h.logger, http.StatusOK, fp.Map(nonNil[domain.SpecialPayment])(result))
}

// Get handles GET /api/v1/billing/special-payments/{id}
func (h *SpecialPaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if id, ok := parseSpecialPaymentID(w, r); ok {
		writeResult(w, r, h.logger, http.StatusOK, h.svc.Get(r.Context(), middleware.GetTenantID(r.Context()), id))
	}
}

// Confirm handles POST /api/v1/billing/special-payments/{id}/confirm
func (h *SpecialPaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if id, ok := parseSpecialPaymentID(w, r); ok {
		writeResult(w, r, h.logger, http.StatusOK, h.svc.Confirm(r.Context(), middleware.GetTenantID(r.Context()), id, h.actors.Actor(r)))
	}
}

// Invoice handles POST /api/v1/billing/special-payments/{id}/invoice
func (h *SpecialPaymentHandler) Invoice(w http.ResponseWriter, r *http.Request) {
	if id, ok := parseSpecialPaymentID(w, r); ok {
		writeResult(w, r, h.logger, http.StatusOK, h.svc.GenerateInvoice(r.Context(), middleware.GetTenantID(r.Context()), id, h.actors.Actor(r)))
	}
}

// MarkPaid handles POST /api/v1/billing/special-payments/{id}/pay
func (h *SpecialPaymentHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	if id, ok := parseSpecialPaymentID(w, r); ok {
		writeResult(w, r, h.logger, http.StatusOK, h.svc.MarkPaid(r.Context(), middleware.GetTenantID(r.Context()), id, h.actors.Actor(r)))
	}
}

// Cancel handles POST /api/v1/billing/special-payments/{id}/cancel
func (h *SpecialPaymentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if id, ok := parseSpecialPaymentID(w, r); ok {
		writeResult(w, r, h.logger, http.StatusOK, h.svc.Cancel(r.Context(), middleware.GetTenantID(r.Context()), id, h.actors.Actor(r)))
	}
}

func parseSpecialPaymentID(w http.ResponseWriter, r *http.Request) (domain.SpecialPaymentID, bool) {
	id, err := parseUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidID, "invalid special payment id")
		return domain.SpecialPaymentID{}, false
	}
	return domain.SpecialPaymentID(id), true
}
