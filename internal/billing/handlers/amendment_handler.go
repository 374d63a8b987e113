package handlers

import (
	"log/slog"
	"net/http"

	"github.com/zlovtnik/leasebill/internal/billing/domain"
	"github.com/zlovtnik/leasebill/internal/billing/service"
	"github.com/zlovtnik/leasebill/internal/middleware"
)

// AmendmentHandler exposes one endpoint per amendment operation
type AmendmentHandler struct {
	svc    *service.AmendmentService
	actors Actors
	logger *slog.Logger
}

// NewAmendmentHandler creates a new AmendmentHandler
func NewAmendmentHandler(svc *service.AmendmentService, actors Actors, logger *slog.Logger) *AmendmentHandler {
	if svc == nil {
		panic("amendment service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AmendmentHandler{svc: svc, actors: actors, logger: logger}
}

// NewEndRequest is the body of extend and modify-dates
type NewEndRequest struct {
	NewEnd string `json:"new_end" validate:"required,datetime=2006-01-02"`
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// RenewRequest is the body of renew. A missing fee keeps the current one.
type RenewRequest struct {
	NewEnd       string  `json:"new_end" validate:"required,datetime=2006-01-02"`
	NewRentalFee *string `json:"new_rental_fee,omitempty" validate:"omitempty,numeric"`
	Reason       string  `json:"reason,omitempty" validate:"max=500"`
}

// ModifyAmountRequest is the body of modify-amount
type ModifyAmountRequest struct {
	NewFee        string `json:"new_fee" validate:"required,numeric"`
	EffectiveDate string `json:"effective_date" validate:"required,datetime=2006-01-02"`
	Reason        string `json:"reason,omitempty" validate:"max=500"`
}

// CancelRequest is the body of cancel
type CancelRequest struct {
	EffectiveDate  string  `json:"effective_date" validate:"required,datetime=2006-01-02"`
	Type           string  `json:"type" validate:"required,oneof=MUTUAL BY_LESSEE BY_OWNER NON_PAYMENT"`
	Penalty        *string `json:"penalty,omitempty" validate:"omitempty,numeric"`
	BillPenaltyNow bool    `json:"bill_penalty_now"`
	Reason         string  `json:"reason,omitempty" validate:"max=500"`
}

// SuspendRequest is the body of suspend
type SuspendRequest struct {
	Start  string `json:"start" validate:"required,datetime=2006-01-02"`
	End    string `json:"end" validate:"required,datetime=2006-01-02"`
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// ReasonRequest is the optional body of reactivate
type ReasonRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// TerminateLineRequest is the body of a line termination
type TerminateLineRequest struct {
	EffectiveDate string `json:"effective_date" validate:"required,datetime=2006-01-02"`
	Reason        string `json:"reason,omitempty" validate:"max=500"`
}

// Extend handles POST /api/v1/billing/contracts/{id}/extend
func (h *AmendmentHandler) Extend(w http.ResponseWriter, r *http.Request) {
	var req NewEndRequest
	if id, ok := h.decode(w, r, &req); ok {
		h.apply(w, r, id, domain.Extend{NewEnd: mustDate(req.NewEnd)}, req.Reason)
	}
}

// Renew handles POST /api/v1/billing/contracts/{id}/renew
func (h *AmendmentHandler) Renew(w http.ResponseWriter, r *http.Request) {
	var req RenewRequest
	if id, ok := h.decode(w, r, &req); ok {
		h.apply(w, r, id, domain.Renew{NewEnd: mustDate(req.NewEnd), NewRentalFee: optionalDecimal(req.NewRentalFee)}, req.Reason)
	}
}

// ModifyAmount handles POST /api/v1/billing/contracts/{id}/modify-amount
func (h *AmendmentHandler) ModifyAmount(w http.ResponseWriter, r *http.Request) {
	var req ModifyAmountRequest
	if id, ok := h.decode(w, r, &req); ok {
		h.apply(w, r, id, domain.ModifyAmount{NewFee: mustDecimal(req.NewFee), EffectiveDate: mustDate(req.EffectiveDate)}, req.Reason)
	}
}

// ModifyDates handles POST /api/v1/billing/contracts/{id}/modify-dates
func (h *AmendmentHandler) ModifyDates(w http.ResponseWriter, r *http.Request) {
	var req NewEndRequest
	if id, ok := h.decode(w, r, &req); ok {
		h.apply(w, r, id, domain.ModifyDates{NewEnd: mustDate(req.NewEnd)}, req.Reason)
	}
}

// Cancel handles POST /api/v1/billing/contracts/{id}/cancel
func (h *AmendmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if id, ok := h.decode(w, r, &req); ok {
		h.apply(w, r, id, domain.Cancel{
			EffectiveDate:  mustDate(req.EffectiveDate),
			Type:           domain.CancellationType(req.Type),
			Penalty:        optionalDecimal(req.Penalty),
			BillPenaltyNow: req.BillPenaltyNow,
		}, req.Reason)
	}
}

// Suspend handles POST /api/v1/billing/contracts/{id}/suspend
func (h *AmendmentHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	var req SuspendRequest
	if id, ok := h.decode(w, r, &req); ok {
		h.apply(w, r, id, domain.Suspend{Start: mustDate(req.Start), End: mustDate(req.End)}, req.Reason)
	}
}

// Reactivate handles POST /api/v1/billing/contracts/{id}/reactivate.
// The body is optional.
func (h *AmendmentHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseContractID(w, r)
	if !ok {
		return
	}
	var req ReasonRequest
	if r.ContentLength != 0 && !decodeAndValidate(w, r, &req) {
		return
	}
	h.apply(w, r, id, domain.Reactivate{}, req.Reason)
}

// TerminateLine handles POST /api/v1/billing/contracts/{id}/lines/{line_id}/terminate
func (h *AmendmentHandler) TerminateLine(w http.ResponseWriter, r *http.Request) {
	lineID, err := parseUUID(r, "line_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidID, "invalid line id")
		return
	}
	var req TerminateLineRequest
	if id, ok := h.decode(w, r, &req); ok {
		h.apply(w, r, id, domain.TerminateLine{
			LineID:        domain.ContractLineID(lineID),
			EffectiveDate: mustDate(req.EffectiveDate),
			Reason:        req.Reason,
		}, req.Reason)
	}
}

func (h *AmendmentHandler) decode(w http.ResponseWriter, r *http.Request, dst any) (domain.ContractID, bool) {
	id, ok := parseContractID(w, r)
	if !ok {
		return id, false
	}
	return id, decodeAndValidate(w, r, dst)
}

func (h *AmendmentHandler) apply(w http.ResponseWriter, r *http.Request, id domain.ContractID, a domain.Amendment, reason string) {
	writeResult(w, r, h.logger, http.StatusOK, h.svc.Apply(r.Context(), middleware.GetTenantID(r.Context()), domain.AmendmentRequest{
		ContractID: id,
		Amendment:  a,
		Actor:      h.actors.Actor(r),
		Reason:     reason,
	}))
}
