package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
	"github.com/zlovtnik/leasebill/internal/billing/repository"
	"github.com/zlovtnik/leasebill/internal/billing/service"
	"github.com/zlovtnik/leasebill/internal/middleware"
	"github.com/zlovtnik/leasebill/internal/models"
	"github.com/zlovtnik/leasebill/pkg/fp"
)

// ContractHandler handles contract lifecycle, schedule and payment requests
type ContractHandler struct {
	svc    *service.ContractService
	actors Actors
	logger *slog.Logger
}

// NewContractHandler creates a new ContractHandler
func NewContractHandler(svc *service.ContractService, actors Actors, logger *slog.Logger) *ContractHandler {
	if svc == nil {
		panic("contract service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ContractHandler{svc: svc, actors: actors, logger: logger}
}

// CreateContractRequest is the body of POST /contracts
type CreateContractRequest struct {
	ContractNumber       string              `json:"contract_number" validate:"required,max=50"`
	PropertyID           string              `json:"property_id" validate:"omitempty,uuid"`
	LesseeID             string              `json:"lessee_id" validate:"required,uuid"`
	OwnerID              string              `json:"owner_id,omitempty" validate:"omitempty,uuid"`
	DateFrom             string              `json:"date_from" validate:"required,datetime=2006-01-02"`
	DateTo               string              `json:"date_to" validate:"required,datetime=2006-01-02"`
	RentalFee            string              `json:"rental_fee" validate:"omitempty,numeric"`
	Currency             string              `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	CommissionPercentage string              `json:"commission_percentage,omitempty" validate:"omitempty,numeric"`
	CommissionBase       string              `json:"commission_base,omitempty" validate:"omitempty,oneof=GROSS NET_OF_INSURANCE"`
	InsuranceFee         string              `json:"insurance_fee,omitempty" validate:"omitempty,numeric"`
	InterestRate         string              `json:"interest_rate,omitempty" validate:"omitempty,numeric"`
	GraceDays            int                 `json:"grace_days" validate:"gte=0"`
	PeriodicityMonths    int                 `json:"periodicity_months,omitempty" validate:"omitempty,oneof=1 3 6 12"`
	DestinationAccount   string              `json:"destination_account,omitempty" validate:"max=64"`
	Lines                []CreateLineRequest `json:"lines,omitempty" validate:"omitempty,dive"`
}

// CreateLineRequest is one property of a multi-property contract
type CreateLineRequest struct {
	PropertyID string `json:"property_id" validate:"required,uuid"`
	RentalFee  string `json:"rental_fee" validate:"required,numeric"`
	DateFrom   string `json:"date_from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DateTo     string `json:"date_to,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

func (req CreateContractRequest) toService() service.CreateContractRequest {
	out := service.CreateContractRequest{
		ContractNumber:       strings.TrimSpace(req.ContractNumber),
		LesseeID:             domain.PartnerID(uuid.MustParse(req.LesseeID)),
		DateFrom:             mustDate(req.DateFrom),
		DateTo:               mustDate(req.DateTo),
		RentalFee:            mustDecimal(req.RentalFee),
		Currency:             strings.ToUpper(req.Currency),
		CommissionPercentage: mustDecimal(req.CommissionPercentage),
		CommissionBase:       domain.CommissionBase(req.CommissionBase),
		InsuranceFee:         mustDecimal(req.InsuranceFee),
		InterestRate:         mustDecimal(req.InterestRate),
		GraceDays:            req.GraceDays,
		PeriodicityMonths:    req.PeriodicityMonths,
		DestinationAccount:   req.DestinationAccount,
	}
	if out.PeriodicityMonths == 0 {
		out.PeriodicityMonths = 1
	}
	if req.PropertyID != "" {
		out.PropertyID = domain.PropertyID(uuid.MustParse(req.PropertyID))
	}
	if req.OwnerID != "" {
		owner := domain.PartnerID(uuid.MustParse(req.OwnerID))
		out.OwnerID = &owner
	}
	for _, l := range req.Lines {
		line := service.CreateLineRequest{
			PropertyID: domain.PropertyID(uuid.MustParse(l.PropertyID)),
			RentalFee:  mustDecimal(l.RentalFee),
		}
		if l.DateFrom != "" {
			from := mustDate(l.DateFrom)
			line.DateFrom = &from
		}
		if l.DateTo != "" {
			to := mustDate(l.DateTo)
			line.DateTo = &to
		}
		out.Lines = append(out.Lines, line)
	}
	return out
}

// Create handles POST /api/v1/billing/contracts
func (h *ContractHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result := h.svc.Create(r.Context(), middleware.GetTenantID(r.Context()), req.toService(), h.actors.Actor(r))
	if err := fp.GetError(result); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.SuccessResponse(fp.GetValue(result)))
}

// List handles GET /api/v1/billing/contracts?state=ACTIVE&state=EXPIRED
func (h *ContractHandler) List(w http.ResponseWriter, r *http.Request) {
	var states []domain.ContractState
	for _, raw := range r.URL.Query()["state"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
				states = append(states, domain.ContractState(s))
			}
		}
	}
	for _, s := range states {
		if _, ok := domain.ValidTransitions[s]; !ok {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown contract state "+string(s))
			return
		}
	}

	result := h.svc.List(r.Context(), middleware.GetTenantID(r.Context()), states...)
	if err := fp.GetError(result); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SuccessResponse(models.Paginate(fp.GetValue(result), parsePagination(r))))
}

// Get handles GET /api/v1/billing/contracts/{id}
func (h *ContractHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseContractID(w, r)
	if !ok {
		return
	}
	writeResult(w, r, h.logger, http.StatusOK, h.svc.Get(r.Context(), middleware.GetTenantID(r.Context()), id))
}

// Confirm handles POST /api/v1/billing/contracts/{id}/confirm
func (h *ContractHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := parseContractID(w, r)
	if !ok {
		return
	}
	writeResult(w, r, h.logger, http.StatusOK, h.svc.Confirm(r.Context(), middleware.GetTenantID(r.Context()), id, h.actors.Actor(r)))
}

// Activate handles POST /api/v1/billing/contracts/{id}/activate
func (h *ContractHandler) Activate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseContractID(w, r)
	if !ok {
		return
	}
	writeResult(w, r, h.logger, http.StatusOK, h.svc.Activate(r.Context(), middleware.GetTenantID(r.Context()), id, h.actors.Actor(r)))
}

// Installments handles GET /api/v1/billing/contracts/{id}/installments?from=&to=&payment_state=
func (h *ContractHandler) Installments(w http.ResponseWriter, r *http.Request) {
	id, ok := parseContractID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "from must be YYYY-MM-DD")
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "to must be YYYY-MM-DD")
		return
	}
	filter := repository.InstallmentFilter{From: from, To: to}
	if raw := strings.ToUpper(q.Get("payment_state")); raw != "" {
		state := domain.PaymentState(raw)
		switch state {
		case domain.PaymentStateNotPaid, domain.PaymentStatePartial, domain.PaymentStatePaid:
			filter.PaymentState = &state
		default:
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown payment state "+raw)
			return
		}
	}

	result := h.svc.ListInstallments(r.Context(), middleware.GetTenantID(r.Context()), id, filter)
	writeResult(w, r, h.logger, http.StatusOK, fp.Map(nonNil[domain.Installment])(result))
}

// Shares handles GET /api/v1/billing/contracts/{id}/installments/{serial}/shares
func (h *ContractHandler) Shares(w http.ResponseWriter, r *http.Request) {
	id, ok := parseContractID(w, r)
	if !ok {
		return
	}
	serial, ok := parseSerial(w, r)
	if !ok {
		return
	}
	writeResult(w, r, h.logger, http.StatusOK, h.svc.Shares(r.Context(), middleware.GetTenantID(r.Context()), id, serial))
}

// RecordPaymentRequest is the body of POST .../installments/{serial}/payments
type RecordPaymentRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
}

// RecordPayment handles POST /api/v1/billing/contracts/{id}/installments/{serial}/payments
func (h *ContractHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := parseContractID(w, r)
	if !ok {
		return
	}
	serial, ok := parseSerial(w, r)
	if !ok {
		return
	}
	var req RecordPaymentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	writeResult(w, r, h.logger, http.StatusOK,
		h.svc.RecordPayment(r.Context(), middleware.GetTenantID(r.Context()), id, serial, mustDecimal(req.Amount), h.actors.Actor(r)))
}

// Audit handles GET /api/v1/billing/contracts/{id}/audit
func (h *ContractHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseContractID(w, r)
	if !ok {
		return
	}
	tenantID := middleware.GetTenantID(r.Context())
	// an unknown contract is a 404, not an empty trail
	if err := fp.GetError(h.svc.Get(r.Context(), tenantID, id)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeResult(w, r, h.logger, http.StatusOK, fp.Map(nonNil[domain.AuditEntry])(h.svc.Audit(r.Context(), tenantID, id)))
}
