package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
	"github.com/zlovtnik/leasebill/internal/billing/repository"
	"github.com/zlovtnik/leasebill/internal/middleware"
	"github.com/zlovtnik/leasebill/internal/models"
	"github.com/zlovtnik/leasebill/pkg/fp"
)

// Error codes for billing handlers
const (
	ErrCodeInvalidJSON    = "INVALID_JSON"
	ErrCodeInvalidID      = "INVALID_ID"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeInvoicing      = "INVOICING_FAILED"
	ErrCodeNoOwner        = "NO_OWNER"
	ErrCodeInvalidRange   = "INVALID_RANGE"
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
)

const (
	dateLayout         = "2006-01-02"
	maxRequestBodySize = 1 << 20
)

var validate = validator.New()

// Actors turns the caller's token into the actor recorded in the audit trail
type Actors struct {
	// PrivilegedRole lets its holders cancel contracts with a pending balance
	PrivilegedRole string
}

// Actor builds the domain actor for the request
func (a Actors) Actor(r *http.Request) domain.Actor {
	claims := middleware.GetClaims(r.Context())
	if claims == nil {
		return domain.Actor{}
	}
	return domain.Actor{
		UserID:     domain.UserID(claims.UserID()),
		Name:       claims.User,
		Privileged: claims.HasRole(a.PrivilegedRole),
	}
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// It writes the error response itself and reports whether dst is usable.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidJSON, "invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make(map[string]string, len(ve))
			for _, fe := range ve {
				fields[fe.Field()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, models.ErrorResponse(ErrCodeValidation, "validation failed", fields))
			return false
		}
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return false
	}
	return true
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	if data == nil {
		w.WriteHeader(status)
		return
	}

	// Encode first so a failure can still produce a clean 500
	body, err := json.Marshal(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to encode response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.ErrorResponse(code, message, nil))
}

// writeServiceError maps billing errors onto HTTP statuses
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		ae *domain.AmendmentError
		se *domain.ScheduleError
		pe *domain.ProrationError
		ie *domain.InvoiceEmissionError
		de domain.DomainError
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "resource not found")
	case errors.Is(err, repository.ErrVersionConflict):
		writeError(w, http.StatusConflict, ErrCodeConflict, "contract was modified concurrently, retry")
	case errors.Is(err, repository.ErrLockedInstallment):
		writeError(w, http.StatusConflict, string(domain.AmendmentLockedOperation), err.Error())
	case errors.As(err, &ae):
		writeAmendmentError(w, ae)
	case errors.As(err, &se):
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse(ErrCodeInvalidRange, se.Error(), map[string]string{"from": se.From, "to": se.To}))
	case errors.As(err, &pe):
		writeJSON(w, http.StatusConflict, models.ErrorResponse(ErrCodeNoOwner, pe.Error(), map[string]string{"property_id": pe.PropertyID.String()}))
	case errors.As(err, &ie):
		logger.Error("invoice emission failed", "request_id", middleware.GetRequestID(r.Context()), "error", err)
		writeJSON(w, http.StatusBadGateway, models.ErrorResponse(ErrCodeInvoicing, "invoicing service rejected the request",
			map[string]string{"reference": ie.Reference, "partner_id": ie.PartnerID.String()}))
	case errors.As(err, &de):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, de.Error())
	default:
		logger.Error("billing request failed",
			"request_id", middleware.GetRequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

func writeAmendmentError(w http.ResponseWriter, ae *domain.AmendmentError) {
	status := http.StatusBadRequest
	var details any
	switch ae.Kind {
	case domain.AmendmentPendingBalance:
		status = http.StatusConflict
		details = map[string]any{"count": ae.PendingCount, "amount": ae.PendingAmount.StringFixed(domain.DefaultCurrencyPlaces)}
	case domain.AmendmentShrinkPastPaid, domain.AmendmentLockedOperation:
		status = http.StatusConflict
		details = map[string]any{"serial": ae.Serial}
	case domain.AmendmentInvalidState:
		status = http.StatusConflict
	case domain.AmendmentLineNotFound:
		status = http.StatusNotFound
	}
	writeJSON(w, status, models.ErrorResponse(string(ae.Kind), ae.Error(), details))
}

func parseUUID(r *http.Request, param string) (uuid.UUID, error) {
	raw := r.PathValue(param)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("ID not found for param %s", param)
	}
	return uuid.Parse(raw)
}

func parseContractID(w http.ResponseWriter, r *http.Request) (domain.ContractID, bool) {
	id, err := parseUUID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidID, "invalid contract id")
		return domain.ContractID{}, false
	}
	return domain.ContractID(id), true
}

func parseSerial(w http.ResponseWriter, r *http.Request) (int, bool) {
	serial, err := strconv.Atoi(r.PathValue("serial"))
	if err != nil || serial < 1 {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidID, "invalid installment serial")
		return 0, false
	}
	return serial, true
}

// parsePagination extracts pagination parameters from query string
func parsePagination(r *http.Request) models.PaginationParams {
	p := models.DefaultPagination()
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		p.Page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && v > 0 && v <= models.MaxPageSize {
		p.PageSize = v
	}
	return p
}

// parseDate parses an optional YYYY-MM-DD value. Empty input yields nil.
func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// mustDate parses a date that already passed the datetime validator
func mustDate(raw string) time.Time {
	t, _ := time.Parse(dateLayout, raw)
	return t
}

// mustDecimal parses an amount that already passed the numeric validator
func mustDecimal(raw string) decimal.Decimal {
	d, _ := decimal.NewFromString(raw)
	return d
}

func optionalDecimal(raw *string) *decimal.Decimal {
	if raw == nil {
		return nil
	}
	d := mustDecimal(*raw)
	return &d
}

// asOf reads an optional as_of date, defaulting to today
func asOf(raw string, now func() time.Time) (time.Time, error) {
	t, err := parseDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return domain.Date(now()), nil
	}
	return *t, nil
}

// nonNil keeps empty lists encoding as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// writeResult writes the value of a successful result or maps its error
func writeResult[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, result fp.Result[T]) {
	if err := fp.GetError(result); err != nil {
		writeServiceError(w, r, logger, err)
		return
	}
	writeJSON(w, status, models.SuccessResponse(fp.GetValue(result)))
}
