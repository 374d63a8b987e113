package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
	billinghandlers "github.com/zlovtnik/leasebill/internal/billing/handlers"
	"github.com/zlovtnik/leasebill/internal/billing/repository"
	billingrouter "github.com/zlovtnik/leasebill/internal/billing/router"
	"github.com/zlovtnik/leasebill/internal/billing/service"
	"github.com/zlovtnik/leasebill/internal/handlers"
	"github.com/zlovtnik/leasebill/internal/models"
	"github.com/zlovtnik/leasebill/internal/router"
	"github.com/zlovtnik/leasebill/pkg/auth"
)

const (
	secret         = "0123456789abcdef0123456789abcdef"
	tenant         = "acme"
	privilegedRole = "billing_admin"
)

type emitter struct {
	mu    sync.Mutex
	count int
	fail  error
}

func (e *emitter) EmitInvoice(context.Context, service.InvoiceRequest) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail != nil {
		return "", e.fail
	}
	e.count++
	return fmt.Sprintf("INV-%04d", e.count), nil
}

func (e *emitter) failWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fail = err
}

type api struct {
	t        *testing.T
	server   *httptest.Server
	emitter  *emitter
	property domain.PropertyID
	lessee   domain.PartnerID
	clerk    string
	admin    string
}

type envelope struct {
	Success bool             `json:"success"`
	Data    json.RawMessage  `json:"data"`
	Error   *models.APIError `json:"error"`
}

func newAPI(t *testing.T) *api {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	owners := repository.NewMemoryOwnership()
	a := &api{
		t:        t,
		emitter:  &emitter{},
		property: domain.NewPropertyID(),
		lessee:   domain.NewPartnerID(),
	}
	owners.Put(tenant, a.property, domain.OwnershipTable{
		{PropertyID: a.property, PartnerID: domain.NewPartnerID(), Percentage: decimal.NewFromInt(60), IsMainOwner: true},
		{PropertyID: a.property, PartnerID: domain.NewPartnerID(), Percentage: decimal.NewFromInt(40)},
	})
	deps := service.Deps{
		Store:     repository.NewMemoryStore(),
		Invoices:  a.emitter,
		Ownership: owners,
		Logger:    logger,
		Now:       func() time.Time { return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) },
	}
	contracts := service.NewContractService(deps)
	billing := service.NewBillingService(deps)
	actors := billinghandlers.Actors{PrivilegedRole: privilegedRole}

	r := router.NewRouter(secret, nil, logger, handlers.NewHealthHandler(nil), billingrouter.BillingHandlerSet{
		ContractHandler:       billinghandlers.NewContractHandler(contracts, actors, logger),
		AmendmentHandler:      billinghandlers.NewAmendmentHandler(service.NewAmendmentService(deps), actors, logger),
		SpecialPaymentHandler: billinghandlers.NewSpecialPaymentHandler(service.NewSpecialPaymentService(deps), actors, logger),
		BillingHandler: billinghandlers.NewBillingHandler(billing,
			service.NewBillingRun(service.BillingConfig{Concurrency: 2}, contracts, billing, logger), actors, logger),
	})
	a.server = httptest.NewServer(r.Setup())
	t.Cleanup(a.server.Close)

	a.clerk = a.token("clerk")
	a.admin = a.token("admin", privilegedRole)
	return a
}

func (a *api) token(user string, roles ...string) string {
	s, err := auth.SignToken(&auth.Claims{
		User:     user,
		TenantID: tenant,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, secret)
	require.NoError(a.t, err)
	return s
}

func (a *api) do(method, path, token string, body any) (int, envelope) {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(a.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.server.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	if len(raw) > 0 {
		require.NoError(a.t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func (a *api) createActive() domain.Contract {
	a.t.Helper()
	status, env := a.do(http.MethodPost, "/api/v1/billing/contracts", a.clerk, map[string]any{
		"contract_number":       "LC-0001",
		"property_id":           a.property.String(),
		"lessee_id":             a.lessee.String(),
		"date_from":             "2024-01-01",
		"date_to":               "2024-06-01",
		"rental_fee":            "1000",
		"commission_percentage": "10",
	})
	require.Equal(a.t, http.StatusCreated, status, "%+v", env.Error)
	c := decode[domain.Contract](a.t, env)
	assert.Equal(a.t, domain.ContractStateDraft, c.State)

	base := "/api/v1/billing/contracts/" + c.ID.String()
	status, _ = a.do(http.MethodPost, base+"/confirm", a.clerk, nil)
	require.Equal(a.t, http.StatusOK, status)
	status, env = a.do(http.MethodPost, base+"/activate", a.clerk, nil)
	require.Equal(a.t, http.StatusOK, status)
	return decode[domain.Contract](a.t, env)
}

func amountsOf(items []domain.Installment) []string {
	out := make([]string, len(items))
	for i, inst := range items {
		out[i] = inst.Amount.Amount.StringFixed(2)
	}
	return out
}

func TestContractLifecycle(t *testing.T) {
	a := newAPI(t)
	c := a.createActive()
	base := "/api/v1/billing/contracts/" + c.ID.String()
	assert.Equal(t, domain.ContractStateActive, c.State)

	status, env := a.do(http.MethodGet, "/api/v1/billing/contracts?state=active", a.clerk, nil)
	require.Equal(t, http.StatusOK, status)
	page := decode[models.PaginatedResponse[domain.Contract]](t, env)
	assert.Equal(t, 1, page.TotalCount)

	status, env = a.do(http.MethodGet, base+"/installments", a.clerk, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]domain.Installment](t, env), 5)

	status, env = a.do(http.MethodPost, base+"/installments/1/payments", a.clerk, map[string]string{"amount": "1000"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.PaymentStatePaid, decode[domain.Installment](t, env).PaymentState)

	status, env = a.do(http.MethodGet, base+"/installments?payment_state=PAID", a.clerk, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]domain.Installment](t, env), 1)

	status, env = a.do(http.MethodGet, base+"/installments?from=2024-03-01&to=2024-05-01", a.clerk, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]domain.Installment](t, env), 2)

	status, env = a.do(http.MethodGet, base+"/installments/2/shares", a.clerk, nil)
	require.Equal(t, http.StatusOK, status)
	shares := decode[[]domain.PartnerShare](t, env)
	require.Len(t, shares, 2)
	assert.Equal(t, "1000.00", shares[0].Income.Add(shares[1].Income).StringFixed(2))

	status, env = a.do(http.MethodGet, base+"/audit", a.clerk, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]domain.AuditEntry](t, env), 4)
}

func TestAmendments(t *testing.T) {
	a := newAPI(t)
	c := a.createActive()
	base := "/api/v1/billing/contracts/" + c.ID.String()
	status, _ := a.do(http.MethodPost, base+"/installments/1/payments", a.clerk, map[string]string{"amount": "1000"})
	require.Equal(t, http.StatusOK, status)

	status, env := a.do(http.MethodPost, base+"/modify-amount", a.clerk, map[string]string{
		"new_fee": "1200", "effective_date": "2024-03-01", "reason": "indexation",
	})
	require.Equal(t, http.StatusOK, status, "%+v", env.Error)
	result := decode[domain.AmendmentResult](t, env)
	assert.Equal(t, []string{"1000.00", "1000.00", "1200.00", "1200.00", "1200.00"}, amountsOf(result.Installments))
	assert.Equal(t, "indexation", result.Audit.Reason)

	status, env = a.do(http.MethodPost, base+"/cancel", a.clerk, map[string]string{
		"effective_date": "2024-03-15", "type": "BY_LESSEE",
	})
	require.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(domain.AmendmentPendingBalance), env.Error.Code)
	details := env.Error.Details.(map[string]any)
	assert.Equal(t, float64(4), details["count"])
	assert.Equal(t, "4600.00", details["amount"])

	status, env = a.do(http.MethodPost, base+"/cancel", a.admin, map[string]any{
		"effective_date": "2024-03-15", "type": "BY_LESSEE", "penalty": "50",
	})
	require.Equal(t, http.StatusOK, status, "%+v", env.Error)
	result = decode[domain.AmendmentResult](t, env)
	assert.Equal(t, domain.ContractStateCancelled, result.Contract.State)
	require.NotNil(t, result.SpecialPayment)
	assert.Equal(t, domain.SpecialPaymentPenalty, result.SpecialPayment.Type)
	assert.Equal(t, "50.00", result.SpecialPayment.Amount.Amount.StringFixed(2))

	status, env = a.do(http.MethodPost, base+"/suspend", a.clerk, map[string]string{"start": "2024-04-01", "end": "2024-04-30"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(domain.AmendmentInvalidState), env.Error.Code)
}

func TestAmendmentErrors(t *testing.T) {
	a := newAPI(t)
	c := a.createActive()
	base := "/api/v1/billing/contracts/" + c.ID.String()

	tests := []struct {
		name   string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing field", "/extend", map[string]string{}, http.StatusBadRequest, billinghandlers.ErrCodeValidation},
		{"malformed date", "/extend", map[string]string{"new_end": "01/07/2024"}, http.StatusBadRequest, billinghandlers.ErrCodeValidation},
		{"extend backwards", "/extend", map[string]string{"new_end": "2024-03-01"}, http.StatusBadRequest, string(domain.AmendmentInvalidDate)},
		{"non-positive fee", "/modify-amount", map[string]string{"new_fee": "0", "effective_date": "2024-02-01"}, http.StatusBadRequest, string(domain.AmendmentInvalidAmount)},
		{"unknown cancellation type", "/cancel", map[string]string{"effective_date": "2024-02-01", "type": "WHIM"}, http.StatusBadRequest, billinghandlers.ErrCodeValidation},
		{"unknown line", "/lines/" + domain.NewContractLineID().String() + "/terminate", map[string]string{"effective_date": "2024-02-01"}, http.StatusNotFound, string(domain.AmendmentLineNotFound)},
		{"bad line id", "/lines/nope/terminate", map[string]string{"effective_date": "2024-02-01"}, http.StatusBadRequest, billinghandlers.ErrCodeInvalidID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := a.do(http.MethodPost, base+tt.path, a.clerk, tt.body)
			assert.Equal(t, tt.status, status)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}

	status, env := a.do(http.MethodPost, "/api/v1/billing/contracts/"+domain.NewContractID().String()+"/reactivate", a.clerk, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, billinghandlers.ErrCodeNotFound, env.Error.Code)

	status, _ = a.do(http.MethodGet, "/api/v1/billing/contracts/not-a-uuid", a.clerk, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCreateContract_Validation(t *testing.T) {
	a := newAPI(t)

	status, env := a.do(http.MethodPost, "/api/v1/billing/contracts", a.clerk, map[string]any{
		"contract_number": "LC-0002",
		"property_id":     a.property.String(),
		"date_from":       "2024-01-01",
		"date_to":         "2024-06-01",
		"rental_fee":      "abc",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, billinghandlers.ErrCodeValidation, env.Error.Code)
	fields := env.Error.Details.(map[string]any)
	assert.Equal(t, "required", fields["LesseeID"])
	assert.Equal(t, "numeric", fields["RentalFee"])

	status, env = a.do(http.MethodPost, "/api/v1/billing/contracts", a.clerk, map[string]any{
		"contract_number": "LC-0002",
		"property_id":     a.property.String(),
		"lessee_id":       a.lessee.String(),
		"date_from":       "2024-06-01",
		"date_to":         "2024-06-01",
		"rental_fee":      "1000",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, billinghandlers.ErrCodeInvalidRange, env.Error.Code)
}

func TestBilling(t *testing.T) {
	a := newAPI(t)
	c := a.createActive()
	base := "/api/v1/billing/contracts/" + c.ID.String()

	status, env := a.do(http.MethodPost, "/api/v1/billing/runs", a.clerk, map[string]string{"as_of": "2024-02-15"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, billinghandlers.ErrCodeForbidden, env.Error.Code)

	status, env = a.do(http.MethodPost, "/api/v1/billing/runs", a.admin, map[string]string{"as_of": "2024-02-15"})
	require.Equal(t, http.StatusOK, status)
	report := decode[service.RunReport](t, env)
	assert.Equal(t, tenant, report.TenantID)
	assert.Equal(t, 2, report.Billed)
	assert.Equal(t, 4, report.Invoices)

	status, env = a.do(http.MethodPost, base+"/bill", a.clerk, map[string]string{"as_of": "2024-03-15"})
	require.Equal(t, http.StatusOK, status)
	billed := decode[service.BillingResult](t, env)
	assert.Len(t, billed.Installments, 1)
	assert.Equal(t, 2, billed.Invoices)

	status, env = a.do(http.MethodPost, base+"/late-fees", a.clerk, map[string]string{"as_of": "2024-03-15"})
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]domain.SpecialPayment](t, env), "no interest rate, no late fee")

	a.emitter.failWith(errors.New("ledger down"))
	status, env = a.do(http.MethodPost, base+"/bill", a.clerk, map[string]string{"as_of": "2024-04-15"})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, billinghandlers.ErrCodeInvoicing, env.Error.Code)
	assert.Equal(t, "LC-0001/4", env.Error.Details.(map[string]any)["reference"])
}

func TestSpecialPayments(t *testing.T) {
	a := newAPI(t)
	c := a.createActive()

	status, env := a.do(http.MethodPost, "/api/v1/billing/contracts/"+c.ID.String()+"/special-payments", a.clerk, map[string]string{
		"type": "ADMIN_FEE", "amount": "35", "date": "2024-02-10", "description": "key replacement",
	})
	require.Equal(t, http.StatusCreated, status, "%+v", env.Error)
	p := decode[domain.SpecialPayment](t, env)
	assert.Equal(t, domain.SpecialPaymentStateDraft, p.State)

	path := "/api/v1/billing/special-payments/" + p.ID.String()
	status, env = a.do(http.MethodPost, path+"/invoice", a.clerk, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, string(domain.AmendmentInvalidState), env.Error.Code)

	for _, step := range []struct {
		action string
		state  domain.SpecialPaymentState
	}{
		{"confirm", domain.SpecialPaymentStateConfirmed},
		{"invoice", domain.SpecialPaymentStateInvoiced},
		{"pay", domain.SpecialPaymentStatePaid},
	} {
		status, env = a.do(http.MethodPost, path+"/"+step.action, a.clerk, nil)
		require.Equal(t, http.StatusOK, status, "%s: %+v", step.action, env.Error)
		assert.Equal(t, step.state, decode[domain.SpecialPayment](t, env).State)
	}

	status, env = a.do(http.MethodGet, "/api/v1/billing/contracts/"+c.ID.String()+"/special-payments", a.clerk, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]domain.SpecialPayment](t, env), 1)

	status, _ = a.do(http.MethodPost, "/api/v1/billing/contracts/"+c.ID.String()+"/special-payments", a.clerk, map[string]string{
		"type": "BONUS", "amount": "35", "date": "2024-02-10",
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAuthAndHealth(t *testing.T) {
	a := newAPI(t)

	status, env := a.do(http.MethodGet, "/api/v1/billing/contracts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	resp, err := a.server.Client().Get(a.server.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
