package invoicing

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
	"github.com/zlovtnik/leasebill/internal/billing/service"
)

func invoiceRequest() service.InvoiceRequest {
	return service.InvoiceRequest{
		TenantID:   "tenant-1",
		ContractID: domain.NewContractID(),
		PartnerID:  domain.NewPartnerID(),
		Amount:     domain.NewMoney(decimal.RequireFromString("600"), "USD"),
		DueDate:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Reference:  "LC-0001/3",
	}
}

func TestClient_EmitInvoice(t *testing.T) {
	req := invoiceRequest()
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/invoices", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		keys = append(keys, r.Header.Get("Idempotency-Key"))

		var body invoicePayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "600.00", body.Amount)
		assert.Equal(t, "2024-03-01", body.DueDate)
		assert.Equal(t, req.PartnerID.String(), body.PartnerID)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(invoiceResponse{ID: "42", Number: "F-2024-0042"})
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL + "/", Token: "secret"})
	ref, err := client.EmitInvoice(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "F-2024-0042", ref)

	_, err = client.EmitInvoice(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, keys[0], keys[1])
}

func TestClient_EmitInvoice_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "partner has no account", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).EmitInvoice(context.Background(), invoiceRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "partner has no account")
}

func TestClient_EmitInvoice_MissingReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).EmitInvoice(context.Background(), invoiceRequest())
	require.Error(t, err)
}

func TestLocalEmitter(t *testing.T) {
	var buf strings.Builder
	emitter := NewLocalEmitter(slog.New(slog.NewTextHandler(&buf, nil)))

	ref, err := emitter.EmitInvoice(context.Background(), invoiceRequest())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "LOCAL-"))
	assert.Contains(t, buf.String(), "LC-0001/3")
}
