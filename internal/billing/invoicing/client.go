// Package invoicing emits invoices to the external accounting ledger.
package invoicing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zlovtnik/leasebill/internal/billing/service"
)

// Config holds the ledger connection settings
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client posts invoices to the ledger's HTTP API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new ledger client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type invoicePayload struct {
	TenantID           string `json:"tenant_id"`
	ContractID         string `json:"contract_id"`
	PartnerID          string `json:"partner_id"`
	Amount             string `json:"amount"`
	Currency           string `json:"currency"`
	DueDate            string `json:"due_date"`
	Reference          string `json:"reference"`
	DestinationAccount string `json:"destination_account,omitempty"`
}

type invoiceResponse struct {
	ID     string `json:"id"`
	Number string `json:"number"`
}

// EmitInvoice creates one invoice and returns the ledger's reference for it
func (c *Client) EmitInvoice(ctx context.Context, req service.InvoiceRequest) (string, error) {
	body, err := json.Marshal(invoicePayload{
		TenantID:           req.TenantID,
		ContractID:         req.ContractID.String(),
		PartnerID:          req.PartnerID.String(),
		Amount:             req.Amount.Amount.StringFixed(2),
		Currency:           req.Amount.Currency,
		DueDate:            req.DueDate.Format("2006-01-02"),
		Reference:          req.Reference,
		DestinationAccount: req.DestinationAccount,
	})
	if err != nil {
		return "", fmt.Errorf("marshal invoice: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/invoices", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", idempotencyKey(req))
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("ledger API error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out invoiceResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("unmarshal invoice: %w", err)
	}
	if out.Number != "" {
		return out.Number, nil
	}
	if out.ID == "" {
		return "", fmt.Errorf("ledger returned no invoice reference")
	}
	return out.ID, nil
}

// idempotencyKey is the same for every attempt at one partner's invoice of a reference
func idempotencyKey(req service.InvoiceRequest) string {
	name := strings.Join([]string{req.TenantID, req.ContractID.String(), req.Reference, req.PartnerID.String()}, "|")
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// LocalEmitter numbers invoices in process and logs them. It stands in for
// the ledger when none is configured.
type LocalEmitter struct {
	logger *slog.Logger
}

// NewLocalEmitter creates a new LocalEmitter
func NewLocalEmitter(logger *slog.Logger) *LocalEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalEmitter{logger: logger}
}

// EmitInvoice implements service.InvoiceEmitter
func (e *LocalEmitter) EmitInvoice(_ context.Context, req service.InvoiceRequest) (string, error) {
	ref := "LOCAL-" + strings.ToUpper(uuid.NewString()[:8])
	e.logger.Info("invoice emitted",
		"invoice_ref", ref,
		"tenant_id", req.TenantID,
		"contract_id", req.ContractID.String(),
		"partner_id", req.PartnerID.String(),
		"amount", req.Amount.String(),
		"reference", req.Reference,
	)
	return ref, nil
}
