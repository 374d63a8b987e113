package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zlovtnik/leasebill/internal/billing/domain"
	"github.com/zlovtnik/leasebill/pkg/fp"
	"golang.org/x/sync/errgroup"
)

// BillingConfig drives the background billing run
type BillingConfig struct {
	Tenants     []string
	Concurrency int
	Interval    time.Duration
}

// RunReport is what one billing run did for a tenant
type RunReport struct {
	TenantID  string `json:"tenant_id"`
	Expired   int    `json:"expired"`
	LateFees  int    `json:"late_fees"`
	Billed    int    `json:"billed"`
	Invoices  int    `json:"invoices"`
	Failures  int    `json:"failures"`
	Contracts int    `json:"contracts"`
}

// BillingRun expires finished contracts, assesses late fees and bills due
// installments for every configured tenant. Contracts are processed
// concurrently; each one is serialized by its own unit of work.
type BillingRun struct {
	cfg       BillingConfig
	contracts *ContractService
	billing   *BillingService
	logger    *slog.Logger
	now       func() time.Time
}

// NewBillingRun creates a new BillingRun
func NewBillingRun(cfg BillingConfig, contracts *ContractService, billing *BillingService, logger *slog.Logger) *BillingRun {
	if contracts == nil || billing == nil {
		panic("contract and billing services are required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingRun{cfg: cfg, contracts: contracts, billing: billing, logger: logger, now: billing.now}
}

// Start runs the billing cycle every interval until ctx is cancelled
func (r *BillingRun) Start(ctx context.Context) {
	if r.cfg.Interval <= 0 {
		r.logger.Info("billing run disabled")
		return
	}
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx, r.now()); err != nil {
				r.logger.Error("billing run failed", "error", err)
			}
		}
	}
}

// Run processes every configured tenant once
func (r *BillingRun) Run(ctx context.Context, asOf time.Time) ([]RunReport, error) {
	reports := make([]RunReport, 0, len(r.cfg.Tenants))
	for _, tenantID := range r.cfg.Tenants {
		report, err := r.RunTenant(ctx, tenantID, asOf)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// RunTenant processes one tenant. Per-contract failures are logged and
// counted; only cancellation of ctx aborts the run.
func (r *BillingRun) RunTenant(ctx context.Context, tenantID string, asOf time.Time) (RunReport, error) {
	report := RunReport{TenantID: tenantID}
	start := time.Now()

	expired := r.contracts.Expire(ctx, tenantID, asOf)
	if fp.IsFailure(expired) {
		r.logger.Error("expire contracts failed", "tenant_id", tenantID, "error", fp.GetError(expired))
		report.Failures++
	} else {
		report.Expired = fp.GetValue(expired)
	}

	active := r.contracts.List(ctx, tenantID,
		domain.ContractStateActive, domain.ContractStateSuspended,
		domain.ContractStateExpired, domain.ContractStateCancelled)
	if fp.IsFailure(active) {
		return report, fp.GetError(active)
	}
	contracts := fp.GetValue(active)
	report.Contracts = len(contracts)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, c := range contracts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fees := r.billing.AssessLateFees(gctx, tenantID, c.ID, asOf)
			billed := r.billing.BillDue(gctx, tenantID, c.ID, asOf)

			mu.Lock()
			defer mu.Unlock()
			if err := fp.GetError(fees); err != nil {
				r.logger.Error("late fee assessment failed", "tenant_id", tenantID, "contract_id", c.ID.String(), "error", err)
				report.Failures++
			} else {
				report.LateFees += len(fp.GetValue(fees))
			}
			if err := fp.GetError(billed); err != nil {
				r.logger.Error("billing failed", "tenant_id", tenantID, "contract_id", c.ID.String(), "error", err)
				report.Failures++
			} else {
				res := fp.GetValue(billed)
				report.Billed += len(res.Installments)
				report.Invoices += res.Invoices
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	r.logger.Info("billing run finished",
		"tenant_id", tenantID,
		"as_of", asOf.Format(dateFormat),
		"contracts", report.Contracts,
		"expired", report.Expired,
		"late_fees", report.LateFees,
		"billed", report.Billed,
		"invoices", report.Invoices,
		"failures", report.Failures,
		"duration", time.Since(start),
	)
	return report, nil
}
