package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
)

// OwnershipRepository reads ownership shares maintained by the property management side
type OwnershipRepository struct {
	db *sql.DB
}

// NewOwnershipRepository creates a new OwnershipRepository
func NewOwnershipRepository(db *sql.DB) *OwnershipRepository {
	return &OwnershipRepository{db: db}
}

// Table returns every share recorded for a property, including expired ones
func (r *OwnershipRepository) Table(ctx context.Context, tenantID string, propertyID domain.PropertyID) (domain.OwnershipTable, error) {
	query := `
		SELECT partner_id, percentage, is_main_owner, valid_from, valid_to
		FROM billing_ownership_shares
		WHERE tenant_id = :1 AND property_id = :2
		ORDER BY is_main_owner DESC, percentage DESC`

	rows, err := r.db.QueryContext(ctx, query, tenantID, uuid.UUID(propertyID).String())
	if err != nil {
		return nil, fmt.Errorf("query ownership of property %s: %w", propertyID, err)
	}
	defer rows.Close()

	var table domain.OwnershipTable
	for rows.Next() {
		var partnerStr, pct string
		var main int
		var validFrom, validTo sql.NullTime
		if err := rows.Scan(&partnerStr, &pct, &main, &validFrom, &validTo); err != nil {
			return nil, err
		}
		partner, err := parseUUID(partnerStr, "partner_id")
		if err != nil {
			return nil, err
		}
		percentage, err := parseDecimal(pct, "percentage")
		if err != nil {
			return nil, err
		}
		table = append(table, domain.OwnershipShare{
			PropertyID:  propertyID,
			PartnerID:   domain.PartnerID(partner),
			Percentage:  percentage,
			IsMainOwner: main == 1,
			ValidFrom:   timeFromNull(validFrom),
			ValidTo:     timeFromNull(validTo),
		})
	}
	return table, rows.Err()
}

// ActiveShares returns the shares of a property active on asOf
func (r *OwnershipRepository) ActiveShares(ctx context.Context, tenantID string, propertyID domain.PropertyID, asOf time.Time) (domain.OwnershipTable, error) {
	table, err := r.Table(ctx, tenantID, propertyID)
	if err != nil {
		return nil, err
	}
	return table.ActiveOn(asOf), nil
}

// MemoryOwnership is an in-process ownership source
type MemoryOwnership struct {
	mu     sync.RWMutex
	tables map[string]domain.OwnershipTable
}

// NewMemoryOwnership creates an empty MemoryOwnership
func NewMemoryOwnership() *MemoryOwnership {
	return &MemoryOwnership{tables: make(map[string]domain.OwnershipTable)}
}

func ownershipKey(tenantID string, propertyID domain.PropertyID) string {
	return tenantID + "/" + propertyID.String()
}

// Put replaces the shares of a property
func (m *MemoryOwnership) Put(tenantID string, propertyID domain.PropertyID, table domain.OwnershipTable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[ownershipKey(tenantID, propertyID)] = append(domain.OwnershipTable(nil), table...)
}

// Table returns every share recorded for a property
func (m *MemoryOwnership) Table(_ context.Context, tenantID string, propertyID domain.PropertyID) (domain.OwnershipTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append(domain.OwnershipTable(nil), m.tables[ownershipKey(tenantID, propertyID)]...), nil
}

// ActiveShares returns the shares of a property active on asOf
func (m *MemoryOwnership) ActiveShares(ctx context.Context, tenantID string, propertyID domain.PropertyID, asOf time.Time) (domain.OwnershipTable, error) {
	table, err := m.Table(ctx, tenantID, propertyID)
	if err != nil {
		return nil, err
	}
	return table.ActiveOn(asOf), nil
}

// ownershipSeed is one property of an ownership seed file
type ownershipSeed struct {
	TenantID   string                `json:"tenant_id"`
	PropertyID domain.PropertyID     `json:"property_id"`
	Shares     domain.OwnershipTable `json:"shares"`
}

// Load reads a JSON array of {tenant_id, property_id, shares} and puts each
// property's table. Shares default to the property they are listed under.
func (m *MemoryOwnership) Load(r io.Reader) error {
	var seeds []ownershipSeed
	if err := json.NewDecoder(r).Decode(&seeds); err != nil {
		return fmt.Errorf("decode ownership seed: %w", err)
	}
	for i, seed := range seeds {
		if seed.TenantID == "" || seed.PropertyID.IsZero() {
			return fmt.Errorf("ownership seed entry %d: tenant_id and property_id are required", i)
		}
		for j := range seed.Shares {
			seed.Shares[j].PropertyID = seed.PropertyID
		}
		m.Put(seed.TenantID, seed.PropertyID, seed.Shares)
	}
	return nil
}
