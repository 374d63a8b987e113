package ownership

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlovtnik/leasebill/internal/billing/domain"
)

type countingSource struct {
	loads atomic.Int32
	table domain.OwnershipTable
	err   error
}

func (s *countingSource) Table(context.Context, string, domain.PropertyID) (domain.OwnershipTable, error) {
	s.loads.Add(1)
	return s.table, s.err
}

func TestCachedProvider_ReadThrough(t *testing.T) {
	property := domain.NewPropertyID()
	seller, buyer := domain.NewPartnerID(), domain.NewPartnerID()
	sold := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	source := &countingSource{table: domain.OwnershipTable{
		{PropertyID: property, PartnerID: seller, Percentage: decimal.NewFromInt(100), ValidTo: &sold},
		{PropertyID: property, PartnerID: buyer, Percentage: decimal.NewFromInt(100), ValidFrom: &sold},
	}}
	provider, err := NewCachedProvider(source, Config{MaxEntries: 100, TTL: time.Minute})
	require.NoError(t, err)
	defer provider.Close()

	march, err := provider.ActiveShares(context.Background(), "t1", property, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, march, 1)
	assert.Equal(t, seller, march[0].PartnerID)
	provider.Wait()

	april, err := provider.ActiveShares(context.Background(), "t1", property, sold)
	require.NoError(t, err)
	require.Len(t, april, 1)
	assert.Equal(t, buyer, april[0].PartnerID)
	assert.Equal(t, int32(1), source.loads.Load())

	provider.Invalidate("t1", property)
	_, err = provider.ActiveShares(context.Background(), "t1", property, sold)
	require.NoError(t, err)
	assert.Equal(t, int32(2), source.loads.Load())
}

func TestCachedProvider_TenantsAreSeparate(t *testing.T) {
	property := domain.NewPropertyID()
	source := &countingSource{}
	provider, err := NewCachedProvider(source, Config{})
	require.NoError(t, err)
	defer provider.Close()

	_, err = provider.ActiveShares(context.Background(), "t1", property, time.Now())
	require.NoError(t, err)
	provider.Wait()
	_, err = provider.ActiveShares(context.Background(), "t2", property, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int32(2), source.loads.Load())
}

func TestCachedProvider_ErrorsAreNotCached(t *testing.T) {
	source := &countingSource{err: errors.New("db down")}
	provider, err := NewCachedProvider(source, Config{})
	require.NoError(t, err)
	defer provider.Close()

	property := domain.NewPropertyID()
	for i := 0; i < 2; i++ {
		_, err := provider.ActiveShares(context.Background(), "t1", property, time.Now())
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), source.loads.Load())
}
