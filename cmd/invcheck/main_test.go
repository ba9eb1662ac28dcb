package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-verify/pkg/entity"
)

func TestSelectTypes(t *testing.T) {
	counts := entity.Counts{entity.VM: 2, entity.Disk: 5, entity.FloatingIP: 1}

	all, err := selectTypes(counts, nil)
	require.NoError(t, err)
	assert.Equal(t, counts, all)

	some, err := selectTypes(counts, []string{"vm", " floating_ip"})
	require.NoError(t, err)
	assert.Equal(t, entity.Counts{entity.VM: 2, entity.FloatingIP: 1}, some)

	zero, err := selectTypes(counts, []string{"network_router"})
	require.NoError(t, err)
	assert.Equal(t, entity.Counts{entity.NetworkRouter: 0}, zero)

	_, err = selectTypes(counts, []string{"vm", "bucket"})
	assert.EqualError(t, err, `unknown entity type "bucket"`)
}

type fakeRunCounter struct {
	counts map[string]int
	err    error
	asked  []string
}

func (f *fakeRunCounter) CountRuns(_ context.Context, outcome string) (int, error) {
	f.asked = append(f.asked, outcome)
	return f.counts[outcome], f.err
}

func TestCollectRunStats(t *testing.T) {
	store := &fakeRunCounter{counts: map[string]int{"": 6, "passed": 4, "mismatch": 2}}

	stats, err := collectRunStats(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Total)
	assert.Equal(t, map[string]int{"passed": 4, "mismatch": 2, "error": 0}, stats.ByOutcome)
	assert.Equal(t, []string{"", "passed", "mismatch", "error"}, store.asked)

	_, err = collectRunStats(context.Background(), &fakeRunCounter{err: errors.New("connection refused")})
	assert.EqualError(t, err, "connection refused")
}
